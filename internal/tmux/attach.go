package tmux

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/creack/pty"
)

// Pipe is a bidirectional byte stream onto a mux session, backed by a
// pseudo-terminal running the attach client. Closing the pipe detaches
// the client; the mux session itself keeps running.
type Pipe struct {
	ptmx *os.File
	cmd  *exec.Cmd
}

// Attach opens a pseudo-terminal pipe to the named mux session at the
// given size.
func (c *Controller) Attach(name string, rows, cols uint16) (*Pipe, error) {
	if !c.Has(name) {
		return nil, fmt.Errorf("mux session %s: %w", name, ErrNotFound)
	}
	if rows == 0 {
		rows = 24
	}
	if cols == 0 {
		cols = 80
	}

	cmd := exec.Command(c.tmuxBin, "attach-session", "-t", "="+name)
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: rows, Cols: cols})
	if err != nil {
		return nil, fmt.Errorf("starting attach client: %w", err)
	}

	return &Pipe{ptmx: ptmx, cmd: cmd}, nil
}

// Read pulls terminal output bytes.
func (p *Pipe) Read(b []byte) (int, error) {
	return p.ptmx.Read(b)
}

// Write pushes input bytes to the session.
func (p *Pipe) Write(b []byte) (int, error) {
	return p.ptmx.Write(b)
}

// Resize changes the terminal size without tearing down the pipe.
func (p *Pipe) Resize(rows, cols uint16) error {
	return pty.Setsize(p.ptmx, &pty.Winsize{Rows: rows, Cols: cols})
}

// Close detaches the client and releases the pseudo-terminal.
func (p *Pipe) Close() error {
	err := p.ptmx.Close()
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	_ = p.cmd.Wait()
	return err
}
