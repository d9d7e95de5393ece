package tmux

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type fakeProcs struct {
	running bool
	inTmux  bool
}

func (f fakeProcs) Status(string) (bool, bool) { return f.running, f.inTmux }

// stubTmux writes an executable shell script standing in for the mux
// binary and returns its path plus the log file it appends commands to.
func stubTmux(t *testing.T, script string) (bin, logPath string) {
	t.Helper()
	dir := t.TempDir()
	logPath = filepath.Join(dir, "calls.log")
	bin = filepath.Join(dir, "tmux")

	full := "#!/bin/sh\nLOG=\"" + logPath + "\"\necho \"$@\" >> \"$LOG\"\n" + script
	if err := os.WriteFile(bin, []byte(full), 0o755); err != nil {
		t.Fatal(err)
	}
	return bin, logPath
}

func calls(t *testing.T, logPath string) string {
	t.Helper()
	data, err := os.ReadFile(logPath)
	if err != nil {
		if os.IsNotExist(err) {
			return ""
		}
		t.Fatal(err)
	}
	return string(data)
}

func workingDirFor(dir string) WorkingDirLookup {
	return func(string) (string, error) { return dir, nil }
}

func TestMuxName(t *testing.T) {
	c := New("tmux", "claude", "claude-remote-", fakeProcs{}, workingDirFor("/w"))
	if got := c.MuxName("abcdef12-3456-7890"); got != "claude-remote-abcdef12" {
		t.Errorf("MuxName = %q", got)
	}
	if got := c.MuxName("short"); got != "claude-remote-short" {
		t.Errorf("MuxName short = %q", got)
	}
}

func TestListParsesSessionNames(t *testing.T) {
	bin, _ := stubTmux(t, `
case "$1" in
list-sessions) printf 'claude-remote-abc12345\nother-session\n'; exit 0;;
esac
exit 0
`)
	c := New(bin, "claude", "claude-remote-", fakeProcs{}, workingDirFor("/w"))

	names, err := c.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("names = %v", names)
	}

	ids := c.ShortIDs()
	if len(ids) != 1 || !ids["abc12345"] {
		t.Errorf("ShortIDs = %v, want only the prefixed session", ids)
	}
}

func TestListWithoutServerIsEmpty(t *testing.T) {
	bin, _ := stubTmux(t, `
case "$1" in
list-sessions) echo 'no server running' >&2; exit 1;;
esac
exit 0
`)
	c := New(bin, "claude", "claude-remote-", fakeProcs{}, workingDirFor("/w"))

	names, err := c.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(names) != 0 {
		t.Errorf("names = %v, want none", names)
	}
}

func TestInjectUnknownSession(t *testing.T) {
	bin, _ := stubTmux(t, `
case "$1" in
has-session) exit 1;;
esac
exit 0
`)
	c := New(bin, "claude", "claude-remote-", fakeProcs{}, workingDirFor("/w"))

	err := c.Inject("claude-remote-missing", "hello\n")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestInjectSendsLiteralKeys(t *testing.T) {
	bin, logPath := stubTmux(t, "exit 0\n")
	c := New(bin, "claude", "claude-remote-", fakeProcs{}, workingDirFor("/w"))

	if err := c.Inject("claude-remote-abc12345", "continue\n"); err != nil {
		t.Fatalf("Inject: %v", err)
	}
	log := calls(t, logPath)
	if !strings.Contains(log, "send-keys -t claude-remote-abc12345 -l continue") {
		t.Errorf("calls:\n%s", log)
	}
}

func TestCommandErrorCarriesStderr(t *testing.T) {
	bin, _ := stubTmux(t, `
case "$1" in
new-session) echo 'duplicate session: x' >&2; exit 1;;
esac
exit 0
`)
	c := New(bin, "claude", "claude-remote-", fakeProcs{}, workingDirFor("/w"))

	err := c.Create("x", "/w", "", 24, 80)
	if err == nil {
		t.Fatal("Create should fail")
	}
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("err type %T", err)
	}
	if cmdErr.Stderr != "duplicate session: x" {
		t.Errorf("Stderr = %q", cmdErr.Stderr)
	}
}

func TestJoinCreatesForStoppedSession(t *testing.T) {
	bin, logPath := stubTmux(t, `
case "$1" in
has-session) exit 1;;
esac
exit 0
`)
	c := New(bin, "claude", "claude-remote-", fakeProcs{}, workingDirFor("/home/alice/proj"))

	result, err := c.Join("abcdef12-3456", 24, 80)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if result.State != JoinCreated {
		t.Errorf("State = %q, want created", result.State)
	}
	if result.MuxName != "claude-remote-abcdef12" {
		t.Errorf("MuxName = %q", result.MuxName)
	}

	log := calls(t, logPath)
	if !strings.Contains(log, "new-session -d -s claude-remote-abcdef12") {
		t.Errorf("missing new-session call:\n%s", log)
	}
	if !strings.Contains(log, "claude --resume abcdef12-3456") {
		t.Errorf("missing resume command:\n%s", log)
	}
}

func TestJoinAttachedWhenInTmux(t *testing.T) {
	bin, _ := stubTmux(t, "exit 0\n")
	c := New(bin, "claude", "claude-remote-", fakeProcs{running: true, inTmux: true}, workingDirFor("/w"))

	result, err := c.Join("abcdef12-3456", 0, 0)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if result.State != JoinAttached || result.MuxName != "claude-remote-abcdef12" {
		t.Errorf("result = %+v", result)
	}
}

func TestJoinRunningOutsideTmux(t *testing.T) {
	bin, _ := stubTmux(t, `
case "$1" in
has-session) exit 1;;
esac
exit 0
`)
	c := New(bin, "claude", "claude-remote-", fakeProcs{running: true}, workingDirFor("/w"))

	result, err := c.Join("abcdef12-3456", 0, 0)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if result.State != JoinRunningNoTmux {
		t.Errorf("State = %q, want running_no_tmux", result.State)
	}
	if result.Message == "" {
		t.Error("running_no_tmux should carry a human-readable message")
	}
}

func TestJoinUnknownSession(t *testing.T) {
	bin, _ := stubTmux(t, "exit 0\n")
	c := New(bin, "claude", "claude-remote-", fakeProcs{}, workingDirFor(""))

	_, err := c.Join("nope", 0, 0)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestTerminateGracefulThenKill(t *testing.T) {
	// The stub always reports the session alive, so Terminate must fall
	// through to kill-session after the grace period.
	bin, logPath := stubTmux(t, "exit 0\n")
	c := New(bin, "claude", "claude-remote-", fakeProcs{}, workingDirFor("/w"))
	c.terminateGrace = 300 * time.Millisecond

	if err := c.Terminate("claude-remote-abc12345"); err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	log := calls(t, logPath)
	if !strings.Contains(log, "send-keys -t claude-remote-abc12345 C-c") {
		t.Errorf("missing graceful interrupt:\n%s", log)
	}
	if !strings.Contains(log, "kill-session -t claude-remote-abc12345") {
		t.Errorf("missing force kill:\n%s", log)
	}
}
