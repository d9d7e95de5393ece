// Package procscan discovers live assistant processes and maps them to
// session ids. It is read-only: it never signals a process.
package procscan

import (
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cmericli/claude-remote/internal/watch"
)

// cacheTTL bounds the system-call rate under bursty callers.
const cacheTTL = 2 * time.Second

var (
	resumeRe    = regexp.MustCompile(`--resume\s+([a-f0-9-]{36})`)
	sessionIDRe = regexp.MustCompile(`--session-id\s+([a-f0-9-]{36})`)
)

// TmuxLister reports the short ids of mux sessions carrying the configured
// prefix. Injected by the mux controller.
type TmuxLister func() map[string]bool

// Registry reports which sessions are currently hosted by a running
// assistant process.
type Registry struct {
	logRoot    string
	binaryName string
	listTmux   TmuxLister

	mu        sync.Mutex
	active    map[string]bool
	tmuxShort map[string]bool
	fetchedAt time.Time
}

// New returns a registry scanning for processes whose command line
// contains binaryName, resolving ambiguous ones against logRoot.
func New(logRoot, binaryName string, listTmux TmuxLister) *Registry {
	if listTmux == nil {
		listTmux = func() map[string]bool { return nil }
	}
	return &Registry{
		logRoot:    logRoot,
		binaryName: binaryName,
		listTmux:   listTmux,
	}
}

// Active returns the set of session ids with a live assistant process.
func (r *Registry) Active() map[string]bool {
	r.refresh()
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]bool, len(r.active))
	for k := range r.active {
		out[k] = true
	}
	return out
}

// Status reports whether a session is running and whether its process is
// hosted inside a mux session.
func (r *Registry) Status(sessionID string) (running, inTmux bool) {
	r.refresh()
	r.mu.Lock()
	defer r.mu.Unlock()
	short := sessionID
	if len(short) > 8 {
		short = short[:8]
	}
	return r.active[sessionID], r.tmuxShort[short]
}

func (r *Registry) refresh() {
	r.mu.Lock()
	fresh := time.Since(r.fetchedAt) < cacheTTL && r.active != nil
	r.mu.Unlock()
	if fresh {
		return
	}

	var active map[string]bool
	if runtime.GOOS == "linux" {
		active = r.scanProc()
	} else {
		active = r.scanPS()
	}
	tmuxShort := r.listTmux()

	r.mu.Lock()
	r.active = active
	r.tmuxShort = tmuxShort
	r.fetchedAt = time.Now()
	r.mu.Unlock()
}

// extractSessionID pulls a session id out of an assistant command line.
// Commands using --continue, or a bare invocation, fall back to the most
// recently modified session log for the process working directory.
func (r *Registry) extractSessionID(cmdline, cwd string) string {
	if m := resumeRe.FindStringSubmatch(cmdline); m != nil {
		return m[1]
	}
	if m := sessionIDRe.FindStringSubmatch(cmdline); m != nil {
		return m[1]
	}
	if cwd != "" {
		return r.mostRecentSessionIn(cwd)
	}
	return ""
}

// mostRecentSessionIn finds the newest session log for a working
// directory.
func (r *Registry) mostRecentSessionIn(cwd string) string {
	projectDir := filepath.Join(r.logRoot, watch.ProjectDirFromWorkingDir(cwd))
	entries, err := os.ReadDir(projectDir)
	if err != nil {
		return ""
	}

	type candidate struct {
		name  string
		mtime time.Time
	}
	var cands []candidate
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".jsonl" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		cands = append(cands, candidate{name: e.Name(), mtime: info.ModTime()})
	}
	if len(cands) == 0 {
		return ""
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].mtime.After(cands[j].mtime) })
	return strings.TrimSuffix(cands[0].name, ".jsonl")
}

// relevantCommand filters out helper processes that mention the binary but
// do not host a session.
func (r *Registry) relevantCommand(cmdline string) bool {
	lower := strings.ToLower(cmdline)
	if !strings.Contains(lower, strings.ToLower(r.binaryName)) {
		return false
	}
	for _, skip := range []string{"--chrome-native-host", "claude-remote", "grep"} {
		if strings.Contains(lower, skip) {
			return false
		}
	}
	return true
}
