// Package indexer glues the file watcher, the log parser, and the index
// store, and publishes change events on the bus.
package indexer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/cmericli/claude-remote/internal/bus"
	"github.com/cmericli/claude-remote/internal/logparse"
	"github.com/cmericli/claude-remote/internal/model"
	"github.com/cmericli/claude-remote/internal/store"
	"github.com/cmericli/claude-remote/internal/watch"
)

const (
	// Lines larger than this are skipped and counted in Stats.OversizedLines.
	// Each poll reads a file's whole new byte range into memory; there is no
	// fixed-size read buffer.
	maxLineLen = 2 * 1024 * 1024

	// A store that fails this many consecutive write transactions is not
	// coming back; continuing to poll would be pointless.
	maxConsecutiveStoreFailures = 10
)

// Stats holds the indexer's operational counters.
type Stats struct {
	LinesParsed    atomic.Int64
	Malformed      atomic.Int64
	UnknownTypes   atomic.Int64
	OversizedLines atomic.Int64
	FilesIngested  atomic.Int64
}

// Indexer drives incremental ingestion.
type Indexer struct {
	watcher *watch.Watcher
	parser  *logparse.Parser
	store   *store.Store
	bus     *bus.Bus

	pollInterval      time.Duration
	reconcileInterval time.Duration

	coalescer *coalescer
	Stats     Stats

	storeFailures int
}

// New wires an indexer from its collaborators.
func New(w *watch.Watcher, p *logparse.Parser, s *store.Store, b *bus.Bus, pollInterval, reconcileInterval time.Duration) *Indexer {
	return &Indexer{
		watcher:           w,
		parser:            p,
		store:             s,
		bus:               b,
		pollInterval:      pollInterval,
		reconcileInterval: reconcileInterval,
		coalescer:         newCoalescer(b),
	}
}

// Run polls until ctx is canceled. Recoverable errors are logged and the
// loop continues; only a persistently failing store ends the run.
func (ix *Indexer) Run(ctx context.Context) error {
	// Prime the file set and ingest whatever is already on disk so the
	// index is useful immediately.
	if err := ix.reconcile(); err != nil {
		log.Printf("indexer: initial reconcile: %v", err)
	}
	if err := ix.pollOnce(); err != nil {
		return err
	}

	poll := time.NewTicker(ix.pollInterval)
	defer poll.Stop()
	reconcile := time.NewTicker(ix.reconcileInterval)
	defer reconcile.Stop()

	for {
		select {
		case <-ctx.Done():
			ix.coalescer.stop()
			return nil
		case <-reconcile.C:
			if err := ix.reconcile(); err != nil {
				log.Printf("indexer: reconcile: %v", err)
			}
		case <-poll.C:
			if err := ix.pollOnce(); err != nil {
				return err
			}
		}
	}
}

func (ix *Indexer) reconcile() error {
	added, err := ix.watcher.Reconcile()
	if err != nil {
		return err
	}
	for _, path := range added {
		log.Printf("indexer: tracking %s", path)
	}
	for _, path := range ix.watcher.Sweep() {
		// The backing file is gone; keep the session's history but drop
		// the watermark so a reappearing file re-ingests cleanly.
		if err := ix.store.DropIngestState(path); err != nil {
			log.Printf("indexer: dropping state for %s: %v", path, err)
		}
		log.Printf("indexer: %s removed, retaining indexed history", path)
	}
	return nil
}

func (ix *Indexer) pollOnce() error {
	for _, g := range ix.watcher.Scan() {
		if err := ix.ingest(g); err != nil {
			ix.storeFailures++
			log.Printf("indexer: ingesting %s: %v", g.Path, err)
			if ix.storeFailures >= maxConsecutiveStoreFailures {
				return fmt.Errorf("store failed %d consecutive writes, giving up: %w", ix.storeFailures, err)
			}
			continue
		}
		ix.storeFailures = 0
	}
	return nil
}

// ingest reads a file's new bytes, parses the complete lines, applies the
// records in one store transaction, and queues change events. The offset
// only advances past whole lines; a trailing partial line is left for the
// next poll.
func (ix *Indexer) ingest(g watch.Growth) error {
	if g.Truncated {
		log.Printf("indexer: %s shrank, re-parsing from start", g.Path)
		if err := ix.store.ResetIngest(g.SessionID, g.Path); err != nil {
			return err
		}
		ix.watcher.Commit(g.Path, 0, g.MtimeNs)
		if g.To == 0 {
			return nil
		}
	}

	data, err := readRange(g.Path, g.From, g.To)
	if err != nil {
		// Transient I/O failure: leave the watermark; next poll retries.
		log.Printf("indexer: reading %s: %v", g.Path, err)
		return nil
	}

	complete := completeLines(data)
	if complete == 0 {
		return nil
	}
	newOffset := g.From + int64(complete)

	lines := ix.splitLines(data[:complete])
	res := ix.parser.ParseLines(g.SessionID, lines)
	ix.Stats.LinesParsed.Add(int64(len(lines)))
	ix.Stats.Malformed.Add(int64(res.Malformed))
	ix.Stats.UnknownTypes.Add(int64(res.UnknownTypes))

	created, err := ix.applyRecords(g, res)
	if err != nil {
		return err
	}

	if err := ix.store.AdvanceOffset(g.SessionID, g.Path, newOffset, g.MtimeNs); err != nil {
		return err
	}
	ix.watcher.Commit(g.Path, newOffset, g.MtimeNs)
	ix.Stats.FilesIngested.Add(1)

	ix.publish(g.SessionID, created, res)
	return nil
}

func (ix *Indexer) applyRecords(g watch.Growth, res *logparse.Result) (created bool, err error) {
	workingDir := res.Meta.Cwd
	if workingDir == "" {
		workingDir = watch.WorkingDirFromProjectDir(filepath.Base(filepath.Dir(g.Path)))
	}

	created, err = ix.store.UpsertSession(store.SessionRecord{
		SessionID:  g.SessionID,
		Slug:       res.Meta.Slug,
		ProjectDir: watch.ProjectNameFromWorkingDir(workingDir),
		WorkingDir: workingDir,
		GitBranch:  res.Meta.GitBranch,
		Model:      res.Meta.Model,
		Version:    res.Meta.Version,
		JSONLPath:  g.Path,
	})
	if err != nil {
		return false, err
	}

	// Lines keep their own session id when it disagrees with the file
	// name; group the batch accordingly.
	bydest := make(map[string][]model.Message)
	var order []string
	for _, m := range res.Messages {
		if _, ok := bydest[m.SessionID]; !ok {
			order = append(order, m.SessionID)
		}
		bydest[m.SessionID] = append(bydest[m.SessionID], m)
	}
	for _, sid := range order {
		if sid != g.SessionID {
			if _, err := ix.store.UpsertSession(store.SessionRecord{SessionID: sid, JSONLPath: g.Path}); err != nil {
				return created, err
			}
		}
		if _, err := ix.store.AppendMessages(sid, bydest[sid]); err != nil {
			return created, err
		}
	}

	if err := ix.store.AddDuration(g.SessionID, res.DurationMs); err != nil {
		return created, err
	}
	return created, nil
}

func (ix *Indexer) publish(sessionID string, created bool, res *logparse.Result) {
	if created {
		ix.bus.Publish(bus.TopicGlobal, bus.Event{
			Type:      bus.TypeSessionStarted,
			SessionID: sessionID,
			Time:      time.Now(),
		})
	}

	for _, m := range res.Messages {
		ix.coalescer.addMessage(m)
		for _, tu := range m.ToolUses {
			ix.coalescer.addToolUse(m.SessionID, tu)
		}
	}
}

// readRange reads [from, to) of a file.
func readRange(path string, from, to int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(io.NewSectionReader(f, from, to-from))
	if err != nil {
		return nil, err
	}
	return data, nil
}

// completeLines returns the byte length of data up to and including the
// last newline. Bytes past it are a partial line.
func completeLines(data []byte) int {
	idx := bytes.LastIndexByte(data, '\n')
	if idx < 0 {
		return 0
	}
	return idx + 1
}

func (ix *Indexer) splitLines(data []byte) [][]byte {
	raw := bytes.Split(data, []byte{'\n'})
	lines := make([][]byte, 0, len(raw))
	for _, l := range raw {
		if len(l) == 0 {
			continue
		}
		if len(l) > maxLineLen {
			ix.Stats.OversizedLines.Add(1)
			continue
		}
		lines = append(lines, l)
	}
	return lines
}
