package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cmericli/claude-remote/internal/bus"
	"github.com/cmericli/claude-remote/internal/idle"
	"github.com/cmericli/claude-remote/internal/indexer"
	"github.com/cmericli/claude-remote/internal/logparse"
	"github.com/cmericli/claude-remote/internal/notify"
	"github.com/cmericli/claude-remote/internal/procscan"
	"github.com/cmericli/claude-remote/internal/query"
	"github.com/cmericli/claude-remote/internal/server"
	"github.com/cmericli/claude-remote/internal/store"
	"github.com/cmericli/claude-remote/internal/tmux"
	"github.com/cmericli/claude-remote/internal/watch"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the indexer and HTTP server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// runServe is the composition root: every component is constructed once
// here and wired by explicit injection.
func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration: %w", err)
	}

	st, err := store.Open(cfg.General.DBPath)
	if err != nil {
		return fmt.Errorf("opening index: %w", err)
	}
	defer func() { _ = st.Close() }()

	eventBus := bus.New()

	// The registry asks the mux controller which sessions live in tmux,
	// and the controller asks the registry what is running; break the
	// cycle with a late-bound closure.
	var muxCtl *tmux.Controller
	registry := procscan.New(cfg.General.LogRoot, cfg.Tmux.ClaudeBin,
		func() map[string]bool { return muxCtl.ShortIDs() })
	muxCtl = tmux.New(cfg.Tmux.TmuxBin, cfg.Tmux.ClaudeBin, cfg.Tmux.SessionPrefix, registry, st.WorkingDir)

	watcher := watch.New(cfg.General.LogRoot)
	states, err := st.IngestStates()
	if err != nil {
		return fmt.Errorf("loading ingest state: %w", err)
	}
	offsets := make(map[string]int64, len(states))
	for path, s := range states {
		offsets[path] = s.Offset
	}
	watcher.Seed(offsets)

	ix := indexer.New(watcher, logparse.New(nil), st, eventBus,
		cfg.Indexer.PollInterval, cfg.Indexer.ReconcileInterval)
	detector := idle.New(st, eventBus, cfg.Idle.Interval, cfg.Idle.Threshold, cfg.Idle.Cooldown, nil)
	dispatcher := notify.New(st, eventBus, nil, cfg.Notify.Cooldown,
		cfg.Notify.GlobalHourlyCap, cfg.Notify.DeliveryTimeout, nil)
	facade := query.New(st, registry, nil)
	srv := server.New(cfg.Server.Addr, facade, eventBus, st, muxCtl)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 4)
	go func() { errCh <- ix.Run(ctx) }()
	go func() { errCh <- detector.Run(ctx) }()
	go func() { errCh <- dispatcher.Run(ctx) }()
	go func() { errCh <- srv.Run(ctx) }()

	log.Printf("serve: listening on %s, watching %s", cfg.Server.Addr, cfg.General.LogRoot)

	select {
	case <-ctx.Done():
		log.Printf("serve: shutting down")
		// Give every task its cancellation window.
		for i := 0; i < 4; i++ {
			<-errCh
		}
		return nil
	case err := <-errCh:
		stop()
		for i := 0; i < 3; i++ {
			<-errCh
		}
		return err
	}
}
