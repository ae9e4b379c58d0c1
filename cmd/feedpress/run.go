package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pders01/feedpress/internal/config"
	"github.com/pders01/feedpress/internal/debuglog"
	"github.com/pders01/feedpress/internal/epub"
	"github.com/pders01/feedpress/internal/feed"
	"github.com/pders01/feedpress/internal/search"
	"github.com/pders01/feedpress/internal/storage"
)

// runDaemon polls all feeds on every tick until interrupted.
func runDaemon(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, poller, engine, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	debuglog.Infof("polling %d feeds every %s", len(cfg.Feeds), cfg.PollInterval)

	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	for {
		cycle(ctx, cfg, poller, engine)

		select {
		case <-ctx.Done():
			debuglog.Infof("shutting down")
			return nil
		case <-ticker.C:
		}
	}
}

// runOnce runs a single poll cycle, for cron-style scheduling.
func runOnce(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, poller, engine, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	fresh := cycle(ctx, cfg, poller, engine)
	fmt.Fprintf(cmd.OutOrStdout(), "polled %d feeds, %d with fresh entries\n", len(cfg.Feeds), fresh)
	return nil
}

func runSearch(cmd *cobra.Command, query string, limit int) error {
	cfg, err := config.Load(configPath, permissive)
	if err != nil {
		return err
	}

	engine, err := search.Open(cfg.Search.Index)
	if err != nil {
		return err
	}
	defer engine.Close()

	results, err := engine.Search(query, limit)
	if err != nil {
		return err
	}

	if len(results) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no matches")
		return nil
	}
	for _, r := range results {
		fmt.Fprintf(cmd.OutOrStdout(), "%6.2f  [%s] %s\n", r.Score, r.Feed, r.Title)
		if r.Summary != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "        %s\n", r.Summary)
		}
	}
	return nil
}

// setup wires the shared context for a polling run: config, logging, the
// store, the poller and the search index. Only store and config failures
// are fatal; a broken search index just disables indexing.
func setup() (*config.Config, *feed.Poller, *search.Engine, func(), error) {
	cfg, err := config.Load(configPath, permissive)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	if err := debuglog.Setup(debuglog.ParseLevel(cfg.Log.Level), cfg.Log.Path); err != nil {
		return nil, nil, nil, nil, err
	}

	store, err := storage.Open(cfg.Database.Path)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if err := store.Init(); err != nil {
		store.Close()
		return nil, nil, nil, nil, err
	}

	engine, err := search.Open(cfg.Search.Index)
	if err != nil {
		debuglog.Warnf("search index unavailable, indexing disabled: %v", err)
		engine = nil
	}

	poller := feed.NewPoller(store, feed.NewFetcher(cfg.HTTP.Timeout, userAgent(cfg)))

	cleanup := func() {
		if engine != nil {
			engine.Close()
		}
		store.Close()
		debuglog.Close()
	}
	return cfg, poller, engine, cleanup, nil
}

// cycle runs one multi-feed poll and converts whatever came back fresh.
// It returns the number of feeds that produced fresh data.
func cycle(ctx context.Context, cfg *config.Config, poller *feed.Poller, engine *search.Engine) int {
	sources := cfg.Sources()

	// A missing download dir degrades conversion, not polling; the fetch
	// and its cache bookkeeping still run.
	for _, src := range sources {
		if err := os.MkdirAll(src.DownloadDir, 0o755); err != nil {
			debuglog.Errorf("feed %s: creating download dir %s: %v", src.Name, src.DownloadDir, err)
		}
	}

	updates := poller.PollAll(ctx, sources)
	for _, update := range updates {
		convertEntries(update)
		if engine != nil {
			if err := engine.IndexItems(update.Source.Name, update.Feed.Items); err != nil {
				debuglog.Warnf("feed %s: indexing entries: %v", update.Source.Name, err)
			}
		}
	}
	return len(updates)
}

// convertEntries writes one EPUB per entry. A failing entry is reported
// and skipped; its siblings still convert.
func convertEntries(update feed.Update) {
	for _, item := range update.Feed.Items {
		if err := epub.WriteEntry(update.Source.Name, update.Source.DownloadDir, item); err != nil {
			debuglog.Warnf("feed %s: converting entry %q: %v", update.Source.Name, item.Title, err)
			continue
		}
		debuglog.Debugf("feed %s: wrote %s", update.Source.Name, epub.FileName(update.Source.DownloadDir, item.Title))
	}
}
