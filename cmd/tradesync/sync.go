package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"tradesync/internal/logger"
	"tradesync/internal/store/journalstore"
	"tradesync/internal/syncer"

	"github.com/spf13/cobra"
)

var (
	syncExchange string
	syncSymbol   string
	syncSince    string
	syncUntil    string
	syncDays     int
	syncDryRun   bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch trade history from an exchange into the journal",
	Long: `Sync pulls historical trade executions for the configured exchange
across all its asset categories, deduplicates them and stores the canonical
records in the local journal database (unless --dry-run is given).`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().StringVar(&syncExchange, "exchange", "", "configured exchange to sync (required)")
	syncCmd.Flags().StringVar(&syncSymbol, "symbol", "", "restrict the sync to one symbol, e.g. BTCUSDT")
	syncCmd.Flags().StringVar(&syncSince, "since", "", "range start (YYYY-MM-DD or RFC3339)")
	syncCmd.Flags().StringVar(&syncUntil, "until", "", "range end (YYYY-MM-DD or RFC3339)")
	syncCmd.Flags().IntVar(&syncDays, "days", 0, "sync the last N days (ignored when --since is set)")
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "fetch and report without writing the journal store")
	syncCmd.MarkFlagRequired("exchange")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	adapter, cred, err := buildAdapter(syncExchange)
	if err != nil {
		return err
	}
	opts, err := syncOptions()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine := syncer.New(adapter)
	result, err := engine.FetchTrades(ctx, cred, opts)
	for _, w := range result.Warnings {
		logger.Warnf("%s", w)
	}
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	fmt.Printf("fetched %d trades (%d raw, %d duplicates, %d pages, %d retries, %d warnings)\n",
		len(result.Trades), result.Stats.RawTrades, result.Stats.Duplicates,
		result.Stats.Pages, result.Stats.Retries, len(result.Warnings))

	if syncDryRun || !cfg.Store.Enabled {
		if len(result.Trades) > 0 {
			fmt.Println("store disabled or dry run — nothing persisted")
		}
		return nil
	}
	store, err := journalstore.New(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer store.Close()
	inserted, err := store.UpsertTrades(ctx, result.Trades)
	if err != nil {
		return err
	}
	total, err := store.CountTrades(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("stored %d new trades (journal now holds %d)\n", inserted, total)
	return nil
}

func syncOptions() (syncer.Options, error) {
	opts := syncer.Options{
		Symbol:           strings.TrimSpace(syncSymbol),
		Workers:          cfg.Sync.Workers,
		ChunkDelay:       time.Duration(cfg.Sync.ChunkDelayMS) * time.Millisecond,
		MaxRetries:       cfg.Sync.MaxRetries,
		MaxPages:         cfg.Sync.MaxPages,
		PageLimit:        cfg.Sync.PageLimit,
		BreakerThreshold: cfg.Sync.BreakerThreshold,
	}
	if syncSince != "" {
		since, err := parseTime(syncSince)
		if err != nil {
			return opts, fmt.Errorf("invalid --since: %w", err)
		}
		opts.Since = since
	} else if syncDays > 0 {
		opts.Since = time.Now().AddDate(0, 0, -syncDays)
	} else if cfg.Sync.SinceDays > 0 {
		opts.Since = time.Now().AddDate(0, 0, -cfg.Sync.SinceDays)
	}
	if syncUntil != "" {
		until, err := parseTime(syncUntil)
		if err != nil {
			return opts, fmt.Errorf("invalid --until: %w", err)
		}
		opts.Until = until
	}
	return opts, nil
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
