// Package syncer coordinates a full trade history sync: it plans windows,
// drives every adapter category with pagination, classifies failures per
// chunk, and reduces the gathered raw executions into a deduplicated,
// time-sorted canonical trade list.
package syncer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"tradesync/internal/exchange"
	"tradesync/internal/exchange/classify"
	"tradesync/internal/journal"
	"tradesync/internal/logger"
	"tradesync/internal/pkg/circuit"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	defaultLookback   = 180 * 24 * time.Hour
	defaultChunkDelay = 100 * time.Millisecond
	defaultMaxPages   = 50
	defaultMaxRetries = 3
	defaultWorkers    = 4
	defaultThreshold  = 8
	defaultCooldown   = 10 * time.Second
	retryBaseDelay    = 500 * time.Millisecond
	retryMaxDelay     = 30 * time.Second
)

// Options tune one fetch run. Zero values mean defaults.
type Options struct {
	Symbol string
	Since  time.Time
	Until  time.Time
	// PageLimit caps rows per page; 0 lets the adapter choose.
	PageLimit int
	// MaxPages bounds pagination per (category, window) chunk sequence.
	MaxPages int
	// Workers bounds concurrent category fetches, clamped to [1, 4].
	Workers int
	// ChunkDelay is the politeness pause between consecutive requests of
	// one worker. Exchanges throttle aggressively without it.
	ChunkDelay       time.Duration
	MaxRetries       int
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

func (o Options) withDefaults(now time.Time) Options {
	out := o
	if out.Until.IsZero() {
		out.Until = now
	}
	if out.Since.IsZero() {
		out.Since = out.Until.Add(-defaultLookback)
	}
	if out.MaxPages <= 0 {
		out.MaxPages = defaultMaxPages
	}
	if out.Workers <= 0 || out.Workers > defaultWorkers {
		out.Workers = defaultWorkers
	}
	if out.ChunkDelay <= 0 {
		out.ChunkDelay = defaultChunkDelay
	}
	if out.MaxRetries <= 0 {
		out.MaxRetries = defaultMaxRetries
	}
	if out.BreakerThreshold <= 0 {
		out.BreakerThreshold = defaultThreshold
	}
	if out.BreakerCooldown <= 0 {
		out.BreakerCooldown = defaultCooldown
	}
	return out
}

// Warning describes a chunk or category the sync had to give up on.
type Warning struct {
	Category string
	Window   exchange.Window
	Message  string
}

func (w Warning) String() string {
	if w.Category == "" {
		return w.Message
	}
	if w.Window.Start.IsZero() {
		return fmt.Sprintf("[%s] %s", w.Category, w.Message)
	}
	return fmt.Sprintf("[%s %s] %s", w.Category, w.Window, w.Message)
}

type Stats struct {
	Pages             int
	RawTrades         int
	Duplicates        int
	Retries           int
	FailedChunks      int
	SkippedCategories int
}

// Result is what a fetch run hands to the journal collaborator. A sync can
// partially succeed: trades plus warnings describing what was skipped.
type Result struct {
	Trades   []journal.Trade
	Warnings []Warning
	Stats    Stats
}

// ConnectionTestResult carries the outcome of a lightweight authenticated
// probe plus a user-actionable diagnostic.
type ConnectionTestResult struct {
	OK         bool
	Diagnostic string
}

// Engine runs syncs against one exchange adapter. It holds no credential
// state; credentials live only for the duration of a call.
type Engine struct {
	adapter exchange.Adapter
}

func New(adapter exchange.Adapter) *Engine {
	return &Engine{adapter: adapter}
}

// TestConnection issues one authenticated probe and maps the outcome into a
// human-readable diagnostic.
func (e *Engine) TestConnection(ctx context.Context, cred exchange.Credential) ConnectionTestResult {
	if err := cred.Validate(); err != nil {
		return ConnectionTestResult{OK: false, Diagnostic: err.Error()}
	}
	if err := e.adapter.TestConnection(ctx, cred); err != nil {
		logger.Warnf("[%s] connection test failed for key %s: %v", e.adapter.Name(), cred.Fingerprint(), err)
		return ConnectionTestResult{OK: false, Diagnostic: classify.Diagnostic(err)}
	}
	return ConnectionTestResult{OK: true, Diagnostic: "connection ok"}
}

// FetchTrades pulls the full execution history for [Since, Until) across
// every adapter category. Only authentication failures and cancellation are
// fatal; everything else degrades into warnings on the result.
func (e *Engine) FetchTrades(ctx context.Context, cred exchange.Credential, opts Options) (Result, error) {
	if err := cred.Validate(); err != nil {
		return Result{}, err
	}
	opts = opts.withDefaults(time.Now())
	if opts.Until.Before(opts.Since) {
		return Result{}, fmt.Errorf("invalid range: until %s before since %s", opts.Until, opts.Since)
	}

	windows := PlanWindows(opts.Since, opts.Until, e.adapter.MaxWindow())
	categories := e.adapter.Categories()
	runID := shortRunID()
	logger.Infof("[%s] sync %s: key=%s categories=%d windows=%d range=%s..%s",
		e.adapter.Name(), runID, cred.Fingerprint(), len(categories), len(windows),
		opts.Since.Format(time.RFC3339), opts.Until.Format(time.RFC3339))
	if len(windows) == 0 {
		return Result{}, nil
	}

	breaker := circuit.New(e.adapter.Name()+"/"+runID, opts.BreakerThreshold, opts.BreakerCooldown)
	st := newSyncState()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for _, category := range categories {
		category := category
		g.Go(func() error {
			return e.syncCategory(gctx, cred, category, windows, opts, breaker, st)
		})
	}
	fatal := g.Wait()

	result := e.reduce(st)
	logger.Infof("[%s] sync %s: trades=%d raw=%d dup=%d pages=%d retries=%d warnings=%d",
		e.adapter.Name(), runID, len(result.Trades), result.Stats.RawTrades,
		result.Stats.Duplicates, result.Stats.Pages, result.Stats.Retries, len(result.Warnings))
	if fatal != nil {
		return result, fatal
	}
	return result, nil
}

func (e *Engine) syncCategory(ctx context.Context, cred exchange.Credential, category string,
	windows []exchange.Window, opts Options, breaker *circuit.Breaker, st *syncState) error {
	for _, w := range windows {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !breaker.Allow() {
			st.warn(category, w, "breaker open — window skipped")
			continue
		}
		if err := e.syncWindow(ctx, cred, category, w, opts, breaker, st); err != nil {
			switch classify.DispositionOf(err) {
			case classify.Abort:
				return err
			case classify.SkipCategory:
				st.skipCategory(category, err)
				return nil
			default:
				// Retries already happened inside the chunk fetch; what is
				// left fails this window only.
				st.failChunk(category, w, err)
			}
		}
		if !sleepWithContext(ctx, opts.ChunkDelay) {
			return ctx.Err()
		}
	}
	return nil
}

func (e *Engine) syncWindow(ctx context.Context, cred exchange.Credential, category string,
	w exchange.Window, opts Options, breaker *circuit.Breaker, st *syncState) error {
	cursor := ""
	for page := 0; ; page++ {
		if page >= opts.MaxPages {
			st.warn(category, w, fmt.Sprintf("page ceiling (%d) reached — pagination abandoned", opts.MaxPages))
			return nil
		}
		req := exchange.PageRequest{
			Category: category,
			Window:   w,
			Cursor:   cursor,
			Symbol:   opts.Symbol,
			Limit:    opts.PageLimit,
		}
		pg, err := e.fetchChunk(ctx, cred, req, opts, breaker, st)
		if err != nil {
			return err
		}
		st.addPage(pg.Trades)
		if pg.NextCursor == "" {
			return nil
		}
		cursor = pg.NextCursor
		if !sleepWithContext(ctx, opts.ChunkDelay) {
			return ctx.Err()
		}
	}
}

// fetchChunk runs one page request with bounded exponential backoff. Retries
// never escape the chunk: an exhausted retry budget surfaces as the last
// error and the caller downgrades it to a chunk warning.
func (e *Engine) fetchChunk(ctx context.Context, cred exchange.Credential, req exchange.PageRequest,
	opts Options, breaker *circuit.Breaker, st *syncState) (exchange.Page, error) {
	delay := retryBaseDelay
	var lastErr error
	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		pg, err := e.adapter.FetchPage(ctx, cred, req)
		if err == nil {
			breaker.RecordSuccess()
			return pg, nil
		}
		lastErr = err

		d := classify.DispositionOf(err)
		if d == classify.Abort || d == classify.SkipCategory {
			return exchange.Page{}, err
		}
		breaker.RecordFailure()
		if d != classify.Retry || attempt == opts.MaxRetries {
			break
		}
		st.addRetry()
		wait := delay
		if ra := classify.RetryAfterOf(err); ra > 0 && ra <= retryMaxDelay {
			wait = ra
		}
		logger.Warnf("[%s] chunk %s %s page retry %d/%d after %s: %v",
			e.adapter.Name(), req.Category, req.Window, attempt+1, opts.MaxRetries, wait, err)
		if !sleepWithContext(ctx, wait) {
			return exchange.Page{}, ctx.Err()
		}
		delay = nextDelay(delay)
	}
	return exchange.Page{}, lastErr
}

func (e *Engine) reduce(st *syncState) Result {
	st.mu.Lock()
	raws := st.raws
	warnings := st.warnings
	stats := st.stats
	st.mu.Unlock()

	normalized := make([]journal.Trade, 0, len(raws))
	for _, raw := range raws {
		tr, err := journal.Normalize(raw, e.adapter.Name())
		if err != nil {
			warnings = append(warnings, Warning{Category: raw.Category,
				Message: fmt.Sprintf("dropped unparseable trade: %v", err)})
			continue
		}
		normalized = append(normalized, tr)
	}
	trades, dupWarnings := journal.Dedup(normalized)
	for _, msg := range dupWarnings {
		warnings = append(warnings, Warning{Message: msg})
	}
	stats.RawTrades = len(raws)
	stats.Duplicates = len(normalized) - len(trades)
	return Result{Trades: trades, Warnings: warnings, Stats: stats}
}

type syncState struct {
	mu       sync.Mutex
	raws     []exchange.RawTrade
	warnings []Warning
	stats    Stats
}

func newSyncState() *syncState {
	return &syncState{}
}

func (s *syncState) addPage(trades []exchange.RawTrade) {
	s.mu.Lock()
	s.raws = append(s.raws, trades...)
	s.stats.Pages++
	s.mu.Unlock()
}

func (s *syncState) addRetry() {
	s.mu.Lock()
	s.stats.Retries++
	s.mu.Unlock()
}

func (s *syncState) warn(category string, w exchange.Window, msg string) {
	s.mu.Lock()
	s.warnings = append(s.warnings, Warning{Category: category, Window: w, Message: msg})
	s.mu.Unlock()
}

func (s *syncState) failChunk(category string, w exchange.Window, err error) {
	s.mu.Lock()
	s.warnings = append(s.warnings, Warning{Category: category, Window: w, Message: err.Error()})
	s.stats.FailedChunks++
	s.mu.Unlock()
}

func (s *syncState) skipCategory(category string, err error) {
	logger.Warnf("category %s skipped: %v", category, err)
	s.mu.Lock()
	s.warnings = append(s.warnings, Warning{Category: category,
		Message: "category skipped: " + classify.Diagnostic(err)})
	s.stats.SkippedCategories++
	s.mu.Unlock()
}

func shortRunID() string {
	id := uuid.NewString()
	return strings.SplitN(id, "-", 2)[0]
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func nextDelay(current time.Duration) time.Duration {
	if current <= 0 {
		return retryBaseDelay
	}
	next := current * 2
	if next > retryMaxDelay {
		next = retryMaxDelay
	}
	return next
}
