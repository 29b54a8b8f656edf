// Package exchange defines the contract every exchange adapter implements:
// credentials, the raw execution shape, and paged history fetching. Adapters
// own wire formats and signing; everything above them works on these types.
package exchange

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Credential is supplied per call by the caller's secret store. It is never
// persisted or mutated by the sync engine.
type Credential struct {
	Exchange  string
	APIKey    string
	APISecret string
}

// Validate rejects credentials that could never authenticate.
func (c Credential) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("exchange %s: api key is empty", c.Exchange)
	}
	if strings.TrimSpace(c.APISecret) == "" {
		return fmt.Errorf("exchange %s: api secret is empty", c.Exchange)
	}
	return nil
}

// Fingerprint renders a log-safe identifier for the key. Never log the key
// itself, and never the secret in any form.
func (c Credential) Fingerprint() string {
	key := strings.TrimSpace(c.APIKey)
	if len(key) <= 4 {
		return "****"
	}
	return key[:4] + "…"
}

// Window is one bounded [Start, End) slice of a sync range.
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

func (w Window) String() string {
	return fmt.Sprintf("[%s, %s)", w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
}

// RawTrade is the exchange-native execution record. Money fields stay strings
// until normalization so adapters never round.
type RawTrade struct {
	ExecID      string
	Symbol      string
	Side        string
	Category    string
	Qty         string
	Price       string
	Fee         string
	FeeCurrency string
	ExecTime    time.Time
}

// PageRequest identifies one chunk: a category and window plus the pagination
// cursor returned by the previous page. Symbol is an optional filter; some
// endpoints require it and adapters say so by failing the category.
type PageRequest struct {
	Category string
	Window   Window
	Cursor   string
	Symbol   string
	Limit    int
}

// Page is one fetched chunk. An empty NextCursor ends pagination for the
// enclosing window.
type Page struct {
	Trades     []RawTrade
	NextCursor string
}

// Adapter is implemented once per exchange.
type Adapter interface {
	// Name returns the canonical exchange id, e.g. "bybit".
	Name() string
	// Categories lists the market segments that must be queried separately.
	Categories() []string
	// MaxWindow is the widest [since, until) slice one request may cover.
	// Zero or negative means the exchange accepts unbounded ranges.
	MaxWindow() time.Duration
	// FetchPage performs one signed request. Errors carry classification
	// (see the classify package) so the orchestrator can decide disposition.
	FetchPage(ctx context.Context, cred Credential, req PageRequest) (Page, error)
	// TestConnection issues one lightweight authenticated call.
	TestConnection(ctx context.Context, cred Credential) error
}
