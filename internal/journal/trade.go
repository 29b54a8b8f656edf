// Package journal holds the canonical, exchange-agnostic trade record and
// the normalization step that produces it from raw exchange executions.
package journal

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Trade is the only entity that crosses into the journal store. Uniqueness
// key is (Exchange, TradeID).
type Trade struct {
	Exchange    string
	TradeID     string
	Symbol      string
	Side        Side
	Quantity    decimal.Decimal
	Price       decimal.Decimal
	Fee         decimal.Decimal
	FeeCurrency string
	ExecutedAt  time.Time
	Category    string
}

// Key identifies a trade for deduplication.
type Key struct {
	Exchange string
	TradeID  string
}

func (t Trade) Key() Key {
	return Key{Exchange: t.Exchange, TradeID: t.TradeID}
}

// Store is the collaborator that owns persistence. The sync engine knows
// nothing about its format.
type Store interface {
	// UpsertTrades inserts trades not yet present and returns the number of
	// newly stored records. Existing (exchange, trade id) pairs are left
	// untouched.
	UpsertTrades(ctx context.Context, trades []Trade) (int, error)
	Close() error
}
