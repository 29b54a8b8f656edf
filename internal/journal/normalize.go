package journal

import (
	"fmt"
	"sort"
	"strings"

	"tradesync/internal/exchange"

	"github.com/shopspring/decimal"
)

// Normalize maps one raw execution into the canonical model. Money fields
// are parsed as decimals; a raw trade that cannot be represented faithfully
// is rejected rather than silently zeroed.
func Normalize(raw exchange.RawTrade, exchangeID string) (Trade, error) {
	execID := strings.TrimSpace(raw.ExecID)
	if execID == "" {
		return Trade{}, fmt.Errorf("raw trade missing execution id")
	}
	symbol := strings.TrimSpace(raw.Symbol)
	if symbol == "" {
		return Trade{}, fmt.Errorf("raw trade %s missing symbol", execID)
	}
	side, err := parseSide(raw.Side)
	if err != nil {
		return Trade{}, fmt.Errorf("raw trade %s: %w", execID, err)
	}
	if raw.ExecTime.IsZero() {
		return Trade{}, fmt.Errorf("raw trade %s missing execution time", execID)
	}
	qty, err := parseAmount(raw.Qty, "quantity")
	if err != nil {
		return Trade{}, fmt.Errorf("raw trade %s: %w", execID, err)
	}
	price, err := parseAmount(raw.Price, "price")
	if err != nil {
		return Trade{}, fmt.Errorf("raw trade %s: %w", execID, err)
	}
	fee := decimal.Zero
	if strings.TrimSpace(raw.Fee) != "" {
		fee, err = parseAmount(raw.Fee, "fee")
		if err != nil {
			return Trade{}, fmt.Errorf("raw trade %s: %w", execID, err)
		}
	}
	return Trade{
		Exchange:    exchangeID,
		TradeID:     execID,
		Symbol:      symbol,
		Side:        side,
		Quantity:    qty,
		Price:       price,
		Fee:         fee,
		FeeCurrency: strings.ToUpper(strings.TrimSpace(raw.FeeCurrency)),
		ExecutedAt:  raw.ExecTime.UTC(),
		Category:    strings.TrimSpace(raw.Category),
	}, nil
}

func parseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy", "b":
		return SideBuy, nil
	case "sell", "s":
		return SideSell, nil
	default:
		return "", fmt.Errorf("unknown side %q", s)
	}
}

func parseAmount(s, field string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q", field, s)
	}
	return d, nil
}

// Dedup collapses trades sharing a (exchange, trade id) key, first seen
// wins, and returns the survivors sorted ascending by execution time with
// trade id as the tie breaker. Duplicates whose payloads differ are a data
// integrity signal upstream, so each produces a warning.
func Dedup(trades []Trade) ([]Trade, []string) {
	seen := make(map[Key]Trade, len(trades))
	out := make([]Trade, 0, len(trades))
	var warnings []string
	for _, t := range trades {
		key := t.Key()
		if prior, dup := seen[key]; dup {
			if !samePayload(prior, t) {
				warnings = append(warnings, fmt.Sprintf(
					"duplicate trade %s/%s has conflicting payloads (categories %s vs %s); kept first",
					key.Exchange, key.TradeID, prior.Category, t.Category))
			}
			continue
		}
		seen[key] = t
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].ExecutedAt.Equal(out[j].ExecutedAt) {
			return out[i].ExecutedAt.Before(out[j].ExecutedAt)
		}
		return out[i].TradeID < out[j].TradeID
	})
	return out, warnings
}

func samePayload(a, b Trade) bool {
	return a.Symbol == b.Symbol &&
		a.Side == b.Side &&
		a.Quantity.Equal(b.Quantity) &&
		a.Price.Equal(b.Price) &&
		a.Fee.Equal(b.Fee) &&
		a.FeeCurrency == b.FeeCurrency &&
		a.ExecutedAt.Equal(b.ExecutedAt)
}
