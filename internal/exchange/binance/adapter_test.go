package binance

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"tradesync/internal/exchange"
	"tradesync/internal/exchange/classify"
	"tradesync/internal/exchange/sign"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCred = exchange.Credential{Exchange: "binance", APIKey: "test-key", APISecret: "test-secret"}

func testWindow() exchange.Window {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return exchange.Window{Start: start, End: start.Add(24 * time.Hour)}
}

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	a := New(Config{SpotBaseURL: srv.URL, FuturesBaseURL: srv.URL, PageSize: 2})
	a.SetHTTPClient(srv.Client())
	return a
}

func spotTrade(id int64, at time.Time, buyer bool) trade {
	return trade{
		ID:              id,
		Symbol:          "BTCUSDT",
		Price:           "64000.5",
		Qty:             "0.1",
		Commission:      "0.0001",
		CommissionAsset: "BTC",
		Time:            at.UnixMilli(),
		IsBuyer:         &buyer,
	}
}

func TestFetchPageSignsQueryString(t *testing.T) {
	var captured *http.Request
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		captured = r.Clone(context.Background())
		json.NewEncoder(w).Encode([]trade{})
	})

	_, err := a.FetchPage(context.Background(), testCred, exchange.PageRequest{
		Category: "spot",
		Window:   testWindow(),
		Symbol:   "BTCUSDT",
	})
	require.NoError(t, err)
	require.NotNil(t, captured)

	assert.Equal(t, spotTradesPath, captured.URL.Path)
	assert.Equal(t, "test-key", captured.Header.Get("X-MBX-APIKEY"))

	q := captured.URL.Query()
	gotSig := q.Get("signature")
	require.NotEmpty(t, gotSig)

	// The signature covers the exact query string minus the trailing
	// signature parameter itself.
	raw := captured.URL.RawQuery
	signed := strings.TrimSuffix(raw, "&signature="+gotSig)
	expected, err := sign.Query(testCred.APISecret, signed)
	require.NoError(t, err)
	assert.Equal(t, expected, gotSig)

	assert.Equal(t, "BTCUSDT", q.Get("symbol"))
	assert.Equal(t, "5000", q.Get("recvWindow"))
	assert.NotEmpty(t, q.Get("timestamp"))
	assert.Equal(t, strconv.FormatInt(testWindow().Start.UnixMilli(), 10), q.Get("startTime"))
}

func TestFetchPagePaginatesWithFromID(t *testing.T) {
	w0 := testWindow()
	var fromIDs []string
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		fromIDs = append(fromIDs, r.URL.Query().Get("fromId"))
		json.NewEncoder(w).Encode([]trade{
			spotTrade(10, w0.Start.Add(time.Hour), true),
			spotTrade(11, w0.Start.Add(2*time.Hour), false),
		})
	})

	page, err := a.FetchPage(context.Background(), testCred, exchange.PageRequest{
		Category: "spot",
		Window:   w0,
		Symbol:   "BTCUSDT",
	})
	require.NoError(t, err)
	require.Len(t, page.Trades, 2)
	assert.Equal(t, "buy", page.Trades[0].Side)
	assert.Equal(t, "sell", page.Trades[1].Side)
	// Full page: next cursor advances past the last seen id.
	assert.Equal(t, "12", page.NextCursor)

	_, err = a.FetchPage(context.Background(), testCred, exchange.PageRequest{
		Category: "spot",
		Window:   w0,
		Symbol:   "BTCUSDT",
		Cursor:   page.NextCursor,
	})
	require.NoError(t, err)
	require.Len(t, fromIDs, 2)
	assert.Equal(t, "", fromIDs[0])
	assert.Equal(t, "12", fromIDs[1])
}

func TestFetchPageStopsAtWindowEnd(t *testing.T) {
	w0 := testWindow()
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]trade{
			spotTrade(10, w0.End.Add(-time.Minute), true),
			spotTrade(11, w0.End.Add(time.Minute), true),
		})
	})

	page, err := a.FetchPage(context.Background(), testCred, exchange.PageRequest{
		Category: "spot",
		Window:   w0,
		Symbol:   "BTCUSDT",
		Cursor:   "10",
	})
	require.NoError(t, err)
	require.Len(t, page.Trades, 1)
	assert.Equal(t, "10", page.Trades[0].ExecID)
	assert.Empty(t, page.NextCursor)
}

func TestFetchPageSpotRequiresSymbol(t *testing.T) {
	a := New(Config{})

	_, err := a.FetchPage(context.Background(), testCred, exchange.PageRequest{
		Category: "spot",
		Window:   testWindow(),
	})
	var ce *classify.Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, classify.SkipCategory, ce.Disposition())
}

func TestFetchPageUnknownCategory(t *testing.T) {
	a := New(Config{})

	_, err := a.FetchPage(context.Background(), testCred, exchange.PageRequest{
		Category: "option",
		Window:   testWindow(),
	})
	var ce *classify.Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, classify.SkipCategory, ce.Disposition())
}

func TestFetchPageAuthError(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{"code": -1022, "msg": "Signature for this request is not valid."})
	})

	_, err := a.FetchPage(context.Background(), testCred, exchange.PageRequest{
		Category: "linear",
		Window:   testWindow(),
	})
	var ce *classify.Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, classify.KindAuth, ce.Kind)
	assert.Equal(t, "invalid signature — check API secret", ce.Diagnostic)
}

func TestFuturesSideField(t *testing.T) {
	w0 := testWindow()
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, futuresTradesPath, r.URL.Path)
		json.NewEncoder(w).Encode([]trade{{
			ID: 7, Symbol: "ETHUSDT", Side: "SELL", Price: "3300", Qty: "2",
			Commission: "0.01", CommissionAsset: "USDT", Time: w0.Start.Add(time.Hour).UnixMilli(),
		}})
	})

	page, err := a.FetchPage(context.Background(), testCred, exchange.PageRequest{
		Category: "linear",
		Window:   w0,
	})
	require.NoError(t, err)
	require.Len(t, page.Trades, 1)
	assert.Equal(t, "SELL", page.Trades[0].Side)
	assert.Equal(t, "linear", page.Trades[0].Category)
}

func TestTestConnection(t *testing.T) {
	var path string
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		json.NewEncoder(w).Encode(map[string]any{"accountType": "SPOT"})
	})

	require.NoError(t, a.TestConnection(context.Background(), testCred))
	assert.Equal(t, accountPath, path)
}
