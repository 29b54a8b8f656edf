package classify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRules() Rules {
	return Rules{
		Exchange: "bybit",
		Auth: map[int64]string{
			10003: "invalid API key — check API key",
			10004: "invalid signature — check API secret",
		},
		Permission: map[int64]string{
			10005: "API key missing read permission for this data",
			10010: "request IP is not whitelisted for this API key",
		},
		RateLimit: map[int64]string{
			10006: "rate limited by exchange — reduce sync frequency",
		},
		Transient: map[int64]string{
			10016: "exchange service error — try again later",
		},
	}
}

func TestFromResponseSuccess(t *testing.T) {
	rules := testRules()

	assert.NoError(t, rules.FromResponse(200, []byte(`{"retCode":0,"retMsg":"OK","result":{}}`)))
	assert.NoError(t, rules.FromResponse(200, []byte(`[{"id":1}]`)))
	assert.NoError(t, rules.FromResponse(200, nil))
}

func TestInvalidSignatureAborts(t *testing.T) {
	rules := testRules()

	err := rules.FromResponse(200, []byte(`{"retCode":10004,"retMsg":"error sign!"}`))
	require.Error(t, err)

	var ce *Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, KindAuth, ce.Kind)
	assert.Equal(t, int64(10004), ce.Code)
	assert.Equal(t, Abort, ce.Disposition())
	assert.Equal(t, "invalid signature — check API secret", Diagnostic(err))
}

func TestPermissionSkipsCategory(t *testing.T) {
	rules := testRules()

	err := rules.FromResponse(200, []byte(`{"retCode":10005,"retMsg":"Permission denied"}`))
	var ce *Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, KindPermission, ce.Kind)
	assert.Equal(t, SkipCategory, ce.Disposition())
}

func TestRateLimitRetries(t *testing.T) {
	rules := testRules()

	byCode := rules.FromResponse(200, []byte(`{"retCode":10006,"retMsg":"Too many visits"}`))
	assert.Equal(t, Retry, DispositionOf(byCode))

	byStatus := rules.FromResponse(429, []byte(`{}`))
	var ce *Error
	require.ErrorAs(t, byStatus, &ce)
	assert.Equal(t, KindRateLimit, ce.Kind)
}

func TestServerErrorRetries(t *testing.T) {
	rules := testRules()

	err := rules.FromResponse(503, nil)
	var ce *Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, KindNetwork, ce.Kind)
	assert.Equal(t, Retry, ce.Disposition())
}

func TestUnknownCodeFailsChunkOnly(t *testing.T) {
	rules := testRules()

	err := rules.FromResponse(200, []byte(`{"retCode":99999,"retMsg":"mystery"}`))
	var ce *Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, KindUpstream, ce.Kind)
	assert.Equal(t, FailChunk, ce.Disposition())
}

func TestMalformedBodyIsParseFailure(t *testing.T) {
	rules := testRules()

	err := rules.FromResponse(200, []byte(`<html>gateway timeout`))
	var ce *Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, KindParse, ce.Kind)
	assert.Equal(t, FailChunk, ce.Disposition())
	assert.Contains(t, ce.Message, "gateway timeout")
}

func TestEnvelopeVariants(t *testing.T) {
	rules := Rules{Exchange: "binance", Auth: map[int64]string{-1022: "invalid signature — check API secret"}}

	err := rules.FromResponse(400, []byte(`{"code":-1022,"msg":"Signature for this request is not valid."}`))
	var ce *Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, KindAuth, ce.Kind)
	assert.Equal(t, int64(-1022), ce.Code)
}

func TestBareHTTPStatusFallbacks(t *testing.T) {
	rules := Rules{Exchange: "x"}

	var ce *Error
	require.ErrorAs(t, rules.FromResponse(401, nil), &ce)
	assert.Equal(t, KindAuth, ce.Kind)

	require.ErrorAs(t, rules.FromResponse(403, nil), &ce)
	assert.Equal(t, KindPermission, ce.Kind)

	require.ErrorAs(t, rules.FromResponse(404, nil), &ce)
	assert.Equal(t, KindUpstream, ce.Kind)
}

func TestRetryAfterHeader(t *testing.T) {
	rules := testRules()
	header := http.Header{"Retry-After": []string{"7"}}

	err := ApplyRetryAfter(rules.FromResponse(429, nil), header)
	assert.Equal(t, 7*time.Second, RetryAfterOf(err))

	// Absent or unparseable headers leave the error untouched.
	plain := ApplyRetryAfter(rules.FromResponse(429, nil), http.Header{})
	assert.Zero(t, RetryAfterOf(plain))
	dated := ApplyRetryAfter(rules.FromResponse(429, nil), http.Header{"Retry-After": []string{"Wed, 21 Oct 2026 07:28:00 GMT"}})
	assert.Zero(t, RetryAfterOf(dated))

	assert.NoError(t, ApplyRetryAfter(nil, header))
	assert.Zero(t, RetryAfterOf(errors.New("plain")))
}

func TestDispositionOfPlainErrors(t *testing.T) {
	assert.Equal(t, Retry, DispositionOf(errors.New("dial tcp: connection refused")))
	assert.Equal(t, Abort, DispositionOf(context.Canceled))
	assert.Equal(t, Abort, DispositionOf(fmt.Errorf("fetch: %w", context.DeadlineExceeded)))
}
