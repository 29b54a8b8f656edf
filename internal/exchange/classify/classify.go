// Package classify turns exchange responses into a disposition the sync
// engine can act on: abort the run, skip the category, retry the chunk, or
// fail the chunk with a warning. Codes are matched exactly against
// per-exchange tables; unknown codes conservatively fail the single chunk
// instead of guessing intent from message text.
package classify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Kind is the error taxonomy of the sync engine.
type Kind int

const (
	KindAuth Kind = iota
	KindPermission
	KindRateLimit
	KindNetwork
	KindParse
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindPermission:
		return "permission"
	case KindRateLimit:
		return "rate_limit"
	case KindNetwork:
		return "network"
	case KindParse:
		return "parse"
	case KindUpstream:
		return "upstream"
	default:
		return "unknown"
	}
}

// Disposition tells the orchestrator what to do with a failed chunk.
type Disposition int

const (
	// Abort ends the whole sync; the credentials are categorically broken.
	Abort Disposition = iota
	// SkipCategory abandons the failing category and continues with the rest.
	SkipCategory
	// Retry backs off and retries the same chunk, up to the retry cap.
	Retry
	// FailChunk records a warning for this chunk and moves on.
	FailChunk
)

func (d Disposition) String() string {
	switch d {
	case Abort:
		return "abort"
	case SkipCategory:
		return "skip_category"
	case Retry:
		return "retry"
	case FailChunk:
		return "fail_chunk"
	default:
		return "unknown"
	}
}

// Error is a classified upstream failure.
type Error struct {
	Exchange   string
	Kind       Kind
	Code       int64
	Message    string
	Diagnostic string
	// RetryAfter is the server-requested backoff, when one was sent.
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s: %s error %d: %s", e.Exchange, e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s error: %s", e.Exchange, e.Kind, e.Message)
}

// Disposition maps the error kind onto the action contract: auth failures
// abort, permission failures skip their category, rate-limit and network
// failures retry, everything else fails the single chunk.
func (e *Error) Disposition() Disposition {
	switch e.Kind {
	case KindAuth:
		return Abort
	case KindPermission:
		return SkipCategory
	case KindRateLimit, KindNetwork:
		return Retry
	default:
		return FailChunk
	}
}

// DispositionOf resolves any error from an adapter call. Unclassified errors
// are treated as transient network failures; cancellation always aborts.
func DispositionOf(err error) Disposition {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Abort
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Disposition()
	}
	return Retry
}

// Diagnostic renders the user-actionable message for connection tests.
func Diagnostic(err error) string {
	if err == nil {
		return "connection ok"
	}
	var ce *Error
	if errors.As(err, &ce) && ce.Diagnostic != "" {
		return ce.Diagnostic
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "request timed out — exchange unreachable or network blocked"
	}
	return "transient failure — " + err.Error()
}

// Rules holds the exact code tables for one exchange. Values are the
// user-actionable diagnostics surfaced by connection tests.
type Rules struct {
	Exchange   string
	Auth       map[int64]string
	Permission map[int64]string
	RateLimit  map[int64]string
	Transient  map[int64]string
}

const payloadSample = 256

// FromResponse inspects an HTTP status plus response body and returns nil
// when the call succeeded, or a classified *Error otherwise. Bodies are
// probed for the common envelope variants (retCode/ret_code/code,
// retMsg/ret_msg/msg) rather than committing to one schema.
func (r Rules) FromResponse(status int, body []byte) error {
	code, msg, hasCode := probeEnvelope(body)

	switch status {
	case http.StatusTooManyRequests, http.StatusTeapot:
		return r.newError(KindRateLimit, code, firstNonEmpty(msg, "rate limited"),
			"rate limited by exchange — reduce sync frequency")
	}
	if status >= http.StatusInternalServerError {
		return r.newError(KindNetwork, code, firstNonEmpty(msg, http.StatusText(status)),
			"exchange service unavailable — try again later")
	}

	if len(body) > 0 && !gjson.ValidBytes(body) {
		return r.newError(KindParse, 0, "malformed response body: "+truncate(body, payloadSample), "")
	}

	if hasCode && code != 0 {
		return r.classifyCode(code, msg)
	}

	if status >= http.StatusBadRequest {
		switch status {
		case http.StatusUnauthorized:
			return r.newError(KindAuth, code, firstNonEmpty(msg, "unauthorized"),
				"authentication rejected — check API key")
		case http.StatusForbidden:
			return r.newError(KindPermission, code, firstNonEmpty(msg, "forbidden"),
				"access forbidden — check API key permissions and IP whitelist")
		default:
			return r.newError(KindUpstream, code, firstNonEmpty(msg, http.StatusText(status)), "")
		}
	}
	return nil
}

func (r Rules) classifyCode(code int64, msg string) error {
	if diag, ok := r.Auth[code]; ok {
		return r.newError(KindAuth, code, msg, diag)
	}
	if diag, ok := r.Permission[code]; ok {
		return r.newError(KindPermission, code, msg, diag)
	}
	if diag, ok := r.RateLimit[code]; ok {
		return r.newError(KindRateLimit, code, msg, diag)
	}
	if diag, ok := r.Transient[code]; ok {
		return r.newError(KindNetwork, code, msg, diag)
	}
	// Unknown code: fail this chunk only, do not guess from message text.
	return r.newError(KindUpstream, code, msg, "")
}

func (r Rules) newError(kind Kind, code int64, msg, diag string) *Error {
	return &Error{Exchange: r.Exchange, Kind: kind, Code: code, Message: msg, Diagnostic: diag}
}

// ApplyRetryAfter copies the Retry-After header (seconds form) onto a
// classified error, so the retry loop can honor the server's requested
// backoff instead of its own schedule.
func ApplyRetryAfter(err error, header http.Header) error {
	if err == nil {
		return nil
	}
	raw := strings.TrimSpace(header.Get("Retry-After"))
	if raw == "" {
		return err
	}
	secs, parseErr := strconv.Atoi(raw)
	if parseErr != nil || secs <= 0 {
		return err
	}
	var ce *Error
	if errors.As(err, &ce) {
		ce.RetryAfter = time.Duration(secs) * time.Second
	}
	return err
}

// RetryAfterOf returns the server-requested backoff carried by err, or zero.
func RetryAfterOf(err error) time.Duration {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.RetryAfter
	}
	return 0
}

// CategoryUnsupported marks a category the account or adapter cannot serve;
// the orchestrator skips it and keeps the warning.
func CategoryUnsupported(exchange, msg string) *Error {
	return &Error{Exchange: exchange, Kind: KindPermission, Message: msg, Diagnostic: msg}
}

// NetworkError wraps a transport-level failure (dial, TLS, timeout) so it
// carries the same taxonomy as classified upstream responses.
func NetworkError(exchange string, err error) *Error {
	return &Error{Exchange: exchange, Kind: KindNetwork, Message: err.Error(),
		Diagnostic: "network failure — check connectivity and exchange status"}
}

// ParseError wraps a decode failure, keeping a truncated payload sample for
// diagnosis.
func ParseError(exchange string, body []byte, err error) *Error {
	return &Error{Exchange: exchange, Kind: KindParse,
		Message: fmt.Sprintf("%v (payload: %s)", err, truncate(body, payloadSample))}
}

func probeEnvelope(body []byte) (code int64, msg string, hasCode bool) {
	if len(body) == 0 {
		return 0, "", false
	}
	for _, path := range []string{"retCode", "ret_code", "code"} {
		if v := gjson.GetBytes(body, path); v.Exists() {
			code = v.Int()
			hasCode = true
			break
		}
	}
	for _, path := range []string{"retMsg", "ret_msg", "msg", "message"} {
		if v := gjson.GetBytes(body, path); v.Exists() {
			msg = v.String()
			break
		}
	}
	return code, msg, hasCode
}

func truncate(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
