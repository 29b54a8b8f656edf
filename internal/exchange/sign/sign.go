// Package sign produces the HMAC-SHA256 request signatures the private
// exchange endpoints require. Both schemes in use are covered: the
// header-auth payload (timestamp + key + recvWindow + query) and the plain
// signed-query-string variant.
package sign

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"strconv"
)

// ErrEmptySecret is returned instead of silently signing with an empty key.
var ErrEmptySecret = errors.New("sign: empty api secret")

// Canonical encodes params sorted alphabetically by key, joined as
// key=value pairs with "&". The exact string signed must be the exact
// string sent, so adapters build their queries through this too.
func Canonical(params url.Values) string {
	if len(params) == 0 {
		return ""
	}
	return params.Encode()
}

// HeaderPayload signs timestamp + apiKey + recvWindow + query for exchanges
// that carry auth in request headers. query may be empty. timestamp and
// recvWindow are milliseconds.
func HeaderPayload(secret, apiKey string, timestamp int64, recvWindow int64, query string) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}
	payload := strconv.FormatInt(timestamp, 10) + apiKey + strconv.FormatInt(recvWindow, 10) + query
	return digest(secret, payload), nil
}

// Query signs the canonical query string alone, for exchanges that expect
// the signature appended as a query parameter.
func Query(secret, query string) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}
	return digest(secret, query), nil
}

func digest(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
