package binance

import (
	"strings"
	"time"
)

type Config struct {
	SpotBaseURL    string
	FuturesBaseURL string
	RecvWindow     int64 // milliseconds
	Categories     []string
	MaxWindow      time.Duration
	PageSize       int
	HTTPTimeout    time.Duration
	TestTimeout    time.Duration
}

func (c *Config) withDefaults() Config {
	out := *c
	out.SpotBaseURL = strings.TrimRight(strings.TrimSpace(out.SpotBaseURL), "/")
	if out.SpotBaseURL == "" {
		out.SpotBaseURL = "https://api.binance.com"
	}
	out.FuturesBaseURL = strings.TrimRight(strings.TrimSpace(out.FuturesBaseURL), "/")
	if out.FuturesBaseURL == "" {
		out.FuturesBaseURL = "https://fapi.binance.com"
	}
	if out.RecvWindow <= 0 {
		out.RecvWindow = 5000
	}
	if len(out.Categories) == 0 {
		out.Categories = []string{"spot", "linear"}
	}
	if out.MaxWindow <= 0 {
		// Spot myTrades rejects startTime/endTime spans over 24 hours.
		out.MaxWindow = 24 * time.Hour
	}
	if out.PageSize <= 0 || out.PageSize > 1000 {
		out.PageSize = 1000
	}
	if out.HTTPTimeout <= 0 {
		out.HTTPTimeout = 30 * time.Second
	}
	if out.TestTimeout <= 0 {
		out.TestTimeout = 15 * time.Second
	}
	return out
}
