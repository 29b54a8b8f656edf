package bybit

import (
	"strings"
	"time"
)

type Config struct {
	BaseURL     string
	RecvWindow  int64 // milliseconds
	Categories  []string
	MaxWindow   time.Duration
	PageSize    int
	HTTPTimeout time.Duration
	TestTimeout time.Duration
}

func (c *Config) withDefaults() Config {
	out := *c
	out.BaseURL = strings.TrimRight(strings.TrimSpace(out.BaseURL), "/")
	if out.BaseURL == "" {
		out.BaseURL = "https://api.bybit.com"
	}
	if out.RecvWindow <= 0 {
		out.RecvWindow = 5000
	}
	if len(out.Categories) == 0 {
		out.Categories = []string{"spot", "linear", "inverse", "option"}
	}
	if out.MaxWindow <= 0 {
		// The execution endpoint rejects ranges wider than 7 days.
		out.MaxWindow = 7 * 24 * time.Hour
	}
	if out.PageSize <= 0 || out.PageSize > 100 {
		out.PageSize = 100
	}
	if out.HTTPTimeout <= 0 {
		out.HTTPTimeout = 30 * time.Second
	}
	if out.TestTimeout <= 0 {
		out.TestTimeout = 15 * time.Second
	}
	return out
}
