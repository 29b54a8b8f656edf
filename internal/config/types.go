package config

// Config is the top-level configuration carrier.
type Config struct {
	App       AppConfig                 `toml:"app"`
	Sync      SyncConfig                `toml:"sync"`
	Store     StoreConfig               `toml:"store"`
	Exchanges map[string]ExchangeConfig `toml:"exchanges"`
}

type AppConfig struct {
	LogLevel string `toml:"log_level"`
	LogPath  string `toml:"log_path"`
}

// SyncConfig tunes the fetch engine. Zero values fall back to engine
// defaults.
type SyncConfig struct {
	SinceDays        int `toml:"since_days"`
	Workers          int `toml:"workers"`
	ChunkDelayMS     int `toml:"chunk_delay_ms"`
	MaxRetries       int `toml:"max_retries"`
	MaxPages         int `toml:"max_pages"`
	PageLimit        int `toml:"page_limit"`
	BreakerThreshold int `toml:"breaker_threshold"`
}

// StoreConfig controls the local journal database.
type StoreConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// ExchangeConfig describes one exchange connection. The request/response
// constants live here so a compatible exchange can be pointed at by data
// instead of code.
type ExchangeConfig struct {
	APIKey         string   `toml:"api_key"`
	APISecret      string   `toml:"api_secret"`
	BaseURL        string   `toml:"base_url"`
	FuturesBaseURL string   `toml:"futures_base_url"`
	RecvWindowMS   int64    `toml:"recv_window_ms"`
	Categories     []string `toml:"categories"`
	MaxWindowHours int      `toml:"max_window_hours"`
	PageSize       int      `toml:"page_size"`
}
