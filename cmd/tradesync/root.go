package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tradesync/internal/config"
	"tradesync/internal/exchange"
	"tradesync/internal/exchange/binance"
	"tradesync/internal/exchange/bybit"
	"tradesync/internal/logger"

	"github.com/spf13/cobra"
)

var (
	cfgPath  string
	logLevel string
	cfg      *config.Config
	logFile  *os.File
)

var rootCmd = &cobra.Command{
	Use:   "tradesync",
	Short: "Pull trade execution history from exchanges into a trading journal",
	Long: `Tradesync fetches a user's historical trade executions directly from
cryptocurrency exchange REST APIs using signed private requests, normalizes
them into canonical journal trades and optionally stores them in a local
SQLite journal database.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		loaded, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		cfg = loaded
		if logLevel != "" {
			cfg.App.LogLevel = logLevel
		}
		logger.SetLevel(cfg.App.LogLevel)
		return setupLogOutput(cfg.App.LogPath)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logFile != nil {
			logFile.Close()
		}
	},
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "configs/config.yaml", "path to config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override configured log level")
}

func setupLogOutput(path string) error {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil
	}
	dir := filepath.Dir(trimmed)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	logFile = file
	logger.SetOutput(io.MultiWriter(os.Stdout, file))
	return nil
}

// buildAdapter wires one configured exchange into its adapter plus the
// per-call credential. Credentials never outlive the command.
func buildAdapter(name string) (exchange.Adapter, exchange.Credential, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	ex, ok := cfg.Exchanges[name]
	if !ok {
		return nil, exchange.Credential{}, fmt.Errorf("exchange %q is not configured", name)
	}
	cred := exchange.Credential{Exchange: name, APIKey: ex.APIKey, APISecret: ex.APISecret}
	maxWindow := time.Duration(ex.MaxWindowHours) * time.Hour

	switch name {
	case "bybit":
		return bybit.New(bybit.Config{
			BaseURL:    ex.BaseURL,
			RecvWindow: ex.RecvWindowMS,
			Categories: ex.Categories,
			MaxWindow:  maxWindow,
			PageSize:   ex.PageSize,
		}), cred, nil
	case "binance":
		return binance.New(binance.Config{
			SpotBaseURL:    ex.BaseURL,
			FuturesBaseURL: ex.FuturesBaseURL,
			RecvWindow:     ex.RecvWindowMS,
			Categories:     ex.Categories,
			MaxWindow:      maxWindow,
			PageSize:       ex.PageSize,
		}), cred, nil
	default:
		return nil, exchange.Credential{}, fmt.Errorf("no adapter for exchange %q", name)
	}
}
