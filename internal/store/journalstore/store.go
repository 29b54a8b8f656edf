// Package journalstore persists canonical trades into a local SQLite
// database. It implements journal.Store; the sync engine itself never
// touches it.
package journalstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tradesync/internal/journal"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

type tradeModel struct {
	ID          int64  `gorm:"column:id;primaryKey"`
	ExchangeID  string `gorm:"column:exchange_id;uniqueIndex:idx_exchange_trade"`
	TradeID     string `gorm:"column:trade_id;uniqueIndex:idx_exchange_trade"`
	Symbol      string `gorm:"column:symbol;index"`
	Side        string `gorm:"column:side"`
	Category    string `gorm:"column:category"`
	Quantity    string `gorm:"column:quantity"`
	Price       string `gorm:"column:price"`
	Fee         string `gorm:"column:fee"`
	FeeCurrency string `gorm:"column:fee_currency"`
	ExecutedAt  int64  `gorm:"column:executed_at;index"`
	CreatedAt   int64  `gorm:"column:created_at"`
}

func (tradeModel) TableName() string { return "journal_trades" }

// Store implements journal.Store on Gorm + SQLite.
type Store struct {
	db *gorm.DB
}

var _ journal.Store = (*Store)(nil)

func New(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("journal store: path cannot be empty")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&tradeModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: keep the connection count tiny to avoid lock contention.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &Store{db: db}, nil
}

// UpsertTrades inserts trades not yet present, keyed by
// (exchange_id, trade_id). Existing rows are left untouched; the number of
// newly inserted rows is returned.
func (s *Store) UpsertTrades(ctx context.Context, trades []journal.Trade) (int, error) {
	if len(trades) == 0 {
		return 0, nil
	}
	now := time.Now().Unix()
	models := make([]tradeModel, 0, len(trades))
	for _, t := range trades {
		models = append(models, tradeModel{
			ExchangeID:  t.Exchange,
			TradeID:     t.TradeID,
			Symbol:      t.Symbol,
			Side:        string(t.Side),
			Category:    t.Category,
			Quantity:    t.Quantity.String(),
			Price:       t.Price.String(),
			Fee:         t.Fee.String(),
			FeeCurrency: t.FeeCurrency,
			ExecutedAt:  t.ExecutedAt.UnixMilli(),
			CreatedAt:   now,
		})
	}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "exchange_id"}, {Name: "trade_id"}},
			DoNothing: true,
		}).
		CreateInBatches(models, 200)
	if res.Error != nil {
		return 0, fmt.Errorf("journal store: upsert failed: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

// CountTrades returns the total number of stored trades.
func (s *Store) CountTrades(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&tradeModel{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
