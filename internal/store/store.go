// Package store persists historical bars and serves partial-range reads for
// the durable-store stage of the resolution chain.
package store

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tradeview/marketdata/internal/marketdata"
)

// BarRecord is one durably stored bar, keyed (symbol, timeframe, timestamp)
// so concurrent upserts of the same bar stay idempotent.
type BarRecord struct {
	Symbol    string    `gorm:"primaryKey;size:32"`
	Timeframe string    `gorm:"primaryKey;size:8"`
	Timestamp time.Time `gorm:"primaryKey"`
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// TableName keeps the table name stable regardless of struct renames.
func (BarRecord) TableName() string { return "bars" }

// Store wraps the bar table.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open opens (or creates) the sqlite database at path and migrates the
// bars table.
func Open(path string, logger *zap.Logger) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, marketdata.SourceUnavailable(marketdata.ErrStoreUnavailable, err)
	}
	if err := db.AutoMigrate(&BarRecord{}); err != nil {
		return nil, marketdata.SourceUnavailable(marketdata.ErrStoreUnavailable, err)
	}
	return &Store{db: db, logger: logger}, nil
}

// FetchStored returns up to limit bars for (symbol, timeframe), oldest
// first. Shorter-than-requested results are normal; connectivity problems
// surface as ErrStoreUnavailable, which the resolver treats as "no data".
func (s *Store) FetchStored(ctx context.Context, symbol string, tf marketdata.Timeframe, limit int) ([]marketdata.Bar, error) {
	var records []BarRecord
	err := s.db.WithContext(ctx).
		Where("symbol = ? AND timeframe = ?", marketdata.NormalizeSymbol(symbol), string(tf)).
		Order("timestamp DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, marketdata.SourceUnavailable(marketdata.ErrStoreUnavailable, err)
	}

	bars := make([]marketdata.Bar, 0, len(records))
	for _, r := range records {
		bars = append(bars, marketdata.Bar{
			Timestamp: r.Timestamp,
			Open:      r.Open,
			High:      r.High,
			Low:       r.Low,
			Close:     r.Close,
			Volume:    r.Volume,
		})
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
	return bars, nil
}

// StoreBars upserts bars for (symbol, timeframe). Re-storing an identical
// bar updates it in place rather than duplicating rows.
func (s *Store) StoreBars(ctx context.Context, symbol string, tf marketdata.Timeframe, bars []marketdata.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	records := make([]BarRecord, 0, len(bars))
	for _, b := range bars {
		records = append(records, BarRecord{
			Symbol:    marketdata.NormalizeSymbol(symbol),
			Timeframe: string(tf),
			Timestamp: b.Timestamp,
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		})
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}, {Name: "timeframe"}, {Name: "timestamp"}},
		UpdateAll: true,
	}).Create(&records).Error
	if err != nil {
		return marketdata.SourceUnavailable(marketdata.ErrStoreUnavailable, err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
