// Package gormstore persists the audit artifacts of the execution core,
// archived terminal orders and reported position breaks, in SQLite
// through gorm.
package gormstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"stacker/internal/handlers"
	"stacker/internal/orders"
	"stacker/internal/store/model"
)

type Store struct {
	db *gorm.DB
}

func New(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("archive store path cannot be empty")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	return NewFromDB(db)
}

func NewFromDB(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("gorm db cannot be nil")
	}
	if err := db.AutoMigrate(&model.ArchivedOrderModel{}, &model.PositionBreakModel{}); err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(2)
		sqlDB.SetMaxIdleConns(2)
	}
	return &Store{db: db}, nil
}

// ArchiveOrder upserts one terminal order. Re-archival of the same order
// id overwrites, so a failed sweep can repeat safely.
func (s *Store) ArchiveOrder(ctx context.Context, o *orders.Order) error {
	if o == nil {
		return fmt.Errorf("nil order")
	}
	children, err := json.Marshal(o.ChildrenIDs)
	if err != nil {
		return err
	}
	row := model.ArchivedOrderModel{
		OrderID:       o.ID,
		Level:         string(o.Level),
		Instrument:    o.Key.Instrument,
		Contract:      o.Key.Contract,
		Account:       o.Key.Account,
		OrderType:     string(o.Type),
		Subtype:       string(o.Subtype),
		Trade:         o.Trade.String(),
		Fill:          o.Fill.String(),
		State:         string(o.State),
		ParentID:      o.ParentID,
		Children:      children,
		BrokerOrderID: o.BrokerOrderID,
		PlacedAt:      o.CreatedAt,
		FinishedAt:    o.ModifiedAt,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "order_id"}},
		UpdateAll: true,
	}).Create(&row).Error
}

// RecordBreak implements handlers.BreakSink.
func (s *Store) RecordBreak(ctx context.Context, b handlers.PositionBreak) error {
	row := model.PositionBreakModel{
		Instrument: b.Key.Instrument,
		Contract:   b.Key.Contract,
		Account:    b.Key.Account,
		Stacked:    b.Stacked.String(),
		Reported:   b.Reported.String(),
		DetectedAt: b.DetectedAt,
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// ListArchivedOrders returns up to limit archived orders, newest first.
func (s *Store) ListArchivedOrders(ctx context.Context, limit int) ([]model.ArchivedOrderModel, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []model.ArchivedOrderModel
	err := s.db.WithContext(ctx).Order("archived_at DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

// ListBreaks returns up to limit recorded breaks, newest first.
func (s *Store) ListBreaks(ctx context.Context, limit int) ([]model.PositionBreakModel, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []model.PositionBreakModel
	err := s.db.WithContext(ctx).Order("detected_at DESC").Limit(limit).Find(&rows).Error
	return rows, err
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
