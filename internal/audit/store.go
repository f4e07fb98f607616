// Package audit persists every engine decision to sqlite so a session can be
// reconstructed after the fact: entries placed and cancelled, positions
// opened and closed with their reasons, and every guardrail skip.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	applog "limitless/internal/logger"
)

type Store struct {
	db *gorm.DB
}

func NewStore(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("audit database path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	return NewStoreFromDB(db)
}

func NewStoreFromDB(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("gorm db cannot be nil")
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(2)
		sqlDB.SetMaxIdleConns(2)
	}
	return &Store{db: db}, nil
}

// Log appends one durable audit row. The payload is marshalled to JSON; a
// marshal or insert failure is logged and swallowed so auditing can never
// fail the trading decision it describes.
func (s *Store) Log(event, symbol string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		applog.Warnf("audit: marshal %s payload: %v", event, err)
		data = []byte("{}")
	}
	rec := Record{
		Event:     event,
		Symbol:    symbol,
		Payload:   datatypes.JSON(data),
		Timestamp: time.Now().UnixMilli(),
	}
	if err := s.db.Create(&rec).Error; err != nil {
		applog.Warnf("audit: insert %s: %v", event, err)
	}
}

// Recent returns the newest rows, most recent first.
func (s *Store) Recent(limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []Record
	err := s.db.Order("timestamp DESC, id DESC").Limit(limit).Find(&out).Error
	return out, err
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
