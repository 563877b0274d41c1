package sqlite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"rudder/internal/store/model"
	"rudder/internal/trade"
)

// SqliteStore implements trade.Store on gorm + SQLite.
type SqliteStore struct {
	db *gorm.DB
}

// NewSqliteStore opens (or creates) the database at path. ":memory:" is
// accepted for tests.
func NewSqliteStore(path string) (*SqliteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	dsn := "file::memory:?cache=shared"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	}
	// cgo-free driver; the _pragma DSN options above are its syntax.
	db, err := gorm.Open(sqlite.Dialector{DriverName: "sqlite", DSN: dsn}, &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
	})
	if err != nil {
		return nil, err
	}
	return newSqliteStore(db)
}

// NewSqliteStoreFromDB wraps an existing gorm handle (shared connections).
func NewSqliteStoreFromDB(db *gorm.DB) (*SqliteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("gorm db cannot be nil")
	}
	return newSqliteStore(db)
}

func newSqliteStore(db *gorm.DB) (*SqliteStore, error) {
	models := []interface{}{
		&model.GuidedTradeModel{},
		&model.GuidedTradeEventModel{},
	}
	if err := db.AutoMigrate(models...); err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		// SQLite + WAL: a little parallelism for HTTP reads while keeping
		// lock contention low.
		sqlDB.SetMaxOpenConns(2)
		sqlDB.SetMaxIdleConns(2)
	}
	return &SqliteStore{db: db}, nil
}

var _ trade.Store = (*SqliteStore)(nil)

// Begin starts a transaction-scoped unit of work.
func (s *SqliteStore) Begin(ctx context.Context) (trade.UnitOfWork, error) {
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	return &gormUnitOfWork{tx: tx}, nil
}

// Close closes the underlying connection.
func (s *SqliteStore) Close() error {
	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type gormUnitOfWork struct {
	tx   *gorm.DB
	done bool
}

func (u *gormUnitOfWork) Trades() trade.TradeRepository {
	return newTradeRepo(u.tx)
}

func (u *gormUnitOfWork) Events() trade.EventRepository {
	return newEventRepo(u.tx)
}

func (u *gormUnitOfWork) Commit() error {
	if u.done {
		return nil
	}
	u.done = true
	return u.tx.Commit().Error
}

func (u *gormUnitOfWork) Rollback() error {
	if u.done {
		return nil
	}
	u.done = true
	return u.tx.Rollback().Error
}
