// Package gormstore implements the persistence repositories on GORM. PostgreSQL is the
// production dialect; SQLite backs local runs and tests.
package gormstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/example/studymates/internal/persistence"
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Store is a persistence.Store backed by a *gorm.DB. A Store returned from WithinTx
// is bound to the open transaction.
type Store struct {
	db *gorm.DB
}

var _ persistence.Store = (*Store)(nil)

// Open connects to the database identified by driver and dsn.
func Open(driver, dsn string) (*Store, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverPostgres, "postgresql":
		dialector = postgres.Open(dsn)
	case DriverSQLite, "sqlite3":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("gormstore: unsupported driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("gormstore: open %s: %w", driver, err)
	}

	if dialector.Name() == DriverSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("gormstore: sqlite pool: %w", err)
		}
		// SQLite allows a single writer; one connection avoids SQLITE_BUSY between transactions.
		sqlDB.SetMaxOpenConns(1)
	}

	return &Store{db: db}, nil
}

// New wraps an existing connection.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for migrations and diagnostics.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Users returns the user repository.
func (s *Store) Users() persistence.UserRepository { return userRepository{db: s.db} }

// Sessions returns the session repository.
func (s *Store) Sessions() persistence.SessionRepository { return sessionRepository{db: s.db} }

// Participants returns the participant repository.
func (s *Store) Participants() persistence.ParticipantRepository {
	return participantRepository{db: s.db}
}

// JoinRequests returns the join request repository.
func (s *Store) JoinRequests() persistence.JoinRequestRepository {
	return joinRequestRepository{db: s.db}
}

// WithinTx runs fn inside a database transaction. Nested calls use savepoints.
func (s *Store) WithinTx(ctx context.Context, fn func(tx persistence.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}
