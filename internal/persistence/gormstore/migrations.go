package gormstore

import (
	"context"
	"fmt"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// Migrations returns the ordered schema history.
func Migrations() []*gormigrate.Migration {
	return []*gormigrate.Migration{
		{
			ID: "20250901_create_core_tables",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&userRow{}, &sessionRow{}, &participantRow{}, &joinRequestRow{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("join_requests", "session_participants", "study_sessions", "users")
			},
		},
		{
			// Partial unique indexes: one active membership per (session, user) and one
			// pending request per (session, requester).
			ID: "20250908_membership_unique_indexes",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS ux_session_participants_active
					ON session_participants (session_id, user_id) WHERE status = 'active'`).Error; err != nil {
					return err
				}
				return tx.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS ux_join_requests_pending
					ON join_requests (session_id, requester_id) WHERE status = 'pending'`).Error
			},
			Rollback: func(tx *gorm.DB) error {
				if err := tx.Exec(`DROP INDEX IF EXISTS ux_join_requests_pending`).Error; err != nil {
					return err
				}
				return tx.Exec(`DROP INDEX IF EXISTS ux_session_participants_active`).Error
			},
		},
	}
}

// Migrate applies every pending migration.
func (s *Store) Migrate(ctx context.Context) error {
	m := gormigrate.New(s.db.WithContext(ctx), gormigrate.DefaultOptions, Migrations())
	if err := m.Migrate(); err != nil {
		return fmt.Errorf("gormstore: migrate: %w", err)
	}
	return nil
}

// RollbackLast undoes the most recent migration.
func (s *Store) RollbackLast(ctx context.Context) error {
	m := gormigrate.New(s.db.WithContext(ctx), gormigrate.DefaultOptions, Migrations())
	if err := m.RollbackLast(); err != nil {
		return fmt.Errorf("gormstore: rollback: %w", err)
	}
	return nil
}
