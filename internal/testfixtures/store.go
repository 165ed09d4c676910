package testfixtures

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/example/studymates/internal/persistence"
	"github.com/example/studymates/internal/persistence/gormstore"
)

// StoreHarness provides a migrated SQLite-backed store for integration-style tests.
type StoreHarness struct {
	Store *gormstore.Store

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *StoreHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewStoreHarness opens a temporary SQLite database and applies every migration.
// The harness closes itself through tb.Cleanup.
func NewStoreHarness(tb testing.TB) *StoreHarness {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "studymates.db")
	store, err := gormstore.Open(gormstore.DriverSQLite, fmt.Sprintf("file:%s?_foreign_keys=on", path))
	if err != nil {
		tb.Fatalf("failed to open store: %v", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		_ = store.Close()
		tb.Fatalf("failed to migrate store: %v", err)
	}

	harness := &StoreHarness{
		Store: store,
		cleanup: func() {
			_ = store.Close()
		},
	}

	tb.Cleanup(harness.Close)
	return harness
}

// SeedUsers inserts users or fails the test.
func (h *StoreHarness) SeedUsers(tb testing.TB, users ...persistence.User) {
	tb.Helper()
	for _, u := range users {
		if err := h.Store.Users().CreateUser(context.Background(), u); err != nil {
			tb.Fatalf("failed to seed user %s: %v", u.ID, err)
		}
	}
}

// SeedSession inserts session together with an active membership for each member.
// The participant count is set to the number of members.
func (h *StoreHarness) SeedSession(tb testing.TB, session persistence.Session, members ...string) persistence.Session {
	tb.Helper()

	ctx := context.Background()
	session.CurrentParticipants = len(members)
	if err := h.Store.Sessions().CreateSession(ctx, session); err != nil {
		tb.Fatalf("failed to seed session %s: %v", session.ID, err)
	}
	for _, userID := range members {
		if err := h.Store.Participants().CreateParticipant(ctx, NewParticipant(session.ID, userID)); err != nil {
			tb.Fatalf("failed to seed participant %s: %v", userID, err)
		}
		if err := h.Store.Users().SetCurrentSession(ctx, userID, &session.ID, session.CreatedAt); err != nil {
			tb.Fatalf("failed to point %s at %s: %v", userID, session.ID, err)
		}
	}
	return session
}
