package persistence

import (
	"context"
	"time"
)

// UserRepository stores student profiles and their current-session pointer.
type UserRepository interface {
	CreateUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, id string) (User, error)
	UpdateUser(ctx context.Context, user User) error
	SetCurrentSession(ctx context.Context, userID string, sessionID *string, at time.Time) error
}

// SessionFilter narrows session listings. Zero values match everything.
type SessionFilter struct {
	Statuses  []string
	CreatorID string
}

// NearbyQuery describes a nearby-compatible-sessions lookup.
type NearbyQuery struct {
	Center        Location
	RadiusMeters  float64
	ExcludeUserID string
}

// SessionRepository stores study sessions.
type SessionRepository interface {
	CreateSession(ctx context.Context, session Session) error
	GetSession(ctx context.Context, id string) (Session, error)
	UpdateSession(ctx context.Context, session Session) error
	ListSessions(ctx context.Context, filter SessionFilter) ([]Session, error)
	AdjustParticipantCount(ctx context.Context, id string, delta int) error
	NearbySessions(ctx context.Context, query NearbyQuery) ([]SessionDistance, error)
}

// ParticipantFilter narrows participant queries. Empty fields match everything.
type ParticipantFilter struct {
	SessionID string
	UserID    string
	Status    string
}

// ParticipantRepository stores session memberships.
type ParticipantRepository interface {
	CreateParticipant(ctx context.Context, participant Participant) error
	ListParticipants(ctx context.Context, filter ParticipantFilter) ([]Participant, error)
	ListParticipantProfiles(ctx context.Context, filter ParticipantFilter) ([]ParticipantProfile, error)
	// CloseParticipants moves every active row matching the filter to status and returns
	// the number of rows changed.
	CloseParticipants(ctx context.Context, filter ParticipantFilter, status string, at time.Time) (int, error)
}

// JoinRequestFilter narrows join request queries. Empty fields match everything.
type JoinRequestFilter struct {
	SessionID   string
	RequesterID string
	Status      string
}

// JoinRequestTransition is a conditional status change: it applies only while the row is in From.
type JoinRequestTransition struct {
	ID               string
	From             string
	To               string
	AcceptedAt       *time.Time
	LocationRevealed bool
	UpdatedAt        time.Time
}

// JoinRequestRepository stores join requests.
type JoinRequestRepository interface {
	CreateJoinRequest(ctx context.Context, request JoinRequest) error
	GetJoinRequest(ctx context.Context, id string) (JoinRequest, error)
	ListJoinRequests(ctx context.Context, filter JoinRequestFilter) ([]JoinRequest, error)
	// TransitionJoinRequest returns ErrNotFound for unknown ids and ErrConflict when the
	// row is no longer in the expected state.
	TransitionJoinRequest(ctx context.Context, transition JoinRequestTransition) (JoinRequest, error)
	ExpireJoinRequests(ctx context.Context, reference time.Time) (int, error)
}

// Store groups the repositories and runs units of work atomically.
type Store interface {
	Users() UserRepository
	Sessions() SessionRepository
	Participants() ParticipantRepository
	JoinRequests() JoinRequestRepository
	// WithinTx runs fn against a transactional view of the store. Returning an error
	// from fn rolls back every write made through tx.
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}

// Status values shared by the store and its callers.
const (
	SessionStatusActive    = "active"
	SessionStatusPaused    = "paused"
	SessionStatusCompleted = "completed"

	ParticipantStatusActive  = "active"
	ParticipantStatusLeft    = "left"
	ParticipantStatusRemoved = "removed"

	JoinRequestStatusPending   = "pending"
	JoinRequestStatusAccepted  = "accepted"
	JoinRequestStatusExpired   = "expired"
	JoinRequestStatusWithdrawn = "withdrawn"
)
