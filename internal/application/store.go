package application

import (
	"context"
	"errors"
	"time"

	"github.com/example/studymates/internal/persistence"
)

// UserRepository captures the persistence operations needed for profiles.
type UserRepository interface {
	CreateUser(ctx context.Context, user User) (User, error)
	GetUser(ctx context.Context, id string) (User, error)
	UpdateUser(ctx context.Context, user User) (User, error)
	SetCurrentSession(ctx context.Context, userID string, sessionID *string, at time.Time) error
}

// SessionFilter narrows session listings.
type SessionFilter struct {
	Statuses  []SessionStatus
	CreatorID string
}

// NearbyQuery is the store side of a nearby-compatible-sessions lookup.
type NearbyQuery struct {
	Center        Location
	RadiusMeters  float64
	ExcludeUserID string
}

// SessionRepository captures the persistence operations needed for sessions.
type SessionRepository interface {
	CreateSession(ctx context.Context, session Session) (Session, error)
	GetSession(ctx context.Context, id string) (Session, error)
	UpdateSession(ctx context.Context, session Session) (Session, error)
	ListSessions(ctx context.Context, filter SessionFilter) ([]Session, error)
	AdjustParticipantCount(ctx context.Context, id string, delta int) error
	NearbySessions(ctx context.Context, query NearbyQuery) ([]NearbySession, error)
}

// ParticipantFilter narrows participant queries. Empty fields match everything.
type ParticipantFilter struct {
	SessionID string
	UserID    string
	Status    ParticipantStatus
}

// ParticipantRepository captures the persistence operations needed for memberships.
type ParticipantRepository interface {
	CreateParticipant(ctx context.Context, participant Participant) (Participant, error)
	ListParticipants(ctx context.Context, filter ParticipantFilter) ([]Participant, error)
	ListParticipantProfiles(ctx context.Context, filter ParticipantFilter) ([]ParticipantProfile, error)
	CloseParticipants(ctx context.Context, filter ParticipantFilter, status ParticipantStatus, at time.Time) (int, error)
}

// JoinRequestFilter narrows join request queries. Empty fields match everything.
type JoinRequestFilter struct {
	SessionID   string
	RequesterID string
	Status      JoinRequestStatus
}

// JoinRequestTransition moves a request out of From. The store reports ErrConflict when
// the request is no longer in From.
type JoinRequestTransition struct {
	ID               string
	From             JoinRequestStatus
	To               JoinRequestStatus
	AcceptedAt       *time.Time
	LocationRevealed bool
	UpdatedAt        time.Time
}

// JoinRequestRepository captures the persistence operations needed for join requests.
type JoinRequestRepository interface {
	CreateJoinRequest(ctx context.Context, request JoinRequest) (JoinRequest, error)
	GetJoinRequest(ctx context.Context, id string) (JoinRequest, error)
	ListJoinRequests(ctx context.Context, filter JoinRequestFilter) ([]JoinRequest, error)
	TransitionJoinRequest(ctx context.Context, transition JoinRequestTransition) (JoinRequest, error)
	ExpireJoinRequests(ctx context.Context, reference time.Time) (int, error)
}

// Store groups the repositories and runs multi-step writes as one unit of work.
type Store interface {
	Users() UserRepository
	Sessions() SessionRepository
	Participants() ParticipantRepository
	JoinRequests() JoinRequestRepository
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}

// Change tables, named after the relations they describe.
const (
	TableUsers        = "users"
	TableSessions     = "study_sessions"
	TableParticipants = "session_participants"
	TableJoinRequests = "join_requests"
)

// ChangeAction is the kind of row change being announced.
type ChangeAction string

const (
	ChangeInsert ChangeAction = "insert"
	ChangeUpdate ChangeAction = "update"
)

// Change announces a committed row change. Filters hold the columns subscribers can
// match on, e.g. session_id for join requests.
type Change struct {
	Table      string
	Action     ChangeAction
	RecordID   string
	Filters    map[string]string
	Record     any
	OccurredAt time.Time
}

// ChangePublisher delivers change notifications to subscribers.
type ChangePublisher interface {
	Publish(ctx context.Context, change Change) error
}

// Locker provides short-lived advisory locks. acquired is false when another holder
// owns key.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, acquired bool, err error)
}

// OperationRecorder observes the outcome of service operations. kind is ErrorKind(err).
type OperationRecorder interface {
	ObserveOperation(operation, kind string, elapsed time.Duration)
}

// mapStoreError translates repository failures into application errors. Sentinel
// errors pass through; anything else becomes a StoreError.
func mapStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrDuplicate):
		return ErrAlreadyExists
	case errors.Is(err, persistence.ErrConflict):
		return ErrConflict
	}
	for _, sentinel := range []error{ErrNotFound, ErrAlreadyExists, ErrConflict, ErrSessionFull, ErrNotAuthorized, ErrUnauthenticated} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return err
	}
	var sErr *StoreError
	if errors.As(err, &sErr) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}
