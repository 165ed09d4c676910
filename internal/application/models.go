package application

import "time"

// Principal represents the authenticated student invoking a service method. The zero
// value is an anonymous caller.
type Principal struct {
	UserID string
	Email  string
}

// Authenticated reports whether the principal identifies a user.
func (p Principal) Authenticated() bool {
	return p.UserID != ""
}

// Location is a WGS84 coordinate. Accuracy is the device reported radius in meters.
type Location struct {
	Latitude  float64
	Longitude float64
	Accuracy  *float64
}

// StudyShape is the personality shape shown on a student's avatar.
type StudyShape string

const (
	StudyShapeCircle   StudyShape = "circle"
	StudyShapeSquare   StudyShape = "square"
	StudyShapeTriangle StudyShape = "triangle"
	StudyShapeStar     StudyShape = "star"
)

// StudyColor is the personality colour shown on a student's avatar.
type StudyColor string

const (
	StudyColorRed    StudyColor = "red"
	StudyColorBlue   StudyColor = "blue"
	StudyColorGreen  StudyColor = "green"
	StudyColorYellow StudyColor = "yellow"
)

// User is a student profile.
type User struct {
	ID               string
	Email            string
	DisplayName      *string
	Shape            StudyShape
	Color            StudyColor
	AvatarURL        *string
	IsOnline         bool
	LastSeen         *time.Time
	CurrentLocation  *Location
	CurrentSessionID *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// SessionType classifies what kind of studying happens in a session.
type SessionType string

const (
	SessionTypeDeepWork     SessionType = "deep_work"
	SessionTypeGroupProject SessionType = "group_project"
	SessionTypeRevision     SessionType = "revision"
	SessionTypeCasual       SessionType = "casual"
)

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusPaused    SessionStatus = "paused"
	SessionStatusCompleted SessionStatus = "completed"
)

// Phase is the pomodoro phase a session is in.
type Phase string

const (
	PhaseFocus Phase = "focus"
	PhaseBreak Phase = "break"
)

// Session is a study session hosted by its creator.
type Session struct {
	ID                  string
	CreatorID           string
	Title               *string
	Description         *string
	Location            Location
	LocationName        string
	SessionType         SessionType
	ConvenienceTags     []string
	MaxParticipants     int
	CurrentParticipants int
	Status              SessionStatus
	FocusDuration       time.Duration
	BreakDuration       time.Duration
	CurrentPhase        Phase
	PhaseStartedAt      time.Time
	NextBreakAt         *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// HasCapacity reports whether another participant can join.
func (s Session) HasCapacity() bool {
	return s.CurrentParticipants < s.MaxParticipants
}

// ParticipantStatus is the state of a membership row.
type ParticipantStatus string

const (
	ParticipantStatusActive  ParticipantStatus = "active"
	ParticipantStatusLeft    ParticipantStatus = "left"
	ParticipantStatusRemoved ParticipantStatus = "removed"
)

// Participant records a user's membership in a session.
type Participant struct {
	ID        string
	SessionID string
	UserID    string
	Status    ParticipantStatus
	JoinedAt  time.Time
	LeftAt    *time.Time
}

// ParticipantProfile is a membership together with what other members see of the student.
type ParticipantProfile struct {
	Participant
	DisplayName *string
	Shape       StudyShape
	Color       StudyColor
	AvatarURL   *string
}

// JoinRequestStatus is the state of a join request. Only pending is non-terminal.
type JoinRequestStatus string

const (
	JoinRequestStatusPending   JoinRequestStatus = "pending"
	JoinRequestStatusAccepted  JoinRequestStatus = "accepted"
	JoinRequestStatusExpired   JoinRequestStatus = "expired"
	JoinRequestStatusWithdrawn JoinRequestStatus = "withdrawn"
)

// JoinRequest is a user's request to join a session, decided by the session creator.
type JoinRequest struct {
	ID               string
	SessionID        string
	RequesterID      string
	Status           JoinRequestStatus
	ExpiresAt        time.Time
	AcceptedAt       *time.Time
	LocationRevealed bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Expired reports whether a pending request has outlived its expiry at now.
func (r JoinRequest) Expired(now time.Time) bool {
	return r.Status == JoinRequestStatusPending && !now.Before(r.ExpiresAt)
}

// EffectiveStatus folds lazy expiry into the stored status.
func (r JoinRequest) EffectiveStatus(now time.Time) JoinRequestStatus {
	if r.Expired(now) {
		return JoinRequestStatusExpired
	}
	return r.Status
}

// SessionInput captures caller provided session fields. Zero values take defaults.
type SessionInput struct {
	Title           string
	Description     string
	Location        Location
	LocationName    string
	SessionType     SessionType
	ConvenienceTags []string
	MaxParticipants int
	FocusDuration   time.Duration
	BreakDuration   time.Duration
}

// CreateSessionParams wraps the data required to create a session.
type CreateSessionParams struct {
	Principal Principal
	Input     SessionInput
}

// UpdatePhaseParams wraps a pomodoro phase change.
type UpdatePhaseParams struct {
	Principal   Principal
	SessionID   string
	Phase       Phase
	NextBreakAt *time.Time
}

// NearbySessionsParams wraps a nearby-compatible-sessions lookup. A zero radius uses
// the service default.
type NearbySessionsParams struct {
	Principal    Principal
	Location     Location
	RadiusMeters float64
}

// NearbySession is a session annotated with its distance from the caller.
type NearbySession struct {
	Session        Session
	DistanceMeters float64
}

// ProfileInput captures caller provided profile fields.
type ProfileInput struct {
	Email       string
	DisplayName string
	Shape       StudyShape
	Color       StudyColor
	AvatarURL   string
}

// CreateProfileParams wraps the data required to create the caller's profile.
type CreateProfileParams struct {
	Principal Principal
	Input     ProfileInput
}

// LocationUpdate is the result of recording a user's position.
type LocationUpdate struct {
	User     User
	OnCampus bool
}
