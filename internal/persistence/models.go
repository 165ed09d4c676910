package persistence

import "time"

// Location is a WGS84 coordinate with an optional accuracy radius in meters.
type Location struct {
	Latitude  float64
	Longitude float64
	Accuracy  *float64
}

// User represents a student profile.
type User struct {
	ID               string
	Email            string
	DisplayName      *string
	StudyShape       string
	StudyColor       string
	AvatarURL        *string
	IsOnline         bool
	LastSeen         *time.Time
	CurrentLocation  *Location
	CurrentSessionID *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Session represents a study session row.
type Session struct {
	ID                  string
	CreatorID           string
	Title               *string
	Description         *string
	Location            Location
	LocationName        string
	MaxParticipants     int
	CurrentParticipants int
	Status              string
	SessionType         string
	ConvenienceTags     []string
	PomodoroSeconds     int
	BreakSeconds        int
	CurrentPhase        string
	PhaseStartTime      time.Time
	NextBreakTime       *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Participant records one user's membership in a session.
type Participant struct {
	ID        string
	SessionID string
	UserID    string
	Status    string
	JoinedAt  time.Time
	LeftAt    *time.Time
}

// ParticipantProfile is a membership row joined with the public fields of its user.
type ParticipantProfile struct {
	Participant
	DisplayName *string
	StudyShape  string
	StudyColor  string
	AvatarURL   *string
}

// JoinRequest records a user's request to join a session.
type JoinRequest struct {
	ID               string
	SessionID        string
	RequesterID      string
	Status           string
	ExpiresAt        time.Time
	AcceptedAt       *time.Time
	LocationRevealed bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// SessionDistance pairs a session with its distance from a query point.
type SessionDistance struct {
	Session        Session
	DistanceMeters float64
}
