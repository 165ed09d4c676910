package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/studymates/internal/persistence"
)

var (
	userCounter        uint64
	sessionCounter     uint64
	participantCounter uint64
	requestCounter     uint64
)

var referenceTime = time.Date(2024, time.March, 14, 9, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// Points on and around the Kensington campus.
var (
	MainLibrary   = persistence.Location{Latitude: -33.9173, Longitude: 151.2313}
	QuadLawn      = persistence.Location{Latitude: -33.9170, Longitude: 151.2290}
	Roundhouse    = persistence.Location{Latitude: -33.9162, Longitude: 151.2268}
	CoogeeBeach   = persistence.Location{Latitude: -33.9210, Longitude: 151.2590}
	SydneyCentral = persistence.Location{Latitude: -33.8832, Longitude: 151.2070}
)

// ----------------------------- User fixtures -----------------------------

// UserOption configures a generated user.
type UserOption func(*persistence.User)

// NewUser returns a deterministic student profile with optional overrides.
func NewUser(opts ...UserOption) persistence.User {
	idx := atomic.AddUint64(&userCounter, 1)
	id := fmt.Sprintf("user-%03d", idx)
	created := referenceTime.Add(time.Duration(idx) * time.Minute)
	name := fmt.Sprintf("Student %03d", idx)
	user := persistence.User{
		ID:          id,
		Email:       fmt.Sprintf("z%07d@unsw.edu.au", idx),
		DisplayName: &name,
		StudyShape:  "circle",
		StudyColor:  "blue",
		IsOnline:    true,
		CreatedAt:   created,
		UpdatedAt:   created,
	}
	for _, opt := range opts {
		opt(&user)
	}
	return user
}

// WithUserID overrides the generated user ID.
func WithUserID(id string) UserOption {
	return func(u *persistence.User) {
		u.ID = id
	}
}

// WithUserEmail overrides the generated email address.
func WithUserEmail(email string) UserOption {
	return func(u *persistence.User) {
		u.Email = email
	}
}

// WithUserPersonality sets the study shape and colour.
func WithUserPersonality(shape, color string) UserOption {
	return func(u *persistence.User) {
		u.StudyShape = shape
		u.StudyColor = color
	}
}

// WithUserLocation places the user at loc.
func WithUserLocation(loc persistence.Location) UserOption {
	return func(u *persistence.User) {
		u.CurrentLocation = &loc
	}
}

// WithUserCurrentSession points the user at sessionID.
func WithUserCurrentSession(sessionID string) UserOption {
	return func(u *persistence.User) {
		u.CurrentSessionID = &sessionID
	}
}

// --------------------------- Session fixtures ----------------------------

// SessionOption configures a generated session.
type SessionOption func(*persistence.Session)

// NewSession returns an active focus-phase session hosted by creatorID at the main
// library.
func NewSession(creatorID string, opts ...SessionOption) persistence.Session {
	idx := atomic.AddUint64(&sessionCounter, 1)
	created := referenceTime.Add(time.Duration(idx) * time.Minute)
	next := created.Add(25 * time.Minute)
	session := persistence.Session{
		ID:                  fmt.Sprintf("session-%03d", idx),
		CreatorID:           creatorID,
		Location:            MainLibrary,
		LocationName:        "Main Library Level 3",
		MaxParticipants:     6,
		CurrentParticipants: 0,
		Status:              persistence.SessionStatusActive,
		SessionType:         "casual",
		ConvenienceTags:     []string{},
		PomodoroSeconds:     int((25 * time.Minute).Seconds()),
		BreakSeconds:        int((5 * time.Minute).Seconds()),
		CurrentPhase:        "focus",
		PhaseStartTime:      created,
		NextBreakTime:       &next,
		CreatedAt:           created,
		UpdatedAt:           created,
	}
	for _, opt := range opts {
		opt(&session)
	}
	return session
}

// WithSessionID overrides the generated session ID.
func WithSessionID(id string) SessionOption {
	return func(s *persistence.Session) {
		s.ID = id
	}
}

// WithSessionLocation moves the session.
func WithSessionLocation(loc persistence.Location, name string) SessionOption {
	return func(s *persistence.Session) {
		s.Location = loc
		s.LocationName = name
	}
}

// WithSessionCapacity sets the maximum and current participant counts.
func WithSessionCapacity(max, current int) SessionOption {
	return func(s *persistence.Session) {
		s.MaxParticipants = max
		s.CurrentParticipants = current
	}
}

// WithSessionStatus sets the lifecycle status.
func WithSessionStatus(status string) SessionOption {
	return func(s *persistence.Session) {
		s.Status = status
	}
}

// WithSessionTags sets the convenience tags.
func WithSessionTags(tags ...string) SessionOption {
	return func(s *persistence.Session) {
		s.ConvenienceTags = append([]string{}, tags...)
	}
}

// ------------------------- Membership fixtures ---------------------------

// NewParticipant returns an active membership joined at the reference time.
func NewParticipant(sessionID, userID string) persistence.Participant {
	idx := atomic.AddUint64(&participantCounter, 1)
	return persistence.Participant{
		ID:        fmt.Sprintf("participant-%03d", idx),
		SessionID: sessionID,
		UserID:    userID,
		Status:    persistence.ParticipantStatusActive,
		JoinedAt:  referenceTime.Add(time.Duration(idx) * time.Second),
	}
}

// NewJoinRequest returns a pending request that expires an hour after it was created.
func NewJoinRequest(sessionID, requesterID string, created time.Time) persistence.JoinRequest {
	idx := atomic.AddUint64(&requestCounter, 1)
	if created.IsZero() {
		created = referenceTime
	}
	return persistence.JoinRequest{
		ID:          fmt.Sprintf("request-%03d", idx),
		SessionID:   sessionID,
		RequesterID: requesterID,
		Status:      persistence.JoinRequestStatusPending,
		ExpiresAt:   created.Add(time.Hour),
		CreatedAt:   created,
		UpdatedAt:   created,
	}
}
