package http

import (
	"time"

	"github.com/example/studymates/internal/application"
)

type locationDTO struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
}

func (l locationDTO) toLocation() application.Location {
	return application.Location{Latitude: l.Latitude, Longitude: l.Longitude, Accuracy: l.Accuracy}
}

func toLocationDTO(l application.Location) locationDTO {
	return locationDTO{Latitude: l.Latitude, Longitude: l.Longitude, Accuracy: l.Accuracy}
}

type userDTO struct {
	ID               string       `json:"id"`
	Email            string       `json:"email"`
	DisplayName      *string      `json:"display_name,omitempty"`
	Shape            string       `json:"study_personality_shape"`
	Color            string       `json:"study_personality_color"`
	AvatarURL        *string      `json:"avatar_url,omitempty"`
	IsOnline         bool         `json:"is_online"`
	LastSeen         *time.Time   `json:"last_seen,omitempty"`
	CurrentLocation  *locationDTO `json:"current_location,omitempty"`
	CurrentSessionID *string      `json:"current_session_id"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

func toUserDTO(u application.User) userDTO {
	dto := userDTO{
		ID:               u.ID,
		Email:            u.Email,
		DisplayName:      u.DisplayName,
		Shape:            string(u.Shape),
		Color:            string(u.Color),
		AvatarURL:        u.AvatarURL,
		IsOnline:         u.IsOnline,
		LastSeen:         u.LastSeen,
		CurrentSessionID: u.CurrentSessionID,
		CreatedAt:        u.CreatedAt,
		UpdatedAt:        u.UpdatedAt,
	}
	if u.CurrentLocation != nil {
		loc := toLocationDTO(*u.CurrentLocation)
		dto.CurrentLocation = &loc
	}
	return dto
}

type profileRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Shape       string `json:"study_personality_shape"`
	Color       string `json:"study_personality_color"`
	AvatarURL   string `json:"avatar_url"`
}

func (r profileRequest) toInput() application.ProfileInput {
	return application.ProfileInput{
		Email:       r.Email,
		DisplayName: r.DisplayName,
		Shape:       application.StudyShape(r.Shape),
		Color:       application.StudyColor(r.Color),
		AvatarURL:   r.AvatarURL,
	}
}

type presenceRequest struct {
	Online *bool `json:"is_online"`
}

type sessionDTO struct {
	ID                  string      `json:"id"`
	CreatorID           string      `json:"creator_id"`
	Title               *string     `json:"title,omitempty"`
	Description         *string     `json:"description,omitempty"`
	Location            locationDTO `json:"location"`
	LocationName        string      `json:"location_name"`
	SessionType         string      `json:"session_type"`
	ConvenienceTags     []string    `json:"convenience_tags"`
	MaxParticipants     int         `json:"max_participants"`
	CurrentParticipants int         `json:"current_participants"`
	Status              string      `json:"status"`
	PomodoroDuration    int         `json:"pomodoro_duration"`
	BreakDuration       int         `json:"break_duration"`
	CurrentPhase        string      `json:"current_phase"`
	PhaseStartTime      time.Time   `json:"phase_start_time"`
	NextBreakTime       *time.Time  `json:"next_break_time"`
	DistanceMeters      *float64    `json:"distance_meters,omitempty"`
	CreatedAt           time.Time   `json:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at"`
}

func toSessionDTO(s application.Session) sessionDTO {
	tags := s.ConvenienceTags
	if tags == nil {
		tags = []string{}
	}
	return sessionDTO{
		ID:                  s.ID,
		CreatorID:           s.CreatorID,
		Title:               s.Title,
		Description:         s.Description,
		Location:            toLocationDTO(s.Location),
		LocationName:        s.LocationName,
		SessionType:         string(s.SessionType),
		ConvenienceTags:     tags,
		MaxParticipants:     s.MaxParticipants,
		CurrentParticipants: s.CurrentParticipants,
		Status:              string(s.Status),
		PomodoroDuration:    int(s.FocusDuration / time.Second),
		BreakDuration:       int(s.BreakDuration / time.Second),
		CurrentPhase:        string(s.CurrentPhase),
		PhaseStartTime:      s.PhaseStartedAt,
		NextBreakTime:       s.NextBreakAt,
		CreatedAt:           s.CreatedAt,
		UpdatedAt:           s.UpdatedAt,
	}
}

// sessionRequest durations are in seconds.
type sessionRequest struct {
	Title            string      `json:"title"`
	Description      string      `json:"description"`
	Location         locationDTO `json:"location"`
	LocationName     string      `json:"location_name"`
	SessionType      string      `json:"session_type"`
	ConvenienceTags  []string    `json:"convenience_tags"`
	MaxParticipants  int         `json:"max_participants"`
	PomodoroDuration int         `json:"pomodoro_duration"`
	BreakDuration    int         `json:"break_duration"`
}

func (r sessionRequest) toInput() application.SessionInput {
	return application.SessionInput{
		Title:           r.Title,
		Description:     r.Description,
		Location:        r.Location.toLocation(),
		LocationName:    r.LocationName,
		SessionType:     application.SessionType(r.SessionType),
		ConvenienceTags: r.ConvenienceTags,
		MaxParticipants: r.MaxParticipants,
		FocusDuration:   time.Duration(r.PomodoroDuration) * time.Second,
		BreakDuration:   time.Duration(r.BreakDuration) * time.Second,
	}
}

type phaseRequest struct {
	Phase         string     `json:"current_phase"`
	NextBreakTime *time.Time `json:"next_break_time"`
}

type participantDTO struct {
	ID        string             `json:"id"`
	SessionID string             `json:"session_id"`
	UserID    string             `json:"user_id"`
	Status    string             `json:"status"`
	JoinedAt  time.Time          `json:"joined_at"`
	LeftAt    *time.Time         `json:"left_at,omitempty"`
	User      participantUserDTO `json:"user"`
}

// participantUserDTO is the slice of a profile other members of a session can see.
type participantUserDTO struct {
	ID          string  `json:"id"`
	DisplayName *string `json:"display_name"`
	Shape       string  `json:"study_personality_shape"`
	Color       string  `json:"study_personality_color"`
	AvatarURL   *string `json:"avatar_url"`
}

func toParticipantDTO(p application.ParticipantProfile) participantDTO {
	return participantDTO{
		ID:        p.ID,
		SessionID: p.SessionID,
		UserID:    p.UserID,
		Status:    string(p.Status),
		JoinedAt:  p.JoinedAt,
		LeftAt:    p.LeftAt,
		User: participantUserDTO{
			ID:          p.UserID,
			DisplayName: p.DisplayName,
			Shape:       string(p.Shape),
			Color:       string(p.Color),
			AvatarURL:   p.AvatarURL,
		},
	}
}

type joinRequestDTO struct {
	ID               string     `json:"id"`
	SessionID        string     `json:"session_id"`
	RequesterID      string     `json:"requester_id"`
	Status           string     `json:"status"`
	ExpiresAt        time.Time  `json:"expires_at"`
	AcceptedAt       *time.Time `json:"accepted_at,omitempty"`
	LocationRevealed bool       `json:"location_revealed"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func toJoinRequestDTO(r application.JoinRequest, now time.Time) joinRequestDTO {
	return joinRequestDTO{
		ID:               r.ID,
		SessionID:        r.SessionID,
		RequesterID:      r.RequesterID,
		Status:           string(r.EffectiveStatus(now)),
		ExpiresAt:        r.ExpiresAt,
		AcceptedAt:       r.AcceptedAt,
		LocationRevealed: r.LocationRevealed,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}
