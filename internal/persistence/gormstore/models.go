package gormstore

import (
	"time"

	"gorm.io/datatypes"

	"github.com/example/studymates/internal/persistence"
)

// Timestamps come from the service clock, so GORM's automatic tracking is disabled.

type userRow struct {
	ID               string     `gorm:"primaryKey;size:64"`
	Email            string     `gorm:"size:255;not null;uniqueIndex"`
	DisplayName      *string    `gorm:"size:120"`
	StudyShape       string     `gorm:"size:16;not null"`
	StudyColor       string     `gorm:"size:16;not null"`
	AvatarURL        *string    `gorm:"type:text"`
	IsOnline         bool       `gorm:"not null;default:false"`
	LastSeen         *time.Time
	LocationLat      *float64
	LocationLng      *float64
	LocationAccuracy *float64
	CurrentSessionID *string   `gorm:"size:64;index"`
	CreatedAt        time.Time `gorm:"not null;autoCreateTime:false"`
	UpdatedAt        time.Time `gorm:"not null;autoUpdateTime:false"`
}

func (userRow) TableName() string { return "users" }

type sessionRow struct {
	ID                  string  `gorm:"primaryKey;size:64"`
	CreatorID           string  `gorm:"size:64;not null;index"`
	Title               *string `gorm:"size:200"`
	Description         *string `gorm:"type:text"`
	LocationLat         float64 `gorm:"not null;index:idx_study_sessions_location,priority:1"`
	LocationLng         float64 `gorm:"not null;index:idx_study_sessions_location,priority:2"`
	LocationAccuracy    *float64
	LocationName        string                      `gorm:"size:200;not null"`
	MaxParticipants     int                         `gorm:"not null;default:6"`
	CurrentParticipants int                         `gorm:"not null;default:0"`
	Status              string                      `gorm:"size:16;not null;index"`
	SessionType         string                      `gorm:"size:32;not null"`
	ConvenienceTags     datatypes.JSONSlice[string] `gorm:"not null"`
	PomodoroDuration    int                         `gorm:"not null;default:1500"`
	BreakDuration       int                         `gorm:"not null;default:300"`
	CurrentPhase        string                      `gorm:"size:16;not null"`
	PhaseStartTime      time.Time                   `gorm:"not null"`
	NextBreakTime       *time.Time
	CreatedAt           time.Time `gorm:"not null;autoCreateTime:false"`
	UpdatedAt           time.Time `gorm:"not null;autoUpdateTime:false"`
}

func (sessionRow) TableName() string { return "study_sessions" }

type participantRow struct {
	ID        string    `gorm:"primaryKey;size:64"`
	SessionID string    `gorm:"size:64;not null;index"`
	UserID    string    `gorm:"size:64;not null;index"`
	Status    string    `gorm:"size:16;not null"`
	JoinedAt  time.Time `gorm:"not null"`
	LeftAt    *time.Time
}

func (participantRow) TableName() string { return "session_participants" }

type joinRequestRow struct {
	ID               string    `gorm:"primaryKey;size:64"`
	SessionID        string    `gorm:"size:64;not null;index"`
	RequesterID      string    `gorm:"size:64;not null;index"`
	Status           string    `gorm:"size:16;not null;index"`
	ExpiresAt        time.Time `gorm:"not null;index"`
	AcceptedAt       *time.Time
	LocationRevealed bool      `gorm:"not null;default:false"`
	CreatedAt        time.Time `gorm:"not null;autoCreateTime:false"`
	UpdatedAt        time.Time `gorm:"not null;autoUpdateTime:false"`
}

func (joinRequestRow) TableName() string { return "join_requests" }

func utc(t time.Time) time.Time { return t.UTC() }

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

func userToRow(u persistence.User) userRow {
	row := userRow{
		ID:               u.ID,
		Email:            u.Email,
		DisplayName:      u.DisplayName,
		StudyShape:       u.StudyShape,
		StudyColor:       u.StudyColor,
		AvatarURL:        u.AvatarURL,
		IsOnline:         u.IsOnline,
		LastSeen:         utcPtr(u.LastSeen),
		CurrentSessionID: u.CurrentSessionID,
		CreatedAt:        utc(u.CreatedAt),
		UpdatedAt:        utc(u.UpdatedAt),
	}
	if u.CurrentLocation != nil {
		lat, lng := u.CurrentLocation.Latitude, u.CurrentLocation.Longitude
		row.LocationLat = &lat
		row.LocationLng = &lng
		row.LocationAccuracy = u.CurrentLocation.Accuracy
	}
	return row
}

func userFromRow(row userRow) persistence.User {
	u := persistence.User{
		ID:               row.ID,
		Email:            row.Email,
		DisplayName:      row.DisplayName,
		StudyShape:       row.StudyShape,
		StudyColor:       row.StudyColor,
		AvatarURL:        row.AvatarURL,
		IsOnline:         row.IsOnline,
		LastSeen:         utcPtr(row.LastSeen),
		CurrentSessionID: row.CurrentSessionID,
		CreatedAt:        utc(row.CreatedAt),
		UpdatedAt:        utc(row.UpdatedAt),
	}
	if row.LocationLat != nil && row.LocationLng != nil {
		u.CurrentLocation = &persistence.Location{
			Latitude:  *row.LocationLat,
			Longitude: *row.LocationLng,
			Accuracy:  row.LocationAccuracy,
		}
	}
	return u
}

func sessionToRow(s persistence.Session) sessionRow {
	tags := make([]string, len(s.ConvenienceTags))
	copy(tags, s.ConvenienceTags)
	return sessionRow{
		ID:                  s.ID,
		CreatorID:           s.CreatorID,
		Title:               s.Title,
		Description:         s.Description,
		LocationLat:         s.Location.Latitude,
		LocationLng:         s.Location.Longitude,
		LocationAccuracy:    s.Location.Accuracy,
		LocationName:        s.LocationName,
		MaxParticipants:     s.MaxParticipants,
		CurrentParticipants: s.CurrentParticipants,
		Status:              s.Status,
		SessionType:         s.SessionType,
		ConvenienceTags:     datatypes.JSONSlice[string](tags),
		PomodoroDuration:    s.PomodoroSeconds,
		BreakDuration:       s.BreakSeconds,
		CurrentPhase:        s.CurrentPhase,
		PhaseStartTime:      utc(s.PhaseStartTime),
		NextBreakTime:       utcPtr(s.NextBreakTime),
		CreatedAt:           utc(s.CreatedAt),
		UpdatedAt:           utc(s.UpdatedAt),
	}
}

func sessionFromRow(row sessionRow) persistence.Session {
	tags := make([]string, len(row.ConvenienceTags))
	copy(tags, row.ConvenienceTags)
	return persistence.Session{
		ID:          row.ID,
		CreatorID:   row.CreatorID,
		Title:       row.Title,
		Description: row.Description,
		Location: persistence.Location{
			Latitude:  row.LocationLat,
			Longitude: row.LocationLng,
			Accuracy:  row.LocationAccuracy,
		},
		LocationName:        row.LocationName,
		MaxParticipants:     row.MaxParticipants,
		CurrentParticipants: row.CurrentParticipants,
		Status:              row.Status,
		SessionType:         row.SessionType,
		ConvenienceTags:     tags,
		PomodoroSeconds:     row.PomodoroDuration,
		BreakSeconds:        row.BreakDuration,
		CurrentPhase:        row.CurrentPhase,
		PhaseStartTime:      utc(row.PhaseStartTime),
		NextBreakTime:       utcPtr(row.NextBreakTime),
		CreatedAt:           utc(row.CreatedAt),
		UpdatedAt:           utc(row.UpdatedAt),
	}
}

func participantToRow(p persistence.Participant) participantRow {
	return participantRow{
		ID:        p.ID,
		SessionID: p.SessionID,
		UserID:    p.UserID,
		Status:    p.Status,
		JoinedAt:  utc(p.JoinedAt),
		LeftAt:    utcPtr(p.LeftAt),
	}
}

func participantFromRow(row participantRow) persistence.Participant {
	return persistence.Participant{
		ID:        row.ID,
		SessionID: row.SessionID,
		UserID:    row.UserID,
		Status:    row.Status,
		JoinedAt:  utc(row.JoinedAt),
		LeftAt:    utcPtr(row.LeftAt),
	}
}

func joinRequestToRow(r persistence.JoinRequest) joinRequestRow {
	return joinRequestRow{
		ID:               r.ID,
		SessionID:        r.SessionID,
		RequesterID:      r.RequesterID,
		Status:           r.Status,
		ExpiresAt:        utc(r.ExpiresAt),
		AcceptedAt:       utcPtr(r.AcceptedAt),
		LocationRevealed: r.LocationRevealed,
		CreatedAt:        utc(r.CreatedAt),
		UpdatedAt:        utc(r.UpdatedAt),
	}
}

func joinRequestFromRow(row joinRequestRow) persistence.JoinRequest {
	return persistence.JoinRequest{
		ID:               row.ID,
		SessionID:        row.SessionID,
		RequesterID:      row.RequesterID,
		Status:           row.Status,
		ExpiresAt:        utc(row.ExpiresAt),
		AcceptedAt:       utcPtr(row.AcceptedAt),
		LocationRevealed: row.LocationRevealed,
		CreatedAt:        utc(row.CreatedAt),
		UpdatedAt:        utc(row.UpdatedAt),
	}
}
