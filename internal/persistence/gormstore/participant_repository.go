package gormstore

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/example/studymates/internal/persistence"
)

type participantRepository struct {
	db *gorm.DB
}

func (r participantRepository) CreateParticipant(ctx context.Context, participant persistence.Participant) error {
	row := participantToRow(participant)
	return mapError("create participant", r.db.WithContext(ctx).Create(&row).Error)
}

func (r participantRepository) ListParticipants(ctx context.Context, filter persistence.ParticipantFilter) ([]persistence.Participant, error) {
	var rows []participantRow
	err := r.filtered(ctx, filter).
		Order("joined_at ASC").
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, mapError("list participants", err)
	}

	out := make([]persistence.Participant, 0, len(rows))
	for _, row := range rows {
		out = append(out, participantFromRow(row))
	}
	return out, nil
}

// participantProfileRow is the scan target for memberships joined with users.
type participantProfileRow struct {
	ID          string
	SessionID   string
	UserID      string
	Status      string
	JoinedAt    time.Time
	LeftAt      *time.Time
	DisplayName *string
	StudyShape  string
	StudyColor  string
	AvatarURL   *string
}

func (r participantRepository) ListParticipantProfiles(ctx context.Context, filter persistence.ParticipantFilter) ([]persistence.ParticipantProfile, error) {
	q := r.db.WithContext(ctx).
		Table("session_participants AS p").
		Select("p.id, p.session_id, p.user_id, p.status, p.joined_at, p.left_at, " +
			"u.display_name, u.study_shape, u.study_color, u.avatar_url").
		Joins("JOIN users AS u ON u.id = p.user_id")
	if filter.SessionID != "" {
		q = q.Where("p.session_id = ?", filter.SessionID)
	}
	if filter.UserID != "" {
		q = q.Where("p.user_id = ?", filter.UserID)
	}
	if filter.Status != "" {
		q = q.Where("p.status = ?", filter.Status)
	}

	var rows []participantProfileRow
	if err := q.Order("p.joined_at ASC").Order("p.id ASC").Scan(&rows).Error; err != nil {
		return nil, mapError("list participant profiles", err)
	}

	out := make([]persistence.ParticipantProfile, 0, len(rows))
	for _, row := range rows {
		out = append(out, persistence.ParticipantProfile{
			Participant: participantFromRow(participantRow{
				ID:        row.ID,
				SessionID: row.SessionID,
				UserID:    row.UserID,
				Status:    row.Status,
				JoinedAt:  row.JoinedAt,
				LeftAt:    row.LeftAt,
			}),
			DisplayName: row.DisplayName,
			StudyShape:  row.StudyShape,
			StudyColor:  row.StudyColor,
			AvatarURL:   row.AvatarURL,
		})
	}
	return out, nil
}

func (r participantRepository) CloseParticipants(ctx context.Context, filter persistence.ParticipantFilter, status string, at time.Time) (int, error) {
	filter.Status = persistence.ParticipantStatusActive
	res := r.filtered(ctx, filter).Updates(map[string]any{
		"status":  status,
		"left_at": at.UTC(),
	})
	if res.Error != nil {
		return 0, mapError("close participants", res.Error)
	}
	return int(res.RowsAffected), nil
}

func (r participantRepository) filtered(ctx context.Context, filter persistence.ParticipantFilter) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&participantRow{})
	if filter.SessionID != "" {
		q = q.Where("session_id = ?", filter.SessionID)
	}
	if filter.UserID != "" {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	return q
}
