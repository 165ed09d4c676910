package gormstore

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/example/studymates/internal/persistence"
)

type joinRequestRepository struct {
	db *gorm.DB
}

func (r joinRequestRepository) CreateJoinRequest(ctx context.Context, request persistence.JoinRequest) error {
	row := joinRequestToRow(request)
	return mapError("create join request", r.db.WithContext(ctx).Create(&row).Error)
}

func (r joinRequestRepository) GetJoinRequest(ctx context.Context, id string) (persistence.JoinRequest, error) {
	var row joinRequestRow
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return persistence.JoinRequest{}, mapError("get join request", err)
	}
	return joinRequestFromRow(row), nil
}

func (r joinRequestRepository) ListJoinRequests(ctx context.Context, filter persistence.JoinRequestFilter) ([]persistence.JoinRequest, error) {
	q := r.db.WithContext(ctx).Model(&joinRequestRow{})
	if filter.SessionID != "" {
		q = q.Where("session_id = ?", filter.SessionID)
	}
	if filter.RequesterID != "" {
		q = q.Where("requester_id = ?", filter.RequesterID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}

	var rows []joinRequestRow
	if err := q.Order("created_at ASC").Order("id ASC").Find(&rows).Error; err != nil {
		return nil, mapError("list join requests", err)
	}

	out := make([]persistence.JoinRequest, 0, len(rows))
	for _, row := range rows {
		out = append(out, joinRequestFromRow(row))
	}
	return out, nil
}

// TransitionJoinRequest performs a compare-and-set on status so that concurrent deciders
// cannot both move the same request out of pending.
func (r joinRequestRepository) TransitionJoinRequest(ctx context.Context, tr persistence.JoinRequestTransition) (persistence.JoinRequest, error) {
	updates := map[string]any{
		"status":     tr.To,
		"updated_at": tr.UpdatedAt.UTC(),
	}
	if tr.AcceptedAt != nil {
		updates["accepted_at"] = tr.AcceptedAt.UTC()
	}
	if tr.LocationRevealed {
		updates["location_revealed"] = true
	}

	res := r.db.WithContext(ctx).
		Model(&joinRequestRow{}).
		Where("id = ? AND status = ?", tr.ID, tr.From).
		Updates(updates)
	if res.Error != nil {
		return persistence.JoinRequest{}, mapError("transition join request", res.Error)
	}

	current, err := r.GetJoinRequest(ctx, tr.ID)
	if err != nil {
		return persistence.JoinRequest{}, err
	}
	if res.RowsAffected == 0 {
		return current, persistence.ErrConflict
	}
	return current, nil
}

func (r joinRequestRepository) ExpireJoinRequests(ctx context.Context, reference time.Time) (int, error) {
	res := r.db.WithContext(ctx).
		Model(&joinRequestRow{}).
		Where("status = ? AND expires_at <= ?", persistence.JoinRequestStatusPending, reference.UTC()).
		Updates(map[string]any{
			"status":     persistence.JoinRequestStatusExpired,
			"updated_at": reference.UTC(),
		})
	if res.Error != nil {
		return 0, mapError("expire join requests", res.Error)
	}
	return int(res.RowsAffected), nil
}
