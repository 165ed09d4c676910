package gormstore

import (
	"context"
	"sort"

	"gorm.io/gorm"

	"github.com/example/studymates/internal/geo"
	"github.com/example/studymates/internal/persistence"
)

type sessionRepository struct {
	db *gorm.DB
}

func (r sessionRepository) CreateSession(ctx context.Context, session persistence.Session) error {
	row := sessionToRow(session)
	return mapError("create session", r.db.WithContext(ctx).Create(&row).Error)
}

func (r sessionRepository) GetSession(ctx context.Context, id string) (persistence.Session, error) {
	var row sessionRow
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return persistence.Session{}, mapError("get session", err)
	}
	return sessionFromRow(row), nil
}

func (r sessionRepository) UpdateSession(ctx context.Context, session persistence.Session) error {
	row := sessionToRow(session)
	res := r.db.WithContext(ctx).
		Model(&sessionRow{}).
		Where("id = ?", session.ID).
		Select("*").
		Omit("id", "creator_id", "created_at", "current_participants").
		Updates(&row)
	if res.Error != nil {
		return mapError("update session", res.Error)
	}
	if res.RowsAffected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

func (r sessionRepository) ListSessions(ctx context.Context, filter persistence.SessionFilter) ([]persistence.Session, error) {
	q := r.db.WithContext(ctx).Model(&sessionRow{})
	if len(filter.Statuses) > 0 {
		q = q.Where("status IN ?", filter.Statuses)
	}
	if filter.CreatorID != "" {
		q = q.Where("creator_id = ?", filter.CreatorID)
	}

	var rows []sessionRow
	if err := q.Order("created_at ASC").Order("id ASC").Find(&rows).Error; err != nil {
		return nil, mapError("list sessions", err)
	}

	out := make([]persistence.Session, 0, len(rows))
	for _, row := range rows {
		out = append(out, sessionFromRow(row))
	}
	return out, nil
}

// AdjustParticipantCount moves current_participants by delta without letting it go negative.
// Increments are refused with ErrConflict once the session is at max_participants.
func (r sessionRepository) AdjustParticipantCount(ctx context.Context, id string, delta int) error {
	q := r.db.WithContext(ctx).Model(&sessionRow{}).Where("id = ?", id)
	if delta > 0 {
		q = q.Where("current_participants + ? <= max_participants", delta)
	}
	res := q.UpdateColumn("current_participants",
		gorm.Expr("CASE WHEN current_participants + ? < 0 THEN 0 ELSE current_participants + ? END", delta, delta))
	if res.Error != nil {
		return mapError("adjust participant count", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}
	if _, err := r.GetSession(ctx, id); err != nil {
		return err
	}
	return persistence.ErrConflict
}

// NearbySessions prefilters active sessions with spare capacity by bounding box, then keeps
// those within the exact great-circle radius, closest first.
func (r sessionRepository) NearbySessions(ctx context.Context, query persistence.NearbyQuery) ([]persistence.SessionDistance, error) {
	center := geo.Point{Latitude: query.Center.Latitude, Longitude: query.Center.Longitude}
	const inBox = "location_lat BETWEEN ? AND ? AND location_lng BETWEEN ? AND ?"
	var area *gorm.DB
	for _, box := range geo.BoundingBoxes(center, query.RadiusMeters) {
		if area == nil {
			area = r.db.Where(inBox, box.MinLatitude, box.MaxLatitude, box.MinLongitude, box.MaxLongitude)
			continue
		}
		area = area.Or(inBox, box.MinLatitude, box.MaxLatitude, box.MinLongitude, box.MaxLongitude)
	}

	q := r.db.WithContext(ctx).
		Model(&sessionRow{}).
		Where("status = ?", persistence.SessionStatusActive).
		Where("current_participants < max_participants").
		Where(area)
	if query.ExcludeUserID != "" {
		joined := r.db.Model(&participantRow{}).
			Select("session_id").
			Where("user_id = ? AND status = ?", query.ExcludeUserID, persistence.ParticipantStatusActive)
		q = q.Where("id NOT IN (?)", joined)
	}

	var rows []sessionRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, mapError("nearby sessions", err)
	}

	out := make([]persistence.SessionDistance, 0, len(rows))
	for _, row := range rows {
		d := geo.Distance(center, geo.Point{Latitude: row.LocationLat, Longitude: row.LocationLng})
		if d > query.RadiusMeters {
			continue
		}
		out = append(out, persistence.SessionDistance{Session: sessionFromRow(row), DistanceMeters: d})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DistanceMeters == out[j].DistanceMeters {
			return out[i].Session.ID < out[j].Session.ID
		}
		return out[i].DistanceMeters < out[j].DistanceMeters
	})
	return out, nil
}
