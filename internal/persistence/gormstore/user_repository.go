package gormstore

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/example/studymates/internal/persistence"
)

type userRepository struct {
	db *gorm.DB
}

func (r userRepository) CreateUser(ctx context.Context, user persistence.User) error {
	row := userToRow(user)
	return mapError("create user", r.db.WithContext(ctx).Create(&row).Error)
}

func (r userRepository) GetUser(ctx context.Context, id string) (persistence.User, error) {
	var row userRow
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return persistence.User{}, mapError("get user", err)
	}
	return userFromRow(row), nil
}

func (r userRepository) UpdateUser(ctx context.Context, user persistence.User) error {
	row := userToRow(user)
	res := r.db.WithContext(ctx).
		Model(&userRow{}).
		Where("id = ?", user.ID).
		Select("*").
		Omit("id", "created_at").
		Updates(&row)
	if res.Error != nil {
		return mapError("update user", res.Error)
	}
	if res.RowsAffected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

func (r userRepository) SetCurrentSession(ctx context.Context, userID string, sessionID *string, at time.Time) error {
	var value any
	if sessionID != nil {
		value = *sessionID
	}
	res := r.db.WithContext(ctx).
		Model(&userRow{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"current_session_id": value,
			"updated_at":         at.UTC(),
		})
	if res.Error != nil {
		return mapError("set current session", res.Error)
	}
	if res.RowsAffected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}
