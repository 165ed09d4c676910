package gormstore

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/example/studymates/internal/persistence"
)

// mapError converts driver and GORM errors into persistence sentinels.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return persistence.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey), isUniqueViolation(err):
		return fmt.Errorf("%s: %w", op, persistence.ErrDuplicate)
	}
	return fmt.Errorf("gormstore: %s: %w", op, err)
}

// isUniqueViolation catches unique index errors the dialect did not translate.
func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "sqlstate 23505")
}
