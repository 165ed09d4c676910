package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
)

// UserService manages the caller's own student profile and presence.
type UserService struct {
	store Store
	now   func() time.Time
	opts  serviceOptions
}

// NewUserService wires dependencies for the user service.
func NewUserService(store Store, now func() time.Time, opts ...Option) *UserService {
	if now == nil {
		now = time.Now
	}
	return &UserService{store: store, now: now, opts: newServiceOptions(opts)}
}

func (s *UserService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.opts.logger, "UserService", operation, attrs...)
}

// CreateProfile stores the caller's profile. The id comes from the principal and the
// email must belong to the campus domain.
func (s *UserService) CreateProfile(ctx context.Context, params CreateProfileParams) (user User, err error) {
	if s == nil {
		err = fmt.Errorf("UserService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CreateProfile", "principal_id", params.Principal.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create profile", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "profile created")
	}()

	if !params.Principal.Authenticated() {
		err = ErrUnauthenticated
		return
	}
	if s.store == nil {
		err = fmt.Errorf("store not configured")
		return
	}

	input := normalizeProfileInput(params.Input, params.Principal)
	vErr := s.validateProfileInput(input)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	now := s.now()
	user = User{
		ID:          params.Principal.UserID,
		Email:       input.Email,
		DisplayName: optionalString(input.DisplayName),
		Shape:       input.Shape,
		Color:       input.Color,
		AvatarURL:   optionalString(input.AvatarURL),
		IsOnline:    true,
		LastSeen:    &now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	user, err = s.store.Users().CreateUser(ctx, user)
	if err != nil {
		err = mapStoreError("create user", err)
		user = User{}
		return
	}
	return
}

// GetCurrentUser returns the caller's profile.
func (s *UserService) GetCurrentUser(ctx context.Context, principal Principal) (User, error) {
	if s == nil {
		return User{}, fmt.Errorf("UserService is nil")
	}
	if !principal.Authenticated() {
		return User{}, ErrUnauthenticated
	}
	if s.store == nil {
		return User{}, fmt.Errorf("store not configured")
	}

	user, err := s.store.Users().GetUser(ctx, principal.UserID)
	if err != nil {
		return User{}, mapStoreError("get user", err)
	}
	return user, nil
}

// WatchUser authorizes a location and presence subscription on another student. Students
// may watch themselves and anyone whose current session they are an active member of.
func (s *UserService) WatchUser(ctx context.Context, principal Principal, userID string) (user User, err error) {
	if s == nil {
		err = fmt.Errorf("UserService is nil")
		return
	}

	logger := s.loggerWith(ctx, "WatchUser", "principal_id", principal.UserID, "user_id", userID)
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "watch refused", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	if !principal.Authenticated() {
		err = ErrUnauthenticated
		return
	}
	if s.store == nil {
		err = fmt.Errorf("store not configured")
		return
	}

	user, err = s.store.Users().GetUser(ctx, userID)
	if err != nil {
		err = mapStoreError("get user", err)
		return
	}
	if user.ID == principal.UserID {
		return
	}
	if user.CurrentSessionID == nil {
		user, err = User{}, ErrNotAuthorized
		return
	}

	shared, err := s.store.Participants().ListParticipants(ctx, ParticipantFilter{
		SessionID: *user.CurrentSessionID,
		UserID:    principal.UserID,
		Status:    ParticipantStatusActive,
	})
	if err != nil {
		user, err = User{}, mapStoreError("list participants", err)
		return
	}
	if len(shared) == 0 {
		user, err = User{}, ErrNotAuthorized
	}
	return
}

// UpdateLocation records the caller's position, marks them online, and reports whether
// the point lies on campus.
func (s *UserService) UpdateLocation(ctx context.Context, principal Principal, location Location) (update LocationUpdate, err error) {
	if s == nil {
		err = fmt.Errorf("UserService is nil")
		return
	}
	if !validLocation(location) {
		vErr := &ValidationError{}
		vErr.add("location", "location must be a valid latitude and longitude")
		err = vErr
		return
	}

	var changes changeSet
	logger := s.loggerWith(ctx, "UpdateLocation", "principal_id", principal.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update location", "error", err, "error_kind", ErrorKind(err))
			return
		}
		s.opts.publish(ctx, logger, changes)
	}()

	now := s.now()
	loc := location
	update.User, err = s.mutate(ctx, principal, func(u *User) {
		u.CurrentLocation = &loc
		u.IsOnline = true
		u.LastSeen = &now
		u.UpdatedAt = now
	})
	if err != nil {
		return
	}
	update.OnCampus = s.opts.campus.Contains(locationPoint(location))
	changes.user(update.User, now)
	return
}

// UpdatePresence sets the caller's online flag and refreshes last-seen.
func (s *UserService) UpdatePresence(ctx context.Context, principal Principal, online bool) (user User, err error) {
	if s == nil {
		err = fmt.Errorf("UserService is nil")
		return
	}

	var changes changeSet
	logger := s.loggerWith(ctx, "UpdatePresence", "principal_id", principal.UserID, "online", online)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update presence", "error", err, "error_kind", ErrorKind(err))
			return
		}
		s.opts.publish(ctx, logger, changes)
	}()

	now := s.now()
	user, err = s.mutate(ctx, principal, func(u *User) {
		u.IsOnline = online
		u.LastSeen = &now
		u.UpdatedAt = now
	})
	if err != nil {
		return
	}
	changes.user(user, now)
	return
}

// ReconcileCurrentSession re-derives the caller's current-session pointer from their
// active memberships and repairs it when it has drifted.
func (s *UserService) ReconcileCurrentSession(ctx context.Context, principal Principal) (user User, err error) {
	if s == nil {
		err = fmt.Errorf("UserService is nil")
		return
	}

	var changes changeSet
	logger := s.loggerWith(ctx, "ReconcileCurrentSession", "principal_id", principal.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to reconcile current session", "error", err, "error_kind", ErrorKind(err))
			return
		}
		if len(changes) > 0 {
			s.opts.publish(ctx, logger, changes)
			logger.InfoContext(ctx, "current session repaired")
		}
	}()

	if !principal.Authenticated() {
		err = ErrUnauthenticated
		return
	}
	if s.store == nil {
		err = fmt.Errorf("store not configured")
		return
	}

	now := s.now()
	err = s.store.WithinTx(ctx, func(tx Store) error {
		current, err := tx.Users().GetUser(ctx, principal.UserID)
		if err != nil {
			return mapStoreError("get user", err)
		}
		active, err := tx.Participants().ListParticipants(ctx, ParticipantFilter{
			UserID: principal.UserID,
			Status: ParticipantStatusActive,
		})
		if err != nil {
			return mapStoreError("list participants", err)
		}

		var want *string
		if n := len(active); n > 0 {
			// Most recent membership wins if older ones were never closed.
			id := active[n-1].SessionID
			want = &id
		}
		if sameSession(current.CurrentSessionID, want) {
			user = current
			return nil
		}

		if err := tx.Users().SetCurrentSession(ctx, principal.UserID, want, now); err != nil {
			return mapStoreError("set current session", err)
		}
		current.CurrentSessionID = want
		current.UpdatedAt = now
		user = current
		changes.currentSession(principal.UserID, want, now)
		return nil
	})
	if err != nil {
		user = User{}
	}
	return
}

func (s *UserService) mutate(ctx context.Context, principal Principal, apply func(*User)) (User, error) {
	if !principal.Authenticated() {
		return User{}, ErrUnauthenticated
	}
	if s.store == nil {
		return User{}, fmt.Errorf("store not configured")
	}

	var user User
	err := s.store.WithinTx(ctx, func(tx Store) error {
		current, err := tx.Users().GetUser(ctx, principal.UserID)
		if err != nil {
			return mapStoreError("get user", err)
		}
		apply(&current)
		updated, err := tx.Users().UpdateUser(ctx, current)
		if err != nil {
			return mapStoreError("update user", err)
		}
		user = updated
		return nil
	})
	return user, err
}

func sameSession(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func normalizeProfileInput(input ProfileInput, principal Principal) ProfileInput {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" {
		email = strings.ToLower(strings.TrimSpace(principal.Email))
	}
	return ProfileInput{
		Email:       email,
		DisplayName: strings.TrimSpace(input.DisplayName),
		Shape:       StudyShape(strings.ToLower(strings.TrimSpace(string(input.Shape)))),
		Color:       StudyColor(strings.ToLower(strings.TrimSpace(string(input.Color)))),
		AvatarURL:   strings.TrimSpace(input.AvatarURL),
	}
}

var errEmailDomain = errors.New("email domain not allowed")

func (s *UserService) validateProfileInput(input ProfileInput) *ValidationError {
	vErr := &ValidationError{}

	if input.Email == "" {
		vErr.add("email", "email is required")
	} else if _, err := mail.ParseAddress(input.Email); err != nil {
		vErr.add("email", "email is invalid")
	} else if err := checkEmailDomain(input.Email, s.opts.emailDomain); err != nil {
		vErr.add("email", fmt.Sprintf("email must be a @%s address", s.opts.emailDomain))
	}

	switch input.Shape {
	case StudyShapeCircle, StudyShapeSquare, StudyShapeTriangle, StudyShapeStar:
	default:
		vErr.add("study_personality_shape", "shape must be one of circle, square, triangle, star")
	}
	switch input.Color {
	case StudyColorRed, StudyColorBlue, StudyColorGreen, StudyColorYellow:
	default:
		vErr.add("study_personality_color", "colour must be one of red, blue, green, yellow")
	}
	if len(input.DisplayName) > 120 {
		vErr.add("display_name", "display name is too long")
	}

	return vErr
}

func checkEmailDomain(email, domain string) error {
	at := strings.LastIndex(email, "@")
	if at < 0 || !strings.EqualFold(email[at+1:], domain) {
		return errEmailDomain
	}
	return nil
}
