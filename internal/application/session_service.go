package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// SessionService serves session reads, pomodoro control, and discovery.
type SessionService struct {
	store Store
	now   func() time.Time
	opts  serviceOptions
}

// NewSessionService wires dependencies for the session service.
func NewSessionService(store Store, now func() time.Time, opts ...Option) *SessionService {
	if now == nil {
		now = time.Now
	}
	return &SessionService{store: store, now: now, opts: newServiceOptions(opts)}
}

func (s *SessionService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.opts.logger, "SessionService", operation, attrs...)
}

// GetSession returns a session by id for any signed-in user.
func (s *SessionService) GetSession(ctx context.Context, principal Principal, sessionID string) (Session, error) {
	if s == nil {
		return Session{}, fmt.Errorf("SessionService is nil")
	}
	if !principal.Authenticated() {
		return Session{}, ErrUnauthenticated
	}
	if s.store == nil {
		return Session{}, fmt.Errorf("store not configured")
	}

	session, err := s.store.Sessions().GetSession(ctx, sessionID)
	if err != nil {
		return Session{}, mapStoreError("get session", err)
	}
	return session, nil
}

// ListParticipants returns the active members of a session in join order, each with the
// profile fields shown on the session card.
func (s *SessionService) ListParticipants(ctx context.Context, principal Principal, sessionID string) (participants []ParticipantProfile, err error) {
	if s == nil {
		err = fmt.Errorf("SessionService is nil")
		return
	}

	logger := s.loggerWith(ctx, "ListParticipants",
		"principal_id", principal.UserID,
		"session_id", sessionID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list participants", "error", err, "error_kind", ErrorKind(err))
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

	if _, err = s.store.Sessions().GetSession(ctx, sessionID); err != nil {
		err = mapStoreError("get session", err)
		return
	}

	participants, err = s.store.Participants().ListParticipantProfiles(ctx, ParticipantFilter{
		SessionID: sessionID,
		Status:    ParticipantStatusActive,
	})
	if err != nil {
		err = mapStoreError("list participants", err)
		return
	}
	return
}

// UpdatePhase switches the pomodoro phase. Only the creator may drive the timer. When no
// next break is supplied, entering focus schedules one after the focus duration.
func (s *SessionService) UpdatePhase(ctx context.Context, params UpdatePhaseParams) (session Session, err error) {
	if s == nil {
		err = fmt.Errorf("SessionService is nil")
		return
	}

	started := time.Now()
	var changes changeSet
	logger := s.loggerWith(ctx, "UpdatePhase",
		"principal_id", params.Principal.UserID,
		"session_id", params.SessionID,
		"phase", string(params.Phase),
	)
	defer func() {
		s.opts.observe("UpdatePhase", started, err)
		if err != nil {
			logger.ErrorContext(ctx, "failed to update phase", "error", err, "error_kind", ErrorKind(err))
			return
		}
		s.opts.publish(ctx, logger, changes)
		logger.InfoContext(ctx, "phase updated")
	}()

	if !params.Principal.Authenticated() {
		err = ErrUnauthenticated
		return
	}
	if s.store == nil {
		err = fmt.Errorf("store not configured")
		return
	}
	if params.Phase != PhaseFocus && params.Phase != PhaseBreak {
		vErr := &ValidationError{}
		vErr.add("current_phase", "phase must be focus or break")
		err = vErr
		return
	}

	now := s.now()
	err = s.store.WithinTx(ctx, func(tx Store) error {
		current, err := tx.Sessions().GetSession(ctx, params.SessionID)
		if err != nil {
			return mapStoreError("get session", err)
		}
		if current.CreatorID != params.Principal.UserID {
			return ErrNotAuthorized
		}
		if current.Status == SessionStatusCompleted {
			return conflictf("session %s has ended", current.ID)
		}

		current.CurrentPhase = params.Phase
		current.PhaseStartedAt = now
		switch {
		case params.NextBreakAt != nil:
			next := *params.NextBreakAt
			current.NextBreakAt = &next
		case params.Phase == PhaseFocus:
			next := now.Add(current.FocusDuration)
			current.NextBreakAt = &next
		default:
			current.NextBreakAt = nil
		}
		current.UpdatedAt = now

		updated, err := tx.Sessions().UpdateSession(ctx, current)
		if err != nil {
			return mapStoreError("update session", err)
		}
		session = updated
		changes.session(ChangeUpdate, updated, now)
		return nil
	})
	if err != nil {
		session = Session{}
	}
	return
}

// EndSession completes a session: every active member leaves and every pending request
// expires, atomically. Only the creator may end it.
func (s *SessionService) EndSession(ctx context.Context, principal Principal, sessionID string) (session Session, err error) {
	if s == nil {
		err = fmt.Errorf("SessionService is nil")
		return
	}

	started := time.Now()
	var changes changeSet
	logger := s.loggerWith(ctx, "EndSession",
		"principal_id", principal.UserID,
		"session_id", sessionID,
	)
	defer func() {
		s.opts.observe("EndSession", started, err)
		if err != nil {
			logger.ErrorContext(ctx, "failed to end session", "error", err, "error_kind", ErrorKind(err))
			return
		}
		s.opts.publish(ctx, logger, changes)
		logger.InfoContext(ctx, "session ended")
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
		current, err := tx.Sessions().GetSession(ctx, sessionID)
		if err != nil {
			return mapStoreError("get session", err)
		}
		if current.CreatorID != principal.UserID {
			return ErrNotAuthorized
		}
		if current.Status == SessionStatusCompleted {
			session = current
			return nil
		}

		members, err := tx.Participants().ListParticipants(ctx, ParticipantFilter{SessionID: sessionID, Status: ParticipantStatusActive})
		if err != nil {
			return mapStoreError("list participants", err)
		}
		if _, err := tx.Participants().CloseParticipants(ctx, ParticipantFilter{SessionID: sessionID}, ParticipantStatusLeft, now); err != nil {
			return mapStoreError("close participants", err)
		}
		for _, m := range members {
			if err := tx.Users().SetCurrentSession(ctx, m.UserID, nil, now); err != nil {
				return mapStoreError("set current session", err)
			}
			m.Status = ParticipantStatusLeft
			m.LeftAt = &now
			changes.participant(ChangeUpdate, m, now)
			changes.currentSession(m.UserID, nil, now)
		}
		if len(members) > 0 {
			if err := tx.Sessions().AdjustParticipantCount(ctx, sessionID, -len(members)); err != nil {
				return mapStoreError("adjust participant count", err)
			}
		}

		pending, err := tx.JoinRequests().ListJoinRequests(ctx, JoinRequestFilter{SessionID: sessionID, Status: JoinRequestStatusPending})
		if err != nil {
			return mapStoreError("list join requests", err)
		}
		for _, r := range pending {
			expired, err := tx.JoinRequests().TransitionJoinRequest(ctx, JoinRequestTransition{
				ID:        r.ID,
				From:      JoinRequestStatusPending,
				To:        JoinRequestStatusExpired,
				UpdatedAt: now,
			})
			if err != nil {
				return mapStoreError("expire join request", err)
			}
			changes.joinRequest(ChangeUpdate, expired, now)
		}

		current.Status = SessionStatusCompleted
		current.CurrentParticipants = 0
		current.NextBreakAt = nil
		current.UpdatedAt = now
		updated, err := tx.Sessions().UpdateSession(ctx, current)
		if err != nil {
			return mapStoreError("update session", err)
		}
		session = updated
		changes.session(ChangeUpdate, updated, now)
		return nil
	})
	if err != nil {
		session = Session{}
	}
	return
}

// NearbySessions finds active sessions with room to spare within the radius of the
// supplied location, closest first. Sessions the caller already belongs to are skipped.
func (s *SessionService) NearbySessions(ctx context.Context, params NearbySessionsParams) (sessions []NearbySession, err error) {
	if s == nil {
		err = fmt.Errorf("SessionService is nil")
		return
	}

	started := time.Now()
	logger := s.loggerWith(ctx, "NearbySessions", "principal_id", params.Principal.UserID)
	defer func() {
		s.opts.observe("NearbySessions", started, err)
		if err != nil {
			logger.ErrorContext(ctx, "failed to find nearby sessions", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("result_count", len(sessions)).DebugContext(ctx, "nearby sessions found")
	}()

	if !params.Principal.Authenticated() {
		err = ErrUnauthenticated
		return
	}
	if s.store == nil {
		err = fmt.Errorf("store not configured")
		return
	}

	vErr := &ValidationError{}
	if !validLocation(params.Location) {
		vErr.add("location", "location must be a valid latitude and longitude")
	}
	radius := params.RadiusMeters
	if radius == 0 {
		radius = s.opts.nearbyRadius
	}
	if radius < 0 || radius > 50000 {
		vErr.add("radius", "radius must be between 0 and 50000 meters")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	sessions, err = s.store.Sessions().NearbySessions(ctx, NearbyQuery{
		Center:        params.Location,
		RadiusMeters:  radius,
		ExcludeUserID: params.Principal.UserID,
	})
	if err != nil {
		err = mapStoreError("nearby sessions", err)
		return
	}
	return
}
