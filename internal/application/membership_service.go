package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// MembershipService runs the session membership workflow: hosting sessions, requesting
// to join, deciding requests, and joining or leaving.
type MembershipService struct {
	store       Store
	idGenerator func() string
	now         func() time.Time
	opts        serviceOptions
}

// NewMembershipService wires dependencies for the membership workflow.
func NewMembershipService(store Store, idGenerator func() string, now func() time.Time, opts ...Option) *MembershipService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &MembershipService{store: store, idGenerator: idGenerator, now: now, opts: newServiceOptions(opts)}
}

func (s *MembershipService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.opts.logger, "MembershipService", operation, attrs...)
}

// CreateSession stores a new session and joins its creator in the same transaction.
func (s *MembershipService) CreateSession(ctx context.Context, params CreateSessionParams) (session Session, err error) {
	if s == nil {
		err = fmt.Errorf("MembershipService is nil")
		return
	}

	started := time.Now()
	var changes changeSet
	logger := s.loggerWith(ctx, "CreateSession", "principal_id", params.Principal.UserID)
	defer func() {
		s.opts.observe("CreateSession", started, err)
		if err != nil {
			logger.ErrorContext(ctx, "failed to create session", "error", err, "error_kind", ErrorKind(err))
			return
		}
		s.opts.publish(ctx, logger, changes)
		logger.With("session_id", session.ID).InfoContext(ctx, "session created")
	}()

	if !params.Principal.Authenticated() {
		err = ErrUnauthenticated
		return
	}
	if s.store == nil {
		err = fmt.Errorf("store not configured")
		return
	}

	input, vErr := normalizeSessionInput(params.Input)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	now := s.now()
	draft := Session{
		ID:              s.idGenerator(),
		CreatorID:       params.Principal.UserID,
		Title:           optionalString(input.Title),
		Description:     optionalString(input.Description),
		Location:        input.Location,
		LocationName:    input.LocationName,
		SessionType:     input.SessionType,
		ConvenienceTags: input.ConvenienceTags,
		MaxParticipants: input.MaxParticipants,
		Status:          SessionStatusActive,
		FocusDuration:   input.FocusDuration,
		BreakDuration:   input.BreakDuration,
		CurrentPhase:    PhaseFocus,
		PhaseStartedAt:  now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	nextBreak := now.Add(input.FocusDuration)
	draft.NextBreakAt = &nextBreak

	err = s.store.WithinTx(ctx, func(tx Store) error {
		created, err := tx.Sessions().CreateSession(ctx, draft)
		if err != nil {
			return mapStoreError("create session", err)
		}
		changes.session(ChangeInsert, created, now)

		joined, err := s.join(ctx, tx, created, params.Principal.UserID, now, &changes)
		if err != nil {
			return err
		}
		session = joined
		return nil
	})
	if err != nil {
		session = Session{}
	}
	return
}

// RequestJoin files a pending request to join a session. A pending, unexpired request
// from the same caller is returned unchanged.
func (s *MembershipService) RequestJoin(ctx context.Context, principal Principal, sessionID string) (request JoinRequest, err error) {
	if s == nil {
		err = fmt.Errorf("MembershipService is nil")
		return
	}

	started := time.Now()
	var changes changeSet
	logger := s.loggerWith(ctx, "RequestJoin",
		"principal_id", principal.UserID,
		"session_id", sessionID,
	)
	defer func() {
		s.opts.observe("RequestJoin", started, err)
		if err != nil {
			logger.ErrorContext(ctx, "failed to request join", "error", err, "error_kind", ErrorKind(err))
			return
		}
		s.opts.publish(ctx, logger, changes)
		logger.With("join_request_id", request.ID).InfoContext(ctx, "join requested")
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
	raced := false
	err = s.store.WithinTx(ctx, func(tx Store) error {
		session, err := tx.Sessions().GetSession(ctx, sessionID)
		if err != nil {
			return mapStoreError("get session", err)
		}
		if session.Status == SessionStatusCompleted {
			return conflictf("session %s has ended", session.ID)
		}

		active, err := tx.Participants().ListParticipants(ctx, ParticipantFilter{
			SessionID: sessionID,
			UserID:    principal.UserID,
			Status:    ParticipantStatusActive,
		})
		if err != nil {
			return mapStoreError("list participants", err)
		}
		if len(active) > 0 {
			return fmt.Errorf("already a participant of session %s: %w", sessionID, ErrAlreadyExists)
		}

		pending, err := tx.JoinRequests().ListJoinRequests(ctx, JoinRequestFilter{
			SessionID:   sessionID,
			RequesterID: principal.UserID,
			Status:      JoinRequestStatusPending,
		})
		if err != nil {
			return mapStoreError("list join requests", err)
		}
		for _, existing := range pending {
			if !existing.Expired(now) {
				request = existing
				return nil
			}
			expired, err := tx.JoinRequests().TransitionJoinRequest(ctx, JoinRequestTransition{
				ID:        existing.ID,
				From:      JoinRequestStatusPending,
				To:        JoinRequestStatusExpired,
				UpdatedAt: now,
			})
			if err != nil && !errors.Is(mapStoreError("expire join request", err), ErrConflict) {
				return mapStoreError("expire join request", err)
			}
			if err == nil {
				changes.joinRequest(ChangeUpdate, expired, now)
			}
		}

		created, err := tx.JoinRequests().CreateJoinRequest(ctx, JoinRequest{
			ID:          s.idGenerator(),
			SessionID:   sessionID,
			RequesterID: principal.UserID,
			Status:      JoinRequestStatusPending,
			ExpiresAt:   now.Add(s.opts.joinRequestTTL),
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		if err != nil {
			err = mapStoreError("create join request", err)
			if errors.Is(err, ErrAlreadyExists) {
				raced = true
			}
			return err
		}
		request = created
		changes.joinRequest(ChangeInsert, created, now)
		return nil
	})

	if raced {
		// A concurrent request won the pending slot; hand back the winner.
		changes = nil
		request, err = s.pendingRequest(ctx, sessionID, principal.UserID, now)
	}
	return
}

func (s *MembershipService) pendingRequest(ctx context.Context, sessionID, requesterID string, now time.Time) (JoinRequest, error) {
	pending, err := s.store.JoinRequests().ListJoinRequests(ctx, JoinRequestFilter{
		SessionID:   sessionID,
		RequesterID: requesterID,
		Status:      JoinRequestStatusPending,
	})
	if err != nil {
		return JoinRequest{}, mapStoreError("list join requests", err)
	}
	for _, r := range pending {
		if !r.Expired(now) {
			return r, nil
		}
	}
	return JoinRequest{}, conflictf("join request for session %s changed concurrently", sessionID)
}

// ListPendingJoinRequests returns the open requests for a session, oldest first. Only the
// session creator may list them.
func (s *MembershipService) ListPendingJoinRequests(ctx context.Context, principal Principal, sessionID string) (requests []JoinRequest, err error) {
	if s == nil {
		err = fmt.Errorf("MembershipService is nil")
		return
	}

	started := time.Now()
	logger := s.loggerWith(ctx, "ListPendingJoinRequests",
		"principal_id", principal.UserID,
		"session_id", sessionID,
	)
	defer func() {
		s.opts.observe("ListPendingJoinRequests", started, err)
		if err != nil {
			logger.ErrorContext(ctx, "failed to list join requests", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("result_count", len(requests)).DebugContext(ctx, "join requests listed")
	}()

	if !principal.Authenticated() {
		err = ErrUnauthenticated
		return
	}
	if s.store == nil {
		err = fmt.Errorf("store not configured")
		return
	}

	var session Session
	session, err = s.store.Sessions().GetSession(ctx, sessionID)
	if err != nil {
		err = mapStoreError("get session", err)
		return
	}
	if session.CreatorID != principal.UserID {
		err = ErrNotAuthorized
		return
	}

	var raw []JoinRequest
	raw, err = s.store.JoinRequests().ListJoinRequests(ctx, JoinRequestFilter{
		SessionID: sessionID,
		Status:    JoinRequestStatusPending,
	})
	if err != nil {
		err = mapStoreError("list join requests", err)
		return
	}

	now := s.now()
	requests = make([]JoinRequest, 0, len(raw))
	for _, r := range raw {
		if r.Expired(now) {
			continue
		}
		requests = append(requests, r)
	}
	return
}

// AcceptJoinRequest approves a pending request, reveals the session location to the
// requester, and joins them, all in one transaction. Only the session creator may decide.
func (s *MembershipService) AcceptJoinRequest(ctx context.Context, principal Principal, requestID string) (request JoinRequest, err error) {
	return s.decide(ctx, "AcceptJoinRequest", principal, requestID, JoinRequestStatusAccepted)
}

// RejectJoinRequest declines a pending request. The request is marked withdrawn.
func (s *MembershipService) RejectJoinRequest(ctx context.Context, principal Principal, requestID string) (request JoinRequest, err error) {
	return s.decide(ctx, "RejectJoinRequest", principal, requestID, JoinRequestStatusWithdrawn)
}

func (s *MembershipService) decide(ctx context.Context, operation string, principal Principal, requestID string, to JoinRequestStatus) (request JoinRequest, err error) {
	if s == nil {
		err = fmt.Errorf("MembershipService is nil")
		return
	}

	started := time.Now()
	var changes changeSet
	logger := s.loggerWith(ctx, operation,
		"principal_id", principal.UserID,
		"join_request_id", requestID,
	)
	defer func() {
		s.opts.observe(operation, started, err)
		if err != nil {
			logger.ErrorContext(ctx, "failed to decide join request", "error", err, "error_kind", ErrorKind(err))
			return
		}
		s.opts.publish(ctx, logger, changes)
		logger.With("status", string(request.Status)).InfoContext(ctx, "join request decided")
	}()

	if !principal.Authenticated() {
		err = ErrUnauthenticated
		return
	}
	if s.store == nil {
		err = fmt.Errorf("store not configured")
		return
	}

	var release func()
	release, err = s.lockRequest(ctx, requestID)
	if err != nil {
		return
	}
	defer release()

	now := s.now()
	err = s.store.WithinTx(ctx, func(tx Store) error {
		current, err := tx.JoinRequests().GetJoinRequest(ctx, requestID)
		if err != nil {
			return mapStoreError("get join request", err)
		}
		session, err := tx.Sessions().GetSession(ctx, current.SessionID)
		if err != nil {
			return mapStoreError("get session", err)
		}
		if session.CreatorID != principal.UserID {
			return ErrNotAuthorized
		}
		if current.Status != JoinRequestStatusPending {
			return conflictf("join request %s is %s", current.ID, current.Status)
		}
		if current.Expired(now) {
			return conflictf("join request %s has expired", current.ID)
		}

		transition := JoinRequestTransition{
			ID:        current.ID,
			From:      JoinRequestStatusPending,
			To:        to,
			UpdatedAt: now,
		}
		if to == JoinRequestStatusAccepted {
			transition.AcceptedAt = &now
			transition.LocationRevealed = true
		}
		decided, err := tx.JoinRequests().TransitionJoinRequest(ctx, transition)
		if err != nil {
			return mapStoreError("transition join request", err)
		}
		changes.joinRequest(ChangeUpdate, decided, now)

		if to == JoinRequestStatusAccepted {
			if _, err := s.join(ctx, tx, session, current.RequesterID, now, &changes); err != nil {
				return err
			}
		}
		request = decided
		return nil
	})
	if err != nil {
		request = JoinRequest{}
	}
	return
}

// WithdrawJoinRequest lets a requester cancel their own pending request.
func (s *MembershipService) WithdrawJoinRequest(ctx context.Context, principal Principal, requestID string) (request JoinRequest, err error) {
	if s == nil {
		err = fmt.Errorf("MembershipService is nil")
		return
	}

	started := time.Now()
	var changes changeSet
	logger := s.loggerWith(ctx, "WithdrawJoinRequest",
		"principal_id", principal.UserID,
		"join_request_id", requestID,
	)
	defer func() {
		s.opts.observe("WithdrawJoinRequest", started, err)
		if err != nil {
			logger.ErrorContext(ctx, "failed to withdraw join request", "error", err, "error_kind", ErrorKind(err))
			return
		}
		s.opts.publish(ctx, logger, changes)
		logger.InfoContext(ctx, "join request withdrawn")
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
		current, err := tx.JoinRequests().GetJoinRequest(ctx, requestID)
		if err != nil {
			return mapStoreError("get join request", err)
		}
		if current.RequesterID != principal.UserID {
			return ErrNotAuthorized
		}
		if current.Status != JoinRequestStatusPending {
			return conflictf("join request %s is %s", current.ID, current.Status)
		}
		withdrawn, err := tx.JoinRequests().TransitionJoinRequest(ctx, JoinRequestTransition{
			ID:        current.ID,
			From:      JoinRequestStatusPending,
			To:        JoinRequestStatusWithdrawn,
			UpdatedAt: now,
		})
		if err != nil {
			return mapStoreError("transition join request", err)
		}
		request = withdrawn
		changes.joinRequest(ChangeUpdate, withdrawn, now)
		return nil
	})
	if err != nil {
		request = JoinRequest{}
	}
	return
}

// Join adds the caller to a session directly and points their current session at it.
func (s *MembershipService) Join(ctx context.Context, principal Principal, sessionID string) (session Session, err error) {
	if s == nil {
		err = fmt.Errorf("MembershipService is nil")
		return
	}

	started := time.Now()
	var changes changeSet
	logger := s.loggerWith(ctx, "Join",
		"principal_id", principal.UserID,
		"session_id", sessionID,
	)
	defer func() {
		s.opts.observe("Join", started, err)
		if err != nil {
			logger.ErrorContext(ctx, "failed to join session", "error", err, "error_kind", ErrorKind(err))
			return
		}
		s.opts.publish(ctx, logger, changes)
		logger.InfoContext(ctx, "session joined")
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
		joined, err := s.join(ctx, tx, current, principal.UserID, now, &changes)
		if err != nil {
			return err
		}
		session = joined
		return nil
	})
	if err != nil {
		session = Session{}
	}
	return
}

// join makes userID an active participant of session inside tx. Any other active
// membership of the user is closed first so the current-session pointer stays exact.
func (s *MembershipService) join(ctx context.Context, tx Store, session Session, userID string, now time.Time, changes *changeSet) (Session, error) {
	if session.Status == SessionStatusCompleted {
		return session, conflictf("session %s has ended", session.ID)
	}

	active, err := tx.Participants().ListParticipants(ctx, ParticipantFilter{
		UserID: userID,
		Status: ParticipantStatusActive,
	})
	if err != nil {
		return session, mapStoreError("list participants", err)
	}
	for _, p := range active {
		if p.SessionID == session.ID {
			return session, fmt.Errorf("already a participant of session %s: %w", session.ID, ErrAlreadyExists)
		}
	}
	if !session.HasCapacity() {
		return session, ErrSessionFull
	}

	for _, p := range active {
		if _, err := tx.Participants().CloseParticipants(ctx, ParticipantFilter{SessionID: p.SessionID, UserID: userID}, ParticipantStatusLeft, now); err != nil {
			return session, mapStoreError("close participants", err)
		}
		if err := tx.Sessions().AdjustParticipantCount(ctx, p.SessionID, -1); err != nil {
			return session, mapStoreError("adjust participant count", err)
		}
		left := p
		left.Status = ParticipantStatusLeft
		left.LeftAt = &now
		changes.participant(ChangeUpdate, left, now)
	}

	participant, err := tx.Participants().CreateParticipant(ctx, Participant{
		ID:        s.idGenerator(),
		SessionID: session.ID,
		UserID:    userID,
		Status:    ParticipantStatusActive,
		JoinedAt:  now,
	})
	if err != nil {
		return session, mapStoreError("create participant", err)
	}
	if err := tx.Sessions().AdjustParticipantCount(ctx, session.ID, 1); err != nil {
		err = mapStoreError("adjust participant count", err)
		if errors.Is(err, ErrConflict) {
			return session, ErrSessionFull
		}
		return session, err
	}
	session.CurrentParticipants++

	sessionID := session.ID
	if err := tx.Users().SetCurrentSession(ctx, userID, &sessionID, now); err != nil {
		return session, mapStoreError("set current session", err)
	}

	changes.participant(ChangeInsert, participant, now)
	changes.session(ChangeUpdate, session, now)
	changes.currentSession(userID, &sessionID, now)
	return session, nil
}

// Leave closes the caller's active membership and clears their current session.
func (s *MembershipService) Leave(ctx context.Context, principal Principal, sessionID string) (err error) {
	if s == nil {
		return fmt.Errorf("MembershipService is nil")
	}

	started := time.Now()
	var changes changeSet
	logger := s.loggerWith(ctx, "Leave",
		"principal_id", principal.UserID,
		"session_id", sessionID,
	)
	defer func() {
		s.opts.observe("Leave", started, err)
		if err != nil {
			logger.ErrorContext(ctx, "failed to leave session", "error", err, "error_kind", ErrorKind(err))
			return
		}
		s.opts.publish(ctx, logger, changes)
		logger.InfoContext(ctx, "session left")
	}()

	if !principal.Authenticated() {
		return ErrUnauthenticated
	}
	if s.store == nil {
		return fmt.Errorf("store not configured")
	}

	now := s.now()
	return s.store.WithinTx(ctx, func(tx Store) error {
		return s.closeMembership(ctx, tx, sessionID, principal.UserID, ParticipantStatusLeft, now, &changes)
	})
}

// RemoveParticipant lets the session creator remove another member.
func (s *MembershipService) RemoveParticipant(ctx context.Context, principal Principal, sessionID, userID string) (err error) {
	if s == nil {
		return fmt.Errorf("MembershipService is nil")
	}

	started := time.Now()
	var changes changeSet
	logger := s.loggerWith(ctx, "RemoveParticipant",
		"principal_id", principal.UserID,
		"session_id", sessionID,
		"user_id", userID,
	)
	defer func() {
		s.opts.observe("RemoveParticipant", started, err)
		if err != nil {
			logger.ErrorContext(ctx, "failed to remove participant", "error", err, "error_kind", ErrorKind(err))
			return
		}
		s.opts.publish(ctx, logger, changes)
		logger.InfoContext(ctx, "participant removed")
	}()

	if !principal.Authenticated() {
		return ErrUnauthenticated
	}
	if s.store == nil {
		return fmt.Errorf("store not configured")
	}
	if userID == principal.UserID {
		vErr := &ValidationError{}
		vErr.add("user_id", "the host cannot remove themselves; leave or end the session instead")
		return vErr
	}

	now := s.now()
	return s.store.WithinTx(ctx, func(tx Store) error {
		session, err := tx.Sessions().GetSession(ctx, sessionID)
		if err != nil {
			return mapStoreError("get session", err)
		}
		if session.CreatorID != principal.UserID {
			return ErrNotAuthorized
		}
		return s.closeMembership(ctx, tx, sessionID, userID, ParticipantStatusRemoved, now, &changes)
	})
}

func (s *MembershipService) closeMembership(ctx context.Context, tx Store, sessionID, userID string, status ParticipantStatus, now time.Time, changes *changeSet) error {
	filter := ParticipantFilter{SessionID: sessionID, UserID: userID}
	activeFilter := filter
	activeFilter.Status = ParticipantStatusActive
	active, err := tx.Participants().ListParticipants(ctx, activeFilter)
	if err != nil {
		return mapStoreError("list participants", err)
	}
	closed, err := tx.Participants().CloseParticipants(ctx, filter, status, now)
	if err != nil {
		return mapStoreError("close participants", err)
	}
	if closed == 0 {
		if _, err := tx.Sessions().GetSession(ctx, sessionID); err != nil {
			return mapStoreError("get session", err)
		}
		return fmt.Errorf("no active membership in session %s: %w", sessionID, ErrNotFound)
	}
	if err := tx.Sessions().AdjustParticipantCount(ctx, sessionID, -closed); err != nil {
		return mapStoreError("adjust participant count", err)
	}
	if err := tx.Users().SetCurrentSession(ctx, userID, nil, now); err != nil && !errors.Is(mapStoreError("", err), ErrNotFound) {
		return mapStoreError("set current session", err)
	}

	for _, p := range active {
		p.Status = status
		p.LeftAt = &now
		changes.participant(ChangeUpdate, p, now)
	}
	changes.currentSession(userID, nil, now)
	return nil
}

// ExpireJoinRequests marks every pending request past its expiry as expired and returns
// how many changed.
func (s *MembershipService) ExpireJoinRequests(ctx context.Context) (expired int, err error) {
	if s == nil {
		return 0, fmt.Errorf("MembershipService is nil")
	}
	if s.store == nil {
		return 0, fmt.Errorf("store not configured")
	}

	started := time.Now()
	defer func() { s.opts.observe("ExpireJoinRequests", started, err) }()

	expired, err = s.store.JoinRequests().ExpireJoinRequests(ctx, s.now())
	if err != nil {
		err = mapStoreError("expire join requests", err)
		s.loggerWith(ctx, "ExpireJoinRequests").ErrorContext(ctx, "failed to expire join requests", "error", err, "error_kind", ErrorKind(err))
		return 0, err
	}
	if expired > 0 {
		s.loggerWith(ctx, "ExpireJoinRequests").InfoContext(ctx, "join requests expired", "count", expired)
	}
	return expired, nil
}

// RunExpirySweeper calls ExpireJoinRequests every interval until ctx is cancelled.
func (s *MembershipService) RunExpirySweeper(ctx context.Context, interval time.Duration) {
	if s == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Failures are logged by ExpireJoinRequests; the next tick retries.
			_, _ = s.ExpireJoinRequests(ctx)
		}
	}
}

func (s *MembershipService) lockRequest(ctx context.Context, requestID string) (func(), error) {
	if s.opts.locker == nil {
		return func() {}, nil
	}
	release, acquired, err := s.opts.locker.Acquire(ctx, "join_request:"+requestID, s.opts.lockTTL)
	if err != nil {
		return nil, &StoreError{Op: "acquire lock", Err: err}
	}
	if !acquired {
		return nil, conflictf("join request %s is being decided", requestID)
	}
	return func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.loggerWith(ctx, "ReleaseLock", "join_request_id", requestID).
				WarnContext(ctx, "failed to release lock", "error", err)
		}
	}, nil
}
