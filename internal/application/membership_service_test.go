package application

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

var campusLibrary = Location{Latitude: -33.9173, Longitude: 151.2313}

type membershipHarness struct {
	store    *memStore
	now      time.Time
	seq      int
	svc      *MembershipService
	pub      *recordingPublisher
	locker   *stubLocker
	recorder *stubRecorder
}

func newMembershipHarness(t *testing.T) *membershipHarness {
	t.Helper()
	h := &membershipHarness{
		store:    newMemStore(),
		now:      time.Date(2024, time.March, 14, 9, 0, 0, 0, time.UTC),
		pub:      &recordingPublisher{},
		locker:   &stubLocker{},
		recorder: &stubRecorder{},
	}
	h.svc = NewMembershipService(h.store,
		func() string {
			h.seq++
			return fmt.Sprintf("id-%d", h.seq)
		},
		func() time.Time { return h.now },
		WithChangePublisher(h.pub),
		WithLocker(h.locker),
		WithRecorder(h.recorder),
	)
	return h
}

func (h *membershipHarness) advance(d time.Duration) { h.now = h.now.Add(d) }

func (h *membershipHarness) hostSession(t *testing.T, creator string, max int) Session {
	t.Helper()
	if _, ok := h.store.users[creator]; !ok {
		h.store.addUser(creator)
	}
	session, err := h.svc.CreateSession(context.Background(), CreateSessionParams{
		Principal: Principal{UserID: creator},
		Input: SessionInput{
			Title:           "COMP1511 revision",
			Location:        campusLibrary,
			LocationName:    "Main Library L3",
			SessionType:     SessionTypeRevision,
			MaxParticipants: max,
		},
	})
	if err != nil {
		t.Fatalf("expected session to be created, got %v", err)
	}
	return session
}

func TestMembershipService_CreateSession(t *testing.T) {
	t.Run("requires a signed in user", func(t *testing.T) {
		h := newMembershipHarness(t)

		_, err := h.svc.CreateSession(context.Background(), CreateSessionParams{
			Input: SessionInput{Location: campusLibrary, LocationName: "Library"},
		})
		if !errors.Is(err, ErrUnauthenticated) {
			t.Fatalf("expected ErrUnauthenticated, got %v", err)
		}
		if len(h.store.sessions) != 0 {
			t.Fatalf("expected no session to be stored")
		}
	})

	t.Run("validates input", func(t *testing.T) {
		h := newMembershipHarness(t)
		h.store.addUser("host")

		_, err := h.svc.CreateSession(context.Background(), CreateSessionParams{
			Principal: Principal{UserID: "host"},
			Input: SessionInput{
				Location:        Location{Latitude: 120, Longitude: 0},
				LocationName:    "  ",
				SessionType:     "napping",
				MaxParticipants: -1,
			},
		})

		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		for _, field := range []string{"location", "location_name", "session_type", "max_participants"} {
			if _, ok := vErr.FieldErrors[field]; !ok {
				t.Fatalf("expected %s validation error, got %v", field, vErr.FieldErrors)
			}
		}
	})

	t.Run("applies defaults and joins the creator", func(t *testing.T) {
		h := newMembershipHarness(t)
		h.store.addUser("host")

		session, err := h.svc.CreateSession(context.Background(), CreateSessionParams{
			Principal: Principal{UserID: "host"},
			Input: SessionInput{
				Location:        campusLibrary,
				LocationName:    "  Main Library L3 ",
				ConvenienceTags: []string{"Quiet", "quiet", " power "},
			},
		})
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}

		if session.MaxParticipants != 6 {
			t.Fatalf("expected default max participants 6, got %d", session.MaxParticipants)
		}
		if session.FocusDuration != 25*time.Minute || session.BreakDuration != 5*time.Minute {
			t.Fatalf("expected 1500s/300s defaults, got %v/%v", session.FocusDuration, session.BreakDuration)
		}
		if session.LocationName != "Main Library L3" {
			t.Fatalf("expected trimmed location name, got %q", session.LocationName)
		}
		if got := session.ConvenienceTags; len(got) != 2 || got[0] != "quiet" || got[1] != "power" {
			t.Fatalf("expected normalised tags, got %v", got)
		}
		if session.Status != SessionStatusActive || session.CurrentPhase != PhaseFocus {
			t.Fatalf("expected active focus session, got %s/%s", session.Status, session.CurrentPhase)
		}
		if session.CurrentParticipants != 1 {
			t.Fatalf("expected creator to be counted, got %d", session.CurrentParticipants)
		}

		members := h.store.activeParticipants(session.ID)
		if len(members) != 1 || members[0].UserID != "host" {
			t.Fatalf("expected creator to be the only active participant, got %+v", members)
		}
		host := h.store.users["host"]
		if host.CurrentSessionID == nil || *host.CurrentSessionID != session.ID {
			t.Fatalf("expected creator current session to point at %s, got %v", session.ID, host.CurrentSessionID)
		}
		if len(h.pub.changes) == 0 {
			t.Fatalf("expected changes to be published")
		}
		if h.recorder.count("CreateSession/") != 1 {
			t.Fatalf("expected successful operation to be recorded")
		}
	})

	t.Run("rolls back the session when joining the creator fails", func(t *testing.T) {
		h := newMembershipHarness(t)
		h.store.addUser("host")
		h.store.failOn["SetCurrentSession"] = errors.New("disk on fire")

		_, err := h.svc.CreateSession(context.Background(), CreateSessionParams{
			Principal: Principal{UserID: "host"},
			Input:     SessionInput{Location: campusLibrary, LocationName: "Library"},
		})

		var sErr *StoreError
		if !errors.As(err, &sErr) {
			t.Fatalf("expected StoreError, got %v", err)
		}
		if len(h.store.sessions) != 0 || len(h.store.participants) != 0 {
			t.Fatalf("expected no partial writes, got %d sessions and %d participants", len(h.store.sessions), len(h.store.participants))
		}
		if len(h.pub.changes) != 0 {
			t.Fatalf("expected nothing to be published on failure")
		}
		if h.recorder.count("CreateSession/store") != 1 {
			t.Fatalf("expected failure to be recorded with its kind")
		}
	})
}

func TestMembershipService_RequestJoin(t *testing.T) {
	t.Run("requires a signed in user", func(t *testing.T) {
		h := newMembershipHarness(t)
		session := h.hostSession(t, "host", 0)

		if _, err := h.svc.RequestJoin(context.Background(), Principal{}, session.ID); !errors.Is(err, ErrUnauthenticated) {
			t.Fatalf("expected ErrUnauthenticated, got %v", err)
		}
	})

	t.Run("reports unknown sessions", func(t *testing.T) {
		h := newMembershipHarness(t)

		if _, err := h.svc.RequestJoin(context.Background(), Principal{UserID: "guest"}, "missing"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("creates a pending request that expires in an hour", func(t *testing.T) {
		h := newMembershipHarness(t)
		session := h.hostSession(t, "host", 0)

		req, err := h.svc.RequestJoin(context.Background(), Principal{UserID: "guest"}, session.ID)
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if req.Status != JoinRequestStatusPending {
			t.Fatalf("expected pending, got %s", req.Status)
		}
		if !req.ExpiresAt.Equal(h.now.Add(time.Hour)) {
			t.Fatalf("expected expiry one hour out, got %v", req.ExpiresAt)
		}
		if req.LocationRevealed || req.AcceptedAt != nil {
			t.Fatalf("expected undecided request, got %+v", req)
		}
	})

	t.Run("returns the existing pending request", func(t *testing.T) {
		h := newMembershipHarness(t)
		session := h.hostSession(t, "host", 0)
		guest := Principal{UserID: "guest"}

		first, err := h.svc.RequestJoin(context.Background(), guest, session.ID)
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		h.advance(10 * time.Minute)
		second, err := h.svc.RequestJoin(context.Background(), guest, session.ID)
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}

		if first.ID != second.ID {
			t.Fatalf("expected the same request, got %s and %s", first.ID, second.ID)
		}
		if len(h.store.requests) != 1 {
			t.Fatalf("expected a single stored request, got %d", len(h.store.requests))
		}
	})

	t.Run("replaces an expired pending request", func(t *testing.T) {
		h := newMembershipHarness(t)
		session := h.hostSession(t, "host", 0)
		guest := Principal{UserID: "guest"}

		first, _ := h.svc.RequestJoin(context.Background(), guest, session.ID)
		h.advance(61 * time.Minute)
		second, err := h.svc.RequestJoin(context.Background(), guest, session.ID)
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}

		if first.ID == second.ID {
			t.Fatalf("expected a fresh request after expiry")
		}
		if got := h.store.requests[first.ID].Status; got != JoinRequestStatusExpired {
			t.Fatalf("expected old request to be expired, got %s", got)
		}
	})

	t.Run("returns the concurrent winner when the insert loses a race", func(t *testing.T) {
		h := newMembershipHarness(t)
		session := h.hostSession(t, "host", 0)
		published := len(h.pub.changes)

		winner := JoinRequest{
			ID:          "winner",
			SessionID:   session.ID,
			RequesterID: "guest",
			Status:      JoinRequestStatusPending,
			ExpiresAt:   h.now.Add(time.Hour),
			CreatedAt:   h.now,
			UpdatedAt:   h.now,
		}
		h.store.concurrentRequest = &winner

		req, err := h.svc.RequestJoin(context.Background(), Principal{UserID: "guest"}, session.ID)
		if err != nil {
			t.Fatalf("expected the winner to be returned, got %v", err)
		}
		if req.ID != "winner" {
			t.Fatalf("expected winner, got %s", req.ID)
		}
		if len(h.store.requests) != 1 {
			t.Fatalf("expected only the winning request to be stored, got %d", len(h.store.requests))
		}
		if got := len(h.pub.changes); got != published {
			t.Fatalf("expected nothing published for a lost race, got %d new changes", got-published)
		}
	})

	t.Run("rejects members and ended sessions", func(t *testing.T) {
		h := newMembershipHarness(t)
		session := h.hostSession(t, "host", 0)

		if _, err := h.svc.RequestJoin(context.Background(), Principal{UserID: "host"}, session.ID); !errors.Is(err, ErrAlreadyExists) {
			t.Fatalf("expected ErrAlreadyExists for a member, got %v", err)
		}

		ended := h.store.sessions[session.ID]
		ended.Status = SessionStatusCompleted
		h.store.sessions[session.ID] = ended
		if _, err := h.svc.RequestJoin(context.Background(), Principal{UserID: "guest"}, session.ID); !errors.Is(err, ErrConflict) {
			t.Fatalf("expected ErrConflict for an ended session, got %v", err)
		}
	})
}

func TestMembershipService_ListPendingJoinRequests(t *testing.T) {
	t.Run("is limited to the creator", func(t *testing.T) {
		h := newMembershipHarness(t)
		session := h.hostSession(t, "host", 0)

		_, err := h.svc.ListPendingJoinRequests(context.Background(), Principal{UserID: "guest"}, session.ID)
		if !errors.Is(err, ErrNotAuthorized) {
			t.Fatalf("expected ErrNotAuthorized, got %v", err)
		}
		if _, err := h.svc.ListPendingJoinRequests(context.Background(), Principal{}, session.ID); !errors.Is(err, ErrUnauthenticated) {
			t.Fatalf("expected ErrUnauthenticated, got %v", err)
		}
	})

	t.Run("lists open requests oldest first and hides expired ones", func(t *testing.T) {
		h := newMembershipHarness(t)
		session := h.hostSession(t, "host", 0)

		stale, _ := h.svc.RequestJoin(context.Background(), Principal{UserID: "stale"}, session.ID)
		h.advance(30 * time.Minute)
		older, _ := h.svc.RequestJoin(context.Background(), Principal{UserID: "older"}, session.ID)
		h.advance(5 * time.Minute)
		newer, _ := h.svc.RequestJoin(context.Background(), Principal{UserID: "newer"}, session.ID)
		h.advance(26 * time.Minute)

		got, err := h.svc.ListPendingJoinRequests(context.Background(), Principal{UserID: "host"}, session.ID)
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if len(got) != 2 || got[0].ID != older.ID || got[1].ID != newer.ID {
			t.Fatalf("expected [%s %s], got %+v", older.ID, newer.ID, got)
		}
		for _, r := range got {
			if r.ID == stale.ID {
				t.Fatalf("expected expired request to be hidden")
			}
		}
	})
}

func TestMembershipService_AcceptJoinRequest(t *testing.T) {
	t.Run("joins the requester and reveals the location", func(t *testing.T) {
		h := newMembershipHarness(t)
		session := h.hostSession(t, "host", 0)
		h.store.addUser("guest")
		req, _ := h.svc.RequestJoin(context.Background(), Principal{UserID: "guest"}, session.ID)
		h.advance(time.Minute)

		accepted, err := h.svc.AcceptJoinRequest(context.Background(), Principal{UserID: "host"}, req.ID)
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}

		if accepted.Status != JoinRequestStatusAccepted || !accepted.LocationRevealed {
			t.Fatalf("expected accepted request with revealed location, got %+v", accepted)
		}
		if accepted.AcceptedAt == nil || !accepted.AcceptedAt.Equal(h.now) {
			t.Fatalf("expected accepted_at %v, got %v", h.now, accepted.AcceptedAt)
		}
		members := h.store.activeParticipants(session.ID)
		if len(members) != 2 || members[1].UserID != "guest" {
			t.Fatalf("expected guest to be the second active participant, got %+v", members)
		}
		guest := h.store.users["guest"]
		if guest.CurrentSessionID == nil || *guest.CurrentSessionID != session.ID {
			t.Fatalf("expected guest current session to be set, got %v", guest.CurrentSessionID)
		}
		if h.store.sessions[session.ID].CurrentParticipants != 2 {
			t.Fatalf("expected participant count 2, got %d", h.store.sessions[session.ID].CurrentParticipants)
		}
		if len(h.locker.released) != 1 {
			t.Fatalf("expected the decision lock to be released")
		}
	})

	t.Run("only the creator may decide", func(t *testing.T) {
		h := newMembershipHarness(t)
		session := h.hostSession(t, "host", 0)
		req, _ := h.svc.RequestJoin(context.Background(), Principal{UserID: "guest"}, session.ID)

		if _, err := h.svc.AcceptJoinRequest(context.Background(), Principal{UserID: "guest"}, req.ID); !errors.Is(err, ErrNotAuthorized) {
			t.Fatalf("expected ErrNotAuthorized, got %v", err)
		}
		if got := h.store.requests[req.ID].Status; got != JoinRequestStatusPending {
			t.Fatalf("expected request to stay pending, got %s", got)
		}
	})

	t.Run("reports unknown requests", func(t *testing.T) {
		h := newMembershipHarness(t)

		if _, err := h.svc.AcceptJoinRequest(context.Background(), Principal{UserID: "host"}, "missing"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("refuses requests that are no longer pending", func(t *testing.T) {
		h := newMembershipHarness(t)
		session := h.hostSession(t, "host", 0)
		h.store.addUser("guest")
		req, _ := h.svc.RequestJoin(context.Background(), Principal{UserID: "guest"}, session.ID)

		if _, err := h.svc.AcceptJoinRequest(context.Background(), Principal{UserID: "host"}, req.ID); err != nil {
			t.Fatalf("expected first accept to succeed, got %v", err)
		}
		if _, err := h.svc.AcceptJoinRequest(context.Background(), Principal{UserID: "host"}, req.ID); !errors.Is(err, ErrConflict) {
			t.Fatalf("expected ErrConflict on second accept, got %v", err)
		}
		if _, err := h.svc.RejectJoinRequest(context.Background(), Principal{UserID: "host"}, req.ID); !errors.Is(err, ErrConflict) {
			t.Fatalf("expected ErrConflict when rejecting an accepted request, got %v", err)
		}
		if n := len(h.store.activeParticipants(session.ID)); n != 2 {
			t.Fatalf("expected exactly two active participants, got %d", n)
		}
	})

	t.Run("refuses expired requests", func(t *testing.T) {
		h := newMembershipHarness(t)
		session := h.hostSession(t, "host", 0)
		h.store.addUser("guest")
		req, _ := h.svc.RequestJoin(context.Background(), Principal{UserID: "guest"}, session.ID)
		h.advance(time.Hour)

		if _, err := h.svc.AcceptJoinRequest(context.Background(), Principal{UserID: "host"}, req.ID); !errors.Is(err, ErrConflict) {
			t.Fatalf("expected ErrConflict for an expired request, got %v", err)
		}
		if n := len(h.store.activeParticipants(session.ID)); n != 1 {
			t.Fatalf("expected only the host to be active, got %d", n)
		}
	})

	t.Run("leaves no trace when the join fails", func(t *testing.T) {
		h := newMembershipHarness(t)
		session := h.hostSession(t, "host", 0)
		h.store.addUser("guest")
		req, _ := h.svc.RequestJoin(context.Background(), Principal{UserID: "guest"}, session.ID)
		h.store.failOn["SetCurrentSession"] = errors.New("connection reset")

		_, err := h.svc.AcceptJoinRequest(context.Background(), Principal{UserID: "host"}, req.ID)
		var sErr *StoreError
		if !errors.As(err, &sErr) {
			t.Fatalf("expected StoreError, got %v", err)
		}
		if got := h.store.requests[req.ID].Status; got != JoinRequestStatusPending {
			t.Fatalf("expected request to roll back to pending, got %s", got)
		}
		if n := len(h.store.activeParticipants(session.ID)); n != 1 {
			t.Fatalf("expected no new participant, got %d active", n)
		}
	})

	t.Run("fails when the session is full", func(t *testing.T) {
		h := newMembershipHarness(t)
		session := h.hostSession(t, "host", 1)
		h.store.addUser("guest")
		req, _ := h.svc.RequestJoin(context.Background(), Principal{UserID: "guest"}, session.ID)

		if _, err := h.svc.AcceptJoinRequest(context.Background(), Principal{UserID: "host"}, req.ID); !errors.Is(err, ErrSessionFull) {
			t.Fatalf("expected ErrSessionFull, got %v", err)
		}
		if got := h.store.requests[req.ID].Status; got != JoinRequestStatusPending {
			t.Fatalf("expected request to stay pending, got %s", got)
		}
	})

	t.Run("refuses while another decision holds the lock", func(t *testing.T) {
		h := newMembershipHarness(t)
		session := h.hostSession(t, "host", 0)
		req, _ := h.svc.RequestJoin(context.Background(), Principal{UserID: "guest"}, session.ID)
		h.locker.held = map[string]bool{"join_request:" + req.ID: true}

		if _, err := h.svc.AcceptJoinRequest(context.Background(), Principal{UserID: "host"}, req.ID); !errors.Is(err, ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}
	})
}

func TestMembershipService_RejectAndWithdraw(t *testing.T) {
	t.Run("reject marks the request withdrawn without joining", func(t *testing.T) {
		h := newMembershipHarness(t)
		session := h.hostSession(t, "host", 0)
		req, _ := h.svc.RequestJoin(context.Background(), Principal{UserID: "guest"}, session.ID)

		rejected, err := h.svc.RejectJoinRequest(context.Background(), Principal{UserID: "host"}, req.ID)
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if rejected.Status != JoinRequestStatusWithdrawn || rejected.LocationRevealed {
			t.Fatalf("expected withdrawn request without location, got %+v", rejected)
		}
		if n := len(h.store.activeParticipants(session.ID)); n != 1 {
			t.Fatalf("expected no participant side effects, got %d active", n)
		}
	})

	t.Run("withdraw is limited to the requester", func(t *testing.T) {
		h := newMembershipHarness(t)
		session := h.hostSession(t, "host", 0)
		req, _ := h.svc.RequestJoin(context.Background(), Principal{UserID: "guest"}, session.ID)

		if _, err := h.svc.WithdrawJoinRequest(context.Background(), Principal{UserID: "host"}, req.ID); !errors.Is(err, ErrNotAuthorized) {
			t.Fatalf("expected ErrNotAuthorized, got %v", err)
		}
		withdrawn, err := h.svc.WithdrawJoinRequest(context.Background(), Principal{UserID: "guest"}, req.ID)
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if withdrawn.Status != JoinRequestStatusWithdrawn {
			t.Fatalf("expected withdrawn, got %s", withdrawn.Status)
		}
	})
}

func TestMembershipService_JoinAndLeave(t *testing.T) {
	t.Run("joining moves the user out of their previous session", func(t *testing.T) {
		h := newMembershipHarness(t)
		first := h.hostSession(t, "alice", 0)
		second := h.hostSession(t, "bob", 0)
		h.store.addUser("carol")

		if _, err := h.svc.Join(context.Background(), Principal{UserID: "carol"}, first.ID); err != nil {
			t.Fatalf("expected join to succeed, got %v", err)
		}
		if _, err := h.svc.Join(context.Background(), Principal{UserID: "carol"}, second.ID); err != nil {
			t.Fatalf("expected second join to succeed, got %v", err)
		}

		if n := len(h.store.activeParticipants(first.ID)); n != 1 {
			t.Fatalf("expected carol to have left the first session, got %d active", n)
		}
		if h.store.sessions[first.ID].CurrentParticipants != 1 {
			t.Fatalf("expected first session count to drop back to 1")
		}
		carol := h.store.users["carol"]
		if carol.CurrentSessionID == nil || *carol.CurrentSessionID != second.ID {
			t.Fatalf("expected current session %s, got %v", second.ID, carol.CurrentSessionID)
		}
	})

	t.Run("joining twice reports AlreadyExists", func(t *testing.T) {
		h := newMembershipHarness(t)
		session := h.hostSession(t, "host", 0)

		if _, err := h.svc.Join(context.Background(), Principal{UserID: "host"}, session.ID); !errors.Is(err, ErrAlreadyExists) {
			t.Fatalf("expected ErrAlreadyExists, got %v", err)
		}
	})

	t.Run("leave closes the membership and clears the pointer", func(t *testing.T) {
		h := newMembershipHarness(t)
		session := h.hostSession(t, "host", 0)
		h.store.addUser("guest")
		if _, err := h.svc.Join(context.Background(), Principal{UserID: "guest"}, session.ID); err != nil {
			t.Fatalf("expected join to succeed, got %v", err)
		}
		h.advance(45 * time.Minute)
		published := len(h.pub.changes)

		if err := h.svc.Leave(context.Background(), Principal{UserID: "guest"}, session.ID); err != nil {
			t.Fatalf("expected leave to succeed, got %v", err)
		}

		var row Participant
		for _, p := range h.store.participants {
			if p.UserID == "guest" {
				row = p
			}
		}
		if row.Status != ParticipantStatusLeft || row.LeftAt == nil || !row.LeftAt.Equal(h.now) {
			t.Fatalf("expected left row stamped at %v, got %+v", h.now, row)
		}
		var leftChange *Change
		for i, c := range h.pub.changes[published:] {
			if c.Table == TableParticipants {
				leftChange = &h.pub.changes[published+i]
			}
		}
		if leftChange == nil || leftChange.RecordID == "" || leftChange.RecordID != row.ID {
			t.Fatalf("expected participant change for row %q, got %+v", row.ID, leftChange)
		}
		if rec, ok := leftChange.Record.(Participant); !ok || rec.Status != ParticipantStatusLeft || rec.UserID != "guest" {
			t.Fatalf("expected left participant record, got %+v", leftChange.Record)
		}
		if h.store.users["guest"].CurrentSessionID != nil {
			t.Fatalf("expected current session to be cleared")
		}
		if h.store.sessions[session.ID].CurrentParticipants != 1 {
			t.Fatalf("expected participant count back to 1")
		}
	})

	t.Run("leave without membership reports NotFound", func(t *testing.T) {
		h := newMembershipHarness(t)
		session := h.hostSession(t, "host", 0)

		if err := h.svc.Leave(context.Background(), Principal{UserID: "stranger"}, session.ID); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if err := h.svc.Leave(context.Background(), Principal{}, session.ID); !errors.Is(err, ErrUnauthenticated) {
			t.Fatalf("expected ErrUnauthenticated, got %v", err)
		}
	})

	t.Run("the creator can remove a member", func(t *testing.T) {
		h := newMembershipHarness(t)
		session := h.hostSession(t, "host", 0)
		h.store.addUser("guest")
		_, _ = h.svc.Join(context.Background(), Principal{UserID: "guest"}, session.ID)

		if err := h.svc.RemoveParticipant(context.Background(), Principal{UserID: "guest"}, session.ID, "host"); !errors.Is(err, ErrNotAuthorized) {
			t.Fatalf("expected ErrNotAuthorized, got %v", err)
		}
		if err := h.svc.RemoveParticipant(context.Background(), Principal{UserID: "host"}, session.ID, "guest"); err != nil {
			t.Fatalf("expected removal to succeed, got %v", err)
		}
		for _, p := range h.store.participants {
			if p.UserID == "guest" && p.Status != ParticipantStatusRemoved {
				t.Fatalf("expected removed status, got %s", p.Status)
			}
		}
	})
}

func TestMembershipService_ExpireJoinRequests(t *testing.T) {
	h := newMembershipHarness(t)
	session := h.hostSession(t, "host", 0)
	old, _ := h.svc.RequestJoin(context.Background(), Principal{UserID: "old"}, session.ID)
	h.advance(40 * time.Minute)
	fresh, _ := h.svc.RequestJoin(context.Background(), Principal{UserID: "fresh"}, session.ID)
	h.advance(20 * time.Minute)

	n, err := h.svc.ExpireJoinRequests(context.Background())
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one request to expire, got %d", n)
	}
	if h.store.requests[old.ID].Status != JoinRequestStatusExpired {
		t.Fatalf("expected old request to be expired")
	}
	if h.store.requests[fresh.ID].Status != JoinRequestStatusPending {
		t.Fatalf("expected fresh request to stay pending")
	}
}

func TestMembershipService_RunExpirySweeperStopsOnCancel(t *testing.T) {
	h := newMembershipHarness(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.svc.RunExpirySweeper(ctx, time.Millisecond)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("expected sweeper to stop after cancellation")
	}
}
