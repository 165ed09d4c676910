package application

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/studymates/internal/persistence"
)

// memStore is an in-memory Store used by the service tests. WithinTx snapshots every
// table and restores the snapshot when fn fails, so rollback behaviour is observable.
type memStore struct {
	mu *sync.Mutex

	users        map[string]User
	sessions     map[string]Session
	participants map[string]Participant
	requests     map[string]JoinRequest

	// failOn makes the named repository method return the error once.
	failOn map[string]error
	inTx   bool

	// concurrentRequest, when set, is committed by a competing writer the next time
	// CreateJoinRequest runs, which then reports the store's duplicate error.
	concurrentRequest  *JoinRequest
	committedElsewhere []JoinRequest
}

func newMemStore() *memStore {
	return &memStore{
		mu:           &sync.Mutex{},
		users:        make(map[string]User),
		sessions:     make(map[string]Session),
		participants: make(map[string]Participant),
		requests:     make(map[string]JoinRequest),
		failOn:       make(map[string]error),
	}
}

func (m *memStore) fail(op string) error {
	if err, ok := m.failOn[op]; ok {
		delete(m.failOn, op)
		return err
	}
	return nil
}

func (m *memStore) Users() UserRepository               { return memUsers{m} }
func (m *memStore) Sessions() SessionRepository         { return memSessions{m} }
func (m *memStore) Participants() ParticipantRepository { return memParticipants{m} }
func (m *memStore) JoinRequests() JoinRequestRepository { return memRequests{m} }

func (m *memStore) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	if m.inTx {
		return fn(m)
	}
	m.mu.Lock()
	snapshot := m.clone()
	m.inTx = true
	m.mu.Unlock()

	err := fn(m)

	m.mu.Lock()
	m.inTx = false
	if err != nil {
		m.users = snapshot.users
		m.sessions = snapshot.sessions
		m.participants = snapshot.participants
		m.requests = snapshot.requests
	}
	for _, r := range m.committedElsewhere {
		m.requests[r.ID] = r
	}
	m.committedElsewhere = nil
	m.mu.Unlock()
	return err
}

func (m *memStore) clone() *memStore {
	c := &memStore{
		users:        make(map[string]User, len(m.users)),
		sessions:     make(map[string]Session, len(m.sessions)),
		participants: make(map[string]Participant, len(m.participants)),
		requests:     make(map[string]JoinRequest, len(m.requests)),
	}
	for k, v := range m.users {
		c.users[k] = v
	}
	for k, v := range m.sessions {
		c.sessions[k] = v
	}
	for k, v := range m.participants {
		c.participants[k] = v
	}
	for k, v := range m.requests {
		c.requests[k] = v
	}
	return c
}

func (m *memStore) addUser(id string) User {
	u := User{ID: id, Email: id + "@unsw.edu.au", Shape: StudyShapeCircle, Color: StudyColorBlue}
	m.users[id] = u
	return u
}

func (m *memStore) activeParticipants(sessionID string) []Participant {
	var out []Participant
	for _, p := range m.participants {
		if p.SessionID == sessionID && p.Status == ParticipantStatusActive {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out
}

type memUsers struct{ m *memStore }

func (r memUsers) CreateUser(ctx context.Context, user User) (User, error) {
	if err := r.m.fail("CreateUser"); err != nil {
		return User{}, err
	}
	if _, ok := r.m.users[user.ID]; ok {
		return User{}, ErrAlreadyExists
	}
	r.m.users[user.ID] = user
	return user, nil
}

func (r memUsers) GetUser(ctx context.Context, id string) (User, error) {
	if err := r.m.fail("GetUser"); err != nil {
		return User{}, err
	}
	u, ok := r.m.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (r memUsers) UpdateUser(ctx context.Context, user User) (User, error) {
	if err := r.m.fail("UpdateUser"); err != nil {
		return User{}, err
	}
	if _, ok := r.m.users[user.ID]; !ok {
		return User{}, ErrNotFound
	}
	r.m.users[user.ID] = user
	return user, nil
}

func (r memUsers) SetCurrentSession(ctx context.Context, userID string, sessionID *string, at time.Time) error {
	if err := r.m.fail("SetCurrentSession"); err != nil {
		return err
	}
	u, ok := r.m.users[userID]
	if !ok {
		return ErrNotFound
	}
	if sessionID != nil {
		id := *sessionID
		u.CurrentSessionID = &id
	} else {
		u.CurrentSessionID = nil
	}
	u.UpdatedAt = at
	r.m.users[userID] = u
	return nil
}

type memSessions struct{ m *memStore }

func (r memSessions) CreateSession(ctx context.Context, session Session) (Session, error) {
	if err := r.m.fail("CreateSession"); err != nil {
		return Session{}, err
	}
	r.m.sessions[session.ID] = session
	return session, nil
}

func (r memSessions) GetSession(ctx context.Context, id string) (Session, error) {
	if err := r.m.fail("GetSession"); err != nil {
		return Session{}, err
	}
	s, ok := r.m.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return s, nil
}

func (r memSessions) UpdateSession(ctx context.Context, session Session) (Session, error) {
	if err := r.m.fail("UpdateSession"); err != nil {
		return Session{}, err
	}
	existing, ok := r.m.sessions[session.ID]
	if !ok {
		return Session{}, ErrNotFound
	}
	session.CurrentParticipants = existing.CurrentParticipants
	r.m.sessions[session.ID] = session
	return session, nil
}

func (r memSessions) ListSessions(ctx context.Context, filter SessionFilter) ([]Session, error) {
	var out []Session
	for _, s := range r.m.sessions {
		if filter.CreatorID != "" && s.CreatorID != filter.CreatorID {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (r memSessions) AdjustParticipantCount(ctx context.Context, id string, delta int) error {
	if err := r.m.fail("AdjustParticipantCount"); err != nil {
		return err
	}
	s, ok := r.m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if delta > 0 && s.CurrentParticipants+delta > s.MaxParticipants {
		return ErrConflict
	}
	s.CurrentParticipants += delta
	if s.CurrentParticipants < 0 {
		s.CurrentParticipants = 0
	}
	r.m.sessions[id] = s
	return nil
}

func (r memSessions) NearbySessions(ctx context.Context, query NearbyQuery) ([]NearbySession, error) {
	if err := r.m.fail("NearbySessions"); err != nil {
		return nil, err
	}
	var out []NearbySession
	for _, s := range r.m.sessions {
		if s.Status == SessionStatusActive && s.HasCapacity() {
			out = append(out, NearbySession{Session: s})
		}
	}
	return out, nil
}

type memParticipants struct{ m *memStore }

func (r memParticipants) CreateParticipant(ctx context.Context, p Participant) (Participant, error) {
	if err := r.m.fail("CreateParticipant"); err != nil {
		return Participant{}, err
	}
	for _, existing := range r.m.participants {
		if existing.SessionID == p.SessionID && existing.UserID == p.UserID && existing.Status == ParticipantStatusActive {
			return Participant{}, ErrAlreadyExists
		}
	}
	r.m.participants[p.ID] = p
	return p, nil
}

func (r memParticipants) ListParticipants(ctx context.Context, filter ParticipantFilter) ([]Participant, error) {
	if err := r.m.fail("ListParticipants"); err != nil {
		return nil, err
	}
	var out []Participant
	for _, p := range r.m.participants {
		if filter.SessionID != "" && p.SessionID != filter.SessionID {
			continue
		}
		if filter.UserID != "" && p.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out, nil
}

func (r memParticipants) ListParticipantProfiles(ctx context.Context, filter ParticipantFilter) ([]ParticipantProfile, error) {
	members, err := r.ListParticipants(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]ParticipantProfile, 0, len(members))
	for _, p := range members {
		u, ok := r.m.users[p.UserID]
		if !ok {
			continue
		}
		out = append(out, ParticipantProfile{Participant: p, DisplayName: u.DisplayName, Shape: u.Shape, Color: u.Color, AvatarURL: u.AvatarURL})
	}
	return out, nil
}

func (r memParticipants) CloseParticipants(ctx context.Context, filter ParticipantFilter, status ParticipantStatus, at time.Time) (int, error) {
	if err := r.m.fail("CloseParticipants"); err != nil {
		return 0, err
	}
	n := 0
	for id, p := range r.m.participants {
		if p.Status != ParticipantStatusActive {
			continue
		}
		if filter.SessionID != "" && p.SessionID != filter.SessionID {
			continue
		}
		if filter.UserID != "" && p.UserID != filter.UserID {
			continue
		}
		left := at
		p.Status = status
		p.LeftAt = &left
		r.m.participants[id] = p
		n++
	}
	return n, nil
}

type memRequests struct{ m *memStore }

func (r memRequests) CreateJoinRequest(ctx context.Context, req JoinRequest) (JoinRequest, error) {
	if err := r.m.fail("CreateJoinRequest"); err != nil {
		return JoinRequest{}, err
	}
	if winner := r.m.concurrentRequest; winner != nil {
		r.m.concurrentRequest = nil
		r.m.committedElsewhere = append(r.m.committedElsewhere, *winner)
		return JoinRequest{}, persistence.ErrDuplicate
	}
	for _, existing := range r.m.requests {
		if existing.SessionID == req.SessionID && existing.RequesterID == req.RequesterID && existing.Status == JoinRequestStatusPending {
			return JoinRequest{}, ErrAlreadyExists
		}
	}
	r.m.requests[req.ID] = req
	return req, nil
}

func (r memRequests) GetJoinRequest(ctx context.Context, id string) (JoinRequest, error) {
	if err := r.m.fail("GetJoinRequest"); err != nil {
		return JoinRequest{}, err
	}
	req, ok := r.m.requests[id]
	if !ok {
		return JoinRequest{}, ErrNotFound
	}
	return req, nil
}

func (r memRequests) ListJoinRequests(ctx context.Context, filter JoinRequestFilter) ([]JoinRequest, error) {
	if err := r.m.fail("ListJoinRequests"); err != nil {
		return nil, err
	}
	var out []JoinRequest
	for _, req := range r.m.requests {
		if filter.SessionID != "" && req.SessionID != filter.SessionID {
			continue
		}
		if filter.RequesterID != "" && req.RequesterID != filter.RequesterID {
			continue
		}
		if filter.Status != "" && req.Status != filter.Status {
			continue
		}
		out = append(out, req)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r memRequests) TransitionJoinRequest(ctx context.Context, tr JoinRequestTransition) (JoinRequest, error) {
	if err := r.m.fail("TransitionJoinRequest"); err != nil {
		return JoinRequest{}, err
	}
	req, ok := r.m.requests[tr.ID]
	if !ok {
		return JoinRequest{}, ErrNotFound
	}
	if req.Status != tr.From {
		return req, ErrConflict
	}
	req.Status = tr.To
	req.UpdatedAt = tr.UpdatedAt
	if tr.AcceptedAt != nil {
		at := *tr.AcceptedAt
		req.AcceptedAt = &at
	}
	if tr.LocationRevealed {
		req.LocationRevealed = true
	}
	r.m.requests[tr.ID] = req
	return req, nil
}

func (r memRequests) ExpireJoinRequests(ctx context.Context, reference time.Time) (int, error) {
	if err := r.m.fail("ExpireJoinRequests"); err != nil {
		return 0, err
	}
	n := 0
	for id, req := range r.m.requests {
		if req.Status == JoinRequestStatusPending && !reference.Before(req.ExpiresAt) {
			req.Status = JoinRequestStatusExpired
			req.UpdatedAt = reference
			r.m.requests[id] = req
			n++
		}
	}
	return n, nil
}

// recordingPublisher captures published changes.
type recordingPublisher struct {
	mu      sync.Mutex
	changes []Change
	err     error
}

func (p *recordingPublisher) Publish(ctx context.Context, change Change) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, change)
	return p.err
}

func (p *recordingPublisher) tables() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.changes))
	for _, c := range p.changes {
		out = append(out, c.Table)
	}
	return out
}

// stubLocker hands out locks from a set of held keys.
type stubLocker struct {
	mu       sync.Mutex
	held     map[string]bool
	err      error
	released []string
}

func (l *stubLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, false, l.err
	}
	if l.held == nil {
		l.held = make(map[string]bool)
	}
	if l.held[key] {
		return nil, false, nil
	}
	l.held[key] = true
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
		l.released = append(l.released, key)
		return nil
	}, true, nil
}

// stubRecorder counts observations per operation and kind.
type stubRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (r *stubRecorder) ObserveOperation(operation, kind string, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = make(map[string]int)
	}
	r.counts[operation+"/"+kind]++
}

func (r *stubRecorder) count(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[key]
}
