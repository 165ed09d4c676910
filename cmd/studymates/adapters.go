package main

import (
	"context"
	"time"

	"github.com/example/studymates/internal/application"
	"github.com/example/studymates/internal/persistence"
)

// storeAdapter exposes a persistence.Store through the application's repository
// interfaces.
type storeAdapter struct {
	store persistence.Store
}

var _ application.Store = (*storeAdapter)(nil)

func newStoreAdapter(store persistence.Store) *storeAdapter {
	return &storeAdapter{store: store}
}

func (a *storeAdapter) Users() application.UserRepository {
	return &userRepositoryAdapter{repo: a.store.Users()}
}

func (a *storeAdapter) Sessions() application.SessionRepository {
	return &sessionRepositoryAdapter{repo: a.store.Sessions()}
}

func (a *storeAdapter) Participants() application.ParticipantRepository {
	return &participantRepositoryAdapter{repo: a.store.Participants()}
}

func (a *storeAdapter) JoinRequests() application.JoinRequestRepository {
	return &joinRequestRepositoryAdapter{repo: a.store.JoinRequests()}
}

func (a *storeAdapter) WithinTx(ctx context.Context, fn func(tx application.Store) error) error {
	return a.store.WithinTx(ctx, func(tx persistence.Store) error {
		return fn(newStoreAdapter(tx))
	})
}

type userRepositoryAdapter struct {
	repo persistence.UserRepository
}

func (a *userRepositoryAdapter) CreateUser(ctx context.Context, user application.User) (application.User, error) {
	if err := a.repo.CreateUser(ctx, toPersistenceUser(user)); err != nil {
		return application.User{}, err
	}
	return a.GetUser(ctx, user.ID)
}

func (a *userRepositoryAdapter) GetUser(ctx context.Context, id string) (application.User, error) {
	stored, err := a.repo.GetUser(ctx, id)
	if err != nil {
		return application.User{}, err
	}
	return toApplicationUser(stored), nil
}

func (a *userRepositoryAdapter) UpdateUser(ctx context.Context, user application.User) (application.User, error) {
	if err := a.repo.UpdateUser(ctx, toPersistenceUser(user)); err != nil {
		return application.User{}, err
	}
	return a.GetUser(ctx, user.ID)
}

func (a *userRepositoryAdapter) SetCurrentSession(ctx context.Context, userID string, sessionID *string, at time.Time) error {
	return a.repo.SetCurrentSession(ctx, userID, sessionID, at)
}

type sessionRepositoryAdapter struct {
	repo persistence.SessionRepository
}

func (a *sessionRepositoryAdapter) CreateSession(ctx context.Context, session application.Session) (application.Session, error) {
	if err := a.repo.CreateSession(ctx, toPersistenceSession(session)); err != nil {
		return application.Session{}, err
	}
	return a.GetSession(ctx, session.ID)
}

func (a *sessionRepositoryAdapter) GetSession(ctx context.Context, id string) (application.Session, error) {
	stored, err := a.repo.GetSession(ctx, id)
	if err != nil {
		return application.Session{}, err
	}
	return toApplicationSession(stored), nil
}

func (a *sessionRepositoryAdapter) UpdateSession(ctx context.Context, session application.Session) (application.Session, error) {
	if err := a.repo.UpdateSession(ctx, toPersistenceSession(session)); err != nil {
		return application.Session{}, err
	}
	return a.GetSession(ctx, session.ID)
}

func (a *sessionRepositoryAdapter) ListSessions(ctx context.Context, filter application.SessionFilter) ([]application.Session, error) {
	statuses := make([]string, 0, len(filter.Statuses))
	for _, status := range filter.Statuses {
		statuses = append(statuses, string(status))
	}
	stored, err := a.repo.ListSessions(ctx, persistence.SessionFilter{Statuses: statuses, CreatorID: filter.CreatorID})
	if err != nil {
		return nil, err
	}
	sessions := make([]application.Session, 0, len(stored))
	for _, s := range stored {
		sessions = append(sessions, toApplicationSession(s))
	}
	return sessions, nil
}

func (a *sessionRepositoryAdapter) AdjustParticipantCount(ctx context.Context, id string, delta int) error {
	return a.repo.AdjustParticipantCount(ctx, id, delta)
}

func (a *sessionRepositoryAdapter) NearbySessions(ctx context.Context, query application.NearbyQuery) ([]application.NearbySession, error) {
	stored, err := a.repo.NearbySessions(ctx, persistence.NearbyQuery{
		Center:        toPersistenceLocation(query.Center),
		RadiusMeters:  query.RadiusMeters,
		ExcludeUserID: query.ExcludeUserID,
	})
	if err != nil {
		return nil, err
	}
	sessions := make([]application.NearbySession, 0, len(stored))
	for _, s := range stored {
		sessions = append(sessions, application.NearbySession{
			Session:        toApplicationSession(s.Session),
			DistanceMeters: s.DistanceMeters,
		})
	}
	return sessions, nil
}

type participantRepositoryAdapter struct {
	repo persistence.ParticipantRepository
}

func (a *participantRepositoryAdapter) CreateParticipant(ctx context.Context, participant application.Participant) (application.Participant, error) {
	if err := a.repo.CreateParticipant(ctx, toPersistenceParticipant(participant)); err != nil {
		return application.Participant{}, err
	}
	return participant, nil
}

func (a *participantRepositoryAdapter) ListParticipants(ctx context.Context, filter application.ParticipantFilter) ([]application.Participant, error) {
	stored, err := a.repo.ListParticipants(ctx, toPersistenceParticipantFilter(filter))
	if err != nil {
		return nil, err
	}
	participants := make([]application.Participant, 0, len(stored))
	for _, p := range stored {
		participants = append(participants, toApplicationParticipant(p))
	}
	return participants, nil
}

func (a *participantRepositoryAdapter) ListParticipantProfiles(ctx context.Context, filter application.ParticipantFilter) ([]application.ParticipantProfile, error) {
	stored, err := a.repo.ListParticipantProfiles(ctx, toPersistenceParticipantFilter(filter))
	if err != nil {
		return nil, err
	}
	profiles := make([]application.ParticipantProfile, 0, len(stored))
	for _, p := range stored {
		profiles = append(profiles, application.ParticipantProfile{
			Participant: toApplicationParticipant(p.Participant),
			DisplayName: cloneString(p.DisplayName),
			Shape:       application.StudyShape(p.StudyShape),
			Color:       application.StudyColor(p.StudyColor),
			AvatarURL:   cloneString(p.AvatarURL),
		})
	}
	return profiles, nil
}

func (a *participantRepositoryAdapter) CloseParticipants(ctx context.Context, filter application.ParticipantFilter, status application.ParticipantStatus, at time.Time) (int, error) {
	return a.repo.CloseParticipants(ctx, toPersistenceParticipantFilter(filter), string(status), at)
}

type joinRequestRepositoryAdapter struct {
	repo persistence.JoinRequestRepository
}

func (a *joinRequestRepositoryAdapter) CreateJoinRequest(ctx context.Context, request application.JoinRequest) (application.JoinRequest, error) {
	if err := a.repo.CreateJoinRequest(ctx, toPersistenceJoinRequest(request)); err != nil {
		return application.JoinRequest{}, err
	}
	return a.GetJoinRequest(ctx, request.ID)
}

func (a *joinRequestRepositoryAdapter) GetJoinRequest(ctx context.Context, id string) (application.JoinRequest, error) {
	stored, err := a.repo.GetJoinRequest(ctx, id)
	if err != nil {
		return application.JoinRequest{}, err
	}
	return toApplicationJoinRequest(stored), nil
}

func (a *joinRequestRepositoryAdapter) ListJoinRequests(ctx context.Context, filter application.JoinRequestFilter) ([]application.JoinRequest, error) {
	stored, err := a.repo.ListJoinRequests(ctx, persistence.JoinRequestFilter{
		SessionID:   filter.SessionID,
		RequesterID: filter.RequesterID,
		Status:      string(filter.Status),
	})
	if err != nil {
		return nil, err
	}
	requests := make([]application.JoinRequest, 0, len(stored))
	for _, r := range stored {
		requests = append(requests, toApplicationJoinRequest(r))
	}
	return requests, nil
}

func (a *joinRequestRepositoryAdapter) TransitionJoinRequest(ctx context.Context, transition application.JoinRequestTransition) (application.JoinRequest, error) {
	stored, err := a.repo.TransitionJoinRequest(ctx, persistence.JoinRequestTransition{
		ID:               transition.ID,
		From:             string(transition.From),
		To:               string(transition.To),
		AcceptedAt:       cloneTime(transition.AcceptedAt),
		LocationRevealed: transition.LocationRevealed,
		UpdatedAt:        transition.UpdatedAt,
	})
	if err != nil {
		return application.JoinRequest{}, err
	}
	return toApplicationJoinRequest(stored), nil
}

func (a *joinRequestRepositoryAdapter) ExpireJoinRequests(ctx context.Context, reference time.Time) (int, error) {
	return a.repo.ExpireJoinRequests(ctx, reference)
}

func toApplicationLocation(model persistence.Location) application.Location {
	return application.Location{Latitude: model.Latitude, Longitude: model.Longitude, Accuracy: cloneFloat(model.Accuracy)}
}

func toPersistenceLocation(location application.Location) persistence.Location {
	return persistence.Location{Latitude: location.Latitude, Longitude: location.Longitude, Accuracy: cloneFloat(location.Accuracy)}
}

func toApplicationUser(model persistence.User) application.User {
	user := application.User{
		ID:               model.ID,
		Email:            model.Email,
		DisplayName:      cloneString(model.DisplayName),
		Shape:            application.StudyShape(model.StudyShape),
		Color:            application.StudyColor(model.StudyColor),
		AvatarURL:        cloneString(model.AvatarURL),
		IsOnline:         model.IsOnline,
		LastSeen:         cloneTime(model.LastSeen),
		CurrentSessionID: cloneString(model.CurrentSessionID),
		CreatedAt:        model.CreatedAt,
		UpdatedAt:        model.UpdatedAt,
	}
	if model.CurrentLocation != nil {
		loc := toApplicationLocation(*model.CurrentLocation)
		user.CurrentLocation = &loc
	}
	return user
}

func toPersistenceUser(user application.User) persistence.User {
	model := persistence.User{
		ID:               user.ID,
		Email:            user.Email,
		DisplayName:      cloneString(user.DisplayName),
		StudyShape:       string(user.Shape),
		StudyColor:       string(user.Color),
		AvatarURL:        cloneString(user.AvatarURL),
		IsOnline:         user.IsOnline,
		LastSeen:         cloneTime(user.LastSeen),
		CurrentSessionID: cloneString(user.CurrentSessionID),
		CreatedAt:        user.CreatedAt,
		UpdatedAt:        user.UpdatedAt,
	}
	if user.CurrentLocation != nil {
		loc := toPersistenceLocation(*user.CurrentLocation)
		model.CurrentLocation = &loc
	}
	return model
}

// Durations are stored as whole seconds.
func toApplicationSession(model persistence.Session) application.Session {
	return application.Session{
		ID:                  model.ID,
		CreatorID:           model.CreatorID,
		Title:               cloneString(model.Title),
		Description:         cloneString(model.Description),
		Location:            toApplicationLocation(model.Location),
		LocationName:        model.LocationName,
		SessionType:         application.SessionType(model.SessionType),
		ConvenienceTags:     append([]string(nil), model.ConvenienceTags...),
		MaxParticipants:     model.MaxParticipants,
		CurrentParticipants: model.CurrentParticipants,
		Status:              application.SessionStatus(model.Status),
		FocusDuration:       time.Duration(model.PomodoroSeconds) * time.Second,
		BreakDuration:       time.Duration(model.BreakSeconds) * time.Second,
		CurrentPhase:        application.Phase(model.CurrentPhase),
		PhaseStartedAt:      model.PhaseStartTime,
		NextBreakAt:         cloneTime(model.NextBreakTime),
		CreatedAt:           model.CreatedAt,
		UpdatedAt:           model.UpdatedAt,
	}
}

func toPersistenceSession(session application.Session) persistence.Session {
	return persistence.Session{
		ID:                  session.ID,
		CreatorID:           session.CreatorID,
		Title:               cloneString(session.Title),
		Description:         cloneString(session.Description),
		Location:            toPersistenceLocation(session.Location),
		LocationName:        session.LocationName,
		MaxParticipants:     session.MaxParticipants,
		CurrentParticipants: session.CurrentParticipants,
		Status:              string(session.Status),
		SessionType:         string(session.SessionType),
		ConvenienceTags:     append([]string(nil), session.ConvenienceTags...),
		PomodoroSeconds:     int(session.FocusDuration / time.Second),
		BreakSeconds:        int(session.BreakDuration / time.Second),
		CurrentPhase:        string(session.CurrentPhase),
		PhaseStartTime:      session.PhaseStartedAt,
		NextBreakTime:       cloneTime(session.NextBreakAt),
		CreatedAt:           session.CreatedAt,
		UpdatedAt:           session.UpdatedAt,
	}
}

func toApplicationParticipant(model persistence.Participant) application.Participant {
	return application.Participant{
		ID:        model.ID,
		SessionID: model.SessionID,
		UserID:    model.UserID,
		Status:    application.ParticipantStatus(model.Status),
		JoinedAt:  model.JoinedAt,
		LeftAt:    cloneTime(model.LeftAt),
	}
}

func toPersistenceParticipant(participant application.Participant) persistence.Participant {
	return persistence.Participant{
		ID:        participant.ID,
		SessionID: participant.SessionID,
		UserID:    participant.UserID,
		Status:    string(participant.Status),
		JoinedAt:  participant.JoinedAt,
		LeftAt:    cloneTime(participant.LeftAt),
	}
}

func toPersistenceParticipantFilter(filter application.ParticipantFilter) persistence.ParticipantFilter {
	return persistence.ParticipantFilter{
		SessionID: filter.SessionID,
		UserID:    filter.UserID,
		Status:    string(filter.Status),
	}
}

func toApplicationJoinRequest(model persistence.JoinRequest) application.JoinRequest {
	return application.JoinRequest{
		ID:               model.ID,
		SessionID:        model.SessionID,
		RequesterID:      model.RequesterID,
		Status:           application.JoinRequestStatus(model.Status),
		ExpiresAt:        model.ExpiresAt,
		AcceptedAt:       cloneTime(model.AcceptedAt),
		LocationRevealed: model.LocationRevealed,
		CreatedAt:        model.CreatedAt,
		UpdatedAt:        model.UpdatedAt,
	}
}

func toPersistenceJoinRequest(request application.JoinRequest) persistence.JoinRequest {
	return persistence.JoinRequest{
		ID:               request.ID,
		SessionID:        request.SessionID,
		RequesterID:      request.RequesterID,
		Status:           string(request.Status),
		ExpiresAt:        request.ExpiresAt,
		AcceptedAt:       cloneTime(request.AcceptedAt),
		LocationRevealed: request.LocationRevealed,
		CreatedAt:        request.CreatedAt,
		UpdatedAt:        request.UpdatedAt,
	}
}

func cloneString(value *string) *string {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}

func cloneFloat(value *float64) *float64 {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}
