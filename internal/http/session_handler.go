package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/example/studymates/internal/application"
)

type sessionService interface {
	GetSession(ctx context.Context, principal application.Principal, sessionID string) (application.Session, error)
	ListParticipants(ctx context.Context, principal application.Principal, sessionID string) ([]application.ParticipantProfile, error)
	UpdatePhase(ctx context.Context, params application.UpdatePhaseParams) (application.Session, error)
	EndSession(ctx context.Context, principal application.Principal, sessionID string) (application.Session, error)
	NearbySessions(ctx context.Context, params application.NearbySessionsParams) ([]application.NearbySession, error)
}

type sessionMembership interface {
	CreateSession(ctx context.Context, params application.CreateSessionParams) (application.Session, error)
	Join(ctx context.Context, principal application.Principal, sessionID string) (application.Session, error)
	Leave(ctx context.Context, principal application.Principal, sessionID string) error
	RemoveParticipant(ctx context.Context, principal application.Principal, sessionID, userID string) error
}

// SessionHandler serves session creation, discovery, pomodoro control and membership.
type SessionHandler struct {
	sessions   sessionService
	membership sessionMembership
	responder  responder
	logger     *slog.Logger
}

func NewSessionHandler(sessions sessionService, membership sessionMembership, logger *slog.Logger) *SessionHandler {
	base := defaultLogger(logger)
	return &SessionHandler{sessions: sessions, membership: membership, responder: newResponder(base), logger: base}
}

func (h *SessionHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "SessionHandler", operation, attrs...)
}

func (h *SessionHandler) ready(w http.ResponseWriter) bool {
	if h == nil || h.sessions == nil || h.membership == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return false
	}
	return true
}

// sessionID reads the {id} path value, writing 400 when it is blank.
func (h *SessionHandler) sessionID(w http.ResponseWriter, r *http.Request, operation string) (string, bool) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		h.log(r.Context(), operation, "error_kind", "bad_request").ErrorContext(r.Context(), "missing session id")
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingID)
		return "", false
	}
	return id, true
}

func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Create", "principal_id", principal.UserID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode session request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Create", "principal_id", principal.UserID)

	session, err := h.membership.CreateSession(r.Context(), application.CreateSessionParams{
		Principal: principal,
		Input:     req.toInput(),
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "session creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("session_id", session.ID).InfoContext(r.Context(), "session created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, sessionResponse{Session: toSessionDTO(session)})
}

// Nearby reads lat, lng and an optional radius (meters) from the query string.
func (h *SessionHandler) Nearby(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	query := r.URL.Query()

	lat, latErr := strconv.ParseFloat(query.Get("lat"), 64)
	lng, lngErr := strconv.ParseFloat(query.Get("lng"), 64)
	var radius float64
	var radiusErr error
	if raw := query.Get("radius"); raw != "" {
		radius, radiusErr = strconv.ParseFloat(raw, 64)
	}
	if latErr != nil || lngErr != nil || radiusErr != nil {
		h.log(r.Context(), "Nearby", "principal_id", principal.UserID, "error_kind", "bad_request").ErrorContext(r.Context(), "invalid nearby query", "query", r.URL.RawQuery)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadQuery)
		return
	}

	found, err := h.sessions.NearbySessions(r.Context(), application.NearbySessionsParams{
		Principal:    principal,
		Location:     application.Location{Latitude: lat, Longitude: lng},
		RadiusMeters: radius,
	})
	if err != nil {
		h.log(r.Context(), "Nearby", "principal_id", principal.UserID).ErrorContext(r.Context(), "nearby lookup failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	items := make([]sessionDTO, 0, len(found))
	for _, n := range found {
		dto := toSessionDTO(n.Session)
		distance := n.DistanceMeters
		dto.DistanceMeters = &distance
		items = append(items, dto)
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, sessionListResponse{Sessions: items})
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	id, ok := h.sessionID(w, r, "Get")
	if !ok {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	session, err := h.sessions.GetSession(r.Context(), principal, id)
	if err != nil {
		h.log(r.Context(), "Get", "principal_id", principal.UserID, "session_id", id).ErrorContext(r.Context(), "session lookup failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, sessionResponse{Session: toSessionDTO(session)})
}

func (h *SessionHandler) UpdatePhase(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	id, ok := h.sessionID(w, r, "UpdatePhase")
	if !ok {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	var req phaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "UpdatePhase", "principal_id", principal.UserID, "session_id", id, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode phase", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	session, err := h.sessions.UpdatePhase(r.Context(), application.UpdatePhaseParams{
		Principal:   principal,
		SessionID:   id,
		Phase:       application.Phase(strings.ToLower(strings.TrimSpace(req.Phase))),
		NextBreakAt: req.NextBreakTime,
	})
	if err != nil {
		h.log(r.Context(), "UpdatePhase", "principal_id", principal.UserID, "session_id", id).ErrorContext(r.Context(), "phase update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, sessionResponse{Session: toSessionDTO(session)})
}

func (h *SessionHandler) End(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	id, ok := h.sessionID(w, r, "End")
	if !ok {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	session, err := h.sessions.EndSession(r.Context(), principal, id)
	if err != nil {
		h.log(r.Context(), "End", "principal_id", principal.UserID, "session_id", id).ErrorContext(r.Context(), "end session failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, sessionResponse{Session: toSessionDTO(session)})
}

func (h *SessionHandler) Participants(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	id, ok := h.sessionID(w, r, "Participants")
	if !ok {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	participants, err := h.sessions.ListParticipants(r.Context(), principal, id)
	if err != nil {
		h.log(r.Context(), "Participants", "principal_id", principal.UserID, "session_id", id).ErrorContext(r.Context(), "participant listing failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	items := make([]participantDTO, 0, len(participants))
	for _, p := range participants {
		items = append(items, toParticipantDTO(p))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, participantListResponse{Participants: items})
}

func (h *SessionHandler) Join(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	id, ok := h.sessionID(w, r, "Join")
	if !ok {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r.Context(), "Join", "principal_id", principal.UserID, "session_id", id)

	session, err := h.membership.Join(r.Context(), principal, id)
	if err != nil {
		logger.ErrorContext(r.Context(), "join failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "joined session")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, sessionResponse{Session: toSessionDTO(session)})
}

func (h *SessionHandler) Leave(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	id, ok := h.sessionID(w, r, "Leave")
	if !ok {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	if err := h.membership.Leave(r.Context(), principal, id); err != nil {
		h.log(r.Context(), "Leave", "principal_id", principal.UserID, "session_id", id).ErrorContext(r.Context(), "leave failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *SessionHandler) RemoveParticipant(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	id, ok := h.sessionID(w, r, "RemoveParticipant")
	if !ok {
		return
	}
	userID := strings.TrimSpace(r.PathValue("userID"))
	if userID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r.Context(), "RemoveParticipant", "principal_id", principal.UserID, "session_id", id, "user_id", userID)

	if err := h.membership.RemoveParticipant(r.Context(), principal, id, userID); err != nil {
		logger.ErrorContext(r.Context(), "remove participant failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "participant removed")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

type sessionResponse struct {
	Session sessionDTO `json:"session"`
}

type sessionListResponse struct {
	Sessions []sessionDTO `json:"sessions"`
}

type participantListResponse struct {
	Participants []participantDTO `json:"participants"`
}
