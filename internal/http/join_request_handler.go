package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/studymates/internal/application"
)

type joinRequestService interface {
	RequestJoin(ctx context.Context, principal application.Principal, sessionID string) (application.JoinRequest, error)
	ListPendingJoinRequests(ctx context.Context, principal application.Principal, sessionID string) ([]application.JoinRequest, error)
	AcceptJoinRequest(ctx context.Context, principal application.Principal, requestID string) (application.JoinRequest, error)
	RejectJoinRequest(ctx context.Context, principal application.Principal, requestID string) (application.JoinRequest, error)
	WithdrawJoinRequest(ctx context.Context, principal application.Principal, requestID string) (application.JoinRequest, error)
}

// JoinRequestHandler serves the request-to-join workflow.
type JoinRequestHandler struct {
	service   joinRequestService
	now       func() time.Time
	responder responder
	logger    *slog.Logger
}

func NewJoinRequestHandler(service joinRequestService, now func() time.Time, logger *slog.Logger) *JoinRequestHandler {
	base := defaultLogger(logger)
	if now == nil {
		now = time.Now
	}
	return &JoinRequestHandler{service: service, now: now, responder: newResponder(base), logger: base}
}

func (h *JoinRequestHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "JoinRequestHandler", operation, attrs...)
}

func (h *JoinRequestHandler) ready(w http.ResponseWriter) bool {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return false
	}
	return true
}

func (h *JoinRequestHandler) pathID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingID)
		return "", false
	}
	return id, true
}

// Create files a request to join the session in the path.
func (h *JoinRequestHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	sessionID, ok := h.pathID(w, r)
	if !ok {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r.Context(), "Create", "principal_id", principal.UserID, "session_id", sessionID)

	request, err := h.service.RequestJoin(r.Context(), principal, sessionID)
	if err != nil {
		logger.ErrorContext(r.Context(), "join request failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("request_id", request.ID).InfoContext(r.Context(), "join request filed")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, joinRequestResponse{JoinRequest: toJoinRequestDTO(request, h.now())})
}

// ListPending returns the open requests for the session in the path. Host only.
func (h *JoinRequestHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	sessionID, ok := h.pathID(w, r)
	if !ok {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	requests, err := h.service.ListPendingJoinRequests(r.Context(), principal, sessionID)
	if err != nil {
		h.log(r.Context(), "ListPending", "principal_id", principal.UserID, "session_id", sessionID).ErrorContext(r.Context(), "pending listing failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	now := h.now()
	items := make([]joinRequestDTO, 0, len(requests))
	for _, req := range requests {
		items = append(items, toJoinRequestDTO(req, now))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, joinRequestListResponse{JoinRequests: items})
}

func (h *JoinRequestHandler) Accept(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	h.decide(w, r, "Accept", h.service.AcceptJoinRequest)
}

func (h *JoinRequestHandler) Reject(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	h.decide(w, r, "Reject", h.service.RejectJoinRequest)
}

func (h *JoinRequestHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	h.decide(w, r, "Withdraw", h.service.WithdrawJoinRequest)
}

func (h *JoinRequestHandler) decide(w http.ResponseWriter, r *http.Request, operation string, fn func(context.Context, application.Principal, string) (application.JoinRequest, error)) {
	requestID, ok := h.pathID(w, r)
	if !ok {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r.Context(), operation, "principal_id", principal.UserID, "request_id", requestID)

	request, err := fn(r.Context(), principal, requestID)
	if err != nil {
		logger.ErrorContext(r.Context(), "join request decision failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("status", string(request.Status)).InfoContext(r.Context(), "join request decided")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, joinRequestResponse{JoinRequest: toJoinRequestDTO(request, h.now())})
}

type joinRequestResponse struct {
	JoinRequest joinRequestDTO `json:"join_request"`
}

type joinRequestListResponse struct {
	JoinRequests []joinRequestDTO `json:"join_requests"`
}
