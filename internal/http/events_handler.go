package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/studymates/internal/application"
	"github.com/example/studymates/internal/realtime"
)

type changeFeed interface {
	Subscribe(table, key, value string, handler func(realtime.Event)) (func() error, error)
}

type sessionReader interface {
	GetSession(ctx context.Context, principal application.Principal, sessionID string) (application.Session, error)
}

type userWatcher interface {
	WatchUser(ctx context.Context, principal application.Principal, userID string) (application.User, error)
}

// EventsHandler relays change events for one session, or one student's location and
// presence, as server-sent events.
type EventsHandler struct {
	feed      changeFeed
	sessions  sessionReader
	users     userWatcher
	heartbeat time.Duration
	responder responder
	logger    *slog.Logger
}

func NewEventsHandler(feed changeFeed, sessions sessionReader, users userWatcher, logger *slog.Logger) *EventsHandler {
	base := defaultLogger(logger)
	return &EventsHandler{feed: feed, sessions: sessions, users: users, heartbeat: 25 * time.Second, responder: newResponder(base), logger: base}
}

// sessionSubscriptions lists the table filters that together describe one session.
// Join requests carry the requester's location, so only the creator receives them.
func sessionSubscriptions(session application.Session, principalID string) [][3]string {
	subs := [][3]string{
		{application.TableSessions, "id", session.ID},
		{application.TableParticipants, "session_id", session.ID},
	}
	if principalID != "" && principalID == session.CreatorID {
		subs = append(subs, [3]string{application.TableJoinRequests, "session_id", session.ID})
	}
	return subs
}

func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.feed == nil || h.sessions == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	sessionID := strings.TrimSpace(r.PathValue("id"))
	if sessionID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	logger := handlerLogger(r.Context(), h.logger, "EventsHandler", "Stream", "principal_id", principal.UserID, "session_id", sessionID)

	session, err := h.sessions.GetSession(r.Context(), principal, sessionID)
	if err != nil {
		logger.ErrorContext(r.Context(), "event stream refused", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.relay(w, r, logger, sessionSubscriptions(session, principal.UserID))
}

// StreamUser relays location and presence changes for one student. "me" names the caller.
func (h *EventsHandler) StreamUser(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.feed == nil || h.users == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	principal, _ := PrincipalFromContext(r.Context())
	userID := strings.TrimSpace(r.PathValue("id"))
	if userID == "me" {
		userID = principal.UserID
	}
	if userID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingID)
		return
	}

	logger := handlerLogger(r.Context(), h.logger, "EventsHandler", "StreamUser", "principal_id", principal.UserID, "user_id", userID)

	if _, err := h.users.WatchUser(r.Context(), principal, userID); err != nil {
		logger.ErrorContext(r.Context(), "event stream refused", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.relay(w, r, logger, [][3]string{{application.TableUsers, "id", userID}})
}

func (h *EventsHandler) relay(w http.ResponseWriter, r *http.Request, logger *slog.Logger, subscriptions [][3]string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusInternalServerError, nil)
		return
	}

	events := make(chan realtime.Event, 32)
	deliver := func(e realtime.Event) {
		select {
		case events <- e:
		default:
			logger.WarnContext(r.Context(), "dropping change event for slow client", "table", e.Table, "record_id", e.RecordID)
		}
	}

	var unsubscribers []func() error
	defer func() {
		for _, unsubscribe := range unsubscribers {
			_ = unsubscribe()
		}
	}()
	for _, sub := range subscriptions {
		unsubscribe, err := h.feed.Subscribe(sub[0], sub[1], sub[2], deliver)
		if err != nil {
			logger.ErrorContext(r.Context(), "subscribe failed", "error", err)
			h.responder.writeError(r.Context(), w, http.StatusServiceUnavailable, err)
			return
		}
		unsubscribers = append(unsubscribers, unsubscribe)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	logger.InfoContext(r.Context(), "event stream opened")

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			logger.InfoContext(context.WithoutCancel(r.Context()), "event stream closed")
			return
		case <-ticker.C:
			if _, err := w.Write([]byte(": keep-alive\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case e := <-events:
			payload, err := json.Marshal(e)
			if err != nil {
				logger.ErrorContext(r.Context(), "failed to encode change event", "error", err)
				continue
			}
			if _, err := w.Write([]byte("event: " + e.Table + "\ndata: " + string(payload) + "\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
