package http

import (
	"net/http"
)

type RouterConfig struct {
	Users        *UserHandler
	Sessions     *SessionHandler
	JoinRequests *JoinRequestHandler
	Events       *EventsHandler
	Health       http.Handler
	Metrics      http.Handler
	Middleware   []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	if cfg.Users != nil {
		mux.HandleFunc("POST /users/me", cfg.Users.Create)
		mux.HandleFunc("GET /users/me", cfg.Users.Me)
		mux.HandleFunc("PUT /users/me/location", cfg.Users.UpdateLocation)
		mux.HandleFunc("PUT /users/me/presence", cfg.Users.UpdatePresence)
		mux.HandleFunc("POST /users/me/reconcile", cfg.Users.Reconcile)
	}

	if cfg.Sessions != nil {
		mux.HandleFunc("POST /sessions", cfg.Sessions.Create)
		mux.HandleFunc("GET /sessions/nearby", cfg.Sessions.Nearby)
		mux.HandleFunc("GET /sessions/{id}", cfg.Sessions.Get)
		mux.HandleFunc("PUT /sessions/{id}/phase", cfg.Sessions.UpdatePhase)
		mux.HandleFunc("POST /sessions/{id}/end", cfg.Sessions.End)
		mux.HandleFunc("POST /sessions/{id}/join", cfg.Sessions.Join)
		mux.HandleFunc("POST /sessions/{id}/leave", cfg.Sessions.Leave)
		mux.HandleFunc("GET /sessions/{id}/participants", cfg.Sessions.Participants)
		mux.HandleFunc("DELETE /sessions/{id}/participants/{userID}", cfg.Sessions.RemoveParticipant)
	}

	if cfg.JoinRequests != nil {
		mux.HandleFunc("POST /sessions/{id}/join-requests", cfg.JoinRequests.Create)
		mux.HandleFunc("GET /sessions/{id}/join-requests", cfg.JoinRequests.ListPending)
		mux.HandleFunc("POST /join-requests/{id}/accept", cfg.JoinRequests.Accept)
		mux.HandleFunc("POST /join-requests/{id}/reject", cfg.JoinRequests.Reject)
		mux.HandleFunc("POST /join-requests/{id}/withdraw", cfg.JoinRequests.Withdraw)
	}

	if cfg.Events != nil {
		mux.HandleFunc("GET /sessions/{id}/events", cfg.Events.Stream)
		mux.HandleFunc("GET /users/{id}/events", cfg.Events.StreamUser)
	}

	if cfg.Health != nil {
		mux.Handle("GET /healthz", cfg.Health)
	}
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics)
	}

	var handler http.Handler = mux
	if len(cfg.Middleware) > 0 {
		for i := len(cfg.Middleware) - 1; i >= 0; i-- {
			if cfg.Middleware[i] != nil {
				handler = cfg.Middleware[i](handler)
			}
		}
	}

	return handler
}
