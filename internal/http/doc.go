// Package http provides HTTP handlers and middleware for the studymates API.
//
// Every route reads the caller from an `Authorization: Bearer <jwt>` header resolved by
// Authenticate. Requests without a token reach the services anonymously and are answered
// with 401 by the services themselves.
//
// The router exposes the following endpoints:
//   - POST /users/me, GET /users/me: create or read the caller's profile (`userDTO`).
//   - PUT /users/me/location: body `locationDTO`; responds with the user and `on_campus`.
//   - PUT /users/me/presence: body {"is_online": bool}.
//   - POST /users/me/reconcile: repairs the caller's current_session_id.
//   - POST /sessions: body `sessionRequest` (durations in seconds); the creator joins.
//   - GET /sessions/nearby?lat=&lng=&radius=: active sessions with room, closest first.
//   - GET /sessions/{id}, PUT /sessions/{id}/phase, POST /sessions/{id}/end.
//   - POST /sessions/{id}/join, POST /sessions/{id}/leave.
//   - GET /sessions/{id}/participants, DELETE /sessions/{id}/participants/{userID}.
//   - POST /sessions/{id}/join-requests, GET /sessions/{id}/join-requests (host only).
//   - POST /join-requests/{id}/accept|reject|withdraw.
//   - GET /sessions/{id}/events: server-sent events relayed from the realtime feed. The
//     token may be passed as ?access_token= because EventSource cannot set headers.
//     Join request events go to the session creator only.
//   - GET /users/{id}/events: location and presence changes for the caller ("me") or a
//     member of the caller's current session.
//   - GET /healthz, GET /metrics.
//
// Errors use `errorResponse`. Store failures answer 503 with "retryable": true.
package http
