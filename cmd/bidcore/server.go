package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/dreamware/flashbid/internal/auction"
	"github.com/dreamware/flashbid/internal/core"
)

// wsWriteTimeout bounds how long one frame write may block before the
// connection is considered dead.
const wsWriteTimeout = 10 * time.Second

// server is the HTTP and websocket framing over the core API: decode,
// call, encode. No domain logic lives here.
type server struct {
	core     *core.Core
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", s.handleToken)
	mux.HandleFunc("POST /bid", s.handleBid)
	mux.HandleFunc("GET /leaderboard/{id}", s.handleLeaderboard)
	mux.HandleFunc("GET /results/{id}", s.handleResults)
	mux.HandleFunc("GET /sessions", s.handleSessions)
	mux.HandleFunc("GET /ws/sessions", s.handleSessionEvents)
	mux.HandleFunc("GET /ws/{id}", s.handleLeaderboardFeed)
	mux.HandleFunc("GET /health", s.handleHealth)
	return s.withRequestID(mux)
}

// withRequestID tags each request with a correlation id, echoed in the
// response header and attached to the request-scoped logger.
func (s *server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		log := s.log.With().Str("request_id", id).Logger()
		next.ServeHTTP(w, r.WithContext(log.WithContext(r.Context())))
	})
}

// handleToken issues a bearer token for an existing user.
func (s *server) handleToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID uuid.UUID `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, _, err := s.core.IssueToken(r.Context(), req.UserID)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"access_token": token,
		"token_type":   "bearer",
	})
}

// handleBid is the hot write path: authenticate, submit, answer with
// score and rank.
func (s *server) handleBid(w http.ResponseWriter, r *http.Request) {
	principal, err := s.core.Authenticate(r.Context(), bearerToken(r))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	var req struct {
		SessionID uuid.UUID `json:"session_id"`
		Price     float64   `json:"bid_price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.core.SubmitBid(r.Context(), principal, req.SessionID, req.Price)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))

	snap, err := s.core.Leaderboard(r.Context(), sessionID, page, pageSize)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *server) handleResults(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	res, err := s.core.Results(r.Context(), sessionID)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if res.Session.IsActive {
		writeError(w, http.StatusConflict, "session not finalized")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *server) handleSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.core.Sessions(r.Context())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// handleLeaderboardFeed streams leaderboard snapshots for one session
// over a websocket until the client disconnects or falls behind.
func (s *server) handleLeaderboardFeed(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	// Reject unknown sessions before upgrading.
	if _, err := s.core.Leaderboard(r.Context(), sessionID, 1, 1); err != nil {
		s.writeFailure(w, r, err)
		return
	}

	sub := s.core.Subscribe(sessionID)
	if sub == nil {
		writeError(w, http.StatusServiceUnavailable, "shutting down")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		sub.Close()
		return
	}
	defer conn.Close()
	go discardReads(conn, sub.Close)

	// Initial state so the client need not wait for the next bid.
	if snap, err := s.core.Leaderboard(context.Background(), sessionID, 1, 0); err == nil {
		if writeFrame(conn, snap) != nil {
			sub.Close()
			return
		}
	}

	for snap := range sub.C {
		if err := writeFrame(conn, snap); err != nil {
			sub.Close()
			break
		}
	}
}

// handleSessionEvents streams session lifecycle events.
func (s *server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	sub := s.core.SubscribeEvents()
	if sub == nil {
		writeError(w, http.StatusServiceUnavailable, "shutting down")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		sub.Close()
		return
	}
	defer conn.Close()
	go discardReads(conn, sub.Close)

	for ev := range sub.C {
		if err := writeFrame(conn, ev); err != nil {
			sub.Close()
			break
		}
	}
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.core.Health(ctx); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// discardReads drains inbound frames so control messages are processed
// and invokes onClose when the peer goes away.
func discardReads(conn *websocket.Conn, onClose func()) {
	defer onClose()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeFrame(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(v)
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(h, "Bearer "); ok {
		return token
	}
	return ""
}

// writeFailure maps domain errors onto HTTP statuses.
func (s *server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, auction.ErrAuthFailed):
		status = http.StatusUnauthorized
	case errors.Is(err, auction.ErrSessionNotFound),
		errors.Is(err, auction.ErrUserNotFound):
		status = http.StatusNotFound
	case errors.Is(err, auction.ErrSessionNotStarted),
		errors.Is(err, auction.ErrSessionEnded),
		errors.Is(err, auction.ErrSessionInactive),
		errors.Is(err, auction.ErrPriceBelowReserve):
		status = http.StatusBadRequest
	case errors.Is(err, auction.ErrUpstreamTimeout):
		status = http.StatusGatewayTimeout
	case errors.Is(err, auction.ErrHotStoreUnavailable),
		errors.Is(err, auction.ErrDurableUnavailable):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("request failed")
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
