package durable

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dreamware/flashbid/internal/auction"
)

// bidKey identifies one bid row: exactly one per (session, user).
type bidKey struct {
	sessionID uuid.UUID
	userID    uuid.UUID
}

// Memory implements Store in-process for tests and local development.
// Uses sync.Mutex for thread-safe concurrent access.
type Memory struct {
	mu        sync.Mutex
	users     map[uuid.UUID]auction.Principal
	sessions  map[uuid.UUID]auction.Session
	bids      map[bidKey]auction.BidRecord
	rankings  map[uuid.UUID][]auction.FinalRank
	upsertErr error
}

// NewMemory creates an empty in-memory system of record.
func NewMemory() *Memory {
	return &Memory{
		users:    make(map[uuid.UUID]auction.Principal),
		sessions: make(map[uuid.UUID]auction.Session),
		bids:     make(map[bidKey]auction.BidRecord),
		rankings: make(map[uuid.UUID][]auction.FinalRank),
	}
}

// PutUser seeds or replaces a user row.
func (m *Memory) PutUser(p auction.Principal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[p.ID] = p
}

// PutSession seeds or replaces a session row.
func (m *Memory) PutSession(s auction.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
}

// SetUpsertError makes every subsequent UpsertBids call fail with err
// until cleared with nil. This is useful for testing retry behavior.
func (m *Memory) SetUpsertError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertErr = err
}

// SessionByID returns the session row.
func (m *Memory) SessionByID(_ context.Context, id uuid.UUID) (*auction.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, auction.ErrSessionNotFound
	}
	// Return a copy to prevent external modification.
	out := s
	if s.FinalPrice != nil {
		fp := *s.FinalPrice
		out.FinalPrice = &fp
	}
	return &out, nil
}

// ListSessions returns all sessions, newest start time first.
func (m *Memory) ListSessions(_ context.Context) ([]auction.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]auction.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return out, nil
}

// ExpiredActiveSessions returns active sessions whose end time has passed.
func (m *Memory) ExpiredActiveSessions(_ context.Context, now time.Time) ([]auction.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []auction.Session
	for _, s := range m.sessions {
		if s.IsActive && !s.EndTime.After(now) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndTime.Before(out[j].EndTime) })
	return out, nil
}

// UpsertBids writes the records with conflict resolution on
// (session_id, user_id).
func (m *Memory) UpsertBids(_ context.Context, records []auction.BidRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.upsertErr != nil {
		return m.upsertErr
	}
	for _, r := range records {
		m.bids[bidKey{r.SessionID, r.UserID}] = r
	}
	return nil
}

// BidsBySession returns the reconciled bids for one session, best score
// first.
func (m *Memory) BidsBySession(_ context.Context, sessionID uuid.UUID) ([]auction.BidRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []auction.BidRecord
	for k, r := range m.bids {
		if k.sessionID == sessionID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

// UserByID returns the full identity row.
func (m *Memory) UserByID(_ context.Context, id uuid.UUID) (*auction.Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, auction.ErrUserNotFound
	}
	out := u
	return &out, nil
}

// UsernamesByID resolves display names.
func (m *Memory) UsernamesByID(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[uuid.UUID]string, len(ids))
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			out[id] = u.Username
		}
	}
	return out, nil
}

// FinalizeSession freezes the session; a second call is a no-op.
func (m *Memory) FinalizeSession(_ context.Context, sessionID uuid.UUID, finalPrice float64, ranks []auction.FinalRank) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return false, auction.ErrSessionNotFound
	}
	if !s.IsActive {
		return false, nil
	}

	s.IsActive = false
	fp := finalPrice
	s.FinalPrice = &fp
	m.sessions[sessionID] = s

	frozen := make([]auction.FinalRank, len(ranks))
	copy(frozen, ranks)
	m.rankings[sessionID] = frozen
	return true, nil
}

// SessionResults returns the session and its frozen ranking.
func (m *Memory) SessionResults(ctx context.Context, sessionID uuid.UUID) (*auction.SessionResults, error) {
	s, err := m.SessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ranks := make([]auction.FinalRank, len(m.rankings[sessionID]))
	copy(ranks, m.rankings[sessionID])
	return &auction.SessionResults{Session: *s, Rankings: ranks}, nil
}

// Ping always succeeds for the in-memory store.
func (m *Memory) Ping(context.Context) error { return nil }

// Close is a no-op for the in-memory store.
func (m *Memory) Close() {}

var _ Store = (*Memory)(nil)
