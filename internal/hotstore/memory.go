package hotstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dreamware/flashbid/internal/auction"
)

// Memory implements Store in-process for tests and local development.
// It models the same keyspace as the Redis implementation (hashes hold
// stringified fields, scoreboards are sorted sets) and reproduces the
// sorted-set tie-break exactly: ascending order is (score, member), so a
// descending range yields equal scores in reverse-lexicographic member
// order.
// Uses sync.Mutex for thread-safe concurrent access.
type Memory struct {
	mu      sync.Mutex
	clock   func() time.Time
	zsets   map[string]map[string]float64
	hashes  map[string]map[string]string
	strings map[string]string
	sets    map[string]map[string]struct{}
	expiry  map[string]time.Time
}

// NewMemory creates an empty in-memory hot store.
func NewMemory() *Memory {
	return &Memory{
		clock:   time.Now,
		zsets:   make(map[string]map[string]float64),
		hashes:  make(map[string]map[string]string),
		strings: make(map[string]string),
		sets:    make(map[string]map[string]struct{}),
		expiry:  make(map[string]time.Time),
	}
}

// SetClock overrides the time source used for key expiry.
// This is useful for testing TTL behavior without sleeping.
func (m *Memory) SetClock(clock func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock = clock
}

// touch drops the key if its TTL has elapsed. Callers must hold mu.
func (m *Memory) touch(key string) {
	exp, ok := m.expiry[key]
	if !ok || m.clock().Before(exp) {
		return
	}
	delete(m.zsets, key)
	delete(m.hashes, key)
	delete(m.strings, key)
	delete(m.sets, key)
	delete(m.expiry, key)
}

// setExpiry records a TTL for the key. ttl <= 0 means no expiry.
// Callers must hold mu.
func (m *Memory) setExpiry(key string, ttl time.Duration) {
	if ttl > 0 {
		m.expiry[key] = m.clock().Add(ttl)
	}
}

// descending returns the scoreboard ordered by score descending with
// equal scores in reverse-lexicographic member order, matching Redis.
// Callers must hold mu.
func (m *Memory) descending(key string) []struct {
	member string
	score  float64
} {
	zs := m.zsets[key]
	out := make([]struct {
		member string
		score  float64
	}, 0, len(zs))
	for member, score := range zs {
		out = append(out, struct {
			member string
			score  float64
		}{member, score})
	}
	// Ascending (score, member), then reversed.
	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score < out[j].score
		}
		return out[i].member < out[j].member
	})
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// ApplyBid applies the full bid mutation. The in-memory form is applied
// under one lock acquisition, mirroring the single-pipeline atomicity of
// the Redis implementation.
func (m *Memory) ApplyBid(_ context.Context, b Bid) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ranking := rankingKey(b.SessionID)
	bid := bidKey(b.SessionID, b.UserID)
	meta := metadataKey(b.SessionID, b.UserID)
	m.touch(ranking)
	m.touch(bid)
	m.touch(meta)

	if m.zsets[ranking] == nil {
		m.zsets[ranking] = make(map[string]float64)
	}
	m.zsets[ranking][b.UserID.String()] = b.Score

	m.hashes[bid] = map[string]string{
		"price":      formatFloat(b.Price),
		"score":      formatFloat(b.Score),
		"updated_at": formatTime(b.UpdatedAt),
	}
	m.setExpiry(ranking, b.TTL)
	m.setExpiry(bid, b.TTL)

	if m.sets[dirtySessionsKey] == nil {
		m.sets[dirtySessionsKey] = make(map[string]struct{})
	}
	m.sets[dirtySessionsKey][b.SessionID.String()] = struct{}{}

	m.hashes[meta] = map[string]string{
		"user_id":    b.UserID.String(),
		"bid_price":  formatFloat(b.Price),
		"bid_score":  formatFloat(b.Score),
		"updated_at": formatTime(b.UpdatedAt),
	}
	m.setExpiry(meta, b.TTL)

	return nil
}

// Rank returns the 1-based descending rank of userID.
func (m *Memory) Rank(_ context.Context, sessionID, userID uuid.UUID) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := rankingKey(sessionID)
	m.touch(key)

	member := userID.String()
	for i, e := range m.descending(key) {
		if e.member == member {
			return i + 1, true, nil
		}
	}
	return 0, false, nil
}

// ScoreboardPage returns one page of the descending scoreboard plus its
// total size.
func (m *Memory) ScoreboardPage(ctx context.Context, sessionID uuid.UUID, offset, count int64) ([]ScoreEntry, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := rankingKey(sessionID)
	m.touch(key)
	total := int64(len(m.zsets[key]))
	return m.sliceRange(key, offset, offset+count-1), total, nil
}

// ScoreboardRange returns entries [start, stop] of the descending
// scoreboard; stop = -1 means through the end.
func (m *Memory) ScoreboardRange(_ context.Context, sessionID uuid.UUID, start, stop int64) ([]ScoreEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := rankingKey(sessionID)
	m.touch(key)
	return m.sliceRange(key, start, stop), nil
}

// sliceRange applies Redis range semantics to the descending scoreboard.
// Callers must hold mu.
func (m *Memory) sliceRange(key string, start, stop int64) []ScoreEntry {
	ordered := m.descending(key)
	n := int64(len(ordered))
	if stop < 0 {
		stop = n + stop
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || n == 0 {
		return nil
	}

	out := make([]ScoreEntry, 0, stop-start+1)
	for _, e := range ordered[start : stop+1] {
		id, err := uuid.Parse(e.member)
		if err != nil {
			continue
		}
		out = append(out, ScoreEntry{UserID: id, Score: e.score})
	}
	return out
}

// BidRecords bulk-fetches per-bid hashes.
func (m *Memory) BidRecords(_ context.Context, sessionID uuid.UUID, userIDs []uuid.UUID) (map[uuid.UUID]BidFields, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[uuid.UUID]BidFields, len(userIDs))
	for _, id := range userIDs {
		key := bidKey(sessionID, id)
		m.touch(key)
		h, ok := m.hashes[key]
		if !ok {
			continue
		}
		fields, err := parseBidFields(h)
		if err != nil {
			continue
		}
		out[id] = fields
	}
	return out, nil
}

// SessionParams returns the cached immutable session parameters.
func (m *Memory) SessionParams(_ context.Context, sessionID uuid.UUID) (*auction.Params, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := paramsKey(sessionID)
	m.touch(key)
	h, ok := m.hashes[key]
	if !ok {
		return nil, false, nil
	}
	p, err := parseParams(h)
	if err != nil {
		return nil, false, nil
	}
	return &p, true, nil
}

// PutSessionParams caches the immutable session parameters.
func (m *Memory) PutSessionParams(_ context.Context, sessionID uuid.UUID, p auction.Params, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := paramsKey(sessionID)
	m.hashes[key] = paramsHash(p)
	m.setExpiry(key, ttl)
	return nil
}

// SessionStatus returns the cached activity status.
func (m *Memory) SessionStatus(_ context.Context, sessionID uuid.UUID) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := activeKey(sessionID)
	m.touch(key)
	v, ok := m.strings[key]
	return v, ok, nil
}

// PutSessionStatus caches the activity status.
func (m *Memory) PutSessionStatus(_ context.Context, sessionID uuid.UUID, status string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := activeKey(sessionID)
	m.strings[key] = status
	m.setExpiry(key, ttl)
	return nil
}

// Identity returns the cached identity snapshot for one user.
func (m *Memory) Identity(_ context.Context, userID uuid.UUID) (*auction.Principal, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := userKey(userID)
	m.touch(key)
	h, ok := m.hashes[key]
	if !ok {
		return nil, false, nil
	}
	p, err := parsePrincipal(h)
	if err != nil {
		return nil, false, nil
	}
	return &p, true, nil
}

// Identities bulk-fetches identity snapshots.
func (m *Memory) Identities(_ context.Context, userIDs []uuid.UUID) (map[uuid.UUID]auction.Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[uuid.UUID]auction.Principal, len(userIDs))
	for _, id := range userIDs {
		key := userKey(id)
		m.touch(key)
		h, ok := m.hashes[key]
		if !ok {
			continue
		}
		p, err := parsePrincipal(h)
		if err != nil {
			continue
		}
		out[id] = p
	}
	return out, nil
}

// PutIdentity caches an identity snapshot.
func (m *Memory) PutIdentity(_ context.Context, p auction.Principal, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := userKey(p.ID)
	m.hashes[key] = principalHash(p)
	m.setExpiry(key, ttl)
	return nil
}

// MarkDirty adds the session to the dirty-session set.
func (m *Memory) MarkDirty(_ context.Context, sessionID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sets[dirtySessionsKey] == nil {
		m.sets[dirtySessionsKey] = make(map[string]struct{})
	}
	m.sets[dirtySessionsKey][sessionID.String()] = struct{}{}
	return nil
}

// MarkClean removes the session from the dirty-session set.
func (m *Memory) MarkClean(_ context.Context, sessionID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sets[dirtySessionsKey], sessionID.String())
	return nil
}

// DirtySnapshot atomically reads and clears the dirty-session set.
func (m *Memory) DirtySnapshot(_ context.Context) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	members := m.sets[dirtySessionsKey]
	ids := make([]uuid.UUID, 0, len(members))
	for member := range members {
		id, err := uuid.Parse(member)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	delete(m.sets, dirtySessionsKey)

	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}

// ScanBidMetadata collects every bid metadata hash for the session.
func (m *Memory) ScanBidMetadata(_ context.Context, sessionID uuid.UUID) ([]Metadata, []string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prefix := strings.TrimSuffix(metadataPattern(sessionID), "*")

	var keys []string
	for key := range m.hashes {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	records := make([]Metadata, 0, len(keys))
	for _, key := range keys {
		m.touch(key)
		h, ok := m.hashes[key]
		if !ok {
			continue
		}
		rec, err := parseMetadata(h)
		if err != nil {
			continue
		}
		records = append(records, rec)
	}
	if len(keys) == 0 {
		return nil, nil, nil
	}
	return records, keys, nil
}

// DeleteKeys removes the given raw keys.
func (m *Memory) DeleteKeys(_ context.Context, keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range keys {
		delete(m.zsets, key)
		delete(m.hashes, key)
		delete(m.strings, key)
		delete(m.sets, key)
		delete(m.expiry, key)
	}
	return nil
}

// Ping always succeeds for the in-memory store.
func (m *Memory) Ping(context.Context) error { return nil }

// Close is a no-op for the in-memory store.
func (m *Memory) Close() error { return nil }

var _ Store = (*Memory)(nil)
