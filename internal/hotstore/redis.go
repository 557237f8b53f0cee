package hotstore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/dreamware/flashbid/internal/auction"
)

const (
	// Per-call deadline for hot-store operations.
	redisOpTimeout = 10 * time.Second

	redisDialTimeout = 5 * time.Second
	probeInterval    = 30 * time.Second
	scanBatch        = 100
)

// Redis is the production Store implementation on go-redis/v9. It owns a
// bounded connection pool with TCP keepalive and runs a periodic health
// probe; connection failures surface as auction.ErrHotStoreUnavailable
// and exceeded deadlines as auction.ErrUpstreamTimeout.
type Redis struct {
	rdb       *redis.Client
	log       zerolog.Logger
	probeStop context.CancelFunc
	probeDone chan struct{}
}

// NewRedis connects to the hot store at the given URL
// (redis://[:password@]host:port/db) with a pool of at most maxConns
// connections and verifies connectivity with an initial ping.
func NewRedis(url string, maxConns int, log zerolog.Logger) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse hot store url: %w", err)
	}

	opt.PoolSize = maxConns
	opt.DialTimeout = redisDialTimeout
	opt.ReadTimeout = redisOpTimeout
	opt.WriteTimeout = redisOpTimeout
	opt.Dialer = func(ctx context.Context, network, addr string) (net.Conn, error) {
		d := net.Dialer{
			Timeout:   redisDialTimeout,
			KeepAlive: 30 * time.Second,
		}
		return d.DialContext(ctx, network, addr)
	}

	r := &Redis{
		rdb:       redis.NewClient(opt),
		log:       log,
		probeDone: make(chan struct{}),
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisDialTimeout)
	defer cancel()
	if err := r.rdb.Ping(ctx).Err(); err != nil {
		_ = r.rdb.Close()
		return nil, r.wrap("ping", err)
	}

	probeCtx, probeStop := context.WithCancel(context.Background())
	r.probeStop = probeStop
	go r.probe(probeCtx)

	return r, nil
}

// probe pings the hot store on a fixed interval so pool exhaustion and
// connectivity loss show up in the logs before the write path notices.
func (r *Redis) probe(ctx context.Context) {
	defer close(r.probeDone)

	ticker := time.NewTicker(probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, redisDialTimeout)
			err := r.rdb.Ping(pingCtx).Err()
			cancel()
			if err != nil {
				r.log.Warn().Err(err).Msg("hot store health probe failed")
			}
		case <-ctx.Done():
			return
		}
	}
}

// wrap maps a raw client error onto the stable error kinds.
func (r *Redis) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("hot store %s: %w", op, auction.ErrUpstreamTimeout)
	}
	return fmt.Errorf("hot store %s: %v: %w", op, err, auction.ErrHotStoreUnavailable)
}

// ApplyBid applies the full bid mutation in one pipelined round-trip.
// Sub-ops are applied in issue order on a single connection, which keeps
// the scoreboard and the metadata hash mutually consistent under
// concurrent re-bids from the same user.
func (r *Redis) ApplyBid(ctx context.Context, b Bid) error {
	member := b.UserID.String()
	ranking := rankingKey(b.SessionID)
	bid := bidKey(b.SessionID, b.UserID)
	meta := metadataKey(b.SessionID, b.UserID)

	_, err := r.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.ZAdd(ctx, ranking, redis.Z{Score: b.Score, Member: member})
		p.HSet(ctx, bid, map[string]string{
			"price":      formatFloat(b.Price),
			"score":      formatFloat(b.Score),
			"updated_at": formatTime(b.UpdatedAt),
		})
		p.Expire(ctx, ranking, b.TTL)
		p.Expire(ctx, bid, b.TTL)
		p.SAdd(ctx, dirtySessionsKey, b.SessionID.String())
		p.HSet(ctx, meta, map[string]string{
			"user_id":    member,
			"bid_price":  formatFloat(b.Price),
			"bid_score":  formatFloat(b.Score),
			"updated_at": formatTime(b.UpdatedAt),
		})
		p.Expire(ctx, meta, b.TTL)
		return nil
	})
	return r.wrap("apply bid", err)
}

// Rank returns the 1-based descending rank of userID.
func (r *Redis) Rank(ctx context.Context, sessionID, userID uuid.UUID) (int, bool, error) {
	rank, err := r.rdb.ZRevRank(ctx, rankingKey(sessionID), userID.String()).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, r.wrap("rank", err)
	}
	return int(rank) + 1, true, nil
}

// ScoreboardPage fetches one page plus the total size in one pipeline.
func (r *Redis) ScoreboardPage(ctx context.Context, sessionID uuid.UUID, offset, count int64) ([]ScoreEntry, int64, error) {
	key := rankingKey(sessionID)

	var (
		pageCmd *redis.ZSliceCmd
		sizeCmd *redis.IntCmd
	)
	_, err := r.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		pageCmd = p.ZRevRangeWithScores(ctx, key, offset, offset+count-1)
		sizeCmd = p.ZCard(ctx, key)
		return nil
	})
	if err != nil {
		return nil, 0, r.wrap("scoreboard page", err)
	}

	entries := r.decodeEntries(pageCmd.Val())
	return entries, sizeCmd.Val(), nil
}

// ScoreboardRange fetches entries [start, stop] of the descending
// scoreboard.
func (r *Redis) ScoreboardRange(ctx context.Context, sessionID uuid.UUID, start, stop int64) ([]ScoreEntry, error) {
	zs, err := r.rdb.ZRevRangeWithScores(ctx, rankingKey(sessionID), start, stop).Result()
	if err != nil {
		return nil, r.wrap("scoreboard range", err)
	}
	return r.decodeEntries(zs), nil
}

func (r *Redis) decodeEntries(zs []redis.Z) []ScoreEntry {
	entries := make([]ScoreEntry, 0, len(zs))
	for _, z := range zs {
		member, _ := z.Member.(string)
		id, err := uuid.Parse(member)
		if err != nil {
			r.log.Warn().Str("member", member).Msg("skipping scoreboard member with invalid user id")
			continue
		}
		entries = append(entries, ScoreEntry{UserID: id, Score: z.Score})
	}
	return entries
}

// BidRecords bulk-fetches per-bid hashes via one pipeline.
func (r *Redis) BidRecords(ctx context.Context, sessionID uuid.UUID, userIDs []uuid.UUID) (map[uuid.UUID]BidFields, error) {
	if len(userIDs) == 0 {
		return map[uuid.UUID]BidFields{}, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(userIDs))
	_, err := r.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, id := range userIDs {
			cmds[i] = p.HGetAll(ctx, bidKey(sessionID, id))
		}
		return nil
	})
	if err != nil {
		return nil, r.wrap("bid records", err)
	}

	out := make(map[uuid.UUID]BidFields, len(userIDs))
	for i, id := range userIDs {
		h := cmds[i].Val()
		if len(h) == 0 {
			continue
		}
		fields, err := parseBidFields(h)
		if err != nil {
			r.log.Warn().Err(err).Stringer("user_id", id).Msg("skipping malformed bid hash")
			continue
		}
		out[id] = fields
	}
	return out, nil
}

// SessionParams returns the cached immutable session parameters.
func (r *Redis) SessionParams(ctx context.Context, sessionID uuid.UUID) (*auction.Params, bool, error) {
	h, err := r.rdb.HGetAll(ctx, paramsKey(sessionID)).Result()
	if err != nil {
		return nil, false, r.wrap("session params", err)
	}
	if len(h) == 0 {
		return nil, false, nil
	}
	p, err := parseParams(h)
	if err != nil {
		// Treat a malformed cache entry as a miss; the read-through
		// will rewrite it.
		r.log.Warn().Err(err).Stringer("session_id", sessionID).Msg("malformed session params cache entry")
		return nil, false, nil
	}
	return &p, true, nil
}

// PutSessionParams caches the immutable session parameters.
func (r *Redis) PutSessionParams(ctx context.Context, sessionID uuid.UUID, p auction.Params, ttl time.Duration) error {
	key := paramsKey(sessionID)
	_, err := r.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, paramsHash(p))
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	return r.wrap("put session params", err)
}

// SessionStatus returns the cached activity status.
func (r *Redis) SessionStatus(ctx context.Context, sessionID uuid.UUID) (string, bool, error) {
	v, err := r.rdb.Get(ctx, activeKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, r.wrap("session status", err)
	}
	return v, true, nil
}

// PutSessionStatus caches the activity status.
func (r *Redis) PutSessionStatus(ctx context.Context, sessionID uuid.UUID, status string, ttl time.Duration) error {
	return r.wrap("put session status", r.rdb.Set(ctx, activeKey(sessionID), status, ttl).Err())
}

// Identity returns the cached identity snapshot for one user.
func (r *Redis) Identity(ctx context.Context, userID uuid.UUID) (*auction.Principal, bool, error) {
	h, err := r.rdb.HGetAll(ctx, userKey(userID)).Result()
	if err != nil {
		return nil, false, r.wrap("identity", err)
	}
	if len(h) == 0 {
		return nil, false, nil
	}
	p, err := parsePrincipal(h)
	if err != nil {
		r.log.Warn().Err(err).Stringer("user_id", userID).Msg("malformed identity cache entry")
		return nil, false, nil
	}
	return &p, true, nil
}

// Identities bulk-fetches identity snapshots via one pipeline.
func (r *Redis) Identities(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]auction.Principal, error) {
	if len(userIDs) == 0 {
		return map[uuid.UUID]auction.Principal{}, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(userIDs))
	_, err := r.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, id := range userIDs {
			cmds[i] = p.HGetAll(ctx, userKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, r.wrap("identities", err)
	}

	out := make(map[uuid.UUID]auction.Principal, len(userIDs))
	for i, id := range userIDs {
		h := cmds[i].Val()
		if len(h) == 0 {
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
func (r *Redis) PutIdentity(ctx context.Context, p auction.Principal, ttl time.Duration) error {
	key := userKey(p.ID)
	_, err := r.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, principalHash(p))
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	return r.wrap("put identity", err)
}

// MarkDirty adds the session to the dirty-session set.
func (r *Redis) MarkDirty(ctx context.Context, sessionID uuid.UUID) error {
	return r.wrap("mark dirty", r.rdb.SAdd(ctx, dirtySessionsKey, sessionID.String()).Err())
}

// MarkClean removes the session from the dirty-session set.
func (r *Redis) MarkClean(ctx context.Context, sessionID uuid.UUID) error {
	return r.wrap("mark clean", r.rdb.SRem(ctx, dirtySessionsKey, sessionID.String()).Err())
}

// DirtySnapshot atomically reads and clears the dirty-session set using
// MULTI/EXEC, so a concurrent bid either lands before the snapshot or
// re-adds its session afterwards.
func (r *Redis) DirtySnapshot(ctx context.Context) ([]uuid.UUID, error) {
	var membersCmd *redis.StringSliceCmd
	_, err := r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		membersCmd = p.SMembers(ctx, dirtySessionsKey)
		p.Del(ctx, dirtySessionsKey)
		return nil
	})
	if err != nil {
		return nil, r.wrap("dirty snapshot", err)
	}

	members := membersCmd.Val()
	ids := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		id, err := uuid.Parse(m)
		if err != nil {
			r.log.Warn().Str("member", m).Msg("skipping dirty-session member with invalid id")
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ScanBidMetadata walks bid_metadata:{session}:* with a cursor scan (never
// a blocking keyspace scan), bulk-fetches the hashes in one pipeline, and
// decodes them defensively. Malformed hashes are logged and skipped; their
// keys are still returned for cleanup.
func (r *Redis) ScanBidMetadata(ctx context.Context, sessionID uuid.UUID) ([]Metadata, []string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := r.rdb.Scan(ctx, cursor, metadataPattern(sessionID), scanBatch).Result()
		if err != nil {
			return nil, nil, r.wrap("scan bid metadata", err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}

	if len(keys) == 0 {
		return nil, nil, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(keys))
	_, err := r.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, key := range keys {
			cmds[i] = p.HGetAll(ctx, key)
		}
		return nil
	})
	if err != nil {
		return nil, nil, r.wrap("fetch bid metadata", err)
	}

	records := make([]Metadata, 0, len(keys))
	for i, key := range keys {
		h := cmds[i].Val()
		if len(h) == 0 {
			continue
		}
		m, err := parseMetadata(h)
		if err != nil {
			r.log.Warn().Err(err).Str("key", key).Msg("skipping invalid bid metadata")
			continue
		}
		records = append(records, m)
	}
	return records, keys, nil
}

// DeleteKeys removes the given raw keys.
func (r *Redis) DeleteKeys(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.wrap("delete keys", r.rdb.Del(ctx, keys...).Err())
}

// Ping probes connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	return r.wrap("ping", r.rdb.Ping(ctx).Err())
}

// Close stops the health probe and releases the connection pool.
func (r *Redis) Close() error {
	if r.probeStop != nil {
		r.probeStop()
		<-r.probeDone
	}
	return r.rdb.Close()
}

var _ Store = (*Redis)(nil)
