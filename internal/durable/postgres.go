package durable

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/dreamware/flashbid/internal/auction"
)

const (
	// Per-call deadlines for durable-store operations.
	queryTimeout   = 30 * time.Second
	connectTimeout = 15 * time.Second

	// Warm connections are recycled on the original's 5-minute cadence.
	connLifetime = 5 * time.Minute

	upsertChunk = 500
)

// PoolOptions selects between the two supported pool profiles.
//
// Proxied (behind a connection proxy such as PgBouncer): the proxy owns
// server-side pooling, so the client pool is sized generously and skips
// the acquire-time health check. Direct: conservative pool with an
// acquire-time ping, since a stale direct connection fails the first
// query it carries.
type PoolOptions struct {
	Size     int  // core pool connections
	Overflow int  // additional burst connections
	Proxied  bool // proxied profile when true
}

// Postgres is the production Store implementation on pgx/v5.
//
// pgxpool prefers recently released connections when acquiring, which
// gives the warm-connection reuse the pool exists for.
type Postgres struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// NewPostgres connects to the system of record and verifies connectivity.
func NewPostgres(ctx context.Context, url string, opts PoolOptions, log zerolog.Logger) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse durable store url: %w", err)
	}

	cfg.MaxConns = int32(opts.Size + opts.Overflow)
	cfg.MinConns = int32(opts.Size / 2)
	cfg.MaxConnLifetime = connLifetime
	cfg.ConnConfig.ConnectTimeout = connectTimeout
	if !opts.Proxied {
		cfg.HealthCheckPeriod = time.Minute
		cfg.BeforeAcquire = func(ctx context.Context, conn *pgx.Conn) bool {
			return conn.Ping(ctx) == nil
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("durable store connect: %v: %w", err, auction.ErrDurableUnavailable)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("durable store ping: %v: %w", err, auction.ErrDurableUnavailable)
	}

	return &Postgres{pool: pool, log: log}, nil
}

// wrap maps raw driver errors onto the stable error kinds.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("durable store %s: %w", op, auction.ErrUpstreamTimeout)
	}
	return fmt.Errorf("durable store %s: %v: %w", op, err, auction.ErrDurableUnavailable)
}

const sessionColumns = `id, product_id, reserve_price, final_price, inventory,
	alpha, beta, gamma, start_time, end_time, is_active`

func scanSession(row pgx.Row) (*auction.Session, error) {
	var s auction.Session
	err := row.Scan(&s.ID, &s.ProductID, &s.ReservePrice, &s.FinalPrice, &s.Inventory,
		&s.Alpha, &s.Beta, &s.Gamma, &s.StartTime, &s.EndTime, &s.IsActive)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// SessionByID returns the full session row.
func (p *Postgres) SessionByID(ctx context.Context, id uuid.UUID) (*auction.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	s, err := scanSession(p.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, auction.ErrSessionNotFound
	}
	if err != nil {
		return nil, wrap("session by id", err)
	}
	return s, nil
}

func (p *Postgres) querySessions(ctx context.Context, query string, args ...any) ([]auction.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []auction.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// ListSessions returns all sessions, newest start time first.
func (p *Postgres) ListSessions(ctx context.Context) ([]auction.Session, error) {
	sessions, err := p.querySessions(ctx,
		`SELECT `+sessionColumns+` FROM sessions ORDER BY start_time DESC`)
	if err != nil {
		return nil, wrap("list sessions", err)
	}
	return sessions, nil
}

// ExpiredActiveSessions returns active sessions whose end time has passed.
func (p *Postgres) ExpiredActiveSessions(ctx context.Context, now time.Time) ([]auction.Session, error) {
	sessions, err := p.querySessions(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE is_active AND end_time <= $1`, now)
	if err != nil {
		return nil, wrap("expired active sessions", err)
	}
	return sessions, nil
}

// UpsertBids writes the records in chunked transactional batches with
// conflict resolution on (session_id, user_id).
func (p *Postgres) UpsertBids(ctx context.Context, records []auction.BidRecord) error {
	if len(records) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return wrap("upsert bids begin", err)
	}
	defer tx.Rollback(ctx)

	for start := 0; start < len(records); start += upsertChunk {
		end := start + upsertChunk
		if end > len(records) {
			end = len(records)
		}
		if err := upsertChunked(ctx, tx, records[start:end]); err != nil {
			return wrap("upsert bids", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return wrap("upsert bids commit", err)
	}
	return nil
}

func upsertChunked(ctx context.Context, tx pgx.Tx, records []auction.BidRecord) error {
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString(`INSERT INTO bids (session_id, user_id, price, score, updated_at) VALUES `)
	for i, r := range records {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 5
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d)", base+1, base+2, base+3, base+4, base+5)
		args = append(args, r.SessionID, r.UserID, r.Price, r.Score, r.UpdatedAt)
	}
	sb.WriteString(` ON CONFLICT (session_id, user_id) DO UPDATE SET
		price = EXCLUDED.price, score = EXCLUDED.score, updated_at = EXCLUDED.updated_at`)

	_, err := tx.Exec(ctx, sb.String(), args...)
	return err
}

// BidsBySession returns the reconciled bids for one session.
func (p *Postgres) BidsBySession(ctx context.Context, sessionID uuid.UUID) ([]auction.BidRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := p.pool.Query(ctx,
		`SELECT session_id, user_id, price, score, updated_at
		 FROM bids WHERE session_id = $1 ORDER BY score DESC`, sessionID)
	if err != nil {
		return nil, wrap("bids by session", err)
	}
	defer rows.Close()

	var records []auction.BidRecord
	for rows.Next() {
		var r auction.BidRecord
		if err := rows.Scan(&r.SessionID, &r.UserID, &r.Price, &r.Score, &r.UpdatedAt); err != nil {
			return nil, wrap("bids by session", err)
		}
		records = append(records, r)
	}
	return records, wrap("bids by session", rows.Err())
}

// UserByID returns the full identity row.
func (p *Postgres) UserByID(ctx context.Context, id uuid.UUID) (*auction.Principal, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var u auction.Principal
	err := p.pool.QueryRow(ctx,
		`SELECT id, username, weight, is_admin FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Username, &u.Weight, &u.IsAdmin)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, auction.ErrUserNotFound
	}
	if err != nil {
		return nil, wrap("user by id", err)
	}
	return &u, nil
}

// UsernamesByID resolves display names in one bulk lookup.
func (p *Postgres) UsernamesByID(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]string{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := p.pool.Query(ctx,
		`SELECT id, username FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, wrap("usernames by id", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID]string, len(ids))
	for rows.Next() {
		var (
			id       uuid.UUID
			username string
		)
		if err := rows.Scan(&id, &username); err != nil {
			return nil, wrap("usernames by id", err)
		}
		out[id] = username
	}
	return out, wrap("usernames by id", rows.Err())
}

// FinalizeSession freezes the session in one transaction. The guarded
// UPDATE makes it idempotent: a session that is already inactive is left
// untouched and the ranking rows are not rewritten.
func (p *Postgres) FinalizeSession(ctx context.Context, sessionID uuid.UUID, finalPrice float64, ranks []auction.FinalRank) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return false, wrap("finalize begin", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE sessions SET is_active = FALSE, final_price = $2
		 WHERE id = $1 AND is_active`, sessionID, finalPrice)
	if err != nil {
		return false, wrap("finalize session", err)
	}
	if tag.RowsAffected() == 0 {
		// Already finalized.
		return false, nil
	}

	for _, r := range ranks {
		_, err := tx.Exec(ctx,
			`INSERT INTO rankings (session_id, user_id, rank, price, score, is_winner)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (session_id, user_id) DO NOTHING`,
			r.SessionID, r.UserID, r.Rank, r.Price, r.Score, r.IsWinner)
		if err != nil {
			return false, wrap("finalize rankings", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, wrap("finalize commit", err)
	}
	return true, nil
}

// SessionResults returns the session and its frozen ranking.
func (p *Postgres) SessionResults(ctx context.Context, sessionID uuid.UUID) (*auction.SessionResults, error) {
	s, err := p.SessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := p.pool.Query(ctx,
		`SELECT session_id, user_id, rank, price, score, is_winner
		 FROM rankings WHERE session_id = $1 ORDER BY rank`, sessionID)
	if err != nil {
		return nil, wrap("session results", err)
	}
	defer rows.Close()

	results := &auction.SessionResults{Session: *s}
	for rows.Next() {
		var r auction.FinalRank
		if err := rows.Scan(&r.SessionID, &r.UserID, &r.Rank, &r.Price, &r.Score, &r.IsWinner); err != nil {
			return nil, wrap("session results", err)
		}
		results.Rankings = append(results.Rankings, r)
	}
	return results, wrap("session results", rows.Err())
}

// Ping probes connectivity.
func (p *Postgres) Ping(ctx context.Context) error {
	return wrap("ping", p.pool.Ping(ctx))
}

// Close releases the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

var _ Store = (*Postgres)(nil)
