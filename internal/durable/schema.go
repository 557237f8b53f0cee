package durable

import "context"

// Schema bootstrap. Every statement is idempotent so the process can run
// it unconditionally at startup.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            UUID PRIMARY KEY,
		username      TEXT NOT NULL UNIQUE,
		email         TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		is_admin      BOOLEAN NOT NULL DEFAULT FALSE,
		weight        DOUBLE PRECISION NOT NULL DEFAULT 1.0
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id            UUID PRIMARY KEY,
		product_id    UUID NOT NULL,
		reserve_price DOUBLE PRECISION NOT NULL,
		final_price   DOUBLE PRECISION,
		inventory     INTEGER NOT NULL CHECK (inventory >= 1),
		alpha         DOUBLE PRECISION NOT NULL,
		beta          DOUBLE PRECISION NOT NULL,
		gamma         DOUBLE PRECISION NOT NULL,
		start_time    TIMESTAMPTZ NOT NULL,
		end_time      TIMESTAMPTZ NOT NULL,
		is_active     BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE TABLE IF NOT EXISTS bids (
		session_id UUID NOT NULL REFERENCES sessions (id),
		user_id    UUID NOT NULL REFERENCES users (id),
		price      DOUBLE PRECISION NOT NULL,
		score      DOUBLE PRECISION NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (session_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS rankings (
		session_id UUID NOT NULL REFERENCES sessions (id),
		user_id    UUID NOT NULL REFERENCES users (id),
		rank       INTEGER NOT NULL,
		price      DOUBLE PRECISION NOT NULL,
		score      DOUBLE PRECISION NOT NULL,
		is_winner  BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (session_id, user_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_bids_session_score
		ON bids (session_id, score DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_active_end
		ON sessions (end_time) WHERE is_active`,
	`CREATE INDEX IF NOT EXISTS idx_rankings_session_rank
		ON rankings (session_id, rank)`,
}

// InitSchema creates the tables and indexes if they do not exist.
func (p *Postgres) InitSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return wrap("init schema", err)
		}
	}
	return nil
}
