// Package durable provides the facade over the system of record: users,
// auction sessions, the reconciled bids table, and the frozen final
// rankings written at session finalization.
//
// # Overview
//
// The durable store deliberately lags the hot store between persist
// cycles; the batch persister reconciles the two with an idempotent
// upsert, and the session monitor makes durability exact at
// finalization. Nothing on the bid write path touches this package.
//
// # Implementations
//
//	┌──────────────────────────────────────┐
//	│  Persister / Monitor / Reader /      │
//	│  Session Parameter Cache             │
//	└──────────────────────────────────────┘
//	                 │
//	                 ▼
//	┌──────────────────────────────────────┐
//	│           Store interface            │
//	└──────────────────────────────────────┘
//	            │           │
//	            ▼           ▼
//	      ┌──────────┐  ┌────────┐
//	      │ Postgres │  │ Memory │
//	      └──────────┘  └────────┘
//
// Postgres runs on pgx/v5's pgxpool with two pool profiles: proxied
// (large pool, no acquire-time ping, for deployments behind a connection
// proxy) and direct (conservative pool with an acquire-time health
// check). Memory backs tests and local development.
//
// # Idempotence
//
// UpsertBids resolves conflicts on (session_id, user_id), so repeated
// processing of the same bid metadata converges to the same rows.
// FinalizeSession flips is_active exactly once; a second invocation for
// the same session is a no-op.
package durable
