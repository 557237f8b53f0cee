// Package hotstore provides the typed facade over the in-memory hot
// store that holds live auction state between persist cycles: per-session
// sorted scoreboards, per-bid hashes, persister-facing bid metadata, the
// dirty-session set, cached session parameters, and identity snapshots.
//
// # Overview
//
// The hot store is the authority for live state. A successful bid is
// visible on the leaderboard immediately, before the durable store has
// seen it; the batch persister later reconciles the two. Everything the
// request path needs is expressed as a typed operation here so that no
// caller ever touches raw keys or stringified hash fields.
//
// # Architecture
//
//	┌─────────────────────────────────────┐
//	│     Bid Processor / Reader /        │
//	│     Persister / Monitor             │
//	└─────────────────────────────────────┘
//	                 │
//	                 ▼
//	┌─────────────────────────────────────┐
//	│          Store interface            │
//	│  (ApplyBid, ScoreboardPage, ...)    │
//	└─────────────────────────────────────┘
//	            │           │
//	            ▼           ▼
//	       ┌────────┐  ┌────────┐
//	       │ Redis  │  │ Memory │
//	       └────────┘  └────────┘
//
// Redis is the production implementation (go-redis/v9, pipelined
// multi-ops, bounded connection pool, periodic health probe). Memory is a
// faithful in-process mirror used by tests and local development; it
// reproduces Redis sorted-set ordering exactly, including the tie-break
// for equal scores, so ranking behavior does not depend on the backend.
//
// # Key shapes
//
// Keys are stable for interop and debugging:
//
//	ranking:{session_id}                sorted set, member = user_id, score = bid score
//	bid:{session_id}:{user_id}          hash {price, score, updated_at}
//	bid_metadata:{session_id}:{user_id} hash {user_id, bid_price, bid_score, updated_at}
//	dirty_sessions                      set of session ids
//	session:params:{session_id}         hash of immutable session parameters
//	session:active:{session_id}         short-lived status string ("1"|"0")
//	user:{id}                           identity snapshot hash
//
// # Ordering
//
// Scoreboards order descending by score. Exactly-equal scores are broken
// by member, per Redis sorted-set semantics: a descending range yields
// ties in reverse-lexicographic user-id order. The tie-break is stable
// and identical across both implementations.
package hotstore
