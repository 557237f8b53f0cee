// Package bidding implements the hot-path request handlers of the bid
// pipeline: the write path (Processor) and the read path (Reader).
//
// # Write path
//
// SubmitBid validates the session window and reserve price from cached
// parameters, computes the score, and applies the whole hot-store
// mutation - scoreboard upsert, bid hash, TTL refresh, dirty marker,
// persister metadata - in one pipelined operation. The durable store is
// never touched; the batch persister reconciles it later. A successful
// bid is visible on the leaderboard immediately.
//
// # Read path
//
// Leaderboard serves one page of the descending scoreboard with a
// pipelined metadata multi-get and a single bulk identity lookup (the
// only durable-store touch on the read path, and only for names absent
// from the identity cache). Identity lookup failures degrade to
// placeholder usernames; a missing scoreboard is an empty result, not an
// error.
package bidding
