// Package monitor watches for auction sessions whose end time has
// passed and finalizes them exactly once.
//
// Finalization is a small pipeline per session: force-persist any
// still-dirty bids so the durable store is complete, read the full
// descending scoreboard, freeze it into 1-based final ranks with the
// top K marked as winners, derive the clearing price, and commit the
// ranking plus the deactivation in one durable transaction. The durable
// store's guarded update makes the commit idempotent, so two monitors
// racing on the same session cannot double-finalize it.
//
// The clearing price is the K-th winner's bid price; a session that
// attracted fewer than K bidders clears at its reserve price.
package monitor
