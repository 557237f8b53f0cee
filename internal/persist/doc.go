// Package persist reconciles the hot store with the durable system of
// record. A background worker wakes on a fixed interval, atomically
// snapshots the dirty-session set, and for each dirty session scans the
// persister-facing bid metadata, upserts it into the durable store in
// one transactional batch, and deletes the drained metadata keys.
//
// Failure handling is at-least-once: if a session's batch cannot be
// written after bounded retries, the session is re-marked dirty and its
// metadata keys are left in place, so the next cycle picks it up again.
// Upserts are idempotent on (session_id, user_id), so replays are safe.
//
// ForcePersist runs the same drain synchronously for one session; the
// session monitor calls it before freezing a final ranking so the
// durable store reflects every accepted bid.
package persist
