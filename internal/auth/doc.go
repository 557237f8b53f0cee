// Package auth resolves opaque bearer tokens to principals without
// touching the durable store on the hot path.
//
// # Overview
//
// Authentication sits in front of every bid, so it is engineered for
// zero datastore lookups in the common case:
//
//  1. The process-local token cache maps token -> principal snapshot
//     with a short TTL (default 5 s). A hit costs one mutex acquisition.
//  2. On a miss, the token's HMAC signature and expiry are verified (CPU
//     only) and the identity snapshot is read from the hot store's
//     user:{id} hash.
//  3. If the snapshot has expired but the token is still valid, a
//     reduced principal is reconstructed from the token claims with the
//     default weight. Bidding proceeds; only the reputation bonus is
//     affected until the snapshot is repopulated.
//
// Cache contents are advisory: any miss falls through cleanly, and TTL
// bounds staleness, so no cross-process invalidation is needed.
//
// # Eviction
//
// The cache is bounded. When full, inserting a new token evicts the
// entry with the earliest expiration, which approximates LRU under the
// uniform TTL all entries share.
package auth
