// Package session caches immutable per-session scoring parameters and
// session activity status so the bid write path can validate and score
// without touching the durable store.
//
// Two cached entries exist per session, with very different lifetimes:
//
//   - session:params:{id} holds the immutable parameter set
//     (alpha/beta/gamma, reserve, inventory, timing). Safe to cache for
//     hours; it is read through from the durable store on a miss.
//   - session:active:{id} holds the activity flag with a short TTL:
//     10 seconds while a session may still be live (active or paused,
//     since a pause can be lifted), 5 minutes once it has definitively
//     ended. The short TTL bounds how long an administrative pause can
//     go unnoticed by the write path.
//
// Time-window checks (not started / ended) come straight from the cached
// parameters and cost no extra round-trip.
package session
