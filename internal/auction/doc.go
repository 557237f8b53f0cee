// Package auction defines the shared domain model for the bid pipeline:
// principals, auction sessions, bid records, leaderboard snapshots, the
// bid scoring function, and the error kinds surfaced by the core API.
//
// # Overview
//
// Every other package in the core speaks in terms of these types. The
// package has no external collaborators and no I/O; it exists so that the
// hot store, the durable store, and the request paths agree on one
// representation of the domain.
//
// # Scoring
//
// A bid is ordered by a single derived key, its score:
//
//	score = alpha*price + beta/(responseTime+1) + gamma*weight
//
// Higher scores rank better. The first term rewards higher bids, the
// second rewards earliness (strictly decreasing in response time), the
// third rewards bidder reputation. Alpha, beta and gamma are fixed per
// session once the session starts.
//
// # Error kinds
//
// The sentinel errors in this package are the stable, caller-visible
// error surface of the core. Callers match them with errors.Is; inner
// layers wrap them with additional context via fmt.Errorf and %w.
package auction
