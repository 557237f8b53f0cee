// Package broadcast fans leaderboard changes and session lifecycle
// events out to connected clients.
//
// Each session with at least one subscriber gets a worker goroutine fed
// by a one-slot trigger channel. The write path calls Notify after every
// accepted bid; because the trigger holds at most one pending signal, a
// burst of bids coalesces into a single snapshot rebuild instead of one
// per bid. The worker pulls a fresh snapshot from the configured source
// and fans it out with non-blocking sends.
//
// Subscriber channels are bounded. A subscriber that cannot keep up is
// disconnected rather than allowed to stall the fan-out; the transport
// layer observes the closed channel and drops the connection, and the
// client reconnects for a fresh snapshot.
//
// A single global topic carries session lifecycle events (created,
// ended) under the same overflow rules.
package broadcast
