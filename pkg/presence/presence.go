// Package presence tracks which users are reachable over live connections.
//
// A user is online iff it owns at least one non-expired connection entry.
// Entries carry a TTL so that a process that dies without disconnecting is
// eventually treated as offline.
package presence

import "context"

// Store is safe for arbitrary concurrent use from many sessions.
type Store interface {
	// Connect is idempotent; it adds connID to userID's set and (re)sets
	// the entry TTL.
	Connect(ctx context.Context, userID, connID string) error

	// Disconnect removes connID. It reports the owning user and whether the
	// user transitioned to offline as a result. Unknown connection ids are
	// a no-op with wentOffline=false.
	Disconnect(ctx context.Context, connID string) (userID string, wentOffline bool, err error)

	IsOnline(ctx context.Context, userID string) (bool, error)

	// ConnectionsOf returns the live connection ids owned by userID.
	ConnectionsOf(ctx context.Context, userID string) ([]string, error)
}
