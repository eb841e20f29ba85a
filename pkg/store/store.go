// Package store persists each Session's last-known-good schema,
// sequence number, and token so a reloadsyncd restart does not force
// every connected device through a cold Full resync. SQLite is the
// single-node default; PostgreSQL is available for HA deployments
// running multiple reloadsyncd replicas behind a shared store.
package store

import "context"

// Store is the persistence capability the session Registry uses to
// survive a restart. Implementations must be safe for concurrent use.
type Store interface {
	// SaveSession upserts rec.
	SaveSession(ctx context.Context, rec SessionRecord) error

	// LoadSession returns the persisted record for id, or ok=false if
	// none exists.
	LoadSession(ctx context.Context, id string) (rec SessionRecord, ok bool, err error)

	// DeleteSession removes the persisted record for id, if any.
	DeleteSession(ctx context.Context, id string) error

	// Close releases the underlying connection.
	Close() error
}
