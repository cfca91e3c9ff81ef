package store

import (
	"context"
	"time"
)

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Archives
	SaveArchive(ctx context.Context, a *Archive) error
	GetArchive(ctx context.Context, id string) (*Archive, error)
	ListArchives(ctx context.Context, filter ArchiveFilter) ([]*Archive, error)
	DeleteArchive(ctx context.Context, id string) error

	// Revision history (append-only; see RevisionLog for writes)
	GetRevisions(ctx context.Context, archiveID string, since int64) ([]*Revision, error)

	// Sessions
	CreateSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	TouchSession(ctx context.Context, id string, expiresAt time.Time) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
