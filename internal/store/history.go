package store

import (
	"context"
	"fmt"
	"time"

	"github.com/procdocs/sopgen/pkg/schema"
)

// RevisionLog provides append-only history operations on top of a LibSQLStore.
type RevisionLog struct {
	store *LibSQLStore
}

// NewRevisionLog wraps a LibSQLStore to provide revision history operations.
func NewRevisionLog(s *LibSQLStore) *RevisionLog {
	return &RevisionLog{store: s}
}

// Append records a revision with a monotonically increasing per-archive
// number. A write-intent statement forces immediate lock acquisition so
// concurrent writers cannot interleave number reads and inserts.
func (rl *RevisionLog) Append(ctx context.Context, rev *Revision) error {
	db := rl.store.DB()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin immediate tx: %w", err)
	}
	defer tx.Rollback()

	// In WAL mode, BeginTx alone may start a deferred transaction.
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO schema_version (version, name) VALUES (-1, '_lock_noop')`); err != nil {
		return fmt.Errorf("acquire write lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM schema_version WHERE version = -1`); err != nil {
		return fmt.Errorf("cleanup write lock: %w", err)
	}

	var next int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(revision), 0) + 1 FROM revisions WHERE archive_id = ?`, rev.ArchiveID,
	).Scan(&next)
	if err != nil {
		return fmt.Errorf("get next revision: %w", err)
	}
	rev.Revision = next

	if rev.CreatedAt.IsZero() {
		rev.CreatedAt = time.Now().UTC()
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO revisions (archive_id, revision, context, note, session_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rev.ArchiveID, next, string(rev.Context), nullStr(rev.Note), nullStr(rev.SessionID), rev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert revision: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit revision: %w", err)
	}
	return nil
}

// History returns an archive's revisions after verifying number contiguity.
func (rl *RevisionLog) History(ctx context.Context, archiveID string) ([]*Revision, error) {
	revisions, err := rl.store.GetRevisions(ctx, archiveID, 0)
	if err != nil {
		return nil, fmt.Errorf("get revisions: %w", err)
	}
	for i, r := range revisions {
		expected := int64(i + 1)
		if r.Revision != expected {
			return nil, schema.NewErrorf(schema.ErrCodeStore,
				"revision gap in archive %s: expected %d, got %d", archiveID, expected, r.Revision)
		}
	}
	return revisions, nil
}

// Latest returns the newest revision of an archive, or NOT_FOUND when the
// archive has no history yet.
func (rl *RevisionLog) Latest(ctx context.Context, archiveID string) (*Revision, error) {
	revisions, err := rl.store.GetRevisions(ctx, archiveID, 0)
	if err != nil {
		return nil, err
	}
	if len(revisions) == 0 {
		return nil, storeNotFound("revision history", archiveID)
	}
	return revisions[len(revisions)-1], nil
}
