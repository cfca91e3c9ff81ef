package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/procdocs/sopgen/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-20000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage (e.g. revision log).
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Archives ---

func (s *LibSQLStore) SaveArchive(ctx context.Context, a *Archive) error {
	if len(a.Context) == 0 {
		return fmt.Errorf("archive %q has no context", a.ID)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO archives (id, process_name, process_code, source_xml, context, step_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   process_name=excluded.process_name, process_code=excluded.process_code,
		   source_xml=excluded.source_xml, context=excluded.context,
		   step_count=excluded.step_count, updated_at=CURRENT_TIMESTAMP`,
		a.ID, a.ProcessName, nullStr(a.ProcessCode), a.SourceXML,
		string(a.Context), a.StepCount, timeOrNow(a.CreatedAt), timeOrNow(a.UpdatedAt),
	)
	return err
}

func (s *LibSQLStore) GetArchive(ctx context.Context, id string) (*Archive, error) {
	a := &Archive{}
	var processCode sql.NullString
	var contextJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, process_name, process_code, source_xml, context, step_count, created_at, updated_at
		 FROM archives WHERE id = ?`, id,
	).Scan(&a.ID, &a.ProcessName, &processCode, &a.SourceXML, &contextJSON, &a.StepCount, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("archive", id)
	}
	if err != nil {
		return nil, err
	}
	a.ProcessCode = processCode.String
	a.Context = json.RawMessage(contextJSON)
	return a, nil
}

func (s *LibSQLStore) ListArchives(ctx context.Context, filter ArchiveFilter) ([]*Archive, error) {
	var where []string
	var args []any

	if filter.ProcessName != "" {
		where = append(where, "process_name = ?")
		args = append(args, filter.ProcessName)
	}
	if filter.ProcessCode != "" {
		where = append(where, "process_code = ?")
		args = append(args, filter.ProcessCode)
	}
	if filter.Since != nil {
		where = append(where, "created_at >= ?")
		args = append(args, *filter.Since)
	}

	query := `SELECT id, process_name, process_code, source_xml, context, step_count, created_at, updated_at FROM archives`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var archives []*Archive
	for rows.Next() {
		a := &Archive{}
		var processCode sql.NullString
		var contextJSON string
		if err := rows.Scan(&a.ID, &a.ProcessName, &processCode, &a.SourceXML, &contextJSON, &a.StepCount, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		a.ProcessCode = processCode.String
		a.Context = json.RawMessage(contextJSON)
		archives = append(archives, a)
	}
	return archives, rows.Err()
}

func (s *LibSQLStore) DeleteArchive(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM archives WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "archive", id)
}

// --- Revisions ---

func (s *LibSQLStore) GetRevisions(ctx context.Context, archiveID string, since int64) ([]*Revision, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, archive_id, revision, context, note, session_id, created_at
		 FROM revisions WHERE archive_id = ? AND revision > ? ORDER BY revision ASC`,
		archiveID, since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var revisions []*Revision
	for rows.Next() {
		r := &Revision{}
		var contextJSON string
		var note, sessionID sql.NullString
		if err := rows.Scan(&r.ID, &r.ArchiveID, &r.Revision, &contextJSON, &note, &sessionID, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Context = json.RawMessage(contextJSON)
		r.Note = note.String
		r.SessionID = sessionID.String
		revisions = append(revisions, r)
	}
	return revisions, rows.Err()
}

// --- Sessions ---

func (s *LibSQLStore) CreateSession(ctx context.Context, sess *Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, created_at, last_seen_at, expires_at) VALUES (?, ?, ?, ?)`,
		sess.ID, timeOrNow(sess.CreatedAt), timeOrNow(sess.LastSeenAt), sess.ExpiresAt,
	)
	return err
}

func (s *LibSQLStore) GetSession(ctx context.Context, id string) (*Session, error) {
	sess := &Session{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, created_at, last_seen_at, expires_at FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.CreatedAt, &sess.LastSeenAt, &sess.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("session", id)
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *LibSQLStore) TouchSession(ctx context.Context, id string, expiresAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET last_seen_at = CURRENT_TIMESTAMP, expires_at = ? WHERE id = ?`,
		expiresAt, id,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "session", id)
}

func (s *LibSQLStore) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < ?`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.SOPError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
