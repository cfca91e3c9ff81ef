package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procdocs/sopgen/pkg/schema"
)

func newTestStore(t *testing.T) *LibSQLStore {
	t.Helper()
	dbPath := "file:" + filepath.Join(t.TempDir(), "test.db")
	s, err := NewLibSQLStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testArchive(id, name string) *Archive {
	return &Archive{
		ID:          id,
		ProcessName: name,
		ProcessCode: "SOP-001",
		SourceXML:   []byte("<bpmn:definitions/>"),
		Context:     json.RawMessage(`{"process_name":"` + name + `","steps":[]}`),
		StepCount:   0,
	}
}

// --- Archives ---

func TestSaveAndGetArchive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := testArchive("arc-1", "Invoice Handling")
	a.StepCount = 7
	require.NoError(t, s.SaveArchive(ctx, a))

	got, err := s.GetArchive(ctx, "arc-1")
	require.NoError(t, err)
	assert.Equal(t, "Invoice Handling", got.ProcessName)
	assert.Equal(t, "SOP-001", got.ProcessCode)
	assert.Equal(t, 7, got.StepCount)
	assert.JSONEq(t, string(a.Context), string(got.Context))
	assert.False(t, got.CreatedAt.IsZero())
}

func TestSaveArchive_UpsertReplacesContext(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveArchive(ctx, testArchive("arc-1", "Old Name")))

	updated := testArchive("arc-1", "New Name")
	updated.Context = json.RawMessage(`{"process_name":"New Name","steps":[{"ref":"1"}]}`)
	updated.StepCount = 1
	require.NoError(t, s.SaveArchive(ctx, updated))

	got, err := s.GetArchive(ctx, "arc-1")
	require.NoError(t, err)
	assert.Equal(t, "New Name", got.ProcessName)
	assert.Equal(t, 1, got.StepCount)
}

func TestSaveArchive_EmptyContextRejected(t *testing.T) {
	s := newTestStore(t)
	a := testArchive("arc-1", "X")
	a.Context = nil
	require.Error(t, s.SaveArchive(context.Background(), a))
}

func TestGetArchive_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetArchive(context.Background(), "missing")
	require.Error(t, err)

	sopErr, ok := err.(*schema.SOPError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeNotFound, sopErr.Code)
}

func TestListArchives_FilterAndOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	older := testArchive("arc-1", "Claims")
	older.CreatedAt = time.Now().UTC().Add(-2 * time.Hour)
	newer := testArchive("arc-2", "Claims")
	newer.CreatedAt = time.Now().UTC().Add(-1 * time.Hour)
	other := testArchive("arc-3", "Procurement")
	require.NoError(t, s.SaveArchive(ctx, older))
	require.NoError(t, s.SaveArchive(ctx, newer))
	require.NoError(t, s.SaveArchive(ctx, other))

	claims, err := s.ListArchives(ctx, ArchiveFilter{ProcessName: "Claims"})
	require.NoError(t, err)
	require.Len(t, claims, 2)
	assert.Equal(t, "arc-2", claims[0].ID)
	assert.Equal(t, "arc-1", claims[1].ID)

	limited, err := s.ListArchives(ctx, ArchiveFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	since := time.Now().UTC().Add(-90 * time.Minute)
	recent, err := s.ListArchives(ctx, ArchiveFilter{ProcessName: "Claims", Since: &since})
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "arc-2", recent[0].ID)
}

func TestDeleteArchive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveArchive(ctx, testArchive("arc-1", "X")))
	require.NoError(t, s.DeleteArchive(ctx, "arc-1"))

	_, err := s.GetArchive(ctx, "arc-1")
	require.Error(t, err)

	err = s.DeleteArchive(ctx, "arc-1")
	require.Error(t, err)
	sopErr, ok := err.(*schema.SOPError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeNotFound, sopErr.Code)
}

// --- Sessions ---

func TestSessionLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	expires := time.Now().UTC().Add(time.Hour)
	require.NoError(t, s.CreateSession(ctx, &Session{ID: "sess-1", ExpiresAt: expires}))

	got, err := s.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", got.ID)
	assert.False(t, got.LastSeenAt.IsZero())

	later := time.Now().UTC().Add(2 * time.Hour)
	require.NoError(t, s.TouchSession(ctx, "sess-1", later))

	err = s.TouchSession(ctx, "missing", later)
	require.Error(t, err)
}

func TestDeleteExpiredSessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, s.CreateSession(ctx, &Session{ID: "dead", ExpiresAt: now.Add(-time.Minute)}))
	require.NoError(t, s.CreateSession(ctx, &Session{ID: "live", ExpiresAt: now.Add(time.Hour)}))

	n, err := s.DeleteExpiredSessions(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.GetSession(ctx, "dead")
	require.Error(t, err)
	_, err = s.GetSession(ctx, "live")
	require.NoError(t, err)
}

func TestMigrateIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.Vacuum(context.Background()))
}
