package sessions

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procdocs/sopgen/pkg/schema"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(t *testing.T) (*Manager, *time.Time) {
	t.Helper()
	m := NewManager(nil, 10*time.Minute, testLogger())
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	return m, &now
}

func TestCreateAndGet(t *testing.T) {
	m, _ := newTestManager(t)

	p, err := m.Create(context.Background(), []byte("<definitions/>"), schema.Metadata{ProcessName: "Billing"})
	require.NoError(t, err)
	require.NotEmpty(t, p.ID)

	got, err := m.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Billing", got.Meta.ProcessName)
	assert.Equal(t, []byte("<definitions/>"), got.XML)
}

func TestGet_Unknown(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.Get(context.Background(), "nope")
	require.Error(t, err)
	sopErr, isSOP := err.(*schema.SOPError)
	require.True(t, isSOP)
	assert.Equal(t, schema.ErrCodeNotFound, sopErr.Code)
}

func TestGet_Expired(t *testing.T) {
	m, now := newTestManager(t)

	p, err := m.Create(context.Background(), nil, schema.Metadata{})
	require.NoError(t, err)

	*now = now.Add(11 * time.Minute)

	_, err = m.Get(context.Background(), p.ID)
	require.Error(t, err)
	sopErr, isSOP := err.(*schema.SOPError)
	require.True(t, isSOP)
	assert.Equal(t, schema.ErrCodeSessionExpired, sopErr.Code)

	// Expired sessions are evicted: a second lookup is NOT_FOUND.
	_, err = m.Get(context.Background(), p.ID)
	sopErr = err.(*schema.SOPError)
	assert.Equal(t, schema.ErrCodeNotFound, sopErr.Code)
}

func TestGet_SlidesExpiry(t *testing.T) {
	m, now := newTestManager(t)

	p, err := m.Create(context.Background(), nil, schema.Metadata{})
	require.NoError(t, err)

	// Keep touching just before expiry; the session stays alive well past
	// the original deadline.
	for i := 0; i < 3; i++ {
		*now = now.Add(9 * time.Minute)
		_, err = m.Get(context.Background(), p.ID)
		require.NoError(t, err)
	}
}

func TestUpdate(t *testing.T) {
	m, _ := newTestManager(t)

	p, err := m.Create(context.Background(), nil, schema.Metadata{ProcessName: "Old"})
	require.NoError(t, err)

	_, err = m.Update(context.Background(), p.ID, schema.Metadata{ProcessName: "New"})
	require.NoError(t, err)

	got, err := m.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, "New", got.Meta.ProcessName)
}

func TestGet_ReturnsSnapshot(t *testing.T) {
	m, _ := newTestManager(t)

	p, err := m.Create(context.Background(), []byte("<definitions/>"), schema.Metadata{ProcessName: "Billing"})
	require.NoError(t, err)

	// Mutating a returned session must not leak into the stored entry.
	got, err := m.Get(context.Background(), p.ID)
	require.NoError(t, err)
	got.Meta.ProcessName = "Scribbled"

	again, err := m.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Billing", again.Meta.ProcessName)
}

func TestConcurrentAccess(t *testing.T) {
	m := NewManager(nil, 10*time.Minute, testLogger())

	p, err := m.Create(context.Background(), []byte("<definitions/>"), schema.Metadata{ProcessName: "Billing"})
	require.NoError(t, err)

	// Readers JSON-encode their session while a writer keeps replacing the
	// metadata. Every read observes a consistent snapshot.
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				got, err := m.Get(context.Background(), p.ID)
				if !assert.NoError(t, err) {
					return
				}
				if _, err := json.Marshal(got); !assert.NoError(t, err) {
					return
				}
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 200; j++ {
			_, err := m.Update(context.Background(), p.ID, schema.Metadata{ProcessName: "Billing"})
			if !assert.NoError(t, err) {
				return
			}
		}
	}()
	wg.Wait()
}

func TestDelete(t *testing.T) {
	m, _ := newTestManager(t)

	p, err := m.Create(context.Background(), nil, schema.Metadata{})
	require.NoError(t, err)

	m.Delete(p.ID)
	m.Delete("unknown") // no-op

	_, err = m.Get(context.Background(), p.ID)
	require.Error(t, err)
}

func TestSweep(t *testing.T) {
	m, now := newTestManager(t)

	_, err := m.Create(context.Background(), nil, schema.Metadata{})
	require.NoError(t, err)

	*now = now.Add(5 * time.Minute)
	fresh, err := m.Create(context.Background(), nil, schema.Metadata{})
	require.NoError(t, err)

	*now = now.Add(6 * time.Minute) // first expired, second still live

	assert.Equal(t, 1, m.Sweep())
	assert.Equal(t, 1, m.Len())

	_, err = m.Get(context.Background(), fresh.ID)
	require.NoError(t, err)
}
