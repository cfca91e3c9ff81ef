package sessions

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/procdocs/sopgen/internal/store"
	"github.com/procdocs/sopgen/pkg/schema"
)

// DefaultTTL is how long an idle preview session stays usable.
const DefaultTTL = 30 * time.Minute

// Preview is one uploaded diagram held for interactive metadata editing
// before generation. The XML payload lives in memory only; the session id
// is persisted so sweeps survive restarts.
type Preview struct {
	ID        string          `json:"id"`
	XML       []byte          `json:"-"`
	Meta      schema.Metadata `json:"metadata"`
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// Manager owns preview sessions: opaque uuid keys, explicit expiry,
// sliding extension on access. Safe for concurrent use; accessors return
// snapshot copies, never the stored entry.
type Manager struct {
	mu       sync.RWMutex
	previews map[string]*Preview

	store  store.Store // nil disables id persistence
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewManager creates a Manager. st may be nil; ttl <= 0 uses DefaultTTL.
func NewManager(st store.Store, ttl time.Duration, logger *slog.Logger) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		previews: make(map[string]*Preview),
		store:    st,
		ttl:      ttl,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create registers a new preview session for an uploaded diagram.
func (m *Manager) Create(ctx context.Context, xml []byte, meta schema.Metadata) (*Preview, error) {
	now := m.now()
	p := &Preview{
		ID:        uuid.New().String(),
		XML:       xml,
		Meta:      meta,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}

	if m.store != nil {
		err := m.store.CreateSession(ctx, &store.Session{
			ID:         p.ID,
			CreatedAt:  now,
			LastSeenAt: now,
			ExpiresAt:  p.ExpiresAt,
		})
		if err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	m.previews[p.ID] = p
	snap := *p
	m.mu.Unlock()

	m.logger.Debug("preview session created", slog.String("session_id", p.ID))
	return &snap, nil
}

// Get returns a live session and slides its expiry forward. Expired
// sessions are evicted and reported as SESSION_EXPIRED; unknown ids are
// NOT_FOUND.
func (m *Manager) Get(ctx context.Context, id string) (*Preview, error) {
	now := m.now()

	m.mu.Lock()
	p, err := m.liveLocked(id, now)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	p.ExpiresAt = now.Add(m.ttl)
	snap := *p
	m.mu.Unlock()

	m.touchStore(ctx, id, snap.ExpiresAt)
	return &snap, nil
}

// Update replaces the metadata held by a live session and slides its
// expiry like Get does.
func (m *Manager) Update(ctx context.Context, id string, meta schema.Metadata) (*Preview, error) {
	now := m.now()

	m.mu.Lock()
	p, err := m.liveLocked(id, now)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	p.ExpiresAt = now.Add(m.ttl)
	p.Meta = meta
	snap := *p
	m.mu.Unlock()

	m.touchStore(ctx, id, snap.ExpiresAt)
	return &snap, nil
}

// liveLocked returns the stored session if it is still live, evicting it
// when expired. Callers hold m.mu.
func (m *Manager) liveLocked(id string, now time.Time) (*Preview, error) {
	p, ok := m.previews[id]
	if ok && now.After(p.ExpiresAt) {
		delete(m.previews, id)
		return nil, schema.NewErrorf(schema.ErrCodeSessionExpired,
			"preview session %s has expired", id).WithRef(id)
	}
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound,
			"preview session %s not found", id).WithRef(id)
	}
	return p, nil
}

func (m *Manager) touchStore(ctx context.Context, id string, expiresAt time.Time) {
	if m.store == nil {
		return
	}
	if err := m.store.TouchSession(ctx, id, expiresAt); err != nil {
		m.logger.Warn("failed to touch session",
			slog.String("session_id", id), slog.String("error", err.Error()))
	}
}

// Delete drops a session. Unknown ids are a no-op.
func (m *Manager) Delete(id string) {
	m.mu.Lock()
	delete(m.previews, id)
	m.mu.Unlock()
}

// Sweep evicts expired sessions from memory and returns how many were
// removed. Persisted ids are purged separately by the store sweep.
func (m *Manager) Sweep() int {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, p := range m.previews {
		if now.After(p.ExpiresAt) {
			delete(m.previews, id)
			removed++
		}
	}
	if removed > 0 {
		m.logger.Info("swept expired preview sessions", slog.Int("count", removed))
	}
	return removed
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.previews)
}
