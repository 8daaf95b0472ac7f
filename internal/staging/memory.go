package staging

import (
	"context"
	"errors"
	"sync"

	"github.com/JonMunkholm/profitrecon/internal/core"
	"github.com/google/uuid"
)

type scopeKey struct {
	tenant string
	kind   core.Kind
}

type memoryEntry struct {
	session *Session
	claimed bool
}

// MemoryStore keeps sessions in process. It is the default backend for a
// single instance.
type MemoryStore struct {
	opts Options

	mu       sync.Mutex
	sessions map[string]*memoryEntry
	current  map[scopeKey]string
}

// NewMemoryStore creates an in-process store.
func NewMemoryStore(opts Options) *MemoryStore {
	return &MemoryStore{
		opts:     opts.withDefaults(),
		sessions: make(map[string]*memoryEntry),
		current:  make(map[scopeKey]string),
	}
}

func (m *MemoryStore) Stage(ctx context.Context, tenant string, kind core.Kind, fileName string, rows []core.RowOutcome) (*Session, error) {
	if tenant == "" {
		return nil, core.ErrTenantRequired
	}
	now := m.opts.Now()
	s := &Session{
		Token:     uuid.NewString(),
		TenantID:  tenant,
		Kind:      kind,
		FileName:  fileName,
		Rows:      rows,
		CreatedAt: now,
		ExpiresAt: now.Add(m.opts.TTL),
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := scopeKey{tenant, kind}
	if old, ok := m.current[key]; ok {
		delete(m.sessions, old)
	}
	m.sessions[s.Token] = &memoryEntry{session: s}
	m.current[key] = s.Token
	return s, nil
}

func (m *MemoryStore) Fetch(ctx context.Context, tenant, token string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.lookup(tenant, token)
	if err != nil {
		return nil, err
	}
	return e.session, nil
}

func (m *MemoryStore) Claim(ctx context.Context, tenant, token string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.lookup(tenant, token)
	if err != nil {
		return nil, err
	}
	if e.claimed {
		return nil, core.ErrSessionNotFound
	}
	e.claimed = true
	return e.session, nil
}

func (m *MemoryStore) Release(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.sessions[token]; ok {
		e.claimed = false
	}
	return nil
}

func (m *MemoryStore) Complete(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.remove(token)
	return nil
}

func (m *MemoryStore) Discard(ctx context.Context, tenant, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.lookup(tenant, token); err != nil && !errors.Is(err, core.ErrSessionExpired) {
		return err
	}
	m.remove(token)
	return nil
}

// Sweep drops sessions whose grace period has passed and returns how many
// were removed.
func (m *MemoryStore) Sweep(ctx context.Context) (int, error) {
	cutoff := m.opts.Now().Add(-m.opts.Grace)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for token, e := range m.sessions {
		if e.session.ExpiresAt.Before(cutoff) {
			m.remove(token)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of sessions held, expired ones included.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// lookup must be called with mu held.
func (m *MemoryStore) lookup(tenant, token string) (*memoryEntry, error) {
	e, ok := m.sessions[token]
	if !ok || e.session.TenantID != tenant {
		return nil, core.ErrSessionNotFound
	}
	if e.session.Expired(m.opts.Now()) {
		return nil, core.ErrSessionExpired
	}
	return e, nil
}

// remove must be called with mu held.
func (m *MemoryStore) remove(token string) {
	e, ok := m.sessions[token]
	if !ok {
		return
	}
	delete(m.sessions, token)
	key := scopeKey{e.session.TenantID, e.session.Kind}
	if m.current[key] == token {
		delete(m.current, key)
	}
}
