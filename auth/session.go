package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ErrSessionNotFound is returned for unknown or expired session ids
var ErrSessionNotFound = errors.New("session not found")

// Flash categories
const (
	FlashSuccess = "success"
	FlashError   = "error"
)

// Flash is a one-shot message shown on the next rendered page
type Flash struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

// Session is the server-side state behind a session cookie
type Session struct {
	ID       string  `json:"id"`
	Username string  `json:"username,omitempty"`
	Flashes  []Flash `json:"flashes,omitempty"`
}

// NewSession returns an anonymous session with a random id
func NewSession() *Session {
	return &Session{ID: uuid.NewString()}
}

// Authenticated reports whether a user is logged in
func (s *Session) Authenticated() bool {
	return s.Username != ""
}

// AddFlash queues a message for the next rendered page
func (s *Session) AddFlash(category, message string) {
	s.Flashes = append(s.Flashes, Flash{Category: category, Message: message})
}

// PopFlashes returns and clears the pending flashes
func (s *Session) PopFlashes() []Flash {
	flashes := s.Flashes
	s.Flashes = nil
	return flashes
}

// SessionStore keeps sessions server side, keyed by session id
type SessionStore interface {
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
}

// --- Memory ---

type memoryEntry struct {
	session   Session
	expiresAt time.Time
}

// DefaultMaxMemorySessions bounds a MemoryStore unless WithMaxEntries says otherwise
const DefaultMaxMemorySessions = 10000

// MemoryStore is a process-local SessionStore. Expired entries are swept on
// Save, and once maxEntries is reached the entry closest to expiry is evicted,
// anonymous sessions first.
type MemoryStore struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	entries    map[string]memoryEntry
	lastSweep  time.Time
	now        func() time.Time
}

// NewMemoryStore creates a MemoryStore whose sessions live for ttl
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:        ttl,
		maxEntries: DefaultMaxMemorySessions,
		entries:    map[string]memoryEntry{},
		now:        time.Now,
	}
}

// WithMaxEntries sets how many sessions the store holds at most
func (m *MemoryStore) WithMaxEntries(n int) *MemoryStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxEntries = n
	return m
}

// Len returns the number of stored sessions, expired ones included until swept
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Get returns a copy of a live session
func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if m.now().After(e.expiresAt) {
		delete(m.entries, id)
		return nil, ErrSessionNotFound
	}
	s := e.session
	s.Flashes = append([]Flash(nil), e.session.Flashes...)
	return &s, nil
}

// Save stores a copy of s and restarts its ttl
func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if _, exists := m.entries[s.ID]; !exists {
		m.makeRoom(now)
	}

	cp := *s
	cp.Flashes = append([]Flash(nil), s.Flashes...)
	m.entries[s.ID] = memoryEntry{session: cp, expiresAt: now.Add(m.ttl)}
	return nil
}

// makeRoom sweeps expired entries at most once a minute, or right away when
// the store is full, then evicts until a new entry fits. Callers hold mu.
func (m *MemoryStore) makeRoom(now time.Time) {
	full := m.maxEntries > 0 && len(m.entries) >= m.maxEntries
	if full || now.Sub(m.lastSweep) >= time.Minute {
		for id, e := range m.entries {
			if now.After(e.expiresAt) {
				delete(m.entries, id)
			}
		}
		m.lastSweep = now
	}
	for m.maxEntries > 0 && len(m.entries) >= m.maxEntries {
		delete(m.entries, m.evictionCandidate())
	}
}

func (m *MemoryStore) evictionCandidate() string {
	var (
		victim     string
		victimExp  time.Time
		victimAnon bool
	)
	for id, e := range m.entries {
		anon := !e.session.Authenticated()
		better := victim == "" ||
			(anon && !victimAnon) ||
			(anon == victimAnon && e.expiresAt.Before(victimExp))
		if better {
			victim, victimExp, victimAnon = id, e.expiresAt, anon
		}
	}
	return victim
}

// Delete drops a session
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, id)
	return nil
}

// --- Redis ---

const sessionKeyPrefix = "session:" // String: session:{id} -> JSON session

// RedisStore keeps sessions as JSON strings with a TTL
type RedisStore struct {
	Client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a RedisStore whose sessions live for ttl
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{Client: client, ttl: ttl}
}

func getSessionKey(id string) string {
	return sessionKeyPrefix + id
}

// Get decodes the session stored under id
func (r *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	data, err := r.Client.Get(ctx, getSessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session from Redis: %w", err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", id, err)
	}
	return &s, nil
}

// Save encodes s and resets its ttl
func (r *RedisStore) Save(ctx context.Context, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", s.ID, err)
	}
	if err := r.Client.Set(ctx, getSessionKey(s.ID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session to Redis: %w", err)
	}
	return nil
}

// Delete removes the session key
func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if err := r.Client.Del(ctx, getSessionKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session from Redis: %w", err)
	}
	return nil
}
