package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/logger"
)

// ErrSessionNotFound is returned by stores for unknown or expired sessions
var ErrSessionNotFound = errors.New("session not found")

// Cookie is a persisted upstream cookie of the ranking service
type Cookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Session is the state of one operator's browser
type Session struct {
	ID        string    `json:"id"`
	User      *User     `json:"user,omitempty"`
	Operator  string    `json:"operator,omitempty"`
	Upstream  []Cookie  `json:"upstream,omitempty"`
	CSRF      string    `json:"csrf"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// UpstreamCookies converts the stored cookies for the gateway
func (s *Session) UpstreamCookies() []*http.Cookie {
	out := make([]*http.Cookie, 0, len(s.Upstream))
	for _, c := range s.Upstream {
		out = append(out, &http.Cookie{Name: c.Name, Value: c.Value})
	}
	return out
}

// SetUpstreamCookies replaces the stored upstream cookies
func (s *Session) SetUpstreamCookies(cookies []*http.Cookie) {
	s.Upstream = s.Upstream[:0]
	for _, c := range cookies {
		s.Upstream = append(s.Upstream, Cookie{Name: c.Name, Value: c.Value})
	}
}

// Expired reports whether the session is past its expiry
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// Store persists sessions
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
}

// sweepThreshold is the store size above which Save drops expired sessions
const sweepThreshold = 1000

// MemoryStore keeps sessions in process memory. Expired sessions are dropped
// on access, by Save once the store grows past sweepThreshold, and by Cleanup.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	if s.Expired(time.Now()) {
		m.mu.Lock()
		if cur, ok := m.sessions[id]; ok && cur == s {
			delete(m.sessions, id)
		}
		m.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	cp := *s
	cp.Upstream = append([]Cookie(nil), s.Upstream...)
	return &cp, nil
}

func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	cp := *s
	cp.Upstream = append([]Cookie(nil), s.Upstream...)
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sessions) >= sweepThreshold {
		m.sweepLocked(time.Now())
	}
	m.sessions[s.ID] = &cp
	return nil
}

// Sweep drops every session expired at now and returns how many it removed
func (m *MemoryStore) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sweepLocked(now)
}

func (m *MemoryStore) sweepLocked(now time.Time) int {
	n := 0
	for id, s := range m.sessions {
		if s.Expired(now) {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

// Cleanup sweeps expired sessions every interval until ctx is done
func (m *MemoryStore) Cleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := m.Sweep(now); n > 0 {
				logger.Debug("Expired sessions removed", "count", n)
			}
		}
	}
}

// Len is the number of stored sessions, expired ones included
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return nil
}

// RedisStore keeps sessions in Redis as JSON with a TTL
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to addr
func NewRedisStore(addr, password string) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		MaxRetries:   3,
		PoolSize:     20,
		MinIdleConns: 2,
		PoolTimeout:  30 * time.Second,
	})
	return &RedisStore{client: client, prefix: "ranking-ui:session:"}
}

// NewRedisStoreWithClient wraps an existing client
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "ranking-ui:session:"}
}

// Ping checks the connection
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the connection pool
func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	data, err := r.client.Get(ctx, r.prefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	if s.Expired(time.Now()) {
		return nil, ErrSessionNotFound
	}
	return &s, nil
}

func (r *RedisStore) Save(ctx context.Context, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	ttl := time.Until(s.ExpiresAt)
	if s.ExpiresAt.IsZero() || ttl <= 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, r.prefix+s.ID, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, r.prefix+id).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
