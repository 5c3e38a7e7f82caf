package code

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// MemoryStore keeps codes in process memory.
type MemoryStore struct {
	mu       sync.Mutex
	reserved map[string]time.Time
	current  map[string]Code
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		reserved: make(map[string]time.Time),
		current:  make(map[string]Code),
	}
}

// Reserve uses c.IssuedAt as the clock, so expired reservations are pruned
// relative to the issuing request rather than the wall clock.
func (m *MemoryStore) Reserve(ctx context.Context, c Code) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for v, exp := range m.reserved {
		if !c.IssuedAt.Before(exp) {
			delete(m.reserved, v)
		}
	}
	if _, taken := m.reserved[c.Value]; taken {
		return false, nil
	}
	m.reserved[c.Value] = c.ExpiresAt
	return true, nil
}

func (m *MemoryStore) SetCurrent(ctx context.Context, c Code) error {
	m.mu.Lock()
	m.current[c.SessionID] = c
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Current(ctx context.Context, sessionID string) (Code, error) {
	m.mu.Lock()
	c, ok := m.current[sessionID]
	m.mu.Unlock()
	if !ok {
		return Code{}, ErrNoCode
	}
	return c, nil
}

// reservationSlack keeps a value reserved briefly past its expiry to cover
// clock drift between app instances.
const reservationSlack = time.Minute

// pointerRetention keeps an expired pointer around so late submissions are
// reported as expired instead of mismatched.
const pointerRetention = 24 * time.Hour

// RedisStore shares codes between app instances. Reservations are SET NX
// keys with a TTL; the current pointer is a single key per session, so a
// reissue replaces it with one SET.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "edutrack:code"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) Reserve(ctx context.Context, c Code) (bool, error) {
	return r.client.SetNX(ctx, r.prefix+":reserved:"+c.Value, c.SessionID, lifetime(c)+reservationSlack).Result()
}

func (r *RedisStore) SetCurrent(ctx context.Context, c Code) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.currentKey(c.SessionID), payload, lifetime(c)+pointerRetention).Err()
}

func (r *RedisStore) Current(ctx context.Context, sessionID string) (Code, error) {
	raw, err := r.client.Get(ctx, r.currentKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Code{}, ErrNoCode
	}
	if err != nil {
		return Code{}, err
	}
	var c Code
	if err := json.Unmarshal(raw, &c); err != nil {
		return Code{}, fmt.Errorf("decode current code: %w", err)
	}
	return c, nil
}

// releaseLock deletes the lock only while it still carries our token, so an
// expired lock taken over by another instance is left alone.
var releaseLock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// TryLock takes the per-session issuing lock with SET NX.
func (r *RedisStore) TryLock(ctx context.Context, sessionID string, ttl time.Duration) (func(), bool, error) {
	key := r.prefix + ":issuing:" + sessionID
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil || !ok {
		return func() {}, false, err
	}
	return func() {
		// the request context may already be done by the time we release
		_ = releaseLock.Run(context.Background(), r.client, []string{key}, token).Err()
	}, true, nil
}

func (r *RedisStore) currentKey(sessionID string) string {
	return r.prefix + ":current:" + sessionID
}

func lifetime(c Code) time.Duration {
	d := c.ExpiresAt.Sub(c.IssuedAt)
	if d < time.Second {
		d = time.Second
	}
	return d
}
