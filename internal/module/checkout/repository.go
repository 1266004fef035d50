package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "checkout:session:"
	orderKeyPrefix   = "checkout:order:"
)

// SessionRepository stores checkout sessions. Sessions expire; an expired
// or unknown id yields ErrSessionNotFound.
type SessionRepository interface {
	Save(ctx context.Context, sess *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	// GetByProviderOrder resolves the session that created a provider
	// order, for redirect callbacks that only carry the order token.
	GetByProviderOrder(ctx context.Context, providerOrderID string) (*Session, error)
	Delete(ctx context.Context, id string) error
}

// RedisSessionRepository keeps sessions in Redis with a TTL.
type RedisSessionRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSessionRepository creates a Redis-backed session repository.
func NewRedisSessionRepository(client *redis.Client, ttl time.Duration) *RedisSessionRepository {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &RedisSessionRepository{client: client, ttl: ttl}
}

func (r *RedisSessionRepository) Save(ctx context.Context, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, sessionKeyPrefix+sess.ID, data, r.ttl)
	if sess.ProviderOrderID != "" {
		pipe.Set(ctx, orderKeyPrefix+sess.ProviderOrderID, sess.ID, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (r *RedisSessionRepository) Get(ctx context.Context, id string) (*Session, error) {
	data, err := r.client.Get(ctx, sessionKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &sess, nil
}

func (r *RedisSessionRepository) GetByProviderOrder(ctx context.Context, providerOrderID string) (*Session, error) {
	id, err := r.client.Get(ctx, orderKeyPrefix+providerOrderID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolve session by order: %w", err)
	}
	return r.Get(ctx, id)
}

func (r *RedisSessionRepository) Delete(ctx context.Context, id string) error {
	sess, err := r.Get(ctx, id)
	if errors.Is(err, ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	keys := []string{sessionKeyPrefix + id}
	if sess.ProviderOrderID != "" {
		keys = append(keys, orderKeyPrefix+sess.ProviderOrderID)
	}
	return r.client.Del(ctx, keys...).Err()
}

// MemorySessionRepository is an in-process repository for tests.
type MemorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	byOrder  map[string]string
}

func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{
		sessions: make(map[string]*Session),
		byOrder:  make(map[string]string),
	}
}

func (r *MemorySessionRepository) Save(_ context.Context, sess *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	clone := *sess
	r.sessions[sess.ID] = &clone
	if sess.ProviderOrderID != "" {
		r.byOrder[sess.ProviderOrderID] = sess.ID
	}
	return nil
}

func (r *MemorySessionRepository) Get(_ context.Context, id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	clone := *sess
	return &clone, nil
}

func (r *MemorySessionRepository) GetByProviderOrder(ctx context.Context, providerOrderID string) (*Session, error) {
	r.mu.RLock()
	id, ok := r.byOrder[providerOrderID]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return r.Get(ctx, id)
}

func (r *MemorySessionRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sess, ok := r.sessions[id]; ok && sess.ProviderOrderID != "" {
		delete(r.byOrder, sess.ProviderOrderID)
	}
	delete(r.sessions, id)
	return nil
}
