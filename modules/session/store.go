package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
)

// MemoryStore keeps credentials for the lifetime of the process.
type MemoryStore struct {
	mu    sync.Mutex
	token *oauth2.Token
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load(context.Context) (*oauth2.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token == nil {
		return nil, ErrNoCredentials
	}
	tok := *m.token
	return &tok, nil
}

func (m *MemoryStore) Save(_ context.Context, token *oauth2.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tok := *token
	m.token = &tok
	return nil
}

func (m *MemoryStore) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.token = nil
	return nil
}

// DefaultRedisKey is used when NewRedisStore gets an empty key.
const DefaultRedisKey = "articleapi:session"

// RedisStore keeps the credential pair in a Redis hash with fields
// access, refresh and exp (unix seconds, 0 when unknown).
type RedisStore struct {
	rdb *redis.Client
	key string
}

// NewRedisStore connects using a URL such as redis://:pass@host:6379/0 and
// pings the server once.
func NewRedisStore(ctx context.Context, redisURL, key string) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("session: parse redis url: %w", err)
	}

	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("session: redis ping: %w", err)
	}

	return NewRedisStoreFromClient(rdb, key), nil
}

func NewRedisStoreFromClient(rdb *redis.Client, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{rdb: rdb, key: key}
}

func (r *RedisStore) Load(ctx context.Context) (*oauth2.Token, error) {
	m, err := r.rdb.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, err
	}
	if len(m) == 0 || m["access"] == "" {
		return nil, ErrNoCredentials
	}

	tok := &oauth2.Token{
		AccessToken:  m["access"],
		RefreshToken: m["refresh"],
		TokenType:    "Bearer",
	}
	if v := m["exp"]; v != "" && v != "0" {
		exp, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("session: bad exp %q: %w", v, err)
		}
		tok.Expiry = time.Unix(exp, 0).UTC()
	}
	return tok, nil
}

func (r *RedisStore) Save(ctx context.Context, token *oauth2.Token) error {
	var exp int64
	if !token.Expiry.IsZero() {
		exp = token.Expiry.Unix()
	}

	kv := map[string]string{
		"access":  token.AccessToken,
		"refresh": token.RefreshToken,
		"exp":     strconv.FormatInt(exp, 10),
	}
	return r.rdb.HSet(ctx, r.key, kv).Err()
}

func (r *RedisStore) Clear(ctx context.Context) error {
	err := r.rdb.Del(ctx, r.key).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

func (r *RedisStore) Close() error { return r.rdb.Close() }
