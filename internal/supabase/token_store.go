package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenStore はブラウザセッションごとの認証トークンを永続化する。
type TokenStore interface {
	// Load は保存済みのセッションを返す。存在しない場合はnilを返す。
	Load(ctx context.Context, key string) (*Session, error)
	// Save はセッションをttlの間保存する。
	Save(ctx context.Context, key string, session *Session, ttl time.Duration) error
	// Delete は保存済みのセッションを削除する。
	Delete(ctx context.Context, key string) error
}

// MemoryTokenStore はプロセス内メモリにトークンを保持するTokenStore。
// Redisを設定しない単一インスタンス構成で使用する。
type MemoryTokenStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	session   Session
	expiresAt time.Time
}

// NewMemoryTokenStore はMemoryTokenStoreを生成する。
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (s *MemoryTokenStore) Load(_ context.Context, key string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	if !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt) {
		delete(s.entries, key)
		return nil, nil
	}
	session := e.session
	return &session, nil
}

func (s *MemoryTokenStore) Save(_ context.Context, key string, session *Session, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := memoryEntry{session: *session}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.entries[key] = e
	return nil
}

func (s *MemoryTokenStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// RedisTokenStore はRedisにトークンを保存するTokenStore。
// 複数インスタンス構成でもブラウザセッションを引き継げる。
type RedisTokenStore struct {
	client    redis.Cmdable
	keyPrefix string
}

// NewRedisTokenStore はRedisTokenStoreを生成する。
// keyPrefixが空の場合は"churchconnect:auth:"を使用する。
func NewRedisTokenStore(client redis.Cmdable, keyPrefix string) *RedisTokenStore {
	if keyPrefix == "" {
		keyPrefix = "churchconnect:auth:"
	}
	return &RedisTokenStore{client: client, keyPrefix: keyPrefix}
}

// NewRedisClient はREDIS_URL形式の接続文字列からクライアントを生成し、疎通を確認する。
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func (s *RedisTokenStore) Load(ctx context.Context, key string) (*Session, error) {
	data, err := s.client.Get(ctx, s.keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session from redis: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to decode stored session: %w", err)
	}
	return &session, nil
}

func (s *RedisTokenStore) Save(ctx context.Context, key string, session *Session, ttl time.Duration) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := s.client.Set(ctx, s.keyPrefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session to redis: %w", err)
	}
	return nil
}

func (s *RedisTokenStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete session from redis: %w", err)
	}
	return nil
}

var (
	_ TokenStore = (*MemoryTokenStore)(nil)
	_ TokenStore = (*RedisTokenStore)(nil)
)
