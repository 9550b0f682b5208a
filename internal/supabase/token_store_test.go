package supabase

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestMemoryTokenStore_SaveLoadDelete(t *testing.T) {
	store := NewMemoryTokenStore()
	ctx := context.Background()

	if s, err := store.Load(ctx, "missing"); err != nil || s != nil {
		t.Fatalf("Load(未保存) = %v, %v, want nil, nil", s, err)
	}

	session := &Session{AccessToken: "a", RefreshToken: "r", User: AuthUser{ID: "user-1"}}
	if err := store.Save(ctx, "sid", session, time.Hour); err != nil {
		t.Fatalf("Save がエラーを返した: %v", err)
	}

	// 保存後に元の値を変更しても影響しない
	session.AccessToken = "changed"

	loaded, err := store.Load(ctx, "sid")
	if err != nil || loaded == nil {
		t.Fatalf("Load = %v, %v", loaded, err)
	}
	if loaded.AccessToken != "a" || loaded.User.ID != "user-1" {
		t.Errorf("読み込んだセッションが不正: %+v", loaded)
	}

	if err := store.Delete(ctx, "sid"); err != nil {
		t.Fatalf("Delete がエラーを返した: %v", err)
	}
	if s, _ := store.Load(ctx, "sid"); s != nil {
		t.Errorf("削除後も読み込めた: %+v", s)
	}
}

func TestMemoryTokenStore_ExpiresAfterTTL(t *testing.T) {
	store := NewMemoryTokenStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	store.Save(ctx, "sid", &Session{AccessToken: "a"}, time.Minute)

	now = now.Add(59 * time.Second)
	if s, _ := store.Load(ctx, "sid"); s == nil {
		t.Fatal("TTL内のセッションが読み込めない")
	}

	now = now.Add(2 * time.Second)
	if s, _ := store.Load(ctx, "sid"); s != nil {
		t.Errorf("TTL経過後も読み込めた: %+v", s)
	}
}

// TestRedisTokenStore_Integration はTEST_REDIS_URLが設定されている場合のみ実行する。
func TestRedisTokenStore_Integration(t *testing.T) {
	redisURL := os.Getenv("TEST_REDIS_URL")
	if redisURL == "" {
		t.Skip("TEST_REDIS_URL が未設定のためスキップ")
	}

	ctx := context.Background()
	client, err := NewRedisClient(ctx, redisURL)
	if err != nil {
		t.Skipf("Redisに接続できません（スキップ）: %v", err)
	}
	defer client.Close()

	store := NewRedisTokenStore(client, "churchconnect:test:")
	key := uuid.NewString()

	session := &Session{
		AccessToken:  "a",
		RefreshToken: "r",
		ExpiresAt:    time.Now().Add(time.Hour).Truncate(time.Second),
		User:         AuthUser{ID: "user-1", Email: "ama@example.com"},
	}
	if err := store.Save(ctx, key, session, time.Minute); err != nil {
		t.Fatalf("Save がエラーを返した: %v", err)
	}

	loaded, err := store.Load(ctx, key)
	if err != nil || loaded == nil {
		t.Fatalf("Load = %v, %v", loaded, err)
	}
	if loaded.RefreshToken != "r" || loaded.User.Email != "ama@example.com" || !loaded.ExpiresAt.Equal(session.ExpiresAt) {
		t.Errorf("読み込んだセッションが不正: %+v", loaded)
	}

	ttl, err := client.TTL(ctx, "churchconnect:test:"+key).Result()
	if err != nil || ttl <= 0 || ttl > time.Minute {
		t.Errorf("TTL = %v, %v", ttl, err)
	}

	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete がエラーを返した: %v", err)
	}
	if s, err := store.Load(ctx, key); err != nil || s != nil {
		t.Errorf("削除後の Load = %v, %v", s, err)
	}
}

func TestNewRedisTokenStore_DefaultPrefix(t *testing.T) {
	store := NewRedisTokenStore(nil, "")
	if store.keyPrefix != "churchconnect:auth:" {
		t.Errorf("keyPrefix = %q", store.keyPrefix)
	}
}

func TestNewRedisClient_InvalidURL(t *testing.T) {
	if _, err := NewRedisClient(context.Background(), "not a url"); err == nil {
		t.Error("エラーを期待したがnil")
	}
}
