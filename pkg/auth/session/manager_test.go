package session

import (
	"context"
	"testing"
	"time"

	redislib "github.com/redis/go-redis/v9"
)

type memoryStore struct {
	values map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: map[string]string{}}
}

func (s *memoryStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	s.values[key] = value.(string)
	return nil
}

func (s *memoryStore) Get(_ context.Context, key string) (string, error) {
	v, ok := s.values[key]
	if !ok {
		return "", redislib.Nil
	}
	return v, nil
}

func (s *memoryStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(s.values, key)
	}
	return nil
}

func (s *memoryStore) AccessSessionKey(accessID string) string {
	return "session:access:" + accessID
}

func testManager() (*Manager, *memoryStore) {
	store := newMemoryStore()
	return &Manager{store: store, refreshTTL: time.Hour}, store
}

func TestGenerateStoresToken(t *testing.T) {
	mgr, store := testManager()

	accessID := NewAccessID()
	token, err := mgr.Generate(context.Background(), accessID)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}
	if store.values[store.AccessSessionKey(accessID)] != token {
		t.Fatal("stored token does not match returned token")
	}

	ok, err := mgr.HasSession(context.Background(), accessID)
	if err != nil || !ok {
		t.Fatalf("expected live session, got ok=%v err=%v", ok, err)
	}
}

func TestRotateInvalidatesOldSession(t *testing.T) {
	mgr, _ := testManager()

	accessID := NewAccessID()
	token, err := mgr.Generate(context.Background(), accessID)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	nextID, nextToken, err := mgr.Rotate(context.Background(), accessID, token)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if nextID == accessID || nextToken == token {
		t.Fatal("rotation must issue a fresh id and token")
	}

	if ok, _ := mgr.HasSession(context.Background(), accessID); ok {
		t.Fatal("old session should be gone after rotation")
	}
	if ok, _ := mgr.HasSession(context.Background(), nextID); !ok {
		t.Fatal("new session should be live after rotation")
	}
}

func TestRotateRejectsWrongToken(t *testing.T) {
	mgr, _ := testManager()

	accessID := NewAccessID()
	if _, err := mgr.Generate(context.Background(), accessID); err != nil {
		t.Fatalf("generate: %v", err)
	}

	if _, _, err := mgr.Rotate(context.Background(), accessID, "forged"); err != ErrInvalidRefreshToken {
		t.Fatalf("expected ErrInvalidRefreshToken, got %v", err)
	}
	if _, _, err := mgr.Rotate(context.Background(), "missing-id", "whatever"); err != ErrInvalidRefreshToken {
		t.Fatalf("expected ErrInvalidRefreshToken for unknown session, got %v", err)
	}
}

func TestRevokeEndsSession(t *testing.T) {
	mgr, _ := testManager()

	accessID := NewAccessID()
	if _, err := mgr.Generate(context.Background(), accessID); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if err := mgr.Revoke(context.Background(), accessID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if ok, _ := mgr.HasSession(context.Background(), accessID); ok {
		t.Fatal("expected session to be revoked")
	}
}
