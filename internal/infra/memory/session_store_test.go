package memory

import (
	"context"
	"testing"

	"omrzen/internal/domain"
)

func TestSessionStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()

	if err := store.Set(ctx, domain.FieldTestConfig, `{"questionCount":5}`); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Set(ctx, domain.FieldTimeLeft, "120"); err != nil {
		t.Fatalf("set: %v", err)
	}

	value, ok, err := store.Get(ctx, domain.FieldTimeLeft)
	if err != nil || !ok || value != "120" {
		t.Fatalf("expected timeLeft=120, got %q ok=%v err=%v", value, ok, err)
	}

	if err := store.Delete(ctx, domain.SessionFields()...); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("expected empty store, got %d fields", store.Len())
	}
	if _, ok, _ := store.Get(ctx, domain.FieldTestConfig); ok {
		t.Fatalf("expected testConfig removed")
	}
}
