package store

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
)

func TestUnseenCountCache(t *testing.T) {
	url := os.Getenv("WEMAKE_TEST_REDIS_URL")
	if url == "" {
		t.Skip("WEMAKE_TEST_REDIS_URL not set")
	}
	ctx := context.Background()

	r, err := NewRedisStore(ctx, url)
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}
	t.Cleanup(func() { r.Close() })

	user := uuid.New()
	if _, ok, err := r.GetUnseenCount(ctx, user); err != nil || ok {
		t.Fatalf("GetUnseenCount on empty cache = ok %v, err %v", ok, err)
	}

	if err := r.SetUnseenCount(ctx, user, 3); err != nil {
		t.Fatalf("SetUnseenCount failed: %v", err)
	}
	count, ok, err := r.GetUnseenCount(ctx, user)
	if err != nil || !ok || count != 3 {
		t.Errorf("GetUnseenCount = %d, %v, %v, want 3, true, nil", count, ok, err)
	}

	if err := r.InvalidateUnseenCount(ctx, user); err != nil {
		t.Fatalf("InvalidateUnseenCount failed: %v", err)
	}
	if _, ok, _ := r.GetUnseenCount(ctx, user); ok {
		t.Error("count still cached after invalidation")
	}
}
