package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "numify.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestApprovalLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Unknown user: not approved, not an error.
	approved, err := store.IsApproved(ctx, "user-1")
	if err != nil {
		t.Fatalf("is approved: %v", err)
	}
	if approved {
		t.Fatal("unknown user should not be approved")
	}

	exists, err := store.UserExists(ctx, "user-1")
	if err != nil {
		t.Fatalf("user exists: %v", err)
	}
	if exists {
		t.Fatal("unknown user should not exist")
	}

	if err := store.SetApproved(ctx, "user-1", true); err != nil {
		t.Fatalf("set approved: %v", err)
	}
	if approved, _ = store.IsApproved(ctx, "user-1"); !approved {
		t.Fatal("expected approval after SetApproved(true)")
	}

	if err := store.SetApproved(ctx, "user-1", false); err != nil {
		t.Fatalf("revoke approval: %v", err)
	}
	if approved, _ = store.IsApproved(ctx, "user-1"); approved {
		t.Fatal("expected approval revoked")
	}
	if exists, _ = store.UserExists(ctx, "user-1"); !exists {
		t.Fatal("record should survive revocation")
	}
}

func TestAppendAndListNumbers(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().Truncate(time.Second)
	for i, num := range []string{"11111111", "22222222", "33333333"} {
		if err := store.AppendNumber(ctx, "user-1", num, "msg "+num, base.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("append %s: %v", num, err)
		}
	}
	// Another user's rows must not leak in.
	if err := store.AppendNumber(ctx, "user-2", "99999999", "other", base); err != nil {
		t.Fatalf("append other user: %v", err)
	}

	got, err := store.NumbersForUser(ctx, "user-1", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("rows = %d, want 3", len(got))
	}
	for i, want := range []string{"11111111", "22222222", "33333333"} {
		if got[i].Number != want {
			t.Errorf("row %d number = %s, want %s", i, got[i].Number, want)
		}
	}
	if got[0].Message != "msg 11111111" {
		t.Errorf("message = %q", got[0].Message)
	}

	limited, err := store.NumbersForUser(ctx, "user-1", 2)
	if err != nil {
		t.Fatalf("limited list: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("limited rows = %d, want 2", len(limited))
	}
}

func TestUpsertSessionMeta(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.UpsertSessionMeta(ctx, "user-1", "https://example/live/1"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := store.UpsertSessionMeta(ctx, "user-1", "https://example/live/2"); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	meta, err := store.GetSessionMeta(ctx, "user-1")
	if err != nil {
		t.Fatalf("get meta: %v", err)
	}
	if meta == nil || meta.LiveURL != "https://example/live/2" {
		t.Fatalf("meta = %+v, want latest live url", meta)
	}

	missing, err := store.GetSessionMeta(ctx, "ghost")
	if err != nil {
		t.Fatalf("get missing meta: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil meta for unknown uid, got %+v", missing)
	}
}

func TestClosedStoreGuards(t *testing.T) {
	store := newTestStore(t)
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	ctx := context.Background()
	if err := store.AppendNumber(ctx, "u", "12345678", "m", time.Now()); err == nil {
		t.Fatal("expected error writing to closed store")
	}
}
