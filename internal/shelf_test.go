package shelf

import (
	"context"
	"testing"
)

func TestWatchStatusValid(t *testing.T) {
	t.Parallel()

	for _, s := range WatchStatuses {
		if !s.Valid() {
			t.Errorf("%q should be valid", s)
		}
	}
	for _, s := range []WatchStatus{"", "Watching", "paused"} {
		if s.Valid() {
			t.Errorf("%q should be invalid", s)
		}
	}
}

func TestDisplayName(t *testing.T) {
	t.Parallel()

	u := &User{Username: "shinji"}
	if got := u.DisplayName(); got != "shinji" {
		t.Errorf("DisplayName = %q, want username", got)
	}
	u.FullName = "Shinji Ikari"
	if got := u.DisplayName(); got != "Shinji Ikari" {
		t.Errorf("DisplayName = %q, want full name", got)
	}
}

func TestContextHelpers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	if IdentityFromContext(ctx) != nil || RequestIDFromContext(ctx) != "" {
		t.Fatal("empty context should carry nothing")
	}

	ctx = ContextWithRequestID(ctx, "req-1")
	id := &Identity{UserID: 7, Username: "asuka"}
	// Identity is attached to the existing request metadata in place.
	same := ContextWithIdentity(ctx, id)
	if same != ctx {
		t.Error("ContextWithIdentity should reuse the request metadata")
	}
	if got := IdentityFromContext(ctx); got != id {
		t.Errorf("identity = %v, want %v", got, id)
	}
	if got := RequestIDFromContext(ctx); got != "req-1" {
		t.Errorf("request id = %q, want req-1", got)
	}

	bare := ContextWithIdentity(context.Background(), id)
	if got := IdentityFromContext(bare); got != id {
		t.Errorf("identity without metadata = %v, want %v", got, id)
	}
}
