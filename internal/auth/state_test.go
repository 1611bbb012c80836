package auth

import (
	"testing"
	"time"
)

func TestStateStoreCreateVerify(t *testing.T) {
	store := NewStateStore(10 * time.Minute)

	state, nonce, err := store.Create()
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if state == "" || nonce == "" {
		t.Fatal("expected non-empty state and nonce")
	}
	if state == nonce {
		t.Fatal("state and nonce must differ")
	}

	got, ok := store.Verify(state)
	if !ok {
		t.Fatal("expected state to verify")
	}
	if got != nonce {
		t.Fatalf("expected nonce %q, got %q", nonce, got)
	}
}

func TestStateStoreConsumesOnce(t *testing.T) {
	store := NewStateStore(10 * time.Minute)

	state, _, err := store.Create()
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, ok := store.Verify(state); !ok {
		t.Fatal("first verify should succeed")
	}
	if _, ok := store.Verify(state); ok {
		t.Fatal("state must be single use")
	}
}

func TestStateStoreUnknownState(t *testing.T) {
	store := NewStateStore(10 * time.Minute)
	if _, ok := store.Verify("never-issued"); ok {
		t.Fatal("unknown state must not verify")
	}
}

func TestStateStoreExpired(t *testing.T) {
	store := NewStateStore(time.Millisecond)

	state, _, err := store.Create()
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, ok := store.Verify(state); ok {
		t.Fatal("expired state must not verify")
	}
}
