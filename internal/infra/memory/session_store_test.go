package memory

import (
	"testing"

	"phonoroom-service/internal/domain"
)

func TestSessionStoreLifecycle(t *testing.T) {
	store := NewSessionStore()
	room := domain.Room{ID: "r1", Status: domain.RoomPending}

	session := store.GetOrCreate(room)
	if session == nil {
		t.Fatalf("expected session")
	}
	if again := store.GetOrCreate(room); again != session {
		t.Fatalf("expected the same session instance")
	}
	if _, ok := store.Get("r1"); !ok {
		t.Fatalf("expected session present")
	}

	store.DeleteIfEmpty("r1")
	if _, ok := store.Get("r1"); ok {
		t.Fatalf("expected session removed when empty")
	}

	store.GetOrCreate(room)
	store.Delete("r1")
	if _, ok := store.Get("r1"); ok {
		t.Fatalf("expected session removed")
	}
}
