package redis

import (
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"phonoroom-service/internal/domain"
)

func TestSessionStoreSetsAndClearsKeys(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewSessionStore(client, time.Minute)
	room := domain.Room{ID: "r1", Status: domain.RoomPending}

	_ = store.GetOrCreate(room)
	if !mr.Exists("room:session:r1") {
		t.Fatalf("expected redis key to be set")
	}

	store.DeleteIfEmpty("r1")
	if mr.Exists("room:session:r1") {
		t.Fatalf("expected redis key to be removed")
	}

	_ = store.GetOrCreate(room)
	store.Delete("r1")
	if mr.Exists("room:session:r1") {
		t.Fatalf("expected redis key to be removed on delete")
	}
}
