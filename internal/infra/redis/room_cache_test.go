package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"phonoroom-service/internal/domain"
	"phonoroom-service/internal/infra/memory"
)

func newTestCache(t *testing.T) (*RoomCache, *countingStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	backing := &countingStore{RoomStore: memory.NewRoomStore()}
	return NewRoomCache(client, backing, time.Minute), backing, mr
}

// countingStore counts reads that reach the backing store.
type countingStore struct {
	*memory.RoomStore
	byIDCalls   int
	byCodeCalls int
}

func (s *countingStore) GetByID(ctx context.Context, id string) (domain.Room, error) {
	s.byIDCalls++
	return s.RoomStore.GetByID(ctx, id)
}

func (s *countingStore) GetByCode(ctx context.Context, code string) (domain.Room, error) {
	s.byCodeCalls++
	return s.RoomStore.GetByCode(ctx, code)
}

func sampleRoom(id, code string) domain.Room {
	return domain.Room{
		ID:        id,
		Code:      code,
		TeacherID: "t1",
		Status:    domain.RoomPending,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func TestRoomCacheReservesCode(t *testing.T) {
	ctx := context.Background()
	cache, _, mr := newTestCache(t)

	if err := cache.Create(ctx, sampleRoom("r1", "123456")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if !mr.Exists("room:code:123456") {
		t.Fatalf("expected code reservation key")
	}
	if !mr.Exists("room:meta:r1") {
		t.Fatalf("expected metadata cache key")
	}

	if err := cache.Create(ctx, sampleRoom("r2", "123456")); err != domain.ErrDuplicateCode {
		t.Fatalf("expected duplicate code, got %v", err)
	}
}

func TestRoomCacheReadThrough(t *testing.T) {
	ctx := context.Background()
	cache, backing, _ := newTestCache(t)

	if err := cache.Create(ctx, sampleRoom("r1", "123456")); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := cache.GetByID(ctx, "r1"); err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if backing.byIDCalls != 0 {
		t.Fatalf("expected cache hit, backing reads=%d", backing.byIDCalls)
	}

	room, err := cache.GetByCode(ctx, "123456")
	if err != nil {
		t.Fatalf("get by code: %v", err)
	}
	if room.ID != "r1" {
		t.Fatalf("expected r1, got %s", room.ID)
	}
	if backing.byCodeCalls != 0 {
		t.Fatalf("expected reservation+meta hit, backing reads=%d", backing.byCodeCalls)
	}
}

func TestRoomCacheFallsBackToBackingStore(t *testing.T) {
	ctx := context.Background()
	cache, backing, mr := newTestCache(t)

	if err := cache.Create(ctx, sampleRoom("r1", "123456")); err != nil {
		t.Fatalf("create: %v", err)
	}
	mr.FlushAll() // simulate cache loss

	room, err := cache.GetByCode(ctx, "123456")
	if err != nil {
		t.Fatalf("get by code: %v", err)
	}
	if room.ID != "r1" || backing.byCodeCalls != 1 {
		t.Fatalf("expected backing read, got room=%s reads=%d", room.ID, backing.byCodeCalls)
	}
}

func TestRoomCacheFinishReleasesCode(t *testing.T) {
	ctx := context.Background()
	cache, _, mr := newTestCache(t)

	if err := cache.Create(ctx, sampleRoom("r1", "123456")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := cache.UpdateStatus(ctx, "r1", domain.RoomFinished); err != nil {
		t.Fatalf("update status: %v", err)
	}
	if mr.Exists("room:code:123456") {
		t.Fatalf("expected code reservation released on finish")
	}

	if _, err := cache.GetByCode(ctx, "123456"); err != domain.ErrRoomNotFound {
		t.Fatalf("expected not found for finished code, got %v", err)
	}
}

func TestRoomCacheDeleteClearsKeys(t *testing.T) {
	ctx := context.Background()
	cache, _, mr := newTestCache(t)

	if err := cache.Create(ctx, sampleRoom("r1", "123456")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := cache.Delete(ctx, "r1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if mr.Exists("room:code:123456") || mr.Exists("room:meta:r1") {
		t.Fatalf("expected cache keys removed")
	}
	if err := cache.Delete(ctx, "r1"); err != nil {
		t.Fatalf("second delete should be a no-op, got %v", err)
	}
}
