package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"phonoroom-service/internal/app"
	"phonoroom-service/internal/domain"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Notes:
//   - It still keeps a local in-memory map of sessions; the per-room mutex
//     and fan-out only make sense in-process.
//   - Redis marks which rooms have a live session (and could be extended to
//     route cross-instance pub/sub).
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[string]*app.RoomSession
}

var _ app.SessionRepository = (*SessionStore)(nil)

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		sessions: make(map[string]*app.RoomSession),
	}
}

func (s *SessionStore) GetOrCreate(room domain.Room) *app.RoomSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[room.ID]; ok {
		return session
	}
	session := app.NewRoomSession(room)
	s.sessions[room.ID] = session
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), s.key(room.ID), "1", s.ttl).Err()
	return session
}

func (s *SessionStore) Get(roomID string) (*app.RoomSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[roomID]
	return session, ok
}

func (s *SessionStore) Delete(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, roomID)
	_ = s.client.Del(context.Background(), s.key(roomID)).Err()
}

func (s *SessionStore) DeleteIfEmpty(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[roomID]
	if !ok {
		return
	}
	if session.IsEmpty() {
		delete(s.sessions, roomID)
		_ = s.client.Del(context.Background(), s.key(roomID)).Err()
	}
}

func (s *SessionStore) key(roomID string) string {
	return "room:session:" + roomID
}
