package memory

import (
	"sync"

	"phonoroom-service/internal/app"
	"phonoroom-service/internal/domain"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*app.RoomSession
}

var _ app.SessionRepository = (*SessionStore)(nil)

func NewSessionStore() *SessionStore {
	return &SessionStore{
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
	}
}
