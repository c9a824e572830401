package memory

import (
	"context"
	"sync"

	"phonoroom-service/internal/app"
	"phonoroom-service/internal/domain"
)

// RoomStore is an in-memory implementation of app.RoomStore. The code index
// only tracks rooms that have not finished, so a finished room's code frees
// up immediately.
type RoomStore struct {
	mu      sync.RWMutex
	rooms   map[string]domain.Room
	codes   map[string]string // join code -> room id, open rooms only
	results []domain.GameResult
}

var _ app.RoomStore = (*RoomStore)(nil)

func NewRoomStore() *RoomStore {
	return &RoomStore{
		rooms: make(map[string]domain.Room),
		codes: make(map[string]string),
	}
}

func (s *RoomStore) Create(_ context.Context, room domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.codes[room.Code]; taken {
		return domain.ErrDuplicateCode
	}
	s.rooms[room.ID] = room
	s.codes[room.Code] = room.ID
	return nil
}

func (s *RoomStore) GetByID(_ context.Context, id string) (domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[id]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return room, nil
}

func (s *RoomStore) GetByCode(_ context.Context, code string) (domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.codes[code]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	room, ok := s.rooms[id]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return room, nil
}

func (s *RoomStore) UpdateStatus(_ context.Context, id string, status domain.RoomStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[id]
	if !ok {
		return domain.ErrRoomNotFound
	}
	room.Status = status
	s.rooms[id] = room
	if status == domain.RoomFinished {
		delete(s.codes, room.Code)
	}
	return nil
}

// Delete is idempotent; removing a missing room is a no-op.
func (s *RoomStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[id]
	if !ok {
		return nil
	}
	delete(s.rooms, id)
	if s.codes[room.Code] == id {
		delete(s.codes, room.Code)
	}
	return nil
}

func (s *RoomStore) SaveResult(_ context.Context, result domain.GameResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, result)
	return nil
}

// Results returns the persisted final summaries (test helper).
func (s *RoomStore) Results() []domain.GameResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.GameResult, len(s.results))
	copy(out, s.results)
	return out
}
