package app

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"phonoroom-service/internal/domain"
)

// SessionRepository abstracts how live room sessions are stored (in-memory,
// Redis-marked, etc).
type SessionRepository interface {
	GetOrCreate(room domain.Room) *RoomSession
	Get(roomID string) (*RoomSession, bool)
	Delete(roomID string)
	DeleteIfEmpty(roomID string)
}

// RoomStore persists room metadata and final game results (the CRUD
// collaborator behind the live core). GetByCode only resolves rooms that have
// not finished, which is what keeps join codes unique among open rooms.
type RoomStore interface {
	Create(ctx context.Context, room domain.Room) error
	GetByID(ctx context.Context, id string) (domain.Room, error)
	GetByCode(ctx context.Context, code string) (domain.Room, error)
	UpdateStatus(ctx context.Context, id string, status domain.RoomStatus) error
	Delete(ctx context.Context, id string) error
	SaveResult(ctx context.Context, result domain.GameResult) error
}

// RoomConfig is the teacher-supplied configuration for a new room.
type RoomConfig struct {
	TeacherID  string
	Games      []string
	Difficulty string
}

const (
	codeAlphabetSize = 1000000 // 6-digit numeric codes, 000000-999999
	maxCodeAttempts  = 10
)

// RoomService contains the room lifecycle and live-session use cases.
type RoomService struct {
	rooms    RoomStore
	sessions SessionRepository
	now      func() time.Time

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewRoomService(rooms RoomStore, sessions SessionRepository) *RoomService {
	return &RoomService{
		rooms:    rooms,
		sessions: sessions,
		now:      time.Now,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// NewRoomServiceWithClock is test-only for deterministic timestamps and codes.
func NewRoomServiceWithClock(rooms RoomStore, sessions SessionRepository, now func() time.Time, seed int64) *RoomService {
	return &RoomService{
		rooms:    rooms,
		sessions: sessions,
		now:      now,
		rnd:      rand.New(rand.NewSource(seed)),
	}
}

// CreateRoom allocates a pending room with a fresh join code. Generation is
// retry-bounded: if every attempt collides with a currently open room the
// caller gets ErrDuplicateCode and may simply retry.
func (s *RoomService) CreateRoom(ctx context.Context, cfg RoomConfig) (domain.Room, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code := s.nextCode()
		_, err := s.rooms.GetByCode(ctx, code)
		if err == nil {
			continue // code still held by an open room
		}
		if err != domain.ErrRoomNotFound {
			return domain.Room{}, err
		}

		room := domain.Room{
			ID:         uuid.NewString(),
			Code:       code,
			TeacherID:  cfg.TeacherID,
			Games:      cfg.Games,
			Difficulty: cfg.Difficulty,
			Status:     domain.RoomPending,
			CreatedAt:  s.now(),
		}
		if err := s.rooms.Create(ctx, room); err != nil {
			if err == domain.ErrDuplicateCode {
				continue // lost the race for this code, try another
			}
			return domain.Room{}, err
		}
		return room, nil
	}
	return domain.Room{}, domain.ErrDuplicateCode
}

func (s *RoomService) nextCode() string {
	s.rndMu.Lock()
	defer s.rndMu.Unlock()
	return fmt.Sprintf("%06d", s.rnd.Intn(codeAlphabetSize))
}

// GetRoom resolves a room by id or join code.
func (s *RoomService) GetRoom(ctx context.Context, idOrCode string) (domain.Room, error) {
	room, err := s.rooms.GetByID(ctx, idOrCode)
	if err == nil {
		return s.withLiveStatus(room), nil
	}
	if err != domain.ErrRoomNotFound {
		return domain.Room{}, err
	}
	room, err = s.rooms.GetByCode(ctx, idOrCode)
	if err != nil {
		return domain.Room{}, err
	}
	return s.withLiveStatus(room), nil
}

// withLiveStatus overlays the session's status when one exists; the live FSM
// is authoritative while the room is in memory.
func (s *RoomService) withLiveStatus(room domain.Room) domain.Room {
	if session, ok := s.sessions.Get(room.ID); ok {
		room.Status = session.Status()
	}
	return room
}

// Join registers a connection's presence in a room. Rejoining with the same
// participant id replaces the previous connection rather than duplicating it.
func (s *RoomService) Join(ctx context.Context, idOrCode, connectionID string, p domain.Participant, out Outbox) (domain.Room, error) {
	room, err := s.GetRoom(ctx, idOrCode)
	if err != nil {
		return domain.Room{}, err
	}
	if room.Status == domain.RoomFinished {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	session := s.sessions.GetOrCreate(room)
	if err := session.join(connectionID, p, out); err != nil {
		return domain.Room{}, err
	}
	return room, nil
}

// Leave removes a connection from the room; unknown connections are a no-op.
// The session entry itself is released once the last connection leaves a
// finished room.
func (s *RoomService) Leave(_ context.Context, roomID, connectionID string) {
	session, ok := s.sessions.Get(roomID)
	if !ok {
		return
	}
	session.leave(connectionID)
	if session.Status() == domain.RoomFinished && session.IsEmpty() {
		s.sessions.DeleteIfEmpty(roomID)
	}
}

// SubmitAnswer folds one answer event into the room's aggregates and
// re-broadcasts it. Rejected without any state change while the room is not
// active.
func (s *RoomService) SubmitAnswer(_ context.Context, roomID string, ev domain.AnswerEvent) (domain.Snapshot, error) {
	session, ok := s.sessions.Get(roomID)
	if !ok {
		return domain.Snapshot{}, domain.ErrRoomNotFound
	}
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = s.now()
	}
	return session.recordAnswer(ev)
}

// StartActivity moves a pending room to active.
func (s *RoomService) StartActivity(ctx context.Context, roomID string) (domain.Room, error) {
	return s.transition(ctx, roomID, domain.RoomActive)
}

// EndActivity moves an active room to finished. A second end request on an
// already-finished room is a no-op.
func (s *RoomService) EndActivity(ctx context.Context, roomID string) (domain.Room, error) {
	return s.transition(ctx, roomID, domain.RoomFinished)
}

func (s *RoomService) transition(ctx context.Context, roomID string, target domain.RoomStatus) (domain.Room, error) {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return domain.Room{}, err
	}
	session := s.sessions.GetOrCreate(room)
	changed, err := session.transition(target)
	if err != nil {
		return domain.Room{}, err
	}
	if changed {
		if err := s.rooms.UpdateStatus(ctx, roomID, target); err != nil {
			return domain.Room{}, err
		}
	}
	room.Status = session.Status()
	return room, nil
}

// DeleteRoom tears the room down from any state: the session is finished
// immediately (closing every connection and discarding aggregates), the code
// is freed, and the metadata row is removed. Idempotent.
func (s *RoomService) DeleteRoom(ctx context.Context, roomID string) error {
	if session, ok := s.sessions.Get(roomID); ok {
		session.forceFinish()
		s.sessions.Delete(roomID)
	}
	return s.rooms.Delete(ctx, roomID)
}

// Snapshot returns the consistent aggregate view for a room. A room that
// exists but has no live session yet yields an empty snapshot.
func (s *RoomService) Snapshot(ctx context.Context, roomID string) (domain.Snapshot, error) {
	if session, ok := s.sessions.Get(roomID); ok {
		return session.Snapshot(), nil
	}
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return domain.Snapshot{RoomID: room.ID, UpdatedAt: s.now()}, nil
}

// ListParticipants returns a point-in-time presence snapshot.
func (s *RoomService) ListParticipants(_ context.Context, roomID string) []domain.Participant {
	session, ok := s.sessions.Get(roomID)
	if !ok {
		return nil
	}
	return session.Participants()
}

// SaveResult persists a student's final mini-game summary through the
// collaborator store. The live aggregator is not involved.
func (s *RoomService) SaveResult(ctx context.Context, result domain.GameResult) error {
	if result.FinishedAt.IsZero() {
		result.FinishedAt = s.now()
	}
	return s.rooms.SaveResult(ctx, result)
}
