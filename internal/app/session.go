package app

import (
	"sync"
	"time"

	"phonoroom-service/internal/domain"
)

// Outbox is the transport-side delivery queue for one connection. Deliver
// must never block; it reports false when the connection's queue is full,
// which the session treats as a dead connection.
type Outbox interface {
	Deliver(msgType string, payload any) bool
	Close()
}

// Message types pushed to connected clients. MsgJoined is the transport's
// acknowledgement to the joining connection itself; the rest are session
// broadcasts.
const (
	MsgJoined            = "joined"
	MsgParticipantJoined = "participant-joined"
	MsgParticipantLeft   = "participant-left"
	MsgStudentAnswered   = "student-answered"
	MsgActivityStarted   = "activity-started"
	MsgActivityEnded     = "activity-ended"
	MsgSnapshot          = "snapshot"
)

// RoomSession is the exclusive in-memory domain for one room: connection
// membership, lifecycle status, and answer aggregates all live behind a
// single mutex, so folds and membership changes for the same room serialize
// while distinct rooms proceed in parallel.
type RoomSession struct {
	roomID string
	now    func() time.Time

	mu      sync.Mutex
	status  domain.RoomStatus
	members map[string]*member // participantID -> member
	byConn  map[string]string  // connectionID -> participantID
	stats   map[string]*studentStats
	joinSeq int
	deleted bool
}

type member struct {
	connectionID string
	participant  domain.Participant
	outbox       Outbox
}

// NewRoomSession is exported for infrastructure layers that need to seed sessions.
func NewRoomSession(room domain.Room) *RoomSession {
	return newRoomSessionWithClock(room, time.Now)
}

// NewRoomSessionWithClock is test-only for deterministic timestamps.
func NewRoomSessionWithClock(room domain.Room, now func() time.Time) *RoomSession {
	return newRoomSessionWithClock(room, now)
}

func newRoomSessionWithClock(room domain.Room, now func() time.Time) *RoomSession {
	status := room.Status
	if status == "" {
		status = domain.RoomPending
	}
	return &RoomSession{
		roomID:  room.ID,
		now:     now,
		status:  status,
		members: make(map[string]*member),
		byConn:  make(map[string]string),
		stats:   make(map[string]*studentStats),
	}
}

// Status returns the current lifecycle status.
func (s *RoomSession) Status() domain.RoomStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// IsEmpty reports whether no connection is registered.
func (s *RoomSession) IsEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.members) == 0
}

// join registers or replaces the presence entry for a participant.
// A reconnect with the same participant id closes the previous connection and
// takes over its presence slot; only a genuinely new participant triggers a
// participant-joined broadcast.
func (s *RoomSession) join(connectionID string, p domain.Participant, out Outbox) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.deleted || s.status == domain.RoomFinished {
		return domain.ErrRoomNotFound
	}

	// A connection re-identifying as a different participant releases the
	// presence it held first, so byConn and members never diverge. Its outbox
	// stays open because the same connection is registering again.
	if prevID, ok := s.byConn[connectionID]; ok && prevID != p.ID {
		delete(s.byConn, connectionID)
		if prev := s.members[prevID]; prev != nil && prev.connectionID == connectionID {
			delete(s.members, prevID)
			s.broadcastLocked(MsgParticipantLeft, prev.participant, prevID)
		}
	}

	replaced := false
	if prev, ok := s.members[p.ID]; ok {
		if prev.connectionID != connectionID {
			prev.outbox.Close()
			delete(s.byConn, prev.connectionID)
		}
		replaced = true
	}
	s.members[p.ID] = &member{connectionID: connectionID, participant: p, outbox: out}
	s.byConn[connectionID] = p.ID

	if !replaced {
		s.broadcastLocked(MsgParticipantJoined, p, p.ID)
	}
	if p.Role == domain.RoleTeacher {
		out.Deliver(MsgSnapshot, s.snapshotLocked())
	}
	return nil
}

// leave removes the connection if it is still the authoritative one for its
// participant. Idempotent: unknown or already-replaced connections are a no-op.
func (s *RoomSession) leave(connectionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leaveLocked(connectionID)
}

func (s *RoomSession) leaveLocked(connectionID string) {
	participantID, ok := s.byConn[connectionID]
	if !ok {
		return
	}
	m := s.members[participantID]
	if m == nil || m.connectionID != connectionID {
		delete(s.byConn, connectionID)
		return
	}
	delete(s.byConn, connectionID)
	delete(s.members, participantID)
	m.outbox.Close()
	s.broadcastLocked(MsgParticipantLeft, m.participant, participantID)
}

// broadcastLocked delivers a message to every live connection except the
// excluded participant. Best-effort per connection: an overflowing outbox
// drops that connection as a leave without blocking the rest.
func (s *RoomSession) broadcastLocked(msgType string, payload any, excludingParticipantID string) {
	var dropped []string
	for participantID, m := range s.members {
		if participantID == excludingParticipantID {
			continue
		}
		if !m.outbox.Deliver(msgType, payload) {
			dropped = append(dropped, m.connectionID)
		}
	}
	for _, connectionID := range dropped {
		s.leaveLocked(connectionID)
	}
}

// participants returns a point-in-time membership snapshot.
func (s *RoomSession) participants() []domain.Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Participant, 0, len(s.members))
	for _, m := range s.members {
		out = append(out, m.participant)
	}
	return out
}

// Participants is the exported snapshot accessor.
func (s *RoomSession) Participants() []domain.Participant {
	return s.participants()
}

// recordAnswer folds one accepted answer event and, inside the same critical
// section, re-broadcasts it and pushes a fresh snapshot to teacher
// connections. Holding the lock across fold and broadcast is what guarantees
// a teacher never observes the broadcast before the fold is visible.
func (s *RoomSession) recordAnswer(ev domain.AnswerEvent) (domain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.deleted {
		return domain.Snapshot{}, domain.ErrRoomNotFound
	}
	if s.status != domain.RoomActive {
		return domain.Snapshot{}, domain.ErrRoomNotActive
	}

	st, ok := s.stats[ev.StudentID]
	if !ok {
		s.joinSeq++
		st = &studentStats{seq: s.joinSeq, agg: domain.StudentAggregate{
			StudentID:   ev.StudentID,
			StudentName: ev.StudentName,
		}}
		s.stats[ev.StudentID] = st
	}
	st.fold(ev)

	snap := s.snapshotLocked()
	s.broadcastLocked(MsgStudentAnswered, ev, ev.StudentID)
	for _, m := range s.members {
		if m.participant.Role == domain.RoleTeacher {
			m.outbox.Deliver(MsgSnapshot, snap)
		}
	}
	return snap, nil
}

// transition advances the lifecycle FSM. It reports whether the status
// actually changed; a duplicate end request on a finished room is a silent
// no-op since teacher clients retry.
func (s *RoomSession) transition(target domain.RoomStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.deleted {
		return false, domain.ErrRoomNotFound
	}
	switch {
	case s.status == domain.RoomPending && target == domain.RoomActive:
		s.status = domain.RoomActive
		s.broadcastLocked(MsgActivityStarted, statusPayload{RoomID: s.roomID, Status: s.status}, "")
		return true, nil
	case s.status == domain.RoomActive && target == domain.RoomFinished:
		s.status = domain.RoomFinished
		s.broadcastLocked(MsgActivityEnded, statusPayload{RoomID: s.roomID, Status: s.status}, "")
		return true, nil
	case s.status == domain.RoomFinished && target == domain.RoomFinished:
		return false, nil
	default:
		return false, domain.ErrInvalidTransition
	}
}

type statusPayload struct {
	RoomID string            `json:"roomId"`
	Status domain.RoomStatus `json:"status"`
}

// forceFinish is the deletion path: the room is finished immediately, every
// connection is closed, and further events resolve to room-not-found.
func (s *RoomSession) forceFinish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = domain.RoomFinished
	s.deleted = true
	for _, m := range s.members {
		m.outbox.Close()
	}
	s.members = make(map[string]*member)
	s.byConn = make(map[string]string)
	s.stats = make(map[string]*studentStats)
}

// Snapshot returns a consistent point-in-time view of the room's aggregates.
func (s *RoomSession) Snapshot() domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}
