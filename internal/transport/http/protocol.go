package http

import (
	"encoding/json"

	"phonoroom-service/internal/domain"
)

// Inbound message types accepted on the wire.
const (
	typeJoin            = "join"
	typeStudentAnswered = "student-answered"
	typeActivityStarted = "activity-started"
	typeActivityEnded   = "activity-ended"
	typeHeartbeat       = "heartbeat"
)

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type joinPayload struct {
	RoomID        string `json:"roomId"`
	ParticipantID string `json:"participantId"`
	Name          string `json:"name"`
	Role          string `json:"role"`
}

// answerPayload uses pointers for the required scalar fields so a missing
// field is distinguishable from a zero value.
type answerPayload struct {
	QuestionID     string  `json:"questionId"`
	SelectedAnswer *string `json:"selectedAnswer"`
	IsCorrect      *bool   `json:"isCorrect"`
	ElapsedMillis  *int64  `json:"elapsedMillis"`
}

// parseJoin validates a join envelope. RoomID may be empty; the connect-time
// room parameter then applies.
func parseJoin(raw json.RawMessage) (joinPayload, error) {
	var p joinPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return joinPayload{}, domain.ErrInvalidMessage
	}
	if p.ParticipantID == "" || p.Name == "" {
		return joinPayload{}, domain.ErrInvalidMessage
	}
	if p.Role != string(domain.RoleTeacher) && p.Role != string(domain.RoleStudent) {
		return joinPayload{}, domain.ErrInvalidMessage
	}
	return p, nil
}

// parseAnswer validates a student-answered envelope. selectedAnswer stays
// optional (null on question timeout); everything else is required.
func parseAnswer(raw json.RawMessage) (answerPayload, error) {
	var p answerPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return answerPayload{}, domain.ErrInvalidMessage
	}
	if p.QuestionID == "" || p.IsCorrect == nil || p.ElapsedMillis == nil {
		return answerPayload{}, domain.ErrInvalidMessage
	}
	if *p.ElapsedMillis < 0 {
		return answerPayload{}, domain.ErrInvalidMessage
	}
	return p, nil
}
