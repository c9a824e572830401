package domain

import "time"

// RoomStatus is the lifecycle state of a room. Transitions only move forward:
// pending -> active -> finished.
type RoomStatus string

const (
	RoomPending  RoomStatus = "pending"
	RoomActive   RoomStatus = "active"
	RoomFinished RoomStatus = "finished"
)

// Role distinguishes the supervising teacher connection from student players.
type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// Room holds the metadata of an activity session. Code is a short join code,
// unique among rooms that have not finished yet.
type Room struct {
	ID         string     `json:"id"`
	Code       string     `json:"code"`
	TeacherID  string     `json:"teacherId"`
	Games      []string   `json:"games"`
	Difficulty string     `json:"difficulty"`
	Status     RoomStatus `json:"status"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// Participant is the presence view of one connected client.
type Participant struct {
	ID   string `json:"participantId"`
	Name string `json:"name"`
	Role Role   `json:"role"`
}

// AnswerEvent is one per-question result reported by a student client.
// Immutable once accepted; SelectedAnswer is nil when the question timed out.
type AnswerEvent struct {
	StudentID      string    `json:"studentId"`
	StudentName    string    `json:"studentName"`
	QuestionID     string    `json:"questionId"`
	SelectedAnswer *string   `json:"selectedAnswer"`
	Correct        bool      `json:"isCorrect"`
	ElapsedMillis  int64     `json:"elapsedMillis"`
	ReceivedAt     time.Time `json:"receivedAt"`
}

// StudentAggregate is the running per-student statistic, maintained by folding
// accepted AnswerEvents. Counts only ever grow.
type StudentAggregate struct {
	StudentID          string `json:"studentId"`
	StudentName        string `json:"studentName"`
	Answered           int    `json:"answered"`
	Correct            int    `json:"correct"`
	TotalElapsedMillis int64  `json:"totalElapsedMillis"`
}

// AccuracyPct returns the percentage of correct answers, 0 when nothing has
// been answered yet.
func (a StudentAggregate) AccuracyPct() float64 {
	if a.Answered == 0 {
		return 0
	}
	return float64(a.Correct) / float64(a.Answered) * 100
}

// AverageSeconds returns the mean response time in seconds.
func (a StudentAggregate) AverageSeconds() float64 {
	if a.Answered == 0 {
		return 0
	}
	return float64(a.TotalElapsedMillis) / float64(a.Answered) / 1000
}

// GlobalStats aggregates across all students in a room.
type GlobalStats struct {
	ActiveStudentCount int     `json:"activeStudentCount"`
	TotalAnswered      int     `json:"totalAnswered"`
	TotalCorrect       int     `json:"totalCorrect"`
	AccuracyPct        float64 `json:"globalAccuracyPct"`
}

// RankingEntry is one row of the room ranking. Score is the accuracy
// percentage; AverageSeconds is exposed so clients can show the tie-break.
type RankingEntry struct {
	StudentID      string  `json:"studentId"`
	StudentName    string  `json:"studentName"`
	Score          float64 `json:"score"`
	AverageSeconds float64 `json:"averageSeconds"`
}

// Snapshot is a consistent point-in-time view of a room's aggregates.
type Snapshot struct {
	RoomID    string             `json:"roomId"`
	Students  []StudentAggregate `json:"students"`
	Global    GlobalStats        `json:"global"`
	Ranking   []RankingEntry     `json:"ranking"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// GameResult is the final per-student summary persisted when a mini-game
// ends. The live aggregator never reads these back; they exist for the
// course history views.
type GameResult struct {
	RoomID             string    `json:"roomId"`
	StudentID          string    `json:"studentId"`
	StudentName        string    `json:"studentName"`
	Game               string    `json:"game"`
	Answered           int       `json:"answered"`
	Correct            int       `json:"correct"`
	TotalElapsedMillis int64     `json:"totalElapsedMillis"`
	FinishedAt         time.Time `json:"finishedAt"`
}
