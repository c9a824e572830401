package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"phonoroom-service/internal/app"
	"phonoroom-service/internal/domain"
)

// RoomStore persists room metadata and final game results in Postgres.
// Join-code uniqueness among open rooms is enforced by a partial unique index
// (see migrations), so concurrent creates race safely.
type RoomStore struct {
	pool *pgxpool.Pool
}

var _ app.RoomStore = (*RoomStore)(nil)

func NewRoomStore(pool *pgxpool.Pool) *RoomStore {
	return &RoomStore{pool: pool}
}

func (s *RoomStore) Create(ctx context.Context, room domain.Room) error {
	games, err := json.Marshal(room.Games)
	if err != nil {
		return fmt.Errorf("marshal games: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO rooms (id, code, teacher_id, games, difficulty, status, created_at)
		 VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7)`,
		room.ID, room.Code, room.TeacherID, string(games), room.Difficulty, string(room.Status), room.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrDuplicateCode
		}
		return fmt.Errorf("insert room: %w", err)
	}
	return nil
}

func (s *RoomStore) GetByID(ctx context.Context, id string) (domain.Room, error) {
	return s.scanRoom(s.pool.QueryRow(ctx,
		`SELECT id, code, teacher_id, games, difficulty, status, created_at
		 FROM rooms WHERE id=$1`, id))
}

func (s *RoomStore) GetByCode(ctx context.Context, code string) (domain.Room, error) {
	return s.scanRoom(s.pool.QueryRow(ctx,
		`SELECT id, code, teacher_id, games, difficulty, status, created_at
		 FROM rooms WHERE code=$1 AND status <> 'finished'`, code))
}

func (s *RoomStore) scanRoom(row pgx.Row) (domain.Room, error) {
	var room domain.Room
	var games []byte
	var status string
	err := row.Scan(&room.ID, &room.Code, &room.TeacherID, &games, &room.Difficulty, &status, &room.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Room{}, domain.ErrRoomNotFound
		}
		return domain.Room{}, fmt.Errorf("scan room: %w", err)
	}
	room.Status = domain.RoomStatus(status)
	if len(games) > 0 {
		if err := json.Unmarshal(games, &room.Games); err != nil {
			return domain.Room{}, fmt.Errorf("unmarshal games: %w", err)
		}
	}
	return room, nil
}

func (s *RoomStore) UpdateStatus(ctx context.Context, id string, status domain.RoomStatus) error {
	tag, err := s.pool.Exec(ctx, `UPDATE rooms SET status=$2 WHERE id=$1`, id, string(status))
	if err != nil {
		return fmt.Errorf("update room status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRoomNotFound
	}
	return nil
}

// Delete is idempotent; a missing row is not an error.
func (s *RoomStore) Delete(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM rooms WHERE id=$1`, id); err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	return nil
}

func (s *RoomStore) SaveResult(ctx context.Context, result domain.GameResult) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO game_results (room_id, student_id, student_name, game, answered, correct, total_elapsed_millis, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		result.RoomID, result.StudentID, result.StudentName, result.Game,
		result.Answered, result.Correct, result.TotalElapsedMillis, result.FinishedAt)
	if err != nil {
		return fmt.Errorf("insert game result: %w", err)
	}
	return nil
}
