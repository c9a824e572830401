package integration

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"phonoroom-service/internal/app"
	"phonoroom-service/internal/domain"
	pgstore "phonoroom-service/internal/infra/postgres"
	pgmigrations "phonoroom-service/internal/infra/postgres/migrations"
	infraredis "phonoroom-service/internal/infra/redis"
)

// nopOutbox satisfies app.Outbox for flows where broadcasts are irrelevant.
type nopOutbox struct{}

func (nopOutbox) Deliver(string, any) bool { return true }
func (nopOutbox) Close()                   {}

func TestRoomSessionEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	runMigrations(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}

	rooms := infraredis.NewRoomCache(redisClient, pgstore.NewRoomStore(pool), 5*time.Minute)
	sessions := infraredis.NewSessionStore(redisClient, 5*time.Minute)
	service := app.NewRoomService(rooms, sessions)

	room, err := service.CreateRoom(ctx, app.RoomConfig{
		TeacherID:  "t1",
		Games:      []string{"rhyme-match", "sound-sort"},
		Difficulty: "medium",
	})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if n, err := redisClient.Exists(ctx, "room:code:"+room.Code).Result(); err != nil || n != 1 {
		t.Fatalf("expected code reservation in redis, n=%d err=%v", n, err)
	}

	fetched, err := service.GetRoom(ctx, room.Code)
	if err != nil {
		t.Fatalf("get by code: %v", err)
	}
	if fetched.ID != room.ID || len(fetched.Games) != 2 {
		t.Fatalf("unexpected room: %+v", fetched)
	}

	if _, err := service.Join(ctx, room.Code, "conn-1", domain.Participant{ID: "s1", Name: "Ana", Role: domain.RoleStudent}, nopOutbox{}); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := service.StartActivity(ctx, room.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	selected := "b"
	snap, err := service.SubmitAnswer(ctx, room.ID, domain.AnswerEvent{
		StudentID:      "s1",
		StudentName:    "Ana",
		QuestionID:     "q1",
		SelectedAnswer: &selected,
		Correct:        true,
		ElapsedMillis:  4000,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if snap.Global.TotalAnswered != 1 || snap.Global.TotalCorrect != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap.Global)
	}

	if _, err := service.EndActivity(ctx, room.ID); err != nil {
		t.Fatalf("end: %v", err)
	}
	// the code frees up once the room finishes
	if n, _ := redisClient.Exists(ctx, "room:code:"+room.Code).Result(); n != 0 {
		t.Fatalf("expected code reservation released")
	}
	var status string
	if err := pool.QueryRow(ctx, `SELECT status FROM rooms WHERE id=$1`, room.ID).Scan(&status); err != nil {
		t.Fatalf("query status: %v", err)
	}
	if status != string(domain.RoomFinished) {
		t.Fatalf("expected finished persisted, got %s", status)
	}

	if err := service.SaveResult(ctx, domain.GameResult{
		RoomID:             room.ID,
		StudentID:          "s1",
		StudentName:        "Ana",
		Game:               "rhyme-match",
		Answered:           1,
		Correct:            1,
		TotalElapsedMillis: 4000,
	}); err != nil {
		t.Fatalf("save result: %v", err)
	}
	var count int
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM game_results WHERE room_id=$1`, room.ID).Scan(&count); err != nil {
		t.Fatalf("query results: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 persisted result, got %d", count)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "room", "POSTGRES_PASSWORD": "roompass", "POSTGRES_DB": "roomdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://room:roompass@%s:%s/roomdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func runMigrations(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
