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

	"quizroom-service/internal/app"
	"quizroom-service/internal/domain"
	pgloader "quizroom-service/internal/infra/postgres"
	pgmigrations "quizroom-service/internal/infra/postgres/migrations"
	infraredis "quizroom-service/internal/infra/redis"
	"quizroom-service/internal/store"
)

// Full round trip against real backends: quiz content in Postgres, game
// state replicated through Redis, the engine driving a two-player game from
// lobby to the final leaderboard.
func TestGameRoundTripEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	migrateQuizzes(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	loader := pgloader.NewQuizLoader(pool)
	if err := loader.SaveQuiz(ctx, sampleQuiz()); err != nil {
		t.Fatalf("seed quiz: %v", err)
	}

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	quizRepo := infraredis.NewQuizRepository(redisClient, loader, 5*time.Minute)
	st := infraredis.NewStore(redisClient, "qr", time.Hour)

	engine := app.NewGameEngine(st, quizRepo, app.NewTimerRegistryWithTick(5*time.Millisecond))
	rooms := app.NewRoomService(st, engine)

	settings := domain.DefaultRoomSettings()
	settings.TimePerQuestion = 3
	settings.ReviewDuration = 1
	settings.LeaderboardDuration = 1
	settings.TimeBonus = false
	settings.StreakEnabled = false

	room, _, err := rooms.CreateRoom(ctx, app.CreateRoomParams{
		Name:     "integration",
		HostID:   "host",
		HostName: "Hana",
		QuizID:   "quiz-1",
		Settings: &settings,
	})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if _, _, err := rooms.JoinRoom(ctx, app.JoinRoomParams{Code: room.Code, PlayerID: "p1", Name: "Ada"}); err != nil {
		t.Fatalf("join: %v", err)
	}

	if err := engine.StartGame(ctx, room.ID, "host"); err != nil {
		t.Fatalf("start: %v", err)
	}

	answer := domain.Answer{ChoiceID: "b"}
	for q := 0; q < 2; q++ {
		waitState(t, st, room.ID, func(s domain.GameState) bool {
			return s.Status == domain.GameAnswering && s.CurrentQuestionIndex == q
		})
		if _, err := engine.SubmitAnswer(ctx, room.ID, "host", answer); err != nil {
			t.Fatalf("host answer q%d: %v", q, err)
		}
		pa, err := engine.SubmitAnswer(ctx, room.ID, "p1", answer)
		if err != nil {
			t.Fatalf("p1 answer q%d: %v", q, err)
		}
		if !pa.Correct || pa.Points != 100 {
			t.Fatalf("q%d answer %+v", q, pa)
		}
	}

	final := waitState(t, st, room.ID, func(s domain.GameState) bool {
		return s.Status == domain.GameFinished
	})
	if len(final.Leaderboard) != 2 {
		t.Fatalf("leaderboard %+v", final.Leaderboard)
	}
	for _, entry := range final.Leaderboard {
		if entry.Score != 200 {
			t.Fatalf("entry %+v", entry)
		}
	}

	// The second load must come from the Redis cache, not Postgres.
	if _, err := quizRepo.GetQuiz(ctx, "quiz-1"); err != nil {
		t.Fatalf("cached quiz: %v", err)
	}
}

func waitState(t *testing.T, st *infraredis.Store, roomID string, ok func(domain.GameState) bool) domain.GameState {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	var state domain.GameState
	for time.Now().Before(deadline) {
		if err := st.Get(context.Background(), store.GamePath(roomID), &state); err == nil && ok(state) {
			return state
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for state, last: status=%s index=%d", state.Status, state.CurrentQuestionIndex)
	return state
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
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
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
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

func migrateQuizzes(t *testing.T, ctx context.Context, dsn string) {
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

func sampleQuiz() domain.Quiz {
	q := func(id string) domain.Question {
		return domain.Question{
			ID:         id,
			Type:       domain.QuestionSingle,
			Prompt:     "pick b",
			Difficulty: domain.DifficultyEasy,
			Choices: []domain.Choice{
				{ID: "a", Text: "no"},
				{ID: "b", Text: "yes", Correct: true},
				{ID: "c", Text: "also no"},
			},
		}
	}
	return domain.Quiz{
		ID:        "quiz-1",
		Title:     "integration",
		Questions: []domain.Question{q("q1"), q("q2")},
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
