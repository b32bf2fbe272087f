package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"quizroom-service/internal/app"
	"quizroom-service/internal/config"
	"quizroom-service/internal/domain"
	"quizroom-service/internal/infra/memory"
	pgloader "quizroom-service/internal/infra/postgres"
	redisinfra "quizroom-service/internal/infra/redis"
	"quizroom-service/internal/store"
	transport "quizroom-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz room server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	if pool != nil {
		loader = pgloader.NewQuizLoader(pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	if redisClient != nil {
		quizRepo = redisinfra.NewQuizRepository(redisClient, loader, quizTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	// A single node can run fully in memory; Redis makes the state tree and
	// change feed shared across replicas.
	var stateStore store.Store
	if redisClient != nil {
		storeTTL := config.TTLDuration(cfg.Store.TTL, 6*time.Hour)
		stateStore = redisinfra.NewStore(redisClient, cfg.Store.Prefix, storeTTL)
	} else {
		stateStore = memory.NewStore()
	}

	timers := app.NewTimerRegistry()
	engine := app.NewGameEngine(stateStore, quizRepo, timers)
	rooms := app.NewRoomService(stateStore, engine)
	wsHandler := transport.NewWSHandler(rooms, engine, stateStore)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting quiz room service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleQuizzes seeds a demo quiz when no Postgres content store is
// configured.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:    "quiz-1",
			Title: "Warm-up",
			Questions: []domain.Question{
				{
					ID:         "q1",
					Type:       domain.QuestionSingle,
					Prompt:     "What is 2 + 2?",
					Difficulty: domain.DifficultyEasy,
					Choices: []domain.Choice{
						{ID: "c1", Text: "3"},
						{ID: "c2", Text: "4", Correct: true},
						{ID: "c3", Text: "5"},
						{ID: "c4", Text: "22"},
					},
				},
				{
					ID:         "q2",
					Type:       domain.QuestionBoolean,
					Prompt:     "The Pacific is the largest ocean.",
					Difficulty: domain.DifficultyEasy,
					Choices: []domain.Choice{
						{ID: "true", Text: "True", Correct: true},
						{ID: "false", Text: "False"},
					},
				},
				{
					ID:         "q3",
					Type:       domain.QuestionShortText,
					Prompt:     "Name the capital of France.",
					Difficulty: domain.DifficultyMedium,
					Answer:     "Paris",
				},
			},
		},
	}
}
