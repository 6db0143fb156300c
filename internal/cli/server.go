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

	"livequiz-service/internal/config"
	"livequiz-service/internal/domain"
	"livequiz-service/internal/game"
	"livequiz-service/internal/infra/memory"
	pgstore "livequiz-service/internal/infra/postgres"
	redisfeed "livequiz-service/internal/infra/redis"
	transport "livequiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the live quiz server",
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

	// The change feed goes through Redis when configured, so several
	// instances see each other's mutations. A single instance can run on
	// the in-process feed alone.
	var feed interface {
		game.Feed
		game.Publisher
	} = memory.NewFeed()
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		feed = redisfeed.NewFeed(redisClient)
	}

	var repo game.Repository
	var rankings *game.Aggregator
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		store := pgstore.NewStore(pool, feed)
		repo = store
		rankings = game.NewAggregator(store)
	} else {
		store := memory.NewStore(feed)
		seedDemoGame(store)
		repo = store
		rankings = game.NewAggregator(store)
		log.Printf("postgres not configured, running on the in-memory store with demo data")
	}

	wsHandler := transport.NewWSHandler(repo, feed, rankings)

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
		log.Printf("starting livequiz service on :%s", finalPort)
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

	shutdownTimeout := config.Duration(cfg.Server.ShutdownTimeout, 5*time.Second)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// seedDemoGame loads a small quiz and an open game so the service is
// playable without a database.
func seedDemoGame(store *memory.Store) {
	quiz := domain.Quiz{
		ID:          "quiz-demo",
		Title:       "General knowledge",
		Description: "A short demo quiz",
		Questions: []domain.QuizQuestion{
			{
				QuizID:       "quiz-demo",
				Order:        0,
				AnswersOrder: []string{"3", "4", "5"},
				Question: domain.Question{
					ID:               "q1",
					Prompt:           "What is 2 + 2?",
					CorrectAnswer:    "4",
					IncorrectAnswers: []string{"3", "5"},
				},
			},
			{
				QuizID:       "quiz-demo",
				Order:        1,
				AnswersOrder: []string{"Paris", "Lyon", "Marseille"},
				Question: domain.Question{
					ID:               "q2",
					Prompt:           "What is the capital of France?",
					CorrectAnswer:    "Paris",
					IncorrectAnswers: []string{"Lyon", "Marseille"},
				},
			},
		},
	}
	store.AddQuiz(quiz)
	store.AddGame(domain.Game{
		ID:     "game-demo",
		HostID: "host-1",
		QuizID: quiz.ID,
		Title:  "Demo game",
	})
}
