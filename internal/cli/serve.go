package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"quizblitz-service/internal/config"
	"quizblitz-service/internal/domain"
	"quizblitz-service/internal/infra/memory"
	mongoinfra "quizblitz-service/internal/infra/mongo"
	redisinfra "quizblitz-service/internal/infra/redis"
	"quizblitz-service/internal/notify"
	"quizblitz-service/internal/notify/telegram"
	"quizblitz-service/internal/quiz"
	"quizblitz-service/internal/timer"
	transport "quizblitz-service/internal/transport/http"
)

// NewServeCmd builds the CLI subcommand to start the server.
func NewServeCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the QuizBlitz session server",
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

	log, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer log.Sync()

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Storage. Mongo is the authoritative store; without a URI the service
	// runs on the in-memory store (dev/demo mode, state dies with the process).
	var (
		store   quiz.SessionStore
		events  quiz.EventLog
		loader  quiz.QuestionLoader
		watcher notify.Watcher
	)
	if cfg.Mongo.URI != "" {
		client, err := mongoinfra.Connect(ctx, cfg.Mongo.URI)
		if err != nil {
			return err
		}
		defer client.Disconnect(context.Background())
		db := client.Database(cfg.Mongo.Database)
		store = mongoinfra.NewSessionStore(db)
		eventLog := mongoinfra.NewEventLog(db)
		events = eventLog
		watcher = eventLog
		loader = mongoinfra.NewQuestionLoader(db)
		log.Info("using mongo store", zap.String("database", cfg.Mongo.Database))
	} else {
		memStore := memory.NewSessionStore()
		eventLog := memory.NewEventLog()
		store = memStore
		events = eventLog
		watcher = eventLog
		loader = memory.NewStaticQuestionLoader(map[string][]domain.Question{})
		log.Warn("mongo not configured, using in-memory store")
	}

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ttl := config.Duration(cfg.Redis.TTL, 10*time.Minute)
		loader = redisinfra.NewQuestionCache(client, loader, ttl)
		log.Info("question cache enabled", zap.String("addr", cfg.Redis.Addr))
	}

	scoring := quiz.DefaultScorePolicy()
	if cfg.Quiz.BasePoints > 0 {
		scoring.BasePoints = cfg.Quiz.BasePoints
	}
	if cfg.Quiz.MaxTimeBonus > 0 {
		scoring.MaxTimeBonus = cfg.Quiz.MaxTimeBonus
	}
	service := quiz.NewService(store, events, loader, scoring, log).
		WithDefaultTimerDuration(cfg.Quiz.DefaultTimerDuration)

	authority := timer.New(
		store,
		service,
		config.Duration(cfg.Timer.Tick, time.Second),
		config.Duration(cfg.Quiz.ResultsGap, 5*time.Second),
		log,
	)
	go authority.Run(ctx)

	if cfg.Telegram.Token != "" {
		bot, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
		if err != nil {
			return err
		}
		sender := telegram.NewSender(bot, service, log)
		notifier := notify.New(watcher, store, sender,
			config.Duration(cfg.Notifier.PollInterval, 10*time.Second), log)
		go notifier.Run(ctx)
		go sender.HandleUpdates(ctx)
		log.Info("telegram bridge enabled", zap.String("bot", bot.Self.UserName))
	} else {
		log.Info("telegram token not configured, notifier disabled")
	}

	pushInterval := config.Duration(cfg.SSE.PushInterval, time.Second)
	handler := transport.NewHandler(service, log)
	sse := transport.NewSSEHandler(service, pushInterval, log)
	hostWS := transport.NewHostWSHandler(service, pushInterval, log)
	router := transport.NewRouter(handler, sse, hostWS, log)

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: SSE streams stay open for the quiz lifetime.
	}

	go func() {
		log.Info("quizblitz service listening", zap.String("port", finalPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down")
	case <-ctx.Done():
		log.Info("context canceled, shutting down")
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}
