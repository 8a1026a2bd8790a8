package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/support-desk/internal/api/http"
	"github.com/spec-kit/support-desk/internal/api/http/handlers"
	"github.com/spec-kit/support-desk/internal/auth"
	"github.com/spec-kit/support-desk/internal/config"
	"github.com/spec-kit/support-desk/internal/events"
	"github.com/spec-kit/support-desk/internal/observability"
	"github.com/spec-kit/support-desk/internal/persistence"
	"github.com/spec-kit/support-desk/internal/realtime"
	"github.com/spec-kit/support-desk/internal/repository"
	"github.com/spec-kit/support-desk/internal/repository/memory"
	"github.com/spec-kit/support-desk/internal/service"
	"github.com/spec-kit/support-desk/internal/worker"
)

// stores groups the repositories services are built from.
type stores struct {
	tx          repository.TxManager
	users       repository.UserRepository
	tickets     repository.TicketRepository
	chats       repository.ChatRepository
	messages    repository.MessageRepository
	attachments repository.AttachmentRepository
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observability.NewMetrics()
	readiness := map[string]handlers.Pinger{}

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	var repos stores
	if pool := pg.PoolHandle(); pool != nil {
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pool, cfg.Postgres.MigrationsDir, logger); err != nil {
				logger.Fatal("failed to run migrations", zap.Error(err))
			}
		}
		repos = stores{
			tx:          repository.NewTxManager(pool),
			users:       repository.NewUserRepository(pool),
			tickets:     repository.NewTicketRepository(pool),
			chats:       repository.NewChatRepository(pool),
			messages:    repository.NewMessageRepository(pool),
			attachments: repository.NewAttachmentRepository(pool),
		}
		readiness["postgres"] = pg
	} else {
		store := memory.NewStore()
		repos = stores{
			tx:          store,
			users:       store.Users(),
			tickets:     store.Tickets(),
			chats:       store.Chats(),
			messages:    store.Messages(),
			attachments: store.Attachments(),
		}
	}

	var publisher realtime.Publisher = realtime.Noop{}
	if cfg.Realtime.Enabled {
		redis := persistence.NewRedis(ctx, cfg.Redis, logger)
		defer redis.Close()
		publisher = realtime.NewRedisPublisher(redis.Client)
		readiness["redis"] = redis
	}

	dispatcher := events.NewInMemoryDispatcher()
	worker.StartNotificationWorker(service.NewNotificationService(dispatcher, publisher, logger, cfg.Realtime), cfg.Realtime, logger)

	location, err := cfg.Queue.Location()
	if err != nil {
		logger.Fatal("invalid queue timezone", zap.Error(err))
	}

	assignmentService := service.NewAssignmentService(service.AssignmentDependencies{
		TxManager:        repos.tx,
		UserRepo:         repos.users,
		TicketRepo:       repos.tickets,
		ChatRepo:         repos.chats,
		Evaluator:        service.NewEvaluator(location, cfg.Queue.ShiftEndBuffer()),
		Dispatcher:       dispatcher,
		Logger:           logger,
		Metrics:          metrics,
		MaxClaimAttempts: cfg.Queue.MaxClaimAttempts,
	})
	ticketService := service.NewTicketService(service.TicketDependencies{
		TxManager:      repos.tx,
		UserRepo:       repos.users,
		TicketRepo:     repos.tickets,
		ChatRepo:       repos.chats,
		AttachmentRepo: repos.attachments,
		Dispatcher:     dispatcher,
		Logger:         logger,
	})
	chatService := service.NewChatService(service.ChatDependencies{
		TxManager:   repos.tx,
		UserRepo:    repos.users,
		ChatRepo:    repos.chats,
		MessageRepo: repos.messages,
		Dispatcher:  dispatcher,
		Logger:      logger,
		Config:      cfg.Chat,
	})

	var assigner auth.AssignmentTrigger
	if cfg.Queue.AssignOnAuthEnabled {
		assigner = assignmentService
	}
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, 0)
	authMiddleware := auth.NewAuthMiddleware(tokens, cfg.Auth.CookieName, assigner, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ErrorHandler: httptransport.ErrorHandler(logger),
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, readiness),
		Tickets:        handlers.NewTicketsHandler(ticketService, assignmentService),
		Chats:          handlers.NewChatsHandler(chatService),
		AuthMiddleware: authMiddleware,
		Metrics:        metrics,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
