package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/tessera-pm/tessera/internal/apikeys"
	"github.com/tessera-pm/tessera/internal/app"
	"github.com/tessera-pm/tessera/internal/auth"
	"github.com/tessera-pm/tessera/internal/authz"
	"github.com/tessera-pm/tessera/internal/courses"
	"github.com/tessera-pm/tessera/internal/feedback"
	"github.com/tessera-pm/tessera/internal/observability"
	"github.com/tessera-pm/tessera/internal/platform/cache"
	"github.com/tessera-pm/tessera/internal/platform/db"
	"github.com/tessera-pm/tessera/internal/projects"
	"github.com/tessera-pm/tessera/internal/roles"
	"github.com/tessera-pm/tessera/internal/session"
	"github.com/tessera-pm/tessera/internal/users"
	"github.com/tessera-pm/tessera/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, session cache disabled", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}
	}()

	authzRepo := authz.NewRepository(pool)
	authority := authz.NewAuthority(authzRepo)
	engine := authz.NewEngine(authzRepo)
	registry := authz.NewRegistry(engine)

	sessionStore := session.NewStore(session.NewRepository(pool), redisClient, cfg.SessionTTL, logger)

	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(authRepo, authority)
	authHandler := auth.NewHandler(logger, authService, sessionStore, cfg.SessionCookie, cfg.SessionTTL, cfg.IsProduction())

	apiKeyService := apikeys.NewService(apikeys.NewRepository(pool), authority, logger)
	apiKeyHandler := apikeys.NewHandler(logger, apiKeyService)

	metrics := observability.NewMetrics()

	guard := &authz.Guard{
		Sessions:   sessionStore,
		APIKeys:    apiKeyService,
		Authority:  authority,
		Policies:   registry,
		CookieName: cfg.SessionCookie,
		Logger:     logger,
		Decisions:  metrics,
	}

	rolesHandler := roles.NewHandler(logger, authority)
	usersHandler := users.NewHandler(logger, users.NewRepository(pool))
	coursesHandler := courses.NewHandler(logger, courses.NewRepository(pool))
	projectsHandler := projects.NewHandler(logger, projects.NewRepository(pool))
	feedbackHandler := feedback.NewHandler(logger, feedback.NewRepository(pool))

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, jobsClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		Guard:           guard,
		AuthHandler:     authHandler,
		APIKeysHandler:  apiKeyHandler,
		RolesHandler:    rolesHandler,
		UsersHandler:    usersHandler,
		CoursesHandler:  coursesHandler,
		ProjectsHandler: projectsHandler,
		FeedbackHandler: feedbackHandler,
		JobsHandler:     jobsHandler,
		Metrics:         metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("http server", slog.Any("error", err))
		os.Exit(1)
	}
}
