package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/kelseyhightower/envconfig"
	"github.com/redis/go-redis/v9"

	"dmchat/internal/api"
	"dmchat/internal/bus"
	"dmchat/internal/chat"
	"dmchat/internal/db"
	"dmchat/internal/middleware"
	"dmchat/internal/user"
)

func main() {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		slog.Error("config", "err", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Event bus: redis when configured, so every instance sees every event;
	// in-process otherwise.
	var eventBus bus.Bus
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Error("redis connect", "addr", cfg.RedisAddr, "err", err)
			os.Exit(1)
		}
		rb := bus.NewRedis(client, logger)
		go func() {
			if err := rb.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("redis bus stopped", "err", err)
			}
		}()
		eventBus = rb
		logger.Info("connected to redis", "addr", cfg.RedisAddr)
	} else {
		eventBus = bus.NewMemory(logger)
	}

	// Storage: postgres in production, the in-memory store for dev runs.
	var store chat.Store
	var userRepo user.Repository
	if cfg.DevMode {
		memRepo := user.NewMemoryRepository()
		store = chat.NewMemoryStore(memRepo, eventBus)
		userRepo = memRepo
		logger.Warn("running with in-memory storage, nothing will persist")
	} else {
		if cfg.DBDSN == "" {
			logger.Error("DB_DSN is required outside dev mode")
			os.Exit(1)
		}
		database, err := db.New(cfg.DBDSN)
		if err != nil {
			logger.Error("postgres connect", "err", err)
			os.Exit(1)
		}
		if err := database.Migrate(); err != nil {
			logger.Error("migrate", "err", err)
			os.Exit(1)
		}
		store = chat.NewPostgresStore(database.Conn, eventBus)
		userRepo = user.NewPostgresRepository(database.Conn)
		logger.Info("connected to postgres")
	}

	userService := user.NewService(userRepo, cfg.JWTSecret)
	userHandler := user.NewHandler(userService)
	apiHandler := api.NewHandler(store, eventBus, userService, logger)
	auth := middleware.NewAuth(userService)

	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	r.Post("/sign-up", userHandler.SignUp)
	r.Post("/sign-in", userHandler.SignIn)

	r.Group(func(r chi.Router) {
		r.Use(auth.Resolve)
		r.Use(middleware.RequireUser)

		r.Get("/api/me", apiHandler.Me)
		r.Put("/api/me/picture", apiHandler.UpdatePicture)
		r.Get("/api/users/search", apiHandler.SearchUsers)

		r.Get("/api/chats", apiHandler.ListChats)
		r.Post("/api/chats", apiHandler.CreateChat)
		r.Get("/api/chats/{chatID}", apiHandler.GetChat)
		r.Delete("/api/chats/{chatID}", apiHandler.DeleteChat)
		r.Get("/api/chats/{chatID}/messages", apiHandler.ListMessages)
		r.Post("/api/chats/{chatID}/messages", apiHandler.CreateMessage)

		r.Get("/ws", apiHandler.ServeWS)
	})

	server := &http.Server{Addr: cfg.Addr, Handler: r}
	go func() {
		logger.Info("server starting", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listen", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "err", err)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
