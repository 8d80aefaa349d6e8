package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/accountd-io/authserver/config"
	"github.com/accountd-io/authserver/internal/auth"
	"github.com/accountd-io/authserver/internal/db"
	"github.com/accountd-io/authserver/internal/handlers"
	"github.com/accountd-io/authserver/internal/mq"
	"github.com/accountd-io/authserver/internal/services"
	"github.com/accountd-io/authserver/internal/store"
)

// Server wraps the HTTP server, router, and shared resources.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	queue      *mq.MQ
}

// New constructs a Server with all collaborators wired explicitly.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	if strings.TrimSpace(cfg.Auth.AccessTokenSecret) == "" || strings.TrimSpace(cfg.Auth.RefreshTokenSecret) == "" {
		return nil, errors.New("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET are required")
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	queue, err := newQueue(ctx, cfg)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	var notifier services.Notifier
	if queue != nil {
		notifier = services.NewEventPublisher(queue, cfg.Events.Channel)
	}

	accountRepo := store.NewAccountRepository(dbConn)
	hasher := auth.NewPasswordHasher(cfg.Auth.BcryptCost)
	codec := auth.NewTokenCodec(
		cfg.Auth.AccessTokenSecret,
		cfg.Auth.RefreshTokenSecret,
		cfg.Auth.AccessTokenTTL,
		cfg.Auth.RefreshTokenTTL,
	)

	authService := services.NewAuthService(accountRepo, hasher, codec, notifier, services.AuthOptions{
		RevokeOnPasswordChange: cfg.Auth.RevokeOnPasswordChange,
		TransactionalSignup:    cfg.Events.Transactional,
	})

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, authService, codec)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		queue:      queue,
	}, nil
}

func newQueue(ctx context.Context, cfg config.Config) (*mq.MQ, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Events.Backend)) {
	case "", "none":
		return nil, nil
	case "rabbitmq":
		client, err := mq.NewRabbitMQClient(cfg.RabbitMQ)
		if err != nil {
			return nil, err
		}
		return mq.New(client), nil
	case "pubsub":
		client, err := mq.NewPubSubClient(ctx, cfg.PubSub)
		if err != nil {
			return nil, err
		}
		return mq.New(client), nil
	default:
		return nil, fmt.Errorf("unknown events backend %q", cfg.Events.Backend)
	}
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown attempts a graceful shutdown and closes shared resources.
func (s *Server) Shutdown() error {
	if s.db != nil {
		_ = s.db.Close()
	}
	if s.queue != nil {
		_ = s.queue.Close()
	}
	return s.httpServer.Close()
}
