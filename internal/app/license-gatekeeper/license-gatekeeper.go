package licensegatekeeper

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/license-gatekeeper/internal/config"
	"github.com/magabrotheeeer/license-gatekeeper/internal/lib/jwt"
	"github.com/magabrotheeeer/license-gatekeeper/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/license-gatekeeper/internal/limiter"
	"github.com/magabrotheeeer/license-gatekeeper/internal/migrations"
	adminservice "github.com/magabrotheeeer/license-gatekeeper/internal/services/admin"
	verifyservice "github.com/magabrotheeeer/license-gatekeeper/internal/services/verification"
	"github.com/magabrotheeeer/license-gatekeeper/internal/storage/repository"
)

type App struct {
	server     *http.Server
	logger     *slog.Logger
	db         *repository.Storage
	keyLimiter *limiter.KeyLimiter
	amqpConn   *amqp.Connection
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	if err = migrations.Run(db.DB, "./migrations"); err != nil {
		return nil, err
	}

	keyLimiter, err := limiter.New(ctx, cfg.RedisConnection, cfg.RateLimit)
	if err != nil {
		return nil, err
	}

	// Публикация событий подписок необязательна: без rabbit_url сервис
	// работает, переходы просто не анонсируются.
	var amqpConn *amqp.Connection
	var verifyEvents verifyservice.Publisher
	var adminEvents adminservice.Publisher
	if cfg.RabbitURL != "" {
		amqpConn, err = rabbitmq.Connect(cfg.RabbitURL)
		if err != nil {
			return nil, err
		}
		ch, err := rabbitmq.SetupChannel(amqpConn)
		if err != nil {
			return nil, err
		}
		publisher := rabbitmq.NewEventPublisher(ch)
		verifyEvents = publisher
		adminEvents = publisher
	}

	verificationService := verifyservice.NewVerificationService(db, verifyEvents, logger)
	overrideService := adminservice.NewOverrideService(db, adminEvents, logger)
	maker := jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, verificationService, overrideService, db, keyLimiter, maker)

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server:     srv,
		logger:     logger,
		db:         db,
		keyLimiter: keyLimiter,
		amqpConn:   amqpConn,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		a.db.DB.Close()
		_ = a.keyLimiter.Close()
		if a.amqpConn != nil {
			_ = a.amqpConn.Close()
		}
		return err
	}
}
