package botgate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/botgate/internal/botapi"
	"github.com/magabrotheeeer/botgate/internal/cache"
	"github.com/magabrotheeeer/botgate/internal/config"
	"github.com/magabrotheeeer/botgate/internal/grpc/client"
	"github.com/magabrotheeeer/botgate/internal/http/handlers/session/logoutall"
	"github.com/magabrotheeeer/botgate/internal/lib/jwt"
	"github.com/magabrotheeeer/botgate/internal/lib/sl"
	"github.com/magabrotheeeer/botgate/internal/lib/tokenhash"
	"github.com/magabrotheeeer/botgate/internal/metrics"
	"github.com/magabrotheeeer/botgate/internal/migrations"
	"github.com/magabrotheeeer/botgate/internal/rabbitmq"
	"github.com/magabrotheeeer/botgate/internal/services/catalog"
	"github.com/magabrotheeeer/botgate/internal/services/commands"
	"github.com/magabrotheeeer/botgate/internal/services/dispatcher"
	"github.com/magabrotheeeer/botgate/internal/services/identity"
	"github.com/magabrotheeeer/botgate/internal/services/magictoken"
	"github.com/magabrotheeeer/botgate/internal/services/notifier"
	"github.com/magabrotheeeer/botgate/internal/services/payment"
	"github.com/magabrotheeeer/botgate/internal/services/session"
	"github.com/magabrotheeeer/botgate/internal/storage/redisstore"
	"github.com/magabrotheeeer/botgate/internal/storage/repository"
)

// App HTTP-приложение botgate.
type App struct {
	server     *http.Server
	logger     *slog.Logger
	db         *repository.Storage
	cache      *cache.Cache
	dispatcher *dispatcher.Dispatcher
	amqpConn   *amqp.Connection
	sessions   *client.SessionClient
}

// New собирает зависимости и HTTP-сервер.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "botgate.New"

	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	a := &App{logger: logger, db: db}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	var tierCache catalog.Cache
	if cfg.AddressRedis != "" {
		a.cache, err = cache.InitServer(ctx, cfg.RedisConnection)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		tierCache = a.cache
	}

	var tokenStore magictoken.TokenStore = db
	if cfg.MagicToken.Store == "redis" {
		tokenStore = redisstore.NewTokenStore(a.cache.Db, cfg.MagicToken.Retention)
	}
	hasher, err := tokenhash.New(cfg.MagicToken.DigestKey)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	codec := jwt.NewJWTMaker(cfg.Session.SecretKey, cfg.Session.TTL)
	var (
		resolver session.CredentialResolver = session.NewResolver(codec, db, cfg.CookieName, collector)
		rotator  logoutall.Rotator          = session.NewRotator(db)
	)
	if cfg.GRPCAuthAddress != "" {
		a.sessions, err = client.NewSessionClient(cfg.GRPCAuthAddress)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		resolver, rotator = a.sessions, a.sessions
		logger.Info("using remote session service", slog.String("address", cfg.GRPCAuthAddress))
	}

	var publisher payment.EventPublisher
	if cfg.RabbitMQURL != "" {
		a.amqpConn, err = rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		ch, err := rabbitmq.SetupChannel(a.amqpConn, rabbitmq.PaymentsExchange, rabbitmq.GetPaymentQueues())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		publisher = rabbitmq.NewPublisher(ch)
	}

	api := botapi.NewClient(cfg.BotAPI.BaseURL, cfg.BotAPI.Token, cfg.BotAPI.Timeout, collector)
	ntf := notifier.New(api, cfg.ProviderToken, cfg.SupportWindow, logger)
	catalogService := catalog.New(db, tierCache, cfg.TierCacheTTL, logger)
	tokens := magictoken.New(tokenStore, db, hasher, cfg.MagicToken.TTL, collector)
	engine := payment.New(db, catalogService, ntf, publisher, collector, logger)

	router := commands.New(commands.Deps{
		Identities:    identity.New(db, logger),
		Tokens:        tokens,
		Checkout:      engine,
		Subscriptions: catalogService,
		Rotator:       rotator,
		Messenger:     ntf,
	}, cfg.PublicBaseURL, logger)

	a.dispatcher, err = dispatcher.New(engine, router, dispatcher.Options{
		MaxInFlight:       cfg.MaxInFlight,
		ProcessingTimeout: cfg.ProcessingTimeout,
		QueueTimeout:      cfg.QueueTimeout,
	}, collector, logger)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	r := chi.NewRouter()
	RegisterRoutes(r, cfg, logger, Deps{
		Dispatcher: a.dispatcher,
		Tokens:     tokens,
		Sessions:   codec,
		Resolver:   resolver,
		Rotator:    rotator,
		Catalog:    catalogService,
		DB:         db.DB,
		Metrics:    metrics.Handler(reg),
	})

	a.server = &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      r,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return a, nil
}

// Run обслуживает запросы до отмены ctx, затем дожидается фоновой обработки обновлений.
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

	var runErr error
	select {
	case runErr = <-errCh:
	case <-ctx.Done():
		a.logger.Info("shutting down HTTP server gracefully")
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		runErr = a.server.Shutdown(timeoutCtx)
		if err := a.dispatcher.Shutdown(timeoutCtx); err != nil {
			a.logger.Error("dispatcher did not drain", sl.Err(err))
		}
	}
	a.close()
	return runErr
}

func (a *App) close() {
	if a.sessions != nil {
		if err := a.sessions.Close(); err != nil {
			a.logger.Error("failed to close session client", sl.Err(err))
		}
	}
	if a.amqpConn != nil {
		if err := a.amqpConn.Close(); err != nil {
			a.logger.Error("failed to close amqp connection", sl.Err(err))
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Error("failed to close redis", sl.Err(err))
		}
	}
	if err := a.db.DB.Close(); err != nil {
		a.logger.Error("failed to close database", sl.Err(err))
	}
}
