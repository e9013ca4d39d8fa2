package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"fanout/internal/config"
	"fanout/internal/constants"
	"fanout/internal/handler"
	"fanout/internal/lifecycle"
	"fanout/internal/lock"
	"fanout/internal/logger"
	"fanout/pkg/bootstrap"
	apperrors "fanout/pkg/errors"
	"fanout/pkg/health"
	"fanout/pkg/metrics"
	"fanout/pkg/middleware"
	"fanout/pkg/models"
	"fanout/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	dbConnector    *bootstrap.DatabaseConnector
	registry       *handler.Registry
	redis          *redis.Client
	lockStore      lock.Store
	locks          *lock.Manager
	listener       *lifecycle.Listener
	host           *lifecycle.Host
	tracerProvider *tracing.TracerProvider
	healthRegistry *health.CheckerRegistry
	router         *gin.Engine
	server         *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger, registry *handler.Registry) *App {
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
		registry:    registry,
		host:        lifecycle.NewHost(),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	initType, err := lifecycle.ParseInitializationType(a.Config.InitializationType)
	if err != nil {
		return err
	}

	tp, err := tracing.Init(a.Config.Tracing,
		tracing.IdentityFromConfig(a.Config, initType.String(), initType.Consumes()))
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.RegisterProducerMetrics()
	metrics.RegisterConsumerMetrics()
	if a.Config.CircuitBreaker.Enabled {
		metrics.RegisterCircuitBreakerMetrics()
	}

	if err := a.InitAWS(ctx); err != nil {
		return fmt.Errorf("failed to initialize AWS clients: %w", err)
	}

	if initType.Consumes() {
		if err := a.initLocks(ctx); err != nil {
			return fmt.Errorf("failed to initialize lock store: %w", err)
		}
		if !a.registry.HasDefault() {
			if err := a.registry.HandleDefault(a.logMessage); err != nil {
				return err
			}
		}
	}

	listener, err := lifecycle.NewListener(lifecycle.Deps{
		Config:         a.Config,
		Logger:         a.Logger,
		Registry:       a.registry,
		Publisher:      a.SNS,
		Queue:          a.SQS,
		QueueInspector: a.SQS,
		Subscriptions:  a.SNS,
		Locks:          a.locks,
	})
	if err != nil {
		return err
	}
	a.listener = listener

	a.initHealth(initType)
	a.initRouter()

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      a.router,
		ReadTimeout:  a.Config.Server.ReadTimeoutSeconds * time.Second,
		WriteTimeout: a.Config.Server.WriteTimeoutSeconds * time.Second,
	}
	return nil
}

func (a *App) initLocks(ctx context.Context) error {
	store, rdb, err := a.dbConnector.InitLockStore(ctx)
	if err != nil {
		return err
	}
	a.lockStore = store
	a.redis = rdb
	a.locks = lock.NewManager(store, a.Config.Lock.KeyPrefix, a.Config.Lock.TTL, a.Logger)
	return nil
}

// logMessage is the fallback handler when the host registers none.
func (a *App) logMessage(ctx context.Context, msg *models.InboundMessage) error {
	a.Logger.InfowCtx(ctx, "Message received",
		"body", msg.RawBody,
		"attributes", msg.RawAttributes,
		"receive_count", msg.ReceiveCount,
	)
	return nil
}

func (a *App) initHealth(initType lifecycle.InitializationType) {
	a.healthRegistry = health.NewCheckerRegistry()

	if a.redis != nil {
		a.healthRegistry.Register(health.NewRedisChecker(a.redis))
	}
	if cbStore, ok := a.lockStore.(*lock.CircuitBreakerStore); ok {
		a.healthRegistry.Register(health.NewCircuitBreakerChecker("lock_circuit_breaker", cbStore))
	}
	if initType.Consumes() {
		a.healthRegistry.Register(health.NewQueueChecker(a.SQSClient, a.queueURL))
	}
	if initType.Polls() {
		a.healthRegistry.Register(health.NewConsumerChecker(consumerPoller{host: a.host}))
	}
}

func (a *App) queueURL() string {
	if c, ok := a.host.Consumer(); ok {
		return c.QueueURL()
	}
	return ""
}

// consumerPoller looks the consumer up on every check since it is attached
// only once the listener has started.
type consumerPoller struct {
	host *lifecycle.Host
}

func (p consumerPoller) IsReceiving() bool {
	c, ok := p.host.Consumer()
	return ok && c.IsReceiving()
}

func (p consumerPoller) Err() error {
	if c, ok := p.host.Consumer(); ok {
		return c.Err()
	}
	return nil
}

func (a *App) initRouter() {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if a.Config.Tracing.Enabled {
		router.Use(middleware.TracingMiddleware(a.Config.Service.Name, a.tracerProvider.Provider()))
	}

	router.Use(middleware.RecoveryMiddleware(a.Logger))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggerMiddleware(a.Logger))

	router.GET("/health", a.handleHealth)
	router.GET("/status", a.handleStatus)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	a.router = router
}

func (a *App) handleHealth(c *gin.Context) {
	h := a.healthRegistry.Check(c.Request.Context())
	statusCode := http.StatusOK
	if h.Status == health.StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}
	c.JSON(statusCode, h)
}

type statusResponse struct {
	Service            string          `json:"service"`
	Environment        string          `json:"environment"`
	InitializationType string          `json:"initialization_type"`
	Producer           *producerStatus `json:"producer,omitempty"`
	Consumer           *consumerStatus `json:"consumer,omitempty"`
	Events             []string        `json:"events"`
	DefaultHandler     bool            `json:"default_handler"`
}

type producerStatus struct {
	TopicARN string `json:"topic_arn"`
}

type consumerStatus struct {
	Queue     string                 `json:"queue"`
	QueueURL  string                 `json:"queue_url"`
	State     string                 `json:"state"`
	HeldLocks int                    `json:"held_locks"`
	LastError map[string]interface{} `json:"last_error,omitempty"`
}

func (a *App) status() statusResponse {
	resp := statusResponse{
		Service:            a.Config.Service.Name,
		Environment:        a.Config.Service.Environment,
		InitializationType: a.listener.InitializationType().String(),
		Events:             a.registry.Events(),
		DefaultHandler:     a.registry.HasDefault(),
	}

	if p, ok := a.host.Producer(); ok {
		resp.Producer = &producerStatus{TopicARN: p.TopicARN()}
	}
	if c, ok := a.host.Consumer(); ok {
		cs := &consumerStatus{
			Queue:    c.QueueName(),
			QueueURL: c.QueueURL(),
			State:    c.State().String(),
		}
		if a.locks != nil {
			cs.HeldLocks = a.locks.Held()
		}
		if err := c.Err(); err != nil {
			cs.LastError = apperrors.ToErrorResponse(err)
		}
		resp.Consumer = cs
	}
	return resp
}

func (a *App) handleStatus(c *gin.Context) {
	if a.listener == nil {
		err := apperrors.ErrNotInitialized.WithMessage("application is not initialized")
		c.JSON(apperrors.ToHTTPStatus(err), apperrors.ToErrorResponse(err))
		return
	}
	c.JSON(http.StatusOK, a.status())
}

// Run starts the admin server and the listener, then blocks until ctx is
// cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		// The polling loop lives until OnStop, not until gCtx ends.
		if err := a.listener.OnStart(context.WithoutCancel(gCtx), a.host); err != nil {
			return fmt.Errorf("failed to start messaging: %w", err)
		}
		<-gCtx.Done()
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		return a.Shutdown(context.WithoutCancel(gCtx))
	})

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, constants.ShutdownTimeout)
	defer cancel()

	additionalShutdown := func(ctx context.Context) []error {
		var errs []error

		if a.listener != nil {
			if err := a.listener.OnStop(ctx, a.host); err != nil {
				errs = append(errs, fmt.Errorf("messaging shutdown error: %w", err))
			}
		}

		if a.server != nil {
			if err := a.server.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("HTTP server shutdown error: %w", err))
			}
		}

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}

		return errs
	}

	return a.Base.Shutdown(shutdownCtx, additionalShutdown)
}
