package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"course-service/internal/config"
	"course-service/internal/course"
	"course-service/internal/db"
	"course-service/internal/health"
	"course-service/internal/kafka"
	"course-service/internal/logger"
	"course-service/internal/messaging"
	"course-service/internal/metrics"
	"course-service/internal/middleware"
	"course-service/internal/student"
	"course-service/internal/telemetry"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/uptrace/bun"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// eventProducer is a course.Producer that owns a connection.
type eventProducer interface {
	course.Producer
	Close() error
}

type App struct {
	config       *config.Config
	router       chi.Router
	server       *http.Server
	grpcServer   *grpc.Server
	healthServer *grpchealth.Server
	db           *bun.DB
	producer     eventProducer
	telemetry    *telemetry.Telemetry
	health       *health.Handler
	logger       *slog.Logger
}

// New loads configuration from the environment and wires the application.
func New() (*App, error) {
	slogLogger := logger.NewWithServiceContext(ServiceName, Version)

	// Set as default logger so slog.Info() uses the same handler
	slog.SetDefault(slogLogger)

	slogLogger.Info("initializing application")

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	slogLogger.Info("config loaded",
		"env", cfg.Env,
		"database_driver", cfg.Database.Driver,
		"events_driver", cfg.Events.Driver,
		"max_students_per_course", cfg.Courses.MaxStudentsPerCourse,
	)

	return NewWithConfig(context.Background(), cfg, slogLogger)
}

// NewWithConfig wires the application from an already loaded config.
func NewWithConfig(ctx context.Context, cfg *config.Config, slogLogger *slog.Logger) (*App, error) {
	tel, err := telemetry.Init(ctx, cfg.Telemetry, ServiceName, Version, slogLogger)
	if err != nil {
		return nil, err
	}

	database, err := db.New(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	course.RegisterModels(database)
	if err := db.RunMigrations(ctx, database, course.Models()...); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := tel.Metrics.Database.RegisterDB(database.DB, tel.Meter); err != nil {
		slogLogger.Warn("failed to register database metrics", "error", err)
	}
	if err := tel.Metrics.Health.RegisterServiceInfo(tel.Meter, ServiceName, Version, cfg.Env); err != nil {
		slogLogger.Warn("failed to register service info metric", "error", err)
	}

	app := &App{
		config:    cfg,
		router:    chi.NewRouter(),
		db:        database,
		telemetry: tel,
		logger:    slogLogger,
	}

	producer, err := newProducer(cfg.Events, slogLogger, tel.Metrics)
	if err != nil {
		// Events are best-effort; the API keeps working without a broker
		slogLogger.Warn("failed to initialize event producer, events disabled",
			"driver", cfg.Events.Driver, "error", err)
	} else if producer != nil {
		app.producer = producer
		slogLogger.Info("event producer initialized", "driver", cfg.Events.Driver)
	}

	app.health = health.NewHandler(tel.Metrics.Health)
	app.health.AddCheck("database", database.PingContext)
	if checker, ok := app.producer.(interface{ HealthCheck(context.Context) error }); ok {
		app.health.AddCheck("events", checker.HealthCheck)
	}
	if err := tel.Metrics.Health.RegisterDependencies(tel.Meter, app.health.Names()...); err != nil {
		slogLogger.Warn("failed to register dependency metrics", "error", err)
	}

	app.setupRoutes()

	if cfg.Grpc.Port != "" {
		app.grpcServer, app.healthServer = NewGRPCServer(tel.Metrics.Requests)
	}

	slogLogger.Info("application initialized successfully")

	return app, nil
}

func newProducer(cfg config.EventsConfig, slogLogger *slog.Logger, m *metrics.Metrics) (eventProducer, error) {
	switch cfg.Driver {
	case "nats":
		return messaging.NewProducer(cfg.NATS.URL, cfg.NATS.Subject, slogLogger, m)
	case "kafka":
		return kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, slogLogger, m)
	default:
		return nil, nil
	}
}

func (a *App) setupRoutes() {
	a.router.Use(chimiddleware.RequestID)
	a.router.Use(chimiddleware.RealIP)
	a.router.Use(chimiddleware.Recoverer)
	a.router.Use(chimiddleware.StripSlashes)
	a.router.Use(a.telemetry.Metrics.Requests.Middleware)
	if len(a.config.Server.CORSOrigins) > 0 {
		a.router.Use(middleware.CORS(a.config.Server.CORSOrigins))
	}

	a.health.RegisterRoutes(a.router)

	m := a.telemetry.Metrics

	studentRepo := student.NewRepository(a.db, m)
	studentService := student.NewService(studentRepo)
	studentHandler := student.NewHandler(studentService, a.logger, m)

	// A nil interface, not a nil *Producer, when events are disabled
	var producer course.Producer
	if a.producer != nil {
		producer = a.producer
	}

	courseRepo := course.NewRepository(a.db, m)
	policy := course.NewEnrollmentPolicy(a.config.Courses.MaxStudentsPerCourse)
	courseService := course.NewService(courseRepo, policy, producer, a.logger, m)
	courseHandler := course.NewHandler(courseService, a.logger, m)

	a.router.Route("/api/v1", func(r chi.Router) {
		studentHandler.RegisterRoutes(r)
		courseHandler.RegisterRoutes(r)
	})
}

// Handler exposes the HTTP router, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.router
}

// StartHealthChecks refreshes the dependency gauges until ctx is done.
func (a *App) StartHealthChecks(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		a.checkDependencies(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (a *App) checkDependencies(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	err := a.db.PingContext(checkCtx)
	a.telemetry.Metrics.Health.RecordDependencyCheck(checkCtx, "database", time.Since(start), err)
	if err != nil {
		a.logger.Warn("database health check failed", "error", err)
		if a.healthServer != nil {
			a.healthServer.SetServingStatus(grpcServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
		}
		return
	}
	if a.healthServer != nil {
		a.healthServer.SetServingStatus(grpcServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	}
}

func (a *App) Run() error {
	if a.grpcServer != nil {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%s", a.config.Grpc.Port))
		if err != nil {
			return fmt.Errorf("failed to listen on gRPC port: %w", err)
		}
		go func() {
			a.logger.Info("gRPC health server starting", "port", a.config.Grpc.Port)
			if err := a.grpcServer.Serve(lis); err != nil {
				a.logger.Error("gRPC server error", "error", err)
			}
		}()
	}

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%s", a.config.Server.Port),
		Handler:      a.router,
		ReadTimeout:  time.Duration(a.config.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(a.config.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(a.config.Server.IdleTimeout) * time.Second,
	}

	a.logger.Info("server starting", "port", a.config.Server.Port)
	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down servers")

	var errs []error

	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}

	if a.grpcServer != nil {
		a.healthServer.Shutdown()
		a.grpcServer.GracefulStop()
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("event producer close error", "error", err)
		}
	}

	if err := a.telemetry.Shutdown(ctx, a.logger); err != nil {
		a.logger.Error("telemetry shutdown error", "error", err)
	}

	db.Close(a.db)

	return errors.Join(errs...)
}
