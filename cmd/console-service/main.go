package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/metrohr-console/internal/analysis"
	"github.com/cuongbtq/metrohr-console/internal/api/handler"
	"github.com/cuongbtq/metrohr-console/internal/api/router"
	"github.com/cuongbtq/metrohr-console/internal/api/storage"
	"github.com/cuongbtq/metrohr-console/internal/config"
	"github.com/cuongbtq/metrohr-console/internal/hrapi"
	"github.com/cuongbtq/metrohr-console/internal/overview"
	"github.com/cuongbtq/metrohr-console/internal/realtime"
	"github.com/cuongbtq/metrohr-console/internal/training"
	"github.com/cuongbtq/metrohr-console/shared/logger"
	"github.com/cuongbtq/metrohr-console/shared/postgresql"
	"github.com/cuongbtq/metrohr-console/shared/rabbitmq"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

// the store both the workflow and the history endpoint use
type submissionStore interface {
	analysis.HandleStore
	handler.HistoryStore
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("CONSOLE_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/console-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting console service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("session", cfg.Session.Key),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hrClient, err := initBackend(&cfg.Backend, appLogger)
	if err != nil {
		return fmt.Errorf("failed to initialize backend client: %w", err)
	}

	var (
		dbClient *postgresql.Client
		store    submissionStore = storage.NewMemoryStorage()
	)
	if cfg.Database.Enabled {
		dbClient, err = initPostgreSQL(&cfg.Database, appLogger.Component("postgresql"))
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer dbClient.Close()
		store = storage.NewStorage(dbClient)
		appLogger.Info("Database connection established")
	} else {
		appLogger.Warn("Database disabled, job handles will not survive a restart")
	}

	var rabbitClient *rabbitmq.Client
	if cfg.RabbitMQ.Enabled {
		rabbitClient, err = initRabbitMQ(&cfg.RabbitMQ, appLogger.Component("rabbitmq"))
		if err != nil {
			return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		defer rabbitClient.Close()
		appLogger.Info("RabbitMQ connection established")
	} else {
		appLogger.Warn("RabbitMQ disabled, jobs only update on manual refresh")
	}

	hub := realtime.NewHub(0)
	defer hub.Close()

	workflow := analysis.NewWorkflow(&analysis.Config{
		Logger:     appLogger.Component("workflow"),
		Backend:    hrClient,
		Hub:        hub,
		Store:      store,
		SessionKey: cfg.Session.Key,
	})
	defer workflow.Close()

	if _, err := workflow.Restore(ctx); err != nil {
		appLogger.Warn("Failed to restore job handle", slog.Any("error", err))
	}

	widget := overview.New(&overview.Config{
		Logger:       appLogger.Component("overview"),
		Backend:      hrClient,
		Hub:          hub,
		PollInterval: cfg.Overview.PollInterval,
		ToastLimit:   cfg.Overview.ToastLimit,
		ToastTTL:     cfg.Overview.ToastTTL,
	})

	deps := &handler.Dependencies{
		Logger:     appLogger.Component("http"),
		Workflow:   workflow,
		Overview:   widget,
		Training:   training.NewService(hrClient, appLogger.Component("training")),
		History:    store,
		Hub:        hub,
		SessionKey: cfg.Session.Key,

		AllowedOrigins: cfg.Server.AllowedOrigins,
	}
	if dbClient != nil {
		deps.Database = dbClient
	}
	if rabbitClient != nil {
		deps.Broker = rabbitClient
	}

	r := initRouter(cfg.App.Environment, deps)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	router.CloseStreamsOnShutdown(srv, hub)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		appLogger.Info("Starting HTTP server",
			slog.String("address", addr),
			slog.Duration("read_timeout", cfg.Server.ReadTimeout),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		appLogger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("Server forced to shutdown", slog.Any("error", err))
			return err
		}
		return nil
	})

	g.Go(func() error {
		return widget.Run(gctx)
	})

	if rabbitClient != nil {
		source := realtime.NewSource(rabbitClient, hub, appLogger.Component("realtime"))
		g.Go(func() error {
			return source.Run(gctx)
		})
	}

	appLogger.Info("Console service is running", slog.String("address", addr))

	if err := g.Wait(); err != nil {
		appLogger.Error("Console service stopped with error", slog.Any("error", err))
		return err
	}

	appLogger.Info("Server shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// initBackend builds the Metro HR REST client. A 401 is logged; the browser
// is told to re-authenticate by the handlers.
func initBackend(cfg *config.BackendConfig, appLogger *logger.Logger) (*hrapi.Client, error) {
	clientLogger := appLogger.Component("hrapi")
	return hrapi.NewClient(&hrapi.Config{
		BaseURL:        cfg.BaseURL,
		Token:          cfg.Token,
		RequestTimeout: cfg.RequestTimeout,
		RateLimit:      cfg.RateLimit,
		RateBurst:      cfg.RateBurst,
		OnUnauthorized: func() {
			clientLogger.Warn("Backend rejected the session token")
		},
	}, clientLogger)
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	dbConfig := &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}

	return postgresql.NewClient(dbConfig, logger)
}

// initRabbitMQ initializes the RabbitMQ consumer client
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		RoutingKey:         cfg.RoutingKey,
		PrefetchCount:      cfg.Consumer.PrefetchCount,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(environment string, deps *handler.Dependencies) *gin.Engine {
	if environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	return router.SetupRouter(deps)
}
