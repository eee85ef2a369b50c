package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/cuongbtq/metrohr-console/internal/analysis"
	"github.com/cuongbtq/metrohr-console/internal/analysis/domain"
	"github.com/cuongbtq/metrohr-console/internal/config"
	"github.com/cuongbtq/metrohr-console/internal/export"
	"github.com/cuongbtq/metrohr-console/internal/hrapi"
	"github.com/cuongbtq/metrohr-console/internal/realtime"
	"github.com/cuongbtq/metrohr-console/shared/logger"
	"github.com/cuongbtq/metrohr-console/shared/rabbitmq"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("CONSOLE_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/console-service/config.yaml"
	}

	var (
		configPath = flag.String("config", defaultConfigPath, "Path to configuration file")
		target     = flag.String("target", "", "Employee to find substitutes for (empty for an unscoped search)")
		topK       = flag.String("topk", "", "Number of candidates to return")
		department = flag.String("department", "", "Restrict candidates to a department")
		skills     = flag.String("skills", "", "Comma separated required skills")
		outDir     = flag.String("out", "", "Directory to write the candidate CSV to")
		poll       = flag.Duration("poll", 5*time.Second, "Re-fetch interval while waiting; 0 relies on realtime events only")
		timeout    = flag.Duration("timeout", 10*time.Minute, "Give up waiting after this long")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.ValidateBackend(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := logger.New(&logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     "stderr",
		TimeFormat: time.Kitchen,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	client, err := hrapi.NewClient(&hrapi.Config{
		BaseURL:        cfg.Backend.BaseURL,
		Token:          cfg.Backend.Token,
		RequestTimeout: cfg.Backend.RequestTimeout,
		RateLimit:      cfg.Backend.RateLimit,
		RateBurst:      cfg.Backend.RateBurst,
	}, appLogger.Component("hrapi"))
	if err != nil {
		return err
	}

	hub := realtime.NewHub(0)
	defer hub.Close()

	if cfg.RabbitMQ.Enabled {
		stopEvents, err := consumeEvents(ctx, &cfg.RabbitMQ, hub, appLogger)
		if err != nil {
			appLogger.Warn("Realtime channel unavailable, falling back to polling", slog.Any("error", err))
		} else {
			defer stopEvents()
		}
	}

	workflow := analysis.NewWorkflow(&analysis.Config{
		Logger:  appLogger.Component("workflow"),
		Backend: client,
		Hub:     hub,
	})
	defer workflow.Close()

	jobID, err := workflow.Submit(ctx, analysis.SubmitForm{
		TargetEmployeeID: *target,
		Department:       *department,
		TopK:             analysis.TopK(*topK),
		RequiredSkills:   *skills,
	})
	if err != nil {
		if errors.Is(err, hrapi.ErrUnauthorized) {
			return fmt.Errorf("session expired, set %s to a fresh token", config.TokenEnvVar)
		}
		return errors.New(hrapi.UserMessage(err))
	}
	fmt.Fprintf(os.Stderr, "submitted job %s\n", jobID)

	state, err := workflow.Wait(ctx, *poll)
	if err != nil {
		return fmt.Errorf("job %s did not finish: %w", jobID, err)
	}

	view := state.View()
	if !view.ShowResults {
		if view.JobError != "" {
			return fmt.Errorf("job %s %s: %s", jobID, view.Status, view.JobError)
		}
		return fmt.Errorf("job %s %s without a result", jobID, view.Status)
	}

	printCandidates(view.Candidates)

	if *outDir != "" {
		path := filepath.Join(*outDir, export.CandidatesFilename(jobID))
		if err := os.WriteFile(path, export.CandidatesCSV(view.Candidates), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		fmt.Fprintf(os.Stderr, "wrote %s\n", path)
	}
	return nil
}

// consumeEvents feeds broker deliveries into hub until the returned stop runs.
func consumeEvents(ctx context.Context, cfg *config.RabbitMQConfig, hub *realtime.Hub, appLogger *logger.Logger) (func(), error) {
	client, err := rabbitmq.NewClient(&rabbitmq.Config{
		Host:              cfg.Host,
		Port:              cfg.Port,
		User:              cfg.User,
		Password:          cfg.Password,
		VHost:             cfg.VHost,
		ExchangeName:      cfg.Exchange.Name,
		ExchangeType:      cfg.Exchange.Type,
		ExchangeDurable:   cfg.Exchange.Durable,
		QueueExclusive:    true,
		QueueAutoDelete:   true,
		RoutingKey:        cfg.RoutingKey,
		PrefetchCount:     cfg.Consumer.PrefetchCount,
		RetryAttempts:     1,
		Heartbeat:         cfg.Connection.Heartbeat,
		ConnectionTimeout: cfg.Connection.ConnectionTimeout,
	}, appLogger.Component("rabbitmq"))
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	source := realtime.NewSource(client, hub, appLogger.Component("realtime"))
	go func() {
		defer close(done)
		if err := source.Run(ctx); err != nil {
			appLogger.Warn("Realtime channel stopped", slog.Any("error", err))
		}
	}()

	return func() {
		cancel()
		<-done
		client.Close()
	}, nil
}

func printCandidates(candidates []domain.Candidate) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tEMPLOYEE\tNAME\tSCORE\tDEPARTMENT\tDESIGNATION")
	for i, c := range candidates {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			i+1, c.EmployeeID, c.Name, export.FormatScore(c.Score), c.Department, c.Designation)
	}
	w.Flush()
}
