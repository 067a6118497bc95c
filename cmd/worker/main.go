package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/salesforecast/internal/app"
	"github.com/inferloop/salesforecast/internal/config"
	"github.com/inferloop/salesforecast/pkg/constants"
)

type WorkerConfig struct {
	WorkerID      string
	ConfigFile    string
	Concurrency   int
	Interval      time.Duration
	Horizon       int
	WeeklyHorizon int
	Weekly        bool
	Once          bool
	LogLevel      string
	LogFormat     string
}

var logger *logrus.Logger

func main() {
	wc := parseFlags()

	cfg, err := config.Load(wc.ConfigFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if wc.LogLevel == "" {
		wc.LogLevel = cfg.Logging.Level
	}
	if wc.LogFormat == "" {
		wc.LogFormat = cfg.Logging.Format
	}
	if wc.Concurrency < 1 {
		wc.Concurrency = cfg.KPI.Workers
	}

	logger = setupLogger(wc.LogLevel, wc.LogFormat)

	logger.WithFields(logrus.Fields{
		"workerID":    wc.WorkerID,
		"concurrency": wc.Concurrency,
		"interval":    wc.Interval,
		"once":        wc.Once,
	}).Info("Starting sales forecast worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	watch := false
	application, err := app.New(ctx, cfg, logger, app.Options{Watch: &watch})
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialise application")
	}
	defer application.Close(context.Background())

	if application.Sink == nil {
		logger.Warn("Forecast sink disabled, only KPI totals will be refreshed")
	}

	pipeline := &appPipeline{app: application}
	scheduler := NewScheduler(wc, pipeline, logger)
	processor := NewJobProcessor(wc, pipeline, logger)
	processor.SetScheduler(scheduler)

	processorDone := make(chan struct{})
	go func() {
		processor.Start(ctx)
		close(processorDone)
	}()

	if wc.Once {
		scheduler.RunOnce(ctx)
		scheduler.Stop()
		select {
		case <-processorDone:
		case <-sigChan:
			logger.Info("Shutdown signal received")
			cancel()
			<-processorDone
		}
		logSummary(processor)
		if processor.FailedJobs() > 0 {
			application.Close(context.Background())
			os.Exit(1)
		}
		return
	}

	go scheduler.Start(ctx)

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logger.WithFields(logrus.Fields{
					"activeJobs":    processor.ActiveJobs(),
					"completedJobs": processor.CompletedJobs(),
					"failedJobs":    processor.FailedJobs(),
					"pruned":        scheduler.Prune(24 * time.Hour),
				}).Debug("Worker health check")
			}
		}
	}()

	<-sigChan
	logger.Info("Shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := gracefulShutdown(shutdownCtx, scheduler, processor); err != nil {
		logger.WithError(err).Error("Worker shutdown failed")
		os.Exit(1)
	}

	logSummary(processor)
	logger.Info("Worker stopped successfully")
}

func parseFlags() *WorkerConfig {
	wc := &WorkerConfig{}

	flag.StringVar(&wc.WorkerID, "worker-id", generateWorkerID(), "Unique worker ID")
	flag.StringVar(&wc.ConfigFile, "config", "", "Path to configuration file")
	flag.IntVar(&wc.Concurrency, "concurrency", 0, "Number of concurrent jobs (default kpi.workers)")
	flag.DurationVar(&wc.Interval, "interval", time.Hour, "Time between scheduled runs")
	flag.IntVar(&wc.Horizon, "horizon", constants.DefaultHorizon, "Months to forecast")
	flag.IntVar(&wc.WeeklyHorizon, "weekly-horizon", constants.DefaultWeeklyHorizon, "Weeks to forecast")
	flag.BoolVar(&wc.Weekly, "weekly", false, "Also export weekly forecasts")
	flag.BoolVar(&wc.Once, "once", false, "Run once and exit")
	flag.StringVar(&wc.LogLevel, "log-level", "", "Log level (default logging.level)")
	flag.StringVar(&wc.LogFormat, "log-format", "", "Log format (default logging.format)")

	flag.Parse()

	return wc
}

func setupLogger(level, format string) *logrus.Logger {
	logger := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}

func generateWorkerID() string {
	hostname, _ := os.Hostname()
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}

func logSummary(processor *JobProcessor) {
	logger.WithFields(logrus.Fields{
		"completedJobs": processor.CompletedJobs(),
		"failedJobs":    processor.FailedJobs(),
	}).Info("Worker summary")
}

func gracefulShutdown(ctx context.Context, scheduler *Scheduler, processor *JobProcessor) error {
	logger.Info("Starting graceful shutdown")

	// Stop accepting new jobs
	scheduler.Stop()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("shutdown timeout exceeded")
		case <-ticker.C:
			if processor.ActiveJobs() == 0 && len(scheduler.GetJobQueue()) == 0 {
				logger.Info("All jobs completed")
				return nil
			}
			logger.WithField("activeJobs", processor.ActiveJobs()).Info("Waiting for jobs to complete")
		}
	}
}
