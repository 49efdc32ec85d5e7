package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"

	trendscout "trend-stack/agents/trend-scout"
	"trend-stack/internal/models"
	"trend-stack/shared/config"
	"trend-stack/shared/events"
	"trend-stack/shared/lock"
	"trend-stack/shared/logging"
	"trend-stack/shared/scheduler"
)

type options struct {
	Config string `long:"config" env:"CONFIG_FILE" default:"config.yaml" description:"Path to the YAML configuration file"`
	Once   bool   `long:"once" description:"Run the selected stage once and exit instead of starting the scheduler"`
	Stage  string `long:"stage" default:"all" choice:"collect" choice:"aggregate" choice:"score" choice:"all" description:"Stage to run with --once"`
}

func main() {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return
		}
		os.Exit(2)
	}

	if err := run(opts); err != nil {
		logging.Error().Err(err).Msg("Trend scout failed")
		os.Exit(1)
	}
}

func run(opts options) error {
	cfg, err := config.LoadFile(opts.Config)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	// Create context that responds to signals
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	locker, err := lock.New(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("failed to set up run lock: %w", err)
	}
	defer locker.Close()

	publisher, err := events.New(cfg.NATS)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer publisher.Close()

	agent := trendscout.NewTrendAgent(cfg)
	defer agent.Close()

	s := scheduler.New(cfg, agent, scheduler.WithLocker(locker), scheduler.WithPublisher(publisher))

	if opts.Once {
		logging.Info().Str("stage", opts.Stage).Msg("Running once...")
		if err := agent.Initialize(); err != nil {
			return fmt.Errorf("failed to initialize agent: %w", err)
		}
		if err := runOnce(ctx, s, opts.Stage); err != nil {
			return err
		}
		logging.Info().Msg(s.Monitor().GetStatusSummary())
		return nil
	}

	logging.Info().Msg("Starting scheduler...")
	if err := s.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("scheduler failed: %w", err)
	}
	return nil
}

func runOnce(ctx context.Context, s *scheduler.Scheduler, stage string) error {
	if stage == "all" {
		return s.RunAll(ctx)
	}
	st, err := models.ParseStage(stage)
	if err != nil {
		return err
	}
	return s.RunOnce(ctx, st)
}
