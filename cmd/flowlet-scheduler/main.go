// Package main provides the Flowlet scheduler daemon: it ticks the cron
// scheduler every minute and sweeps stale runs.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	cli "github.com/urfave/cli/v3"

	"github.com/flowlet-io/flowlet/pkg/cmd"
	"github.com/flowlet-io/flowlet/pkg/engine"
	"github.com/flowlet-io/flowlet/pkg/hooks"
	"github.com/flowlet-io/flowlet/pkg/log"
	"github.com/flowlet-io/flowlet/pkg/scheduler"
)

func main() {
	logger := log.WithModule("scheduler")

	command := &cli.Command{
		Name:                  "flowlet-scheduler",
		Usage:                 "Run schedule-triggered workflows on their cron expressions",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL for persistence",
				Value:   "file://./data",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS"),
			},
			&cli.DurationFlag{
				Name:    "stale-after",
				Usage:   "Age after which a running run is considered stuck",
				Value:   time.Hour,
				Sources: cli.EnvVars("STALE_AFTER"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing Flowlet scheduler")

			registry := cmd.NewRegistry(logger)
			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))

			defer func() {
				err := persistence.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), "flowlet-scheduler", logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			hook := hooks.NewLearningHook(eventBus, logger)
			eng := engine.NewEngine(logger, persistence, registry,
				engine.WithPublisher(eventBus),
				engine.WithLearningHook(hook),
			)
			sched := scheduler.NewScheduler(logger, persistence, eng)
			sweeper := engine.NewSweeper(logger, persistence, command.Duration("stale-after"))

			runner := cron.New()

			_, err := runner.AddFunc("* * * * *", func() {
				results, err := sched.Tick(ctx, time.Now().UTC())
				if err != nil {
					logger.ErrorContext(ctx, "Scheduler tick failed", "error", err)

					return
				}

				if len(results) > 0 {
					logger.InfoContext(ctx, "Scheduler tick finished", "runs", len(results))
				}
			})
			if err != nil {
				return err
			}

			_, err = runner.AddFunc("*/10 * * * *", func() {
				swept, err := sweeper.Sweep(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Stale run sweep failed", "error", err)

					return
				}

				if swept > 0 {
					logger.WarnContext(ctx, "Swept stale runs", "count", swept)
				}
			})
			if err != nil {
				return err
			}

			runner.Start()
			logger.InfoContext(ctx, "Scheduler started")

			signals := make(chan os.Signal, 1)
			signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

			select {
			case <-ctx.Done():
			case sig := <-signals:
				logger.InfoContext(ctx, "Received shutdown signal", "signal", sig.String())
			}

			stopCtx := runner.Stop()
			<-stopCtx.Done()

			logger.InfoContext(ctx, "Scheduler stopped")

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
