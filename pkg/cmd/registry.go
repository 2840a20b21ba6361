// Package cmd provides common initialization for the flowlet binaries.
package cmd

import (
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/flowlet-io/flowlet/pkg/executors/ai"
	"github.com/flowlet-io/flowlet/pkg/executors/condition"
	"github.com/flowlet-io/flowlet/pkg/executors/connector"
	"github.com/flowlet-io/flowlet/pkg/executors/delay"
	"github.com/flowlet-io/flowlet/pkg/executors/email"
	"github.com/flowlet-io/flowlet/pkg/executors/httprequest"
	"github.com/flowlet-io/flowlet/pkg/executors/queue"
	"github.com/flowlet-io/flowlet/pkg/generation"
	"github.com/flowlet-io/flowlet/pkg/mailer"
	"github.com/flowlet-io/flowlet/pkg/registry"
)

// NewRegistry builds the executor registry with every native node type.
// External collaborators are configured from the environment; nodes whose
// collaborator is unconfigured still register and fail at execution time
// with an upstream error.
func NewRegistry(logger *slog.Logger) *registry.Registry {
	reg := registry.NewRegistry(logger)

	generator := generation.NewClient(
		envOr("GENERATION_API_URL", "https://api.openai.com"),
		os.Getenv("GENERATION_API_KEY"),
	)
	sender := mailer.NewClient(
		envOr("MAILER_API_URL", "http://localhost:8025/api/send"),
		os.Getenv("MAILER_API_KEY"),
	)

	reg.Register(ai.NewFactory(generator))
	reg.Register(email.NewFactory(sender))
	reg.Register(httprequest.NewFactory())
	reg.Register(condition.NewFactory())
	reg.Register(delay.NewFactory())
	reg.Register(connector.NewSlackFactory())
	reg.Register(connector.NewHubSpotFactory())

	if addr := os.Getenv("REDIS_URL"); addr != "" {
		opts, err := redis.ParseURL(addr)
		if err != nil {
			panic(err)
		}

		reg.Register(queue.NewFactory(redis.NewClient(opts)))
	}

	return reg
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return fallback
}
