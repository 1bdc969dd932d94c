package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/civicworks/lexgraph/backend/internal/db"
	"github.com/civicworks/lexgraph/backend/internal/queue"
	"github.com/civicworks/lexgraph/backend/internal/server"
	"github.com/civicworks/lexgraph/backend/internal/util"
	"github.com/civicworks/lexgraph/backend/pkg/ai"
	"github.com/civicworks/lexgraph/backend/pkg/fetch"
	"github.com/civicworks/lexgraph/backend/pkg/ingest"
	"github.com/civicworks/lexgraph/backend/pkg/leaselock"
	"github.com/civicworks/lexgraph/backend/pkg/logger"
	"github.com/civicworks/lexgraph/backend/pkg/logger/console"
	"github.com/civicworks/lexgraph/backend/pkg/resolve"
	storepgx "github.com/civicworks/lexgraph/backend/pkg/store/pgx"

	_ "github.com/lib/pq"
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	debug := util.GetEnvBool("DEBUG", false)
	logger.Init(console.New(console.Params{
		Debug: debug,
	}))

	if err := db.Migrate(); err != nil {
		logger.Fatal("Failed to run migrations", "err", err)
	}
	pool, err := db.Connect(ctx)
	if err != nil {
		logger.Fatal("Unable to connect to database", "err", err)
	}
	defer pool.Close()

	graphStore := storepgx.NewWithConnection(pool)
	locker := leaselock.New(pool)

	aiClient := server.NewAIClient()
	oracle := ai.NewOracle(aiClient, util.GetEnvInt("AI_MAX_RETRIES", 3))

	resolver := resolve.New(graphStore, oracle, locker)
	registry := ingest.NewRegistry(graphStore)
	coordinator := ingest.NewCoordinator(graphStore, graphStore, aiClient)
	pipeline := ingest.NewPipeline(registry, coordinator, resolver, oracle, graphStore)

	conn := queue.Init()
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()
	if err := queue.SetupQueues(ch); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}
	if err := ch.Qos(1, 0, true); err != nil {
		logger.Fatal("Failed to set QoS", "err", err)
	}

	consumer := queue.NewConsumer(ch, fetch.NewDispatcher(ctx), pipeline)
	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("Consumer stopped", "err", err)
	}
	logger.Info("Shutdown signal received, exiting...")
}
