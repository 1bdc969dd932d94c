package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/civicworks/lexgraph/backend/internal/db"
	"github.com/civicworks/lexgraph/backend/internal/queue"
	"github.com/civicworks/lexgraph/backend/internal/util"
	"github.com/civicworks/lexgraph/backend/pkg/ai"
	"github.com/civicworks/lexgraph/backend/pkg/ai/ollama"
	"github.com/civicworks/lexgraph/backend/pkg/ai/openai"
	"github.com/civicworks/lexgraph/backend/pkg/fetch"
	"github.com/civicworks/lexgraph/backend/pkg/ingest"
	"github.com/civicworks/lexgraph/backend/pkg/leaselock"
	"github.com/civicworks/lexgraph/backend/pkg/logger"
	"github.com/civicworks/lexgraph/backend/pkg/reason"
	"github.com/civicworks/lexgraph/backend/pkg/resolve"
	"github.com/civicworks/lexgraph/backend/pkg/retrieval"
	storepgx "github.com/civicworks/lexgraph/backend/pkg/store/pgx"

	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		return err
	}
	return nil
}

// Init wires the full service and blocks until a shutdown signal.
func Init() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := db.Migrate(); err != nil {
		logger.Fatal("Failed to run migrations", "err", err)
	}

	pool, err := db.Connect(ctx)
	if err != nil {
		logger.Fatal("Failed to connect to database", "err", err)
	}
	defer pool.Close()

	graphStore := storepgx.NewWithConnection(pool)
	locker := leaselock.New(pool)

	aiClient := NewAIClient()
	oracle := ai.NewOracle(aiClient, util.GetEnvInt("AI_MAX_RETRIES", 3))

	resolver := resolve.New(graphStore, oracle, locker)
	registry := ingest.NewRegistry(graphStore)
	coordinator := ingest.NewCoordinator(graphStore, graphStore, aiClient)
	pipeline := ingest.NewPipeline(registry, coordinator, resolver, oracle, graphStore)

	engine := retrieval.NewEngine(graphStore, graphStore, aiClient)
	builder := reason.NewBuilder(graphStore)
	verifier := reason.NewVerifier(graphStore)
	fetcher := fetch.NewDispatcher(ctx)

	que := queue.Init()
	defer que.Close()
	ch, err := que.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()
	if err := queue.SetupQueues(ch); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	h := &Handler{
		pipeline: pipeline,
		fetcher:  fetcher,
		engine:   engine,
		builder:  builder,
		verifier: verifier,
		oracle:   oracle,
		store:    graphStore,
		ch:       ch,
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = &CustomValidator{validator: validator.New()}
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("16M"))

	RegisterRoutes(e, h)

	go func() {
		port := util.GetEnvString("PORT", "8080")
		logger.Info("Starting server", "port", port)
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed shutting down server", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shutdown server", "err", err)
	}
}

// NewAIClient builds the model client from AI_ADAPTER. An unconfigured
// client is allowed: the oracle then reports unavailable and the pipeline
// and resolver degrade as designed.
func NewAIClient() ai.Client {
	switch util.GetEnv("AI_ADAPTER") {
	case "ollama":
		client, err := ollama.New(ollama.Params{
			ChatModel:      util.GetEnv("AI_CHAT_MODEL"),
			EmbeddingModel: util.GetEnv("AI_EMBED_MODEL"),
			BaseURL:        util.GetEnv("AI_CHAT_URL"),

			MaxConcurrentRequests: int64(util.GetEnvInt("AI_MAX_CONCURRENT", 4)),
		})
		if err != nil {
			logger.Fatal("Could not create Ollama client", "err", err)
		}
		return client
	default:
		return openai.New(openai.Params{
			ChatModel:      util.GetEnv("AI_CHAT_MODEL"),
			EmbeddingModel: util.GetEnv("AI_EMBED_MODEL"),
			ChatURL:        util.GetEnv("AI_CHAT_URL"),
			ChatKey:        util.GetEnv("AI_CHAT_KEY"),
			EmbeddingURL:   util.GetEnv("AI_EMBED_URL"),
			EmbeddingKey:   util.GetEnv("AI_EMBED_KEY"),
		})
	}
}
