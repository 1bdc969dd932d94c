package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/civicworks/lexgraph/backend/internal/queue"
	"github.com/civicworks/lexgraph/backend/pkg/ai"
	"github.com/civicworks/lexgraph/backend/pkg/common"
	"github.com/civicworks/lexgraph/backend/pkg/fetch"
	"github.com/civicworks/lexgraph/backend/pkg/ingest"
	"github.com/civicworks/lexgraph/backend/pkg/logger"
	"github.com/civicworks/lexgraph/backend/pkg/manifest"
	"github.com/civicworks/lexgraph/backend/pkg/reason"
	"github.com/civicworks/lexgraph/backend/pkg/retrieval"
	"github.com/civicworks/lexgraph/backend/pkg/store"

	"github.com/labstack/echo/v4"
	"github.com/rabbitmq/amqp091-go"
)

type Handler struct {
	pipeline *ingest.Pipeline
	fetcher  fetch.Fetcher
	engine   *retrieval.Engine
	builder  *reason.Builder
	verifier *reason.Verifier
	oracle   *ai.Oracle
	store    store.GraphStore
	ch       *amqp091.Channel
}

// IngestHandler accepts a batch of manifest entries. Synchronous requests
// fetch and ingest inline and return the batch stats; async requests queue
// each entry for the worker and return immediately.
func (h *Handler) IngestHandler(c echo.Context) error {
	type ingestBody struct {
		Entries []manifest.Entry `json:"entries" validate:"required,min=1,dive"`
		Async   bool             `json:"async"`
	}

	type failureInfo struct {
		Locator string `json:"locator"`
		Step    string `json:"step"`
		Error   string `json:"error"`
	}

	type ingestResponse struct {
		Message  string        `json:"message"`
		Queued   int           `json:"queued,omitempty"`
		Ingested int           `json:"ingested"`
		Skipped  int           `json:"skipped"`
		Failed   int           `json:"failed"`
		Failures []failureInfo `json:"failures,omitempty"`
	}

	data := new(ingestBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, ingestResponse{Message: "Invalid request body"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, ingestResponse{Message: "Invalid request body"})
	}

	ctx := c.Request().Context()

	if data.Async {
		queued := 0
		for _, entry := range data.Entries {
			body, err := json.Marshal(queue.IngestJob{Entry: entry})
			if err != nil {
				continue
			}
			if err := queue.Publish(h.ch, queue.IngestQueue, body); err != nil {
				logger.Error("Failed to queue ingest job", "locator", entry.Locator, "err", err)
				continue
			}
			queued++
		}
		return c.JSON(http.StatusAccepted, ingestResponse{Message: "Queued", Queued: queued})
	}

	var docs []ingest.Document
	var failures []failureInfo
	for _, entry := range data.Entries {
		text, err := h.fetcher.Fetch(ctx, entry.Locator)
		if err != nil {
			failures = append(failures, failureInfo{
				Locator: entry.Locator,
				Step:    string(ingest.StepNew),
				Error:   err.Error(),
			})
			continue
		}
		docs = append(docs, ingest.Document{
			Locator: entry.Locator,
			Text:    text,
			Meta:    entry.Meta(),
		})
	}

	stats := h.pipeline.Run(ctx, docs)
	for _, f := range stats.Failures {
		failures = append(failures, failureInfo{
			Locator: f.Locator,
			Step:    string(f.Step),
			Error:   f.Err.Error(),
		})
	}

	return c.JSON(http.StatusOK, ingestResponse{
		Message:  "Ingested",
		Ingested: stats.Ingested,
		Skipped:  stats.Skipped,
		Failed:   stats.Failed + (len(failures) - len(stats.Failures)),
		Failures: failures,
	})
}

func (h *Handler) RetrieveHandler(c echo.Context) error {
	type retrieveBody struct {
		Query        string `json:"query" validate:"required"`
		Jurisdiction string `json:"jurisdiction"`
		Limit        int    `json:"limit"`
	}

	data := new(retrieveBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "Invalid request body"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "Invalid request body"})
	}

	result, err := h.engine.Retrieve(c.Request().Context(), data.Query, retrieval.Filters{
		Jurisdiction: data.Jurisdiction,
		Limit:        data.Limit,
	})
	if err != nil {
		logger.Error("Retrieval failed", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "Retrieval failed"})
	}
	return c.JSON(http.StatusOK, result)
}

// ChainsHandler builds proof chains for the given issues, verifies each
// against the graph, and optionally attaches an oracle explanation to the
// chains that verified.
func (h *Handler) ChainsHandler(c echo.Context) error {
	type chainsBody struct {
		Issues       []string          `json:"issues" validate:"required,min=1"`
		Jurisdiction string            `json:"jurisdiction"`
		Explain      bool              `json:"explain"`
		SourceTexts  map[string]string `json:"source_texts"`
	}

	type chainResult struct {
		Chain        common.ProofChain          `json:"chain"`
		Verification *common.VerificationResult `json:"verification"`
	}

	data := new(chainsBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "Invalid request body"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "Invalid request body"})
	}

	ctx := c.Request().Context()
	chains, err := h.builder.BuildChains(ctx, data.Issues, data.Jurisdiction)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"message": "Unknown issue entity"})
		}
		logger.Error("Chain building failed", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "Chain building failed"})
	}

	results := make([]chainResult, 0, len(chains))
	for _, chain := range chains {
		verification, err := h.verifier.Verify(ctx, chain, data.SourceTexts)
		if err != nil {
			logger.Error("Chain verification failed", "err", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"message": "Verification failed"})
		}
		chain = h.verifier.Rescore(chain, verification, h.builder)

		if data.Explain && verification.Verified {
			explanation, err := h.oracle.ExplainChain(ctx, chain, h.entityName(ctx))
			if err != nil && !errors.Is(err, ai.ErrUnavailable) {
				logger.Warn("Chain explanation failed", "err", err)
			}
			chain.Explanation = explanation
		}

		results = append(results, chainResult{Chain: chain, Verification: verification})
	}
	return c.JSON(http.StatusOK, echo.Map{"chains": results})
}

func (h *Handler) VerifyHandler(c echo.Context) error {
	type verifyBody struct {
		Chain       *common.ProofChain `json:"chain" validate:"required"`
		SourceTexts map[string]string  `json:"source_texts"`
	}

	data := new(verifyBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "Invalid request body"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "Invalid request body"})
	}

	result, err := h.verifier.Verify(c.Request().Context(), *data.Chain, data.SourceTexts)
	if err != nil {
		logger.Error("Verification failed", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "Verification failed"})
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) entityName(ctx context.Context) func(string) string {
	return func(id string) string {
		ent, err := h.store.Entity(ctx, id)
		if err != nil {
			return id
		}
		return ent.Name
	}
}
