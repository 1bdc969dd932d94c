package ollama

import (
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"
	"golang.org/x/sync/semaphore"
)

// Client implements ai.Client against a locally hosted Ollama server.
type Client struct {
	chatModel      string
	embeddingModel string

	reqLock *semaphore.Weighted
	inner   *api.Client
}

// Params configures an Ollama Client.
type Params struct {
	ChatModel      string
	EmbeddingModel string

	BaseURL string

	MaxConcurrentRequests int64
}

// New creates a Client connected to the Ollama server at BaseURL, or the
// default local endpoint when empty.
func New(params Params) (*Client, error) {
	var (
		u   *url.URL
		err error
	)
	if params.BaseURL != "" {
		u, err = url.Parse(params.BaseURL)
		if err != nil {
			return nil, err
		}
	}

	maxConcurrent := params.MaxConcurrentRequests
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}

	return &Client{
		chatModel:      params.ChatModel,
		embeddingModel: params.EmbeddingModel,
		reqLock:        semaphore.NewWeighted(maxConcurrent),
		inner:          api.NewClient(u, http.DefaultClient),
	}, nil
}
