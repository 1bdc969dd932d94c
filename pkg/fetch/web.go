package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"codeberg.org/readeck/go-readability/v2"
	"golang.org/x/sync/singleflight"
)

// WebFetcher fetches http(s) locators. HTML responses go through
// readability so boilerplate navigation does not pollute the corpus;
// anything else is returned verbatim. Concurrent fetches of the same URL
// are collapsed into one request.
type WebFetcher struct {
	client *http.Client
	group  singleflight.Group
}

func NewWebFetcher() *WebFetcher {
	return &WebFetcher{client: http.DefaultClient}
}

func (f *WebFetcher) Fetch(ctx context.Context, locator string) (string, error) {
	result, err, _ := f.group.Do(locator, func() (any, error) {
		return f.fetchOnce(ctx, locator)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (f *WebFetcher) fetchOnce(ctx context.Context, locator string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetch %s: unexpected status %s", locator, resp.Status)
	}

	if strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
		u, err := url.Parse(locator)
		if err != nil {
			return "", fmt.Errorf("failed to parse url: %w", err)
		}
		article, err := readability.FromReader(resp.Body, u)
		if err != nil {
			return "", fmt.Errorf("failed to parse html: %w", err)
		}
		var builder strings.Builder
		if err := article.RenderText(&builder); err != nil {
			return "", fmt.Errorf("failed to render article text: %w", err)
		}
		return builder.String(), nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
