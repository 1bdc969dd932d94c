// Package fetch resolves document locators to raw text. The dispatcher
// routes on the locator scheme: http(s) via readability extraction, s3://
// via the AWS SDK, everything else as a local file path.
package fetch

import (
	"context"
	"fmt"
	"strings"
)

// Fetcher turns a locator into the document's raw text.
type Fetcher interface {
	Fetch(ctx context.Context, locator string) (string, error)
}

type Dispatcher struct {
	file Fetcher
	web  Fetcher
	s3   Fetcher
}

func NewDispatcher(ctx context.Context) *Dispatcher {
	d := &Dispatcher{
		file: NewFileFetcher(),
		web:  NewWebFetcher(),
	}
	if s3f := NewS3Fetcher(ctx); s3f != nil {
		d.s3 = s3f
	}
	return d
}

func (d *Dispatcher) Fetch(ctx context.Context, locator string) (string, error) {
	switch {
	case strings.HasPrefix(locator, "http://"), strings.HasPrefix(locator, "https://"):
		return d.web.Fetch(ctx, locator)
	case strings.HasPrefix(locator, "s3://"):
		if d.s3 == nil {
			return "", fmt.Errorf("s3 locator %q but no s3 credentials configured", locator)
		}
		return d.s3.Fetch(ctx, locator)
	default:
		return d.file.Fetch(ctx, locator)
	}
}
