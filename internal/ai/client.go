// Package ai talks to the speech-to-text and language-model HTTP APIs.
package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// NewHTTPClient returns a traced client with a hard overall timeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

type endpoint struct {
	http    *http.Client
	baseURL string
	apiKey  string
}

func (e endpoint) url(path string) string {
	return strings.TrimRight(e.baseURL, "/") + path
}

func (e endpoint) authorize(req *http.Request) {
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}
}

// classify maps a transport error onto the given sentinel pair, keeping the
// cause in the chain.
func classify(err error, unavailable, timeout error) error {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return fmt.Errorf("%w: %w", timeout, err)
	}
	return fmt.Errorf("%w: %w", unavailable, err)
}
