// Package renderer talks to the external PDF-render function.
package renderer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/visit-service/internal/config"
	"github.com/spec-kit/visit-service/internal/domain"
)

// RenderRequest identifies the document to render.
type RenderRequest struct {
	DocumentID string              `json:"document_id"`
	Kind       domain.DocumentKind `json:"kind"`
}

// RenderResponse carries the stored PDF location.
type RenderResponse struct {
	URL string `json:"url"`
}

// Client calls the render function. Requests are idempotent on document id,
// so retries and re-renders are safe.
type Client struct {
	http   *resty.Client
	logger *zap.Logger
}

// NewClient builds a client for cfg.BaseURL.
func NewClient(cfg config.RendererConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	http := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		})
	return &Client{http: http, logger: logger}
}

// Render asks the function to produce the PDF and returns its URL.
func (c *Client) Render(ctx context.Context, ref domain.DocumentRef) (string, error) {
	var result RenderResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", string(ref.Kind)+":"+ref.ID).
		SetBody(RenderRequest{DocumentID: ref.ID, Kind: ref.Kind}).
		SetResult(&result).
		Post("/render")
	if err != nil {
		return "", fmt.Errorf("call render function: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("render function responded %d", resp.StatusCode())
	}
	if strings.TrimSpace(result.URL) == "" {
		return "", errors.New("render function returned no url")
	}
	c.logger.Debug("document rendered",
		zap.String("kind", string(ref.Kind)),
		zap.String("document_id", ref.ID))
	return result.URL, nil
}
