package renderer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/visit-service/internal/config"
	"github.com/spec-kit/visit-service/internal/domain"
)

func TestRenderReturnsURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/render", r.URL.Path)
		assert.Equal(t, "prescription:d1", r.Header.Get("Idempotency-Key"))
		var req RenderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "d1", req.DocumentID)
		assert.Equal(t, domain.KindPrescription, req.Kind)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(RenderResponse{URL: "https://files.example/d1.pdf"})
	}))
	defer srv.Close()

	client := NewClient(config.RendererConfig{BaseURL: srv.URL, TimeoutSeconds: 2}, nil)
	url, err := client.Render(context.Background(), domain.DocumentRef{Kind: domain.KindPrescription, ID: "d1"})
	require.NoError(t, err)
	assert.Equal(t, "https://files.example/d1.pdf", url)
}

func TestRenderRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"url":"https://files.example/d2.pdf"}`))
	}))
	defer srv.Close()

	client := NewClient(config.RendererConfig{BaseURL: srv.URL, TimeoutSeconds: 2}, nil)
	client.http.SetRetryWaitTime(10 * time.Millisecond).SetRetryMaxWaitTime(20 * time.Millisecond)
	url, err := client.Render(context.Background(), domain.DocumentRef{Kind: domain.KindSickNote, ID: "d2"})
	require.NoError(t, err)
	assert.Equal(t, "https://files.example/d2.pdf", url)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRenderClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	client := NewClient(config.RendererConfig{BaseURL: srv.URL, TimeoutSeconds: 2}, nil)
	_, err := client.Render(context.Background(), domain.DocumentRef{Kind: domain.KindSickNote, ID: "d3"})
	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}
