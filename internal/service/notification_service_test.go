package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/visit-service/internal/config"
	"github.com/spec-kit/visit-service/internal/events"
)

func TestNotificationForwardsEventWithIdempotencyKey(t *testing.T) {
	received := make(chan events.Event, 1)
	var keys atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys.Store(r.Header.Get("Idempotency-Key"))
		var event events.Event
		_ = json.NewDecoder(r.Body).Decode(&event)
		received <- event
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	dispatcher := events.NewInMemoryDispatcher()
	svc := NewNotificationService(dispatcher, nil, config.NotificationConfig{WebhookURL: srv.URL, TimeoutSeconds: 2})
	svc.RegisterHandlers()

	err := dispatcher.Publish(context.Background(), events.Event{
		ID:      "evt-1",
		Type:    events.EventVisitStatusChanged,
		VisitID: "v1",
	})
	require.NoError(t, err)
	svc.Wait()

	event := <-received
	assert.Equal(t, "evt-1", event.ID)
	assert.Equal(t, events.EventVisitStatusChanged, event.Type)
	assert.Equal(t, "evt-1", keys.Load())
}

func TestNotificationFailureDoesNotSurface(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	dispatcher := events.NewInMemoryDispatcher()
	svc := NewNotificationService(dispatcher, nil, config.NotificationConfig{WebhookURL: srv.URL, TimeoutSeconds: 2})
	svc.RegisterHandlers()

	err := dispatcher.Publish(context.Background(), events.Event{ID: "evt-2", Type: events.EventVisitCreated, VisitID: "v1"})
	assert.NoError(t, err)
	svc.Wait()

	assert.Error(t, svc.Deliver(context.Background(), events.Event{ID: "evt-3"}))
}

func TestNotificationWithoutWebhookIsNoop(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher()
	svc := NewNotificationService(dispatcher, nil, config.NotificationConfig{})
	svc.RegisterHandlers()

	assert.NoError(t, dispatcher.Publish(context.Background(), events.Event{Type: events.EventVisitCreated}))
	svc.Wait()
}
