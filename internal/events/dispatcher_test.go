package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublishRunsTypedAndWildcardHandlers(t *testing.T) {
	d := NewInMemoryDispatcher()
	var got []string

	d.Subscribe(EventVisitStatusChanged, func(_ context.Context, e Event) error {
		got = append(got, "typed:"+e.VisitID)
		return nil
	})
	d.Subscribe(EventDocumentSigned, func(_ context.Context, e Event) error {
		got = append(got, "other")
		return nil
	})
	d.SubscribeAll(func(_ context.Context, e Event) error {
		got = append(got, "all:"+string(e.Type))
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventVisitStatusChanged, VisitID: "v-1"})
	assert.NoError(t, err)
	assert.Equal(t, []string{"typed:v-1", "all:visit_status_changed"}, got)
}

func TestPublishContinuesAfterHandlerError(t *testing.T) {
	d := NewInMemoryDispatcher()
	boom := errors.New("webhook down")
	calls := 0

	d.Subscribe(EventVisitCreated, func(context.Context, Event) error {
		calls++
		return boom
	})
	d.Subscribe(EventVisitCreated, func(context.Context, Event) error {
		calls++
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventVisitCreated})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
}

func TestPublishRecoversHandlerPanic(t *testing.T) {
	d := NewInMemoryDispatcher()
	reached := false

	d.SubscribeAll(func(context.Context, Event) error { panic("nil map") })
	d.SubscribeAll(func(context.Context, Event) error {
		reached = true
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventDocumentSigned})
	assert.ErrorContains(t, err, "handler panicked on document_signed")
	assert.True(t, reached)
}
