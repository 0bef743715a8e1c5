package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/visit-service/internal/domain"
	"github.com/spec-kit/visit-service/internal/events"
)

func TestSignalFor(t *testing.T) {
	at := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		event events.Event
		want  Signal
		ok    bool
	}{
		{
			name:  "visit created",
			event: events.Event{Type: events.EventVisitCreated, VisitID: "v1", Timestamp: at},
			want:  Signal{Table: "visits", VisitID: "v1", Op: OpInsert, At: at},
			ok:    true,
		},
		{
			name:  "status change",
			event: events.Event{Type: events.EventVisitStatusChanged, VisitID: "v1", Timestamp: at},
			want:  Signal{Table: "visits", VisitID: "v1", Op: OpUpdate, At: at},
			ok:    true,
		},
		{
			name: "dispatch note",
			event: events.Event{Type: events.EventVisitAnnotated, VisitID: "v1", Timestamp: at,
				Payload: events.VisitAnnotatedPayload{EventType: domain.EventDispatchNote}},
			want: Signal{Table: "dispatch_events", VisitID: "v1", Op: OpInsert, At: at},
			ok:   true,
		},
		{
			name: "vitals",
			event: events.Event{Type: events.EventVisitAnnotated, VisitID: "v1", Timestamp: at,
				Payload: events.VisitAnnotatedPayload{EventType: domain.EventVitalsRecorded}},
			want: Signal{Table: "visit_events", VisitID: "v1", Op: OpInsert, At: at},
			ok:   true,
		},
		{
			name: "prescription signed",
			event: events.Event{Type: events.EventDocumentSigned, VisitID: "v1", Timestamp: at,
				Payload: events.DocumentPayload{Kind: domain.KindPrescription, DocumentID: "d1"}},
			want: Signal{Table: "prescriptions", VisitID: "v1", Op: OpUpdate, At: at},
			ok:   true,
		},
		{
			name:  "no visit",
			event: events.Event{Type: events.EventVisitCreated},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SignalFor(tt.event)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestSyncDeliversCommittedEventsToHub(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher()
	hub := NewHub(8)
	rt := NewSync(NewMemoryBroker(), hub, nil)
	rt.RegisterHandlers(dispatcher)
	sub := hub.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- rt.Run(ctx) }()

	var got Signal
	require.Eventually(t, func() bool {
		_ = dispatcher.Publish(context.Background(), events.Event{Type: events.EventVisitStatusChanged, VisitID: "v42"})
		select {
		case got = <-sub.C:
			return true
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, "v42", got.VisitID)
	assert.Equal(t, "visits", got.Table)

	cancel()
	assert.NoError(t, <-done)
}
