// Package realtime pushes invalidation signals to dispatch boards. A signal
// names the table and visit that changed and nothing else; receivers re-fetch
// the aggregate and must tolerate duplicates and reordering.
package realtime

import (
	"time"

	"github.com/spec-kit/visit-service/internal/domain"
	"github.com/spec-kit/visit-service/internal/events"
)

// Op is the kind of row change a signal reports.
type Op string

const (
	OpInsert Op = "INSERT"
	OpUpdate Op = "UPDATE"
)

// Signal is an invalidation hint for one visit.
type Signal struct {
	Table   string    `json:"table"`
	VisitID string    `json:"visit_id"`
	Op      Op        `json:"op"`
	At      time.Time `json:"at"`
}

var documentTables = map[domain.DocumentKind]string{
	domain.KindPrescription:      "prescriptions",
	domain.KindSickNote:          "sick_notes",
	domain.KindDiagnosticRequest: "diagnostic_requests",
}

// SignalFor derives the row change behind a committed event. Events that do
// not name a visit produce no signal.
func SignalFor(event events.Event) (Signal, bool) {
	if event.VisitID == "" {
		return Signal{}, false
	}
	sig := Signal{VisitID: event.VisitID, At: event.Timestamp}
	switch event.Type {
	case events.EventVisitCreated:
		sig.Table, sig.Op = "visits", OpInsert
	case events.EventVisitStatusChanged, events.EventVisitAssigned:
		sig.Table, sig.Op = "visits", OpUpdate
	case events.EventVisitAnnotated:
		sig.Table, sig.Op = "visit_events", OpInsert
		if p, ok := event.Payload.(events.VisitAnnotatedPayload); ok && p.EventType.Source() == domain.SourceDispatch {
			sig.Table = "dispatch_events"
		}
	case events.EventDocumentCreated, events.EventDocumentEdited, events.EventDocumentSigned,
		events.EventDocumentDistributed, events.EventDocumentAdvanced, events.EventDocumentPDFReady:
		p, ok := event.Payload.(events.DocumentPayload)
		if !ok {
			return Signal{}, false
		}
		sig.Table, sig.Op = documentTables[p.Kind], OpUpdate
		if event.Type == events.EventDocumentCreated {
			sig.Op = OpInsert
		}
	default:
		return Signal{}, false
	}
	return sig, true
}
