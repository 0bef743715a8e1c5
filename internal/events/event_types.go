package events

import (
	"time"

	"github.com/spec-kit/visit-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventVisitCreated        EventType = "visit_created"
	EventVisitStatusChanged  EventType = "visit_status_changed"
	EventVisitAssigned       EventType = "visit_assigned"
	EventVisitAnnotated      EventType = "visit_annotated"
	EventDocumentCreated     EventType = "document_created"
	EventDocumentEdited      EventType = "document_edited"
	EventDocumentSigned      EventType = "document_signed"
	EventDocumentDistributed EventType = "document_distributed"
	EventDocumentAdvanced    EventType = "document_advanced"
	EventDocumentPDFReady    EventType = "document_pdf_ready"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	ID   string      `json:"id"`
	Role domain.Role `json:"role"`
}

// ActorFromSession copies the caller identity into an event actor.
func ActorFromSession(session domain.Session) Actor {
	return Actor{ID: session.ActorID, Role: session.Role}
}

// Event is published after a core mutation has committed. Consumers treat it
// as a hint and re-read the aggregate.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	VisitID   string      `json:"visit_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// VisitStatusChangedPayload payload.
type VisitStatusChangedPayload struct {
	OldStatus domain.VisitStatus `json:"old_status"`
	NewStatus domain.VisitStatus `json:"new_status"`
	Reason    string             `json:"reason,omitempty"`
}

// VisitAssignedPayload payload.
type VisitAssignedPayload struct {
	NurseID  *string `json:"nurse_id,omitempty"`
	DoctorID *string `json:"doctor_id,omitempty"`
}

// VisitAnnotatedPayload payload.
type VisitAnnotatedPayload struct {
	EventID   string           `json:"event_id"`
	EventType domain.EventType `json:"event_type"`
}

// DocumentPayload identifies the document an event is about.
type DocumentPayload struct {
	Kind       domain.DocumentKind         `json:"kind"`
	DocumentID string                      `json:"document_id"`
	Status     domain.DocumentStatus       `json:"status"`
	Channel    *domain.DistributionChannel `json:"channel,omitempty"`
	PDFURL     *string                     `json:"pdf_url,omitempty"`
}
