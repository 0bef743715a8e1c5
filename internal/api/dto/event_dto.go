package dto

import (
	"encoding/json"
	"time"

	"github.com/spec-kit/visit-service/internal/domain"
)

// AppendEventRequest payload. Payload is decoded according to Type.
type AppendEventRequest struct {
	Type    domain.EventType `json:"type"`
	Payload json.RawMessage  `json:"payload"`
}

// VisitEventResponse is one timeline row.
type VisitEventResponse struct {
	ID        string              `json:"id"`
	Seq       int64               `json:"seq"`
	VisitID   string              `json:"visit_id"`
	Source    domain.EventSource  `json:"source"`
	Type      domain.EventType    `json:"type"`
	Payload   domain.EventPayload `json:"payload"`
	CreatedBy string              `json:"created_by"`
	CreatedAt time.Time           `json:"created_at"`
}

// TimelineResponse carries a page of events and the cursor for the next read.
type TimelineResponse struct {
	Data      []VisitEventResponse `json:"data"`
	NextAfter int64                `json:"next_after"`
}

// NewVisitEventResponse maps a timeline row.
func NewVisitEventResponse(e *domain.VisitEvent) VisitEventResponse {
	return VisitEventResponse{
		ID:        e.ID,
		Seq:       e.Seq,
		VisitID:   e.VisitID,
		Source:    e.Source,
		Type:      e.Type,
		Payload:   e.Payload,
		CreatedBy: e.CreatedBy,
		CreatedAt: e.CreatedAt,
	}
}
