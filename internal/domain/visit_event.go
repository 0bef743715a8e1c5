package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EventType names a timeline entry kind. The set is closed: DecodePayload
// rejects anything not listed here.
type EventType string

const (
	EventVisitCreated        EventType = "visit_created"
	EventStatusChange        EventType = "status_change"
	EventStaffAssigned       EventType = "staff_assigned"
	EventDocumentCreated     EventType = "document_created"
	EventDocumentEdited      EventType = "document_edited"
	EventDocumentSigned      EventType = "document_signed"
	EventDocumentDistributed EventType = "document_distributed"
	EventDocumentStatus      EventType = "document_status_changed"
	EventVitalsRecorded      EventType = "vitals_recorded"
	EventClinicalNote        EventType = "clinical_note"
	EventETAUpdated          EventType = "eta_updated"
	EventDispatchNote        EventType = "dispatch_note"
)

// EventSource identifies which append-only table holds an entry.
type EventSource string

const (
	SourceVisit    EventSource = "visit"
	SourceDispatch EventSource = "dispatch"
)

// Source routes an event type to its table. Dispatch kinds live in
// dispatch_events; lifecycle and clinical annotations in visit_events.
func (t EventType) Source() EventSource {
	switch t {
	case EventETAUpdated, EventDispatchNote:
		return SourceDispatch
	}
	return SourceVisit
}

// Annotation reports whether callers may append this type directly.
// Lifecycle types are written only by the state machine and document workflow.
func (t EventType) Annotation() bool {
	switch t {
	case EventVitalsRecorded, EventClinicalNote, EventETAUpdated, EventDispatchNote:
		return true
	}
	return false
}

// Timeline page sizes. Larger requests are clamped to MaxTimelinePage.
const (
	DefaultTimelinePage = 200
	MaxTimelinePage     = 500
)

// TimelineLimit maps a requested page size onto (0, MaxTimelinePage].
func TimelineLimit(limit int) int {
	if limit <= 0 {
		return DefaultTimelinePage
	}
	if limit > MaxTimelinePage {
		return MaxTimelinePage
	}
	return limit
}

// VisitEvent is one immutable timeline row. Seq is the insertion id shared by
// both event tables, so (CreatedAt, Seq) totally orders a visit's timeline.
type VisitEvent struct {
	ID        string
	Seq       int64
	VisitID   string
	Source    EventSource
	Type      EventType
	Payload   EventPayload
	CreatedBy string
	CreatedAt time.Time
}

// EventPayload is implemented only by the payload structs in this file.
type EventPayload interface {
	EventType() EventType
	isEventPayload()
}

type VisitCreatedPayload struct {
	ScheduledStart time.Time `json:"scheduled_start"`
	ScheduledEnd   time.Time `json:"scheduled_end"`
}

type StatusChangePayload struct {
	Old    VisitStatus `json:"old"`
	New    VisitStatus `json:"new"`
	Reason string      `json:"reason,omitempty"`
}

type StaffAssignedPayload struct {
	NurseID  *string `json:"nurse_id,omitempty"`
	DoctorID *string `json:"doctor_id,omitempty"`
}

type DocumentCreatedPayload struct {
	Kind       DocumentKind `json:"kind"`
	DocumentID string       `json:"document_id"`
}

type DocumentEditedPayload struct {
	Kind       DocumentKind `json:"kind"`
	DocumentID string       `json:"document_id"`
}

type DocumentSignedPayload struct {
	Kind       DocumentKind `json:"kind"`
	DocumentID string       `json:"document_id"`
}

type DocumentDistributedPayload struct {
	Kind       DocumentKind        `json:"kind"`
	DocumentID string              `json:"document_id"`
	Channel    DistributionChannel `json:"channel"`
}

type DocumentStatusPayload struct {
	Kind       DocumentKind   `json:"kind"`
	DocumentID string         `json:"document_id"`
	Old        DocumentStatus `json:"old"`
	New        DocumentStatus `json:"new"`
}

// VitalsRecordedPayload carries a nurse's bedside measurements. All readings
// are optional; at least one must be present.
type VitalsRecordedPayload struct {
	HeartRate       *int     `json:"heart_rate,omitempty"`
	Systolic        *int     `json:"systolic,omitempty"`
	Diastolic       *int     `json:"diastolic,omitempty"`
	TemperatureC    *float64 `json:"temperature_c,omitempty"`
	SpO2            *int     `json:"spo2,omitempty"`
	RespiratoryRate *int     `json:"respiratory_rate,omitempty"`
	GlucoseMgDl     *int     `json:"glucose_mg_dl,omitempty"`
	Notes           string   `json:"notes,omitempty"`
}

type ClinicalNotePayload struct {
	Text string `json:"text"`
}

type ETAUpdatedPayload struct {
	ETA time.Time `json:"eta"`
}

type DispatchNotePayload struct {
	Message string `json:"message"`
}

func (VisitCreatedPayload) EventType() EventType        { return EventVisitCreated }
func (StatusChangePayload) EventType() EventType        { return EventStatusChange }
func (StaffAssignedPayload) EventType() EventType       { return EventStaffAssigned }
func (DocumentCreatedPayload) EventType() EventType     { return EventDocumentCreated }
func (DocumentEditedPayload) EventType() EventType      { return EventDocumentEdited }
func (DocumentSignedPayload) EventType() EventType      { return EventDocumentSigned }
func (DocumentDistributedPayload) EventType() EventType { return EventDocumentDistributed }
func (DocumentStatusPayload) EventType() EventType      { return EventDocumentStatus }
func (VitalsRecordedPayload) EventType() EventType      { return EventVitalsRecorded }
func (ClinicalNotePayload) EventType() EventType        { return EventClinicalNote }
func (ETAUpdatedPayload) EventType() EventType          { return EventETAUpdated }
func (DispatchNotePayload) EventType() EventType        { return EventDispatchNote }

func (VisitCreatedPayload) isEventPayload()        {}
func (StatusChangePayload) isEventPayload()        {}
func (StaffAssignedPayload) isEventPayload()       {}
func (DocumentCreatedPayload) isEventPayload()     {}
func (DocumentEditedPayload) isEventPayload()      {}
func (DocumentSignedPayload) isEventPayload()      {}
func (DocumentDistributedPayload) isEventPayload() {}
func (DocumentStatusPayload) isEventPayload()      {}
func (VitalsRecordedPayload) isEventPayload()      {}
func (ClinicalNotePayload) isEventPayload()        {}
func (ETAUpdatedPayload) isEventPayload()          {}
func (DispatchNotePayload) isEventPayload()        {}

// DecodePayload parses raw JSON into the payload struct for t.
func DecodePayload(t EventType, raw []byte) (EventPayload, error) {
	var (
		payload EventPayload
		err     error
	)
	switch t {
	case EventVisitCreated:
		var p VisitCreatedPayload
		err = json.Unmarshal(raw, &p)
		payload = p
	case EventStatusChange:
		var p StatusChangePayload
		err = json.Unmarshal(raw, &p)
		payload = p
	case EventStaffAssigned:
		var p StaffAssignedPayload
		err = json.Unmarshal(raw, &p)
		payload = p
	case EventDocumentCreated:
		var p DocumentCreatedPayload
		err = json.Unmarshal(raw, &p)
		payload = p
	case EventDocumentEdited:
		var p DocumentEditedPayload
		err = json.Unmarshal(raw, &p)
		payload = p
	case EventDocumentStatus:
		var p DocumentStatusPayload
		err = json.Unmarshal(raw, &p)
		payload = p
	case EventDocumentSigned:
		var p DocumentSignedPayload
		err = json.Unmarshal(raw, &p)
		payload = p
	case EventDocumentDistributed:
		var p DocumentDistributedPayload
		err = json.Unmarshal(raw, &p)
		payload = p
	case EventVitalsRecorded:
		var p VitalsRecordedPayload
		err = json.Unmarshal(raw, &p)
		payload = p
	case EventClinicalNote:
		var p ClinicalNotePayload
		err = json.Unmarshal(raw, &p)
		payload = p
	case EventETAUpdated:
		var p ETAUpdatedPayload
		err = json.Unmarshal(raw, &p)
		payload = p
	case EventDispatchNote:
		var p DispatchNotePayload
		err = json.Unmarshal(raw, &p)
		payload = p
	default:
		return nil, fmt.Errorf("unknown event type %q", t)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", t, err)
	}
	return payload, nil
}

// ValidatePayload checks annotation payloads supplied by callers.
func ValidatePayload(p EventPayload) error {
	switch v := p.(type) {
	case VitalsRecordedPayload:
		if v.HeartRate == nil && v.Systolic == nil && v.Diastolic == nil && v.TemperatureC == nil &&
			v.SpO2 == nil && v.RespiratoryRate == nil && v.GlucoseMgDl == nil {
			return errors.New("vitals_recorded requires at least one reading")
		}
		if (v.Systolic == nil) != (v.Diastolic == nil) {
			return errors.New("blood pressure requires both systolic and diastolic")
		}
	case ClinicalNotePayload:
		if v.Text == "" {
			return errors.New("clinical_note text required")
		}
	case DispatchNotePayload:
		if v.Message == "" {
			return errors.New("dispatch_note message required")
		}
	case ETAUpdatedPayload:
		if v.ETA.IsZero() {
			return errors.New("eta_updated eta required")
		}
	}
	return nil
}
