package dto

import (
	"time"

	"github.com/spec-kit/visit-service/internal/domain"
)

// CreateVisitRequest payload.
type CreateVisitRequest struct {
	OrgID          string    `json:"org_id"`
	PatientID      string    `json:"patient_id"`
	MedicalBoxID   *string   `json:"medical_box_id"`
	ScheduledStart time.Time `json:"scheduled_start"`
	ScheduledEnd   time.Time `json:"scheduled_end"`
}

// AssignVisitRequest payload.
type AssignVisitRequest struct {
	ExpectedFrom domain.VisitStatus `json:"expected_from"`
	NurseID      *string            `json:"nurse_id"`
	DoctorID     *string            `json:"doctor_id"`
}

// TransitionRequest payload. ExpectedFrom is the status the caller last saw.
type TransitionRequest struct {
	ExpectedFrom domain.VisitStatus `json:"expected_from"`
	To           domain.VisitStatus `json:"to"`
	Reason       string             `json:"reason"`
}

// VisitResponse representation.
type VisitResponse struct {
	ID             string             `json:"id"`
	OrgID          string             `json:"org_id"`
	PatientID      string             `json:"patient_id"`
	NurseID        *string            `json:"nurse_id"`
	DoctorID       *string            `json:"doctor_id"`
	MedicalBoxID   *string            `json:"medical_box_id"`
	Status         domain.VisitStatus `json:"status"`
	ScheduledStart time.Time          `json:"scheduled_start"`
	ScheduledEnd   time.Time          `json:"scheduled_end"`
	CancelReason   *string            `json:"cancel_reason,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// NewVisitResponse maps a domain visit.
func NewVisitResponse(v *domain.Visit) VisitResponse {
	return VisitResponse{
		ID:             v.ID,
		OrgID:          v.OrgID,
		PatientID:      v.PatientID,
		NurseID:        v.NurseID,
		DoctorID:       v.DoctorID,
		MedicalBoxID:   v.MedicalBoxID,
		Status:         v.Status,
		ScheduledStart: v.ScheduledStart,
		ScheduledEnd:   v.ScheduledEnd,
		CancelReason:   v.CancelReason,
		CreatedAt:      v.CreatedAt,
		UpdatedAt:      v.UpdatedAt,
	}
}
