package dto

import (
	"encoding/json"
	"time"

	"github.com/spec-kit/visit-service/internal/domain"
)

// CreateDocumentRequest payload. Content is decoded according to the route's kind.
type CreateDocumentRequest struct {
	DoctorID *string         `json:"doctor_id"`
	Content  json.RawMessage `json:"content"`
}

// SignRequest payload. When IP is empty the connection's address is used.
type SignRequest struct {
	SignerName string `json:"signer_name"`
	IP         string `json:"ip"`
}

// DistributeRequest payload.
type DistributeRequest struct {
	Channel domain.DistributionChannel `json:"channel"`
}

// AdvanceDocumentRequest payload.
type AdvanceDocumentRequest struct {
	To domain.DocumentStatus `json:"to"`
}

// AttachPDFRequest payload sent by the render function callback.
type AttachPDFRequest struct {
	URL string `json:"url"`
}

// SignatureResponse representation.
type SignatureResponse struct {
	Name          string    `json:"name"`
	SignedAt      time.Time `json:"signed_at"`
	IP            string    `json:"ip"`
	ContentDigest string    `json:"content_digest"`
}

// DocumentResponse representation.
type DocumentResponse struct {
	ID                  string                      `json:"id"`
	Kind                domain.DocumentKind         `json:"kind"`
	VisitID             string                      `json:"visit_id"`
	PatientID           string                      `json:"patient_id"`
	DoctorID            string                      `json:"doctor_id"`
	Status              domain.DocumentStatus       `json:"status"`
	Content             domain.DocumentContent      `json:"content"`
	Signature           *SignatureResponse          `json:"signature"`
	PDFURL              *string                     `json:"pdf_url"`
	DistributionChannel *domain.DistributionChannel `json:"distribution_channel,omitempty"`
	DistributedAt       *time.Time                  `json:"distributed_at,omitempty"`
	CreatedBy           string                      `json:"created_by"`
	CreatedAt           time.Time                   `json:"created_at"`
	UpdatedAt           time.Time                   `json:"updated_at"`
}

// NewDocumentResponse maps a domain document.
func NewDocumentResponse(d *domain.Document) DocumentResponse {
	resp := DocumentResponse{
		ID:                  d.ID,
		Kind:                d.Kind,
		VisitID:             d.VisitID,
		PatientID:           d.PatientID,
		DoctorID:            d.DoctorID,
		Status:              d.Status,
		Content:             d.Content,
		PDFURL:              d.PDFURL,
		DistributionChannel: d.DistributionChannel,
		DistributedAt:       d.DistributedAt,
		CreatedBy:           d.CreatedBy,
		CreatedAt:           d.CreatedAt,
		UpdatedAt:           d.UpdatedAt,
	}
	if d.Signature != nil {
		resp.Signature = &SignatureResponse{
			Name:          d.Signature.Name,
			SignedAt:      d.Signature.SignedAt,
			IP:            d.Signature.IP,
			ContentDigest: d.Signature.ContentDigest,
		}
	}
	return resp
}
