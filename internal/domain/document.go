package domain

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
)

// DocumentKind differentiates clinical document variants.
type DocumentKind string

const (
	KindPrescription      DocumentKind = "prescription"
	KindSickNote          DocumentKind = "sick_note"
	KindDiagnosticRequest DocumentKind = "diagnostic_request"
)

// DocumentStatus is the union of every kind's workflow states.
type DocumentStatus string

const (
	DocumentStatusDraft          DocumentStatus = "draft"
	DocumentStatusSigned         DocumentStatus = "signed"
	DocumentStatusSentToPatient  DocumentStatus = "sent_to_patient"
	DocumentStatusSentToPharmacy DocumentStatus = "sent_to_pharmacy"
	DocumentStatusPending        DocumentStatus = "pending"
	DocumentStatusFulfilled      DocumentStatus = "fulfilled"
	DocumentStatusCancelled      DocumentStatus = "cancelled"
)

// DistributionChannel is where a signed prescription is sent.
type DistributionChannel string

const (
	ChannelPatient  DistributionChannel = "patient"
	ChannelPharmacy DistributionChannel = "pharmacy"
)

// Status returns the prescription status reached through the channel.
func (c DistributionChannel) Status() (DocumentStatus, bool) {
	switch c {
	case ChannelPatient:
		return DocumentStatusSentToPatient, true
	case ChannelPharmacy:
		return DocumentStatusSentToPharmacy, true
	}
	return "", false
}

type workflow struct {
	initial  DocumentStatus
	signable bool
	edges    map[DocumentStatus][]DocumentStatus
}

var workflows = map[DocumentKind]workflow{
	KindPrescription: {
		initial:  DocumentStatusDraft,
		signable: true,
		edges: map[DocumentStatus][]DocumentStatus{
			DocumentStatusDraft:  {DocumentStatusSigned},
			DocumentStatusSigned: {DocumentStatusSentToPatient, DocumentStatusSentToPharmacy},
		},
	},
	KindSickNote: {
		initial:  DocumentStatusDraft,
		signable: true,
		edges: map[DocumentStatus][]DocumentStatus{
			DocumentStatusDraft: {DocumentStatusSigned},
		},
	},
	KindDiagnosticRequest: {
		initial: DocumentStatusPending,
		edges: map[DocumentStatus][]DocumentStatus{
			DocumentStatusPending: {DocumentStatusFulfilled, DocumentStatusCancelled},
		},
	},
}

// Valid reports whether k is a known document kind.
func (k DocumentKind) Valid() bool {
	_, ok := workflows[k]
	return ok
}

// InitialStatus is the editable status a new document starts in.
func (k DocumentKind) InitialStatus() DocumentStatus {
	return workflows[k].initial
}

// Signable reports whether the kind goes through the signing step.
func (k DocumentKind) Signable() bool {
	return workflows[k].signable
}

// CanAdvance reports whether from -> to is an edge of the kind's workflow.
func (k DocumentKind) CanAdvance(from, to DocumentStatus) bool {
	for _, candidate := range workflows[k].edges[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// Signature is captured in the same statement that flips status to signed.
type Signature struct {
	Name          string
	SignedAt      time.Time
	IP            string
	ContentDigest string
}

// DocumentRef addresses a document; each kind lives in its own table.
type DocumentRef struct {
	Kind DocumentKind
	ID   string
}

// Document is the common envelope for every clinical document kind.
type Document struct {
	ID                  string
	Kind                DocumentKind
	VisitID             string
	PatientID           string
	DoctorID            string
	Status              DocumentStatus
	Content             DocumentContent
	Signature           *Signature
	PDFURL              *string
	DistributionChannel *DistributionChannel
	DistributedAt       *time.Time
	CreatedBy           string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Ref returns the document's address.
func (d *Document) Ref() DocumentRef {
	return DocumentRef{Kind: d.Kind, ID: d.ID}
}

// Editable reports whether content fields may still change.
func (d *Document) Editable() bool {
	return d.Status == d.Kind.InitialStatus()
}

// DocumentContent is implemented by the per-kind content structs.
type DocumentContent interface {
	Kind() DocumentKind
	Validate() error
}

// PrescriptionItem is one medication line.
type PrescriptionItem struct {
	Medication   string `json:"medication"`
	Dosage       string `json:"dosage"`
	Frequency    string `json:"frequency"`
	Duration     string `json:"duration,omitempty"`
	Quantity     int    `json:"quantity,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

type PrescriptionContent struct {
	Items []PrescriptionItem `json:"items"`
	Notes string             `json:"notes,omitempty"`
}

type SickNoteContent struct {
	Diagnosis string    `json:"diagnosis"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	Remarks   string    `json:"remarks,omitempty"`
}

// DiagnosticModality distinguishes lab work from imaging.
type DiagnosticModality string

const (
	ModalityLab     DiagnosticModality = "lab"
	ModalityImaging DiagnosticModality = "imaging"
)

type DiagnosticRequestContent struct {
	Tests              []string           `json:"tests"`
	Modality           DiagnosticModality `json:"modality"`
	ClinicalIndication string             `json:"clinical_indication,omitempty"`
	Urgency            string             `json:"urgency,omitempty"`
}

func (PrescriptionContent) Kind() DocumentKind      { return KindPrescription }
func (SickNoteContent) Kind() DocumentKind          { return KindSickNote }
func (DiagnosticRequestContent) Kind() DocumentKind { return KindDiagnosticRequest }

func (c PrescriptionContent) Validate() error {
	for i, item := range c.Items {
		if strings.TrimSpace(item.Medication) == "" {
			return fmt.Errorf("items[%d].medication required", i)
		}
		if item.Quantity < 0 {
			return fmt.Errorf("items[%d].quantity must not be negative", i)
		}
	}
	return nil
}

func (c SickNoteContent) Validate() error {
	if !c.StartDate.IsZero() && !c.EndDate.IsZero() && c.EndDate.Before(c.StartDate) {
		return errors.New("end_date before start_date")
	}
	return nil
}

func (c DiagnosticRequestContent) Validate() error {
	switch c.Modality {
	case "", ModalityLab, ModalityImaging:
	default:
		return fmt.Errorf("unknown modality %q", c.Modality)
	}
	for i, test := range c.Tests {
		if strings.TrimSpace(test) == "" {
			return fmt.Errorf("tests[%d] empty", i)
		}
	}
	return nil
}

// ReadyToSign checks the content is complete enough to be finalized.
func ReadyToSign(c DocumentContent) error {
	switch v := c.(type) {
	case PrescriptionContent:
		if len(v.Items) == 0 {
			return errors.New("prescription has no items")
		}
	case SickNoteContent:
		if strings.TrimSpace(v.Diagnosis) == "" {
			return errors.New("sick note has no diagnosis")
		}
		if v.StartDate.IsZero() || v.EndDate.IsZero() {
			return errors.New("sick note requires start_date and end_date")
		}
	}
	return c.Validate()
}

// ContentDigest returns a hex BLAKE2b-256 of the content's JSON encoding. It is
// stored with the signature so later reads can prove content was not altered.
func ContentDigest(c DocumentContent) (string, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	sum := blake2b.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// DocumentPatch is a partial content update for one kind. Nil fields are left
// untouched; a patch with every field nil is Empty.
type DocumentPatch interface {
	Kind() DocumentKind
	Empty() bool
	Apply(DocumentContent) (DocumentContent, error)
}

type PrescriptionPatch struct {
	Items *[]PrescriptionItem `json:"items,omitempty"`
	Notes *string             `json:"notes,omitempty"`
}

type SickNotePatch struct {
	Diagnosis *string    `json:"diagnosis,omitempty"`
	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`
	Remarks   *string    `json:"remarks,omitempty"`
}

type DiagnosticRequestPatch struct {
	Tests              *[]string           `json:"tests,omitempty"`
	Modality           *DiagnosticModality `json:"modality,omitempty"`
	ClinicalIndication *string             `json:"clinical_indication,omitempty"`
	Urgency            *string             `json:"urgency,omitempty"`
}

func (PrescriptionPatch) Kind() DocumentKind      { return KindPrescription }
func (SickNotePatch) Kind() DocumentKind          { return KindSickNote }
func (DiagnosticRequestPatch) Kind() DocumentKind { return KindDiagnosticRequest }

func (p PrescriptionPatch) Empty() bool { return p.Items == nil && p.Notes == nil }

func (p SickNotePatch) Empty() bool {
	return p.Diagnosis == nil && p.StartDate == nil && p.EndDate == nil && p.Remarks == nil
}

func (p DiagnosticRequestPatch) Empty() bool {
	return p.Tests == nil && p.Modality == nil && p.ClinicalIndication == nil && p.Urgency == nil
}

var errPatchKind = errors.New("patch kind does not match document kind")

func (p PrescriptionPatch) Apply(c DocumentContent) (DocumentContent, error) {
	content, ok := c.(PrescriptionContent)
	if !ok {
		return nil, errPatchKind
	}
	if p.Items != nil {
		content.Items = append([]PrescriptionItem(nil), (*p.Items)...)
	}
	if p.Notes != nil {
		content.Notes = *p.Notes
	}
	return content, content.Validate()
}

func (p SickNotePatch) Apply(c DocumentContent) (DocumentContent, error) {
	content, ok := c.(SickNoteContent)
	if !ok {
		return nil, errPatchKind
	}
	if p.Diagnosis != nil {
		content.Diagnosis = *p.Diagnosis
	}
	if p.StartDate != nil {
		content.StartDate = *p.StartDate
	}
	if p.EndDate != nil {
		content.EndDate = *p.EndDate
	}
	if p.Remarks != nil {
		content.Remarks = *p.Remarks
	}
	return content, content.Validate()
}

func (p DiagnosticRequestPatch) Apply(c DocumentContent) (DocumentContent, error) {
	content, ok := c.(DiagnosticRequestContent)
	if !ok {
		return nil, errPatchKind
	}
	if p.Tests != nil {
		content.Tests = append([]string(nil), (*p.Tests)...)
	}
	if p.Modality != nil {
		content.Modality = *p.Modality
	}
	if p.ClinicalIndication != nil {
		content.ClinicalIndication = *p.ClinicalIndication
	}
	if p.Urgency != nil {
		content.Urgency = *p.Urgency
	}
	return content, content.Validate()
}

// DecodeContent parses raw JSON into the content struct for kind.
func DecodeContent(kind DocumentKind, raw []byte) (DocumentContent, error) {
	switch kind {
	case KindPrescription:
		var c PrescriptionContent
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, err
		}
		return c, nil
	case KindSickNote:
		var c SickNoteContent
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, err
		}
		return c, nil
	case KindDiagnosticRequest:
		var c DiagnosticRequestContent
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, err
		}
		return c, nil
	}
	return nil, fmt.Errorf("unknown document kind %q", kind)
}

// DecodePatch parses raw JSON into the patch struct for kind.
func DecodePatch(kind DocumentKind, raw []byte) (DocumentPatch, error) {
	switch kind {
	case KindPrescription:
		var p PrescriptionPatch
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case KindSickNote:
		var p SickNotePatch
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case KindDiagnosticRequest:
		var p DiagnosticRequestPatch
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	}
	return nil, fmt.Errorf("unknown document kind %q", kind)
}
