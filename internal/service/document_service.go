package service

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/visit-service/internal/authz"
	"github.com/spec-kit/visit-service/internal/domain"
	"github.com/spec-kit/visit-service/internal/events"
	"github.com/spec-kit/visit-service/internal/repository"
	apperrors "github.com/spec-kit/visit-service/pkg/util/errorutil"
)

// RenderScheduler queues PDF rendering for a finalized document.
type RenderScheduler interface {
	Schedule(ref domain.DocumentRef)
}

// DocumentService drives prescriptions, sick notes and diagnostic requests
// through draft, sign, edit and distribute.
type DocumentService struct {
	documents repository.DocumentRepository
	visits    repository.VisitRepository
	events    repository.EventRepository
	tx        Transactor
	matrix    *authz.Matrix
	renderer  RenderScheduler
	publisher
}

// DocumentDependencies bundles collaborators for DocumentService.
type DocumentDependencies struct {
	DocumentRepo repository.DocumentRepository
	VisitRepo    repository.VisitRepository
	EventRepo    repository.EventRepository
	Tx           Transactor
	Matrix       *authz.Matrix
	Renderer     RenderScheduler
	Dispatcher   events.Dispatcher
	Logger       *zap.Logger
	Now          func() time.Time
}

// SignInput carries the signer's attestation. Name and IP are taken as
// supplied by the client.
type SignInput struct {
	SignerName string
	IP         string
}

// NewDocumentService constructs the service.
func NewDocumentService(deps DocumentDependencies) *DocumentService {
	matrix := deps.Matrix
	if matrix == nil {
		matrix = authz.NewMatrix()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = nowUTC
	}
	return &DocumentService{
		documents: deps.DocumentRepo,
		visits:    deps.VisitRepo,
		events:    deps.EventRepo,
		tx:        deps.Tx,
		matrix:    matrix,
		renderer:  deps.Renderer,
		publisher: publisher{dispatcher: deps.Dispatcher, logger: logger, now: now},
	}
}

// CreateDocument opens a new document on a visit in the kind's initial
// status. Doctors author for themselves; override roles must name the doctor
// or inherit the visit's.
func (s *DocumentService) CreateDocument(ctx context.Context, session domain.Session, visitID string, content domain.DocumentContent, doctorID *string) (*domain.Document, error) {
	if content == nil {
		return nil, apperrors.NewValidationError("content required", nil)
	}
	kind := content.Kind()
	if err := s.matrix.Check(session, authz.DocumentResource(kind), authz.ActionCreate); err != nil {
		return nil, err
	}
	if err := content.Validate(); err != nil {
		return nil, apperrors.NewValidationError(err.Error(), map[string]any{"kind": kind})
	}

	doc := &domain.Document{
		Kind:      kind,
		VisitID:   visitID,
		Status:    kind.InitialStatus(),
		Content:   content,
		CreatedBy: session.ActorID,
	}
	err := s.tx.WithinTx(ctx, session, func(ctx context.Context) error {
		visit, err := s.visits.GetForUpdate(ctx, visitID)
		if err != nil {
			return notFoundAs(err, "visit", visitID)
		}
		if !canAccessVisit(s.matrix, session, visit) {
			return forbiddenVisit(visitID)
		}
		if visit.Status == domain.VisitStatusCancelled || visit.Status == domain.VisitStatusNoShow {
			return apperrors.NewInvalidTransition("visit did not take place", map[string]any{"visit_id": visitID, "status": visit.Status})
		}
		doc.PatientID = visit.PatientID
		switch {
		case session.Role == domain.RoleDoctor:
			doc.DoctorID = session.ActorID
		case doctorID != nil && *doctorID != "":
			doc.DoctorID = *doctorID
		case visit.DoctorID != nil:
			doc.DoctorID = *visit.DoctorID
		default:
			return apperrors.NewValidationError("doctor_id required", map[string]any{"visit_id": visitID})
		}

		if err := s.documents.Create(ctx, doc); err != nil {
			return err
		}
		return s.events.Append(ctx, &domain.VisitEvent{
			VisitID:   visitID,
			CreatedBy: session.ActorID,
			Payload:   domain.DocumentCreatedPayload{Kind: kind, DocumentID: doc.ID},
		})
	})
	if err != nil {
		return nil, err
	}

	s.publishDocument(ctx, session, events.EventDocumentCreated, doc)
	return doc, nil
}

// GetDocument loads a document the caller may see.
func (s *DocumentService) GetDocument(ctx context.Context, session domain.Session, ref domain.DocumentRef) (*domain.Document, error) {
	if !ref.Kind.Valid() {
		return nil, apperrors.NewValidationError("unknown document kind", map[string]any{"kind": ref.Kind})
	}
	if err := s.matrix.Check(session, authz.DocumentResource(ref.Kind), authz.ActionRead); err != nil {
		return nil, err
	}
	var doc *domain.Document
	err := s.tx.WithinTx(ctx, session, func(ctx context.Context) error {
		var err error
		doc, err = s.documents.Get(ctx, ref)
		if err != nil {
			return notFoundAs(err, string(ref.Kind), ref.ID)
		}
		return s.checkVisitAccess(ctx, session, doc.VisitID)
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// ListDocuments returns every document on a visit, filtered to the kinds the
// caller may read.
func (s *DocumentService) ListDocuments(ctx context.Context, session domain.Session, visitID string) ([]domain.Document, error) {
	if err := s.matrix.Check(session, authz.ResourceVisit, authz.ActionRead); err != nil {
		return nil, err
	}
	var docs []domain.Document
	err := s.tx.WithinTx(ctx, session, func(ctx context.Context) error {
		if err := s.checkVisitAccess(ctx, session, visitID); err != nil {
			return err
		}
		var err error
		docs, err = s.documents.ListByVisit(ctx, visitID)
		return err
	})
	if err != nil {
		return nil, err
	}
	result := make([]domain.Document, 0, len(docs))
	for _, doc := range docs {
		if s.matrix.Allowed(session.Role, authz.DocumentResource(doc.Kind), authz.ActionRead) {
			result = append(result, doc)
		}
	}
	return result, nil
}

// Edit applies a content patch. Only documents still in their initial status
// can change; anything else is DOCUMENT_LOCKED. A patch with no fields is a
// validation error and records nothing.
func (s *DocumentService) Edit(ctx context.Context, session domain.Session, ref domain.DocumentRef, patch domain.DocumentPatch) (*domain.Document, error) {
	if patch == nil || patch.Kind() != ref.Kind {
		return nil, apperrors.NewValidationError("patch does not match document kind", map[string]any{"kind": ref.Kind})
	}
	if err := s.matrix.Check(session, authz.DocumentResource(ref.Kind), authz.ActionEdit); err != nil {
		return nil, err
	}

	var updated *domain.Document
	err := s.tx.WithinTx(ctx, session, func(ctx context.Context) error {
		doc, err := s.lockOwned(ctx, session, ref)
		if err != nil {
			return err
		}
		if !doc.Editable() {
			return lockedError(doc)
		}
		if patch.Empty() {
			return apperrors.NewValidationError("patch has no fields", map[string]any{"kind": ref.Kind})
		}
		content, err := patch.Apply(doc.Content)
		if err != nil {
			return apperrors.NewValidationError(err.Error(), map[string]any{"kind": ref.Kind})
		}
		updated, err = s.documents.UpdateContent(ctx, ref, content)
		if errors.Is(err, pgx.ErrNoRows) {
			return lockedError(doc)
		}
		if err != nil {
			return err
		}
		return s.events.Append(ctx, &domain.VisitEvent{
			VisitID:   doc.VisitID,
			CreatedBy: session.ActorID,
			Payload:   domain.DocumentEditedPayload{Kind: ref.Kind, DocumentID: ref.ID},
		})
	})
	if err != nil {
		return nil, err
	}

	s.publishDocument(ctx, session, events.EventDocumentEdited, updated)
	return updated, nil
}

// Sign finalizes a draft. Status, signer name, timestamp, IP and content
// digest are written in one statement together with the timeline row; PDF
// rendering is queued only after commit.
func (s *DocumentService) Sign(ctx context.Context, session domain.Session, ref domain.DocumentRef, input SignInput) (*domain.Document, error) {
	if !ref.Kind.Valid() {
		return nil, apperrors.NewValidationError("unknown document kind", map[string]any{"kind": ref.Kind})
	}
	if !ref.Kind.Signable() {
		return nil, apperrors.NewInvalidTransition("document kind is not signed", map[string]any{"kind": ref.Kind})
	}
	if err := s.matrix.Check(session, authz.DocumentResource(ref.Kind), authz.ActionSign); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(input.SignerName)
	ip := strings.TrimSpace(input.IP)

	var signed *domain.Document
	err := s.tx.WithinTx(ctx, session, func(ctx context.Context) error {
		doc, err := s.lockOwned(ctx, session, ref)
		if err != nil {
			return err
		}
		if doc.Status != domain.DocumentStatusDraft {
			return lockedError(doc)
		}
		if name == "" {
			return apperrors.NewValidationError("signer name required", nil)
		}
		if net.ParseIP(ip) == nil {
			return apperrors.NewValidationError("signer ip invalid", map[string]any{"ip": input.IP})
		}
		if err := domain.ReadyToSign(doc.Content); err != nil {
			return apperrors.NewValidationError(err.Error(), map[string]any{"kind": ref.Kind})
		}
		digest, err := domain.ContentDigest(doc.Content)
		if err != nil {
			return err
		}
		signed, err = s.documents.Sign(ctx, ref, domain.Signature{
			Name:          name,
			SignedAt:      s.now(),
			IP:            ip,
			ContentDigest: digest,
		})
		if errors.Is(err, pgx.ErrNoRows) {
			return lockedError(doc)
		}
		if err != nil {
			return err
		}
		return s.events.Append(ctx, &domain.VisitEvent{
			VisitID:   doc.VisitID,
			CreatedBy: session.ActorID,
			Payload:   domain.DocumentSignedPayload{Kind: ref.Kind, DocumentID: ref.ID},
		})
	})
	if err != nil {
		return nil, err
	}

	s.schedule(ref)
	s.publishDocument(ctx, session, events.EventDocumentSigned, signed)
	return signed, nil
}

// Distribute sends a signed prescription to the patient or a pharmacy.
// Repeating the same channel is a no-op.
func (s *DocumentService) Distribute(ctx context.Context, session domain.Session, ref domain.DocumentRef, channel domain.DistributionChannel) (*domain.Document, error) {
	if ref.Kind != domain.KindPrescription {
		return nil, apperrors.NewInvalidTransition("only prescriptions are distributed", map[string]any{"kind": ref.Kind})
	}
	target, ok := channel.Status()
	if !ok {
		return nil, apperrors.NewValidationError("unknown distribution channel", map[string]any{"channel": channel})
	}
	if err := s.matrix.Check(session, authz.ResourcePrescription, authz.ActionDistribute); err != nil {
		return nil, err
	}

	var (
		result  *domain.Document
		changed bool
	)
	err := s.tx.WithinTx(ctx, session, func(ctx context.Context) error {
		doc, err := s.lockOwned(ctx, session, ref)
		if err != nil {
			return err
		}
		if doc.Status == target {
			result = doc
			return nil
		}
		if !ref.Kind.CanAdvance(doc.Status, target) {
			return apperrors.NewInvalidTransition("prescription must be signed and not yet sent", map[string]any{
				"document_id": ref.ID, "from": doc.Status, "to": target,
			})
		}
		result, err = s.documents.MarkDistributed(ctx, ref, channel, target)
		if err != nil {
			return staleAs(err, map[string]any{"document_id": ref.ID, "expected": doc.Status})
		}
		changed = true
		return s.events.Append(ctx, &domain.VisitEvent{
			VisitID:   doc.VisitID,
			CreatedBy: session.ActorID,
			Payload:   domain.DocumentDistributedPayload{Kind: ref.Kind, DocumentID: ref.ID, Channel: channel},
		})
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.publishDocument(ctx, session, events.EventDocumentDistributed, result)
	}
	return result, nil
}

// AdvanceDocument moves a document along a workflow edge that is neither
// signing nor distribution, such as fulfilling or cancelling a diagnostic
// request. Reaching the current status again is a no-op.
func (s *DocumentService) AdvanceDocument(ctx context.Context, session domain.Session, ref domain.DocumentRef, to domain.DocumentStatus) (*domain.Document, error) {
	if !ref.Kind.Valid() {
		return nil, apperrors.NewValidationError("unknown document kind", map[string]any{"kind": ref.Kind})
	}
	switch to {
	case domain.DocumentStatusSigned, domain.DocumentStatusSentToPatient, domain.DocumentStatusSentToPharmacy:
		return nil, apperrors.NewInvalidTransition("use sign or distribute for this status", map[string]any{"to": to})
	}
	if err := s.matrix.Check(session, authz.DocumentResource(ref.Kind), authz.AdvanceAction(to)); err != nil {
		return nil, err
	}

	var (
		result  *domain.Document
		from    domain.DocumentStatus
		changed bool
	)
	err := s.tx.WithinTx(ctx, session, func(ctx context.Context) error {
		doc, err := s.lockOwned(ctx, session, ref)
		if err != nil {
			return err
		}
		from = doc.Status
		if doc.Status == to {
			result = doc
			return nil
		}
		if !ref.Kind.CanAdvance(doc.Status, to) {
			return apperrors.NewInvalidTransition("document transition not allowed", map[string]any{
				"document_id": ref.ID, "from": doc.Status, "to": to,
			})
		}
		result, err = s.documents.UpdateStatus(ctx, ref, doc.Status, to)
		if err != nil {
			return staleAs(err, map[string]any{"document_id": ref.ID, "expected": doc.Status})
		}
		changed = true
		return s.events.Append(ctx, &domain.VisitEvent{
			VisitID:   doc.VisitID,
			CreatedBy: session.ActorID,
			Payload:   domain.DocumentStatusPayload{Kind: ref.Kind, DocumentID: ref.ID, Old: from, New: to},
		})
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.publishDocument(ctx, session, events.EventDocumentAdvanced, result)
	}
	return result, nil
}

// RegeneratePDF queues rendering again for a finalized document. It is safe
// to call repeatedly and is how a lost render is recovered.
func (s *DocumentService) RegeneratePDF(ctx context.Context, session domain.Session, ref domain.DocumentRef) (*domain.Document, error) {
	if !ref.Kind.Valid() {
		return nil, apperrors.NewValidationError("unknown document kind", map[string]any{"kind": ref.Kind})
	}
	if err := s.matrix.Check(session, authz.DocumentResource(ref.Kind), authz.ActionRegeneratePDF); err != nil {
		return nil, err
	}
	var doc *domain.Document
	err := s.tx.WithinTx(ctx, session, func(ctx context.Context) error {
		var err error
		doc, err = s.documents.Get(ctx, ref)
		if err != nil {
			return notFoundAs(err, string(ref.Kind), ref.ID)
		}
		if err := s.checkVisitAccess(ctx, session, doc.VisitID); err != nil {
			return err
		}
		return checkOwner(s.matrix, session, doc)
	})
	if err != nil {
		return nil, err
	}
	if doc.Editable() {
		return nil, apperrors.NewInvalidTransition("document is not finalized", map[string]any{"document_id": ref.ID, "status": doc.Status})
	}
	s.schedule(ref)
	return doc, nil
}

// AttachPDF stores the rendered PDF location on a finalized document.
func (s *DocumentService) AttachPDF(ctx context.Context, session domain.Session, ref domain.DocumentRef, url string) (*domain.Document, error) {
	if !ref.Kind.Valid() {
		return nil, apperrors.NewValidationError("unknown document kind", map[string]any{"kind": ref.Kind})
	}
	if !s.matrix.Overrides(session.Role) {
		return nil, apperrors.NewForbidden("only the service may attach rendered files", map[string]any{"role": session.Role})
	}
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, apperrors.NewValidationError("url required", nil)
	}

	var doc *domain.Document
	err := s.tx.WithinTx(ctx, session, func(ctx context.Context) error {
		current, err := s.documents.Get(ctx, ref)
		if err != nil {
			return notFoundAs(err, string(ref.Kind), ref.ID)
		}
		if current.Editable() {
			return apperrors.NewInvalidTransition("document is not finalized", map[string]any{"document_id": ref.ID, "status": current.Status})
		}
		doc, err = s.documents.SetPDFURL(ctx, ref, url)
		return staleAs(err, map[string]any{"document_id": ref.ID})
	})
	if err != nil {
		return nil, err
	}

	s.publishDocument(ctx, session, events.EventDocumentPDFReady, doc)
	return doc, nil
}

func (s *DocumentService) schedule(ref domain.DocumentRef) {
	if s.renderer == nil {
		s.logger.Warn("no renderer configured; pdf stays pending",
			zap.String("kind", string(ref.Kind)), zap.String("document_id", ref.ID))
		return
	}
	s.renderer.Schedule(ref)
}

// lockOwned loads the document for update and checks the caller may change
// it: the visit must be visible and doctors may only touch their own work.
// lockOwned locks the parent visit row before the document row, the same
// order status transitions use, so event seq follows commit order.
func (s *DocumentService) lockOwned(ctx context.Context, session domain.Session, ref domain.DocumentRef) (*domain.Document, error) {
	current, err := s.documents.Get(ctx, ref)
	if err != nil {
		return nil, notFoundAs(err, string(ref.Kind), ref.ID)
	}
	visit, err := s.visits.GetForUpdate(ctx, current.VisitID)
	if err != nil {
		return nil, notFoundAs(err, "visit", current.VisitID)
	}
	if !canAccessVisit(s.matrix, session, visit) {
		return nil, forbiddenVisit(visit.ID)
	}
	doc, err := s.documents.GetForUpdate(ctx, ref)
	if err != nil {
		return nil, notFoundAs(err, string(ref.Kind), ref.ID)
	}
	if err := checkOwner(s.matrix, session, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *DocumentService) checkVisitAccess(ctx context.Context, session domain.Session, visitID string) error {
	visit, err := s.visits.GetByID(ctx, visitID)
	if err != nil {
		return notFoundAs(err, "visit", visitID)
	}
	if !canAccessVisit(s.matrix, session, visit) {
		return forbiddenVisit(visitID)
	}
	return nil
}

func (s *DocumentService) publishDocument(ctx context.Context, session domain.Session, eventType events.EventType, doc *domain.Document) {
	if doc == nil {
		return
	}
	s.publishEvent(ctx, events.Event{
		Type:    eventType,
		VisitID: doc.VisitID,
		Actor:   events.ActorFromSession(session),
		Payload: events.DocumentPayload{
			Kind:       doc.Kind,
			DocumentID: doc.ID,
			Status:     doc.Status,
			Channel:    doc.DistributionChannel,
			PDFURL:     doc.PDFURL,
		},
	})
}

func checkOwner(matrix *authz.Matrix, session domain.Session, doc *domain.Document) error {
	if matrix.Overrides(session.Role) || doc.DoctorID == session.ActorID {
		return nil
	}
	return apperrors.NewForbidden("document belongs to another doctor", map[string]any{"document_id": doc.ID})
}

func lockedError(doc *domain.Document) error {
	return apperrors.NewDocumentLocked("document is finalized", map[string]any{
		"document_id": doc.ID, "kind": doc.Kind, "status": doc.Status,
	})
}
