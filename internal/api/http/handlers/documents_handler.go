package handlers

import (
	"context"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/visit-service/internal/api/dto"
	"github.com/spec-kit/visit-service/internal/domain"
	"github.com/spec-kit/visit-service/internal/service"
	apperrors "github.com/spec-kit/visit-service/pkg/util/errorutil"
)

// DocumentService is the document workflow used by the handlers.
type DocumentService interface {
	CreateDocument(ctx context.Context, session domain.Session, visitID string, content domain.DocumentContent, doctorID *string) (*domain.Document, error)
	GetDocument(ctx context.Context, session domain.Session, ref domain.DocumentRef) (*domain.Document, error)
	ListDocuments(ctx context.Context, session domain.Session, visitID string) ([]domain.Document, error)
	Edit(ctx context.Context, session domain.Session, ref domain.DocumentRef, patch domain.DocumentPatch) (*domain.Document, error)
	Sign(ctx context.Context, session domain.Session, ref domain.DocumentRef, input service.SignInput) (*domain.Document, error)
	Distribute(ctx context.Context, session domain.Session, ref domain.DocumentRef, channel domain.DistributionChannel) (*domain.Document, error)
	AdvanceDocument(ctx context.Context, session domain.Session, ref domain.DocumentRef, to domain.DocumentStatus) (*domain.Document, error)
	RegeneratePDF(ctx context.Context, session domain.Session, ref domain.DocumentRef) (*domain.Document, error)
	AttachPDF(ctx context.Context, session domain.Session, ref domain.DocumentRef, url string) (*domain.Document, error)
}

// DocumentsHandler manages prescription, sick note and diagnostic request endpoints.
type DocumentsHandler struct {
	documents DocumentService
}

// NewDocumentsHandler constructs handler.
func NewDocumentsHandler(documents DocumentService) *DocumentsHandler {
	return &DocumentsHandler{documents: documents}
}

// Create POST /visits/:id/documents/:kind.
func (h *DocumentsHandler) Create(c *fiber.Ctx) error {
	session, err := requireSession(c)
	if err != nil {
		return err
	}
	kind := domain.DocumentKind(c.Params("kind"))
	if !kind.Valid() {
		return apperrors.NewValidationError("unknown document kind", map[string]any{"kind": kind})
	}
	var req dto.CreateDocumentRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	raw := []byte(req.Content)
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	content, err := domain.DecodeContent(kind, raw)
	if err != nil {
		return apperrors.NewValidationError("invalid content", map[string]any{"kind": kind})
	}
	doc, err := h.documents.CreateDocument(requestContext(c), session, c.Params("id"), content, req.DoctorID)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewDocumentResponse(doc)})
}

// ListForVisit GET /visits/:id/documents.
func (h *DocumentsHandler) ListForVisit(c *fiber.Ctx) error {
	session, err := requireSession(c)
	if err != nil {
		return err
	}
	docs, err := h.documents.ListDocuments(requestContext(c), session, c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.DocumentResponse, 0, len(docs))
	for i := range docs {
		items = append(items, dto.NewDocumentResponse(&docs[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Get GET /documents/:kind/:id.
func (h *DocumentsHandler) Get(c *fiber.Ctx) error {
	return h.run(c, func(ctx context.Context, session domain.Session, ref domain.DocumentRef) (*domain.Document, error) {
		return h.documents.GetDocument(ctx, session, ref)
	})
}

// Edit PATCH /documents/:kind/:id.
func (h *DocumentsHandler) Edit(c *fiber.Ctx) error {
	return h.run(c, func(ctx context.Context, session domain.Session, ref domain.DocumentRef) (*domain.Document, error) {
		patch, err := domain.DecodePatch(ref.Kind, c.Body())
		if err != nil {
			return nil, apperrors.NewValidationError("invalid patch", map[string]any{"kind": ref.Kind})
		}
		return h.documents.Edit(ctx, session, ref, patch)
	})
}

// Sign POST /documents/:kind/:id/sign.
func (h *DocumentsHandler) Sign(c *fiber.Ctx) error {
	return h.run(c, func(ctx context.Context, session domain.Session, ref domain.DocumentRef) (*domain.Document, error) {
		var req dto.SignRequest
		if err := parseBody(c, &req); err != nil {
			return nil, err
		}
		ip := req.IP
		if ip == "" {
			ip = c.IP()
		}
		return h.documents.Sign(ctx, session, ref, service.SignInput{SignerName: req.SignerName, IP: ip})
	})
}

// Distribute POST /documents/:kind/:id/distribute.
func (h *DocumentsHandler) Distribute(c *fiber.Ctx) error {
	return h.run(c, func(ctx context.Context, session domain.Session, ref domain.DocumentRef) (*domain.Document, error) {
		var req dto.DistributeRequest
		if err := parseBody(c, &req); err != nil {
			return nil, err
		}
		return h.documents.Distribute(ctx, session, ref, req.Channel)
	})
}

// Advance POST /documents/:kind/:id/advance.
func (h *DocumentsHandler) Advance(c *fiber.Ctx) error {
	return h.run(c, func(ctx context.Context, session domain.Session, ref domain.DocumentRef) (*domain.Document, error) {
		var req dto.AdvanceDocumentRequest
		if err := parseBody(c, &req); err != nil {
			return nil, err
		}
		return h.documents.AdvanceDocument(ctx, session, ref, req.To)
	})
}

// RegeneratePDF POST /documents/:kind/:id/regenerate-pdf.
func (h *DocumentsHandler) RegeneratePDF(c *fiber.Ctx) error {
	session, err := requireSession(c)
	if err != nil {
		return err
	}
	ref, err := documentRef(c)
	if err != nil {
		return err
	}
	doc, err := h.documents.RegeneratePDF(requestContext(c), session, ref)
	if err != nil {
		return err
	}
	return c.Status(http.StatusAccepted).JSON(fiber.Map{"data": dto.NewDocumentResponse(doc)})
}

// AttachPDF POST /internal/documents/:kind/:id/pdf.
func (h *DocumentsHandler) AttachPDF(c *fiber.Ctx) error {
	return h.run(c, func(ctx context.Context, session domain.Session, ref domain.DocumentRef) (*domain.Document, error) {
		var req dto.AttachPDFRequest
		if err := parseBody(c, &req); err != nil {
			return nil, err
		}
		return h.documents.AttachPDF(ctx, session, ref, req.URL)
	})
}

func (h *DocumentsHandler) run(c *fiber.Ctx, fn func(context.Context, domain.Session, domain.DocumentRef) (*domain.Document, error)) error {
	session, err := requireSession(c)
	if err != nil {
		return err
	}
	ref, err := documentRef(c)
	if err != nil {
		return err
	}
	doc, err := fn(requestContext(c), session, ref)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewDocumentResponse(doc)})
}
