package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/visit-service/internal/api/dto"
	"github.com/spec-kit/visit-service/internal/domain"
	"github.com/spec-kit/visit-service/internal/service"
	apperrors "github.com/spec-kit/visit-service/pkg/util/errorutil"
)

// VisitService is the visit lifecycle used by the handlers.
type VisitService interface {
	CreateVisit(ctx context.Context, session domain.Session, input service.VisitCreateInput) (*domain.Visit, error)
	GetVisit(ctx context.Context, session domain.Session, visitID string) (*domain.Visit, error)
	ListVisits(ctx context.Context, session domain.Session, filter domain.VisitFilter) ([]domain.Visit, error)
	Assign(ctx context.Context, session domain.Session, visitID string, expectedFrom domain.VisitStatus, input service.AssignInput) (*domain.Visit, error)
	Transition(ctx context.Context, session domain.Session, visitID string, expectedFrom, to domain.VisitStatus, reason string) (*domain.Visit, error)
}

// EventLog is the timeline used by the handlers.
type EventLog interface {
	AppendEvent(ctx context.Context, session domain.Session, visitID string, payload domain.EventPayload) (*domain.VisitEvent, error)
	ListTimeline(ctx context.Context, session domain.Session, visitID string, afterSeq int64, limit int) ([]domain.VisitEvent, error)
}

// VisitsHandler manages visit and timeline endpoints.
type VisitsHandler struct {
	visits VisitService
	log    EventLog
}

// NewVisitsHandler constructs handler.
func NewVisitsHandler(visits VisitService, log EventLog) *VisitsHandler {
	return &VisitsHandler{visits: visits, log: log}
}

// CreateVisit POST /visits.
func (h *VisitsHandler) CreateVisit(c *fiber.Ctx) error {
	session, err := requireSession(c)
	if err != nil {
		return err
	}
	var req dto.CreateVisitRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	visit, err := h.visits.CreateVisit(requestContext(c), session, service.VisitCreateInput{
		OrgID:          req.OrgID,
		PatientID:      req.PatientID,
		MedicalBoxID:   req.MedicalBoxID,
		ScheduledStart: req.ScheduledStart,
		ScheduledEnd:   req.ScheduledEnd,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewVisitResponse(visit)})
}

// ListVisits GET /visits.
func (h *VisitsHandler) ListVisits(c *fiber.Ctx) error {
	session, err := requireSession(c)
	if err != nil {
		return err
	}
	visits, err := h.visits.ListVisits(requestContext(c), session, parseVisitQuery(c))
	if err != nil {
		return err
	}
	items := make([]dto.VisitResponse, 0, len(visits))
	for i := range visits {
		items = append(items, dto.NewVisitResponse(&visits[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetVisit GET /visits/:id.
func (h *VisitsHandler) GetVisit(c *fiber.Ctx) error {
	session, err := requireSession(c)
	if err != nil {
		return err
	}
	visit, err := h.visits.GetVisit(requestContext(c), session, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewVisitResponse(visit)})
}

// Assign POST /visits/:id/assign.
func (h *VisitsHandler) Assign(c *fiber.Ctx) error {
	session, err := requireSession(c)
	if err != nil {
		return err
	}
	var req dto.AssignVisitRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if !req.ExpectedFrom.Valid() {
		return apperrors.NewValidationError("expected_from required", nil)
	}
	visit, err := h.visits.Assign(requestContext(c), session, c.Params("id"), req.ExpectedFrom, service.AssignInput{
		NurseID:  req.NurseID,
		DoctorID: req.DoctorID,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewVisitResponse(visit)})
}

// Transition POST /visits/:id/transition.
func (h *VisitsHandler) Transition(c *fiber.Ctx) error {
	session, err := requireSession(c)
	if err != nil {
		return err
	}
	var req dto.TransitionRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if !req.ExpectedFrom.Valid() || req.To == "" {
		return apperrors.NewValidationError("expected_from and to required", nil)
	}
	visit, err := h.visits.Transition(requestContext(c), session, c.Params("id"), req.ExpectedFrom, req.To, req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewVisitResponse(visit)})
}

// AppendEvent POST /visits/:id/events.
func (h *VisitsHandler) AppendEvent(c *fiber.Ctx) error {
	session, err := requireSession(c)
	if err != nil {
		return err
	}
	var req dto.AppendEventRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if len(req.Payload) == 0 {
		return apperrors.NewValidationError("payload required", nil)
	}
	payload, err := domain.DecodePayload(req.Type, req.Payload)
	if err != nil {
		return apperrors.NewValidationError(err.Error(), map[string]any{"type": req.Type})
	}
	event, err := h.log.AppendEvent(requestContext(c), session, c.Params("id"), payload)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewVisitEventResponse(event)})
}

// Timeline GET /visits/:id/timeline.
func (h *VisitsHandler) Timeline(c *fiber.Ctx) error {
	session, err := requireSession(c)
	if err != nil {
		return err
	}
	var after int64
	if raw := c.Query("after"); raw != "" {
		after, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || after < 0 {
			return apperrors.NewValidationError("after must be a non-negative sequence number", nil)
		}
	}
	limit := domain.TimelineLimit(parseInt(c.Query("limit"), domain.DefaultTimelinePage))
	events, err := h.log.ListTimeline(requestContext(c), session, c.Params("id"), after, limit)
	if err != nil {
		return err
	}
	resp := dto.TimelineResponse{Data: make([]dto.VisitEventResponse, 0, len(events)), NextAfter: after}
	for i := range events {
		resp.Data = append(resp.Data, dto.NewVisitEventResponse(&events[i]))
		resp.NextAfter = events[i].Seq
	}
	return c.JSON(resp)
}

func parseVisitQuery(c *fiber.Ctx) domain.VisitFilter {
	filter := domain.VisitFilter{
		NurseID:       optionalString(c.Query("nurse_id")),
		DoctorID:      optionalString(c.Query("doctor_id")),
		PatientID:     optionalString(c.Query("patient_id")),
		ScheduledFrom: parseTime(c.Query("scheduled_from")),
		ScheduledTo:   parseTime(c.Query("scheduled_to")),
	}
	for _, status := range splitList(c.Query("status")) {
		filter.Statuses = append(filter.Statuses, domain.VisitStatus(status))
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 50)
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter
}
