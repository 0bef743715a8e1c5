package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/visit-service/internal/authz"
	"github.com/spec-kit/visit-service/internal/domain"
	"github.com/spec-kit/visit-service/internal/events"
	"github.com/spec-kit/visit-service/internal/repository"
	apperrors "github.com/spec-kit/visit-service/pkg/util/errorutil"
)

// EventLogService appends clinical and dispatch annotations to a visit's
// timeline and reads the merged timeline back.
type EventLogService struct {
	visits repository.VisitRepository
	events repository.EventRepository
	tx     Transactor
	matrix *authz.Matrix
	publisher
}

// EventLogDependencies bundles collaborators for EventLogService.
type EventLogDependencies struct {
	VisitRepo  repository.VisitRepository
	EventRepo  repository.EventRepository
	Tx         Transactor
	Matrix     *authz.Matrix
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Now        func() time.Time
}

// NewEventLogService constructs the service.
func NewEventLogService(deps EventLogDependencies) *EventLogService {
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
	return &EventLogService{
		visits:    deps.VisitRepo,
		events:    deps.EventRepo,
		tx:        deps.Tx,
		matrix:    matrix,
		publisher: publisher{dispatcher: deps.Dispatcher, logger: logger, now: now},
	}
}

// AppendEvent records an annotation. Lifecycle event types are written only
// by the state machine and document workflow and are rejected here.
func (s *EventLogService) AppendEvent(ctx context.Context, session domain.Session, visitID string, payload domain.EventPayload) (*domain.VisitEvent, error) {
	if payload == nil {
		return nil, apperrors.NewValidationError("payload required", nil)
	}
	if !payload.EventType().Annotation() {
		return nil, apperrors.NewValidationError("event type is written by the system", map[string]any{"type": payload.EventType()})
	}
	if err := domain.ValidatePayload(payload); err != nil {
		return nil, apperrors.NewValidationError(err.Error(), map[string]any{"type": payload.EventType()})
	}
	if err := s.matrix.Check(session, authz.ResourceVisitEvent, authz.ActionAppend); err != nil {
		return nil, err
	}

	event := &domain.VisitEvent{
		VisitID:   visitID,
		CreatedBy: session.ActorID,
		Payload:   payload,
	}
	err := s.tx.WithinTx(ctx, session, func(ctx context.Context) error {
		// Holding the visit row serializes appends with status changes so
		// per-visit sequence order matches commit order.
		visit, err := s.visits.GetForUpdate(ctx, visitID)
		if err != nil {
			return notFoundAs(err, "visit", visitID)
		}
		if !canAccessVisit(s.matrix, session, visit) {
			return forbiddenVisit(visitID)
		}
		return s.events.Append(ctx, event)
	})
	if err != nil {
		return nil, err
	}

	s.publishEvent(ctx, events.Event{
		Type:    events.EventVisitAnnotated,
		VisitID: visitID,
		Actor:   events.ActorFromSession(session),
		Payload: events.VisitAnnotatedPayload{EventID: event.ID, EventType: event.Type},
	})
	return event, nil
}

// ListTimeline returns events with seq greater than afterSeq in timeline
// order. Passing the last seen seq resumes a read. Pages hold at most
// domain.MaxTimelinePage events.
func (s *EventLogService) ListTimeline(ctx context.Context, session domain.Session, visitID string, afterSeq int64, limit int) ([]domain.VisitEvent, error) {
	if err := s.matrix.Check(session, authz.ResourceVisitEvent, authz.ActionRead); err != nil {
		return nil, err
	}
	if afterSeq < 0 {
		afterSeq = 0
	}
	limit = domain.TimelineLimit(limit)
	var result []domain.VisitEvent
	err := s.tx.WithinTx(ctx, session, func(ctx context.Context) error {
		visit, err := s.visits.GetByID(ctx, visitID)
		if err != nil {
			return notFoundAs(err, "visit", visitID)
		}
		if !canAccessVisit(s.matrix, session, visit) {
			return forbiddenVisit(visitID)
		}
		result, err = s.events.ListTimeline(ctx, visitID, afterSeq, limit)
		return err
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = []domain.VisitEvent{}
	}
	return result, nil
}
