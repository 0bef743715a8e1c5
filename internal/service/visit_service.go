package service

import (
	"context"
	"errors"
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

// VisitService is the visit lifecycle state machine.
type VisitService struct {
	visits   repository.VisitRepository
	events   repository.EventRepository
	profiles repository.ProfileRepository
	tx       Transactor
	matrix   *authz.Matrix
	publisher
}

// VisitDependencies bundles collaborators for VisitService.
type VisitDependencies struct {
	VisitRepo   repository.VisitRepository
	EventRepo   repository.EventRepository
	ProfileRepo repository.ProfileRepository
	Tx          Transactor
	Matrix      *authz.Matrix
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
	Now         func() time.Time
}

// VisitCreateInput describes a new visit booking.
type VisitCreateInput struct {
	OrgID          string
	PatientID      string
	MedicalBoxID   *string
	ScheduledStart time.Time
	ScheduledEnd   time.Time
}

// AssignInput names the staff to put on a visit. Nil keeps the current value.
type AssignInput struct {
	NurseID  *string
	DoctorID *string
}

// NewVisitService constructs the service.
func NewVisitService(deps VisitDependencies) *VisitService {
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
	return &VisitService{
		visits:    deps.VisitRepo,
		events:    deps.EventRepo,
		profiles:  deps.ProfileRepo,
		tx:        deps.Tx,
		matrix:    matrix,
		publisher: publisher{dispatcher: deps.Dispatcher, logger: logger, now: now},
	}
}

// CreateVisit books a visit in scheduled status.
func (s *VisitService) CreateVisit(ctx context.Context, session domain.Session, input VisitCreateInput) (*domain.Visit, error) {
	if err := s.matrix.Check(session, authz.ResourceVisit, authz.ActionCreate); err != nil {
		return nil, err
	}
	orgID := strings.TrimSpace(input.OrgID)
	if session.OrgID != "" {
		orgID = session.OrgID
	}
	if orgID == "" {
		return nil, apperrors.NewValidationError("org_id required", nil)
	}
	if strings.TrimSpace(input.PatientID) == "" {
		return nil, apperrors.NewValidationError("patient_id required", nil)
	}
	if input.ScheduledStart.IsZero() || input.ScheduledEnd.IsZero() {
		return nil, apperrors.NewValidationError("scheduled window required", nil)
	}
	if !input.ScheduledEnd.After(input.ScheduledStart) {
		return nil, apperrors.NewValidationError("scheduled_end must be after scheduled_start", nil)
	}

	visit := &domain.Visit{
		OrgID:          orgID,
		PatientID:      input.PatientID,
		MedicalBoxID:   input.MedicalBoxID,
		Status:         domain.VisitStatusScheduled,
		ScheduledStart: input.ScheduledStart.UTC(),
		ScheduledEnd:   input.ScheduledEnd.UTC(),
	}
	err := s.tx.WithinTx(ctx, session, func(ctx context.Context) error {
		if err := s.visits.Create(ctx, visit); err != nil {
			return err
		}
		return s.events.Append(ctx, &domain.VisitEvent{
			VisitID:   visit.ID,
			CreatedBy: session.ActorID,
			Payload: domain.VisitCreatedPayload{
				ScheduledStart: visit.ScheduledStart,
				ScheduledEnd:   visit.ScheduledEnd,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.publishEvent(ctx, events.Event{
		Type:    events.EventVisitCreated,
		VisitID: visit.ID,
		Actor:   events.ActorFromSession(session),
	})
	return visit, nil
}

// GetVisit loads a visit the caller may see.
func (s *VisitService) GetVisit(ctx context.Context, session domain.Session, visitID string) (*domain.Visit, error) {
	if err := s.matrix.Check(session, authz.ResourceVisit, authz.ActionRead); err != nil {
		return nil, err
	}
	var visit *domain.Visit
	err := s.tx.WithinTx(ctx, session, func(ctx context.Context) error {
		var err error
		visit, err = s.visits.GetByID(ctx, visitID)
		return notFoundAs(err, "visit", visitID)
	})
	if err != nil {
		return nil, err
	}
	if !canAccessVisit(s.matrix, session, visit) {
		return nil, forbiddenVisit(visitID)
	}
	return visit, nil
}

// ListVisits returns the dispatch board view. Nurses and doctors only ever
// see their own visits.
func (s *VisitService) ListVisits(ctx context.Context, session domain.Session, filter domain.VisitFilter) ([]domain.Visit, error) {
	if err := s.matrix.Check(session, authz.ResourceVisit, authz.ActionRead); err != nil {
		return nil, err
	}
	if session.OrgID != "" {
		org := session.OrgID
		filter.OrgID = &org
	}
	actor := session.ActorID
	switch session.Role {
	case domain.RoleNurse:
		filter.NurseID = &actor
	case domain.RoleDoctor:
		filter.DoctorID = &actor
	}
	var visits []domain.Visit
	err := s.tx.WithinTx(ctx, session, func(ctx context.Context) error {
		var err error
		visits, err = s.visits.ListWithFilter(ctx, filter)
		return err
	})
	if err != nil {
		return nil, err
	}
	if visits == nil {
		visits = []domain.Visit{}
	}
	return visits, nil
}

// Assign puts staff on a visit and moves it to assigned. Reassignment of an
// already assigned visit keeps the status and only records the staff change.
func (s *VisitService) Assign(ctx context.Context, session domain.Session, visitID string, expectedFrom domain.VisitStatus, input AssignInput) (*domain.Visit, error) {
	if input.NurseID == nil && input.DoctorID == nil {
		return nil, apperrors.NewValidationError("nurse_id or doctor_id required", nil)
	}
	var (
		updated *domain.Visit
		from    domain.VisitStatus
	)
	err := s.tx.WithinTx(ctx, session, func(ctx context.Context) error {
		current, err := s.visits.GetForUpdate(ctx, visitID)
		if err != nil {
			return notFoundAs(err, "visit", visitID)
		}
		from = current.Status
		if current.Status != expectedFrom {
			return apperrors.NewStaleState("visit status changed", map[string]any{
				"visit_id": visitID, "expected": expectedFrom, "actual": current.Status,
			})
		}
		if from != domain.VisitStatusScheduled && from != domain.VisitStatusAssigned {
			return apperrors.NewInvalidTransition("visit can no longer be assigned", map[string]any{
				"visit_id": visitID, "from": from, "to": domain.VisitStatusAssigned,
			})
		}
		if err := s.matrix.Check(session, authz.ResourceVisit, authz.ActionAssign); err != nil {
			return err
		}
		if !canAccessVisit(s.matrix, session, current) {
			return forbiddenVisit(visitID)
		}
		if err := s.checkStaff(ctx, current.OrgID, input.NurseID, domain.RoleNurse, "nurse_id"); err != nil {
			return err
		}
		if err := s.checkStaff(ctx, current.OrgID, input.DoctorID, domain.RoleDoctor, "doctor_id"); err != nil {
			return err
		}

		updated, err = s.visits.UpdateAssignment(ctx, visitID, from, domain.VisitStatusAssigned, input.NurseID, input.DoctorID)
		if err != nil {
			return staleAs(err, map[string]any{"visit_id": visitID, "expected": from})
		}
		if from != domain.VisitStatusAssigned {
			if err := s.events.Append(ctx, &domain.VisitEvent{
				VisitID:   visitID,
				CreatedBy: session.ActorID,
				Payload:   domain.StatusChangePayload{Old: from, New: domain.VisitStatusAssigned},
			}); err != nil {
				return err
			}
		}
		return s.events.Append(ctx, &domain.VisitEvent{
			VisitID:   visitID,
			CreatedBy: session.ActorID,
			Payload:   domain.StaffAssignedPayload{NurseID: input.NurseID, DoctorID: input.DoctorID},
		})
	})
	if err != nil {
		return nil, err
	}

	actor := events.ActorFromSession(session)
	if from != domain.VisitStatusAssigned {
		s.publishEvent(ctx, events.Event{
			Type:    events.EventVisitStatusChanged,
			VisitID: visitID,
			Actor:   actor,
			Payload: events.VisitStatusChangedPayload{OldStatus: from, NewStatus: domain.VisitStatusAssigned},
		})
	}
	s.publishEvent(ctx, events.Event{
		Type:    events.EventVisitAssigned,
		VisitID: visitID,
		Actor:   actor,
		Payload: events.VisitAssignedPayload{NurseID: updated.NurseID, DoctorID: updated.DoctorID},
	})
	return updated, nil
}

func (s *VisitService) checkStaff(ctx context.Context, orgID string, id *string, role domain.Role, field string) error {
	if id == nil || s.profiles == nil {
		return nil
	}
	profile, err := s.profiles.GetByID(ctx, *id)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NewValidationError(field+" does not exist", map[string]any{field: *id})
	}
	if err != nil {
		return err
	}
	if profile.Role != role {
		return apperrors.NewValidationError(field+" has the wrong role", map[string]any{field: *id, "role": profile.Role})
	}
	if !profile.Active {
		return apperrors.NewValidationError(field+" is inactive", map[string]any{field: *id})
	}
	if orgID != "" && profile.OrgID != "" && profile.OrgID != orgID {
		return apperrors.NewValidationError(field+" belongs to another organization", map[string]any{field: *id})
	}
	return nil
}

// Transition moves a visit from expectedFrom to to. The caller's view of the
// status is checked first, then the transition table, then the caller's
// permission; the write and its timeline row commit together.
func (s *VisitService) Transition(ctx context.Context, session domain.Session, visitID string, expectedFrom, to domain.VisitStatus, reason string) (*domain.Visit, error) {
	if !to.Valid() {
		return nil, apperrors.NewValidationError("unknown target status", map[string]any{"to": to})
	}
	if to == domain.VisitStatusAssigned {
		return nil, apperrors.NewInvalidTransition("use assign to move a visit to assigned", map[string]any{"to": to})
	}
	reason = strings.TrimSpace(reason)

	var updated *domain.Visit
	err := s.tx.WithinTx(ctx, session, func(ctx context.Context) error {
		current, err := s.visits.GetForUpdate(ctx, visitID)
		if err != nil {
			return notFoundAs(err, "visit", visitID)
		}
		if current.Status != expectedFrom {
			return apperrors.NewStaleState("visit status changed", map[string]any{
				"visit_id": visitID, "expected": expectedFrom, "actual": current.Status,
			})
		}
		if !domain.CanTransition(current.Status, to) {
			return apperrors.NewInvalidTransition("transition not allowed", map[string]any{
				"visit_id": visitID, "from": current.Status, "to": to,
			})
		}
		if err := s.matrix.Check(session, authz.ResourceVisit, authz.TransitionAction(to)); err != nil {
			return err
		}
		if !canAccessVisit(s.matrix, session, current) {
			return forbiddenVisit(visitID)
		}

		var cancelReason *string
		if reason != "" && (to == domain.VisitStatusCancelled || to == domain.VisitStatusNoShow) {
			cancelReason = &reason
		}
		updated, err = s.visits.UpdateStatus(ctx, visitID, expectedFrom, to, cancelReason)
		if err != nil {
			return staleAs(err, map[string]any{"visit_id": visitID, "expected": expectedFrom})
		}
		return s.events.Append(ctx, &domain.VisitEvent{
			VisitID:   visitID,
			CreatedBy: session.ActorID,
			Payload:   domain.StatusChangePayload{Old: expectedFrom, New: to, Reason: reason},
		})
	})
	if err != nil {
		return nil, err
	}

	s.publishEvent(ctx, events.Event{
		Type:    events.EventVisitStatusChanged,
		VisitID: visitID,
		Actor:   events.ActorFromSession(session),
		Payload: events.VisitStatusChangedPayload{OldStatus: expectedFrom, NewStatus: to, Reason: reason},
	})
	return updated, nil
}
