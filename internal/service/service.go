package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/visit-service/internal/authz"
	"github.com/spec-kit/visit-service/internal/domain"
	"github.com/spec-kit/visit-service/internal/events"
	apperrors "github.com/spec-kit/visit-service/pkg/util/errorutil"
)

// Transactor runs fn inside one database transaction scoped to the session.
type Transactor interface {
	WithinTx(ctx context.Context, session domain.Session, fn func(ctx context.Context) error) error
}

// SystemSession is used by background workers that act on behalf of the
// service itself.
var SystemSession = domain.Session{
	ActorID: "00000000-0000-0000-0000-000000000000",
	Role:    domain.RoleAdmin,
}

// publisher fans committed changes out to the dispatcher. Delivery is
// best effort; failures are logged and never surface to the caller.
type publisher struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

func (p publisher) publishEvent(ctx context.Context, event events.Event) {
	if p.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now()
	}
	if err := p.dispatcher.Publish(ctx, event); err != nil && p.logger != nil {
		p.logger.Warn("event handlers failed",
			zap.String("event_type", string(event.Type)),
			zap.String("visit_id", event.VisitID),
			zap.Error(err))
	}
}

// canAccessVisit reports whether the session may act on the visit's row.
// Override roles see everything in their org; nurses and doctors see visits
// they are assigned to.
func canAccessVisit(matrix *authz.Matrix, session domain.Session, visit *domain.Visit) bool {
	if session.OrgID != "" && visit.OrgID != "" && session.OrgID != visit.OrgID {
		return false
	}
	if matrix.Overrides(session.Role) {
		return true
	}
	switch session.Role {
	case domain.RoleNurse:
		return visit.NurseID != nil && *visit.NurseID == session.ActorID
	case domain.RoleDoctor:
		return visit.DoctorID != nil && *visit.DoctorID == session.ActorID
	}
	return false
}

func forbiddenVisit(visitID string) error {
	return apperrors.NewForbidden("visit not assigned to caller", map[string]any{"visit_id": visitID})
}

// notFoundAs maps pgx.ErrNoRows to a NOT_FOUND error for resource.
func notFoundAs(err error, resource, id string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NewNotFound(resource, map[string]any{"id": id})
	}
	return err
}

// staleAs maps a lost compare-and-set to STALE_STATE.
func staleAs(err error, details map[string]any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NewStaleState("state changed concurrently", details)
	}
	return err
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
