// Package authz holds the static role x resource x action permission table.
// It is the only place role checks are decided; HTTP-level guards and any
// client-side checks are hints that this package re-validates.
package authz

import (
	"github.com/spec-kit/visit-service/internal/domain"
	apperrors "github.com/spec-kit/visit-service/pkg/util/errorutil"
)

// Resource names a protected aggregate.
type Resource string

const (
	ResourceVisit             Resource = "visit"
	ResourceVisitEvent        Resource = "visit_event"
	ResourcePrescription      Resource = "prescription"
	ResourceSickNote          Resource = "sick_note"
	ResourceDiagnosticRequest Resource = "diagnostic_request"
)

// Action names an operation on a resource. Visit status transitions use the
// target status as the action (see TransitionAction).
type Action string

const (
	ActionRead          Action = "read"
	ActionCreate        Action = "create"
	ActionAssign        Action = "assign"
	ActionAppend        Action = "append"
	ActionEdit          Action = "edit"
	ActionSign          Action = "sign"
	ActionDistribute    Action = "distribute"
	ActionFulfill       Action = "fulfill"
	ActionCancel        Action = "cancel"
	ActionRegeneratePDF Action = "regenerate_pdf"
)

// TransitionAction is the action checked before moving a visit to status.
func TransitionAction(to domain.VisitStatus) Action {
	return Action(to)
}

// DocumentResource maps a document kind to its resource.
func DocumentResource(kind domain.DocumentKind) Resource {
	return Resource(kind)
}

// AdvanceAction maps a non-signing document status edge target to its action.
func AdvanceAction(to domain.DocumentStatus) Action {
	switch to {
	case domain.DocumentStatusFulfilled:
		return ActionFulfill
	case domain.DocumentStatusCancelled:
		return ActionCancel
	}
	return Action(to)
}

type grants map[Resource][]Action

// overrideRoles may perform every action any other role may, on any row.
var overrideRoles = map[domain.Role]bool{
	domain.RoleAdmin:       true,
	domain.RoleControlRoom: true,
}

var table = map[domain.Role]grants{
	domain.RoleNurse: {
		ResourceVisit: {
			ActionRead,
			TransitionAction(domain.VisitStatusEnRoute),
			TransitionAction(domain.VisitStatusOnSite),
			TransitionAction(domain.VisitStatusComplete),
		},
		ResourceVisitEvent:        {ActionRead, ActionAppend},
		ResourcePrescription:      {ActionRead},
		ResourceSickNote:          {ActionRead},
		ResourceDiagnosticRequest: {ActionRead},
	},
	domain.RoleDoctor: {
		ResourceVisit: {
			ActionRead,
			TransitionAction(domain.VisitStatusInTelemed),
			TransitionAction(domain.VisitStatusComplete),
		},
		ResourceVisitEvent:        {ActionRead, ActionAppend},
		ResourcePrescription:      {ActionRead, ActionCreate, ActionEdit, ActionSign, ActionDistribute, ActionRegeneratePDF},
		ResourceSickNote:          {ActionRead, ActionCreate, ActionEdit, ActionSign, ActionRegeneratePDF},
		ResourceDiagnosticRequest: {ActionRead, ActionCreate, ActionEdit, ActionCancel},
	},
}

// Matrix answers permission questions from the static table.
type Matrix struct {
	index map[domain.Role]map[Resource]map[Action]struct{}
}

// NewMatrix indexes the static table.
func NewMatrix() *Matrix {
	index := make(map[domain.Role]map[Resource]map[Action]struct{}, len(table))
	for role, g := range table {
		byResource := make(map[Resource]map[Action]struct{}, len(g))
		for resource, actions := range g {
			set := make(map[Action]struct{}, len(actions))
			for _, a := range actions {
				set[a] = struct{}{}
			}
			byResource[resource] = set
		}
		index[role] = byResource
	}
	return &Matrix{index: index}
}

// Allowed reports whether role may perform action on resource.
func (m *Matrix) Allowed(role domain.Role, resource Resource, action Action) bool {
	if overrideRoles[role] {
		return true
	}
	_, ok := m.index[role][resource][action]
	return ok
}

// Overrides reports whether role bypasses row ownership (author/assignee) checks.
func (m *Matrix) Overrides(role domain.Role) bool {
	return overrideRoles[role]
}

// Check returns a FORBIDDEN error when the session may not act.
func (m *Matrix) Check(session domain.Session, resource Resource, action Action) error {
	if session.ActorID == "" || !session.Role.Valid() {
		return apperrors.NewUnauthorized("session required")
	}
	if !m.Allowed(session.Role, resource, action) {
		return apperrors.NewForbidden("role not permitted", map[string]any{
			"role":     session.Role,
			"resource": resource,
			"action":   action,
		})
	}
	return nil
}
