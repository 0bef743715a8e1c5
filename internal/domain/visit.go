package domain

import "time"

// VisitStatus enumerates operational states of a home-care visit.
type VisitStatus string

const (
	VisitStatusScheduled VisitStatus = "scheduled"
	VisitStatusAssigned  VisitStatus = "assigned"
	VisitStatusEnRoute   VisitStatus = "en_route"
	VisitStatusOnSite    VisitStatus = "on_site"
	VisitStatusInTelemed VisitStatus = "in_telemed"
	VisitStatusComplete  VisitStatus = "complete"
	VisitStatusCancelled VisitStatus = "cancelled"
	VisitStatusNoShow    VisitStatus = "no_show"
)

// Visit is the aggregate for a scheduled encounter. Status is authoritative;
// the event log is never replayed to derive it.
type Visit struct {
	ID             string
	OrgID          string
	PatientID      string
	NurseID        *string
	DoctorID       *string
	MedicalBoxID   *string
	Status         VisitStatus
	ScheduledStart time.Time
	ScheduledEnd   time.Time
	CancelReason   *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

var visitEdges = map[VisitStatus][]VisitStatus{
	VisitStatusScheduled: {VisitStatusAssigned},
	VisitStatusAssigned:  {VisitStatusEnRoute},
	VisitStatusEnRoute:   {VisitStatusOnSite},
	VisitStatusOnSite:    {VisitStatusInTelemed, VisitStatusComplete},
	VisitStatusInTelemed: {VisitStatusComplete},
	VisitStatusComplete:  {},
	VisitStatusCancelled: {},
	VisitStatusNoShow:    {},
}

// AllVisitStatuses lists every known status in lifecycle order.
func AllVisitStatuses() []VisitStatus {
	return []VisitStatus{
		VisitStatusScheduled,
		VisitStatusAssigned,
		VisitStatusEnRoute,
		VisitStatusOnSite,
		VisitStatusInTelemed,
		VisitStatusComplete,
		VisitStatusCancelled,
		VisitStatusNoShow,
	}
}

// Valid reports whether s is a known status.
func (s VisitStatus) Valid() bool {
	_, ok := visitEdges[s]
	return ok
}

// Terminal reports whether no transition may leave s.
func (s VisitStatus) Terminal() bool {
	switch s {
	case VisitStatusComplete, VisitStatusCancelled, VisitStatusNoShow:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is an edge of the transition table.
// Every non-terminal status may move to cancelled or no_show.
func CanTransition(from, to VisitStatus) bool {
	if !from.Valid() || !to.Valid() || from.Terminal() {
		return false
	}
	if to == VisitStatusCancelled || to == VisitStatusNoShow {
		return true
	}
	for _, candidate := range visitEdges[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// VisitFilter captures dispatch board search parameters.
type VisitFilter struct {
	OrgID         *string
	NurseID       *string
	DoctorID      *string
	PatientID     *string
	Statuses      []VisitStatus
	ScheduledFrom *time.Time
	ScheduledTo   *time.Time
	Limit         int
	Offset        int
}
