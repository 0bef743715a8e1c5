package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionEdgeTable(t *testing.T) {
	allowed := map[[2]VisitStatus]bool{
		{VisitStatusScheduled, VisitStatusAssigned}:  true,
		{VisitStatusAssigned, VisitStatusEnRoute}:    true,
		{VisitStatusEnRoute, VisitStatusOnSite}:      true,
		{VisitStatusOnSite, VisitStatusInTelemed}:    true,
		{VisitStatusOnSite, VisitStatusComplete}:     true,
		{VisitStatusInTelemed, VisitStatusComplete}:  true,
		{VisitStatusScheduled, VisitStatusCancelled}: true,
		{VisitStatusScheduled, VisitStatusNoShow}:    true,
		{VisitStatusAssigned, VisitStatusCancelled}:  true,
		{VisitStatusAssigned, VisitStatusNoShow}:     true,
		{VisitStatusEnRoute, VisitStatusCancelled}:   true,
		{VisitStatusEnRoute, VisitStatusNoShow}:      true,
		{VisitStatusOnSite, VisitStatusCancelled}:    true,
		{VisitStatusOnSite, VisitStatusNoShow}:       true,
		{VisitStatusInTelemed, VisitStatusCancelled}: true,
		{VisitStatusInTelemed, VisitStatusNoShow}:    true,
	}

	for _, from := range AllVisitStatuses() {
		for _, to := range AllVisitStatuses() {
			got := CanTransition(from, to)
			assert.Equal(t, allowed[[2]VisitStatus{from, to}], got, "%s -> %s", from, to)
		}
	}
}

func TestTerminalStatusesHaveNoOutgoingEdges(t *testing.T) {
	for _, from := range []VisitStatus{VisitStatusComplete, VisitStatusCancelled, VisitStatusNoShow} {
		assert.True(t, from.Terminal())
		for _, to := range AllVisitStatuses() {
			assert.False(t, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestCanTransitionRejectsUnknownStatus(t *testing.T) {
	assert.False(t, CanTransition("parked", VisitStatusCancelled))
	assert.False(t, CanTransition(VisitStatusScheduled, "parked"))
	assert.False(t, VisitStatus("parked").Valid())
}
