package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePayloadByType(t *testing.T) {
	p, err := DecodePayload(EventStatusChange, []byte(`{"old":"assigned","new":"en_route"}`))
	require.NoError(t, err)
	change, ok := p.(StatusChangePayload)
	require.True(t, ok)
	assert.Equal(t, VisitStatusAssigned, change.Old)
	assert.Equal(t, VisitStatusEnRoute, change.New)
	assert.Equal(t, EventStatusChange, p.EventType())

	p, err = DecodePayload(EventVitalsRecorded, []byte(`{"heart_rate":72,"spo2":97}`))
	require.NoError(t, err)
	vitals := p.(VitalsRecordedPayload)
	require.NotNil(t, vitals.HeartRate)
	assert.Equal(t, 72, *vitals.HeartRate)
}

func TestDecodePayloadRejectsUnknownType(t *testing.T) {
	_, err := DecodePayload("mood_swing", []byte(`{}`))
	assert.Error(t, err)

	_, err = DecodePayload(EventClinicalNote, []byte(`not json`))
	assert.Error(t, err)
}

func TestEventTypeRouting(t *testing.T) {
	assert.Equal(t, SourceDispatch, EventETAUpdated.Source())
	assert.Equal(t, SourceDispatch, EventDispatchNote.Source())
	assert.Equal(t, SourceVisit, EventStatusChange.Source())
	assert.Equal(t, SourceVisit, EventVitalsRecorded.Source())

	assert.True(t, EventVitalsRecorded.Annotation())
	assert.False(t, EventStatusChange.Annotation())
	assert.False(t, EventDocumentSigned.Annotation())
}

func TestValidatePayload(t *testing.T) {
	systolic := 120
	assert.Error(t, ValidatePayload(VitalsRecordedPayload{}))
	assert.Error(t, ValidatePayload(VitalsRecordedPayload{Systolic: &systolic}))
	diastolic := 80
	assert.NoError(t, ValidatePayload(VitalsRecordedPayload{Systolic: &systolic, Diastolic: &diastolic}))
	assert.Error(t, ValidatePayload(ClinicalNotePayload{}))
	assert.Error(t, ValidatePayload(ETAUpdatedPayload{}))
	assert.NoError(t, ValidatePayload(DispatchNotePayload{Message: "traffic on A1"}))
}

func TestTimelineLimit(t *testing.T) {
	assert.Equal(t, DefaultTimelinePage, TimelineLimit(0))
	assert.Equal(t, DefaultTimelinePage, TimelineLimit(-5))
	assert.Equal(t, 25, TimelineLimit(25))
	assert.Equal(t, MaxTimelinePage, TimelineLimit(MaxTimelinePage))
	assert.Equal(t, MaxTimelinePage, TimelineLimit(1_000_000_000))
}
