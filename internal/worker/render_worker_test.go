package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/visit-service/internal/domain"
)

type mockRenderer struct {
	mock.Mock
}

func (m *mockRenderer) Render(ctx context.Context, ref domain.DocumentRef) (string, error) {
	args := m.Called(ctx, ref)
	return args.String(0), args.Error(1)
}

type mockAttacher struct {
	mock.Mock
	done chan struct{}
}

func (m *mockAttacher) AttachPDF(ctx context.Context, session domain.Session, ref domain.DocumentRef, url string) (*domain.Document, error) {
	args := m.Called(ctx, session, ref, url)
	if m.done != nil {
		m.done <- struct{}{}
	}
	doc, _ := args.Get(0).(*domain.Document)
	return doc, args.Error(1)
}

var workerSession = domain.Session{ActorID: "svc", Role: domain.RoleAdmin}

func TestRenderWorkerAttachesRenderedURL(t *testing.T) {
	ref := domain.DocumentRef{Kind: domain.KindPrescription, ID: "d1"}
	renderer := &mockRenderer{}
	renderer.On("Render", mock.Anything, ref).Return("https://files.example/d1.pdf", nil)
	attacher := &mockAttacher{done: make(chan struct{}, 1)}
	attacher.On("AttachPDF", mock.Anything, workerSession, ref, "https://files.example/d1.pdf").
		Return(&domain.Document{ID: "d1"}, nil)

	w := NewRenderWorker(renderer, workerSession, 2, 4, nil)
	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx, attacher)
	w.Schedule(ref)

	select {
	case <-attacher.done:
	case <-time.After(time.Second):
		t.Fatal("render job not processed")
	}
	cancel()
	w.Wait()

	renderer.AssertExpectations(t)
	attacher.AssertExpectations(t)
}

func TestRenderWorkerSkipsAttachOnRenderFailure(t *testing.T) {
	ref := domain.DocumentRef{Kind: domain.KindSickNote, ID: "d2"}
	called := make(chan struct{}, 1)
	renderer := &mockRenderer{}
	renderer.On("Render", mock.Anything, ref).Return("", errors.New("render down")).
		Run(func(mock.Arguments) { called <- struct{}{} })
	attacher := &mockAttacher{}

	w := NewRenderWorker(renderer, workerSession, 1, 1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx, attacher)
	w.Schedule(ref)

	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("render not attempted")
	}
	cancel()
	w.Wait()
	attacher.AssertNotCalled(t, "AttachPDF", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestScheduleDropsWhenQueueFull(t *testing.T) {
	w := NewRenderWorker(&mockRenderer{}, workerSession, 1, 1, nil)

	w.Schedule(domain.DocumentRef{Kind: domain.KindPrescription, ID: "a"})
	w.Schedule(domain.DocumentRef{Kind: domain.KindPrescription, ID: "b"})

	require.Len(t, w.jobs, 1)
	assert.Equal(t, "a", (<-w.jobs).ID)
}
