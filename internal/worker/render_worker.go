package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/visit-service/internal/domain"
)

// Renderer produces a PDF for a document and returns its URL.
type Renderer interface {
	Render(ctx context.Context, ref domain.DocumentRef) (string, error)
}

// PDFAttacher stores the rendered URL on the document.
type PDFAttacher interface {
	AttachPDF(ctx context.Context, session domain.Session, ref domain.DocumentRef, url string) (*domain.Document, error)
}

// RenderWorker renders signed documents off the request path. Jobs that are
// dropped or fail leave pdf_url empty; regenerating the PDF queues them again.
type RenderWorker struct {
	renderer Renderer
	session  domain.Session
	logger   *zap.Logger
	jobs     chan domain.DocumentRef
	workers  int
	wg       sync.WaitGroup
}

// NewRenderWorker creates a pool with the given worker count and queue size.
// session is the identity used to write results back.
func NewRenderWorker(renderer Renderer, session domain.Session, workers, queueSize int, logger *zap.Logger) *RenderWorker {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RenderWorker{
		renderer: renderer,
		session:  session,
		logger:   logger,
		jobs:     make(chan domain.DocumentRef, queueSize),
		workers:  workers,
	}
}

// Schedule queues ref without blocking.
func (w *RenderWorker) Schedule(ref domain.DocumentRef) {
	select {
	case w.jobs <- ref:
	default:
		w.logger.Warn("render queue full; pdf left pending",
			zap.String("kind", string(ref.Kind)),
			zap.String("document_id", ref.ID))
	}
}

// Start launches the workers. They stop when ctx is done.
func (w *RenderWorker) Start(ctx context.Context, attacher PDFAttacher) {
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case ref := <-w.jobs:
					w.process(ctx, attacher, ref)
				}
			}
		}()
	}
}

// Wait blocks until every worker has exited.
func (w *RenderWorker) Wait() {
	w.wg.Wait()
}

func (w *RenderWorker) process(ctx context.Context, attacher PDFAttacher, ref domain.DocumentRef) {
	url, err := w.renderer.Render(ctx, ref)
	if err != nil {
		w.logger.Warn("render failed",
			zap.String("kind", string(ref.Kind)),
			zap.String("document_id", ref.ID),
			zap.Error(err))
		return
	}
	if _, err := attacher.AttachPDF(ctx, w.session, ref, url); err != nil {
		w.logger.Warn("attach pdf failed",
			zap.String("kind", string(ref.Kind)),
			zap.String("document_id", ref.ID),
			zap.Error(err))
		return
	}
	w.logger.Info("pdf attached",
		zap.String("kind", string(ref.Kind)),
		zap.String("document_id", ref.ID))
}
