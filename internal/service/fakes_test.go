package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/visit-service/internal/domain"
	"github.com/spec-kit/visit-service/internal/events"
	"github.com/spec-kit/visit-service/internal/repository"
)

var fixedNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

func testNow() time.Time { return fixedNow }

type fakeTx struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeTx) WithinTx(ctx context.Context, _ domain.Session, fn func(ctx context.Context) error) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return fn(ctx)
}

// lockRecorder logs row locks in the order they are taken.
type lockRecorder struct {
	mu      sync.Mutex
	entries []string
}

func (l *lockRecorder) record(entry string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
}

func (l *lockRecorder) taken() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

func (l *lockRecorder) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}

type fakeVisitRepo struct {
	mu     sync.Mutex
	visits map[string]domain.Visit
	locks  *lockRecorder
}

func newFakeVisitRepo(visits ...domain.Visit) *fakeVisitRepo {
	repo := &fakeVisitRepo{visits: make(map[string]domain.Visit)}
	for _, v := range visits {
		repo.visits[v.ID] = v
	}
	return repo
}

func (r *fakeVisitRepo) Create(_ context.Context, visit *domain.Visit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	visit.ID = uuid.NewString()
	visit.CreatedAt = fixedNow
	visit.UpdatedAt = fixedNow
	r.visits[visit.ID] = *visit
	return nil
}

func (r *fakeVisitRepo) GetByID(_ context.Context, id string) (*domain.Visit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.visits[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &v, nil
}

func (r *fakeVisitRepo) GetForUpdate(ctx context.Context, id string) (*domain.Visit, error) {
	r.locks.record("visit:" + id)
	return r.GetByID(ctx, id)
}

func (r *fakeVisitRepo) UpdateStatus(_ context.Context, id string, from, to domain.VisitStatus, cancelReason *string) (*domain.Visit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.visits[id]
	if !ok || v.Status != from {
		return nil, pgx.ErrNoRows
	}
	v.Status = to
	if cancelReason != nil {
		v.CancelReason = cancelReason
	}
	r.visits[id] = v
	return &v, nil
}

func (r *fakeVisitRepo) UpdateAssignment(_ context.Context, id string, from, to domain.VisitStatus, nurseID, doctorID *string) (*domain.Visit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.visits[id]
	if !ok || v.Status != from {
		return nil, pgx.ErrNoRows
	}
	v.Status = to
	if nurseID != nil {
		v.NurseID = nurseID
	}
	if doctorID != nil {
		v.DoctorID = doctorID
	}
	r.visits[id] = v
	return &v, nil
}

func (r *fakeVisitRepo) ListWithFilter(_ context.Context, filter domain.VisitFilter) ([]domain.Visit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Visit
	for _, v := range r.visits {
		if filter.OrgID != nil && v.OrgID != *filter.OrgID {
			continue
		}
		if filter.NurseID != nil && (v.NurseID == nil || *v.NurseID != *filter.NurseID) {
			continue
		}
		if filter.DoctorID != nil && (v.DoctorID == nil || *v.DoctorID != *filter.DoctorID) {
			continue
		}
		result = append(result, v)
	}
	return result, nil
}

type fakeEventRepo struct {
	mu        sync.Mutex
	seq       int64
	events    []domain.VisitEvent
	lastLimit int
}

func (r *fakeEventRepo) Append(_ context.Context, event *domain.VisitEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	event.ID = uuid.NewString()
	event.Seq = r.seq
	event.Type = event.Payload.EventType()
	event.Source = event.Type.Source()
	event.CreatedAt = fixedNow.Add(time.Duration(r.seq) * time.Millisecond)
	r.events = append(r.events, *event)
	return nil
}

func (r *fakeEventRepo) ListTimeline(_ context.Context, visitID string, afterSeq int64, limit int) ([]domain.VisitEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastLimit = limit
	if limit <= 0 {
		limit = domain.DefaultTimelinePage
	}
	var result []domain.VisitEvent
	for _, e := range r.events {
		if e.VisitID == visitID && e.Seq > afterSeq && len(result) < limit {
			result = append(result, e)
		}
	}
	return result, nil
}

func (r *fakeEventRepo) ofType(visitID string, t domain.EventType) []domain.VisitEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.VisitEvent
	for _, e := range r.events {
		if e.VisitID == visitID && e.Type == t {
			result = append(result, e)
		}
	}
	return result
}

func (r *fakeEventRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type fakeDocumentRepo struct {
	mu    sync.Mutex
	docs  map[domain.DocumentRef]domain.Document
	locks *lockRecorder
}

func newFakeDocumentRepo() *fakeDocumentRepo {
	return &fakeDocumentRepo{docs: make(map[domain.DocumentRef]domain.Document)}
}

func (r *fakeDocumentRepo) Create(_ context.Context, doc *domain.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc.ID = uuid.NewString()
	doc.CreatedAt = fixedNow
	doc.UpdatedAt = fixedNow
	r.docs[doc.Ref()] = *doc
	return nil
}

func (r *fakeDocumentRepo) Get(_ context.Context, ref domain.DocumentRef) (*domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[ref]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &doc, nil
}

func (r *fakeDocumentRepo) GetForUpdate(ctx context.Context, ref domain.DocumentRef) (*domain.Document, error) {
	r.locks.record("document:" + ref.ID)
	return r.Get(ctx, ref)
}

func (r *fakeDocumentRepo) ListByVisit(_ context.Context, visitID string) ([]domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Document
	for _, doc := range r.docs {
		if doc.VisitID == visitID {
			result = append(result, doc)
		}
	}
	return result, nil
}

func (r *fakeDocumentRepo) mutate(ref domain.DocumentRef, guard func(domain.Document) bool, apply func(*domain.Document)) (*domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[ref]
	if !ok || !guard(doc) {
		return nil, pgx.ErrNoRows
	}
	apply(&doc)
	doc.UpdatedAt = fixedNow
	r.docs[ref] = doc
	return &doc, nil
}

func (r *fakeDocumentRepo) UpdateContent(_ context.Context, ref domain.DocumentRef, content domain.DocumentContent) (*domain.Document, error) {
	return r.mutate(ref,
		func(d domain.Document) bool { return d.Status == ref.Kind.InitialStatus() },
		func(d *domain.Document) { d.Content = content })
}

func (r *fakeDocumentRepo) Sign(_ context.Context, ref domain.DocumentRef, sig domain.Signature) (*domain.Document, error) {
	return r.mutate(ref,
		func(d domain.Document) bool { return d.Status == domain.DocumentStatusDraft },
		func(d *domain.Document) {
			d.Status = domain.DocumentStatusSigned
			d.Signature = &sig
		})
}

func (r *fakeDocumentRepo) UpdateStatus(_ context.Context, ref domain.DocumentRef, from, to domain.DocumentStatus) (*domain.Document, error) {
	return r.mutate(ref,
		func(d domain.Document) bool { return d.Status == from },
		func(d *domain.Document) { d.Status = to })
}

func (r *fakeDocumentRepo) MarkDistributed(_ context.Context, ref domain.DocumentRef, channel domain.DistributionChannel, to domain.DocumentStatus) (*domain.Document, error) {
	return r.mutate(ref,
		func(d domain.Document) bool { return d.Status == domain.DocumentStatusSigned },
		func(d *domain.Document) {
			d.Status = to
			d.DistributionChannel = &channel
			at := fixedNow
			d.DistributedAt = &at
		})
}

func (r *fakeDocumentRepo) SetPDFURL(_ context.Context, ref domain.DocumentRef, url string) (*domain.Document, error) {
	return r.mutate(ref,
		func(d domain.Document) bool {
			return d.Status != domain.DocumentStatusDraft && d.Status != domain.DocumentStatusPending
		},
		func(d *domain.Document) { d.PDFURL = &url })
}

type fakeProfileRepo struct {
	profiles map[string]domain.Profile
}

func (r *fakeProfileRepo) GetByID(_ context.Context, id string) (*domain.Profile, error) {
	p, ok := r.profiles[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &p, nil
}

func (r *fakeProfileRepo) List(_ context.Context, _ repository.ProfileFilter) ([]domain.Profile, error) {
	var result []domain.Profile
	for _, p := range r.profiles {
		result = append(result, p)
	}
	return result, nil
}

type fakeScheduler struct {
	mu   sync.Mutex
	refs []domain.DocumentRef
}

func (s *fakeScheduler) Schedule(ref domain.DocumentRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs = append(s.refs, ref)
}

type recordingDispatcher struct {
	events.Dispatcher
	mu        sync.Mutex
	published []events.Event
}

func newRecordingDispatcher() *recordingDispatcher {
	return &recordingDispatcher{Dispatcher: events.NewInMemoryDispatcher()}
}

func (d *recordingDispatcher) Publish(ctx context.Context, event events.Event) error {
	d.mu.Lock()
	d.published = append(d.published, event)
	d.mu.Unlock()
	return d.Dispatcher.Publish(ctx, event)
}

func (d *recordingDispatcher) types() []events.EventType {
	d.mu.Lock()
	defer d.mu.Unlock()
	result := make([]events.EventType, 0, len(d.published))
	for _, e := range d.published {
		result = append(result, e.Type)
	}
	return result
}

const (
	orgID    = "org-1"
	nurseID  = "nurse-1"
	doctorID = "doctor-1"
	adminID  = "admin-1"
)

var (
	nurseSession   = domain.Session{ActorID: nurseID, Role: domain.RoleNurse, OrgID: orgID}
	doctorSession  = domain.Session{ActorID: doctorID, Role: domain.RoleDoctor, OrgID: orgID}
	controlSession = domain.Session{ActorID: "control-1", Role: domain.RoleControlRoom, OrgID: orgID}
	adminSession   = domain.Session{ActorID: adminID, Role: domain.RoleAdmin, OrgID: orgID}
)

func strPtr(s string) *string { return &s }

func visitAt(id string, status domain.VisitStatus) domain.Visit {
	return domain.Visit{
		ID:             id,
		OrgID:          orgID,
		PatientID:      "patient-1",
		NurseID:        strPtr(nurseID),
		DoctorID:       strPtr(doctorID),
		Status:         status,
		ScheduledStart: fixedNow,
		ScheduledEnd:   fixedNow.Add(time.Hour),
	}
}
