package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/visit-service/internal/domain"
	"github.com/spec-kit/visit-service/internal/persistence"
)

// DocumentRepository persists clinical documents. Every state-changing method
// is guarded on the current status in its WHERE clause and returns
// pgx.ErrNoRows when the guard does not match.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	Get(ctx context.Context, ref domain.DocumentRef) (*domain.Document, error)
	GetForUpdate(ctx context.Context, ref domain.DocumentRef) (*domain.Document, error)
	ListByVisit(ctx context.Context, visitID string) ([]domain.Document, error)
	UpdateContent(ctx context.Context, ref domain.DocumentRef, content domain.DocumentContent) (*domain.Document, error)
	Sign(ctx context.Context, ref domain.DocumentRef, sig domain.Signature) (*domain.Document, error)
	UpdateStatus(ctx context.Context, ref domain.DocumentRef, from, to domain.DocumentStatus) (*domain.Document, error)
	MarkDistributed(ctx context.Context, ref domain.DocumentRef, channel domain.DistributionChannel, to domain.DocumentStatus) (*domain.Document, error)
	SetPDFURL(ctx context.Context, ref domain.DocumentRef, url string) (*domain.Document, error)
}

type documentRepository struct {
	pool *pgxpool.Pool
}

// NewDocumentRepository builds repository.
func NewDocumentRepository(pool *pgxpool.Pool) DocumentRepository {
	return &documentRepository{pool: pool}
}

var documentTables = map[domain.DocumentKind]string{
	domain.KindPrescription:      "prescriptions",
	domain.KindSickNote:          "sick_notes",
	domain.KindDiagnosticRequest: "diagnostic_requests",
}

const documentColumns = `id, visit_id, patient_id, doctor_id, status, content,
               signature_name, signature_timestamp, signature_ip, signature_digest,
               pdf_url, distribution_channel, distributed_at, created_by, created_at, updated_at`

func tableFor(kind domain.DocumentKind) (string, error) {
	table, ok := documentTables[kind]
	if !ok {
		return "", fmt.Errorf("unknown document kind %q", kind)
	}
	return table, nil
}

func (r *documentRepository) Create(ctx context.Context, doc *domain.Document) error {
	table, err := tableFor(doc.Kind)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(doc.Content)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
        INSERT INTO %s (visit_id, patient_id, doctor_id, status, content, created_by)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at, updated_at`, table)
	return persistence.Conn(ctx, r.pool).QueryRow(ctx, query,
		doc.VisitID,
		doc.PatientID,
		doc.DoctorID,
		doc.Status,
		raw,
		doc.CreatedBy,
	).Scan(&doc.ID, &doc.CreatedAt, &doc.UpdatedAt)
}

func (r *documentRepository) Get(ctx context.Context, ref domain.DocumentRef) (*domain.Document, error) {
	return r.fetch(ctx, ref, "")
}

func (r *documentRepository) GetForUpdate(ctx context.Context, ref domain.DocumentRef) (*domain.Document, error) {
	return r.fetch(ctx, ref, " FOR UPDATE")
}

func (r *documentRepository) fetch(ctx context.Context, ref domain.DocumentRef, suffix string) (*domain.Document, error) {
	table, err := tableFor(ref.Kind)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id=$1%s`, documentColumns, table, suffix)
	return scanDocument(ref.Kind, persistence.Conn(ctx, r.pool).QueryRow(ctx, query, ref.ID))
}

func (r *documentRepository) ListByVisit(ctx context.Context, visitID string) ([]domain.Document, error) {
	var result []domain.Document
	for _, kind := range []domain.DocumentKind{domain.KindPrescription, domain.KindSickNote, domain.KindDiagnosticRequest} {
		query := fmt.Sprintf(`SELECT %s FROM %s WHERE visit_id=$1 ORDER BY created_at ASC`, documentColumns, documentTables[kind])
		rows, err := persistence.Conn(ctx, r.pool).Query(ctx, query, visitID)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			doc, err := scanDocument(kind, rows)
			if err != nil {
				rows.Close()
				return nil, err
			}
			result = append(result, *doc)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (r *documentRepository) UpdateContent(ctx context.Context, ref domain.DocumentRef, content domain.DocumentContent) (*domain.Document, error) {
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, err
	}
	return r.update(ctx, ref, `content=$2`, `status=$3`, raw, ref.Kind.InitialStatus())
}

// Sign flips status and writes every signature column in one statement.
func (r *documentRepository) Sign(ctx context.Context, ref domain.DocumentRef, sig domain.Signature) (*domain.Document, error) {
	return r.update(ctx, ref,
		`status=$2, signature_name=$3, signature_timestamp=$4, signature_ip=$5, signature_digest=$6`,
		`status=$7`,
		domain.DocumentStatusSigned, sig.Name, sig.SignedAt, sig.IP, sig.ContentDigest, domain.DocumentStatusDraft)
}

func (r *documentRepository) UpdateStatus(ctx context.Context, ref domain.DocumentRef, from, to domain.DocumentStatus) (*domain.Document, error) {
	return r.update(ctx, ref, `status=$2`, `status=$3`, to, from)
}

func (r *documentRepository) MarkDistributed(ctx context.Context, ref domain.DocumentRef, channel domain.DistributionChannel, to domain.DocumentStatus) (*domain.Document, error) {
	return r.update(ctx, ref,
		`status=$2, distribution_channel=$3, distributed_at=NOW()`,
		`status=$4`,
		to, channel, domain.DocumentStatusSigned)
}

func (r *documentRepository) SetPDFURL(ctx context.Context, ref domain.DocumentRef, url string) (*domain.Document, error) {
	return r.update(ctx, ref, `pdf_url=$2`, `status NOT IN ('draft','pending')`, url)
}

// update runs UPDATE <table> SET <set>, updated_at=NOW() WHERE id=$1 AND <guard>.
// $1 is always the document id; args fill $2 onward.
func (r *documentRepository) update(ctx context.Context, ref domain.DocumentRef, set, guard string, args ...any) (*domain.Document, error) {
	table, err := tableFor(ref.Kind)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`UPDATE %s SET %s, updated_at=NOW() WHERE id=$1 AND %s RETURNING %s`,
		table, set, guard, documentColumns)
	params := append([]any{ref.ID}, args...)
	return scanDocument(ref.Kind, persistence.Conn(ctx, r.pool).QueryRow(ctx, query, params...))
}

func scanDocument(kind domain.DocumentKind, row pgx.Row) (*domain.Document, error) {
	var (
		doc       domain.Document
		raw       []byte
		sigName   *string
		sigTime   *time.Time
		sigIP     *string
		sigDigest *string
	)
	if err := row.Scan(
		&doc.ID,
		&doc.VisitID,
		&doc.PatientID,
		&doc.DoctorID,
		&doc.Status,
		&raw,
		&sigName,
		&sigTime,
		&sigIP,
		&sigDigest,
		&doc.PDFURL,
		&doc.DistributionChannel,
		&doc.DistributedAt,
		&doc.CreatedBy,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	); err != nil {
		return nil, err
	}
	doc.Kind = kind
	content, err := domain.DecodeContent(kind, raw)
	if err != nil {
		return nil, err
	}
	doc.Content = content
	if sigTime != nil {
		doc.Signature = &domain.Signature{SignedAt: *sigTime}
		if sigName != nil {
			doc.Signature.Name = *sigName
		}
		if sigIP != nil {
			doc.Signature.IP = *sigIP
		}
		if sigDigest != nil {
			doc.Signature.ContentDigest = *sigDigest
		}
	}
	return &doc, nil
}
