package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/visit-service/internal/domain"
	"github.com/spec-kit/visit-service/internal/persistence"
)

// VisitRepository encapsulates visit persistence. Status writes are
// compare-and-set on the expected prior status and return pgx.ErrNoRows when
// another writer got there first.
type VisitRepository interface {
	Create(ctx context.Context, visit *domain.Visit) error
	GetByID(ctx context.Context, id string) (*domain.Visit, error)
	GetForUpdate(ctx context.Context, id string) (*domain.Visit, error)
	UpdateStatus(ctx context.Context, id string, from, to domain.VisitStatus, cancelReason *string) (*domain.Visit, error)
	UpdateAssignment(ctx context.Context, id string, from, to domain.VisitStatus, nurseID, doctorID *string) (*domain.Visit, error)
	ListWithFilter(ctx context.Context, filter domain.VisitFilter) ([]domain.Visit, error)
}

type visitRepository struct {
	pool *pgxpool.Pool
}

// NewVisitRepository instantiates repository.
func NewVisitRepository(pool *pgxpool.Pool) VisitRepository {
	return &visitRepository{pool: pool}
}

const visitColumns = `id, org_id, patient_id, nurse_id, doctor_id, medical_box_id, status,
               scheduled_start, scheduled_end, cancel_reason, created_at, updated_at`

func (r *visitRepository) Create(ctx context.Context, visit *domain.Visit) error {
	const query = `
        INSERT INTO visits (org_id, patient_id, nurse_id, doctor_id, medical_box_id, status, scheduled_start, scheduled_end)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id, created_at, updated_at`
	return persistence.Conn(ctx, r.pool).QueryRow(ctx, query,
		visit.OrgID,
		visit.PatientID,
		visit.NurseID,
		visit.DoctorID,
		visit.MedicalBoxID,
		visit.Status,
		visit.ScheduledStart,
		visit.ScheduledEnd,
	).Scan(&visit.ID, &visit.CreatedAt, &visit.UpdatedAt)
}

func (r *visitRepository) GetByID(ctx context.Context, id string) (*domain.Visit, error) {
	query := `SELECT ` + visitColumns + ` FROM visits WHERE id=$1`
	return scanVisit(persistence.Conn(ctx, r.pool).QueryRow(ctx, query, id))
}

func (r *visitRepository) GetForUpdate(ctx context.Context, id string) (*domain.Visit, error) {
	query := `SELECT ` + visitColumns + ` FROM visits WHERE id=$1 FOR UPDATE`
	return scanVisit(persistence.Conn(ctx, r.pool).QueryRow(ctx, query, id))
}

func (r *visitRepository) UpdateStatus(ctx context.Context, id string, from, to domain.VisitStatus, cancelReason *string) (*domain.Visit, error) {
	query := `
        UPDATE visits SET status=$1, cancel_reason=COALESCE($2, cancel_reason), updated_at=NOW()
        WHERE id=$3 AND status=$4
        RETURNING ` + visitColumns
	return scanVisit(persistence.Conn(ctx, r.pool).QueryRow(ctx, query, to, cancelReason, id, from))
}

func (r *visitRepository) UpdateAssignment(ctx context.Context, id string, from, to domain.VisitStatus, nurseID, doctorID *string) (*domain.Visit, error) {
	query := `
        UPDATE visits SET status=$1, nurse_id=COALESCE($2, nurse_id), doctor_id=COALESCE($3, doctor_id), updated_at=NOW()
        WHERE id=$4 AND status=$5
        RETURNING ` + visitColumns
	return scanVisit(persistence.Conn(ctx, r.pool).QueryRow(ctx, query, to, nurseID, doctorID, id, from))
}

func (r *visitRepository) ListWithFilter(ctx context.Context, filter domain.VisitFilter) ([]domain.Visit, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.OrgID != nil {
		args = append(args, *filter.OrgID)
		clauses = append(clauses, fmt.Sprintf("org_id=$%d", len(args)))
	}
	if filter.NurseID != nil {
		args = append(args, *filter.NurseID)
		clauses = append(clauses, fmt.Sprintf("nurse_id=$%d", len(args)))
	}
	if filter.DoctorID != nil {
		args = append(args, *filter.DoctorID)
		clauses = append(clauses, fmt.Sprintf("doctor_id=$%d", len(args)))
	}
	if filter.PatientID != nil {
		args = append(args, *filter.PatientID)
		clauses = append(clauses, fmt.Sprintf("patient_id=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.ScheduledFrom != nil {
		args = append(args, *filter.ScheduledFrom)
		clauses = append(clauses, fmt.Sprintf("scheduled_start >= $%d", len(args)))
	}
	if filter.ScheduledTo != nil {
		args = append(args, *filter.ScheduledTo)
		clauses = append(clauses, fmt.Sprintf("scheduled_start <= $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM visits WHERE %s ORDER BY scheduled_start ASC, id LIMIT %d OFFSET %d`,
		visitColumns, strings.Join(clauses, " AND "), limit, offset)

	rows, err := persistence.Conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Visit
	for rows.Next() {
		visit, err := scanVisit(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *visit)
	}
	return result, rows.Err()
}

func scanVisit(row pgx.Row) (*domain.Visit, error) {
	var visit domain.Visit
	if err := row.Scan(
		&visit.ID,
		&visit.OrgID,
		&visit.PatientID,
		&visit.NurseID,
		&visit.DoctorID,
		&visit.MedicalBoxID,
		&visit.Status,
		&visit.ScheduledStart,
		&visit.ScheduledEnd,
		&visit.CancelReason,
		&visit.CreatedAt,
		&visit.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &visit, nil
}
