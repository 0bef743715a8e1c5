package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/visit-service/internal/domain"
	"github.com/spec-kit/visit-service/internal/persistence"
)

// EventRepository stores append-only timeline rows; it has no update or
// delete path.
type EventRepository interface {
	Append(ctx context.Context, event *domain.VisitEvent) error
	ListTimeline(ctx context.Context, visitID string, afterSeq int64, limit int) ([]domain.VisitEvent, error)
}

type eventRepository struct {
	pool *pgxpool.Pool
}

// NewEventRepository builds repository.
func NewEventRepository(pool *pgxpool.Pool) EventRepository {
	return &eventRepository{pool: pool}
}

func eventTable(source domain.EventSource) string {
	if source == domain.SourceDispatch {
		return "dispatch_events"
	}
	return "visit_events"
}

func (r *eventRepository) Append(ctx context.Context, event *domain.VisitEvent) error {
	if event.Payload == nil {
		return fmt.Errorf("event %s has no payload", event.Type)
	}
	event.Type = event.Payload.EventType()
	event.Source = event.Type.Source()
	raw, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", event.Type, err)
	}
	query := fmt.Sprintf(`
        INSERT INTO %s (visit_id, event_type, payload, created_by)
        VALUES ($1,$2,$3,$4)
        RETURNING id, seq, created_at`, eventTable(event.Source))
	return persistence.Conn(ctx, r.pool).QueryRow(ctx, query,
		event.VisitID,
		event.Type,
		raw,
		event.CreatedBy,
	).Scan(&event.ID, &event.Seq, &event.CreatedAt)
}

func (r *eventRepository) ListTimeline(ctx context.Context, visitID string, afterSeq int64, limit int) ([]domain.VisitEvent, error) {
	limit = domain.TimelineLimit(limit)
	const query = `
        SELECT id, seq, visit_id, 'visit' AS source, event_type, payload, created_by, created_at
        FROM visit_events WHERE visit_id=$1 AND seq > $2
        UNION ALL
        SELECT id, seq, visit_id, 'dispatch' AS source, event_type, payload, created_by, created_at
        FROM dispatch_events WHERE visit_id=$1 AND seq > $2
        ORDER BY created_at ASC, seq ASC
        LIMIT $3`
	rows, err := persistence.Conn(ctx, r.pool).Query(ctx, query, visitID, afterSeq, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.VisitEvent
	for rows.Next() {
		var (
			event domain.VisitEvent
			raw   []byte
		)
		if err := rows.Scan(
			&event.ID,
			&event.Seq,
			&event.VisitID,
			&event.Source,
			&event.Type,
			&raw,
			&event.CreatedBy,
			&event.CreatedAt,
		); err != nil {
			return nil, err
		}
		payload, err := domain.DecodePayload(event.Type, raw)
		if err != nil {
			return nil, err
		}
		event.Payload = payload
		result = append(result, event)
	}
	return result, rows.Err()
}
