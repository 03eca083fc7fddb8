// Package outbox stores appointment events in the same transaction as the
// state change and relays them to a broker with at-least-once delivery.
package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	otelx "github.com/md-rashed-zaman/viewings/libs/otel"
	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/events"
)

const aggregateAppointment = "appointment"

type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, evt events.Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO outbox_events (event_id, aggregate_type, aggregate_id, agent_id, event_type, payload, traceparent)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, evt.ID, aggregateAppointment, evt.AppointmentID, evt.AgentID, string(evt.Type), payload, otelx.TraceParent(ctx))
	return err
}

type Record struct {
	ID          int64
	EventID     string
	AggregateID string
	AgentID     string
	EventType   string
	Payload     []byte
	Traceparent string
	Attempts    int
	CreatedAt   time.Time
}

func (r *Repository) FetchUnpublished(ctx context.Context, tx pgx.Tx, limit int) ([]Record, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, event_id, aggregate_id, agent_id, event_type, payload, traceparent, attempts, created_at
		FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rcd Record
		if err := rows.Scan(&rcd.ID, &rcd.EventID, &rcd.AggregateID, &rcd.AgentID, &rcd.EventType, &rcd.Payload, &rcd.Traceparent, &rcd.Attempts, &rcd.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rcd)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

func (r *Repository) MarkPublished(ctx context.Context, tx pgx.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `
		UPDATE outbox_events
		SET published_at = now()
		WHERE id = ANY($1)
	`, ids)
	return err
}

// MarkFailed records a failed delivery attempt so the row is retried next poll.
func (r *Repository) MarkFailed(ctx context.Context, tx pgx.Tx, id int64, cause error) error {
	_, err := tx.Exec(ctx, `
		UPDATE outbox_events
		SET attempts = attempts + 1, last_error = $2
		WHERE id = $1
	`, id, cause.Error())
	return err
}
