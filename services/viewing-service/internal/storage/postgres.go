package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/viewings/libs/db"
	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/events"
	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/model"
	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/outbox"
)

// Postgres serializes writers per agent with a transaction-scoped advisory
// lock. The exclusion constraint on appointments backs up the overlap check.
type Postgres struct {
	pool        *db.Pool
	outbox      *outbox.Repository
	lockTimeout time.Duration
}

func NewPostgres(pool *db.Pool, outboxRepo *outbox.Repository, lockTimeout time.Duration) *Postgres {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	return &Postgres{pool: pool, outbox: outboxRepo, lockTimeout: lockTimeout}
}

const appointmentColumns = `
	id, agent_id, property_id, client_name, client_email, client_phone,
	scheduled_start, duration_minutes, viewing_type, attendee_count, status, notes, version,
	cancel_reason, created_by, COALESCE(idempotency_key, ''), created_at, updated_at,
	started_at, completed_at, cancelled_at`

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (p *Postgres) WithAgent(ctx context.Context, agentID string, fn func(Tx) error) error {
	err := p.pool.WithTx(ctx, func(tx pgx.Tx) error {
		// SET does not accept bind parameters.
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", p.lockTimeout.Milliseconds())); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, agentID); err != nil {
			if db.HasCode(err, db.CodeLockNotAvailable) {
				return model.Unavailable("acquire agent lock", err)
			}
			return err
		}
		return fn(&pgTx{tx: tx, outbox: p.outbox, agentID: agentID})
	})
	return translate(err)
}

// translate maps driver failures onto the error taxonomy. Domain errors pass through.
func translate(err error) error {
	if err == nil || model.Kind(err) != model.KindInternal {
		return err
	}
	if db.HasCode(err, db.CodeExclusionViolation) {
		return &model.SlotError{Reason: "overlaps an existing appointment"}
	}
	if db.IsTransient(err) {
		return model.Unavailable("appointment store", err)
	}
	return fmt.Errorf("appointment store: %w", err)
}

func (p *Postgres) Get(ctx context.Context, id string) (model.Appointment, error) {
	a, err := getAppointment(ctx, p.pool, id)
	return a, translate(err)
}

func (p *Postgres) ListActiveByAgent(ctx context.Context, agentID string, from, to time.Time) ([]model.Appointment, error) {
	appts, err := listActive(ctx, p.pool, agentID, from, to)
	return appts, translate(err)
}

func (p *Postgres) ListByAgent(ctx context.Context, agentID string, from, to time.Time) ([]model.Appointment, error) {
	appts, err := queryAppointments(ctx, p.pool, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE agent_id = $1 AND scheduled_start >= $2 AND scheduled_start < $3
		ORDER BY scheduled_start, id
	`, agentID, from, to)
	return appts, translate(err)
}

func (p *Postgres) ListByStatus(ctx context.Context, status model.Status, limit int) ([]model.Appointment, error) {
	if limit <= 0 {
		limit = 50
	}
	appts, err := queryAppointments(ctx, p.pool, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = $1
		ORDER BY scheduled_start, id
		LIMIT $2
	`, string(status), limit)
	return appts, translate(err)
}

func getAppointment(ctx context.Context, q querier, id string) (model.Appointment, error) {
	a, err := scanAppointment(q.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id))
	if db.IsNotFound(err) {
		return model.Appointment{}, model.NotFound("appointment", id)
	}
	return a, err
}

func listActive(ctx context.Context, q querier, agentID string, from, to time.Time) ([]model.Appointment, error) {
	return queryAppointments(ctx, q, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE agent_id = $1
			AND status IN ('scheduled', 'confirmed', 'in_progress')
			AND scheduled_start < $3
			AND scheduled_end > $2
		ORDER BY scheduled_start, id
	`, agentID, from, to)
}

func queryAppointments(ctx context.Context, q querier, sql string, args ...any) ([]model.Appointment, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var (
		a           model.Appointment
		viewingType string
		status      string
	)
	err := row.Scan(
		&a.ID,
		&a.AgentID,
		&a.PropertyID,
		&a.ClientContact.Name,
		&a.ClientContact.Email,
		&a.ClientContact.Phone,
		&a.ScheduledStart,
		&a.DurationMinutes,
		&viewingType,
		&a.AttendeeCount,
		&status,
		&a.Notes,
		&a.Version,
		&a.CancelReason,
		&a.CreatedBy,
		&a.IdempotencyKey,
		&a.CreatedAt,
		&a.UpdatedAt,
		&a.StartedAt,
		&a.CompletedAt,
		&a.CancelledAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	a.ViewingType = model.ViewingType(viewingType)
	a.Status = model.Status(status)
	return a, nil
}

type pgTx struct {
	tx      pgx.Tx
	outbox  *outbox.Repository
	agentID string
}

func (t *pgTx) Get(ctx context.Context, id string) (model.Appointment, error) {
	return getAppointment(ctx, t.tx, id)
}

func (t *pgTx) ListActiveByAgent(ctx context.Context, agentID string, from, to time.Time) ([]model.Appointment, error) {
	return listActive(ctx, t.tx, agentID, from, to)
}

func (t *pgTx) FindByIdempotencyKey(ctx context.Context, agentID, key string) (model.Appointment, bool, error) {
	if key == "" {
		return model.Appointment{}, false, nil
	}
	a, err := scanAppointment(t.tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE agent_id = $1 AND idempotency_key = $2
	`, agentID, key))
	if db.IsNotFound(err) {
		return model.Appointment{}, false, nil
	}
	if err != nil {
		return model.Appointment{}, false, err
	}
	return a, true, nil
}

func (t *pgTx) Insert(ctx context.Context, a model.Appointment) error {
	if a.AgentID != t.agentID {
		return fmt.Errorf("insert for agent %s inside unit of work for %s", a.AgentID, t.agentID)
	}
	var idempotencyKey *string
	if a.IdempotencyKey != "" {
		idempotencyKey = &a.IdempotencyKey
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO appointments (
			id, agent_id, property_id, client_name, client_email, client_phone,
			scheduled_start, scheduled_end, duration_minutes, viewing_type, attendee_count, status, notes, version,
			cancel_reason, created_by, idempotency_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`, a.ID, a.AgentID, a.PropertyID, a.ClientContact.Name, a.ClientContact.Email, a.ClientContact.Phone,
		a.ScheduledStart, a.End(), a.DurationMinutes, string(a.ViewingType), a.AttendeeCount, string(a.Status), a.Notes, a.Version,
		a.CancelReason, a.CreatedBy, idempotencyKey, a.CreatedAt, a.UpdatedAt)
	return err
}

func (t *pgTx) Update(ctx context.Context, a model.Appointment, expectedVersion int64) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE appointments
		SET scheduled_start = $3,
			scheduled_end = $4,
			duration_minutes = $5,
			status = $6,
			version = $7,
			cancel_reason = $8,
			updated_at = $9,
			started_at = $10,
			completed_at = $11,
			cancelled_at = $12
		WHERE id = $1 AND version = $2 AND agent_id = $13
	`, a.ID, expectedVersion, a.ScheduledStart, a.End(), a.DurationMinutes, string(a.Status), a.Version,
		a.CancelReason, a.UpdatedAt, a.StartedAt, a.CompletedAt, a.CancelledAt, t.agentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	current, err := getAppointment(ctx, t.tx, a.ID)
	if err != nil {
		return err
	}
	if current.AgentID != t.agentID {
		return fmt.Errorf("update of appointment %s outside its agent's unit of work", a.ID)
	}
	return &model.StaleVersionError{Expected: expectedVersion, Actual: current.Version}
}

func (t *pgTx) Emit(ctx context.Context, evts ...events.Event) error {
	for _, evt := range evts {
		if err := t.outbox.Insert(ctx, t.tx, evt); err != nil {
			return err
		}
	}
	return nil
}
