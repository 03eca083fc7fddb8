package directory

import (
	"context"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/viewings/libs/db"
	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/model"
)

// Postgres reads agents, working hours and blocked intervals from the
// directory tables in the service schema.
type Postgres struct {
	pool *db.Pool
}

func NewPostgres(pool *db.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) WorkingHours(ctx context.Context, agentID string) ([]model.AvailabilityWindow, error) {
	var tz string
	err := p.pool.QueryRow(ctx, `
		SELECT timezone FROM agents WHERE id = $1
	`, agentID).Scan(&tz)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownAgent, agentID)
		}
		return nil, err
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("agent %s timezone: %w", agentID, err)
	}

	blocked, err := p.blocked(ctx, agentID)
	if err != nil {
		return nil, err
	}

	rows, err := p.pool.Query(ctx, `
		SELECT COALESCE(weekday, 0), COALESCE(to_char(work_date, 'YYYY-MM-DD'), ''), start_minute, end_minute
		FROM agent_working_hours
		WHERE agent_id = $1
		ORDER BY work_date NULLS FIRST, weekday, start_minute
	`, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var windows []model.AvailabilityWindow
	for rows.Next() {
		var (
			weekday    int
			date       string
			start, end int
		)
		if err := rows.Scan(&weekday, &date, &start, &end); err != nil {
			return nil, err
		}
		windows = append(windows, model.AvailabilityWindow{
			AgentID:  agentID,
			Weekday:  time.Weekday(weekday),
			Date:     date,
			Start:    model.Clock(start),
			End:      model.Clock(end),
			Location: loc,
			Blocked:  blocked,
		})
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return windows, nil
}

func (p *Postgres) blocked(ctx context.Context, agentID string) ([]model.Interval, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT start_time, end_time
		FROM agent_blocked_intervals
		WHERE agent_id = $1 AND end_time > now() - interval '1 day'
		ORDER BY start_time
	`, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Interval
	for rows.Next() {
		var iv model.Interval
		if err := rows.Scan(&iv.Start, &iv.End); err != nil {
			return nil, err
		}
		out = append(out, iv)
	}
	return out, rows.Err()
}

func (p *Postgres) PropertyExists(ctx context.Context, propertyID string) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM properties WHERE id = $1 AND active)
	`, propertyID).Scan(&exists)
	return exists, err
}
