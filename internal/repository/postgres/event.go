package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"ridedispatch/internal/domain"
)

type eventRow struct {
	ID        int64     `db:"id"`
	RideID    string    `db:"ride_id"`
	Type      string    `db:"type"`
	Payload   []byte    `db:"payload"`
	CreatedAt time.Time `db:"created_at"`
}

// EventRepository is a PostgreSQL implementation of repository.EventRepository.
type EventRepository struct {
	q Querier
}

// NewEventRepository creates a new PostgreSQL event repository.
func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{q: db}
}

// NewEventRepositoryWithTx creates an event repository using a transaction.
func NewEventRepositoryWithTx(tx *sqlx.Tx) *EventRepository {
	return &EventRepository{q: tx}
}

// Append inserts the event and sets its BIGSERIAL id.
func (r *EventRepository) Append(ctx context.Context, event *domain.RideEvent) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("encode event payload: %w", err)
	}

	query := `
		INSERT INTO ride_events (ride_id, type, payload, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	if err := r.q.QueryRowxContext(ctx, query, event.RideID, string(event.Type), payload, event.CreatedAt).Scan(&event.ID); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// ListByRide returns a ride's events in append order.
func (r *EventRepository) ListByRide(ctx context.Context, rideID string) ([]*domain.RideEvent, error) {
	query := `SELECT id, ride_id, type, payload, created_at FROM ride_events WHERE ride_id = $1 ORDER BY id`

	var rows []eventRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, query, rideID); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	events := make([]*domain.RideEvent, 0, len(rows))
	for _, row := range rows {
		e := &domain.RideEvent{
			ID:        row.ID,
			RideID:    row.RideID,
			Type:      domain.EventType(row.Type),
			CreatedAt: row.CreatedAt,
		}
		if len(row.Payload) > 0 {
			if err := json.Unmarshal(row.Payload, &e.Payload); err != nil {
				return nil, fmt.Errorf("decode event %d payload: %w", row.ID, err)
			}
		}
		events = append(events, e)
	}
	return events, nil
}
