package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"ridedispatch/internal/domain"
	"ridedispatch/internal/repository"
)

const rideColumns = `id, requester_id, driver_id, origin_lat, origin_lng, origin_address,
	destination_lat, destination_lng, destination_address, scheduled_for, price_cents,
	payment_method, payment_status, status, status_version, created_at, updated_at`

type rideRow struct {
	ID                 string         `db:"id"`
	RequesterID        string         `db:"requester_id"`
	DriverID           sql.NullString `db:"driver_id"`
	OriginLat          float64        `db:"origin_lat"`
	OriginLng          float64        `db:"origin_lng"`
	OriginAddress      string         `db:"origin_address"`
	DestinationLat     float64        `db:"destination_lat"`
	DestinationLng     float64        `db:"destination_lng"`
	DestinationAddress string         `db:"destination_address"`
	ScheduledFor       sql.NullTime   `db:"scheduled_for"`
	PriceCents         sql.NullInt64  `db:"price_cents"`
	PaymentMethod      string         `db:"payment_method"`
	PaymentStatus      string         `db:"payment_status"`
	Status             string         `db:"status"`
	StatusVersion      int            `db:"status_version"`
	CreatedAt          time.Time      `db:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at"`
}

func (r rideRow) toDomain() *domain.Ride {
	ride := &domain.Ride{
		ID:            r.ID,
		RequesterID:   r.RequesterID,
		Origin:        domain.Location{Lat: r.OriginLat, Lng: r.OriginLng, Address: r.OriginAddress},
		Destination:   domain.Location{Lat: r.DestinationLat, Lng: r.DestinationLng, Address: r.DestinationAddress},
		PaymentMethod: domain.PaymentMethod(r.PaymentMethod),
		PaymentStatus: domain.PaymentStatus(r.PaymentStatus),
		Status:        domain.RideStatus(r.Status),
		StatusVersion: r.StatusVersion,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if r.DriverID.Valid {
		ride.DriverID = r.DriverID.String
	}
	if r.ScheduledFor.Valid {
		t := r.ScheduledFor.Time
		ride.ScheduledFor = &t
	}
	if r.PriceCents.Valid {
		p := r.PriceCents.Int64
		ride.PriceCents = &p
	}
	return ride
}

// RideRepository is a PostgreSQL implementation of repository.RideRepository.
type RideRepository struct {
	q Querier
}

// NewRideRepository creates a new PostgreSQL ride repository.
func NewRideRepository(db *sqlx.DB) *RideRepository {
	return &RideRepository{q: db}
}

// NewRideRepositoryWithTx creates a ride repository using a transaction.
func NewRideRepositoryWithTx(tx *sqlx.Tx) *RideRepository {
	return &RideRepository{q: tx}
}

// Create persists a new ride.
func (r *RideRepository) Create(ctx context.Context, ride *domain.Ride) error {
	query := `
		INSERT INTO rides (` + rideColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	var driverID sql.NullString
	if ride.DriverID != "" {
		driverID = sql.NullString{String: ride.DriverID, Valid: true}
	}
	var scheduledFor sql.NullTime
	if ride.ScheduledFor != nil {
		scheduledFor = sql.NullTime{Time: *ride.ScheduledFor, Valid: true}
	}
	var priceCents sql.NullInt64
	if ride.PriceCents != nil {
		priceCents = sql.NullInt64{Int64: *ride.PriceCents, Valid: true}
	}

	_, err := r.q.ExecContext(ctx, query,
		ride.ID,
		ride.RequesterID,
		driverID,
		ride.Origin.Lat,
		ride.Origin.Lng,
		ride.Origin.Address,
		ride.Destination.Lat,
		ride.Destination.Lng,
		ride.Destination.Address,
		scheduledFor,
		priceCents,
		string(ride.PaymentMethod),
		string(ride.PaymentStatus),
		string(ride.Status),
		ride.StatusVersion,
		ride.CreatedAt,
		ride.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("insert ride: %w", err)
	}
	return nil
}

// GetByID retrieves a ride by ID.
func (r *RideRepository) GetByID(ctx context.Context, id string) (*domain.Ride, error) {
	query := `SELECT ` + rideColumns + ` FROM rides WHERE id = $1`

	var row rideRow
	if err := sqlx.GetContext(ctx, r.q, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get ride: %w", err)
	}
	return row.toDomain(), nil
}

// ListByUser returns rides requested by or assigned to userID, newest first.
func (r *RideRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Ride, error) {
	query := `
		SELECT ` + rideColumns + ` FROM rides
		WHERE requester_id = $1 OR driver_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2
	`
	return r.list(ctx, query, userID, limit)
}

// ListDueScheduled returns REQUESTED rides scheduled at or before now.
func (r *RideRepository) ListDueScheduled(ctx context.Context, now time.Time, limit int) ([]*domain.Ride, error) {
	query := `
		SELECT ` + rideColumns + ` FROM rides
		WHERE status = 'REQUESTED' AND scheduled_for IS NOT NULL AND scheduled_for <= $1
		ORDER BY scheduled_for
		LIMIT $2
	`
	return r.list(ctx, query, now, limit)
}

func (r *RideRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Ride, error) {
	var rows []rideRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list rides: %w", err)
	}
	rides := make([]*domain.Ride, 0, len(rows))
	for _, row := range rows {
		rides = append(rides, row.toDomain())
	}
	return rides, nil
}

// CompareAndSwapStatus updates status (and optionally driver_id) guarded on the
// current status. The row lock taken by the UPDATE serializes concurrent callers;
// a caller whose guard no longer matches after the winner commits affects zero rows.
func (r *RideRepository) CompareAndSwapStatus(ctx context.Context, id string, expected domain.RideStatus, update repository.RideUpdate) (bool, error) {
	query := `
		UPDATE rides
		SET status = $1,
			driver_id = COALESCE($2, driver_id),
			status_version = status_version + 1,
			updated_at = $3
		WHERE id = $4 AND status = $5
	`

	var driverID sql.NullString
	if update.DriverID != nil {
		driverID = sql.NullString{String: *update.DriverID, Valid: true}
	}

	result, err := r.q.ExecContext(ctx, query,
		string(update.Status),
		driverID,
		update.UpdatedAt,
		id,
		string(expected),
	)
	if err != nil {
		return false, fmt.Errorf("update ride status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected == 1, nil
}
