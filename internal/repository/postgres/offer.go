package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"ridedispatch/internal/domain"
	"ridedispatch/internal/repository"
)

const offerColumns = `id, ride_id, driver_id, status, rank, distance_km, expires_at, created_at, updated_at`

type offerRow struct {
	ID         string    `db:"id"`
	RideID     string    `db:"ride_id"`
	DriverID   string    `db:"driver_id"`
	Status     string    `db:"status"`
	Rank       int       `db:"rank"`
	DistanceKm float64   `db:"distance_km"`
	ExpiresAt  time.Time `db:"expires_at"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (r offerRow) toDomain() *domain.RideOffer {
	return &domain.RideOffer{
		ID:         r.ID,
		RideID:     r.RideID,
		DriverID:   r.DriverID,
		Status:     domain.OfferStatus(r.Status),
		Rank:       r.Rank,
		DistanceKm: r.DistanceKm,
		ExpiresAt:  r.ExpiresAt,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

func toOffers(rows []offerRow) []*domain.RideOffer {
	offers := make([]*domain.RideOffer, 0, len(rows))
	for _, row := range rows {
		offers = append(offers, row.toDomain())
	}
	return offers
}

// OfferRepository is a PostgreSQL implementation of repository.OfferRepository.
type OfferRepository struct {
	q Querier
}

// NewOfferRepository creates a new PostgreSQL offer repository.
func NewOfferRepository(db *sqlx.DB) *OfferRepository {
	return &OfferRepository{q: db}
}

// NewOfferRepositoryWithTx creates an offer repository using a transaction.
func NewOfferRepositoryWithTx(tx *sqlx.Tx) *OfferRepository {
	return &OfferRepository{q: tx}
}

// CreateBatch inserts all offers with a single multi-row INSERT.
func (r *OfferRepository) CreateBatch(ctx context.Context, offers []*domain.RideOffer) error {
	if len(offers) == 0 {
		return nil
	}

	const perRow = 9
	values := make([]string, 0, len(offers))
	args := make([]any, 0, len(offers)*perRow)
	for i, o := range offers {
		base := i * perRow
		placeholders := make([]string, perRow)
		for j := range placeholders {
			placeholders[j] = fmt.Sprintf("$%d", base+j+1)
		}
		values = append(values, "("+strings.Join(placeholders, ", ")+")")
		args = append(args,
			o.ID, o.RideID, o.DriverID, string(o.Status), o.Rank, o.DistanceKm,
			o.ExpiresAt, o.CreatedAt, o.UpdatedAt,
		)
	}

	query := `INSERT INTO ride_offers (` + offerColumns + `) VALUES ` + strings.Join(values, ", ")
	if _, err := r.q.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("insert offers: %w", err)
	}
	return nil
}

// FindOpen returns the SENT offer for the pair that has not yet expired.
func (r *OfferRepository) FindOpen(ctx context.Context, rideID, driverID string, now time.Time) (*domain.RideOffer, error) {
	query := `
		SELECT ` + offerColumns + ` FROM ride_offers
		WHERE ride_id = $1 AND driver_id = $2 AND status = 'SENT' AND expires_at > $3
	`
	return r.get(ctx, query, rideID, driverID, now)
}

// FindByRideAndDriver returns the offer for the pair in any status.
func (r *OfferRepository) FindByRideAndDriver(ctx context.Context, rideID, driverID string) (*domain.RideOffer, error) {
	query := `SELECT ` + offerColumns + ` FROM ride_offers WHERE ride_id = $1 AND driver_id = $2`
	return r.get(ctx, query, rideID, driverID)
}

func (r *OfferRepository) get(ctx context.Context, query string, args ...any) (*domain.RideOffer, error) {
	var row offerRow
	if err := sqlx.GetContext(ctx, r.q, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get offer: %w", err)
	}
	return row.toDomain(), nil
}

// ListByRide returns a ride's offers in rank order.
func (r *OfferRepository) ListByRide(ctx context.Context, rideID string) ([]*domain.RideOffer, error) {
	query := `SELECT ` + offerColumns + ` FROM ride_offers WHERE ride_id = $1 ORDER BY rank, created_at`

	var rows []offerRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, query, rideID); err != nil {
		return nil, fmt.Errorf("list offers: %w", err)
	}
	return toOffers(rows), nil
}

// ListOpenByDriver returns a driver's unexpired SENT offers, newest first.
func (r *OfferRepository) ListOpenByDriver(ctx context.Context, driverID string, now time.Time) ([]*domain.RideOffer, error) {
	query := `
		SELECT ` + offerColumns + ` FROM ride_offers
		WHERE driver_id = $1 AND status = 'SENT' AND expires_at > $2
		ORDER BY created_at DESC
	`

	var rows []offerRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, query, driverID, now); err != nil {
		return nil, fmt.Errorf("list driver offers: %w", err)
	}
	return toOffers(rows), nil
}

// UpdateStatus moves an offer between statuses guarded on the current one.
func (r *OfferRepository) UpdateStatus(ctx context.Context, id string, from, to domain.OfferStatus, now time.Time) (bool, error) {
	query := `UPDATE ride_offers SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`

	result, err := r.q.ExecContext(ctx, query, string(to), now, id, string(from))
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("update offer status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected == 1, nil
}

// ExpireSentForRide expires every SENT offer of the ride other than exceptOfferID.
func (r *OfferRepository) ExpireSentForRide(ctx context.Context, rideID, exceptOfferID string, now time.Time) ([]string, error) {
	query := `
		UPDATE ride_offers SET status = 'EXPIRED', updated_at = $1
		WHERE ride_id = $2 AND status = 'SENT' AND id <> $3
		RETURNING id
	`

	var ids []string
	if err := sqlx.SelectContext(ctx, r.q, &ids, query, now, rideID, exceptOfferID); err != nil {
		return nil, fmt.Errorf("expire ride offers: %w", err)
	}
	return ids, nil
}

// ExpireLapsed expires up to limit SENT offers past their deadline. Rows locked
// by a concurrent accept are skipped and picked up on a later sweep.
func (r *OfferRepository) ExpireLapsed(ctx context.Context, now time.Time, limit int) ([]*domain.RideOffer, error) {
	query := `
		UPDATE ride_offers SET status = 'EXPIRED', updated_at = $1
		WHERE id IN (
			SELECT id FROM ride_offers
			WHERE status = 'SENT' AND expires_at <= $1
			ORDER BY expires_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + offerColumns

	var rows []offerRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, query, now, limit); err != nil {
		return nil, fmt.Errorf("expire lapsed offers: %w", err)
	}
	return toOffers(rows), nil
}
