package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"ridedispatch/internal/repository"
)

// Store is a PostgreSQL implementation of repository.Store.
type Store struct {
	db *sqlx.DB
}

// NewStore creates a Store over db.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Ensure Store implements repository.Store.
var _ repository.Store = (*Store)(nil)

func (s *Store) Rides() repository.RideRepository   { return NewRideRepository(s.db) }
func (s *Store) Offers() repository.OfferRepository { return NewOfferRepository(s.db) }
func (s *Store) Events() repository.EventRepository { return NewEventRepository(s.db) }

// WithinTx runs fn inside a READ COMMITTED transaction. The guarded UPDATEs
// issued by fn re-check their predicate after acquiring the row lock, which
// is what makes concurrent accepts resolve to a single winner.
func (s *Store) WithinTx(ctx context.Context, fn func(repository.Repositories) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(txRepos{tx: tx}); err != nil {
		return err
	}

	return tx.Commit()
}

type txRepos struct {
	tx *sqlx.Tx
}

func (t txRepos) Rides() repository.RideRepository   { return NewRideRepositoryWithTx(t.tx) }
func (t txRepos) Offers() repository.OfferRepository { return NewOfferRepositoryWithTx(t.tx) }
func (t txRepos) Events() repository.EventRepository { return NewEventRepositoryWithTx(t.tx) }
