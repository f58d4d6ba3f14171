package repo

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"aiprofile/internal/domain"
)

// ErrorRepositoryPG implements domain.ErrorRepository.
type ErrorRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewErrorRepository creates a new error repository backed by PostgreSQL.
func NewErrorRepository(pool *pgxpool.Pool) *ErrorRepositoryPG {
	return &ErrorRepositoryPG{pool: pool}
}

// Create inserts a failure record. Ids are not unique here: the sentinel id
// for undecodable messages can repeat, and a job that fails on redelivery
// writes a second row rather than losing either attempt.
func (r *ErrorRepositoryPG) Create(ctx context.Context, rec *domain.ErrorRecord) error {
	query := `
INSERT INTO errors (id, error)
VALUES ($1, $2);
`
	_, err := r.pool.Exec(ctx, query, rec.ID, rec.Error)
	return err
}
