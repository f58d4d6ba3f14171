// Package repo contains the PostgreSQL implementations of the domain
// repositories.
package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"aiprofile/internal/domain"
)

// ResponseRepositoryPG implements domain.ResponseRepository.
type ResponseRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewResponseRepository creates a new response repository backed by PostgreSQL.
func NewResponseRepository(pool *pgxpool.Pool) *ResponseRepositoryPG {
	return &ResponseRepositoryPG{pool: pool}
}

// Create inserts the success record for a completed job. A redelivered job
// that already completed overwrites its own record rather than erroring, so
// the consumer can always acknowledge after persistence.
func (r *ResponseRepositoryPG) Create(ctx context.Context, rec *domain.ResponseRecord) error {
	query := `
INSERT INTO responses (id, email, image_paths, requested_at, title, user_id)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE
SET email = EXCLUDED.email,
    image_paths = EXCLUDED.image_paths,
    requested_at = EXCLUDED.requested_at,
    title = EXCLUDED.title,
    user_id = EXCLUDED.user_id;
`
	_, err := r.pool.Exec(ctx, query,
		rec.ID,
		rec.Email,
		rec.ImagePaths,
		rec.RequestedAt,
		rec.Title,
		rec.UserID,
	)
	return err
}

// GetByID fetches the success record for a job.
func (r *ResponseRepositoryPG) GetByID(ctx context.Context, id string) (*domain.ResponseRecord, error) {
	query := `
SELECT id, email, image_paths, requested_at, created_at, title, user_id
FROM responses
WHERE id = $1;
`
	row := r.pool.QueryRow(ctx, query, id)
	var rec domain.ResponseRecord
	if err := row.Scan(
		&rec.ID,
		&rec.Email,
		&rec.ImagePaths,
		&rec.RequestedAt,
		&rec.CreatedAt,
		&rec.Title,
		&rec.UserID,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}
