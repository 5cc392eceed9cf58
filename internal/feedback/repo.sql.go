package feedback

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tessera-pm/tessera/internal/authz"
	"github.com/tessera-pm/tessera/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const feedbackColumns = `f.id, f.sprint_id, f.user_id, f.content, f.created_at, f.updated_at`

// List returns the feedback entries visible through the policy filter.
func (r *Repository) List(ctx context.Context, f authz.Filter) ([]Feedback, error) {
	query := fmt.Sprintf(`SELECT %s FROM feedbacks f WHERE %s ORDER BY f.id`, feedbackColumns, f.Rebind(1))
	rows, err := r.pool.Query(ctx, query, f.Args()...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Feedback
	for rows.Next() {
		var fb Feedback
		if err := rows.Scan(&fb.ID, &fb.SprintID, &fb.UserID, &fb.Content,
			&fb.CreatedAt, &fb.UpdatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, fb)
	}
	return entries, rows.Err()
}

// Get fetches one feedback entry.
func (r *Repository) Get(ctx context.Context, id int64) (Feedback, error) {
	var fb Feedback
	err := r.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM feedbacks f WHERE f.id = $1`, feedbackColumns), id,
	).Scan(&fb.ID, &fb.SprintID, &fb.UserID, &fb.Content, &fb.CreatedAt, &fb.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Feedback{}, fmt.Errorf("feedback %d: %w", id, shared.ErrNotFound)
	}
	if err != nil {
		return Feedback{}, err
	}
	return fb, nil
}

// Create attaches a feedback entry to a sprint.
func (r *Repository) Create(ctx context.Context, sprintID, userID int64, content string) (Feedback, error) {
	var fb Feedback
	err := r.pool.QueryRow(ctx, `
		INSERT INTO feedbacks (sprint_id, user_id, content, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		RETURNING id, sprint_id, user_id, content, created_at, updated_at`,
		sprintID, userID, content,
	).Scan(&fb.ID, &fb.SprintID, &fb.UserID, &fb.Content, &fb.CreatedAt, &fb.UpdatedAt)
	if err != nil {
		return Feedback{}, err
	}
	return fb, nil
}

// Update rewrites the content.
func (r *Repository) Update(ctx context.Context, id int64, content string) (Feedback, error) {
	var fb Feedback
	err := r.pool.QueryRow(ctx, `
		UPDATE feedbacks SET content = $2, updated_at = now()
		 WHERE id = $1
		RETURNING id, sprint_id, user_id, content, created_at, updated_at`,
		id, content,
	).Scan(&fb.ID, &fb.SprintID, &fb.UserID, &fb.Content, &fb.CreatedAt, &fb.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Feedback{}, fmt.Errorf("feedback %d: %w", id, shared.ErrNotFound)
	}
	if err != nil {
		return Feedback{}, err
	}
	return fb, nil
}

// Delete removes a feedback entry.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM feedbacks WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("feedback %d: %w", id, shared.ErrNotFound)
	}
	return nil
}
