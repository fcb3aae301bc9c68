package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"taskagent/internal/model"
)

// UnclassifiedRepository stores chat messages no intent rule matched.
type UnclassifiedRepository struct {
	db *pgxpool.Pool
}

func NewUnclassifiedRepository(db *pgxpool.Pool) *UnclassifiedRepository {
	return &UnclassifiedRepository{db: db}
}

func (r *UnclassifiedRepository) Insert(ctx context.Context, m *model.UnclassifiedMessage) error {
	query := `
		INSERT INTO unclassified_messages (user_id, message, confidence, received_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	if err := r.db.QueryRow(ctx, query, m.UserID, m.Message, m.Confidence, m.ReceivedAt).Scan(&m.ID); err != nil {
		return fmt.Errorf("failed to insert unclassified message: %w", err)
	}
	return nil
}

// Recent returns the newest messages first.
func (r *UnclassifiedRepository) Recent(ctx context.Context, limit int) ([]model.UnclassifiedMessage, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, message, confidence, received_at
		FROM unclassified_messages
		ORDER BY received_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unclassified messages: %w", err)
	}
	defer rows.Close()

	out := []model.UnclassifiedMessage{}
	for rows.Next() {
		var m model.UnclassifiedMessage
		if err := rows.Scan(&m.ID, &m.UserID, &m.Message, &m.Confidence, &m.ReceivedAt); err != nil {
			return nil, fmt.Errorf("failed to scan unclassified message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// DeleteBefore removes messages received before cutoff.
func (r *UnclassifiedRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM unclassified_messages WHERE received_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune unclassified messages: %w", err)
	}
	return tag.RowsAffected(), nil
}
