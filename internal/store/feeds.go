package store

import (
	"context"
	"fmt"
	"time"

	"github.com/starford/mimir/internal/apperr"
)

// Feed is an RSS feed subscription owned by one user.
type Feed struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"-"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

// AddFeed registers a feed URL for a user.
func (s *Store) AddFeed(ctx context.Context, userID int64, url string) (*Feed, error) {
	now := time.Now().UTC()
	res, err := s.conn.ExecContext(ctx,
		`INSERT INTO feeds (user_id, url, created_at) VALUES (?, ?, ?)`,
		userID, url, now)
	if err != nil {
		return nil, fmt.Errorf("store: add feed: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("store: last insert id: %w", err)
	}
	return &Feed{ID: id, UserID: userID, URL: url, CreatedAt: now}, nil
}

// ListFeeds returns all feeds for a user.
func (s *Store) ListFeeds(ctx context.Context, userID int64) ([]Feed, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, user_id, url, created_at FROM feeds WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("store: list feeds: %w", err)
	}
	defer rows.Close()

	var out []Feed
	for rows.Next() {
		var f Feed
		if err := rows.Scan(&f.ID, &f.UserID, &f.URL, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// DeleteFeed removes a feed owned by userID.
func (s *Store) DeleteFeed(ctx context.Context, userID, feedID int64) error {
	res, err := s.conn.ExecContext(ctx,
		`DELETE FROM feeds WHERE id = ? AND user_id = ?`, feedID, userID)
	if err != nil {
		return fmt.Errorf("store: delete feed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}
