package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kelps/epiflipboard/internal/model"
)

// PostgresFollowRepo はactivity DBを使用したフィードフォローリポジトリ。
type PostgresFollowRepo struct {
	db *sql.DB
}

// NewPostgresFollowRepo はPostgresFollowRepoを生成する。
func NewPostgresFollowRepo(db *sql.DB) *PostgresFollowRepo {
	return &PostgresFollowRepo{db: db}
}

// Find はユーザーとフィードのフォローを取得する。見つからない場合はnilを返す。
func (r *PostgresFollowRepo) Find(ctx context.Context, userID, feedID int) (*model.FollowedFeed, error) {
	f := &model.FollowedFeed{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, feed_id, last_visit, created_at
		 FROM followed_feeds WHERE user_id = $1 AND feed_id = $2`,
		userID, feedID,
	).Scan(&f.ID, &f.UserID, &f.FeedID, &f.LastVisit, &f.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find followed feed: %w", err)
	}
	return f, nil
}

// Create はフォローを作成する。既にフォロー済みの場合は何もしない。
func (r *PostgresFollowRepo) Create(ctx context.Context, userID, feedID int) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO followed_feeds (user_id, feed_id)
		 VALUES ($1, $2)
		 ON CONFLICT (user_id, feed_id) DO NOTHING`,
		userID, feedID,
	)
	if err != nil {
		return fmt.Errorf("failed to create followed feed: %w", err)
	}
	return nil
}

// Delete はフォローを削除する。
func (r *PostgresFollowRepo) Delete(ctx context.Context, userID, feedID int) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM followed_feeds WHERE user_id = $1 AND feed_id = $2`,
		userID, feedID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete followed feed: %w", err)
	}
	return nil
}

// ListByUserID はユーザーのフォロー一覧をフォロー日時の降順で返す。
func (r *PostgresFollowRepo) ListByUserID(ctx context.Context, userID int) ([]*model.FollowedFeed, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, feed_id, last_visit, created_at
		 FROM followed_feeds WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list followed feeds: %w", err)
	}
	defer rows.Close()

	var follows []*model.FollowedFeed
	for rows.Next() {
		f := &model.FollowedFeed{}
		if err := rows.Scan(&f.ID, &f.UserID, &f.FeedID, &f.LastVisit, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan followed feed: %w", err)
		}
		follows = append(follows, f)
	}
	return follows, rows.Err()
}

// TouchLastVisit はlast_visitを現在時刻に更新する。フォローしていない場合は何もしない。
func (r *PostgresFollowRepo) TouchLastVisit(ctx context.Context, userID, feedID int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE followed_feeds SET last_visit = now() WHERE user_id = $1 AND feed_id = $2`,
		userID, feedID,
	)
	if err != nil {
		return fmt.Errorf("failed to update last visit: %w", err)
	}
	return nil
}

// compile-time interface check
var _ FollowRepository = (*PostgresFollowRepo)(nil)
