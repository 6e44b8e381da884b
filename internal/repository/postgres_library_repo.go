package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/kelps/epiflipboard/internal/model"
)

// PostgresMarkRepo はactivity DBを使用した「あとで読む」リポジトリ。
type PostgresMarkRepo struct {
	db *sql.DB
}

// NewPostgresMarkRepo はPostgresMarkRepoを生成する。
func NewPostgresMarkRepo(db *sql.DB) *PostgresMarkRepo {
	return &PostgresMarkRepo{db: db}
}

// Create は保存を作成する。既に保存済みの場合は何もしない。
func (r *PostgresMarkRepo) Create(ctx context.Context, userID int, articleID int64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO marked_articles (user_id, article_id)
		 VALUES ($1, $2)
		 ON CONFLICT (user_id, article_id) DO NOTHING`,
		userID, articleID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark article: %w", err)
	}
	return nil
}

// Delete は保存を削除する。
func (r *PostgresMarkRepo) Delete(ctx context.Context, userID int, articleID int64) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM marked_articles WHERE user_id = $1 AND article_id = $2`,
		userID, articleID,
	)
	if err != nil {
		return fmt.Errorf("failed to unmark article: %w", err)
	}
	return nil
}

// ListByUser は保存日時の降順でページングした保存一覧を返す。
func (r *PostgresMarkRepo) ListByUser(ctx context.Context, userID, limit, offset int) ([]model.Mark, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, article_id, created_at FROM marked_articles
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list marked articles: %w", err)
	}
	defer rows.Close()

	var marks []model.Mark
	for rows.Next() {
		var m model.Mark
		if err := rows.Scan(&m.UserID, &m.ArticleID, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan marked article: %w", err)
		}
		marks = append(marks, m)
	}
	return marks, rows.Err()
}

// CountByUser はユーザーの保存数を返す。
func (r *PostgresMarkRepo) CountByUser(ctx context.Context, userID int) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM marked_articles WHERE user_id = $1`,
		userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count marked articles: %w", err)
	}
	return count, nil
}

// MarkedArticleIDs はarticleIDsのうちユーザーが保存済みのIDの集合を返す。
func (r *PostgresMarkRepo) MarkedArticleIDs(ctx context.Context, userID int, articleIDs []int64) (map[int64]bool, error) {
	marked := make(map[int64]bool)
	if len(articleIDs) == 0 {
		return marked, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT article_id FROM marked_articles
		 WHERE user_id = $1 AND article_id = ANY($2)`,
		userID, pq.Array(articleIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query marked article IDs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan marked article ID: %w", err)
		}
		marked[id] = true
	}
	return marked, rows.Err()
}

// PostgresHistoryRepo はactivity DBを使用した閲覧履歴リポジトリ。
type PostgresHistoryRepo struct {
	db *sql.DB
}

// NewPostgresHistoryRepo はPostgresHistoryRepoを生成する。
func NewPostgresHistoryRepo(db *sql.DB) *PostgresHistoryRepo {
	return &PostgresHistoryRepo{db: db}
}

// Upsert は(user, article)の履歴がなければ作成し、あればread_atを現在時刻に更新する。
func (r *PostgresHistoryRepo) Upsert(ctx context.Context, userID int, articleID int64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO reading_history (user_id, article_id, read_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (user_id, article_id) DO UPDATE SET read_at = now()`,
		userID, articleID,
	)
	if err != nil {
		return fmt.Errorf("failed to record reading history: %w", err)
	}
	return nil
}

// ListByUser はread_atの降順でページングした履歴を返す。
func (r *PostgresHistoryRepo) ListByUser(ctx context.Context, userID, limit, offset int) ([]model.HistoryEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, article_id, read_at FROM reading_history
		 WHERE user_id = $1
		 ORDER BY read_at DESC, id DESC
		 LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list reading history: %w", err)
	}
	defer rows.Close()

	var entries []model.HistoryEntry
	for rows.Next() {
		var e model.HistoryEntry
		if err := rows.Scan(&e.UserID, &e.ArticleID, &e.ReadAt); err != nil {
			return nil, fmt.Errorf("failed to scan reading history: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CountByUser はユーザーの履歴件数を返す。
func (r *PostgresHistoryRepo) CountByUser(ctx context.Context, userID int) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reading_history WHERE user_id = $1`,
		userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count reading history: %w", err)
	}
	return count, nil
}

// compile-time interface check
var (
	_ MarkRepository    = (*PostgresMarkRepo)(nil)
	_ HistoryRepository = (*PostgresHistoryRepo)(nil)
)
