package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresUserActivityRepo はactivity DB上のユーザーデータを一括削除するリポジトリ。
type PostgresUserActivityRepo struct {
	db *sql.DB
}

// NewPostgresUserActivityRepo はPostgresUserActivityRepoを生成する。
func NewPostgresUserActivityRepo(db *sql.DB) *PostgresUserActivityRepo {
	return &PostgresUserActivityRepo{db: db}
}

// userActivityDeletes はアカウント削除時に実行するDELETE文。
// 所有フィードのフォロワーはフィード本体より先に削除する。
var userActivityDeletes = []struct {
	label string
	query string
}{
	{"所有フィードのフォロー", `DELETE FROM followed_feeds WHERE feed_id IN (SELECT id FROM feeds WHERE user_id = $1)`},
	{"所有フィード", `DELETE FROM feeds WHERE user_id = $1`},
	{"フォロー", `DELETE FROM followed_feeds WHERE user_id = $1`},
	{"コメント", `DELETE FROM comments WHERE user_id = $1`},
	{"閲覧履歴", `DELETE FROM reading_history WHERE user_id = $1`},
	{"保存記事", `DELETE FROM marked_articles WHERE user_id = $1`},
}

// DeleteAllByUserID はユーザーに紐づくactivity DBのデータを同一トランザクションで削除する。
// 何度実行しても同じ結果になる。
func (r *PostgresUserActivityRepo) DeleteAllByUserID(ctx context.Context, userID int) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, d := range userActivityDeletes {
		if _, err := tx.ExecContext(ctx, d.query, userID); err != nil {
			return fmt.Errorf("%sの削除に失敗しました: %w", d.label, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// compile-time interface check
var _ UserActivityRepository = (*PostgresUserActivityRepo)(nil)
