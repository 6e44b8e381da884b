package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/kelps/epiflipboard/internal/model"
)

// PostgresCommentRepo はactivity DBを使用したコメントリポジトリ。
type PostgresCommentRepo struct {
	db *sql.DB
}

// NewPostgresCommentRepo はPostgresCommentRepoを生成する。
func NewPostgresCommentRepo(db *sql.DB) *PostgresCommentRepo {
	return &PostgresCommentRepo{db: db}
}

// ListByArticle は記事のコメントを作成日時の降順で返す。
func (r *PostgresCommentRepo) ListByArticle(ctx context.Context, articleID int64) ([]*model.Comment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, article_id, user_id, content, created_at
		 FROM comments WHERE article_id = $1
		 ORDER BY created_at DESC, id DESC`,
		articleID,
	)
	if err != nil {
		return nil, fmt.Errorf("コメント一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var comments []*model.Comment
	for rows.Next() {
		c := &model.Comment{}
		if err := rows.Scan(&c.ID, &c.ArticleID, &c.UserID, &c.Content, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("コメントのスキャンに失敗しました: %w", err)
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

// CountByArticle は記事のコメント数を返す。
func (r *PostgresCommentRepo) CountByArticle(ctx context.Context, articleID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM comments WHERE article_id = $1`,
		articleID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("コメント数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// CountByArticles は記事IDごとのコメント数を返す。
func (r *PostgresCommentRepo) CountByArticles(ctx context.Context, articleIDs []int64) (map[int64]int, error) {
	counts := make(map[int64]int)
	if len(articleIDs) == 0 {
		return counts, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT article_id, COUNT(*) FROM comments
		 WHERE article_id = ANY($1)
		 GROUP BY article_id`,
		pq.Array(articleIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("コメント数の集計に失敗しました: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("コメント数のスキャンに失敗しました: %w", err)
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

// Create はコメントを作成し、採番されたIDと作成日時をcommentに設定する。
func (r *PostgresCommentRepo) Create(ctx context.Context, comment *model.Comment) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO comments (article_id, user_id, content)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		comment.ArticleID, comment.UserID, comment.Content,
	).Scan(&comment.ID, &comment.CreatedAt)
	if err != nil {
		return fmt.Errorf("コメントの作成に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ CommentRepository = (*PostgresCommentRepo)(nil)
