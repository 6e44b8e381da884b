package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/kelps/epiflipboard/internal/model"
)

// PostgresFeedRepo はactivity DBを使用したフィードリポジトリ。
type PostgresFeedRepo struct {
	db *sql.DB
}

// NewPostgresFeedRepo はPostgresFeedRepoを生成する。
func NewPostgresFeedRepo(db *sql.DB) *PostgresFeedRepo {
	return &PostgresFeedRepo{db: db}
}

const feedColumns = `id, name, description, tag_ids, publisher_ids, user_id, created_at`

func scanFeed(row interface{ Scan(...any) error }) (*model.Feed, error) {
	feed := &model.Feed{}
	var description sql.NullString
	var tagIDs, publisherIDs pq.Int64Array
	if err := row.Scan(&feed.ID, &feed.Name, &description, &tagIDs, &publisherIDs, &feed.UserID, &feed.CreatedAt); err != nil {
		return nil, err
	}
	feed.Description = nullStringValue(description)
	feed.TagIDs = nonNilInt64s(tagIDs)
	feed.PublisherIDs = nonNilInt64s(publisherIDs)
	return feed, nil
}

// FindByID は指定IDのフィードを取得する。見つからない場合はnilを返す。
func (r *PostgresFeedRepo) FindByID(ctx context.Context, id int) (*model.Feed, error) {
	feed, err := scanFeed(r.db.QueryRowContext(ctx,
		`SELECT `+feedColumns+` FROM feeds WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("フィードの取得に失敗しました: %w", err)
	}
	return feed, nil
}

// FindByIDs は指定IDのフィードをまとめて取得する。
func (r *PostgresFeedRepo) FindByIDs(ctx context.Context, ids []int) ([]*model.Feed, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.list(ctx,
		`SELECT `+feedColumns+` FROM feeds WHERE id = ANY($1)`,
		pq.Array(intsToInt64s(ids)),
	)
}

// Create はフィードを作成する。
func (r *PostgresFeedRepo) Create(ctx context.Context, userID int, input model.FeedInput) (*model.Feed, error) {
	feed, err := scanFeed(r.db.QueryRowContext(ctx,
		`INSERT INTO feeds (name, description, tag_ids, publisher_ids, user_id)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+feedColumns,
		input.Name, nullString(input.Description),
		pq.Int64Array(nonNilInt64s(input.TagIDs)), pq.Int64Array(nonNilInt64s(input.PublisherIDs)),
		userID,
	))
	if err != nil {
		return nil, fmt.Errorf("フィードの作成に失敗しました: %w", err)
	}
	return feed, nil
}

// Update はフィードの名前、説明、タグ、配信元を更新する。見つからない場合はnilを返す。
func (r *PostgresFeedRepo) Update(ctx context.Context, id int, input model.FeedInput) (*model.Feed, error) {
	feed, err := scanFeed(r.db.QueryRowContext(ctx,
		`UPDATE feeds SET name = $2, description = $3, tag_ids = $4, publisher_ids = $5
		 WHERE id = $1
		 RETURNING `+feedColumns,
		id, input.Name, nullString(input.Description),
		pq.Int64Array(nonNilInt64s(input.TagIDs)), pq.Int64Array(nonNilInt64s(input.PublisherIDs)),
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("フィードの更新に失敗しました: %w", err)
	}
	return feed, nil
}

// Delete はフィードとそのフォローを同一トランザクションで削除する。
func (r *PostgresFeedRepo) Delete(ctx context.Context, id int) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM followed_feeds WHERE feed_id = $1`, id); err != nil {
		return fmt.Errorf("フォローの削除に失敗しました: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM feeds WHERE id = $1`, id); err != nil {
		return fmt.Errorf("フィードの削除に失敗しました: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Search は名前または説明に部分一致するフィードを作成日時の降順で返す。
func (r *PostgresFeedRepo) Search(ctx context.Context, query string, limit int) ([]*model.Feed, error) {
	if query == "" {
		return r.list(ctx,
			`SELECT `+feedColumns+` FROM feeds ORDER BY created_at DESC, id DESC LIMIT $1`,
			limit,
		)
	}
	return r.list(ctx,
		`SELECT `+feedColumns+` FROM feeds
		 WHERE name ILIKE $1 OR description ILIKE $1
		 ORDER BY created_at DESC, id DESC LIMIT $2`,
		containsPattern(query), limit,
	)
}

func (r *PostgresFeedRepo) list(ctx context.Context, q string, args ...any) ([]*model.Feed, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("フィード一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var feeds []*model.Feed
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("フィードのスキャンに失敗しました: %w", err)
		}
		feeds = append(feeds, feed)
	}
	return feeds, rows.Err()
}

// compile-time interface check
var _ FeedRepository = (*PostgresFeedRepo)(nil)
