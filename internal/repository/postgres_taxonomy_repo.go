package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/kelps/epiflipboard/internal/model"
)

// PostgresTagRepo はcontent DBを使用したタグリポジトリ。
type PostgresTagRepo struct {
	db *sql.DB
}

// NewPostgresTagRepo はPostgresTagRepoを生成する。
func NewPostgresTagRepo(db *sql.DB) *PostgresTagRepo {
	return &PostgresTagRepo{db: db}
}

// Search は名前に部分一致するタグを最大limit件返す。
func (r *PostgresTagRepo) Search(ctx context.Context, query string, limit int) ([]model.Tag, error) {
	return r.list(ctx,
		`SELECT tag_id, name FROM tags WHERE name ILIKE $1 ORDER BY name LIMIT $2`,
		containsPattern(query), limit,
	)
}

// FindByIDs は指定IDのタグを返す。
func (r *PostgresTagRepo) FindByIDs(ctx context.Context, ids []int64) ([]model.Tag, error) {
	if len(ids) == 0 {
		return []model.Tag{}, nil
	}
	return r.list(ctx,
		`SELECT tag_id, name FROM tags WHERE tag_id = ANY($1) ORDER BY name`,
		pq.Array(ids),
	)
}

func (r *PostgresTagRepo) list(ctx context.Context, q string, args ...any) ([]model.Tag, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tags: %w", err)
	}
	defer rows.Close()

	tags := []model.Tag{}
	for rows.Next() {
		var t model.Tag
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

// PostgresPublisherRepo はcontent DBを使用した配信元リポジトリ。
type PostgresPublisherRepo struct {
	db *sql.DB
}

// NewPostgresPublisherRepo はPostgresPublisherRepoを生成する。
func NewPostgresPublisherRepo(db *sql.DB) *PostgresPublisherRepo {
	return &PostgresPublisherRepo{db: db}
}

// Search は名前または表示名に部分一致する配信元を最大limit件返す。
func (r *PostgresPublisherRepo) Search(ctx context.Context, query string, limit int) ([]model.Publisher, error) {
	return r.list(ctx,
		`SELECT publisher_id, name, display_name FROM publishers
		 WHERE name ILIKE $1 OR display_name ILIKE $1
		 ORDER BY name LIMIT $2`,
		containsPattern(query), limit,
	)
}

// FindByIDs は指定IDの配信元を返す。
func (r *PostgresPublisherRepo) FindByIDs(ctx context.Context, ids []int64) ([]model.Publisher, error) {
	if len(ids) == 0 {
		return []model.Publisher{}, nil
	}
	return r.list(ctx,
		`SELECT publisher_id, name, display_name FROM publishers
		 WHERE publisher_id = ANY($1) ORDER BY name`,
		pq.Array(ids),
	)
}

// Upsert は名前で配信元を検索し、なければ作成してIDを返す。
// 既存行の表示名は変更しない。
func (r *PostgresPublisherRepo) Upsert(ctx context.Context, name string) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO publishers (name) VALUES ($1)
		 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		 RETURNING publisher_id`,
		name,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert publisher: %w", err)
	}
	return id, nil
}

func (r *PostgresPublisherRepo) list(ctx context.Context, q string, args ...any) ([]model.Publisher, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query publishers: %w", err)
	}
	defer rows.Close()

	publishers := []model.Publisher{}
	for rows.Next() {
		var p model.Publisher
		var display sql.NullString
		if err := rows.Scan(&p.ID, &p.Name, &display); err != nil {
			return nil, fmt.Errorf("failed to scan publisher: %w", err)
		}
		p.DisplayName = nullStringValue(display)
		publishers = append(publishers, p)
	}
	return publishers, rows.Err()
}

// compile-time interface check
var (
	_ TagRepository       = (*PostgresTagRepo)(nil)
	_ PublisherRepository = (*PostgresPublisherRepo)(nil)
)
