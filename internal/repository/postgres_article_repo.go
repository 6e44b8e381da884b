package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/kelps/epiflipboard/internal/model"
)

// PostgresArticleRepo はcontent DBを使用した記事リポジトリ。
type PostgresArticleRepo struct {
	db *sql.DB
}

// NewPostgresArticleRepo はPostgresArticleRepoを生成する。
func NewPostgresArticleRepo(db *sql.DB) *PostgresArticleRepo {
	return &PostgresArticleRepo{db: db}
}

const articleSelect = `SELECT a.article_id, a.title, a.description, a.image_url, a.original_url, a.published_at,
        p.publisher_id, p.name, p.display_name
 FROM articles a
 LEFT JOIN publishers p ON p.publisher_id = a.publisher_id`

// ListLatest は公開日時の降順で最新limit件の記事を返す。
func (r *PostgresArticleRepo) ListLatest(ctx context.Context, limit int) ([]*model.Article, error) {
	return r.query(ctx, "最新記事",
		articleSelect+` ORDER BY a.published_at DESC, a.article_id DESC LIMIT $1`,
		limit,
	)
}

// Search はタイトル、説明、タグ名のいずれかに部分一致する記事を返す。
func (r *PostgresArticleRepo) Search(ctx context.Context, query string, limit int) ([]*model.Article, error) {
	return r.query(ctx, "記事検索",
		articleSelect+`
 WHERE a.title ILIKE $1
    OR a.description ILIKE $1
    OR EXISTS (
        SELECT 1 FROM article_tag at
        INNER JOIN tags t ON t.tag_id = at.tag_id
        WHERE at.article_id = a.article_id AND t.name ILIKE $1
    )
 ORDER BY a.published_at DESC, a.article_id DESC
 LIMIT $2`,
		containsPattern(query), limit,
	)
}

// ListByFilter はタグと配信元の両条件を満たす記事を公開日時の降順で返す。
func (r *PostgresArticleRepo) ListByFilter(ctx context.Context, filter ArticleFilter, limit int) ([]*model.Article, error) {
	where, args := filterClause(filter)
	args = append(args, limit)
	return r.query(ctx, "フィード記事",
		articleSelect+where+` ORDER BY a.published_at DESC, a.article_id DESC LIMIT $`+strconv.Itoa(len(args)),
		args...,
	)
}

// ListByIDs は指定IDの記事をまとめて取得する。
func (r *PostgresArticleRepo) ListByIDs(ctx context.Context, ids []int64) ([]*model.Article, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.query(ctx, "ID指定記事",
		articleSelect+` WHERE a.article_id = ANY($1)`,
		pq.Array(ids),
	)
}

// CountByFilterSince はfilterを満たしpublished_at > sinceの記事数を返す。
func (r *PostgresArticleRepo) CountByFilterSince(ctx context.Context, filter ArticleFilter, since time.Time) (int, error) {
	where, args := filterClause(filter)
	args = append(args, since)
	cond := `a.published_at > $` + strconv.Itoa(len(args))
	if where == "" {
		where = ` WHERE ` + cond
	} else {
		where += ` AND ` + cond
	}

	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM articles a`+where,
		args...,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("新着記事数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// InsertIfAbsent はoriginal_urlが未登録の場合のみ記事を挿入する。挿入した場合trueを返す。
func (r *PostgresArticleRepo) InsertIfAbsent(ctx context.Context, article *model.NewArticle) (bool, error) {
	var publisherID sql.NullInt64
	if article.PublisherID != 0 {
		publisherID = sql.NullInt64{Int64: article.PublisherID, Valid: true}
	}

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO articles (title, description, image_url, original_url, publisher_id, published_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (original_url) DO NOTHING`,
		article.Title, nullString(article.Description), nullString(article.ImageURL),
		article.OriginalURL, publisherID, article.PublishedAt,
	)
	if err != nil {
		return false, fmt.Errorf("記事の挿入に失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// filterClause はArticleFilterからWHERE句とパラメータを組み立てる。
// 空の条件は省略し、両方空の場合は空文字列を返す。
func filterClause(filter ArticleFilter) (string, []any) {
	var conds []string
	var args []any

	if len(filter.TagIDs) > 0 {
		args = append(args, pq.Array(filter.TagIDs))
		conds = append(conds, `EXISTS (SELECT 1 FROM article_tag at WHERE at.article_id = a.article_id AND at.tag_id = ANY($`+strconv.Itoa(len(args))+`))`)
	}
	if len(filter.PublisherIDs) > 0 {
		args = append(args, pq.Array(filter.PublisherIDs))
		conds = append(conds, `a.publisher_id = ANY($`+strconv.Itoa(len(args))+`)`)
	}

	if len(conds) == 0 {
		return "", args
	}
	return ` WHERE ` + strings.Join(conds, ` AND `), args
}

// query は記事一覧を取得し、タグを付与して返す。
func (r *PostgresArticleRepo) query(ctx context.Context, label, q string, args ...any) ([]*model.Article, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%sの取得に失敗しました: %w", label, err)
	}
	defer rows.Close()

	var articles []*model.Article
	for rows.Next() {
		a := &model.Article{}
		var description, imageURL, originalURL sql.NullString
		var publisherID sql.NullInt64
		var publisherName, publisherDisplay sql.NullString
		if err := rows.Scan(
			&a.ID, &a.Title, &description, &imageURL, &originalURL, &a.PublishedAt,
			&publisherID, &publisherName, &publisherDisplay,
		); err != nil {
			return nil, fmt.Errorf("%sのスキャンに失敗しました: %w", label, err)
		}
		a.Description = nullStringValue(description)
		a.ImageURL = nullStringValue(imageURL)
		a.OriginalURL = nullStringValue(originalURL)
		if publisherID.Valid {
			a.Publisher = &model.Publisher{
				ID:          publisherID.Int64,
				Name:        nullStringValue(publisherName),
				DisplayName: nullStringValue(publisherDisplay),
			}
		}
		a.Tags = []model.Tag{}
		articles = append(articles, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%sの読み込みに失敗しました: %w", label, err)
	}

	if err := r.attachTags(ctx, articles); err != nil {
		return nil, err
	}
	return articles, nil
}

// attachTags は記事IDをキーにタグを一括取得して各記事に付与する。
func (r *PostgresArticleRepo) attachTags(ctx context.Context, articles []*model.Article) error {
	if len(articles) == 0 {
		return nil
	}

	ids := make([]int64, len(articles))
	byID := make(map[int64]*model.Article, len(articles))
	for i, a := range articles {
		ids[i] = a.ID
		byID[a.ID] = a
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT at.article_id, t.tag_id, t.name
		 FROM article_tag at
		 INNER JOIN tags t ON t.tag_id = at.tag_id
		 WHERE at.article_id = ANY($1)
		 ORDER BY t.name`,
		pq.Array(ids),
	)
	if err != nil {
		return fmt.Errorf("タグの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var articleID int64
		var tag model.Tag
		if err := rows.Scan(&articleID, &tag.ID, &tag.Name); err != nil {
			return fmt.Errorf("タグのスキャンに失敗しました: %w", err)
		}
		if a, ok := byID[articleID]; ok {
			a.Tags = append(a.Tags, tag)
		}
	}
	return rows.Err()
}

// compile-time interface check
var _ ArticleRepository = (*PostgresArticleRepo)(nil)
