// Package article はcontent DBの記事参照と、コメント数・保存状態の付与を提供する。
package article

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kelps/epiflipboard/internal/model"
	"github.com/kelps/epiflipboard/internal/repository"
)

const (
	// LatestLimit はGetArticlesで返す最新記事の件数。
	LatestLimit = 50
	// SearchLimit はSearchArticlesで返す記事の件数。
	SearchLimit = 25
	// FilterLimit はGetArticlesByTagsで返す記事の件数。
	FilterLimit = 50

	// minTaxonomyQueryLen はタグ・配信元検索の最小文字数。
	minTaxonomyQueryLen = 2
	// taxonomySearchLimit はタグ・配信元検索の最大件数。
	taxonomySearchLimit = 10
)

// Service は記事取得のサービス層。
// 記事はcontent DB、コメント数と保存状態はactivity DBから取得し、メモリ上で結合する。
type Service struct {
	articles   repository.ArticleRepository
	tags       repository.TagRepository
	publishers repository.PublisherRepository
	comments   repository.CommentRepository
	marks      repository.MarkRepository
}

// NewService はServiceを生成する。
func NewService(
	articles repository.ArticleRepository,
	tags repository.TagRepository,
	publishers repository.PublisherRepository,
	comments repository.CommentRepository,
	marks repository.MarkRepository,
) *Service {
	return &Service{
		articles:   articles,
		tags:       tags,
		publishers: publishers,
		comments:   comments,
		marks:      marks,
	}
}

// GetArticles は公開日時の降順で最新記事を返す。userIDが0の場合は保存状態を付与しない。
func (s *Service) GetArticles(ctx context.Context, userID int) ([]*model.Article, error) {
	articles, err := s.articles.ListLatest(ctx, LatestLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list latest articles: %w", err)
	}
	return s.enrich(ctx, articles, userID), nil
}

// SearchArticles はタイトル、説明、タグ名に部分一致する記事を返す。
// 検索に失敗した場合はログに記録して空の結果を返す。
func (s *Service) SearchArticles(ctx context.Context, query string, userID int) []*model.Article {
	query = strings.TrimSpace(query)
	if query == "" {
		return []*model.Article{}
	}

	articles, err := s.articles.Search(ctx, query, SearchLimit)
	if err != nil {
		slog.Warn("article search failed",
			slog.String("query", query),
			slog.String("error", err.Error()),
		)
		return []*model.Article{}
	}
	return s.enrich(ctx, articles, userID)
}

// GetArticlesByTags はタグと配信元で絞り込んだ記事を返す。
// 空のスライスはその軸で絞り込まないことを意味する。
func (s *Service) GetArticlesByTags(ctx context.Context, tagIDs, publisherIDs []int64, userID int) ([]*model.Article, error) {
	articles, err := s.articles.ListByFilter(ctx, repository.ArticleFilter{
		TagIDs:       tagIDs,
		PublisherIDs: publisherIDs,
	}, FilterLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list articles by filter: %w", err)
	}
	return s.enrich(ctx, articles, userID), nil
}

// GetArticlesByIDs は指定IDの記事を返す。順序は保証しない。
func (s *Service) GetArticlesByIDs(ctx context.Context, ids []int64, userID int) ([]*model.Article, error) {
	if len(ids) == 0 {
		return []*model.Article{}, nil
	}
	articles, err := s.articles.ListByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list articles by IDs: %w", err)
	}
	return s.enrich(ctx, articles, userID), nil
}

// CountNewArticles はタグと配信元の条件を満たしsince以降に公開された記事数を返す。
func (s *Service) CountNewArticles(ctx context.Context, tagIDs, publisherIDs []int64, since time.Time) (int, error) {
	n, err := s.articles.CountByFilterSince(ctx, repository.ArticleFilter{
		TagIDs:       tagIDs,
		PublisherIDs: publisherIDs,
	}, since)
	if err != nil {
		return 0, fmt.Errorf("failed to count new articles: %w", err)
	}
	return n, nil
}

// SearchTags は名前に部分一致するタグを返す。2文字未満の場合は空。
func (s *Service) SearchTags(ctx context.Context, query string) ([]model.Tag, error) {
	query = strings.TrimSpace(query)
	if len(query) < minTaxonomyQueryLen {
		return []model.Tag{}, nil
	}
	return s.tags.Search(ctx, query, taxonomySearchLimit)
}

// TagsByIDs は指定IDのタグを返す。
func (s *Service) TagsByIDs(ctx context.Context, ids []int64) ([]model.Tag, error) {
	return s.tags.FindByIDs(ctx, ids)
}

// SearchPublishers は名前または表示名に部分一致する配信元を返す。2文字未満の場合は空。
func (s *Service) SearchPublishers(ctx context.Context, query string) ([]model.Publisher, error) {
	query = strings.TrimSpace(query)
	if len(query) < minTaxonomyQueryLen {
		return []model.Publisher{}, nil
	}
	return s.publishers.Search(ctx, query, taxonomySearchLimit)
}

// PublishersByIDs は指定IDの配信元を返す。
func (s *Service) PublishersByIDs(ctx context.Context, ids []int64) ([]model.Publisher, error) {
	return s.publishers.FindByIDs(ctx, ids)
}

// enrich は記事にコメント数と保存状態を付与する。
// 取得に失敗した場合はログに記録し、付与せずに記事を返す。
func (s *Service) enrich(ctx context.Context, articles []*model.Article, userID int) []*model.Article {
	if articles == nil {
		articles = []*model.Article{}
	}
	if len(articles) == 0 {
		return articles
	}

	ids := make([]int64, len(articles))
	for i, a := range articles {
		ids[i] = a.ID
	}

	var counts map[int64]int
	var marked map[int64]bool

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		counts, err = s.comments.CountByArticles(gctx, ids)
		return err
	})
	if userID > 0 {
		g.Go(func() error {
			var err error
			marked, err = s.marks.MarkedArticleIDs(gctx, userID, ids)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		slog.Warn("article enrichment failed",
			slog.Int("articles", len(articles)),
			slog.String("error", err.Error()),
		)
		return articles
	}

	for _, a := range articles {
		a.Count = model.CommentCount{Comments: counts[a.ID]}
		a.IsSaved = marked[a.ID]
	}
	return articles
}
