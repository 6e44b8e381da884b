// Package library はユーザーの「あとで読む」と閲覧履歴を提供する。
package library

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/kelps/epiflipboard/internal/model"
	"github.com/kelps/epiflipboard/internal/repository"
)

const (
	// DefaultPage はページ未指定時のページ番号。
	DefaultPage = 1
	// DefaultLimit はページ未指定時の1ページあたりの件数。
	DefaultLimit = 9
	// MaxLimit は1ページあたりの最大件数。
	MaxLimit = 100
)

// 保存操作のaction。
const (
	ActionMark   = "mark"
	ActionUnmark = "unmark"
)

// ArticleLoader は記事IDから記事を取得する。article.Serviceが満たす。
type ArticleLoader interface {
	GetArticlesByIDs(ctx context.Context, ids []int64, userID int) ([]*model.Article, error)
}

// Service はライブラリ（保存・履歴）のサービス層。
type Service struct {
	marks    repository.MarkRepository
	history  repository.HistoryRepository
	articles ArticleLoader
}

// NewService はServiceを生成する。
func NewService(marks repository.MarkRepository, history repository.HistoryRepository, articles ArticleLoader) *Service {
	return &Service{
		marks:    marks,
		history:  history,
		articles: articles,
	}
}

// NormalizePage はページ番号と件数を補正する。
// 1未満のページは1、1未満の件数はデフォルト値、上限を超える件数は上限値にする。
func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = DefaultPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return page, limit
}

// ApplyMarkAction はactionに応じて記事を保存または保存解除する。
func (s *Service) ApplyMarkAction(ctx context.Context, userID int, articleID int64, action string) error {
	switch action {
	case ActionMark:
		return s.Mark(ctx, userID, articleID)
	case ActionUnmark:
		return s.Unmark(ctx, userID, articleID)
	default:
		return model.NewInvalidActionError(action)
	}
}

// Mark は記事を保存する。保存済みの場合は何もしない。
func (s *Service) Mark(ctx context.Context, userID int, articleID int64) error {
	if err := s.marks.Create(ctx, userID, articleID); err != nil {
		return fmt.Errorf("failed to mark article: %w", err)
	}
	return nil
}

// Unmark は記事の保存を解除する。保存されていない場合は何もしない。
func (s *Service) Unmark(ctx context.Context, userID int, articleID int64) error {
	if err := s.marks.Delete(ctx, userID, articleID); err != nil {
		return fmt.Errorf("failed to unmark article: %w", err)
	}
	return nil
}

// ListMarked は保存日時の降順で保存した記事を返す。
// 保存行と総件数は並行して取得する。
func (s *Service) ListMarked(ctx context.Context, userID, page, limit int) ([]model.MarkedArticle, model.Pagination, error) {
	page, limit = NormalizePage(page, limit)

	var rows []model.Mark
	var total int
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rows, err = s.marks.ListByUser(gctx, userID, limit, (page-1)*limit)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = s.marks.CountByUser(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, model.Pagination{}, fmt.Errorf("failed to list marked articles: %w", err)
	}
	pagination := model.NewPagination(page, limit, total)

	ids := make([]int64, len(rows))
	for i, r := range rows {
		ids[i] = r.ArticleID
	}
	byID, err := s.loadArticles(ctx, ids, userID)
	if err != nil {
		return nil, model.Pagination{}, err
	}

	items := make([]model.MarkedArticle, 0, len(rows))
	for _, r := range rows {
		if a, ok := byID[r.ArticleID]; ok {
			items = append(items, model.MarkedArticle{Article: *a, MarkedAt: r.CreatedAt})
		}
	}
	return items, pagination, nil
}

// RecordRead は閲覧履歴を記録する。既に履歴がある場合はread_atを更新する。
func (s *Service) RecordRead(ctx context.Context, userID int, articleID int64) error {
	if err := s.history.Upsert(ctx, userID, articleID); err != nil {
		return fmt.Errorf("failed to record reading history: %w", err)
	}
	return nil
}

// ListHistory はread_atの降順で閲覧履歴の記事を返す。
// 履歴行と総件数は並行して取得する。
func (s *Service) ListHistory(ctx context.Context, userID, page, limit int) ([]model.HistoryArticle, model.Pagination, error) {
	page, limit = NormalizePage(page, limit)

	var rows []model.HistoryEntry
	var total int
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rows, err = s.history.ListByUser(gctx, userID, limit, (page-1)*limit)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = s.history.CountByUser(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, model.Pagination{}, fmt.Errorf("failed to list reading history: %w", err)
	}
	pagination := model.NewPagination(page, limit, total)

	ids := make([]int64, len(rows))
	for i, r := range rows {
		ids[i] = r.ArticleID
	}
	byID, err := s.loadArticles(ctx, ids, userID)
	if err != nil {
		return nil, model.Pagination{}, err
	}

	items := make([]model.HistoryArticle, 0, len(rows))
	for _, r := range rows {
		if a, ok := byID[r.ArticleID]; ok {
			items = append(items, model.HistoryArticle{Article: *a, ReadAt: r.ReadAt})
		}
	}
	return items, pagination, nil
}

// loadArticles はcontent DBから記事を取得し、IDをキーにしたmapで返す。
// content DBから削除済みの記事はmapに含まれない。
func (s *Service) loadArticles(ctx context.Context, ids []int64, userID int) (map[int64]*model.Article, error) {
	if len(ids) == 0 {
		return map[int64]*model.Article{}, nil
	}
	articles, err := s.articles.GetArticlesByIDs(ctx, ids, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load library articles: %w", err)
	}
	byID := make(map[int64]*model.Article, len(articles))
	for _, a := range articles {
		byID[a.ID] = a
	}
	return byID, nil
}
