// Package activity はフォロー中フィードの訪問記録と新着記事数の集計を提供する。
package activity

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kelps/epiflipboard/internal/model"
	"github.com/kelps/epiflipboard/internal/repository"
)

// NewArticleCounter はフィード条件に一致する新着記事数を数える。
type NewArticleCounter interface {
	CountNewArticles(ctx context.Context, tagIDs, publisherIDs []int64, since time.Time) (int, error)
}

// Service はフィードアクティビティのサービス層。
type Service struct {
	follows repository.FollowRepository
	feeds   repository.FeedRepository
	counter NewArticleCounter
}

// NewService はServiceを生成する。
func NewService(follows repository.FollowRepository, feeds repository.FeedRepository, counter NewArticleCounter) *Service {
	return &Service{
		follows: follows,
		feeds:   feeds,
		counter: counter,
	}
}

// UpdateFeedLastVisit はフォローのlast_visitを現在時刻に更新する。
// 失敗してもログに記録するだけで呼び出し元には返さない。
func (s *Service) UpdateFeedLastVisit(ctx context.Context, userID, feedID int) {
	if err := s.follows.TouchLastVisit(ctx, userID, feedID); err != nil {
		slog.Warn("failed to update feed last visit",
			slog.Int("user_id", userID),
			slog.Int("feed_id", feedID),
			slog.String("error", err.Error()),
		)
	}
}

// GetFollowedFeedsWithMetadata はフォロー中フィードごとに最終訪問以降の新着記事数を返す。
// 件数はフィードごとに並行して集計し、フィード本体が削除済みのフォローは除外する。
// 結果はキャッシュせず毎回計算する。
func (s *Service) GetFollowedFeedsWithMetadata(ctx context.Context, userID int) ([]model.FollowedFeedSummary, error) {
	follows, err := s.follows.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list followed feeds: %w", err)
	}
	if len(follows) == 0 {
		return []model.FollowedFeedSummary{}, nil
	}

	feedIDs := make([]int, len(follows))
	for i, f := range follows {
		feedIDs[i] = f.FeedID
	}
	feeds, err := s.feeds.FindByIDs(ctx, feedIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to find followed feed details: %w", err)
	}
	feedsByID := make(map[int]*model.Feed, len(feeds))
	for _, f := range feeds {
		feedsByID[f.ID] = f
	}

	results := make([]*model.FollowedFeedSummary, len(follows))
	g, gctx := errgroup.WithContext(ctx)
	for i, follow := range follows {
		feed, ok := feedsByID[follow.FeedID]
		if !ok {
			continue
		}
		g.Go(func() error {
			n, err := s.counter.CountNewArticles(gctx, feed.TagIDs, feed.PublisherIDs, follow.LastVisit)
			if err != nil {
				return fmt.Errorf("feed %d: %w", feed.ID, err)
			}
			results[i] = &model.FollowedFeedSummary{
				ID:               feed.ID,
				Name:             feed.Name,
				Description:      feed.Description,
				NewArticlesCount: n,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to count new articles: %w", err)
	}

	summaries := make([]model.FollowedFeedSummary, 0, len(results))
	for _, r := range results {
		if r != nil {
			summaries = append(summaries, *r)
		}
	}
	return summaries, nil
}

// TopFollowedFeeds は新着記事数の多い順に上位n件のフォロー中フィードを返す。
func (s *Service) TopFollowedFeeds(ctx context.Context, userID, n int) ([]model.FollowedFeedSummary, error) {
	summaries, err := s.GetFollowedFeedsWithMetadata(ctx, userID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].NewArticlesCount > summaries[j].NewArticlesCount
	})
	if len(summaries) > n {
		summaries = summaries[:n]
	}
	return summaries, nil
}
