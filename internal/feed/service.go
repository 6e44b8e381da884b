// Package feed はユーザー作成フィードの管理とフォローのドメインロジックを提供する。
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kelps/epiflipboard/internal/model"
	"github.com/kelps/epiflipboard/internal/repository"
)

const (
	// DefaultSearchLimit はSearchFeedsのデフォルト件数。
	DefaultSearchLimit = 20
	// MaxSearchLimit はSearchFeedsの最大件数。
	MaxSearchLimit = 100
)

// FeedService はフィードのCRUDとフォローのサービス層。
// 更新・削除はフィードの所有者のみ実行できる。
type FeedService struct {
	feedRepo   repository.FeedRepository
	followRepo repository.FollowRepository
}

// NewFeedService はFeedServiceの新しいインスタンスを生成する。
func NewFeedService(feedRepo repository.FeedRepository, followRepo repository.FollowRepository) *FeedService {
	return &FeedService{
		feedRepo:   feedRepo,
		followRepo: followRepo,
	}
}

// CreateFeed はフィードを作成する。
func (s *FeedService) CreateFeed(ctx context.Context, userID int, input model.FeedInput) (*model.Feed, error) {
	input, err := normalizeInput(input)
	if err != nil {
		return nil, err
	}

	feed, err := s.feedRepo.Create(ctx, userID, input)
	if err != nil {
		return nil, fmt.Errorf("フィードの作成に失敗しました: %w", err)
	}

	slog.Info("feed created",
		slog.Int("feed_id", feed.ID),
		slog.Int("user_id", userID),
	)
	return feed, nil
}

// UpdateFeed は所有者であればフィードを更新する。
func (s *FeedService) UpdateFeed(ctx context.Context, userID, feedID int, input model.FeedInput) (*model.Feed, error) {
	input, err := normalizeInput(input)
	if err != nil {
		return nil, err
	}

	if _, err := s.ownedFeed(ctx, userID, feedID); err != nil {
		return nil, err
	}

	feed, err := s.feedRepo.Update(ctx, feedID, input)
	if err != nil {
		return nil, fmt.Errorf("フィードの更新に失敗しました: %w", err)
	}
	if feed == nil {
		return nil, model.NewFeedNotFoundError()
	}
	return feed, nil
}

// DeleteFeed は所有者であればフィードとそのフォローを削除する。
func (s *FeedService) DeleteFeed(ctx context.Context, userID, feedID int) error {
	if _, err := s.ownedFeed(ctx, userID, feedID); err != nil {
		return err
	}

	if err := s.feedRepo.Delete(ctx, feedID); err != nil {
		return fmt.Errorf("フィードの削除に失敗しました: %w", err)
	}

	slog.Info("feed deleted",
		slog.Int("feed_id", feedID),
		slog.Int("user_id", userID),
	)
	return nil
}

// GetFeed はフィードを取得する。
func (s *FeedService) GetFeed(ctx context.Context, feedID int) (*model.Feed, error) {
	feed, err := s.feedRepo.FindByID(ctx, feedID)
	if err != nil {
		return nil, fmt.Errorf("フィードの取得に失敗しました: %w", err)
	}
	if feed == nil {
		return nil, model.NewFeedNotFoundError()
	}
	return feed, nil
}

// SearchFeeds は名前または説明に部分一致するフィードを作成日時の降順で返す。
// queryが空の場合は最新のフィードを返す。
func (s *FeedService) SearchFeeds(ctx context.Context, query string, limit int) ([]*model.Feed, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}

	feeds, err := s.feedRepo.Search(ctx, strings.TrimSpace(query), limit)
	if err != nil {
		return nil, fmt.Errorf("フィードの検索に失敗しました: %w", err)
	}
	if feeds == nil {
		feeds = []*model.Feed{}
	}
	return feeds, nil
}

// ToggleFollow はフォロー状態を反転し、反転後にフォロー中であればtrueを返す。
func (s *FeedService) ToggleFollow(ctx context.Context, userID, feedID int) (bool, error) {
	if _, err := s.GetFeed(ctx, feedID); err != nil {
		return false, err
	}

	existing, err := s.followRepo.Find(ctx, userID, feedID)
	if err != nil {
		return false, fmt.Errorf("フォローの確認に失敗しました: %w", err)
	}

	if existing != nil {
		if err := s.followRepo.Delete(ctx, userID, feedID); err != nil {
			return false, fmt.Errorf("フォロー解除に失敗しました: %w", err)
		}
		return false, nil
	}

	if err := s.followRepo.Create(ctx, userID, feedID); err != nil {
		return false, fmt.Errorf("フォローに失敗しました: %w", err)
	}
	return true, nil
}

// IsFollowing はユーザーがフィードをフォローしているかを返す。
func (s *FeedService) IsFollowing(ctx context.Context, userID, feedID int) (bool, error) {
	existing, err := s.followRepo.Find(ctx, userID, feedID)
	if err != nil {
		return false, fmt.Errorf("フォローの確認に失敗しました: %w", err)
	}
	return existing != nil, nil
}

// ownedFeed はフィードを取得し、存在しなければ404、所有者でなければ403のエラーを返す。
func (s *FeedService) ownedFeed(ctx context.Context, userID, feedID int) (*model.Feed, error) {
	feed, err := s.GetFeed(ctx, feedID)
	if err != nil {
		return nil, err
	}
	if feed.UserID != userID {
		return nil, model.NewForbiddenError()
	}
	return feed, nil
}

// normalizeInput は入力の前後空白を除去し、名前の必須チェックを行う。
func normalizeInput(input model.FeedInput) (model.FeedInput, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Description = strings.TrimSpace(input.Description)
	if input.Name == "" {
		return input, model.NewValidationError("Missing required fields")
	}
	if input.TagIDs == nil {
		input.TagIDs = []int64{}
	}
	if input.PublisherIDs == nil {
		input.PublisherIDs = []int64{}
	}
	return input, nil
}
