// Package comment は記事コメントの一覧と投稿を提供する。
// コメントはactivity DB、投稿者はidentity DBにあるため、取得後にメモリ上で結合する。
package comment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kelps/epiflipboard/internal/model"
	"github.com/kelps/epiflipboard/internal/repository"
)

// Sanitizer はコメント本文からHTMLを除去する。
type Sanitizer interface {
	PlainText(raw string) string
}

// Author はコメントを投稿するセッションユーザー。
type Author struct {
	UserID int
	Name   string
	Email  string
}

// Service はコメントのサービス層。
type Service struct {
	comments  repository.CommentRepository
	users     repository.UserRepository
	sanitizer Sanitizer
}

// NewService はServiceを生成する。
func NewService(comments repository.CommentRepository, users repository.UserRepository, sanitizer Sanitizer) *Service {
	return &Service{
		comments:  comments,
		users:     users,
		sanitizer: sanitizer,
	}
}

// ListComments は記事のコメントを作成日時の降順で返す。
// identity DBに存在しない投稿者は"Unknown User"として表示する。
func (s *Service) ListComments(ctx context.Context, articleID int64) ([]*model.Comment, error) {
	comments, err := s.comments.ListByArticle(ctx, articleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	if len(comments) == 0 {
		return []*model.Comment{}, nil
	}

	seen := make(map[int]bool, len(comments))
	var userIDs []int
	for _, c := range comments {
		if !seen[c.UserID] {
			seen[c.UserID] = true
			userIDs = append(userIDs, c.UserID)
		}
	}

	users, err := s.users.FindByIDs(ctx, userIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to find comment authors: %w", err)
	}
	usersByID := make(map[int]*model.User, len(users))
	for _, u := range users {
		usersByID[u.ID] = u
	}

	for _, c := range comments {
		if u, ok := usersByID[c.UserID]; ok {
			c.User = &model.CommentAuthor{ID: u.ID, Name: u.DisplayName()}
		} else {
			c.User = &model.CommentAuthor{Name: model.UnknownUserName}
		}
	}
	return comments, nil
}

// CountComments は記事のコメント数を返す。
func (s *Service) CountComments(ctx context.Context, articleID int64) (int, error) {
	n, err := s.comments.CountByArticle(ctx, articleID)
	if err != nil {
		return 0, fmt.Errorf("failed to count comments: %w", err)
	}
	return n, nil
}

// CreateComment はHTMLを除去した本文でコメントを作成する。
// 表示名はidentity DBの名前、セッションの名前、メールアドレスの順に採用する。
func (s *Service) CreateComment(ctx context.Context, author Author, articleID int64, content string) (*model.Comment, error) {
	if articleID <= 0 {
		return nil, model.NewValidationError("Missing required fields")
	}
	content = s.sanitizer.PlainText(content)
	if content == "" {
		return nil, model.NewValidationError("Missing required fields")
	}

	c := &model.Comment{
		ArticleID: articleID,
		UserID:    author.UserID,
		Content:   content,
	}
	if err := s.comments.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to create comment: %w", err)
	}

	c.User = &model.CommentAuthor{ID: author.UserID, Name: s.authorName(ctx, author)}
	return c, nil
}

// authorName はコメント投稿者の表示名を決定する。
// トークンの名前は古い可能性があるため、identity DBを優先する。
func (s *Service) authorName(ctx context.Context, author Author) string {
	user, err := s.users.FindByID(ctx, author.UserID)
	if err != nil {
		slog.Warn("failed to load comment author",
			slog.Int("user_id", author.UserID),
			slog.String("error", err.Error()),
		)
	}
	switch {
	case user != nil && user.Name != "":
		return user.Name
	case author.Name != "":
		return author.Name
	default:
		return author.Email
	}
}
