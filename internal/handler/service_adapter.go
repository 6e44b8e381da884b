package handler

import (
	"github.com/kelps/epiflipboard/internal/activity"
	"github.com/kelps/epiflipboard/internal/article"
	"github.com/kelps/epiflipboard/internal/auth"
	"github.com/kelps/epiflipboard/internal/comment"
	"github.com/kelps/epiflipboard/internal/database"
	"github.com/kelps/epiflipboard/internal/feed"
	"github.com/kelps/epiflipboard/internal/imageprobe"
	"github.com/kelps/epiflipboard/internal/layout"
	"github.com/kelps/epiflipboard/internal/library"
	"github.com/kelps/epiflipboard/internal/middleware"
)

// サービス層の型がハンドラーのインターフェースを満たすことをコンパイル時に検証する。
var (
	_ AccountServiceInterface  = (*auth.Service)(nil)
	_ ArticleServiceInterface  = (*article.Service)(nil)
	_ ActivityServiceInterface = (*activity.Service)(nil)
	_ FeedServiceInterface     = (*feed.FeedService)(nil)
	_ CommentServiceInterface  = (*comment.Service)(nil)
	_ LibraryServiceInterface  = (*library.Service)(nil)
	_ ReadinessChecker         = (*database.Pools)(nil)
	_ layout.ImageChecker      = (*imageprobe.Prober)(nil)
	_ middleware.TokenVerifier = (*auth.TokenService)(nil)
)

// commentAuthor はセッションのクレームをコメント投稿者に変換する。
func commentAuthor(claims *auth.Claims) comment.Author {
	return comment.Author{
		UserID: claims.UserID,
		Name:   claims.Name,
		Email:  claims.Email,
	}
}
