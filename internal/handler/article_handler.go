package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/kelps/epiflipboard/internal/layout"
	"github.com/kelps/epiflipboard/internal/middleware"
	"github.com/kelps/epiflipboard/internal/model"
)

// homeFollowedFeeds はトップページのサイドバーに表示するフォロー中フィードの数。
const homeFollowedFeeds = 5

// ArticleServiceInterface は記事ハンドラーが必要とするサービスインターフェース。
// 返す記事にはコメント数とユーザーの保存状態が付与されている。
type ArticleServiceInterface interface {
	GetArticles(ctx context.Context, userID int) ([]*model.Article, error)
	// SearchArticles は検索エラー時に空の一覧を返す。
	SearchArticles(ctx context.Context, query string, userID int) []*model.Article
	GetArticlesByTags(ctx context.Context, tagIDs, publisherIDs []int64, userID int) ([]*model.Article, error)
	GetArticlesByIDs(ctx context.Context, ids []int64, userID int) ([]*model.Article, error)
	SearchTags(ctx context.Context, query string) ([]model.Tag, error)
	TagsByIDs(ctx context.Context, ids []int64) ([]model.Tag, error)
	SearchPublishers(ctx context.Context, query string) ([]model.Publisher, error)
	PublishersByIDs(ctx context.Context, ids []int64) ([]model.Publisher, error)
}

// ArticleHandler は記事一覧・トップページ・検索のHTTPハンドラー。
type ArticleHandler struct {
	articles ArticleServiceInterface
	activity ActivityServiceInterface
	images   layout.ImageChecker
}

// NewArticleHandler はArticleHandlerを生成する。
func NewArticleHandler(articles ArticleServiceInterface, activity ActivityServiceInterface, images layout.ImageChecker) *ArticleHandler {
	return &ArticleHandler{
		articles: articles,
		activity: activity,
		images:   images,
	}
}

// homeResponse はトップページのレスポンス。
type homeResponse struct {
	layout.HomePage
	FollowedFeeds []model.FollowedFeedSummary `json:"followedFeeds"`
}

// searchResponse は検索結果ページのレスポンス。
type searchResponse struct {
	Query string `json:"query"`
	layout.SearchPage
}

// ListArticles は最新記事を返す。
// GET /api/articles
func (h *ArticleHandler) ListArticles(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())

	articles, err := h.articles.GetArticles(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, nonNil(articles))
}

// ListArticlesByIDs は指定IDの記事を返す。順序は保証しない。
// GET /api/articles/by-ids?ids=1,2,3
func (h *ArticleHandler) ListArticlesByIDs(w http.ResponseWriter, r *http.Request) {
	ids, err := parseIDList(r.URL.Query().Get("ids"))
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("Invalid ids"))
		return
	}
	if len(ids) == 0 {
		writeJSON(w, http.StatusOK, []*model.Article{})
		return
	}
	userID, _ := middleware.UserIDFromContext(r.Context())

	articles, err := h.articles.GetArticlesByIDs(r.Context(), ids, userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, nonNil(articles))
}

// Home はトップページの記事配置を返す。
// ログイン中は新着数の多いフォロー中フィードを添え、その数だけサイドバーの記事を減らす。
// GET /api/home
func (h *ArticleHandler) Home(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())

	articles, err := h.articles.GetArticles(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	followed := []model.FollowedFeedSummary{}
	if userID > 0 {
		top, err := h.activity.TopFollowedFeeds(r.Context(), userID, homeFollowedFeeds)
		if err != nil {
			// サイドバーのフィード一覧がなくてもページは表示できる
			slog.Warn("failed to load followed feeds",
				slog.Int("user_id", userID),
				slog.String("error", err.Error()),
			)
		} else if top != nil {
			followed = top
		}
	}

	writeJSON(w, http.StatusOK, homeResponse{
		HomePage:      layout.BuildHome(r.Context(), articles, h.images, len(followed)),
		FollowedFeeds: followed,
	})
}

// Search はタイトル・説明・タグ名で記事を検索し、検索結果ページの記事配置を返す。
// GET /api/search?q=xxx
func (h *ArticleHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("Missing search query"))
		return
	}
	userID, _ := middleware.UserIDFromContext(r.Context())

	articles := h.articles.SearchArticles(r.Context(), query, userID)

	writeJSON(w, http.StatusOK, searchResponse{
		Query:      query,
		SearchPage: layout.BuildSearch(r.Context(), articles, h.images),
	})
}

// SearchTags はタグを名前で検索する。idsが指定された場合はID指定で取得する。
// GET /api/tags/search?q=xxx または ?ids=1,2
func (h *ArticleHandler) SearchTags(w http.ResponseWriter, r *http.Request) {
	var (
		tags []model.Tag
		err  error
	)
	if r.URL.Query().Has("ids") {
		ids, parseErr := parseIDList(r.URL.Query().Get("ids"))
		if parseErr != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("Invalid ids"))
			return
		}
		tags, err = h.articles.TagsByIDs(r.Context(), ids)
	} else {
		tags, err = h.articles.SearchTags(r.Context(), r.URL.Query().Get("q"))
	}
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, nonNil(tags))
}

// SearchPublishers は配信元を名前で検索する。idsが指定された場合はID指定で取得する。
// GET /api/publishers/search?q=xxx または ?ids=1,2
func (h *ArticleHandler) SearchPublishers(w http.ResponseWriter, r *http.Request) {
	var (
		publishers []model.Publisher
		err        error
	)
	if r.URL.Query().Has("ids") {
		ids, parseErr := parseIDList(r.URL.Query().Get("ids"))
		if parseErr != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("Invalid ids"))
			return
		}
		publishers, err = h.articles.PublishersByIDs(r.Context(), ids)
	} else {
		publishers, err = h.articles.SearchPublishers(r.Context(), r.URL.Query().Get("q"))
	}
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, nonNil(publishers))
}

// parseIDList はカンマ区切りのIDを解析する。空要素は無視する。
func parseIDList(raw string) ([]int64, error) {
	ids := []int64{}
	for part := range strings.SplitSeq(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
