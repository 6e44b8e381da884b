package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/kelps/epiflipboard/internal/layout"
	"github.com/kelps/epiflipboard/internal/middleware"
	"github.com/kelps/epiflipboard/internal/model"
)

// FeedServiceInterface はフィードハンドラーが必要とするサービスインターフェース。
type FeedServiceInterface interface {
	CreateFeed(ctx context.Context, userID int, input model.FeedInput) (*model.Feed, error)
	// UpdateFeed は所有者のみ更新できる。存在しなければ404、所有者でなければ403のエラーを返す。
	UpdateFeed(ctx context.Context, userID, feedID int, input model.FeedInput) (*model.Feed, error)
	DeleteFeed(ctx context.Context, userID, feedID int) error
	GetFeed(ctx context.Context, feedID int) (*model.Feed, error)
	SearchFeeds(ctx context.Context, query string, limit int) ([]*model.Feed, error)
	// ToggleFollow はフォロー状態を反転し、反転後にフォロー中であればtrueを返す。
	ToggleFollow(ctx context.Context, userID, feedID int) (bool, error)
	IsFollowing(ctx context.Context, userID, feedID int) (bool, error)
}

// ActivityServiceInterface はフォロー中フィードの新着数と最終訪問日時を扱うサービスインターフェース。
type ActivityServiceInterface interface {
	// UpdateFeedLastVisit はベストエフォートで最終訪問日時を更新する。失敗はサービス側でログに残す。
	UpdateFeedLastVisit(ctx context.Context, userID, feedID int)
	GetFollowedFeedsWithMetadata(ctx context.Context, userID int) ([]model.FollowedFeedSummary, error)
	TopFollowedFeeds(ctx context.Context, userID, n int) ([]model.FollowedFeedSummary, error)
}

// FeedHandler はフィード管理とフィードページのHTTPハンドラー。
type FeedHandler struct {
	service  FeedServiceInterface
	activity ActivityServiceInterface
	articles ArticleServiceInterface
	images   layout.ImageChecker
}

// NewFeedHandler はFeedHandlerを生成する。
func NewFeedHandler(
	service FeedServiceInterface,
	activity ActivityServiceInterface,
	articles ArticleServiceInterface,
	images layout.ImageChecker,
) *FeedHandler {
	return &FeedHandler{
		service:  service,
		activity: activity,
		articles: articles,
		images:   images,
	}
}

// feedRequest はフィード作成・更新リクエストのボディ。
// 配信元IDは文字列で返しているため、数値と文字列のどちらも受け付ける。
type feedRequest struct {
	Name         string       `json:"name"`
	Description  string       `json:"description"`
	TagIDs       []flexibleID `json:"tagIds"`
	PublisherIDs []flexibleID `json:"publisherIds"`
}

func (req feedRequest) toInput() model.FeedInput {
	return model.FeedInput{
		Name:         req.Name,
		Description:  req.Description,
		TagIDs:       flexibleIDs(req.TagIDs),
		PublisherIDs: flexibleIDs(req.PublisherIDs),
	}
}

// feedPageResponse はフィードページのレスポンス。記事配置のフィールドは展開して返す。
type feedPageResponse struct {
	Feed       *model.Feed       `json:"feed"`
	Tags       []model.Tag       `json:"tags"`
	Publishers []model.Publisher `json:"publishers"`
	layout.FeedPage
	IsFollowing bool `json:"isFollowing"`
}

// followResponse はフォロー状態のレスポンス。
type followResponse struct {
	IsFollowing bool `json:"isFollowing"`
}

// SearchFeeds はフィードを名前・説明で検索する。qが空の場合は新しい順に返す。
// GET /api/feeds?q=xxx&limit=20
func (h *FeedHandler) SearchFeeds(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	feeds, err := h.service.SearchFeeds(r.Context(), query, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, feeds)
}

// CreateFeed はフィードを作成する。
// POST /api/feeds
func (h *FeedHandler) CreateFeed(w http.ResponseWriter, r *http.Request) {
	var req feedRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("Missing required fields"))
		return
	}

	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	feed, err := h.service.CreateFeed(r.Context(), userID, req.toInput())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, feed)
}

// ListFollowed はフォロー中のフィードと最終訪問以降の新着記事数を返す。
// GET /api/feeds/followed
func (h *FeedHandler) ListFollowed(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	feeds, err := h.activity.GetFollowedFeedsWithMetadata(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if feeds == nil {
		feeds = []model.FollowedFeedSummary{}
	}

	writeJSON(w, http.StatusOK, feeds)
}

// GetFeedPage はフィードの条件に一致する記事をページ配置して返す。
// ログイン中であればフォロー状態を返し、最終訪問日時を更新する。
// GET /api/feeds/{feedId}
func (h *FeedHandler) GetFeedPage(w http.ResponseWriter, r *http.Request) {
	feedID, ok := feedIDParam(w, r)
	if !ok {
		return
	}
	userID, _ := middleware.UserIDFromContext(r.Context())

	feed, err := h.service.GetFeed(r.Context(), feedID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	var (
		articles   []*model.Article
		tags       []model.Tag
		publishers []model.Publisher
	)
	g, gctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		articles, err = h.articles.GetArticlesByTags(gctx, feed.TagIDs, feed.PublisherIDs, userID)
		return err
	})
	g.Go(func() error {
		var err error
		tags, err = h.articles.TagsByIDs(gctx, feed.TagIDs)
		return err
	})
	g.Go(func() error {
		var err error
		publishers, err = h.articles.PublishersByIDs(gctx, feed.PublisherIDs)
		return err
	})
	if err := g.Wait(); err != nil {
		handleServiceError(w, err)
		return
	}

	resp := feedPageResponse{
		Feed:       feed,
		Tags:       nonNil(tags),
		Publishers: nonNil(publishers),
		FeedPage:   layout.BuildFeed(r.Context(), articles, h.images),
	}

	if userID > 0 {
		following, err := h.service.IsFollowing(r.Context(), userID, feedID)
		if err != nil {
			slog.Warn("failed to check follow state",
				slog.Int("user_id", userID),
				slog.Int("feed_id", feedID),
				slog.String("error", err.Error()),
			)
		}
		resp.IsFollowing = following
		h.activity.UpdateFeedLastVisit(r.Context(), userID, feedID)
	}

	writeJSON(w, http.StatusOK, resp)
}

// UpdateFeed はフィードの名前・説明・条件を更新する。所有者のみ実行できる。
// PUT /api/feeds/{feedId}
func (h *FeedHandler) UpdateFeed(w http.ResponseWriter, r *http.Request) {
	feedID, ok := feedIDParam(w, r)
	if !ok {
		return
	}
	var req feedRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("Missing required fields"))
		return
	}

	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	feed, err := h.service.UpdateFeed(r.Context(), userID, feedID, req.toInput())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, feed)
}

// DeleteFeed はフィードを削除する。所有者のみ実行できる。
// DELETE /api/feeds/{feedId}
func (h *FeedHandler) DeleteFeed(w http.ResponseWriter, r *http.Request) {
	feedID, ok := feedIDParam(w, r)
	if !ok {
		return
	}

	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	if err := h.service.DeleteFeed(r.Context(), userID, feedID); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// GetFollowState はフォロー状態を返す。未ログインの場合は常にfalse。
// GET /api/feeds/{feedId}/follow
func (h *FeedHandler) GetFollowState(w http.ResponseWriter, r *http.Request) {
	feedID, ok := feedIDParam(w, r)
	if !ok {
		return
	}

	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeJSON(w, http.StatusOK, followResponse{IsFollowing: false})
		return
	}

	following, err := h.service.IsFollowing(r.Context(), userID, feedID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, followResponse{IsFollowing: following})
}

// ToggleFollow はフォロー・フォロー解除を切り替える。
// POST /api/feeds/{feedId}/follow
func (h *FeedHandler) ToggleFollow(w http.ResponseWriter, r *http.Request) {
	feedID, ok := feedIDParam(w, r)
	if !ok {
		return
	}

	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	following, err := h.service.ToggleFollow(r.Context(), userID, feedID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	slog.Info("feed follow toggled",
		slog.Int("user_id", userID),
		slog.Int("feed_id", feedID),
		slog.Bool("following", following),
	)
	writeJSON(w, http.StatusOK, followResponse{IsFollowing: following})
}

// --- ヘルパー関数 ---

// successResponse は更新系操作の成功レスポンス。
type successResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// flexibleID はJSONの数値と数字文字列のどちらでも受け付けるID。
type flexibleID int64

// UnmarshalJSON はjson.Unmarshalerを実装する。
func (id *flexibleID) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*id = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return err
	}
	*id = flexibleID(n)
	return nil
}

func flexibleIDs(ids []flexibleID) []int64 {
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		out = append(out, int64(id))
	}
	return out
}

// feedIDParam はURLパラメータのフィードIDを解析する。不正な場合は400を書き込みfalseを返す。
func feedIDParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	feedID, err := strconv.Atoi(chi.URLParam(r, "feedId"))
	if err != nil || feedID <= 0 {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("Invalid feed ID"))
		return 0, false
	}
	return feedID, true
}

// decodeJSONBody はリクエストボディをデコードする。失敗した場合は400を書き込みfalseを返す。
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("Invalid request body"))
		return false
	}
	return true
}

// nonNil はnilスライスを空スライスに置き換える。JSONでnullではなく[]を返すために使う。
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, statusCode, apiErr)
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidRequest, model.ErrCodeInvalidAction:
		return http.StatusBadRequest
	case model.ErrCodeUnauthorized, model.ErrCodeInvalidCredentials:
		return http.StatusUnauthorized
	case model.ErrCodeForbidden, model.ErrCodeConfirmationMismatch:
		return http.StatusForbidden
	case model.ErrCodeUserNotFound, model.ErrCodeFeedNotFound:
		return http.StatusNotFound
	case model.ErrCodeEmailAlreadyExists:
		return http.StatusConflict
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
