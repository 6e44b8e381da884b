package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/kelps/epiflipboard/internal/library"
	"github.com/kelps/epiflipboard/internal/middleware"
	"github.com/kelps/epiflipboard/internal/model"
)

// LibraryServiceInterface は保存記事と閲覧履歴のハンドラーが必要とするサービスインターフェース。
type LibraryServiceInterface interface {
	// ApplyMarkAction はactionがmarkなら保存、unmarkなら保存解除する。どちらも冪等。
	ApplyMarkAction(ctx context.Context, userID int, articleID int64, action string) error
	ListMarked(ctx context.Context, userID, page, limit int) ([]model.MarkedArticle, model.Pagination, error)
	// RecordRead は閲覧日時を記録する。同じ記事は1行のみで、閲覧日時が更新される。
	RecordRead(ctx context.Context, userID int, articleID int64) error
	ListHistory(ctx context.Context, userID, page, limit int) ([]model.HistoryArticle, model.Pagination, error)
}

// LibraryHandler は保存記事と閲覧履歴のHTTPハンドラー。
type LibraryHandler struct {
	service LibraryServiceInterface
}

// NewLibraryHandler はLibraryHandlerを生成する。
func NewLibraryHandler(service LibraryServiceInterface) *LibraryHandler {
	return &LibraryHandler{service: service}
}

// markRequest は保存・保存解除リクエストのボディ。
type markRequest struct {
	ArticleID flexibleID `json:"articleId"`
	Action    string     `json:"action"`
}

// markResponse は保存・保存解除のレスポンス。
type markResponse struct {
	Success bool   `json:"success"`
	Action  string `json:"action"`
}

// recordReadRequest は閲覧記録リクエストのボディ。
type recordReadRequest struct {
	ArticleID flexibleID `json:"articleId"`
}

// pagedResponse はページ分割された一覧のレスポンス。
type pagedResponse[T any] struct {
	Items      []T              `json:"items"`
	Pagination model.Pagination `json:"pagination"`
}

// Mark は記事を保存または保存解除する。
// POST /api/articles/mark
func (h *LibraryHandler) Mark(w http.ResponseWriter, r *http.Request) {
	var req markRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.ArticleID <= 0 {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("Missing required fields"))
		return
	}
	if req.Action != library.ActionMark && req.Action != library.ActionUnmark {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidActionError(req.Action))
		return
	}

	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	if err := h.service.ApplyMarkAction(r.Context(), userID, int64(req.ArticleID), req.Action); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, markResponse{Success: true, Action: req.Action})
}

// ListMarked は保存した記事を保存日時の新しい順に返す。
// GET /api/articles/marked?page=1&limit=9
func (h *LibraryHandler) ListMarked(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}
	page, limit := pageParams(r)

	items, pagination, err := h.service.ListMarked(r.Context(), userID, page, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, pagedResponse[model.MarkedArticle]{
		Items:      nonNil(items),
		Pagination: pagination,
	})
}

// ListHistory は閲覧履歴を閲覧日時の新しい順に返す。
// GET /api/history?page=1&limit=9
func (h *LibraryHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}
	page, limit := pageParams(r)

	items, pagination, err := h.service.ListHistory(r.Context(), userID, page, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, pagedResponse[model.HistoryArticle]{
		Items:      nonNil(items),
		Pagination: pagination,
	})
}

// RecordRead は記事の閲覧を記録する。
// POST /api/history/record
func (h *LibraryHandler) RecordRead(w http.ResponseWriter, r *http.Request) {
	var req recordReadRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.ArticleID <= 0 {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("Missing articleId"))
		return
	}

	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	if err := h.service.RecordRead(r.Context(), userID, int64(req.ArticleID)); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// pageParams はpageとlimitのクエリパラメータを読む。解析できない値は0とし、サービス側で既定値に補正する。
func pageParams(r *http.Request) (page, limit int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	return page, limit
}
