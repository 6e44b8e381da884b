package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/kelps/epiflipboard/internal/comment"
	"github.com/kelps/epiflipboard/internal/middleware"
	"github.com/kelps/epiflipboard/internal/model"
)

// CommentServiceInterface はコメントハンドラーが必要とするサービスインターフェース。
type CommentServiceInterface interface {
	ListComments(ctx context.Context, articleID int64) ([]*model.Comment, error)
	CountComments(ctx context.Context, articleID int64) (int, error)
	// CreateComment は本文のHTMLを除去して保存する。除去後に空であれば400のエラーを返す。
	CreateComment(ctx context.Context, author comment.Author, articleID int64, content string) (*model.Comment, error)
}

// CommentHandler は記事コメントのHTTPハンドラー。
type CommentHandler struct {
	service CommentServiceInterface
}

// NewCommentHandler はCommentHandlerを生成する。
func NewCommentHandler(service CommentServiceInterface) *CommentHandler {
	return &CommentHandler{service: service}
}

// createCommentRequest はコメント投稿リクエストのボディ。
type createCommentRequest struct {
	ArticleID flexibleID `json:"articleId"`
	Content   string     `json:"content"`
}

// countResponse は件数のみのレスポンス。
type countResponse struct {
	Count int `json:"count"`
}

// ListComments は記事のコメントを新しい順に返す。count=trueの場合は件数のみ返す。
// GET /api/comments?articleId=123&count=true
func (h *CommentHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	articleID, err := strconv.ParseInt(r.URL.Query().Get("articleId"), 10, 64)
	if err != nil || articleID <= 0 {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("Missing articleId"))
		return
	}

	if r.URL.Query().Get("count") == "true" {
		n, err := h.service.CountComments(r.Context(), articleID)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, countResponse{Count: n})
		return
	}

	comments, err := h.service.ListComments(r.Context(), articleID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, nonNil(comments))
}

// CreateComment はコメントを投稿する。
// POST /api/comments
func (h *CommentHandler) CreateComment(w http.ResponseWriter, r *http.Request) {
	var req createCommentRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.ArticleID <= 0 || strings.TrimSpace(req.Content) == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("Missing required fields"))
		return
	}

	claims := middleware.SessionFromContext(r.Context())
	if claims == nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	c, err := h.service.CreateComment(r.Context(), commentAuthor(claims), int64(req.ArticleID), req.Content)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, c)
}
