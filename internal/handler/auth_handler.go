// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/kelps/epiflipboard/internal/middleware"
	"github.com/kelps/epiflipboard/internal/model"
)

// AccountServiceInterface はアカウントハンドラーが必要とするサービスインターフェース。
type AccountServiceInterface interface {
	// Register はユーザーを登録し、ユーザーと認証トークンを返す。
	Register(ctx context.Context, email, password, name string) (*model.User, string, error)
	// Login は未登録とパスワード不一致を区別せずINVALID_CREDENTIALSを返す。
	Login(ctx context.Context, email, password string) (*model.User, string, error)
	Profile(ctx context.Context, userID int) (*model.User, error)
	UpdateProfile(ctx context.Context, userID int, name string) (*model.User, error)
	// DeleteAccount は確認用メールアドレスが大文字小文字まで一致した場合のみ削除する。
	DeleteAccount(ctx context.Context, userID int, confirmationEmail string) error
}

// AuthHandler はアカウント関連のHTTPハンドラー。
type AuthHandler struct {
	service AccountServiceInterface
	cookie  middleware.SessionCookie
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AccountServiceInterface, cookie middleware.SessionCookie) *AuthHandler {
	return &AuthHandler{
		service: service,
		cookie:  cookie,
	}
}

// credentialsRequest はログイン・登録リクエストのボディ。
type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// updateProfileRequest はプロフィール更新リクエストのボディ。
type updateProfileRequest struct {
	Name string `json:"name"`
}

// deleteAccountRequest は退会リクエストのボディ。
type deleteAccountRequest struct {
	ConfirmationEmail string `json:"confirmationEmail"`
}

// accountUser はログイン・登録レスポンスのユーザー情報。
type accountUser struct {
	ID    int    `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// profileUser はプロフィールレスポンスのユーザー情報。
type profileUser struct {
	ID        int       `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// sessionResponse はログイン・登録のレスポンス。
type sessionResponse struct {
	User  accountUser `json:"user"`
	Token string      `json:"token"`
}

// profileResponse はプロフィール取得・更新のレスポンス。
type profileResponse struct {
	User profileUser `json:"user"`
}

func toAccountUser(u *model.User) accountUser {
	return accountUser{ID: u.ID, Email: u.Email, Name: u.Name}
}

func toProfileResponse(u *model.User) profileResponse {
	return profileResponse{User: profileUser{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		CreatedAt: u.CreatedAt,
	}}
}

// Login はメールアドレスとパスワードで認証し、認証Cookieを設定する。
// POST /api/account/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("Email and password are required"))
		return
	}

	user, token, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.cookie.Set(w, token)
	writeJSON(w, http.StatusOK, sessionResponse{User: toAccountUser(user), Token: token})
}

// Register はユーザーを登録し、認証Cookieを設定する。
// POST /api/account/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("Email and password are required"))
		return
	}

	user, token, err := h.service.Register(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.cookie.Set(w, token)
	writeJSON(w, http.StatusCreated, sessionResponse{User: toAccountUser(user), Token: token})
}

// Logout は認証Cookieを削除する。トークンはサーバー側に保持していないため常に成功する。
// POST /api/account/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.cookie.Clear(w)
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// Profile はログインユーザーのプロフィールを返す。
// GET /api/account/profile
func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	user, err := h.service.Profile(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toProfileResponse(user))
}

// UpdateProfile は表示名を更新する。
// PUT /api/account/profile
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req updateProfileRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("Name is required"))
		return
	}

	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	user, err := h.service.UpdateProfile(r.Context(), userID, req.Name)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toProfileResponse(user))
}

// DeleteAccount は確認用メールアドレスを照合してアカウントと関連データを削除し、認証Cookieを削除する。
// DELETE /api/account
func (h *AuthHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	var req deleteAccountRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.ConfirmationEmail == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("Confirmation email is required"))
		return
	}

	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	if err := h.service.DeleteAccount(r.Context(), userID, req.ConfirmationEmail); err != nil {
		handleServiceError(w, err)
		return
	}

	h.cookie.Clear(w)
	writeJSON(w, http.StatusOK, successResponse{Success: true, Message: "Account deleted"})
}
