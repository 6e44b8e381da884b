// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/kelps/epiflipboard/internal/auth"
	"github.com/kelps/epiflipboard/internal/model"
)

// SessionCookieName は認証トークンを保持するCookie名。
const SessionCookieName = "auth_token"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// sessionContextKey はリクエストコンテキストに検証済みクレームを格納するためのキー。
	sessionContextKey = contextKey("session")
	// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
	userIDContextKey = contextKey("user_id")
	// userIDSinkContextKey は外側のミドルウェアが認証済みユーザーIDを受け取るためのキー。
	userIDSinkContextKey = contextKey("user_id_sink")
)

// TokenVerifier はトークン検証に必要なインターフェース。
// auth.TokenServiceが満たす。
type TokenVerifier interface {
	Verify(token string) *auth.Claims
}

// NewSessionMiddleware はCookieまたはAuthorizationヘッダーからトークンを読み取り、
// 有効であればクレームとユーザーIDをリクエストコンテキストに注入するミドルウェアを返す。
// トークンがない・無効な場合も拒否せずに次のハンドラーへ渡す。
// 認証の要否は各ハンドラー、またはRequireSessionで判定する。
func NewSessionMiddleware(verifier TokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := tokenFromRequest(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims := verifier.Verify(token)
			if claims == nil {
				next.ServeHTTP(w, r)
				return
			}

			if sink, ok := r.Context().Value(userIDSinkContextKey).(*int); ok {
				*sink = claims.UserID
			}
			next.ServeHTTP(w, r.WithContext(ContextWithSession(r.Context(), claims)))
		})
	}
}

// RequireSession はセッションのないリクエストに401を返すミドルウェア。
// NewSessionMiddlewareの後に配置する。
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if SessionFromContext(r.Context()) == nil {
			WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// tokenFromRequest はCookie、なければBearerトークンを返す。
func tokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	return ""
}

// SessionFromContext はリクエストコンテキストから検証済みクレームを取得する。
// 未認証の場合はnilを返す。
func SessionFromContext(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(sessionContextKey).(*auth.Claims)
	return claims
}

// ContextWithSession はコンテキストにクレームとユーザーIDを注入する。
func ContextWithSession(ctx context.Context, claims *auth.Claims) context.Context {
	ctx = context.WithValue(ctx, sessionContextKey, claims)
	return ContextWithUserID(ctx, claims.UserID)
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// セッションミドルウェアで認証されたリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (int, error) {
	userID, ok := ctx.Value(userIDContextKey).(int)
	if !ok || userID <= 0 {
		return 0, fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID int) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}

// withUserIDSink はセッションミドルウェアが認証済みユーザーIDを書き込む先をコンテキストに設定する。
func withUserIDSink(ctx context.Context, sink *int) context.Context {
	return context.WithValue(ctx, userIDSinkContextKey, sink)
}

// SessionCookie は認証Cookieの属性。
type SessionCookie struct {
	Secure bool
	Domain string
}

// Set はトークンをHttpOnly・SameSite=LaxのCookieとして設定する。有効期限はトークンと同じ。
func (c SessionCookie) Set(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		Domain:   c.Domain,
		MaxAge:   int(auth.TokenTTL.Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Clear は認証Cookieを削除する。
func (c SessionCookie) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   c.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
