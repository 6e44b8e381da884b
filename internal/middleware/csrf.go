package middleware

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/kelps/epiflipboard/internal/model"
)

// NewCSRFMiddleware はCookie認証の状態変更リクエストに対してOriginを検証するミドルウェアを返す。
// 安全なメソッド（GET, HEAD, OPTIONS）と、認証Cookieを持たないリクエスト（Bearerトークン等）は検証しない。
// OriginヘッダーがなければRefererで判定し、どちらもない場合は通す（非ブラウザクライアント）。
// 許可されるのはallowedOriginか、リクエスト先と同一のオリジン。
func NewCSRFMiddleware(allowedOrigin string) func(next http.Handler) http.Handler {
	allowed := normalizeOrigin(allowedOrigin)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) || !hasSessionCookie(r) {
				next.ServeHTTP(w, r)
				return
			}

			origin := requestOrigin(r)
			if origin == "" || origin == allowed || origin == sameOrigin(r) {
				next.ServeHTTP(w, r)
				return
			}

			slog.Warn("CSRF validation failed: origin mismatch",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("origin", origin),
			)
			WriteErrorResponse(w, http.StatusForbidden, &model.APIError{
				Code:     model.ErrCodeForbidden,
				Message:  "Cross-site request rejected",
				Category: "auth",
				Action:   "Send the request from the application origin.",
			})
		})
	}
}

// isSafeMethod はHTTPメソッドが安全（読み取り専用）かどうかを判定する。
func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

func hasSessionCookie(r *http.Request) bool {
	c, err := r.Cookie(SessionCookieName)
	return err == nil && c.Value != ""
}

// requestOrigin はOrigin、なければRefererからオリジンを取り出す。
func requestOrigin(r *http.Request) string {
	if o := r.Header.Get("Origin"); o != "" && o != "null" {
		return normalizeOrigin(o)
	}
	if ref := r.Header.Get("Referer"); ref != "" {
		return normalizeOrigin(ref)
	}
	return ""
}

// sameOrigin はリクエスト先自身のオリジンを返す。
func sameOrigin(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + strings.ToLower(r.Host)
}

// normalizeOrigin はURLをscheme://hostの形に揃える。解析できない場合は空文字列。
func normalizeOrigin(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host)
}
