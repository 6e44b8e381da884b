package middleware

import "net/http"

// corsAllowedMethods はAPIルートが使うメソッドのみ。
const corsAllowedMethods = "GET, POST, PUT, DELETE, OPTIONS"

// corsExposedHeaders はフロントエンドから読めるようにするレスポンスヘッダー。
// リクエストIDは問い合わせ時の突き合わせに、Retry-Afterはレート制限時の再試行に使う。
var corsExposedHeaders = RequestIDHeader + ", Retry-After"

// NewCORSMiddleware はフロントエンドの単一オリジンに対するCORSミドルウェアを返す。
// セッションCookieを送るためcredentialsを許可し、ワイルドカード(*)は使用しない。
// OPTIONSプリフライトリクエストには204で応答する。
func NewCORSMiddleware(allowedOrigin string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", allowedOrigin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Expose-Headers", corsExposedHeaders)
			h.Add("Vary", "Origin")

			if r.Method == http.MethodOptions {
				h.Set("Access-Control-Allow-Methods", corsAllowedMethods)
				h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+RequestIDHeader)
				h.Set("Access-Control-Max-Age", "86400")
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
