package middleware

import (
	"net/http"
	"strings"
)

// noStorePrefixes はセッションやお気に入りなどユーザー固有の内容を返すパスの接頭辞。
var noStorePrefixes = []string{"/api/", "/auth/"}

// NewSecurityHeadersMiddleware はJSON APIのレスポンスにセキュリティ関連ヘッダーを付与するミドルウェアを返す。
// HTMLを返さないため、CSPはすべてのリソース読み込みとフレーム埋め込みを禁止する。
// ユーザー固有のレスポンスには共有キャッシュに残らないようCache-Control: no-storeを付ける。
func NewSecurityHeadersMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			h.Set("Referrer-Policy", "no-referrer")
			if isUserScopedPath(r.URL.Path) {
				h.Set("Cache-Control", "no-store")
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isUserScopedPath(path string) bool {
	for _, prefix := range noStorePrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
