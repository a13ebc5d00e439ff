package middleware

import (
	"net/http"
	"strings"
)

// apiPathPrefix 配下のレスポンスはユーザー固有データを含みうるためキャッシュさせない。
const apiPathPrefix = "/api/"

// NewSecurityHeadersMiddleware はJSON APIとしてのセキュリティヘッダーを付与するミドルウェアを返す。
// HTMLを返さないため、CSPはすべてのリソース読み込みと埋め込みを拒否する。
// /api/ 配下には Cache-Control: no-store を付与する。/health と /metrics は対象外。
func NewSecurityHeadersMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Cross-Origin-Resource-Policy", "same-site")
			if strings.HasPrefix(r.URL.Path, apiPathPrefix) {
				h.Set("Cache-Control", "no-store")
			}
			next.ServeHTTP(w, r)
		})
	}
}
