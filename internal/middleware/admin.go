// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/eloboard/internal/model"
)

// NewAdminTokenMiddleware は管理用ルートをBearerトークンで保護するミドルウェアを返す。
// tokenが空の場合は管理用ルートを無効とし、すべてのリクエストに403を返す。
func NewAdminTokenMiddleware(token string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				WriteErrorResponse(w, http.StatusForbidden, &model.APIError{
					Code:     "ADMIN_DISABLED",
					Message:  "管理用APIは無効です。",
					Category: "auth",
					Action:   "環境変数 ADMIN_TOKEN を設定してサーバーを再起動してください。",
				})
				return
			}

			presented, ok := bearerToken(r)
			if !ok || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				slog.Warn("管理用APIへの認証に失敗しました",
					slog.String("path", r.URL.Path),
					slog.String("request_id", RequestIDFromContext(r.Context())),
				)
				w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
				WriteErrorResponse(w, http.StatusUnauthorized, &model.APIError{
					Code:     "UNAUTHORIZED",
					Message:  "管理用トークンが正しくありません。",
					Category: "auth",
					Action:   "Authorization: Bearer ヘッダーに管理用トークンを指定してください。",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(h[len(prefix):]), true
}
