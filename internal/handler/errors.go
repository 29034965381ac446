package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/eloboard/internal/middleware"
	"github.com/hitoshi/eloboard/internal/model"
)

// writeJSON は任意の値をJSONレスポンスとして書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
// 分類できないエラー（DB障害など）は詳細をログのみに記録し、500を返す。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if apiErr := model.FromError(err, ""); apiErr != nil {
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	slog.Error("internal server error",
		slog.String("error", err.Error()),
		slog.String("path", r.URL.Path),
		slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
	)
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodePlayerNotFound:
		return http.StatusNotFound
	case model.ErrCodeRemoteError:
		return http.StatusBadGateway
	case model.ErrCodeUnconfigured:
		return http.StatusServiceUnavailable
	case model.ErrCodeInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSONBody はリクエストボディをデコードする。
// 失敗した場合は400を書き込みfalseを返す。
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		msg := "リクエストボディの解析に失敗しました。"
		if errors.As(err, &maxErr) {
			msg = "リクエストボディが大きすぎます。"
		}
		middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  msg,
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return false
	}
	return true
}

const maxRequestBodyBytes = 4 << 10
