// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// エラー分類の番兵エラー。
// 外部APIクライアントやサービス層はこれらをラップして返し、
// 呼び出し元は errors.Is で分類を判定する。
var (
	// ErrNotFound は識別子またはニックネームが外部サービスで解決できなかったことを示す。
	ErrNotFound = errors.New("player not found")
	// ErrRemote は外部サービスとの通信失敗（HTTPエラー、タイムアウト、レート制限）を示す。
	ErrRemote = errors.New("remote rating service error")
	// ErrUnconfigured は外部サービスの認証情報が未設定であることを示す。
	ErrUnconfigured = errors.New("rating service credential is not configured")
	// ErrInvalidInput は管理操作の入力が不正であることを示す。
	ErrInvalidInput = errors.New("invalid input")
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: player, validation, remote, system
	Action   string // ユーザー向け対処方法
	Cause    error  // 分類用の番兵エラー
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は分類用の番兵エラーを返す。
func (e *APIError) Unwrap() error {
	return e.Cause
}

// 定義済みエラーコード
const (
	ErrCodePlayerNotFound = "PLAYER_NOT_FOUND"
	ErrCodeRemoteError    = "REMOTE_ERROR"
	ErrCodeUnconfigured   = "UNCONFIGURED"
	ErrCodeInvalidInput   = "INVALID_INPUT"
)

// NewPlayerNotFoundError はプレイヤー未検出エラーを生成する。
func NewPlayerNotFoundError(input string) *APIError {
	return &APIError{
		Code:     ErrCodePlayerNotFound,
		Message:  fmt.Sprintf("指定されたプレイヤーが見つかりません: %s", input),
		Category: "player",
		Action:   "ニックネームまたはプレイヤーIDの綴りを確認してください。",
		Cause:    ErrNotFound,
	}
}

// NewRemoteError は外部レーティングサービスの呼び出し失敗エラーを生成する。
func NewRemoteError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeRemoteError,
		Message:  fmt.Sprintf("レーティングサービスの呼び出しに失敗しました: %s", reason),
		Category: "remote",
		Action:   "しばらく待ってから再度お試しください。",
		Cause:    ErrRemote,
	}
}

// NewUnconfiguredError は認証情報未設定エラーを生成する。
func NewUnconfiguredError() *APIError {
	return &APIError{
		Code:     ErrCodeUnconfigured,
		Message:  "レーティングサービスのAPIキーが設定されていません。",
		Category: "system",
		Action:   "環境変数 FACEIT_API_KEY を設定してサーバーを再起動してください。",
		Cause:    ErrUnconfigured,
	}
}

// NewInvalidInputError は入力不正エラーを生成する。
func NewInvalidInputError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidInput,
		Message:  fmt.Sprintf("入力が不正です: %s", reason),
		Category: "validation",
		Action:   "ニックネーム（英数字、_、-）またはプレイヤーIDを入力してください。",
		Cause:    ErrInvalidInput,
	}
}

// FromError は番兵エラーでラップされたエラーをAPIErrorに変換する。
// 分類できないエラーはnilを返す。
func FromError(err error, input string) *APIError {
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, ErrNotFound):
		return NewPlayerNotFoundError(input)
	case errors.Is(err, ErrUnconfigured):
		return NewUnconfiguredError()
	case errors.Is(err, ErrInvalidInput):
		return NewInvalidInputError(err.Error())
	case errors.Is(err, ErrRemote):
		return NewRemoteError(err.Error())
	default:
		return nil
	}
}
