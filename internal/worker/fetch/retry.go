package fetch

import (
	"errors"
	"time"

	"github.com/hitoshi/eloboard/internal/model"
)

// 取得失敗の分類。メトリクスのreasonラベルとログに使用する。
const (
	ReasonNotFound     = "not_found"
	ReasonRemote       = "remote"
	ReasonUnconfigured = "unconfigured"
)

const (
	// maxBackoffMultiplier はリフレッシュ間隔に対するバックオフの上限倍率。
	maxBackoffMultiplier = 16
)

// ClassifyFailure は取得エラーを分類する。
// 分類できないエラーは外部サービス側の失敗として扱う。
func ClassifyFailure(err error) string {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return ReasonNotFound
	case errors.Is(err, model.ErrUnconfigured):
		return ReasonUnconfigured
	default:
		return ReasonRemote
	}
}

// CalculateBackoff は連続して失敗したリフレッシュサイクル数に基づいて次のサイクルまでの待機時間を計算する。
// 失敗がなければinterval、以降2倍ずつ増加し、最大でintervalの16倍。
func CalculateBackoff(interval time.Duration, consecutiveFailures int) time.Duration {
	delay := interval
	limit := interval * maxBackoffMultiplier
	for i := 0; i < consecutiveFailures; i++ {
		delay *= 2
		if delay > limit {
			return limit
		}
	}
	return delay
}

// CycleFailed はリフレッシュサイクル全体が外部サービス障害とみなせるかを判定する。
// 1件以上の結果があり、すべてが外部サービス側の失敗（RemoteError または Unconfigured）の場合にtrue。
// NotFound は個別の識別子の問題なので障害とはみなさない。
func CycleFailed(results []model.ProfileResult) bool {
	if len(results) == 0 {
		return false
	}
	for _, r := range results {
		if r.Err == nil {
			return false
		}
		if errors.Is(r.Err, model.ErrNotFound) {
			return false
		}
	}
	return true
}
