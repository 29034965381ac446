// Package fetch はプレイヤープロフィールの並列解決とバックグラウンドリフレッシュを提供する。
// 固定幅ワーカープールのフェッチャー、リフレッシュスケジューラ、失敗分類とバックオフを含む。
package fetch

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/eloboard/internal/model"
)

// DefaultRefreshInterval はintervalに正の値が渡されなかった場合のリフレッシュ間隔。
const DefaultRefreshInterval = 30 * time.Second

// RosterLister はロスターの識別子一覧を返すインターフェース。
type RosterLister interface {
	List(ctx context.Context) ([]model.RosterMember, error)
}

// Resolver はResolveAllの実行インターフェース。
type Resolver interface {
	ResolveAll(ctx context.Context, ids []string, now time.Time) []model.ProfileResult
}

// Scheduler はロスター全体のプロフィールを定期的に解決し、共有キャッシュを温めておく。
// 外部サービス障害が続く間は次のサイクルまでの間隔を指数的に延ばす。
type Scheduler struct {
	roster   RosterLister
	resolver Resolver
	logger   *slog.Logger
	now      func() time.Time

	consecutiveFailures int
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
func NewScheduler(roster RosterLister, resolver Resolver, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		roster:   roster,
		resolver: resolver,
		logger:   logger,
		now:      time.Now,
	}
}

// Start はinterval間隔でリフレッシュを実行する。
// コンテキストがキャンセルされるまで実行を継続する。
// intervalが0以下の場合はDefaultRefreshIntervalを使う。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		s.logger.Warn("リフレッシュ間隔が不正なため既定値を使用します",
			slog.Duration("requested", interval),
			slog.Duration("interval", DefaultRefreshInterval),
		)
		interval = DefaultRefreshInterval
	}

	s.logger.Info("リフレッシュスケジューラを開始しました",
		slog.Duration("interval", interval),
	)

	// 起動直後に1回実行
	delay := s.runCycle(ctx, interval)

	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("リフレッシュスケジューラを停止しました")
			return
		case <-timer.C:
			timer.Reset(s.runCycle(ctx, interval))
		}
	}
}

// runCycle は1サイクルを実行し、次のサイクルまでの待機時間を返す。
func (s *Scheduler) runCycle(ctx context.Context, interval time.Duration) time.Duration {
	failed, err := s.RunOnce(ctx)
	if err != nil {
		s.logger.Error("リフレッシュサイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		failed = true
	}

	if failed {
		s.consecutiveFailures++
	} else {
		s.consecutiveFailures = 0
	}

	delay := CalculateBackoff(interval, s.consecutiveFailures)
	if s.consecutiveFailures > 0 {
		s.logger.Warn("外部サービス障害のため次のリフレッシュを遅らせます",
			slog.Int("consecutive_failures", s.consecutiveFailures),
			slog.Duration("delay", delay),
		)
	}
	return delay
}

// RunOnce はロスターを1回読み込み、全識別子を解決する。
// 戻り値のboolは、全件が外部サービス側の理由で失敗したサイクルであればtrue。
// 個々の識別子の失敗はエラーとして返さない。
func (s *Scheduler) RunOnce(ctx context.Context) (bool, error) {
	start := time.Now()

	members, err := s.roster.List(ctx)
	if err != nil {
		return false, err
	}

	if len(members) == 0 {
		s.logger.Info("リフレッシュ対象のプレイヤーはいません")
		return false, nil
	}

	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.PlayerID
	}

	results := s.resolver.ResolveAll(ctx, ids, s.now())

	var cached, fetched, failed int
	for _, r := range results {
		switch {
		case r.Err != nil:
			failed++
		case r.Cached:
			cached++
		default:
			fetched++
		}
	}

	s.logger.Info("リフレッシュサイクルが完了しました",
		slog.Int("player_count", len(ids)),
		slog.Int("cached", cached),
		slog.Int("fetched", fetched),
		slog.Int("failed", failed),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return CycleFailed(results), nil
}
