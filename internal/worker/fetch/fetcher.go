package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hitoshi/eloboard/internal/metrics"
	"github.com/hitoshi/eloboard/internal/model"
)

// ProfileFetcher は外部レーティングサービスから識別子でプロフィールを取得するインターフェース。
type ProfileFetcher interface {
	FetchByID(ctx context.Context, playerID string) (*model.RawProfile, error)
}

// ProfileCache はプロフィールキャッシュのインターフェース。
type ProfileCache interface {
	Get(ctx context.Context, playerID string) (model.CacheEntry, bool)
	Put(ctx context.Context, playerID string, profile *model.RawProfile, now time.Time)
}

// DefaultWidth はワーカープールの既定幅。
const DefaultWidth = 5

// Fetcher は識別子の集合を固定幅のワーカープールで解決する。
// 同時に実行される外部呼び出しの数は、並行するResolveAll呼び出しを合わせても
// プール幅を超えない。
// 1件の失敗はその識別子の結果に記録されるだけで、他の識別子の解決を妨げない。
type Fetcher struct {
	client  ProfileFetcher
	cache   ProfileCache
	metrics metrics.MetricsCollector
	logger  *slog.Logger
	width   int
	ttl     time.Duration
	slots   chan struct{} // プロセス全体で共有する外部呼び出し枠
}

// NewFetcher はFetcherの新しいインスタンスを生成する。
// widthが0以下の場合はDefaultWidthを使用する。上限の丸めは設定層で行う。
func NewFetcher(
	client ProfileFetcher,
	cache ProfileCache,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	width int,
	ttl time.Duration,
) *Fetcher {
	if width <= 0 {
		width = DefaultWidth
	}
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Fetcher{
		client:  client,
		cache:   cache,
		metrics: collector,
		logger:  logger,
		width:   width,
		ttl:     ttl,
		slots:   make(chan struct{}, width),
	}
}

// Width はワーカープールの幅を返す。
func (f *Fetcher) Width() int {
	return f.width
}

// ResolveAll はidsの各識別子のプロフィールを解決し、入力と同じ位置に結果を並べて返す。
// 新鮮なキャッシュエントリがあれば外部呼び出しを行わずにそれを返す。
// それ以外は外部サービスに問い合わせ、成功した結果をキャッシュに書き戻す。
// 失敗はキャッシュしない。
func (f *Fetcher) ResolveAll(ctx context.Context, ids []string, now time.Time) []model.ProfileResult {
	results := make([]model.ProfileResult, len(ids))
	if len(ids) == 0 {
		return results
	}

	workers := f.width
	if workers > len(ids) {
		workers = len(ids)
	}

	var cursor atomic.Int64
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(cursor.Add(1)) - 1
				if i >= len(ids) {
					return
				}
				results[i] = f.resolveOne(ctx, ids[i], now)
			}
		}()
	}

	wg.Wait()
	return results
}

// resolveOne は1件の識別子を解決する。パニックはその識別子の RemoteError として記録する。
func (f *Fetcher) resolveOne(ctx context.Context, playerID string, now time.Time) (result model.ProfileResult) {
	result.PlayerID = playerID

	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("プロフィール解決中にパニックが発生しました",
				slog.String("player_id", playerID),
				slog.Any("panic", r),
			)
			f.metrics.RecordFetchFailure(ReasonRemote)
			result.Profile = nil
			result.Cached = false
			result.Err = fmt.Errorf("%w: panic while resolving %s: %v", model.ErrRemote, playerID, r)
		}
	}()

	if entry, ok := f.cache.Get(ctx, playerID); ok && entry.FreshAt(now, f.ttl) {
		f.metrics.RecordCacheHit()
		result.Profile = entry.Profile
		result.Cached = true
		return result
	}
	f.metrics.RecordCacheMiss()

	profile, err := f.fetchRemote(ctx, playerID)
	if err != nil {
		f.metrics.RecordFetchFailure(ClassifyFailure(err))
		f.logger.Warn("プロフィールの取得に失敗しました",
			slog.String("player_id", playerID),
			slog.String("reason", ClassifyFailure(err)),
			slog.String("error", err.Error()),
		)
		result.Err = err
		return result
	}

	f.metrics.RecordFetchSuccess()
	f.cache.Put(ctx, playerID, profile, now)
	result.Profile = profile
	return result
}

func (f *Fetcher) fetchRemote(ctx context.Context, playerID string) (*model.RawProfile, error) {
	select {
	case f.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: waiting for fetch slot for %s: %v", model.ErrRemote, playerID, ctx.Err())
	}
	defer func() { <-f.slots }()

	f.metrics.IncInFlight()
	defer f.metrics.DecInFlight()

	start := time.Now()
	profile, err := f.client.FetchByID(ctx, playerID)
	f.metrics.RecordFetchLatency(time.Since(start))
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, fmt.Errorf("%w: empty profile for %s", model.ErrRemote, playerID)
	}
	return profile, nil
}
