package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/eloboard/internal/cache"
	"github.com/hitoshi/eloboard/internal/metrics"
	"github.com/hitoshi/eloboard/internal/model"
)

// --- モック定義 ---

// mockClient はProfileFetcherのテスト用モック。
type mockClient struct {
	fetchByIDFunc func(ctx context.Context, playerID string) (*model.RawProfile, error)
	calls         atomic.Int32
}

func (m *mockClient) FetchByID(ctx context.Context, playerID string) (*model.RawProfile, error) {
	m.calls.Add(1)
	if m.fetchByIDFunc != nil {
		return m.fetchByIDFunc(ctx, playerID)
	}
	return profileFor(playerID, 1000), nil
}

// inFlightClient は同時実行中の呼び出し数の最大値を記録するモック。
type inFlightClient struct {
	current atomic.Int32
	max     atomic.Int32
	delay   time.Duration
}

func (c *inFlightClient) FetchByID(ctx context.Context, playerID string) (*model.RawProfile, error) {
	n := c.current.Add(1)
	defer c.current.Add(-1)
	for {
		m := c.max.Load()
		if n <= m || c.max.CompareAndSwap(m, n) {
			break
		}
	}
	time.Sleep(c.delay)
	return profileFor(playerID, 1000), nil
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func intPtr(v int) *int { return &v }

func profileFor(id string, rating int) *model.RawProfile {
	return &model.RawProfile{
		PlayerID: id,
		Nickname: "nick-" + id,
		Games: map[string]model.GameStats{
			"cs2": {Rating: intPtr(rating), Level: intPtr(5)},
		},
	}
}

func newTestFetcher(client ProfileFetcher, c ProfileCache, width int) *Fetcher {
	var buf bytes.Buffer
	return NewFetcher(client, c, metrics.Nop{}, newTestLogger(&buf), width, 30*time.Second)
}

var baseTime = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

// --- Fetcher の生成 ---

func TestNewFetcher_DefaultWidth(t *testing.T) {
	f := newTestFetcher(&mockClient{}, cache.NewMemoryCache(), 0)
	if f.Width() != DefaultWidth {
		t.Errorf("Width() = %d, want %d", f.Width(), DefaultWidth)
	}
}

func TestNewFetcher_NilCollectorUsesNop(t *testing.T) {
	var buf bytes.Buffer
	f := NewFetcher(&mockClient{}, cache.NewMemoryCache(), nil, newTestLogger(&buf), 3, time.Second)
	if f.metrics == nil {
		t.Fatal("metrics は nil であってはならない")
	}
	// パニックしないこと
	f.ResolveAll(context.Background(), []string{"a"}, baseTime)
}

// --- ResolveAll ---

func TestResolveAll_EmptyInput(t *testing.T) {
	client := &mockClient{}
	f := newTestFetcher(client, cache.NewMemoryCache(), 5)

	results := f.ResolveAll(context.Background(), nil, baseTime)
	if len(results) != 0 {
		t.Errorf("len(results) = %d, want 0", len(results))
	}
	if client.calls.Load() != 0 {
		t.Errorf("空入力で外部呼び出しが発生した: %d回", client.calls.Load())
	}
}

func TestResolveAll_ResultsAlignedWithInput(t *testing.T) {
	ids := []string{"p0", "p1", "p2", "p3", "p4", "p5", "p6", "p7"}
	client := &mockClient{
		fetchByIDFunc: func(ctx context.Context, id string) (*model.RawProfile, error) {
			// 完了順を入力順と変える
			if id == "p0" || id == "p3" {
				time.Sleep(20 * time.Millisecond)
			}
			return profileFor(id, 1000), nil
		},
	}
	f := newTestFetcher(client, cache.NewMemoryCache(), 3)

	results := f.ResolveAll(context.Background(), ids, baseTime)

	if len(results) != len(ids) {
		t.Fatalf("len(results) = %d, want %d", len(results), len(ids))
	}
	for i, r := range results {
		if r.PlayerID != ids[i] {
			t.Errorf("results[%d].PlayerID = %q, want %q", i, r.PlayerID, ids[i])
		}
		if !r.OK() || r.Profile.PlayerID != ids[i] {
			t.Errorf("results[%d] = %+v, want profile for %s", i, r, ids[i])
		}
	}
}

func TestResolveAll_NeverExceedsWidth(t *testing.T) {
	for _, width := range []int{1, 2, 5, 10} {
		t.Run(fmt.Sprintf("width=%d", width), func(t *testing.T) {
			ids := make([]string, width*4+3)
			for i := range ids {
				ids[i] = fmt.Sprintf("p%d", i)
			}
			client := &inFlightClient{delay: 5 * time.Millisecond}
			f := newTestFetcher(client, cache.NewMemoryCache(), width)

			results := f.ResolveAll(context.Background(), ids, baseTime)

			if got := client.max.Load(); got > int32(width) {
				t.Errorf("同時実行数の最大値 = %d, 上限 %d を超えた", got, width)
			}
			if width > 1 && client.max.Load() < 2 {
				t.Errorf("並列実行されていない: 最大同時実行数 = %d", client.max.Load())
			}
			for i, r := range results {
				if !r.OK() {
					t.Errorf("results[%d] が失敗した: %v", i, r.Err)
				}
			}
		})
	}
}

func TestResolveAll_WidthSharedAcrossConcurrentCalls(t *testing.T) {
	client := &inFlightClient{delay: 10 * time.Millisecond}
	f := newTestFetcher(client, cache.NewMemoryCache(), 2)

	var wg sync.WaitGroup
	for batch := 0; batch < 3; batch++ {
		wg.Add(1)
		go func(batch int) {
			defer wg.Done()
			ids := make([]string, 4)
			for i := range ids {
				ids[i] = fmt.Sprintf("b%d-p%d", batch, i)
			}
			for i, r := range f.ResolveAll(context.Background(), ids, baseTime) {
				if !r.OK() {
					t.Errorf("batch %d results[%d] が失敗した: %v", batch, i, r.Err)
				}
			}
		}(batch)
	}
	wg.Wait()

	if got := client.max.Load(); got > 2 {
		t.Errorf("並行バッチ全体の同時実行数 = %d, 上限 2 を超えた", got)
	}
}

func TestResolveAll_CancelledWhileWaitingForSlot(t *testing.T) {
	release := make(chan struct{})
	client := &mockClient{
		fetchByIDFunc: func(ctx context.Context, id string) (*model.RawProfile, error) {
			<-release
			return profileFor(id, 1000), nil
		},
	}
	f := newTestFetcher(client, cache.NewMemoryCache(), 1)

	done := make(chan struct{})
	go func() {
		f.ResolveAll(context.Background(), []string{"holder"}, baseTime)
		close(done)
	}()
	for client.calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results := f.ResolveAll(ctx, []string{"waiter"}, baseTime)

	if !errors.Is(results[0].Err, model.ErrRemote) {
		t.Errorf("Err = %v, want ErrRemote", results[0].Err)
	}
	if n := client.calls.Load(); n != 1 {
		t.Errorf("外部呼び出し回数 = %d, want 1", n)
	}

	close(release)
	<-done
}

func TestResolveAll_WorkerCountBoundedByInput(t *testing.T) {
	client := &inFlightClient{delay: 5 * time.Millisecond}
	f := newTestFetcher(client, cache.NewMemoryCache(), 10)

	f.ResolveAll(context.Background(), []string{"a", "b"}, baseTime)

	if got := client.max.Load(); got > 2 {
		t.Errorf("入力数より多い同時実行が発生した: %d", got)
	}
}

func TestResolveAll_PartialFailure(t *testing.T) {
	ids := []string{"a", "b", "c", "d", "e"}
	client := &mockClient{
		fetchByIDFunc: func(ctx context.Context, id string) (*model.RawProfile, error) {
			switch id {
			case "b":
				return nil, fmt.Errorf("%w: connection refused", model.ErrRemote)
			case "d":
				return nil, fmt.Errorf("%w: player d", model.ErrNotFound)
			}
			return profileFor(id, 1000), nil
		},
	}
	f := newTestFetcher(client, cache.NewMemoryCache(), 2)

	results := f.ResolveAll(context.Background(), ids, baseTime)

	var ok int
	for _, r := range results {
		if r.OK() {
			ok++
		}
	}
	if ok != 3 {
		t.Errorf("成功数 = %d, want 3", ok)
	}
	if !errors.Is(results[1].Err, model.ErrRemote) {
		t.Errorf("results[1].Err = %v, want ErrRemote", results[1].Err)
	}
	if !errors.Is(results[3].Err, model.ErrNotFound) {
		t.Errorf("results[3].Err = %v, want ErrNotFound", results[3].Err)
	}
	if results[1].Profile != nil {
		t.Error("失敗した結果にプロフィールを設定してはならない")
	}
}

func TestResolveAll_PanicContainedToOneIdentifier(t *testing.T) {
	var buf bytes.Buffer
	client := &mockClient{
		fetchByIDFunc: func(ctx context.Context, id string) (*model.RawProfile, error) {
			if id == "boom" {
				panic("unexpected payload")
			}
			return profileFor(id, 1000), nil
		},
	}
	f := NewFetcher(client, cache.NewMemoryCache(), metrics.Nop{}, newTestLogger(&buf), 2, 30*time.Second)

	results := f.ResolveAll(context.Background(), []string{"a", "boom", "c"}, baseTime)

	if !results[0].OK() || !results[2].OK() {
		t.Error("パニックが他の識別子の解決に影響した")
	}
	if !errors.Is(results[1].Err, model.ErrRemote) {
		t.Errorf("results[1].Err = %v, want ErrRemote", results[1].Err)
	}
	if !bytes.Contains(buf.Bytes(), []byte("パニックが発生しました")) {
		t.Errorf("パニックがログに記録されていない: %s", buf.String())
	}
}

func TestResolveAll_NilProfileIsRemoteError(t *testing.T) {
	client := &mockClient{
		fetchByIDFunc: func(ctx context.Context, id string) (*model.RawProfile, error) {
			return nil, nil
		},
	}
	c := cache.NewMemoryCache()
	f := newTestFetcher(client, c, 1)

	results := f.ResolveAll(context.Background(), []string{"a"}, baseTime)

	if !errors.Is(results[0].Err, model.ErrRemote) {
		t.Errorf("Err = %v, want ErrRemote", results[0].Err)
	}
	if c.Len() != 0 {
		t.Error("失敗をキャッシュしてはならない")
	}
}

// --- キャッシュとの連携 ---

func TestResolveAll_FreshCacheSkipsRemote(t *testing.T) {
	client := &mockClient{}
	c := cache.NewMemoryCache()
	f := newTestFetcher(client, c, 5)

	first := f.ResolveAll(context.Background(), []string{"a"}, baseTime)
	if client.calls.Load() != 1 {
		t.Fatalf("初回の外部呼び出し回数 = %d, want 1", client.calls.Load())
	}
	if first[0].Cached {
		t.Error("初回の結果をキャッシュ由来としてはならない")
	}

	second := f.ResolveAll(context.Background(), []string{"a"}, baseTime.Add(29*time.Second))
	if client.calls.Load() != 1 {
		t.Errorf("TTL内で外部呼び出しが発生した: %d回", client.calls.Load())
	}
	if !second[0].Cached {
		t.Error("TTL内の結果はキャッシュ由来でなければならない")
	}
	if second[0].Profile != first[0].Profile {
		t.Error("TTL内はキャッシュしたプロフィールと同一のものを返さなければならない")
	}
}

func TestResolveAll_StaleCacheTriggersExactlyOneRemoteCall(t *testing.T) {
	client := &mockClient{}
	c := cache.NewMemoryCache()
	f := newTestFetcher(client, c, 5)

	f.ResolveAll(context.Background(), []string{"a"}, baseTime)
	f.ResolveAll(context.Background(), []string{"a"}, baseTime.Add(30*time.Second))

	if client.calls.Load() != 2 {
		t.Errorf("TTL経過後の外部呼び出し回数 = %d, want 合計2", client.calls.Load())
	}

	e, ok := c.Get(context.Background(), "a")
	if !ok {
		t.Fatal("再取得した結果がキャッシュに書き戻されていない")
	}
	if !e.FetchedAt.Equal(baseTime.Add(30 * time.Second)) {
		t.Errorf("FetchedAt = %v, want %v", e.FetchedAt, baseTime.Add(30*time.Second))
	}
}

func TestResolveAll_FailureNotCached(t *testing.T) {
	client := &mockClient{
		fetchByIDFunc: func(ctx context.Context, id string) (*model.RawProfile, error) {
			return nil, model.ErrRemote
		},
	}
	f := newTestFetcher(client, cache.NewMemoryCache(), 5)

	f.ResolveAll(context.Background(), []string{"a"}, baseTime)
	f.ResolveAll(context.Background(), []string{"a"}, baseTime.Add(time.Second))

	if client.calls.Load() != 2 {
		t.Errorf("失敗した識別子は毎回再取得されなければならない: %d回", client.calls.Load())
	}
}

func TestResolveAll_StaleEntryKeptWhenRefreshFails(t *testing.T) {
	fail := atomic.Bool{}
	client := &mockClient{
		fetchByIDFunc: func(ctx context.Context, id string) (*model.RawProfile, error) {
			if fail.Load() {
				return nil, model.ErrRemote
			}
			return profileFor(id, 1000), nil
		},
	}
	c := cache.NewMemoryCache()
	f := newTestFetcher(client, c, 5)

	f.ResolveAll(context.Background(), []string{"a"}, baseTime)
	fail.Store(true)
	results := f.ResolveAll(context.Background(), []string{"a"}, baseTime.Add(time.Minute))

	if results[0].OK() {
		t.Error("期限切れのエントリを正として返してはならない")
	}
	e, ok := c.Get(context.Background(), "a")
	if !ok || !e.FetchedAt.Equal(baseTime) {
		t.Error("失敗時に既存のエントリを上書きしてはならない")
	}
}

func TestResolveAll_ConcurrentBatchesShareCache(t *testing.T) {
	client := &mockClient{}
	c := cache.NewMemoryCache()
	f := newTestFetcher(client, c, 5)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.ResolveAll(context.Background(), []string{"a", "b", "c"}, baseTime)
		}()
	}
	wg.Wait()

	if c.Len() != 3 {
		t.Errorf("Len() = %d, want 3", c.Len())
	}
}

// --- メトリクス ---

func TestResolveAll_RecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	client := &mockClient{
		fetchByIDFunc: func(ctx context.Context, id string) (*model.RawProfile, error) {
			if id == "bad" {
				return nil, model.ErrNotFound
			}
			return profileFor(id, 1000), nil
		},
	}
	var buf bytes.Buffer
	f := NewFetcher(client, cache.NewMemoryCache(), collector, newTestLogger(&buf), 2, 30*time.Second)

	f.ResolveAll(context.Background(), []string{"a", "bad"}, baseTime)
	f.ResolveAll(context.Background(), []string{"a"}, baseTime.Add(time.Second))

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	values := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if m.GetCounter() != nil {
				values[mf.GetName()] += m.GetCounter().GetValue()
			}
			if mf.GetName() == "eloboard_remote_fetch_in_flight" {
				values[mf.GetName()] = m.GetGauge().GetValue()
			}
		}
	}

	want := map[string]float64{
		"eloboard_profile_cache_hit_total":    1,
		"eloboard_profile_cache_miss_total":   2,
		"eloboard_remote_fetch_success_total": 1,
		"eloboard_remote_fetch_fail_total":    1,
		"eloboard_remote_fetch_in_flight":     0,
	}
	for name, v := range want {
		if values[name] != v {
			t.Errorf("%s = %v, want %v", name, values[name], v)
		}
	}
}
