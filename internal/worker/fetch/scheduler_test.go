package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hitoshi/eloboard/internal/model"
)

// --- モック定義 ---

// mockRoster はRosterListerのテスト用モック。
type mockRoster struct {
	listFunc func(ctx context.Context) ([]model.RosterMember, error)
}

func (m *mockRoster) List(ctx context.Context) ([]model.RosterMember, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx)
	}
	return nil, nil
}

// mockResolver はResolverのテスト用モック。
type mockResolver struct {
	resolveAllFunc func(ctx context.Context, ids []string, now time.Time) []model.ProfileResult
	calls          atomic.Int32
}

func (m *mockResolver) ResolveAll(ctx context.Context, ids []string, now time.Time) []model.ProfileResult {
	m.calls.Add(1)
	if m.resolveAllFunc != nil {
		return m.resolveAllFunc(ctx, ids, now)
	}
	results := make([]model.ProfileResult, len(ids))
	for i, id := range ids {
		results[i] = model.ProfileResult{PlayerID: id, Profile: profileFor(id, 1000)}
	}
	return results
}

func members(ids ...string) []model.RosterMember {
	out := make([]model.RosterMember, len(ids))
	for i, id := range ids {
		out[i] = model.RosterMember{PlayerID: id}
	}
	return out
}

// --- スケジューラのテスト ---

func TestNewScheduler_ReturnsNonNil(t *testing.T) {
	var buf bytes.Buffer
	s := NewScheduler(&mockRoster{}, &mockResolver{}, newTestLogger(&buf))
	if s == nil {
		t.Fatal("NewScheduler は nil を返してはならない")
	}
}

func TestScheduler_RunOnce_ResolvesRosterInOrder(t *testing.T) {
	var buf bytes.Buffer
	var gotIDs []string
	var gotNow time.Time

	roster := &mockRoster{
		listFunc: func(ctx context.Context) ([]model.RosterMember, error) {
			return members("a", "b", "c"), nil
		},
	}
	resolver := &mockResolver{
		resolveAllFunc: func(ctx context.Context, ids []string, now time.Time) []model.ProfileResult {
			gotIDs = ids
			gotNow = now
			return []model.ProfileResult{
				{PlayerID: "a", Profile: profileFor("a", 1), Cached: true},
				{PlayerID: "b", Profile: profileFor("b", 1)},
				{PlayerID: "c", Err: model.ErrRemote},
			}
		},
	}

	s := NewScheduler(roster, resolver, newTestLogger(&buf))
	s.now = func() time.Time { return baseTime }

	failed, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce がエラーを返した: %v", err)
	}
	if failed {
		t.Error("一部成功したサイクルを障害としてはならない")
	}
	if strings.Join(gotIDs, ",") != "a,b,c" {
		t.Errorf("ids = %v, want [a b c]", gotIDs)
	}
	if !gotNow.Equal(baseTime) {
		t.Errorf("now = %v, want %v", gotNow, baseTime)
	}

	var entry map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var e map[string]any
		if json.Unmarshal([]byte(line), &e) == nil && e["msg"] == "リフレッシュサイクルが完了しました" {
			entry = e
		}
	}
	if entry == nil {
		t.Fatalf("完了ログが出力されていない: %s", buf.String())
	}
	if entry["cached"] != float64(1) || entry["fetched"] != float64(1) || entry["failed"] != float64(1) {
		t.Errorf("完了ログの集計が不正: %v", entry)
	}
}

func TestScheduler_RunOnce_EmptyRoster(t *testing.T) {
	var buf bytes.Buffer
	resolver := &mockResolver{}
	s := NewScheduler(&mockRoster{}, resolver, newTestLogger(&buf))

	failed, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce がエラーを返した: %v", err)
	}
	if failed {
		t.Error("空のロスターを障害としてはならない")
	}
	if resolver.calls.Load() != 0 {
		t.Error("空のロスターで解決を実行してはならない")
	}
}

func TestScheduler_RunOnce_ListError(t *testing.T) {
	var buf bytes.Buffer
	listErr := errors.New("db down")
	roster := &mockRoster{
		listFunc: func(ctx context.Context) ([]model.RosterMember, error) {
			return nil, listErr
		},
	}
	resolver := &mockResolver{}
	s := NewScheduler(roster, resolver, newTestLogger(&buf))

	_, err := s.RunOnce(context.Background())
	if !errors.Is(err, listErr) {
		t.Errorf("err = %v, want %v", err, listErr)
	}
	if resolver.calls.Load() != 0 {
		t.Error("ロスター取得失敗時に解決を実行してはならない")
	}
}

func TestScheduler_RunOnce_AllRemoteFailuresReportsFailed(t *testing.T) {
	var buf bytes.Buffer
	roster := &mockRoster{
		listFunc: func(ctx context.Context) ([]model.RosterMember, error) {
			return members("a", "b"), nil
		},
	}
	resolver := &mockResolver{
		resolveAllFunc: func(ctx context.Context, ids []string, now time.Time) []model.ProfileResult {
			return []model.ProfileResult{
				{PlayerID: "a", Err: model.ErrRemote},
				{PlayerID: "b", Err: model.ErrRemote},
			}
		},
	}
	s := NewScheduler(roster, resolver, newTestLogger(&buf))

	failed, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce がエラーを返した: %v", err)
	}
	if !failed {
		t.Error("全件が外部障害のサイクルは障害として報告しなければならない")
	}
}

func TestScheduler_RunCycle_BacksOffAndResets(t *testing.T) {
	var buf bytes.Buffer
	var fail atomic.Bool
	fail.Store(true)

	roster := &mockRoster{
		listFunc: func(ctx context.Context) ([]model.RosterMember, error) {
			return members("a"), nil
		},
	}
	resolver := &mockResolver{
		resolveAllFunc: func(ctx context.Context, ids []string, now time.Time) []model.ProfileResult {
			if fail.Load() {
				return []model.ProfileResult{{PlayerID: "a", Err: model.ErrRemote}}
			}
			return []model.ProfileResult{{PlayerID: "a", Profile: profileFor("a", 1)}}
		},
	}
	s := NewScheduler(roster, resolver, newTestLogger(&buf))
	interval := 10 * time.Second

	if d := s.runCycle(context.Background(), interval); d != 20*time.Second {
		t.Errorf("1回目の障害後の待機 = %v, want 20s", d)
	}
	if d := s.runCycle(context.Background(), interval); d != 40*time.Second {
		t.Errorf("2回目の障害後の待機 = %v, want 40s", d)
	}

	fail.Store(false)
	if d := s.runCycle(context.Background(), interval); d != interval {
		t.Errorf("回復後の待機 = %v, want %v", d, interval)
	}
	if s.consecutiveFailures != 0 {
		t.Errorf("consecutiveFailures = %d, want 0", s.consecutiveFailures)
	}
}

func TestScheduler_Start_StopsOnContextCancel(t *testing.T) {
	var buf bytes.Buffer
	roster := &mockRoster{
		listFunc: func(ctx context.Context) ([]model.RosterMember, error) {
			return members("a"), nil
		},
	}
	resolver := &mockResolver{}
	s := NewScheduler(roster, resolver, newTestLogger(&buf))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx, 20*time.Millisecond)
		close(done)
	}()

	time.Sleep(70 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("コンテキストキャンセル後にスケジューラが停止しない")
	}

	if n := resolver.calls.Load(); n < 2 {
		t.Errorf("リフレッシュ回数 = %d, want 2回以上", n)
	}
	if !strings.Contains(buf.String(), "リフレッシュスケジューラを停止しました") {
		t.Error("停止ログが出力されていない")
	}
}

func TestScheduler_Start_NonPositiveIntervalUsesDefault(t *testing.T) {
	var buf bytes.Buffer
	roster := &mockRoster{
		listFunc: func(ctx context.Context) ([]model.RosterMember, error) {
			return members("a"), nil
		},
	}
	resolver := &mockResolver{}
	s := NewScheduler(roster, resolver, newTestLogger(&buf))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	s.Start(ctx, 0)

	if n := resolver.calls.Load(); n != 1 {
		t.Errorf("リフレッシュ回数 = %d, want 1（起動直後の1回のみ）", n)
	}
	if !strings.Contains(buf.String(), "リフレッシュ間隔が不正なため既定値を使用します") {
		t.Error("既定値への切り替えがログに記録されていない")
	}
}
