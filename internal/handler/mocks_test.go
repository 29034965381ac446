package handler

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/eloboard/internal/model"
)

// --- モック定義 ---

// mockLeaderboardService はLeaderboardServiceInterfaceのモック実装。
type mockLeaderboardService struct {
	getLeaderboardFn func(ctx context.Context, now time.Time) (*model.Snapshot, error)
}

func (m *mockLeaderboardService) GetLeaderboard(ctx context.Context, now time.Time) (*model.Snapshot, error) {
	if m.getLeaderboardFn != nil {
		return m.getLeaderboardFn(ctx, now)
	}
	return &model.Snapshot{AssembledAt: now, Entries: []model.LeaderboardEntry{}}, nil
}

// mockRosterService はRosterServiceInterfaceのモック実装。
type mockRosterService struct {
	addFn    func(ctx context.Context, input string) (string, bool, error)
	removeFn func(ctx context.Context, playerID string) error
}

func (m *mockRosterService) Add(ctx context.Context, input string) (string, bool, error) {
	if m.addFn != nil {
		return m.addFn(ctx, input)
	}
	return "", false, nil
}

func (m *mockRosterService) Remove(ctx context.Context, playerID string) error {
	if m.removeFn != nil {
		return m.removeFn(ctx, playerID)
	}
	return nil
}

// mockRosterView はRosterViewInterfaceのモック実装。
type mockRosterView struct {
	listRosterFn func(ctx context.Context, now time.Time) ([]model.RosterPlayer, error)
}

func (m *mockRosterView) ListRoster(ctx context.Context, now time.Time) ([]model.RosterPlayer, error) {
	if m.listRosterFn != nil {
		return m.listRosterFn(ctx, now)
	}
	return []model.RosterPlayer{}, nil
}

// mockHealthChecker はHealthCheckerのモック実装。
type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error {
	return m.err
}

// --- テストヘルパー ---

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}
