package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/eloboard/internal/model"
)

// LeaderboardServiceInterface はリーダーボードハンドラーが必要とするサービスインターフェース。
type LeaderboardServiceInterface interface {
	GetLeaderboard(ctx context.Context, now time.Time) (*model.Snapshot, error)
}

// LeaderboardHandler は公開リーダーボードのHTTPハンドラー。
type LeaderboardHandler struct {
	service LeaderboardServiceInterface
	now     func() time.Time
}

// NewLeaderboardHandler はLeaderboardHandlerを生成する。
func NewLeaderboardHandler(service LeaderboardServiceInterface) *LeaderboardHandler {
	return &LeaderboardHandler{
		service: service,
		now:     time.Now,
	}
}

// leaderboardResponse はリーダーボードのAPIレスポンス。
type leaderboardResponse struct {
	AssembledAt time.Time     `json:"assembled_at"`
	Players     []playerEntry `json:"players"`
}

// playerEntry はリーダーボードの1行。
// レーティング値やレベルを持たないプレイヤーはnullを返す。
type playerEntry struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
	Avatar   string `json:"avatar"`
	Elo      *int   `json:"elo"`
	Level    *int   `json:"level"`
}

// GetLeaderboard はランキング済みのリーダーボードを返す。
// GET /leaderboard
func (h *LeaderboardHandler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.service.GetLeaderboard(r.Context(), h.now())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := leaderboardResponse{
		AssembledAt: snapshot.AssembledAt,
		Players:     make([]playerEntry, len(snapshot.Entries)),
	}
	for i, e := range snapshot.Entries {
		resp.Players[i] = toPlayerEntry(e)
	}

	writeJSON(w, http.StatusOK, resp)
}

func toPlayerEntry(e model.LeaderboardEntry) playerEntry {
	p := playerEntry{
		ID:       e.ID,
		Nickname: e.Nickname,
		Avatar:   e.Avatar,
	}
	if e.Rated {
		elo := e.Rating
		p.Elo = &elo
	}
	if e.Level > 0 {
		level := e.Level
		p.Level = &level
	}
	return p
}
