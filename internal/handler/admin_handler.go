package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/eloboard/internal/model"
)

// RosterServiceInterface はロスター変更操作のサービスインターフェース。
type RosterServiceInterface interface {
	// Add はニックネームまたはプレイヤーIDを解決してロスターに追加し、識別子と
	// ロスターが変更されたかどうかを返す。
	Add(ctx context.Context, input string) (string, bool, error)
	// Remove はロスターから識別子を削除する。存在しない場合も成功とする。
	Remove(ctx context.Context, playerID string) error
}

// RosterViewInterface は管理画面向けロスター一覧のサービスインターフェース。
type RosterViewInterface interface {
	ListRoster(ctx context.Context, now time.Time) ([]model.RosterPlayer, error)
}

// AdminHandler は管理用ロスター操作のHTTPハンドラー。
type AdminHandler struct {
	roster RosterServiceInterface
	view   RosterViewInterface
	now    func() time.Time
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(roster RosterServiceInterface, view RosterViewInterface) *AdminHandler {
	return &AdminHandler{
		roster: roster,
		view:   view,
		now:    time.Now,
	}
}

// addPlayerRequest はプレイヤー追加リクエストのボディ。
type addPlayerRequest struct {
	Input string `json:"input"`
}

// addPlayerResponse はプレイヤー追加のAPIレスポンス。
type addPlayerResponse struct {
	ID string `json:"id"`
}

// rosterPlayerResponse は管理画面向けロスター一覧の1行。
type rosterPlayerResponse struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
	Avatar   string `json:"avatar"`
	Elo      *int   `json:"elo"`
	Level    *int   `json:"level"`
	Resolved bool   `json:"resolved"`
	HasGame  bool   `json:"has_game"`
	Error    string `json:"error,omitempty"`
}

// ListRoster はロスターの全プレイヤーを登録順で返す。
// GET /admin/list
func (h *AdminHandler) ListRoster(w http.ResponseWriter, r *http.Request) {
	players, err := h.view.ListRoster(r.Context(), h.now())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := make([]rosterPlayerResponse, len(players))
	for i, p := range players {
		entry := toPlayerEntry(p.Entry)
		resp[i] = rosterPlayerResponse{
			ID:       p.ID,
			Nickname: entry.Nickname,
			Avatar:   entry.Avatar,
			Elo:      entry.Elo,
			Level:    entry.Level,
			Resolved: p.Resolved,
			HasGame:  p.HasGame,
			Error:    p.Error,
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// AddPlayer はプレイヤーをロスターに追加する。
// 新規追加は201、登録済みの場合は200を返す。
// POST /admin/add
func (h *AdminHandler) AddPlayer(w http.ResponseWriter, r *http.Request) {
	var req addPlayerRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	id, added, err := h.roster.Add(r.Context(), req.Input)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	writeJSON(w, status, addPlayerResponse{ID: id})
}

// RemovePlayer はプレイヤーをロスターから削除する。
// DELETE /admin/remove/{id}
func (h *AdminHandler) RemovePlayer(w http.ResponseWriter, r *http.Request) {
	if err := h.roster.Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
