// Package leaderboard はロスターの解決結果からランキング済みスナップショットを組み立てる。
package leaderboard

import (
	"sort"
	"time"

	"github.com/hitoshi/eloboard/internal/model"
	"github.com/hitoshi/eloboard/internal/security"
)

// DefaultGame はトラッキング対象ゲームの既定キー。
const DefaultGame = "cs2"

// Assembler は解決結果を正規化し、レーティング降順に並べる。
// 状態を持たないため複数のgoroutineから同時に使用できる。
type Assembler struct {
	game      string
	sanitizer security.ProfileSanitizer
}

// NewAssembler はAssemblerの新しいインスタンスを生成する。
// gameが空の場合はDefaultGameを使用する。
func NewAssembler(game string, sanitizer security.ProfileSanitizer) *Assembler {
	if game == "" {
		game = DefaultGame
	}
	return &Assembler{
		game:      game,
		sanitizer: sanitizer,
	}
}

// Game はトラッキング対象ゲームのキーを返す。
func (a *Assembler) Game() string {
	return a.game
}

// Normalize はプロフィールを表示用の行に変換する。
// トラッキング対象ゲームを持たないプロフィールはfalseを返す。
func (a *Assembler) Normalize(p *model.RawProfile) (model.LeaderboardEntry, bool) {
	stats, ok := p.Game(a.game)
	if !ok {
		return model.LeaderboardEntry{}, false
	}

	nickname := a.sanitizer.Nickname(p.Nickname)
	if nickname == "" {
		nickname = p.PlayerID
	}

	entry := model.LeaderboardEntry{
		ID:       p.PlayerID,
		Nickname: nickname,
		Avatar:   a.sanitizer.Avatar(p.Avatar),
	}
	if stats.Rating != nil {
		entry.Rating = *stats.Rating
		entry.Rated = true
	}
	if stats.Level != nil {
		entry.Level = *stats.Level
	}
	return entry, true
}

// Assemble は解決結果からスナップショットを組み立てる。
// 失敗した結果とトラッキング対象ゲームを持たないプロフィールは除外する。
// 並び順はレーティング降順で、同値の場合は入力順を保つ。レーティング値のない行は最後に並ぶ。
func (a *Assembler) Assemble(results []model.ProfileResult, now time.Time) *model.Snapshot {
	entries := make([]model.LeaderboardEntry, 0, len(results))
	for _, r := range results {
		if !r.OK() {
			continue
		}
		entry, ok := a.Normalize(r.Profile)
		if !ok {
			continue
		}
		entries = append(entries, entry)
	}

	SortEntries(entries)

	return &model.Snapshot{
		AssembledAt: now,
		Entries:     entries,
	}
}

// SortEntries はレーティング降順の安定ソートを行う。
func SortEntries(entries []model.LeaderboardEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Rated != b.Rated {
			return a.Rated
		}
		return a.Rating > b.Rating
	})
}
