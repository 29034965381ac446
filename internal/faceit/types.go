package faceit

import "github.com/hitoshi/eloboard/internal/model"

// playerResponse はFACEIT Data API v4 の /players レスポンスのうち使用する部分。
type playerResponse struct {
	PlayerID string                  `json:"player_id"`
	Nickname string                  `json:"nickname"`
	Avatar   string                  `json:"avatar"`
	Games    map[string]gameResponse `json:"games"`
}

type gameResponse struct {
	FaceitElo  *int `json:"faceit_elo"`
	SkillLevel *int `json:"skill_level"`
}

// toProfile はAPIレスポンスをmodel.RawProfileに変換する。
func (p *playerResponse) toProfile() *model.RawProfile {
	games := make(map[string]model.GameStats, len(p.Games))
	for key, g := range p.Games {
		games[key] = model.GameStats{
			Rating: g.FaceitElo,
			Level:  g.SkillLevel,
		}
	}
	return &model.RawProfile{
		PlayerID: p.PlayerID,
		Nickname: p.Nickname,
		Avatar:   p.Avatar,
		Games:    games,
	}
}
