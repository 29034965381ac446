package model

import "time"

// GameStats は1タイトル分のレーティング情報を表す。
// 外部サービスが値を返さなかった項目はnil。
type GameStats struct {
	Rating *int // faceit_elo
	Level  *int // skill_level
}

// RawProfile は外部レーティングサービスから取得したプレイヤー情報。
// 永続化はせず、プロフィールキャッシュにのみ保持する。
type RawProfile struct {
	PlayerID string
	Nickname string
	Avatar   string
	Games    map[string]GameStats // ゲームキー（"cs2" 等） → レーティング
}

// Game は指定ゲームのレーティング情報を返す。
func (p *RawProfile) Game(key string) (GameStats, bool) {
	if p == nil || p.Games == nil {
		return GameStats{}, false
	}
	g, ok := p.Games[key]
	return g, ok
}

// CacheEntry はプロフィールキャッシュの1エントリ。
// 更新時は丸ごと置き換え、部分更新はしない。
type CacheEntry struct {
	Profile   *RawProfile
	FetchedAt time.Time
}

// FreshAt はnow時点でエントリが鮮度期間内かを返す。
// now - FetchedAt < ttl の場合のみtrue。
func (e CacheEntry) FreshAt(now time.Time, ttl time.Duration) bool {
	if e.Profile == nil {
		return false
	}
	return now.Sub(e.FetchedAt) < ttl
}

// ProfileResult は1識別子分の解決結果。
// Profile と Err のどちらか一方のみが設定される。
type ProfileResult struct {
	PlayerID string
	Profile  *RawProfile
	Err      error
	Cached   bool // キャッシュから返された場合true
}

// OK は解決に成功したかを返す。
func (r ProfileResult) OK() bool {
	return r.Err == nil && r.Profile != nil
}

// LeaderboardEntry は表示用に正規化されたプレイヤー行。
// Rated=falseはトラッキング対象ゲームにレーティング値がないことを示す。
type LeaderboardEntry struct {
	ID       string
	Nickname string
	Avatar   string
	Rating   int
	Level    int
	Rated    bool
}

// Snapshot は組み立て済みのリーダーボード。生成後は変更しない。
type Snapshot struct {
	AssembledAt time.Time
	Entries     []LeaderboardEntry // レーティング降順
}

// RosterPlayer は管理画面向けのロスター1行。
// 取得に失敗したプレイヤーもResolved=falseで含める。
type RosterPlayer struct {
	ID       string
	Resolved bool
	HasGame  bool
	Entry    LeaderboardEntry
	Error    string
}
