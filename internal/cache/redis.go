package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/eloboard/internal/model"
)

// RedisCache はRedisを使用した共有プロフィールキャッシュ。
// serveとworkerの複数プロセスで同じキャッシュを参照するために使用する。
// Redisの障害はキャッシュミスとして扱い、呼び出し元には伝播しない。
type RedisCache struct {
	rdb    redis.Cmdable
	logger *slog.Logger
	prefix string
	ttl    time.Duration // Redisキーの有効期限。0の場合は期限なし
}

// RedisOption はRedisCacheのオプション。
type RedisOption func(*RedisCache)

// WithKeyPrefix はキーのプレフィックスを設定する。
func WithKeyPrefix(prefix string) RedisOption {
	return func(c *RedisCache) {
		c.prefix = strings.Trim(prefix, ":")
	}
}

// WithKeyExpiry はRedisキーの有効期限を設定する。
// 鮮度判定とは独立しており、古いエントリの掃除のみに使う。
func WithKeyExpiry(d time.Duration) RedisOption {
	return func(c *RedisCache) { c.ttl = d }
}

// NewRedisCache はRedisCacheを生成する。
func NewRedisCache(rdb redis.Cmdable, logger *slog.Logger, opts ...RedisOption) *RedisCache {
	c := &RedisCache{
		rdb:    rdb,
		logger: logger,
		prefix: "eloboard:profile",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// redisEntry はRedisに保存するJSON表現。
type redisEntry struct {
	PlayerID  string                `json:"player_id"`
	Nickname  string                `json:"nickname"`
	Avatar    string                `json:"avatar"`
	Games     map[string]redisStats `json:"games"`
	FetchedAt time.Time             `json:"fetched_at"`
}

type redisStats struct {
	Rating *int `json:"rating,omitempty"`
	Level  *int `json:"level,omitempty"`
}

func (c *RedisCache) key(playerID string) string {
	return c.prefix + ":" + playerID
}

// Get は識別子のエントリを返す。存在しない場合やRedis障害時はfalse。
func (c *RedisCache) Get(ctx context.Context, playerID string) (model.CacheEntry, bool) {
	raw, err := c.rdb.Get(ctx, c.key(playerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.CacheEntry{}, false
	}
	if err != nil {
		c.logger.Warn("プロフィールキャッシュの読み込みに失敗しました",
			slog.String("player_id", playerID),
			slog.String("error", err.Error()),
		)
		return model.CacheEntry{}, false
	}

	entry, err := decodeEntry(raw)
	if err != nil {
		c.logger.Warn("プロフィールキャッシュのデコードに失敗しました",
			slog.String("player_id", playerID),
			slog.String("error", err.Error()),
		)
		return model.CacheEntry{}, false
	}
	return entry, true
}

// Put は識別子のエントリを丸ごと置き換える。
func (c *RedisCache) Put(ctx context.Context, playerID string, profile *model.RawProfile, now time.Time) {
	if profile == nil {
		return
	}

	raw, err := encodeEntry(model.CacheEntry{Profile: profile, FetchedAt: now})
	if err != nil {
		c.logger.Warn("プロフィールキャッシュのエンコードに失敗しました",
			slog.String("player_id", playerID),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := c.rdb.Set(ctx, c.key(playerID), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("プロフィールキャッシュの書き込みに失敗しました",
			slog.String("player_id", playerID),
			slog.String("error", err.Error()),
		)
	}
}

func encodeEntry(e model.CacheEntry) ([]byte, error) {
	games := make(map[string]redisStats, len(e.Profile.Games))
	for k, g := range e.Profile.Games {
		games[k] = redisStats{Rating: g.Rating, Level: g.Level}
	}
	return json.Marshal(redisEntry{
		PlayerID:  e.Profile.PlayerID,
		Nickname:  e.Profile.Nickname,
		Avatar:    e.Profile.Avatar,
		Games:     games,
		FetchedAt: e.FetchedAt,
	})
}

func decodeEntry(raw []byte) (model.CacheEntry, error) {
	var re redisEntry
	if err := json.Unmarshal(raw, &re); err != nil {
		return model.CacheEntry{}, err
	}
	games := make(map[string]model.GameStats, len(re.Games))
	for k, g := range re.Games {
		games[k] = model.GameStats{Rating: g.Rating, Level: g.Level}
	}
	return model.CacheEntry{
		Profile: &model.RawProfile{
			PlayerID: re.PlayerID,
			Nickname: re.Nickname,
			Avatar:   re.Avatar,
			Games:    games,
		},
		FetchedAt: re.FetchedAt,
	}, nil
}
