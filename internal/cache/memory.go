// Package cache はプレイヤープロフィールの時間制限付きキャッシュを提供する。
//
// キャッシュは識別子ごとに最後に取得成功したプロフィールと取得時刻を保持する。
// 鮮度の判定（now - FetchedAt < TTL）は呼び出し側が model.CacheEntry.FreshAt で行う。
// 能動的な追い出しは行わず、同じ識別子への Put で上書きされる。
// 取得失敗はキャッシュしない。
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/hitoshi/eloboard/internal/model"
)

// MemoryCache はプロセス内のプロフィールキャッシュ。
// ロックはマップ操作の間だけ保持し、外部呼び出しをまたいで保持しない。
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]model.CacheEntry
}

// NewMemoryCache は空のMemoryCacheを生成する。
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]model.CacheEntry),
	}
}

// Get は識別子のエントリを返す。存在しない場合はfalse。
func (c *MemoryCache) Get(_ context.Context, playerID string) (model.CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[playerID]
	return e, ok
}

// Put は識別子のエントリを丸ごと置き換える。
func (c *MemoryCache) Put(_ context.Context, playerID string, profile *model.RawProfile, now time.Time) {
	if profile == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[playerID] = model.CacheEntry{
		Profile:   profile,
		FetchedAt: now,
	}
}

// Len は保持しているエントリ数を返す。
// テストおよびメトリクス用。
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
