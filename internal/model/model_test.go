package model

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestCacheEntry_FreshAt(t *testing.T) {
	fetched := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ttl := 30 * time.Second
	e := CacheEntry{Profile: &RawProfile{PlayerID: "a"}, FetchedAt: fetched}

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"取得直後", fetched, true},
		{"TTL直前", fetched.Add(ttl - time.Nanosecond), true},
		{"TTLちょうど", fetched.Add(ttl), false},
		{"TTL経過後", fetched.Add(time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.FreshAt(tt.now, ttl); got != tt.want {
				t.Errorf("FreshAt() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCacheEntry_FreshAt_NilProfile(t *testing.T) {
	e := CacheEntry{FetchedAt: time.Now()}
	if e.FreshAt(time.Now(), time.Hour) {
		t.Error("プロフィールのないエントリを新鮮と判定してはならない")
	}
}

func TestRawProfile_Game(t *testing.T) {
	var nilProfile *RawProfile
	if _, ok := nilProfile.Game("cs2"); ok {
		t.Error("nilプロフィールでゲームが見つかってはならない")
	}

	p := &RawProfile{Games: map[string]GameStats{"cs2": {}}}
	if _, ok := p.Game("cs2"); !ok {
		t.Error("cs2 が見つからない")
	}
	if _, ok := p.Game("dota2"); ok {
		t.Error("存在しないゲームが見つかってはならない")
	}
}

func TestAPIError_UnwrapsToSentinel(t *testing.T) {
	tests := []struct {
		name string
		err  *APIError
		want error
	}{
		{"NotFound", NewPlayerNotFoundError("x"), ErrNotFound},
		{"Remote", NewRemoteError("timeout"), ErrRemote},
		{"Unconfigured", NewUnconfiguredError(), ErrUnconfigured},
		{"InvalidInput", NewInvalidInputError("empty"), ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.want) {
				t.Errorf("errors.Is(%v, %v) = false", tt.err, tt.want)
			}
		})
	}
}

func TestFromError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"NotFound", fmt.Errorf("getByNickname ghost: %w", ErrNotFound), ErrCodePlayerNotFound},
		{"Remote", fmt.Errorf("getByID x: %w", ErrRemote), ErrCodeRemoteError},
		{"Unconfigured", ErrUnconfigured, ErrCodeUnconfigured},
		{"InvalidInput", fmt.Errorf("%w: too long", ErrInvalidInput), ErrCodeInvalidInput},
		{"APIErrorはそのまま", fmt.Errorf("wrap: %w", NewRemoteError("x")), ErrCodeRemoteError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromError(tt.err, "ghost")
			if got == nil {
				t.Fatal("FromError が nil を返した")
			}
			if got.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", got.Code, tt.wantCode)
			}
		})
	}
}

func TestFromError_Unclassified(t *testing.T) {
	if got := FromError(errors.New("db down"), ""); got != nil {
		t.Errorf("分類できないエラーは nil を返さなければならない: %+v", got)
	}
}
