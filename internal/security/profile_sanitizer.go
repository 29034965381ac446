// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ProfileSanitizer は外部レーティングサービスから受け取ったプロフィールの
// 表示用フィールドを無害化する。ニックネームはbluemondayのstrictポリシーで
// 全てのマークアップを除去したプレーンテキストにし、アバターURLは
// 絶対http(s) URLのみを通過させる。
package security

import (
	"html"
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// maxNicknameLength は表示するニックネームの最大文字数（rune単位）。
const maxNicknameLength = 64

// ProfileSanitizer はプロフィールの表示用フィールドを無害化するインターフェース。
type ProfileSanitizer interface {
	// Nickname はマークアップを除去したプレーンテキストを返す。
	// 除去後に空になった場合は空文字列を返す。
	Nickname(raw string) string
	// Avatar は絶対http(s) URLであればそのまま、そうでなければ代替URLを返す。
	Avatar(raw string) string
}

// profileSanitizer はProfileSanitizerの実装。
// bluemondayのポリシーはスレッドセーフなので共有して使う。
type profileSanitizer struct {
	policy   *bluemonday.Policy
	fallback string
}

// NewProfileSanitizer はProfileSanitizerの新しいインスタンスを生成する。
// fallbackAvatarはアバターが欠落または不正な場合に使うURL。
func NewProfileSanitizer(fallbackAvatar string) *profileSanitizer {
	return &profileSanitizer{
		policy:   bluemonday.StrictPolicy(),
		fallback: fallbackAvatar,
	}
}

// Nickname はマークアップを除去したプレーンテキストを返す。
func (s *profileSanitizer) Nickname(raw string) string {
	// strictポリシーは & < > をエスケープして返すため、プレーンテキストに戻す
	text := html.UnescapeString(s.policy.Sanitize(raw))
	text = strings.TrimSpace(text)

	if r := []rune(text); len(r) > maxNicknameLength {
		text = string(r[:maxNicknameLength])
	}
	return text
}

// Avatar は絶対http(s) URLであればそのまま、そうでなければ代替URLを返す。
func (s *profileSanitizer) Avatar(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return s.fallback
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return s.fallback
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return s.fallback
	}
	return u.String()
}
