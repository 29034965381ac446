package model

import "time"

// RosterMember はロスターに登録されたプレイヤー識別子を表す。
type RosterMember struct {
	PlayerID  string
	CreatedAt time.Time
}
