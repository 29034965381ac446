// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/eloboard/internal/model"
)

// RosterRepository はロスター（追跡対象プレイヤー識別子の集合）の永続化インターフェース。
// 識別子はロスター内で一意。
type RosterRepository interface {
	// List は登録順にロスターの全メンバーを返す。
	List(ctx context.Context) ([]model.RosterMember, error)

	// Add は識別子を登録する。既に登録済みの場合は何もせずfalseを返す。
	Add(ctx context.Context, playerID string) (bool, error)

	// Remove は識別子を削除する。登録されていない場合は何もせずfalseを返す。
	Remove(ctx context.Context, playerID string) (bool, error)
}
