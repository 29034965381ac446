package faceit

import (
	"fmt"

	"github.com/hitoshi/eloboard/internal/model"
)

// ErrRateLimited はFACEIT APIが429を返したことを示す。
// model.ErrRemote の一種として扱う。
var ErrRateLimited = fmt.Errorf("%w: rate limited by server", model.ErrRemote)

// Error は操作名と対象キーを付与したFACEIT APIエラー。
// Err は model.ErrNotFound / model.ErrRemote / model.ErrUnconfigured のいずれかをラップする。
type Error struct {
	Op     string // 操作: "getByID", "getByNickname"
	Key    string // プレイヤーIDまたはニックネーム
	Status int    // HTTPステータス（通信前の失敗は0）
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("faceit %s [%s] status %d: %v", e.Op, e.Key, e.Status, e.Err)
	}
	return fmt.Sprintf("faceit %s [%s]: %v", e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func wrapError(op, key string, status int, err error) error {
	return &Error{Op: op, Key: key, Status: status, Err: err}
}
