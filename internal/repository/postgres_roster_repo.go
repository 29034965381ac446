package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/eloboard/internal/model"
)

// PostgresRosterRepo はPostgreSQLを使用したロスターリポジトリ。
type PostgresRosterRepo struct {
	db *sql.DB
}

// NewPostgresRosterRepo はPostgresRosterRepoを生成する。
func NewPostgresRosterRepo(db *sql.DB) *PostgresRosterRepo {
	return &PostgresRosterRepo{db: db}
}

// List は登録順にロスターの全メンバーを返す。
func (r *PostgresRosterRepo) List(ctx context.Context) ([]model.RosterMember, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT player_id, created_at FROM roster_players ORDER BY seq ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("ロスターの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	members := make([]model.RosterMember, 0)
	for rows.Next() {
		var m model.RosterMember
		if err := rows.Scan(&m.PlayerID, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("ロスターのスキャンに失敗しました: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ロスターの走査に失敗しました: %w", err)
	}

	return members, nil
}

// Add は識別子を登録する。既に登録済みの場合は何もせずfalseを返す。
func (r *PostgresRosterRepo) Add(ctx context.Context, playerID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO roster_players (player_id) VALUES ($1)
		 ON CONFLICT (player_id) DO NOTHING`,
		playerID,
	)
	if err != nil {
		return false, fmt.Errorf("ロスターへの追加に失敗しました: %w", err)
	}
	return affected(res)
}

// Remove は識別子を削除する。登録されていない場合は何もせずfalseを返す。
func (r *PostgresRosterRepo) Remove(ctx context.Context, playerID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM roster_players WHERE player_id = $1`,
		playerID,
	)
	if err != nil {
		return false, fmt.Errorf("ロスターからの削除に失敗しました: %w", err)
	}
	return affected(res)
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("影響行数の取得に失敗しました: %w", err)
	}
	return n > 0, nil
}
