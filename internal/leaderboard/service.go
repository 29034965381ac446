package leaderboard

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/eloboard/internal/metrics"
	"github.com/hitoshi/eloboard/internal/model"
)

// RosterReader はロスターの識別子一覧を返すインターフェース。
type RosterReader interface {
	List(ctx context.Context) ([]model.RosterMember, error)
}

// Resolver は識別子の集合を解決するインターフェース。
type Resolver interface {
	ResolveAll(ctx context.Context, ids []string, now time.Time) []model.ProfileResult
}

// RemoteStatus は外部レーティングサービスの認証情報の有無を返すインターフェース。
type RemoteStatus interface {
	Configured() bool
}

// Service はリーダーボードの取得と管理画面向けロスター一覧を提供する。
type Service struct {
	roster    RosterReader
	resolver  Resolver
	assembler *Assembler
	remote    RemoteStatus
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	roster RosterReader,
	resolver Resolver,
	assembler *Assembler,
	remote RemoteStatus,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{
		roster:    roster,
		resolver:  resolver,
		assembler: assembler,
		remote:    remote,
		metrics:   collector,
		logger:    logger,
	}
}

// GetLeaderboard はロスター全体を解決し、ランキング済みスナップショットを返す。
// 個々のプレイヤーの取得失敗はログに記録して除外し、エラーにはしない。
// 外部サービスの認証情報がない場合は Unconfigured、ロスターの読み込み失敗はそのまま返す。
func (s *Service) GetLeaderboard(ctx context.Context, now time.Time) (*model.Snapshot, error) {
	if !s.remote.Configured() {
		return nil, model.NewUnconfiguredError()
	}

	start := time.Now()

	ids, err := s.rosterIDs(ctx)
	if err != nil {
		return nil, err
	}

	results := s.resolver.ResolveAll(ctx, ids, now)

	var failed int
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}

	snapshot := s.assembler.Assemble(results, now)
	s.metrics.RecordSnapshot(len(snapshot.Entries), time.Since(start))

	if failed > 0 {
		s.logger.Warn("一部のプレイヤーを取得できなかったためリーダーボードから除外しました",
			slog.Int("roster_size", len(ids)),
			slog.Int("failed", failed),
			slog.Int("entry_count", len(snapshot.Entries)),
		)
	}

	return snapshot, nil
}

// ListRoster はロスターの全プレイヤーをロスター順で返す。
// 取得に失敗したプレイヤーやトラッキング対象ゲームを持たないプレイヤーも含める。
func (s *Service) ListRoster(ctx context.Context, now time.Time) ([]model.RosterPlayer, error) {
	if !s.remote.Configured() {
		return nil, model.NewUnconfiguredError()
	}

	ids, err := s.rosterIDs(ctx)
	if err != nil {
		return nil, err
	}

	results := s.resolver.ResolveAll(ctx, ids, now)

	players := make([]model.RosterPlayer, len(results))
	for i, r := range results {
		p := model.RosterPlayer{ID: r.PlayerID}
		if !r.OK() {
			p.Entry = model.LeaderboardEntry{ID: r.PlayerID}
			if r.Err != nil {
				p.Error = r.Err.Error()
			}
			players[i] = p
			continue
		}

		p.Resolved = true
		if entry, ok := s.assembler.Normalize(r.Profile); ok {
			p.HasGame = true
			p.Entry = entry
		} else {
			p.Entry = model.LeaderboardEntry{
				ID:       r.PlayerID,
				Nickname: s.assembler.sanitizer.Nickname(r.Profile.Nickname),
				Avatar:   s.assembler.sanitizer.Avatar(r.Profile.Avatar),
			}
		}
		players[i] = p
	}
	return players, nil
}

func (s *Service) rosterIDs(ctx context.Context) ([]string, error) {
	members, err := s.roster.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list roster: %w", err)
	}
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.PlayerID
	}
	return ids, nil
}
