// Package roster は管理者によるロスターの追加・削除を提供する。
// 追加時は入力を外部レーティングサービスで検証し、解決された識別子のみを保存する。
package roster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/hitoshi/eloboard/internal/model"
	"github.com/hitoshi/eloboard/internal/repository"
)

// PlayerLookup は外部レーティングサービスでプレイヤーを検索するインターフェース。
type PlayerLookup interface {
	FetchByID(ctx context.Context, playerID string) (*model.RawProfile, error)
	FetchByNickname(ctx context.Context, nickname string) (*model.RawProfile, error)
}

// addInput は追加操作の入力。ニックネームまたはプレイヤーID。
type addInput struct {
	Input string `validate:"required,max=64,printascii,excludesall=/?#"`
}

// removeInput は削除操作の入力。
type removeInput struct {
	PlayerID string `validate:"required,max=64"`
}

// Service はロスターの変更操作を提供する。
// キャッシュや並列制御は扱わない。
type Service struct {
	repo     repository.RosterRepository
	lookup   PlayerLookup
	validate *validator.Validate
	logger   *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.RosterRepository, lookup PlayerLookup, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		lookup:   lookup,
		validate: validator.New(),
		logger:   logger,
	}
}

// Add はニックネームまたはプレイヤーIDを外部サービスで解決し、その識別子をロスターに追加する。
// 既に登録済みの識別子であれば何も変更せずに同じ識別子を返す。
// 戻り値のboolはロスターが変更されたかどうか。
func (s *Service) Add(ctx context.Context, input string) (string, bool, error) {
	in := addInput{Input: strings.TrimSpace(input)}
	if err := s.validate.Struct(in); err != nil {
		return "", false, model.NewInvalidInputError(describeValidation(err))
	}

	profile, err := s.resolve(ctx, in.Input)
	if err != nil {
		if apiErr := model.FromError(err, in.Input); apiErr != nil {
			return "", false, apiErr
		}
		return "", false, fmt.Errorf("resolve %q: %w", in.Input, err)
	}

	added, err := s.repo.Add(ctx, profile.PlayerID)
	if err != nil {
		return "", false, fmt.Errorf("add %s: %w", profile.PlayerID, err)
	}

	if added {
		s.logger.Info("ロスターにプレイヤーを追加しました",
			slog.String("player_id", profile.PlayerID),
			slog.String("nickname", profile.Nickname),
		)
	} else {
		s.logger.Info("プレイヤーは既にロスターに登録されています",
			slog.String("player_id", profile.PlayerID),
		)
	}

	return profile.PlayerID, added, nil
}

// Remove は識別子をロスターから削除する。登録されていない識別子でも成功する。
func (s *Service) Remove(ctx context.Context, playerID string) error {
	in := removeInput{PlayerID: strings.TrimSpace(playerID)}
	if err := s.validate.Struct(in); err != nil {
		return model.NewInvalidInputError(describeValidation(err))
	}

	removed, err := s.repo.Remove(ctx, in.PlayerID)
	if err != nil {
		return fmt.Errorf("remove %s: %w", in.PlayerID, err)
	}

	if removed {
		s.logger.Info("ロスターからプレイヤーを削除しました",
			slog.String("player_id", in.PlayerID),
		)
	}
	return nil
}

// canonicalUUIDLength はハイフン区切りのUUID文字列の長さ。
const canonicalUUIDLength = 36

// isPlayerID はinputがハイフン区切りの標準形UUIDかを返す。
// uuid.Parseが受け付ける波括弧やurn:uuid:の形式は識別子として扱わない。
func isPlayerID(input string) bool {
	if len(input) != canonicalUUIDLength {
		return false
	}
	return uuid.Validate(input) == nil
}

// resolve は標準形UUIDの入力を識別子として、それ以外をニックネームとして検索する。
func (s *Service) resolve(ctx context.Context, input string) (*model.RawProfile, error) {
	var (
		profile *model.RawProfile
		err     error
	)
	if isPlayerID(input) {
		profile, err = s.lookup.FetchByID(ctx, input)
	} else {
		profile, err = s.lookup.FetchByNickname(ctx, input)
	}
	if err != nil {
		return nil, err
	}
	if profile == nil || profile.PlayerID == "" {
		return nil, fmt.Errorf("%w: lookup returned no identifier", model.ErrRemote)
	}
	return profile, nil
}

// describeValidation はバリデーションエラーを利用者向けの短い説明に変換する。
func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	switch e := verrs[0]; e.Tag() {
	case "required":
		return "入力が空です"
	case "max":
		return fmt.Sprintf("%s文字以内で入力してください", e.Param())
	case "printascii":
		return "半角英数字と記号のみ使用できます"
	case "excludesall":
		return "使用できない文字（/ ? #）が含まれています"
	default:
		return "形式が正しくありません"
	}
}
