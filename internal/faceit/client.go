// Package faceit はFACEIT Data APIのクライアントを提供する。
// プレイヤーIDまたはニックネームで1件ずつプロフィールを取得する。
package faceit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/eloboard/internal/model"
)

const (
	// DefaultBaseURL はFACEIT Data API v4のベースURL。
	DefaultBaseURL = "https://open.faceit.com/data/v4"
	// maxResponseSize はレスポンスボディの最大読み取りサイズ。
	maxResponseSize = 1 << 20
)

// ClientConfig はClientの設定パラメータ。
type ClientConfig struct {
	// BaseURL はAPIのベースURL（デフォルト: DefaultBaseURL）。
	BaseURL string
	// APIKey はBearer認証に使用するキー。空の場合は全呼び出しがErrUnconfiguredを返す。
	APIKey string
	// Timeout は1回の呼び出しの上限時間（デフォルト: 5秒）。
	Timeout time.Duration
	// RateLimit は送信レート（req/sec）。0以下の場合は制限しない。
	RateLimit float64
	// RateBurst はトークンバケットのバーストサイズ。
	RateBurst int
}

// Client はFACEIT Data APIのクライアント。
// 1呼び出しにつき1回だけHTTPリクエストを送信し、リトライは行わない。
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
	baseURL    string
	apiKey     string
	timeout    time.Duration
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &Client{
		httpClient: httpClient,
		limiter:    limiter,
		logger:     logger,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		timeout:    cfg.Timeout,
	}
}

// Configured はAPIキーが設定されているかを返す。
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// FetchByID はプレイヤーIDでプロフィールを取得する。
// GET /players/{id}
func (c *Client) FetchByID(ctx context.Context, playerID string) (*model.RawProfile, error) {
	reqURL := c.baseURL + "/players/" + url.PathEscape(playerID)
	return c.getPlayer(ctx, "getByID", playerID, reqURL)
}

// FetchByNickname はニックネームでプロフィールを取得する。
// 返されたプロフィールのPlayerIDがロスターに保存する識別子となる。
// GET /players?nickname=...
func (c *Client) FetchByNickname(ctx context.Context, nickname string) (*model.RawProfile, error) {
	q := url.Values{}
	q.Set("nickname", nickname)
	reqURL := c.baseURL + "/players?" + q.Encode()
	return c.getPlayer(ctx, "getByNickname", nickname, reqURL)
}

// getPlayer は1回のHTTPリクエストを実行し、結果を分類して返す。
func (c *Client) getPlayer(ctx context.Context, op, key, reqURL string) (*model.RawProfile, error) {
	if !c.Configured() {
		return nil, wrapError(op, key, 0, model.ErrUnconfigured)
	}

	// 送信レートの制御（待機中のキャンセルは通信失敗として扱う）
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, wrapError(op, key, 0, fmt.Errorf("%w: rate limit wait: %v", model.ErrRemote, err))
	}

	// 1呼び出しごとの上限時間
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, wrapError(op, key, 0, fmt.Errorf("%w: リクエストの作成に失敗しました: %v", model.ErrRemote, err))
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Eloboard/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("FACEIT APIの呼び出しに失敗しました",
			slog.String("op", op),
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return nil, wrapError(op, key, 0, fmt.Errorf("%w: %v", model.ErrRemote, err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// 以下で処理を続行
	case resp.StatusCode == http.StatusNotFound:
		return nil, wrapError(op, key, resp.StatusCode, model.ErrNotFound)
	case resp.StatusCode == http.StatusTooManyRequests:
		c.logger.Warn("FACEIT APIのレート制限に達しました",
			slog.String("op", op),
			slog.String("key", key),
			slog.String("retry_after", resp.Header.Get("Retry-After")),
		)
		return nil, wrapError(op, key, resp.StatusCode, ErrRateLimited)
	default:
		c.logger.Warn("FACEIT APIがエラーステータスを返しました",
			slog.String("op", op),
			slog.String("key", key),
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, wrapError(op, key, resp.StatusCode, fmt.Errorf("%w: unexpected status %d", model.ErrRemote, resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, wrapError(op, key, resp.StatusCode, fmt.Errorf("%w: レスポンスボディの読み取りに失敗しました: %v", model.ErrRemote, err))
	}

	var pr playerResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		c.logger.Error("FACEIT APIのレスポンスのパースに失敗しました",
			slog.String("op", op),
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return nil, wrapError(op, key, resp.StatusCode, fmt.Errorf("%w: レスポンスJSONのパースに失敗しました: %v", model.ErrRemote, err))
	}
	if pr.PlayerID == "" {
		return nil, wrapError(op, key, resp.StatusCode, fmt.Errorf("%w: player_id がレスポンスに含まれていません", model.ErrRemote))
	}

	return pr.toProfile(), nil
}

