// Package identity は外部IDプロバイダーでのアクセストークン検証を提供する。
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/tradedesk/internal/model"
)

// userPath はトークンからユーザーを解決するエンドポイントのパス。
const userPath = "/auth/v1/user"

// maxUserResponseSize はユーザー応答として読み取る最大バイト数。
const maxUserResponseSize = 64 * 1024

// ErrInvalidToken はアクセストークンが無効または期限切れの場合に返される。
var ErrInvalidToken = errors.New("アクセストークンが無効です")

// Resolver はアクセストークンから認証済みユーザーを解決するインターフェース。
type Resolver interface {
	ResolveUser(ctx context.Context, accessToken string) (*model.Identity, error)
}

// Client はIDプロバイダーのユーザーエンドポイントを呼び出すクライアント。
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *slog.Logger
}

// NewClient はClientの新しいインスタンスを生成する。
// baseURLは末尾のスラッシュを含まない。
func NewClient(httpClient *http.Client, baseURL, apiKey string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		logger:     logger,
	}
}

// userResponse はユーザーエンドポイントの応答のうち使用する項目。
type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// ResolveUser はアクセストークンを検証し、対応するユーザーを返す。
// 401/403の場合はErrInvalidTokenを返す。
func (c *Client) ResolveUser(ctx context.Context, accessToken string) (*model.Identity, error) {
	if accessToken == "" {
		return nil, ErrInvalidToken
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+userPath, nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("IDプロバイダーの呼び出しに失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("IDプロバイダーの呼び出しに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrInvalidToken
	case resp.StatusCode != http.StatusOK:
		c.logger.Error("IDプロバイダーがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, fmt.Errorf("IDプロバイダーがステータス %d を返しました", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUserResponseSize))
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	var user userResponse
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	if user.ID == "" {
		return nil, ErrInvalidToken
	}

	return &model.Identity{UserID: user.ID, Email: user.Email}, nil
}
