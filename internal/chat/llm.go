package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hitoshi/tradedesk/internal/model"
	"github.com/hitoshi/tradedesk/internal/resilience"
)

const (
	// completionsPath はOpenAI互換APIのチャット補完エンドポイント。
	completionsPath = "/chat/completions"
	// maxCompletionResponseSize はLLM応答として読み取る最大バイト数。
	maxCompletionResponseSize = 1 << 20
	defaultTemperature        = 0.3
	defaultMaxTokens          = 800
)

// ErrEmptyCompletion はLLMが応答本文を返さなかった場合のエラー。
var ErrEmptyCompletion = errors.New("LLMの応答が空です")

// Completer は会話に対するアシスタントの返答を1件生成するインターフェース。
type Completer interface {
	Complete(ctx context.Context, messages []model.ChatMessage) (string, error)
}

// OpenAIClient はOpenAI互換のチャット補完APIのクライアント。
// 429と5xx、通信エラーはリトライ可能、それ以外の4xxはresilience.Permanentとして返す。
type OpenAIClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

// NewOpenAIClient はOpenAIClientを生成する。baseURLは /chat/completions を含まない。
func NewOpenAIClient(httpClient *http.Client, baseURL, apiKey, model string) *OpenAIClient {
	return &OpenAIClient{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
	}
}

type completionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model       string              `json:"model"`
	Messages    []completionMessage `json:"messages"`
	Temperature float64             `json:"temperature"`
	MaxTokens   int                 `json:"max_tokens"`
}

type completionResponse struct {
	Choices []struct {
		Message completionMessage `json:"message"`
	} `json:"choices"`
}

// Complete はメッセージ列を送信し、最初の選択肢の本文を返す。
func (c *OpenAIClient) Complete(ctx context.Context, messages []model.ChatMessage) (string, error) {
	reqBody := completionRequest{
		Model:       c.model,
		Messages:    make([]completionMessage, len(messages)),
		Temperature: defaultTemperature,
		MaxTokens:   defaultMaxTokens,
	}
	for i, m := range messages {
		reqBody.Messages[i] = completionMessage{Role: string(m.Role), Content: m.Content}
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", resilience.Permanent(fmt.Errorf("リクエストのエンコードに失敗しました: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+completionsPath, bytes.NewReader(payload))
	if err != nil {
		return "", resilience.Permanent(fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("LLM APIの呼び出しに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if err := resilience.CheckResponse("chat completion", resp); err != nil {
		return "", err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCompletionResponseSize))
	if err != nil {
		return "", fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	var parsed completionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	if len(parsed.Choices) == 0 || strings.TrimSpace(parsed.Choices[0].Message.Content) == "" {
		return "", ErrEmptyCompletion
	}

	return parsed.Choices[0].Message.Content, nil
}
