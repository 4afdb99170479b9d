package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// Groq exposes an OpenAI-compatible chat completions endpoint
	defaultGroqAPIURL    = "https://api.groq.com/openai/v1/chat/completions"
	defaultGroqModelName = "llama3-8b-8192"
	defaultHTTPTimeout   = 60 * time.Second
)

// --- OpenAI compatible wire structures ---

type openAIImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type openAIContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

// openAIRequestMessage.Content is either a string or []openAIContentPart.
type openAIRequestMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatCompletionRequest struct {
	Model       string                 `json:"model"`
	Messages    []openAIRequestMessage `json:"messages"`
	Temperature *float32               `json:"temperature,omitempty"`
	MaxTokens   *int                   `json:"max_tokens,omitempty"`
	TopP        *float32               `json:"top_p,omitempty"`
	Stop        []string               `json:"stop,omitempty"`
}

type chatCompletionChoice struct {
	Index   int `json:"index"`
	Message struct {
		Role    string  `json:"role"`
		Content *string `json:"content"`
	} `json:"message"`
	FinishReason string `json:"finish_reason"`
}

type chatCompletionUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatCompletionResponse struct {
	ID      string                 `json:"id"`
	Model   string                 `json:"model"`
	Choices []chatCompletionChoice `json:"choices"`
	Usage   *chatCompletionUsage   `json:"usage,omitempty"`
}

// APIError is returned for non-2xx responses. Status keeps the full status text
// (e.g. "429 Too Many Requests") so callers can classify retryable failures.
type APIError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chat completion request failed, status %s: %s", e.Status, e.Body)
}

// ChatModelConfig 聊天模型配置
type ChatModelConfig struct {
	APIKey      string
	APIURL      string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
	HTTPClient  *http.Client
	Logger      *zerolog.Logger
}

// ChatModel implements eino's model.BaseChatModel against an OpenAI-compatible
// chat completions API (Groq by default). Messages carrying MultiContent are sent
// as content-part arrays, which is how image inputs reach vision models.
type ChatModel struct {
	apiKey      string
	apiURL      string
	modelName   string
	temperature *float32
	maxTokens   *int
	httpClient  *http.Client
	logger      zerolog.Logger
}

// NewChatModel 创建一个新的 OpenAI 兼容聊天模型
func NewChatModel(cfg ChatModelConfig) (*ChatModel, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("API key must not be empty")
	}

	m := &ChatModel{
		apiKey:     cfg.APIKey,
		apiURL:     cfg.APIURL,
		modelName:  cfg.Model,
		httpClient: cfg.HTTPClient,
		logger:     log.Logger,
	}
	if strings.TrimSpace(m.apiURL) == "" {
		m.apiURL = defaultGroqAPIURL
	}
	if strings.TrimSpace(m.modelName) == "" {
		m.modelName = defaultGroqModelName
	}
	if m.httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultHTTPTimeout
		}
		m.httpClient = &http.Client{Timeout: timeout}
	}
	if cfg.Temperature > 0 {
		t := cfg.Temperature
		m.temperature = &t
	}
	if cfg.MaxTokens > 0 {
		mt := cfg.MaxTokens
		m.maxTokens = &mt
	}
	if cfg.Logger != nil {
		m.logger = *cfg.Logger
	}

	m.logger.Info().Str("api_url", m.apiURL).Str("model", m.modelName).Msg("chat model client initialized")
	return m, nil
}

// Generate implements model.BaseChatModel. Per-call options (model, temperature,
// max tokens) override the client defaults.
func (c *ChatModel) Generate(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	modelName := c.modelName
	options := model.GetCommonOptions(&model.Options{
		Model:       &modelName,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}, opts...)

	reqPayload := chatCompletionRequest{
		Messages:    toOpenAIMessages(messages),
		Temperature: options.Temperature,
		MaxTokens:   options.MaxTokens,
		TopP:        options.TopP,
		Stop:        options.Stop,
	}
	if options.Model != nil && *options.Model != "" {
		reqPayload.Model = *options.Model
	} else {
		reqPayload.Model = c.modelName
	}

	jsonData, err := json.Marshal(reqPayload)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create http request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send chat request: %w", err)
	}
	defer httpResp.Body.Close()

	bodyBytes, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read chat response: %w", err)
	}

	c.logger.Debug().
		Str("model", reqPayload.Model).
		Int("status", httpResp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Int("messages", len(messages)).
		Msg("chat completion returned")

	if httpResp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: httpResp.StatusCode, Status: httpResp.Status, Body: string(bodyBytes)}
	}

	var completion chatCompletionResponse
	if err := json.Unmarshal(bodyBytes, &completion); err != nil {
		return nil, fmt.Errorf("unmarshal chat response: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("chat response has no choices: %s", string(bodyBytes))
	}

	choice := completion.Choices[0]
	content := ""
	if choice.Message.Content != nil {
		content = *choice.Message.Content
	}

	result := schema.AssistantMessage(content, nil)
	result.ResponseMeta = &schema.ResponseMeta{FinishReason: choice.FinishReason}
	if completion.Usage != nil {
		result.ResponseMeta.Usage = &schema.TokenUsage{
			PromptTokens:     completion.Usage.PromptTokens,
			CompletionTokens: completion.Usage.CompletionTokens,
			TotalTokens:      completion.Usage.TotalTokens,
		}
	}
	return result, nil
}

// Stream is not supported by this client.
func (c *ChatModel) Stream(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, fmt.Errorf("streaming is not supported by the chat completions client")
}

// ModelName returns the default model used when no per-call override is given.
func (c *ChatModel) ModelName() string {
	return c.modelName
}

var _ model.BaseChatModel = (*ChatModel)(nil)

func toOpenAIMessages(messages []*schema.Message) []openAIRequestMessage {
	out := make([]openAIRequestMessage, 0, len(messages))
	for _, msg := range messages {
		if msg == nil {
			continue
		}
		role := string(msg.Role)
		if len(msg.MultiContent) == 0 {
			out = append(out, openAIRequestMessage{Role: role, Content: msg.Content})
			continue
		}

		parts := make([]openAIContentPart, 0, len(msg.MultiContent)+1)
		if msg.Content != "" {
			parts = append(parts, openAIContentPart{Type: "text", Text: msg.Content})
		}
		for _, part := range msg.MultiContent {
			switch part.Type {
			case schema.ChatMessagePartTypeText:
				parts = append(parts, openAIContentPart{Type: "text", Text: part.Text})
			case schema.ChatMessagePartTypeImageURL:
				if part.ImageURL == nil {
					continue
				}
				parts = append(parts, openAIContentPart{
					Type:     "image_url",
					ImageURL: &openAIImageURL{URL: part.ImageURL.URL, Detail: string(part.ImageURL.Detail)},
				})
			}
		}
		out = append(out, openAIRequestMessage{Role: role, Content: parts})
	}
	return out
}
