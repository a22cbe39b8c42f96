package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/liliang-cn/chatgalaxy/internal/config"
	"github.com/liliang-cn/chatgalaxy/internal/domain"
)

const retryBackoff = 500 * time.Millisecond

// Client is a thin wrapper over an OpenAI-compatible chat completion API
type Client struct {
	api    *openai.Client
	cfg    config.AIConfig
	logger *zap.Logger
}

// NewClient creates a new AI client
func NewClient(cfg config.AIConfig, logger *zap.Logger) *Client {
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	apiCfg.BaseURL = cfg.BaseURL
	apiCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout()}

	return &Client{
		api:    openai.NewClientWithConfig(apiCfg),
		cfg:    cfg,
		logger: logger,
	}
}

func (c *Client) buildRequest(messages []domain.ContextMessage, temperature float32, maxTokens int) openai.ChatCompletionRequest {
	reqMessages := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		reqMessages = append(reqMessages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	if temperature == 0 {
		temperature = c.cfg.Temperature
	}
	if maxTokens == 0 {
		maxTokens = c.cfg.MaxTokens
	}

	return openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    reqMessages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
}

// Chat requests one complete reply and returns the content with its token usage
func (c *Client) Chat(ctx context.Context, messages []domain.ContextMessage, temperature float32, maxTokens int) (string, int, error) {
	req := c.buildRequest(messages, temperature, maxTokens)

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", 0, ctx.Err()
			case <-time.After(time.Duration(attempt) * retryBackoff):
			}
		}

		resp, err := c.api.CreateChatCompletion(ctx, req)
		if err != nil {
			lastErr = err
			c.logger.Warn("chat completion failed",
				zap.Int("attempt", attempt+1),
				zap.String("model", c.cfg.Model),
				zap.Error(err))
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = errors.New("completion returned no choices")
			continue
		}

		return resp.Choices[0].Message.Content, resp.Usage.TotalTokens, nil
	}

	return "", 0, fmt.Errorf("%w: %v", domain.ErrAIUnavailable, lastErr)
}

// ChatStream requests a streamed reply; the channel carries content fragments
// followed by a terminal chunk with IsComplete set and the total token usage.
func (c *Client) ChatStream(ctx context.Context, messages []domain.ContextMessage, temperature float32, maxTokens int) (<-chan domain.StreamChunk, error) {
	req := c.buildRequest(messages, temperature, maxTokens)
	req.Stream = true
	req.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

	var stream *openai.ChatCompletionStream
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * retryBackoff):
			}
		}

		s, err := c.api.CreateChatCompletionStream(ctx, req)
		if err != nil {
			lastErr = err
			c.logger.Warn("chat stream failed to start",
				zap.Int("attempt", attempt+1),
				zap.String("model", c.cfg.Model),
				zap.Error(err))
			continue
		}
		stream = s
		break
	}
	if stream == nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrAIUnavailable, lastErr)
	}

	ch := make(chan domain.StreamChunk, 100)
	go func() {
		defer close(ch)
		defer stream.Close()

		tokens := 0
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				ch <- domain.StreamChunk{IsComplete: true, TokensUsed: tokens}
				return
			}
			if err != nil {
				c.logger.Warn("chat stream aborted", zap.Error(err))
				ch <- domain.StreamChunk{Err: fmt.Errorf("%w: %v", domain.ErrAIUnavailable, err)}
				return
			}

			if resp.Usage != nil {
				tokens = resp.Usage.TotalTokens
			}
			if len(resp.Choices) == 0 {
				continue
			}
			if delta := resp.Choices[0].Delta.Content; delta != "" {
				ch <- domain.StreamChunk{Content: delta}
			}
		}
	}()

	return ch, nil
}
