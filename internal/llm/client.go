// Package llm talks to a chat-completions compatible language model that
// cleans up transcripts and summarizes meeting text.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/confdesk/backend/internal/upstream"
)

const (
	completionsPath = "/chat/completions"
	roleUser        = "user"
)

// ErrEmptyCompletion is returned when the model answers without content.
var ErrEmptyCompletion = errors.New("llm: empty completion")

const improvePrompt = `Fix every mistake in the text and improve its punctuation. DO NOT CHANGE THE STRUCTURE OF THE TEXT.
Text:
%s`

const topicsPrompt = `List ALL main questions of the meeting mentioned in the text, strictly in the following format, without extra numbering:
[list of main questions].
Text:
%s`

const summaryPrompt = `Generate a short title (3-5 words) and a description (1 sentence) for the meeting text.
Output format, strictly:
Title: [title here]
Description: [description here]
Requirements:
1. Only facts from the text, no interpretation
2. Use the key discussion topics
3. No extra symbols (*, - and so on)
4. Do not include the original text in the answer
5. Keep the language of the original
The text:
%s`

// Config configures the client.
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client calls the completions endpoint.
type Client struct {
	baseURL  string
	apiKey   string
	model    string
	upstream *upstream.Client
	logger   *zap.Logger
}

// Summary is the parsed answer of Summarize.
type Summary struct {
	Title       string
	Description string
	Raw         string
}

// NewClient validates the configuration and builds a client.
func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("llm: base url is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("llm: model is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		upstream: upstream.New(upstream.Config{
			Name:       "llm",
			HTTPClient: cfg.HTTPClient,
			Logger:     logger,
		}),
		logger: logger,
	}, nil
}

// ImproveText fixes spelling and punctuation of a raw transcript.
func (c *Client) ImproveText(ctx context.Context, text string) (string, error) {
	return c.complete(ctx, fmt.Sprintf(improvePrompt, text))
}

// ExtractTopics lists the main questions raised in a meeting text.
func (c *Client) ExtractTopics(ctx context.Context, text string) (string, error) {
	return c.complete(ctx, fmt.Sprintf(topicsPrompt, text))
}

// Summarize asks for a title and a one sentence description.
func (c *Client) Summarize(ctx context.Context, text string) (Summary, error) {
	answer, err := c.complete(ctx, fmt.Sprintf(summaryPrompt, text))
	if err != nil {
		return Summary{}, err
	}
	return ParseSummary(answer), nil
}

// ParseSummary extracts the Title and Description lines of a model answer.
// Missing lines leave the corresponding field empty.
func ParseSummary(answer string) Summary {
	summary := Summary{Raw: answer}
	for _, line := range strings.Split(answer, "\n") {
		line = strings.TrimSpace(line)
		if value, ok := cutLabel(line, "title:", "заголовок:"); ok && summary.Title == "" {
			summary.Title = value
			continue
		}
		if value, ok := cutLabel(line, "description:", "описание:"); ok && summary.Description == "" {
			summary.Description = value
		}
	}
	return summary
}

func cutLabel(line string, labels ...string) (string, bool) {
	lower := strings.ToLower(line)
	for _, label := range labels {
		if strings.HasPrefix(lower, label) {
			return strings.TrimSpace(line[len(label):]), true
		}
	}
	return "", false
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: []chatMessage{{Role: roleUser, Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("llm: encode request: %w", err)
	}

	_, body, err := c.upstream.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+completionsPath, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		request.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			request.Header.Set("Authorization", "Bearer "+c.apiKey)
		}
		return request, nil
	})
	if err != nil {
		return "", err
	}

	var decoded chatResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("llm: decode response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	content := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyCompletion
	}
	c.logger.Debug("completion received", zap.Int("prompt_bytes", len(prompt)), zap.Int("answer_bytes", len(content)))
	return content, nil
}
