// Package tracker creates boards and issues in the external issue tracker.
package tracker

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
	DefaultBaseURL = "https://api.tracker.yandex.net"
	boardsPath     = "/v3/boards/"
	issuesPath     = "/v3/issues/"
	boardType      = "default"
	countryID      = "1"
)

var (
	ErrValidation = errors.New("tracker: request validation failed")
	ErrForbidden  = errors.New("tracker: insufficient permissions")
	ErrNotFound   = errors.New("tracker: resource not found")
	ErrUpstream   = errors.New("tracker: upstream failure")
)

// Queue identifies the tracker queue issues are filed into.
type Queue struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}

// Issue is one task to file on a new board.
type Issue struct {
	Summary     string
	Description string
}

// Config configures the client.
type Config struct {
	BaseURL    string
	Token      string
	OrgID      string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client calls the tracker REST API.
type Client struct {
	baseURL  string
	token    string
	orgID    string
	upstream *upstream.Client
	logger   *zap.Logger
}

// NewClient validates the configuration and builds a client.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("tracker: token is required")
	}
	if strings.TrimSpace(cfg.OrgID) == "" {
		return nil, errors.New("tracker: org id is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: baseURL,
		token:   cfg.Token,
		orgID:   cfg.OrgID,
		// creation is not idempotent, so a failed call is never repeated
		upstream: upstream.New(upstream.Config{
			Name:        "tracker",
			HTTPClient:  cfg.HTTPClient,
			MaxAttempts: 1,
			Logger:      logger,
		}),
		logger: logger,
	}, nil
}

type boardPayload struct {
	Name         string     `json:"name"`
	DefaultQueue Queue      `json:"defaultQueue"`
	BoardType    string     `json:"boardType"`
	UseRanking   bool       `json:"useRanking"`
	Country      countryRef `json:"country"`
}

type countryRef struct {
	ID string `json:"id"`
}

type issuePayload struct {
	Summary     string `json:"summary"`
	Description string `json:"description"`
	Queue       Queue  `json:"queue"`
}

type created struct {
	ID  json.RawMessage `json:"id"`
	Key string          `json:"key"`
}

// id renders numeric and string ids alike.
func (c created) id() string {
	return strings.Trim(string(c.ID), `"`)
}

// CreateBoard creates a board bound to queue and returns its id.
func (c *Client) CreateBoard(ctx context.Context, name string, queue Queue) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("%w: board name is required", ErrValidation)
	}
	var result created
	err := c.post(ctx, boardsPath, boardPayload{
		Name:         name,
		DefaultQueue: queue,
		BoardType:    boardType,
		UseRanking:   true,
		Country:      countryRef{ID: countryID},
	}, &result)
	if err != nil {
		return "", err
	}
	c.logger.Info("tracker board created", zap.String("name", name), zap.String("board_id", result.id()))
	return result.id(), nil
}

// CreateIssue files an issue in queue and returns its key.
func (c *Client) CreateIssue(ctx context.Context, summary, description string, queue Queue) (string, error) {
	if strings.TrimSpace(summary) == "" {
		return "", fmt.Errorf("%w: issue summary is required", ErrValidation)
	}
	var result created
	err := c.post(ctx, issuesPath, issuePayload{Summary: summary, Description: description, Queue: queue}, &result)
	if err != nil {
		return "", err
	}
	return result.Key, nil
}

// CreateBoardWithIssues creates a board and then one issue per entry, stopping
// at the first failure. It returns the keys of the issues created so far.
func (c *Client) CreateBoardWithIssues(ctx context.Context, name string, queue Queue, issues []Issue) (string, []string, error) {
	boardID, err := c.CreateBoard(ctx, name, queue)
	if err != nil {
		return "", nil, err
	}
	keys := make([]string, 0, len(issues))
	for _, issue := range issues {
		key, err := c.CreateIssue(ctx, issue.Summary, issue.Description, queue)
		if err != nil {
			return boardID, keys, fmt.Errorf("create issue %q: %w", issue.Summary, err)
		}
		keys = append(keys, key)
	}
	return boardID, keys, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("tracker: encode request: %w", err)
	}
	_, responseBody, err := c.upstream.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		request.Header.Set("Authorization", "OAuth "+c.token)
		request.Header.Set("X-Org-ID", c.orgID)
		request.Header.Set("Content-Type", "application/json")
		return request, nil
	})
	if err != nil {
		return mapError(err)
	}
	if len(responseBody) == 0 || out == nil {
		return nil
	}
	if err := json.Unmarshal(responseBody, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrUpstream, err)
	}
	return nil
}

func mapError(err error) error {
	var statusErr *upstream.StatusError
	if !errors.As(err, &statusErr) {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	switch statusErr.StatusCode {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", ErrValidation, statusErr.Body)
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return fmt.Errorf("%w: status %d", ErrUpstream, statusErr.StatusCode)
	}
}
