// Package speech sends recorded meetings to a speech recognition service.
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/confdesk/backend/internal/upstream"
)

const (
	transcribePath      = "/transcribe"
	fieldAudio          = "audio_file"
	DefaultLanguage     = "ru"
	DefaultSamplingRate = 16000
)

var (
	// ErrUnsupportedFormat is returned for audio files the recognizer cannot decode.
	ErrUnsupportedFormat = errors.New("speech: unsupported file format")
	// ErrEmptyAudio is returned when the upload has no content.
	ErrEmptyAudio = errors.New("speech: empty audio")
)

var supportedExtensions = map[string]struct{}{
	".wav":  {},
	".mp3":  {},
	".ogg":  {},
	".flac": {},
}

// SupportedFile reports whether filename has an accepted audio extension.
func SupportedFile(filename string) bool {
	_, ok := supportedExtensions[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// Config configures the client.
type Config struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client uploads audio for transcription.
type Client struct {
	baseURL  string
	apiKey   string
	upstream *upstream.Client
	logger   *zap.Logger
}

// NewClient validates the configuration and builds a client.
func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("speech: base url is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		upstream: upstream.New(upstream.Config{
			Name:       "speech",
			HTTPClient: cfg.HTTPClient,
			Logger:     logger,
		}),
		logger: logger,
	}, nil
}

type transcribeResponse struct {
	Text string `json:"text"`
}

// Transcribe uploads audio and returns the raw transcript. Empty language and
// non-positive samplingRate fall back to the defaults.
func (c *Client) Transcribe(ctx context.Context, filename string, audio io.Reader, language string, samplingRate int) (string, error) {
	if !SupportedFile(filename) {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filename)
	}
	if strings.TrimSpace(language) == "" {
		language = DefaultLanguage
	}
	if samplingRate <= 0 {
		samplingRate = DefaultSamplingRate
	}

	content, err := io.ReadAll(audio)
	if err != nil {
		return "", fmt.Errorf("speech: read audio: %w", err)
	}
	if len(content) == 0 {
		return "", ErrEmptyAudio
	}

	body, contentType, err := encodeForm(filename, content, language, samplingRate)
	if err != nil {
		return "", err
	}

	_, responseBody, err := c.upstream.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+transcribePath, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		request.Header.Set("Content-Type", contentType)
		if c.apiKey != "" {
			request.Header.Set("Authorization", "Bearer "+c.apiKey)
		}
		return request, nil
	})
	if err != nil {
		return "", err
	}

	var decoded transcribeResponse
	if err := json.Unmarshal(responseBody, &decoded); err != nil {
		return "", fmt.Errorf("speech: decode response: %w", err)
	}
	c.logger.Debug("audio transcribed",
		zap.String("filename", filename),
		zap.Int("audio_bytes", len(content)),
		zap.String("language", language))
	return strings.TrimSpace(decoded.Text), nil
}

func encodeForm(filename string, content []byte, language string, samplingRate int) ([]byte, string, error) {
	var buffer bytes.Buffer
	writer := multipart.NewWriter(&buffer)
	part, err := writer.CreateFormFile(fieldAudio, filepath.Base(filename))
	if err != nil {
		return nil, "", fmt.Errorf("speech: encode form: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return nil, "", fmt.Errorf("speech: encode form: %w", err)
	}
	if err := writer.WriteField("language", language); err != nil {
		return nil, "", fmt.Errorf("speech: encode form: %w", err)
	}
	if err := writer.WriteField("sampling_rate", strconv.Itoa(samplingRate)); err != nil {
		return nil, "", fmt.Errorf("speech: encode form: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("speech: encode form: %w", err)
	}
	return buffer.Bytes(), writer.FormDataContentType(), nil
}
