package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
)

const (
	defaultBaseURL        = "https://api.telegram.org"
	defaultTimeout        = 10 * time.Second
	responseBodyReadLimit = 1024
)

// ParseModeMarkdown selects Telegram's legacy Markdown rendering.
const ParseModeMarkdown = "Markdown"

var (
	errTokenRequired = errors.New("telegram bot token is required")
	errChatRequired  = errors.New("telegram chat id is required")
)

// Client posts messages to a single chat through the Telegram Bot API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	chatID     string
	breaker    *gobreaker.CircuitBreaker[int64]
	onState    func(from, to gobreaker.State)
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the Bot API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

// WithStateChange registers a hook for circuit breaker transitions.
func WithStateChange(fn func(from, to gobreaker.State)) Option {
	return func(c *Client) {
		c.onState = fn
	}
}

// NewClient builds a Bot API client for token that posts to chatID.
func NewClient(token, chatID string, opts ...Option) (*Client, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errTokenRequired
	}
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return nil, errChatRequired
	}

	client := &Client{
		token:      token,
		chatID:     chatID,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	client.breaker = gobreaker.NewCircuitBreaker[int64](gobreaker.Settings{
		Name:        "telegram",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Rejected messages say nothing about the API's health.
		IsSuccessful: func(err error) bool {
			return err == nil || IsPermanent(err)
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			if client.onState != nil {
				client.onState(from, to)
			}
		},
	})
	return client, nil
}

// ChatID returns the configured target chat.
func (c *Client) ChatID() string {
	return c.chatID
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview,omitempty"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
	Result      struct {
		MessageID int64 `json:"message_id"`
	} `json:"result"`
}

// APIError is a non-OK answer from the Bot API.
type APIError struct {
	Status      int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram api status %d: %s", e.Status, e.Description)
}

// IsPermanent reports whether err is a rejection that will not succeed on retry.
func IsPermanent(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status >= 400 && apiErr.Status < 500 && apiErr.Status != http.StatusTooManyRequests
}

// SendMessage posts text to the configured chat and returns the Telegram message id.
func (c *Client) SendMessage(ctx context.Context, text, parseMode string) (int64, error) {
	if c == nil {
		return 0, pkgerrors.New(pkgerrors.CodeDependency, "telegram client not configured")
	}
	if strings.TrimSpace(text) == "" {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "message text is required")
	}

	id, err := c.breaker.Execute(func() (int64, error) {
		return c.send(ctx, sendMessageRequest{
			ChatID:                c.chatID,
			Text:                  text,
			ParseMode:             parseMode,
			DisableWebPagePreview: true,
		})
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "telegram circuit open")
		}
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "telegram send failed")
	}
	return id, nil
}

func (c *Client) send(ctx context.Context, body sendMessageRequest) (int64, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("marshal sendMessage request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL("sendMessage"), bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("build sendMessage request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("execute sendMessage request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
	if err != nil {
		return 0, fmt.Errorf("read sendMessage response: %w", err)
	}
	var apiResp apiResponse
	decodeErr := json.Unmarshal(raw, &apiResp)
	if resp.StatusCode != http.StatusOK || !apiResp.OK {
		desc := strings.TrimSpace(apiResp.Description)
		if desc == "" {
			desc = strings.TrimSpace(string(raw))
		}
		return 0, &APIError{Status: resp.StatusCode, Description: desc}
	}
	if decodeErr != nil {
		return 0, fmt.Errorf("decode sendMessage response: %w", decodeErr)
	}
	return apiResp.Result.MessageID, nil
}

func (c *Client) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", strings.TrimRight(c.baseURL, "/"), c.token, method)
}
