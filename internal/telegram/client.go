package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.telegram.org"
	defaultTimeout = 30 * time.Second
	maxRetries     = 3
	initialBackoff = 500 * time.Millisecond
	parseMode      = "Markdown"
)

// Client is a minimal Telegram Bot API client.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	backoff    time.Duration
}

// NewClient creates a client for the public Bot API. pollTimeout is the
// long-poll duration used by GetUpdates; the HTTP timeout is sized above it.
func NewClient(token string, pollTimeout time.Duration) *Client {
	return &Client{
		token:   token,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: pollTimeout + defaultTimeout,
		},
		backoff: initialBackoff,
	}
}

// NewClientWithBaseURL creates a client pointing at a custom API server.
func NewClientWithBaseURL(token, baseURL string, pollTimeout time.Duration) *Client {
	c := NewClient(token, pollTimeout)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

// APIError is a non-OK Bot API reply.
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

// rateLimitError is returned on HTTP 429.
type rateLimitError struct {
	retryAfter time.Duration
}

func (e *rateLimitError) Error() string {
	return fmt.Sprintf("rate limited (retry after %s)", e.retryAfter)
}

type envelope struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
	ErrorCode   int             `json:"error_code"`
	Parameters  struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// GetUpdates long-polls for updates starting at offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	payload := map[string]any{
		"offset":          offset,
		"timeout":         int(timeout / time.Second),
		"allowed_updates": []string{"message", "callback_query"},
	}
	var updates []Update
	if err := c.call(ctx, "getUpdates", payload, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// SendMessage sends Markdown text, optionally with an inline keyboard. If
// Telegram rejects the Markdown, the text is resent without formatting.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, markup *InlineKeyboardMarkup) error {
	payload := map[string]any{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": parseMode,
	}
	if markup != nil {
		payload["reply_markup"] = markup
	}

	err := c.call(ctx, "sendMessage", payload, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusBadRequest && strings.Contains(apiErr.Description, "can't parse entities") {
		delete(payload, "parse_mode")
		return c.call(ctx, "sendMessage", payload, nil)
	}
	return err
}

// AnswerCallbackQuery acknowledges a button press.
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackID string) error {
	return c.call(ctx, "answerCallbackQuery", map[string]any{"callback_query_id": callbackID}, nil)
}

// SendDocument uploads r as a file named filename.
func (c *Client) SendDocument(ctx context.Context, chatID int64, filename string, r io.Reader) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("chat_id", strconv.FormatInt(chatID, 10)); err != nil {
		return fmt.Errorf("writing chat_id: %w", err)
	}
	part, err := mw.CreateFormFile("document", filename)
	if err != nil {
		return fmt.Errorf("creating form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return fmt.Errorf("copying document: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("closing multipart body: %w", err)
	}

	return c.withRetry(ctx, func() error {
		return c.do(ctx, "sendDocument", mw.FormDataContentType(), body.Bytes(), nil)
	})
}

// GetFile resolves a file id to a downloadable path.
func (c *Client) GetFile(ctx context.Context, fileID string) (File, error) {
	var f File
	if err := c.call(ctx, "getFile", map[string]any{"file_id": fileID}, &f); err != nil {
		return File{}, err
	}
	if f.FilePath == "" {
		return File{}, fmt.Errorf("telegram getFile: no file_path for %s", fileID)
	}
	return f, nil
}

// DownloadFile fetches fileID into dir as "<fileID>_<basename>" and returns
// the local path.
func (c *Client) DownloadFile(ctx context.Context, fileID, dir string) (string, error) {
	f, err := c.GetFile(ctx, fileID)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/file/bot"+c.token+"/"+f.FilePath, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("downloading file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("downloading file: unexpected status %d", resp.StatusCode)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating download directory: %w", err)
	}
	local := filepath.Join(dir, fileID+"_"+path.Base(f.FilePath))
	out, err := os.Create(local)
	if err != nil {
		return "", fmt.Errorf("creating local file: %w", err)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(local)
		return "", fmt.Errorf("writing local file: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("closing local file: %w", err)
	}
	return local, nil
}

func (c *Client) call(ctx context.Context, method string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling %s request: %w", method, err)
	}
	return c.withRetry(ctx, func() error {
		return c.do(ctx, method, "application/json", body, out)
	})
}

func (c *Client) withRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := range maxRetries {
		err := fn()
		if err == nil {
			return nil
		}
		var rl *rateLimitError
		if !errors.As(err, &rl) {
			return err
		}
		lastErr = err
		if attempt == maxRetries-1 {
			break
		}

		wait := rl.retryAfter
		if wait <= 0 {
			wait = time.Duration(float64(c.backoff) * math.Pow(2, float64(attempt)))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("rate limited after %d retries: %w", maxRetries, lastErr)
}

func (c *Client) do(ctx context.Context, method, contentType string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/bot"+c.token+"/"+method, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode == http.StatusTooManyRequests {
			return &rateLimitError{}
		}
		return fmt.Errorf("telegram %s: decoding response (status %d): %w", method, resp.StatusCode, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || env.ErrorCode == http.StatusTooManyRequests {
		return &rateLimitError{retryAfter: time.Duration(env.Parameters.RetryAfter) * time.Second}
	}
	if !env.OK {
		code := env.ErrorCode
		if code == 0 {
			code = resp.StatusCode
		}
		return &APIError{Method: method, Code: code, Description: env.Description}
	}
	if out != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("telegram %s: decoding result: %w", method, err)
		}
	}
	return nil
}
