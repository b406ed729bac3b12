package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/agentvault/sessiongate/internal/pkg/apperrors"
)

// Client talks to the bot's HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) Info(ctx context.Context) (*Info, error) {
	var out Info
	if err := c.do(ctx, http.MethodGet, "/bot/info", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Status(ctx context.Context) (*Status, error) {
	var out Status
	if err := c.do(ctx, http.MethodGet, "/bot/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logs returns entries newer than since; zero fetches the bot's recent
// history.
func (c *Client) Logs(ctx context.Context, since float64) ([]LogEntry, error) {
	path := "/bot/logs"
	if since > 0 {
		path += "?since=" + url.QueryEscape(strconv.FormatFloat(since, 'f', -1, 64))
	}
	var out logsResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Logs, nil
}

func (c *Client) Start(ctx context.Context, params StartParams) error {
	return c.do(ctx, http.MethodPost, "/bot/start", params, nil)
}

func (c *Client) Stop(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/bot/stop", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if c.baseURL == "" {
		return apperrors.NewConfig("Set SESSIONGATE_BOT_BASE_URL to the bot API address.")
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.New(apperrors.ErrUpstream, fmt.Sprintf("Bot API unreachable at %s. Start the bot service and try again.", c.baseURL), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read bot response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var msg messageResponse
		_ = json.Unmarshal(raw, &msg)
		text := msg.Message
		if text == "" {
			text = msg.Error
		}
		if text == "" {
			text = fmt.Sprintf("HTTP %d", resp.StatusCode)
		}
		t := apperrors.ErrUpstream
		switch resp.StatusCode {
		case http.StatusBadRequest:
			t = apperrors.ErrInvalidRequest
		case http.StatusConflict:
			t = apperrors.ErrBusy
		}
		return apperrors.New(t, "Bot: "+text, nil)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode bot %s response: %w", path, err)
	}
	return nil
}
