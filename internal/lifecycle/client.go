package lifecycle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client HTTP-адаптер к сервису жизненного цикла
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создает клиент с таймаутом запроса
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Fetch возвращает текущее состояние сервиса, false если сервиса нет
func (c *Client) Fetch(ctx context.Context, serviceID string) (*Item, bool, error) {
	var item Item
	status, err := c.do(ctx, http.MethodGet, c.servicePath(serviceID), nil, &item)
	if status == http.StatusNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to fetch service %s: %w", serviceID, err)
	}
	return &item, true, nil
}

// Apply применяет именованный переход
func (c *Client) Apply(ctx context.Context, action, serviceID string, data any) (*Item, error) {
	var item Item
	path := c.servicePath(serviceID) + "/actions/" + url.PathEscape(action)
	if _, err := c.do(ctx, http.MethodPost, path, data, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// Override принудительно записывает элемент целиком
func (c *Client) Override(ctx context.Context, serviceID string, item Item) (*Item, error) {
	var saved Item
	if _, err := c.do(ctx, http.MethodPut, c.servicePath(serviceID), item, &saved); err != nil {
		return nil, err
	}
	return &saved, nil
}

func (c *Client) servicePath(serviceID string) string {
	return "/services/" + url.PathEscape(serviceID)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) (int, error) {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("lifecycle request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read lifecycle response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Ошибки автомата приходят телом {"kind": ..., "message": ...}
		var eb errorBody
		if json.Unmarshal(raw, &eb) == nil && eb.Kind != "" {
			kind, err := ParseFsmErrorKind(eb.Kind)
			if err != nil {
				return resp.StatusCode, err
			}
			return resp.StatusCode, &FsmError{Kind: kind, Message: eb.Message}
		}
		return resp.StatusCode, fmt.Errorf("lifecycle responded with status %d: %s", resp.StatusCode, string(raw))
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode lifecycle response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
