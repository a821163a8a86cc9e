// Package owner получает делегата, стоящего за сервисом, из control plane API-менеджмента
package owner

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/untibullet/service-review/internal/models"
)

// Resolver находит делегата по идентификатору сервиса
type Resolver interface {
	GetDelegateFromServiceID(ctx context.Context, serviceID string) (models.Delegate, error)
}

// Client HTTP-реализация Resolver
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) GetDelegateFromServiceID(ctx context.Context, serviceID string) (models.Delegate, error) {
	var d models.Delegate
	endpoint := c.baseURL + "/services/" + url.PathEscape(serviceID) + "/delegate"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return d, fmt.Errorf("failed to build delegate request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return d, fmt.Errorf("failed to resolve delegate for service %s: %w", serviceID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return d, fmt.Errorf("delegate lookup for service %s: status %d: %s", serviceID, resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
		return d, fmt.Errorf("failed to decode delegate: %w", err)
	}
	return d, nil
}
