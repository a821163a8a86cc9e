package jira

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

// ClientConfig параметры подключения к REST API Jira
type ClientConfig struct {
	BaseURL    string
	Username   string
	Token      string
	ProjectKey string
	Timeout    time.Duration
}

// Client тонкая обертка над REST API Jira без доменной логики
type Client struct {
	baseURL    string
	username   string
	token      string
	projectKey string
	httpClient *http.Client
}

// NewClient создает клиент. Таймаут запроса берется из конфига, по умолчанию 10 секунд
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		username:   cfg.Username,
		token:      cfg.Token,
		projectKey: cfg.ProjectKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// CreateIssue создает задачу типа Task в проекте клиента
func (c *Client) CreateIssue(ctx context.Context, in IssueInput) (*Ticket, error) {
	var ref issueRef
	if err := c.do(ctx, "create issue", http.MethodPost, "/issue", c.issueBody(in), &ref); err != nil {
		return nil, err
	}
	if ref.ID == "" || ref.Key == "" {
		return nil, &Error{Kind: KindDecode, Op: "create issue", Err: fmt.Errorf("missing id or key in response")}
	}
	return &Ticket{ID: ref.ID, Key: ref.Key}, nil
}

// UpdateIssue перезаписывает поля существующей задачи
func (c *Client) UpdateIssue(ctx context.Context, key string, in IssueInput) error {
	return c.do(ctx, "update issue", http.MethodPut, "/issue/"+url.PathEscape(key), c.issueBody(in), nil)
}

// ApplyTransition применяет переход workflow, комментарий необязателен
func (c *Client) ApplyTransition(ctx context.Context, key, transitionID, comment string) error {
	var req transitionRequest
	req.Transition.ID = transitionID
	if comment != "" {
		req.Update = &transitionUpdate{Comment: []commentOp{{Add: Comment{Body: comment}}}}
	}
	return c.do(ctx, "apply transition", http.MethodPost, "/issue/"+url.PathEscape(key)+"/transitions", req, nil)
}

// SearchIssues выполняет JQL-поиск
func (c *Client) SearchIssues(ctx context.Context, q SearchQuery) (*SearchResult, error) {
	var res SearchResult
	if err := c.do(ctx, "search issues", http.MethodPost, "/search", q, &res); err != nil {
		return nil, err
	}
	for _, issue := range res.Issues {
		if issue.ID == "" || issue.Key == "" {
			return nil, &Error{Kind: KindDecode, Op: "search issues", Err: fmt.Errorf("issue without id or key")}
		}
	}
	return &res, nil
}

func (c *Client) issueBody(in IssueInput) map[string]any {
	fields := make(map[string]any, len(in.CustomFields)+6)
	for k, v := range in.CustomFields {
		fields[k] = v
	}
	labels := in.Labels
	if labels == nil {
		labels = []string{}
	}
	fields["summary"] = in.Title
	fields["description"] = in.Description
	fields["labels"] = labels
	fields["priority"] = map[string]string{"id": string(in.Priority)}
	fields["project"] = map[string]string{"key": c.projectKey}
	fields["issuetype"] = map[string]string{"name": "Task"}
	return map[string]any{"fields": fields}
}

// do выполняет запрос и классифицирует ответ. out == nil означает, что тело ответа не нужно
func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", op, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.SetBasicAuth(c.username, c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Kind: KindGeneric, Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Kind: KindGeneric, Op: op, StatusCode: resp.StatusCode, Err: err}
	}

	if err := classify(op, resp.StatusCode, raw); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &Error{Kind: KindDecode, Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	return nil
}
