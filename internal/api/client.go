package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nhle/fieldworker/internal/model"
)

// actionIDHeader carries the client-generated idempotency key for replayed
// offline mutations, letting the server drop duplicates.
const actionIDHeader = "X-Client-Action-Id"

// Client is a thin HTTP client for the FieldWorker dispatch REST API.
// It handles Bearer token authentication, JSON marshaling, and automatic
// retry with exponential backoff on HTTP 429. All failures are reported
// through the structured error types in this package; callers must never
// inspect error text.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int

	mu    sync.RWMutex
	token string
}

// NewClient creates a new dispatch API client. The baseURL should be the
// root URL of the server (e.g., https://dispatch.example.com). The token is
// the access token obtained from Login; it may be empty until then.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		maxRetries: 3,
	}
}

// SetToken replaces the access token used for subsequent requests.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *Client) currentToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// ListTasks retrieves one page of the caller's task listing.
func (c *Client) ListTasks(ctx context.Context, page, size int) (*TaskPage, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 100
	}

	path := fmt.Sprintf("/api/tasks?page=%d&size=%d&assigned_to_me=true", page, size)
	body, err := c.do(ctx, http.MethodGet, path, "", nil)
	if err != nil {
		return nil, err
	}

	var resp listResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshaling task listing: %w", err)
	}

	pg := &TaskPage{
		Total: resp.Total,
		Page:  resp.Page,
		Size:  resp.Size,
		Pages: resp.Pages,
	}
	for _, item := range resp.Items {
		pg.Items = append(pg.Items, item.toModel())
	}
	return pg, nil
}

// GetTask retrieves a single task together with its comment history.
func (c *Client) GetTask(ctx context.Context, id int64) (*model.Task, []model.Comment, error) {
	body, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/tasks/%d", id), "", nil)
	if err != nil {
		return nil, nil, err
	}

	var payload taskPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, nil, fmt.Errorf("unmarshaling task %d: %w", id, err)
	}

	task := payload.toModel()
	var comments []model.Comment
	for _, cp := range payload.Comments {
		comments = append(comments, cp.toModel())
	}
	return &task, comments, nil
}

// GetComments retrieves a task's comment history.
func (c *Client) GetComments(ctx context.Context, taskID int64) ([]model.Comment, error) {
	body, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/tasks/%d/comments", taskID), "", nil)
	if err != nil {
		return nil, err
	}

	var payloads []commentPayload
	if err := json.Unmarshal(body, &payloads); err != nil {
		return nil, fmt.Errorf("unmarshaling comments for task %d: %w", taskID, err)
	}

	var comments []model.Comment
	for _, cp := range payloads {
		comments = append(comments, cp.toModel())
	}
	return comments, nil
}

// UpdateStatus changes a task's status, optionally attaching a comment.
// actionUID is the idempotency key for replayed offline edits; pass the
// empty string for direct calls.
func (c *Client) UpdateStatus(ctx context.Context, id int64, status model.TaskStatus, comment, actionUID string) (*model.Task, error) {
	req := statusUpdateRequest{Status: string(status), Comment: comment}
	body, err := c.do(ctx, http.MethodPut, fmt.Sprintf("/api/tasks/%d/status", id), actionUID, req)
	if err != nil {
		return nil, err
	}

	var payload taskPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("unmarshaling status update for task %d: %w", id, err)
	}
	task := payload.toModel()
	return &task, nil
}

// AddComment posts a comment on a task. A nil comment with a nil error
// means the server accepted the comment but returned no body.
func (c *Client) AddComment(ctx context.Context, taskID int64, text, author, actionUID string) (*model.Comment, error) {
	req := commentCreateRequest{Text: text, Author: author}
	body, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/tasks/%d/comments", taskID), actionUID, req)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}

	var payload commentPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("unmarshaling comment for task %d: %w", taskID, err)
	}
	comment := payload.toModel()
	return &comment, nil
}

// UpdatePlannedDate sets or clears a task's planned date.
func (c *Client) UpdatePlannedDate(ctx context.Context, id int64, date *time.Time) (*model.Task, error) {
	var req plannedDateRequest
	if date != nil {
		req.PlannedDate = &apiTime{*date}
	}

	body, err := c.do(ctx, http.MethodPut, fmt.Sprintf("/api/tasks/%d/planned-date", id), "", req)
	if err != nil {
		return nil, err
	}

	var payload taskPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("unmarshaling planned-date update for task %d: %w", id, err)
	}
	task := payload.toModel()
	return &task, nil
}

// Login exchanges credentials for an access token and installs it on the
// client.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	req := loginRequest{Username: username, Password: password}
	body, err := c.do(ctx, http.MethodPost, "/api/auth/login", "", req)
	if err != nil {
		return "", err
	}

	var resp tokenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("unmarshaling login response: %w", err)
	}
	if resp.AccessToken == "" {
		return "", &ServerError{StatusCode: http.StatusOK, Message: "login response carried no token"}
	}

	c.SetToken(resp.AccessToken)
	return resp.AccessToken, nil
}

// Probe checks whether the server is reachable. Any HTTP response counts as
// reachable, including 401; only a transport failure means offline.
func (c *Client) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("creating probe request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Op: "probe", Err: err}
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return nil
}

// do is the core HTTP method that builds the request, handles auth,
// rate limiting with exponential backoff, and error classification.
// It returns the raw response body on success.
func (c *Client) do(ctx context.Context, method, path, actionUID string, body interface{}) ([]byte, error) {
	url := c.baseURL + path

	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
		payload = data
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}

		if token := c.currentToken(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if actionUID != "" {
			req.Header.Set(actionIDHeader, actionUID)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, &NetworkError{
				Op:  fmt.Sprintf("%s %s", method, path),
				Err: err,
			}
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, &NetworkError{
				Op:  fmt.Sprintf("%s %s", method, path),
				Err: readErr,
			}
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			waitDuration := retryAfterDuration(resp, attempt)
			lastErr = &ServerError{
				StatusCode: resp.StatusCode,
				Message:    fmt.Sprintf("rate limited on %s %s", method, path),
			}

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(waitDuration):
				continue
			}
		}

		if resp.StatusCode == http.StatusUnauthorized {
			return nil, &Unauthorized{Message: errorDetail(respBody)}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &ServerError{
				StatusCode: resp.StatusCode,
				Message:    errorDetail(respBody),
			}
		}

		return respBody, nil
	}

	if lastErr == nil {
		lastErr = &ServerError{StatusCode: http.StatusTooManyRequests, Message: "rate limited"}
	}
	return nil, lastErr
}

// errorDetail extracts the server's structured error message, falling back
// to the raw body.
func errorDetail(body []byte) string {
	var resp errorResponse
	if json.Unmarshal(body, &resp) == nil && resp.Detail != "" {
		return resp.Detail
	}
	return strings.TrimSpace(string(body))
}

// retryAfterDuration reads the Retry-After header and computes a wait
// duration. Falls back to exponential backoff if the header is missing.
func retryAfterDuration(resp *http.Response, attempt int) time.Duration {
	if header := resp.Header.Get("Retry-After"); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}

	// Exponential backoff: 1s, 2s, 4s, ...
	backoff := time.Duration(1<<uint(attempt)) * time.Second
	if backoff > 30*time.Second {
		backoff = 30 * time.Second
	}
	return backoff
}
