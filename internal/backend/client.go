package backend

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

	"github.com/avast/retry-go/v4"

	"github.com/nikhilbhutani/articlegen/internal/config"
	"github.com/nikhilbhutani/articlegen/internal/models"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("backend rejected token")
)

// APIError is a non-success answer from the generation backend.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned %d", e.Status)
	}
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Message)
}

// Temporary reports whether retrying the same call may succeed.
func (e *APIError) Temporary() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests
}

// Client talks to the Python generation API. Read-only calls are retried on
// transport errors and 5xx answers; calls with side effects are not.
type Client struct {
	baseURL    string
	httpClient *http.Client
	attempts   uint
	delay      time.Duration
}

func NewClient(cfg config.BackendConfig) *Client {
	attempts := uint(1)
	if cfg.MaxRetries > 0 {
		attempts += uint(cfg.MaxRetries)
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		attempts: attempts,
		delay:    500 * time.Millisecond,
	}
}

// envelope covers the backend's response shapes; errors come back under
// "error" from auth routes and under "message" from workflow routes.
type envelope struct {
	Success *bool           `json:"success"`
	Status  string          `json:"status"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
	Token   string          `json:"token"`
	Valid   bool            `json:"valid"`
	User    *models.User    `json:"user"`
	Result  json.RawMessage `json:"result"`

	WorkflowID string `json:"workflow_id"`
}

func (e *envelope) errorMessage() string {
	if e.Error != "" {
		return e.Error
	}
	return e.Message
}

type LoginResult struct {
	Token string
	User  models.User
}

func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	var env envelope
	status, err := c.do(ctx, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    email,
		"password": password,
	}, &env)
	if err != nil {
		return nil, fmt.Errorf("backend login: %w", err)
	}
	if status == http.StatusUnauthorized || status == http.StatusBadRequest {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCredentials, env.errorMessage())
	}
	if status != http.StatusOK || env.Token == "" || env.User == nil {
		return nil, fmt.Errorf("backend login: %w", &APIError{Status: status, Message: env.errorMessage()})
	}
	return &LoginResult{Token: env.Token, User: *env.User}, nil
}

// Verify checks a token with the backend. An invalid or expired token is
// reported as ErrUnauthorized.
func (c *Client) Verify(ctx context.Context, token string) (*models.User, error) {
	var env envelope
	err := c.retry(ctx, func() error {
		env = envelope{}
		status, err := c.do(ctx, http.MethodPost, "/api/auth/verify", "", map[string]string{"token": token}, &env)
		if err != nil {
			return err
		}
		return statusError(status, env)
	})
	if err != nil {
		return nil, fmt.Errorf("backend verify: %w", err)
	}
	if !env.Valid || env.User == nil {
		return nil, ErrUnauthorized
	}
	return env.User, nil
}

func (c *Client) Logout(ctx context.Context, token string) error {
	var env envelope
	status, err := c.do(ctx, http.MethodPost, "/api/auth/logout", token, nil, &env)
	if err != nil {
		return fmt.Errorf("backend logout: %w", err)
	}
	if err := statusError(status, env); err != nil {
		return fmt.Errorf("backend logout: %w", err)
	}
	return nil
}

// SubmitWorkflow starts workflow N and returns the backend's workflow id.
func (c *Client) SubmitWorkflow(ctx context.Context, token string, workflowType int, input json.RawMessage) (string, error) {
	var env envelope
	path := fmt.Sprintf("/api/workflow%d", workflowType)
	status, err := c.do(ctx, http.MethodPost, path, token, input, &env)
	if err != nil {
		return "", fmt.Errorf("submit workflow %d: %w", workflowType, err)
	}
	if err := statusError(status, env); err != nil {
		return "", fmt.Errorf("submit workflow %d: %w", workflowType, err)
	}
	if env.Status == "error" || env.WorkflowID == "" {
		return "", fmt.Errorf("submit workflow %d: %w", workflowType, &APIError{Status: status, Message: env.errorMessage()})
	}
	return env.WorkflowID, nil
}

// Progress is the backend's view of a running workflow.
type Progress struct {
	Status          string                `json:"status"`
	ProgressPercent int                   `json:"progress_percent"`
	CurrentStep     int                   `json:"current_step"`
	StepDetails     map[string]StepDetail `json:"step_details"`
	Result          json.RawMessage       `json:"result"`
	Error           string                `json:"error"`
}

type StepDetail struct {
	Status string `json:"status"`
}

func (c *Client) Progress(ctx context.Context, token, workflowID string) (*Progress, error) {
	var p Progress
	err := c.retry(ctx, func() error {
		p = Progress{}
		raw, status, err := c.raw(ctx, http.MethodGet, "/api/workflow-progress/"+workflowID, token, nil)
		if err != nil {
			return err
		}
		if status == http.StatusNotFound {
			p.Status = "not_found"
			return nil
		}
		if status >= 400 {
			var env envelope
			_ = json.Unmarshal(raw, &env)
			return statusError(status, env)
		}
		if err := json.Unmarshal(raw, &p); err != nil {
			return retry.Unrecoverable(fmt.Errorf("decode progress: %w", err))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("workflow progress %s: %w", workflowID, err)
	}
	return &p, nil
}

// Ping calls the backend's test endpoint once.
func (c *Client) Ping(ctx context.Context) error {
	_, status, err := c.raw(ctx, http.MethodGet, "/api/test", "", nil)
	if err != nil {
		return fmt.Errorf("backend ping: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("backend ping: %w", &APIError{Status: status})
	}
	return nil
}

// Forward relays an admin call to /api/admin/<path> and returns the backend's
// status code and body unchanged.
func (c *Client) Forward(ctx context.Context, token, method, path string, body []byte) (int, []byte, error) {
	path = "/api/admin/" + strings.TrimLeft(path, "/")
	var payload any
	if len(body) > 0 {
		payload = json.RawMessage(body)
	}
	raw, status, err := c.raw(ctx, method, path, token, payload)
	if err != nil {
		return 0, nil, fmt.Errorf("forward %s %s: %w", method, path, err)
	}
	return status, raw, nil
}

func (c *Client) retry(ctx context.Context, fn func() error) error {
	return retry.Do(
		fn,
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isTemporary),
	)
}

func isTemporary(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return !errors.Is(err, ErrUnauthorized) && !errors.Is(err, context.Canceled)
}

func statusError(status int, env envelope) error {
	switch {
	case status == http.StatusUnauthorized:
		return ErrUnauthorized
	case status >= 400:
		return &APIError{Status: status, Message: env.errorMessage()}
	}
	return nil
}

// do sends a JSON request and decodes a JSON answer into out regardless of
// status; callers inspect the status themselves.
func (c *Client) do(ctx context.Context, method, path, token string, in any, out any) (int, error) {
	raw, status, err := c.raw(ctx, method, path, token, in)
	if err != nil {
		return 0, err
	}
	if len(bytes.TrimSpace(raw)) > 0 && out != nil {
		if err := json.Unmarshal(raw, out); err != nil && status < 400 {
			return status, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	return status, nil
}

func (c *Client) raw(ctx context.Context, method, path, token string, in any) ([]byte, int, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, 0, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	return raw, resp.StatusCode, nil
}
