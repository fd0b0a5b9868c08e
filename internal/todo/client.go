package todo

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

	"todovoice/internal/reliability"
)

// CredentialStore supplies and persists the bearer token. The voice session
// and the REST client read tokens through this indirection instead of any
// global storage.
type CredentialStore interface {
	Token() (string, error)
	SetToken(token string) error
	Clear() error
}

// APIError carries the server-supplied message for a failed request.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if strings.TrimSpace(e.Message) == "" {
		return fmt.Sprintf("server returned status %d", e.StatusCode)
	}
	return e.Message
}

// Client is the REST CRUD layer against the external todo service.
type Client struct {
	baseURL string
	http    *http.Client
	creds   CredentialStore
}

func NewClient(baseURL string, creds CredentialStore) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		creds:   creds,
	}
}

// BaseURL returns the configured service root.
func (c *Client) BaseURL() string { return c.baseURL }

type authResponse struct {
	Token string `json:"token"`
}

// Login exchanges credentials for a bearer token and persists it.
func (c *Client) Login(ctx context.Context, email, password string) error {
	var res authResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", Credentials{Email: email, Password: password}, &res, false); err != nil {
		return err
	}
	if strings.TrimSpace(res.Token) == "" {
		return &APIError{StatusCode: http.StatusOK, Message: "login response missing token"}
	}
	return c.creds.SetToken(res.Token)
}

// Register creates an account and persists the returned token.
func (c *Client) Register(ctx context.Context, email, password string) error {
	var res authResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", Credentials{Email: email, Password: password}, &res, false); err != nil {
		return err
	}
	if strings.TrimSpace(res.Token) == "" {
		return &APIError{StatusCode: http.StatusOK, Message: "register response missing token"}
	}
	return c.creds.SetToken(res.Token)
}

// Todos fetches the full task list.
func (c *Client) Todos(ctx context.Context) ([]Task, error) {
	var out []Task
	if err := c.do(ctx, http.MethodGet, "/api/todos", nil, &out, true); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Create(ctx context.Context, req CreateRequest) (Task, error) {
	var out Task
	if err := c.do(ctx, http.MethodPost, "/api/todos", req, &out, true); err != nil {
		return Task{}, err
	}
	return out, nil
}

func (c *Client) Update(ctx context.Context, id string, req UpdateRequest) (Task, error) {
	var out Task
	if err := c.do(ctx, http.MethodPut, "/api/todos/"+id, req, &out, true); err != nil {
		return Task{}, err
	}
	return out, nil
}

func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/todos/"+id, nil, nil, true)
}

const (
	maxAttempts = 3
	backoffBase = 200 * time.Millisecond
	backoffCap  = 2 * time.Second
)

func (c *Client) do(ctx context.Context, method, path string, body, out any, authed bool) error {
	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}

	// Idempotent requests retry transient failures; POST never does.
	for attempt := 0; ; attempt++ {
		err := c.doOnce(ctx, method, path, raw, out, authed)
		if err == nil {
			return nil
		}
		if attempt+1 >= maxAttempts || !retryable(method, err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reliability.ExponentialBackoff(attempt, backoffBase, backoffCap)):
		}
	}
}

func retryable(method string, err error) bool {
	switch method {
	case http.MethodGet, http.MethodPut, http.MethodDelete:
	default:
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return reliability.IsRetryableHTTPStatus(apiErr.StatusCode)
	}
	return reliability.IsRetryableNetError(err)
}

func (c *Client) doOnce(ctx context.Context, method, path string, raw []byte, out any, authed bool) error {
	var reader io.Reader
	if raw != nil {
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if raw != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		token, err := c.creds.Token()
		if err != nil {
			return fmt.Errorf("load credentials: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return decodeAPIError(res)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeAPIError(res *http.Response) error {
	apiErr := &APIError{StatusCode: res.StatusCode}
	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<16))
	if err != nil {
		return apiErr
	}
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &payload) == nil {
		if payload.Error != "" {
			apiErr.Message = payload.Error
		} else if payload.Message != "" {
			apiErr.Message = payload.Message
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return apiErr
}
