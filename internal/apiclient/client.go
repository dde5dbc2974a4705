// Package apiclient is a typed client for the auth API. It keeps the session
// cookie in a jar the way a browser would.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

// ErrUnauthenticated is returned by CheckAuth when no valid session exists.
var ErrUnauthenticated = errors.New("unauthenticated")

type Client struct {
	baseURL    string
	httpClient *http.Client
	locale     string
}

type Option func(*Client)

// WithHTTPClient overrides the default HTTP client. A client without a jar
// gets one.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

func WithLocale(locale string) Option {
	return func(c *Client) {
		c.locale = locale
	}
}

func New(base string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		trimmed = "http://localhost:5000"
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	cli := &Client{
		baseURL:    strings.TrimRight(trimmed, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(cli)
	}
	if cli.httpClient.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("create cookie jar: %w", err)
		}
		cli.httpClient.Jar = jar
	}
	return cli, nil
}

// APIError is a non-2xx response.
type APIError struct {
	Status   int
	Message  string
	Fields   map[string]string
	Cooldown time.Duration
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api request failed with status %d", e.Status)
	}
	return e.Message
}

type User struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Email      string     `json:"email"`
	IsVerified bool       `json:"isVerified"`
	LastLogin  *time.Time `json:"lastLogin,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

type UserResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	User    User   `json:"user"`
}

type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (c *Client) Signup(ctx context.Context, name, email, password string) (*UserResponse, error) {
	var out UserResponse
	body := map[string]string{"name": name, "email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/auth/signup", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) VerifyEmail(ctx context.Context, code string) (*UserResponse, error) {
	var out UserResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/verify-email", map[string]string{"code": code}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ResendVerification(ctx context.Context, email string) (*MessageResponse, error) {
	var out MessageResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/resend-verification", map[string]string{"email": email}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Login(ctx context.Context, email, password string) (*UserResponse, error) {
	var out UserResponse
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
}

func (c *Client) ForgotPassword(ctx context.Context, email string) (*MessageResponse, error) {
	var out MessageResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/forgot-password", map[string]string{"email": email}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ResetPassword(ctx context.Context, token, password string) (*MessageResponse, error) {
	var out MessageResponse
	path := "/api/auth/reset-password/" + url.PathEscape(token)
	if err := c.do(ctx, http.MethodPost, path, map[string]string{"password": password}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CheckAuth returns the session's user, or ErrUnauthenticated.
func (c *Client) CheckAuth(ctx context.Context) (*User, error) {
	var out UserResponse
	err := c.do(ctx, http.MethodGet, "/api/auth/check-auth", nil, &out)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, err
	}
	return &out.User, nil
}

// ForgetSession expires the API cookies held in the jar without calling the
// API. The jar itself is kept, so requests in flight are unaffected.
func (c *Client) ForgetSession() {
	u, err := url.Parse(c.baseURL + "/")
	if err != nil {
		return
	}
	jar := c.httpClient.Jar
	held := jar.Cookies(u)
	if len(held) == 0 {
		return
	}
	expired := make([]*http.Cookie, 0, len(held))
	for _, ck := range held {
		expired = append(expired, &http.Cookie{Name: ck.Name, Path: "/", MaxAge: -1})
	}
	jar.SetCookies(u, expired)
}

func (c *Client) do(ctx context.Context, method, path string, body, v any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.locale != "" {
		req.Header.Set("Accept-Language", c.locale)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return extractError(resp)
	}
	if v == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func extractError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	data, err := io.ReadAll(resp.Body)
	if err != nil || len(data) == 0 {
		return apiErr
	}
	var payload struct {
		Message  string            `json:"message"`
		Errors   map[string]string `json:"errors"`
		Cooldown int64             `json:"cooldown"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		apiErr.Message = strings.TrimSpace(string(data))
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(payload.Message)
	apiErr.Fields = payload.Errors
	apiErr.Cooldown = time.Duration(payload.Cooldown) * time.Second
	return apiErr
}
