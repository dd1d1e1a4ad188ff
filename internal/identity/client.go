// Package identity implements the HTTP client for the identity service.
//
// Covers signup, password and Google login, token refresh, current-user
// lookup, and server-side logout. Failures are classified into the shared
// error taxonomy: 401 is authentication-class (terminal for a session),
// 5xx and transport errors are transient.
package identity

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

	apperrors "github.com/pscheid92/sessionkeeper/internal/errors"
)

const defaultTimeout = 10 * time.Second

// Client talks to the identity service REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Client for the given API base URL (e.g.
// "https://example.com/api"). A nil httpClient gets a 10s-timeout default.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
	}
}

// Signup registers a new account. The account requires email verification
// before it can log in, so no tokens are returned.
func (c *Client) Signup(ctx context.Context, email, password string) (*PendingVerification, error) {
	body := map[string]string{"email": email, "password": password}

	var result PendingVerification
	if err := c.post(ctx, "/auth/signup", body, "", &result); err != nil {
		return nil, fmt.Errorf("signup: %w", err)
	}
	return &result, nil
}

// Login exchanges email and password for a full session.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	body := map[string]string{"email": email, "password": password}

	var result AuthResult
	if err := c.post(ctx, "/auth/login", body, "", &result); err != nil {
		return nil, fmt.Errorf("login: %w", classifyUnverified(err))
	}
	return &result, nil
}

// LoginWithGoogle exchanges a Google ID token for a full session.
func (c *Client) LoginWithGoogle(ctx context.Context, idToken string) (*AuthResult, error) {
	body := map[string]string{"id_token": idToken}

	var result AuthResult
	if err := c.post(ctx, "/auth/google", body, "", &result); err != nil {
		return nil, fmt.Errorf("google login: %w", err)
	}
	return &result, nil
}

// Refresh exchanges a refresh token for a new token pair. The response may
// include the account record; callers replace their copy only when present.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	body := map[string]string{"refresh_token": refreshToken}

	var result AuthResult
	if err := c.post(ctx, "/auth/refresh", body, "", &result); err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}
	return &result, nil
}

// GetCurrentUser fetches the account for the bearer access token.
func (c *Client) GetCurrentUser(ctx context.Context, accessToken string) (*Account, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/me", nil)
	if err != nil {
		return nil, fmt.Errorf("get current user: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	var account Account
	if err := c.do(req, &account); err != nil {
		return nil, fmt.Errorf("get current user: %w", err)
	}
	return &account, nil
}

// Logout asks the server to invalidate the refresh token tied to this access
// token. Callers treat it as best-effort.
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	body := map[string]string{"access_token": accessToken}
	if err := c.post(ctx, "/auth/logout", body, accessToken, nil); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body any, bearer string, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return apperrors.ExternalError("failed to encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return apperrors.ExternalError("failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.ExternalError("identity service unreachable", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperrors.ExternalError("failed to read response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return apperrors.FromStatus(resp.StatusCode, errorMessage(data, resp.StatusCode))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return apperrors.ExternalError("failed to decode response", err)
	}
	return nil
}

// errorMessage extracts the service's {"error": "..."} body, falling back to
// the status text.
func errorMessage(data []byte, status int) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.Error != "" {
		return body.Error
	}
	return http.StatusText(status)
}

// classifyUnverified upgrades a 401 whose message is worded around email
// verification into the unverified kind, so callers can route the user to the
// verification flow instead of the password-reset one.
func classifyUnverified(err error) error {
	var structured *apperrors.Error
	if !errors.As(err, &structured) {
		return err
	}
	if structured.Kind == apperrors.KindUnauthenticated && strings.Contains(strings.ToLower(structured.Message), "not verified") {
		return apperrors.UnverifiedError(structured.Message)
	}
	return err
}
