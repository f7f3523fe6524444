package backend

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

	"github.com/jrsteele09/go-role-sessions/internal/errors"
	"github.com/jrsteele09/go-role-sessions/storage"
	"golang.org/x/oauth2"
)

// Endpoint paths, relative to the backend base URL.
const (
	LoginPath     = "/login"
	RefreshPath   = "/token/refresh"
	MePath        = "/me"
	HierarchyPath = "/hierarchy"

	// JWKSPath publishes the keys that verify access tokens.
	JWKSPath = "/.well-known/jwks.json"
)

const (
	defaultTimeout  = 10 * time.Second
	maxResponseBody = 1 << 20
)

// LoginFailure is the error body the backend returns for a rejected login.
type LoginFailure struct {
	Detail           string   `json:"detail,omitempty"`
	MultipleAccounts []string `json:"multiple_accounts,omitempty"`
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type refreshResponse struct {
	Access string `json:"access"`
}

// HTTPClient talks to the backend over HTTP.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

var _ Client = (*HTTPClient)(nil)

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithHTTPClient sets the underlying http.Client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPClient) {
		h.httpClient = c
	}
}

// WithTimeout bounds every call that has no earlier deadline.
func WithTimeout(d time.Duration) HTTPOption {
	return func(h *HTTPClient) {
		h.timeout = d
	}
}

// NewHTTPClient creates a client for the backend at baseURL.
func NewHTTPClient(baseURL string, opts ...HTTPOption) *HTTPClient {
	h := &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
		timeout:    defaultTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Login posts the credentials. A 4xx with multiple_accounts becomes an
// AmbiguousIdentityError, any other rejection ErrInvalidCredentials.
func (h *HTTPClient) Login(ctx context.Context, creds Credentials) (TokenPair, error) {
	ctx, cancel := h.ensureTimeout(ctx)
	defer cancel()

	resp, err := h.postJSON(ctx, h.httpClient, LoginPath, creds)
	if err != nil {
		return TokenPair{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return TokenPair{}, fmt.Errorf("reading login response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var failure LoginFailure
		_ = json.Unmarshal(body, &failure)
		if len(failure.MultipleAccounts) > 0 {
			return TokenPair{}, &errors.AmbiguousIdentityError{Candidates: failure.MultipleAccounts}
		}
		if resp.StatusCode >= 500 {
			return TokenPair{}, fmt.Errorf("login failed with status %d", resp.StatusCode)
		}
		detail := failure.Detail
		if detail == "" {
			detail = http.StatusText(resp.StatusCode)
		}
		return TokenPair{}, errors.Wrapf(errors.ErrInvalidCredentials, "%s", detail)
	}

	var pair TokenPair
	if err := json.Unmarshal(body, &pair); err != nil {
		return TokenPair{}, fmt.Errorf("decoding login response: %w", err)
	}
	if pair.Access == "" {
		return TokenPair{}, fmt.Errorf("login response has no access token")
	}
	return pair, nil
}

// Refresh posts the refresh token. Any failure wraps ErrRefreshFailed.
func (h *HTTPClient) Refresh(ctx context.Context, refresh string) (string, error) {
	ctx, cancel := h.ensureTimeout(ctx)
	defer cancel()

	resp, err := h.postJSON(ctx, h.httpClient, RefreshPath, refreshRequest{Refresh: refresh})
	if err != nil {
		return "", errors.Wrapf(errors.ErrRefreshFailed, "%v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", errors.Wrapf(errors.ErrRefreshFailed, "status %d", resp.StatusCode)
	}

	var out refreshResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&out); err != nil {
		return "", errors.Wrapf(errors.ErrRefreshFailed, "decoding response: %v", err)
	}
	if out.Access == "" {
		return "", errors.Wrapf(errors.ErrRefreshFailed, "response has no access token")
	}
	return out.Access, nil
}

// Me fetches the profile using access as the bearer token, regardless of
// which namespace the token will end up in.
func (h *HTTPClient) Me(ctx context.Context, access string) (*storage.Profile, error) {
	ctx, cancel := h.ensureTimeout(ctx)
	defer cancel()

	source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: access, TokenType: "Bearer"})
	client := oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, h.httpClient), source)

	var profile storage.Profile
	if err := h.getJSON(ctx, client, MePath, &profile); err != nil {
		return nil, errors.Wrapf(errors.ErrProfilePrefetchFailed, "%v", err)
	}
	return &profile, nil
}

// Hierarchy looks up the registered role of username. A 404 maps to ErrNotFound.
func (h *HTTPClient) Hierarchy(ctx context.Context, username string) (*Registration, error) {
	ctx, cancel := h.ensureTimeout(ctx)
	defer cancel()

	var reg Registration
	if err := h.getJSON(ctx, h.httpClient, HierarchyPath+"?username="+url.QueryEscape(username), &reg); err != nil {
		return nil, err
	}
	return &reg, nil
}

func (h *HTTPClient) postJSON(ctx context.Context, client *http.Client, path string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", path, err)
	}
	return resp, nil
}

func (h *HTTPClient) getJSON(ctx context.Context, client *http.Client, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errors.Wrapf(errors.ErrNotFound, "GET %s", path)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("GET %s: status %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

func (h *HTTPClient) ensureTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || h.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, h.timeout)
}
