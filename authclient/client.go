package authclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/trackwise/edgeauth"
)

// MePath is the authority endpoint that doubles as the validation check.
const MePath = "/auth/users/me"

// ErrNotAuthenticated is returned for every failed Authenticate call. It is
// classified as a revoked token, so guards answer 401.
var ErrNotAuthenticated = errors.New("authclient: not authenticated")

// AuthError carries the underlying cause of a failed Authenticate call for
// logging. Callers only see [ErrNotAuthenticated].
type AuthError struct {
	Cause error
}

func (e *AuthError) Error() string {
	return ErrNotAuthenticated.Error() + ": " + e.Cause.Error()
}

// Is keeps the cause out of error classification: a transport timeout must
// not surface as anything but an authentication failure.
func (e *AuthError) Is(target error) bool {
	return target == ErrNotAuthenticated || target == edgeauth.ErrTokenRevoked
}

// Client is the downstream validation client used by resource services.
type Client struct {
	base *url.URL
	hc   *http.Client
}

var _ edgeauth.AuthorityVerifier = (*Client)(nil)

type Option func(*Client)

// WithHTTPClient replaces the default bounded client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.hc = hc }
}

// WithTimeout sets the per-call timeout. Default 5s.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.hc.Timeout = d }
}

// New returns a client for the authority at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("authclient: invalid base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("authclient: invalid base url %q", baseURL)
	}

	c := &Client{
		base: u,
		hc: &http.Client{
			Timeout: 5 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 32,
				MaxConnsPerHost:     64,
				IdleConnTimeout:     90 * time.Second,
			},
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Authenticate asks the authority who owns token. Any non-200 answer,
// undecodable body or transport failure is reported as not authenticated.
func (c *Client) Authenticate(ctx context.Context, token string) (*edgeauth.Principal, error) {
	if token == "" {
		return nil, &AuthError{Cause: edgeauth.ErrAuthHeaderMissing}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base.String()+MePath, nil)
	if err != nil {
		return nil, &AuthError{Cause: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, &AuthError{Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &AuthError{Cause: fmt.Errorf("authority answered %d", resp.StatusCode)}
	}

	var p edgeauth.Principal
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&p); err != nil {
		return nil, &AuthError{Cause: fmt.Errorf("decode principal: %w", err)}
	}
	if p.ID == "" || p.Username == "" {
		return nil, &AuthError{Cause: errors.New("principal without id or username")}
	}
	return &p, nil
}
