package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pdcpos/posoffline/internal/common"
	"github.com/pdcpos/posoffline/internal/logging"
)

const (
	loginPath   = "/api/v1/auth/login"
	refreshPath = "/api/v1/auth/refresh"
	batchPath   = "/api/v1/sync/batch"
	refPath     = "/api/v1/reference/"

	// refreshSkew is how close to expiry the access token may get before
	// a refresh is attempted.
	refreshSkew = 30 * time.Second
)

// HTTPClient is the JSON-over-HTTP Client implementation.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	log     logging.Logger

	mu           sync.Mutex
	accessToken  string
	refreshToken string
}

func NewHTTPClient(baseURL string, timeout time.Duration, log logging.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		log:     log.With("component", "remote"),
	}
}

type loginRequest struct {
	Login  string `json:"login"`
	Secret string `json:"secret"`
}

type tokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type loginResponse struct {
	LoginResult
	tokenPair
}

func (c *HTTPClient) Login(ctx context.Context, login string, secret []byte) (*LoginResult, error) {
	req := &loginRequest{Login: login, Secret: string(secret)}

	var resp loginResponse
	if err := c.postJSON(ctx, loginPath, "", req, &resp); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.accessToken = resp.AccessToken
	c.refreshToken = resp.RefreshToken
	c.mu.Unlock()

	return &resp.LoginResult, nil
}

type pushRequest struct {
	Items []BatchItem `json:"items"`
}

type pushResponse struct {
	Outcomes []Outcome `json:"outcomes"`
}

func (c *HTTPClient) PushBatch(ctx context.Context, items []BatchItem) ([]Outcome, error) {
	token, err := c.ensureToken(ctx)
	if err != nil {
		return nil, err
	}

	var resp pushResponse
	if err := c.postJSON(ctx, batchPath, token, &pushRequest{Items: items}, &resp); err != nil {
		return nil, err
	}
	return resp.Outcomes, nil
}

func (c *HTTPClient) FetchReference(ctx context.Context, collection string) (json.RawMessage, error) {
	token, err := c.ensureToken(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+refPath+collection, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", common.ErrUnavailable, err)
	}
	defer res.Body.Close()

	if err := statusError(res.StatusCode); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", common.ErrUnavailable, err)
	}
	return body, nil
}

func (c *HTTPClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// ensureToken returns a usable access token, refreshing it first when it is
// about to expire.
func (c *HTTPClient) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	access, refresh := c.accessToken, c.refreshToken
	c.mu.Unlock()

	if access == "" {
		return "", common.ErrUnauthorized
	}
	if !expiringSoon(access) {
		return access, nil
	}

	if refresh == "" {
		return "", common.ErrTokenExpired
	}

	c.log.Debug(ctx, "access token expiring, refreshing")

	var resp tokenPair
	if err := c.postJSON(ctx, refreshPath, refresh, nil, &resp); err != nil {
		return "", fmt.Errorf("refreshing token: %w", err)
	}

	c.mu.Lock()
	c.accessToken = resp.AccessToken
	if resp.RefreshToken != "" {
		c.refreshToken = resp.RefreshToken
	}
	c.mu.Unlock()

	return resp.AccessToken, nil
}

// expiringSoon inspects the token's exp claim without verifying the
// signature; verification is the server's job.
func expiringSoon(token string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return true
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return time.Until(exp.Time) < refreshSkew
}

func (c *HTTPClient) postJSON(ctx context.Context, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s", common.ErrUnavailable, err)
	}
	defer res.Body.Close()

	if err := statusError(res.StatusCode); err != nil {
		return err
	}

	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

func statusError(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return common.ErrUnauthorized
	case code >= 500 || code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: server returned %d", common.ErrUnavailable, code)
	default:
		return fmt.Errorf("server returned %d", code)
	}
}
