package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/iliyamo/milsim-portal/internal/authz"
	"github.com/iliyamo/milsim-portal/internal/metrics"
	"github.com/iliyamo/milsim-portal/internal/session"
)

// DefaultRefreshBuffer is how close to expiry an access token may get before
// the middleware refreshes it.
const DefaultRefreshBuffer = 300 * time.Second

// RefreshResult is the body returned by POST /api/auth/refresh.
type RefreshResult struct {
	AccessToken  string `json:"access_token"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// Refresher obtains a fresh access token on behalf of the request whose
// cookies are forwarded.
type Refresher interface {
	Refresh(ctx context.Context, cookieHeader string) (RefreshResult, error)
}

// HTTPRefresher calls the portal's own refresh endpoint.
type HTTPRefresher struct {
	endpoint string
	client   *http.Client
}

// NewHTTPRefresher targets {appURL}/api/auth/refresh. A nil client gets a
// 10s timeout.
func NewHTTPRefresher(appURL string, client *http.Client) *HTTPRefresher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPRefresher{
		endpoint: strings.TrimRight(appURL, "/") + "/api/auth/refresh",
		client:   client,
	}
}

func (h *HTTPRefresher) Refresh(ctx context.Context, cookieHeader string) (RefreshResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, nil)
	if err != nil {
		return RefreshResult{}, err
	}
	req.Header.Set("Cookie", cookieHeader)
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return RefreshResult{}, fmt.Errorf("refresh: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return RefreshResult{}, fmt.Errorf("refresh: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := gjson.GetBytes(body, "error").String()
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return RefreshResult{}, fmt.Errorf("refresh: status %d: %s", resp.StatusCode, msg)
	}
	if e := gjson.GetBytes(body, "error"); e.Exists() {
		return RefreshResult{}, fmt.Errorf("refresh: %s", e.String())
	}
	var out RefreshResult
	if err := json.Unmarshal(body, &out); err != nil {
		return RefreshResult{}, fmt.Errorf("refresh: decode: %w", err)
	}
	if out.AccessToken == "" {
		return RefreshResult{}, errors.New("refresh: response carries no access token")
	}
	return out, nil
}

// AuthConfig wires the session middleware.
type AuthConfig struct {
	Codec     *session.Codec
	Table     *authz.Table
	Refresher Refresher
	Logger    *zap.Logger

	// Skipper bypasses the middleware; DefaultAuthSkipper when nil.
	Skipper func(echo.Context) bool
	// Now defaults to time.Now.
	Now func() time.Time
	// RefreshBuffer defaults to DefaultRefreshBuffer.
	RefreshBuffer time.Duration

	LoginPath        string
	UnauthorizedPath string
}

// DefaultAuthSkipper lets auth endpoints, static assets and probes through
// untouched.
func DefaultAuthSkipper(c echo.Context) bool {
	p := c.Request().URL.Path
	for _, prefix := range []string{"/api/auth/", "/static/", "/assets/"} {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	switch p {
	case "/api/auth", "/favicon.ico", "/healthz", "/metrics":
		return true
	}
	return false
}

// NewAuth returns the session middleware. For every request it:
//
//  1. redirects to the login page when a protected path is requested without
//     a valid session cookie, and lets unprotected paths through;
//  2. refreshes the access token when it expires within the refresh buffer,
//     re-signing the session onto both the response and the in-flight
//     request, or clears the cookie and redirects to login if that fails;
//  3. checks the route permission table and redirects to the unauthorized
//     page when the caller's roles do not satisfy it.
func NewAuth(cfg AuthConfig) echo.MiddlewareFunc {
	if cfg.Skipper == nil {
		cfg.Skipper = DefaultAuthSkipper
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.RefreshBuffer <= 0 {
		cfg.RefreshBuffer = DefaultRefreshBuffer
	}
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/login"
	}
	if cfg.UnauthorizedPath == "" {
		cfg.UnauthorizedPath = "/unauthorized"
	}
	if cfg.Table == nil {
		cfg.Table = authz.DefaultTable()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	log := cfg.Logger.Named("auth")

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper(c) {
				return next(c)
			}
			req := c.Request()
			path := req.URL.Path

			sess, err := cfg.Codec.Read(req)
			if err != nil {
				if errors.Is(err, session.ErrInvalidSession) {
					log.Debug("discarding undecodable session cookie", zap.Error(err))
					c.SetCookie(cfg.Codec.ClearCookie())
				}
				if cfg.Table.Protected(path) {
					return c.Redirect(http.StatusTemporaryRedirect, cfg.LoginPath)
				}
				return next(c)
			}

			now := cfg.Now()
			if sess.AccessExpiry().Sub(now) <= cfg.RefreshBuffer {
				sess, err = refreshSession(c, cfg, sess, now)
				if err != nil {
					metrics.RecordSessionRefresh("failure")
					log.Warn("session refresh failed",
						zap.String("user", sess.Name),
						zap.String("path", path),
						zap.Error(err),
					)
					c.SetCookie(cfg.Codec.ClearCookie())
					return c.Redirect(http.StatusTemporaryRedirect, cfg.LoginPath)
				}
				metrics.RecordSessionRefresh("success")
			}

			SetSession(c, sess)
			if !cfg.Table.Authorize(path, sess.RoleSet()) {
				return c.Redirect(http.StatusTemporaryRedirect, cfg.UnauthorizedPath)
			}
			return next(c)
		}
	}
}

// refreshSession swaps in a new access token and re-signs the session. The
// new cookie goes on the response and replaces the old one on the request so
// handlers further down see the refreshed session.
func refreshSession(c echo.Context, cfg AuthConfig, sess session.Session, now time.Time) (session.Session, error) {
	req := c.Request()
	res, err := cfg.Refresher.Refresh(req.Context(), req.Header.Get("Cookie"))
	if err != nil {
		return sess, err
	}
	sess.AccessToken = res.AccessToken
	sess.AccessExpires = now.Add(time.Duration(res.ExpiresIn) * time.Second).Unix()
	if res.RefreshToken != "" {
		sess.RefreshToken = res.RefreshToken
	}
	token, err := cfg.Codec.Encode(sess)
	if err != nil {
		return sess, err
	}
	c.SetCookie(cfg.Codec.Cookie(token))
	replaceRequestCookie(req, cfg.Codec.CookieName(), token)
	return sess, nil
}

func replaceRequestCookie(r *http.Request, name, value string) {
	cookies := r.Cookies()
	r.Header.Del("Cookie")
	replaced := false
	for _, ck := range cookies {
		if ck.Name == name {
			if replaced {
				continue
			}
			ck.Value = value
			replaced = true
		}
		r.AddCookie(&http.Cookie{Name: ck.Name, Value: ck.Value})
	}
	if !replaced {
		r.AddCookie(&http.Cookie{Name: name, Value: value})
	}
}
