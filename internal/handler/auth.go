package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/iliyamo/milsim-portal/internal/middleware"
	"github.com/iliyamo/milsim-portal/internal/session"
)

// defaultTokenLifetime is assumed when the provider omits expires_in.
const defaultTokenLifetime = time.Hour

// AuthHandler serves the session endpoints. Sign-in itself happens at the
// identity provider; the portal only refreshes and ends sessions.
type AuthHandler struct {
	Codec  *session.Codec
	OAuth  *oauth2.Config
	Logger *zap.Logger

	// HTTPClient is used for token requests; nil means http.DefaultClient.
	HTTPClient *http.Client
	now        func() time.Time
}

func NewAuthHandler(codec *session.Codec, oauth *oauth2.Config, logger *zap.Logger) *AuthHandler {
	if codec == nil || oauth == nil {
		panic("nil dependency passed to NewAuthHandler")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{Codec: codec, OAuth: oauth, Logger: logger.Named("auth"), now: time.Now}
}

// Refresh redeems the session's refresh token at the identity provider and
// returns {access_token, expires_in, refresh_token?}. The caller is the auth
// middleware, which re-signs the session with the result.
func (h *AuthHandler) Refresh(c echo.Context) error {
	sess, err := h.Codec.Read(c.Request())
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "no valid session"})
	}
	if sess.RefreshToken == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "session has no refresh token"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()
	if h.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, h.HTTPClient)
	}

	// An empty access token forces the source to hit the token endpoint.
	src := h.OAuth.TokenSource(ctx, &oauth2.Token{RefreshToken: sess.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		h.Logger.Warn("refresh grant failed", zap.String("user", actor(sess)), zap.Error(err))
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "refresh failed"})
	}

	expiresIn := int64(defaultTokenLifetime / time.Second)
	if !tok.Expiry.IsZero() {
		expiresIn = int64(tok.Expiry.Sub(h.now()) / time.Second)
	}
	out := middleware.RefreshResult{AccessToken: tok.AccessToken, ExpiresIn: expiresIn}
	if tok.RefreshToken != "" && tok.RefreshToken != sess.RefreshToken {
		out.RefreshToken = tok.RefreshToken
	}
	return c.JSON(http.StatusOK, out)
}

// Logout clears the session cookie.
func (h *AuthHandler) Logout(c echo.Context) error {
	c.SetCookie(h.Codec.ClearCookie())
	return c.NoContent(http.StatusNoContent)
}

type meResp struct {
	Name          string         `json:"name"`
	PerscomID     int64          `json:"perscom_id,omitempty"`
	Roles         []string       `json:"roles"`
	Preferences   map[string]any `json:"preferences,omitempty"`
	AccessExpires time.Time      `json:"access_expires"`
}

// Me returns the identity carried by the session. Tokens are never echoed.
func (h *AuthHandler) Me(c echo.Context) error {
	sess, ok := middleware.CurrentSession(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}
	roles := sess.Roles
	if roles == nil {
		roles = []string{}
	}
	return c.JSON(http.StatusOK, meResp{
		Name:          sess.Name,
		PerscomID:     sess.PerscomID,
		Roles:         roles,
		Preferences:   sess.Preferences,
		AccessExpires: sess.AccessExpiry().UTC(),
	})
}
