// Package session encodes the portal's session cookie: a signed HS256 token
// carrying the upstream access token, its expiry, the refresh token and the
// user's resolved identity.
package session

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iliyamo/milsim-portal/internal/authz"
)

const (
	// CookieName is used for plain http deployments.
	CookieName = "portal.session-token"
	// SecureCookieName is used when the portal is served over https.
	SecureCookieName = "__Secure-portal.session-token"
)

var (
	// ErrNoSession means the request carried no session cookie.
	ErrNoSession = errors.New("session: no session cookie")
	// ErrInvalidSession covers tampered, expired or malformed tokens.
	ErrInvalidSession = errors.New("session: invalid session token")
)

// Session is what the portal knows about a signed-in user.
type Session struct {
	Name        string         `json:"name"`
	PerscomID   int64          `json:"perscom_id,omitempty"`
	Roles       []string       `json:"roles,omitempty"`
	Preferences map[string]any `json:"preferences,omitempty"`

	AccessToken   string `json:"access_token"`
	AccessExpires int64  `json:"access_expires"` // unix seconds
	RefreshToken  string `json:"refresh_token,omitempty"`
}

// AccessExpiry returns AccessExpires as a time.
func (s Session) AccessExpiry() time.Time { return time.Unix(s.AccessExpires, 0) }

// RoleSet returns the recognised roles of the session.
func (s Session) RoleSet() []authz.Role { return authz.ParseRoles(s.Roles) }

// Claims is the JWT body of the session cookie.
type Claims struct {
	Session
	jwt.RegisteredClaims
}

// Codec signs and verifies session tokens and builds the cookie around them.
type Codec struct {
	secret []byte
	maxAge time.Duration
	secure bool
	now    func() time.Time
}

// NewCodec builds a Codec. maxAge bounds the lifetime of the cookie and of
// the token inside it; secure selects the __Secure- cookie name and flag.
func NewCodec(secret string, maxAge time.Duration, secure bool) *Codec {
	if maxAge <= 0 {
		maxAge = 30 * 24 * time.Hour
	}
	return &Codec{secret: []byte(secret), maxAge: maxAge, secure: secure, now: time.Now}
}

// WithClock returns a copy of the codec reading time from now.
func (c *Codec) WithClock(now func() time.Time) *Codec {
	cp := *c
	cp.now = now
	return &cp
}

// IsSecureURL reports whether appURL is served over https.
func IsSecureURL(appURL string) bool {
	u, err := url.Parse(appURL)
	return err == nil && u.Scheme == "https"
}

// CookieName returns the name of the session cookie for this deployment.
func (c *Codec) CookieName() string {
	if c.secure {
		return SecureCookieName
	}
	return CookieName
}

// Encode signs s into a token valid for the codec's max age.
func (c *Codec) Encode(s Session) (string, error) {
	now := c.now().UTC()
	claims := Claims{
		Session: s,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprint(s.PerscomID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.maxAge)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("session: sign: %w", err)
	}
	return signed, nil
}

// Decode verifies raw and returns the session inside it.
func (c *Codec) Decode(raw string) (Session, error) {
	var claims Claims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !tok.Valid {
		return Session{}, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	return claims.Session, nil
}

// Read decodes the session cookie of r.
func (c *Codec) Read(r *http.Request) (Session, error) {
	ck, err := r.Cookie(c.CookieName())
	if err != nil || ck.Value == "" {
		return Session{}, ErrNoSession
	}
	return c.Decode(ck.Value)
}

// Cookie wraps a signed token in the session cookie.
func (c *Codec) Cookie(token string) *http.Cookie {
	return &http.Cookie{
		Name:     c.CookieName(),
		Value:    token,
		Path:     "/",
		MaxAge:   int(c.maxAge / time.Second),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// ClearCookie expires the session cookie in the browser.
func (c *Codec) ClearCookie() *http.Cookie {
	return &http.Cookie{
		Name:     c.CookieName(),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
