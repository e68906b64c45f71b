package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/iliyamo/milsim-portal/internal/middleware"
	"github.com/iliyamo/milsim-portal/internal/session"
)

func newTokenServer(t *testing.T, body string, status int) (*httptest.Server, *[]string) {
	t.Helper()
	var grants []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		grants = append(grants, r.PostForm.Get("grant_type")+":"+r.PostForm.Get("refresh_token"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &grants
}

func newAuthHandler(t *testing.T, tokenURL string) (*AuthHandler, *session.Codec) {
	t.Helper()
	codec := session.NewCodec("test-secret", 30*24*time.Hour, false)
	h := NewAuthHandler(codec, &oauth2.Config{
		ClientID:     "portal",
		ClientSecret: "shh",
		Endpoint:     oauth2.Endpoint{TokenURL: tokenURL, AuthStyle: oauth2.AuthStyleInParams},
	}, nil)
	return h, codec
}

func refreshRequest(t *testing.T, h *AuthHandler, codec *session.Codec, sess *session.Session) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
	if sess != nil {
		tok, err := codec.Encode(*sess)
		require.NoError(t, err)
		req.AddCookie(codec.Cookie(tok))
	}
	rec := httptest.NewRecorder()
	require.NoError(t, h.Refresh(e.NewContext(req, rec)))
	return rec
}

func TestRefreshRotatesTokens(t *testing.T) {
	srv, grants := newTokenServer(t, `{"access_token":"at-2","token_type":"Bearer","expires_in":604800,"refresh_token":"rt-2"}`, http.StatusOK)
	h, codec := newAuthHandler(t, srv.URL)

	rec := refreshRequest(t, h, codec, &session.Session{Name: "Sgt. Vega", AccessToken: "at-1", RefreshToken: "rt-1"})
	require.Equal(t, http.StatusOK, rec.Code)

	var out middleware.RefreshResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "at-2", out.AccessToken)
	assert.Equal(t, "rt-2", out.RefreshToken)
	assert.InDelta(t, 604800, out.ExpiresIn, 5)
	assert.Equal(t, []string{"refresh_token:rt-1"}, *grants)
}

func TestRefreshKeepsRefreshTokenWhenNotRotated(t *testing.T) {
	srv, _ := newTokenServer(t, `{"access_token":"at-2","token_type":"Bearer"}`, http.StatusOK)
	h, codec := newAuthHandler(t, srv.URL)

	rec := refreshRequest(t, h, codec, &session.Session{RefreshToken: "rt-1"})
	require.Equal(t, http.StatusOK, rec.Code)

	var out middleware.RefreshResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Empty(t, out.RefreshToken)
	assert.Equal(t, int64(3600), out.ExpiresIn)
}

func TestRefreshFailures(t *testing.T) {
	srv, grants := newTokenServer(t, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	h, codec := newAuthHandler(t, srv.URL)

	assert.Equal(t, http.StatusUnauthorized, refreshRequest(t, h, codec, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, refreshRequest(t, h, codec, &session.Session{Name: "no token"}).Code)
	assert.Empty(t, *grants)

	assert.Equal(t, http.StatusUnauthorized, refreshRequest(t, h, codec, &session.Session{RefreshToken: "revoked"}).Code)
	assert.Len(t, *grants, 1)
}

func TestLogoutClearsCookie(t *testing.T) {
	h, _ := newAuthHandler(t, "http://127.0.0.1:0/token")

	rec := call(t, h.Logout, nil, http.MethodPost, "/api/auth/logout", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	res := rec.Result()
	defer res.Body.Close()
	cookies := res.Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, session.CookieName, cookies[0].Name)
	assert.Equal(t, -1, cookies[0].MaxAge)
}

func TestMe(t *testing.T) {
	h, _ := newAuthHandler(t, "http://127.0.0.1:0/token")

	assert.Equal(t, http.StatusUnauthorized, call(t, h.Me, nil, http.MethodGet, "/api/me", "").Code)

	sess := &session.Session{Name: "Sgt. Vega", PerscomID: 12, Roles: []string{"member"}, AccessToken: "secret-at", RefreshToken: "secret-rt", AccessExpires: 1767225600}
	rec := call(t, h.Me, sess, http.MethodGet, "/api/me", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"perscom_id":12`)
	assert.Contains(t, rec.Body.String(), `"access_expires":"2026-01-01T00:00:00Z"`)
	assert.NotContains(t, rec.Body.String(), "secret-")
}
