package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shaurya/tradeledger/config"
	"github.com/shaurya/tradeledger/framework"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	InitJWT("unit-test-secret")

	token, err := GenerateToken("customs", "Customs")
	require.NoError(t, err)

	claims, err := ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "customs", claims.Username)
	assert.Equal(t, "Customs", claims.Role)
	assert.WithinDuration(t, time.Now().Add(TokenTTL), claims.ExpiresAt.Time, time.Minute)

	_, err = ParseToken(token + "x")
	assert.Error(t, err)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Username: "customs",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})
	signed, err := expired.SignedString([]byte("unit-test-secret"))
	require.NoError(t, err)
	_, err = ParseToken(signed)
	assert.Error(t, err)

	anonymous := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{})
	signed, err = anonymous.SignedString([]byte("unit-test-secret"))
	require.NoError(t, err)
	_, err = ParseToken(signed)
	assert.Error(t, err)
}

func TestJWTMiddleware(t *testing.T) {
	InitJWT("unit-test-secret")
	token, err := GenerateToken("exporter", "Exporter")
	require.NoError(t, err)

	var got *Claims
	h := JWTMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = ClaimsFromContext(r.Context())
	}))

	for _, header := range []string{"", "Basic abc", "Bearer nope"} {
		got = nil
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		h.ServeHTTP(httptest.NewRecorder(), req)
		assert.Nil(t, got, header)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	h.ServeHTTP(httptest.NewRecorder(), req)
	require.NotNil(t, got)
	assert.Equal(t, "exporter", got.Username)
}

func TestBcrypt(t *testing.T) {
	b := Bcrypt{Cost: 4}
	hash, err := b.Hash("importerBank")
	require.NoError(t, err)
	assert.NotEqual(t, "importerBank", hash)
	assert.True(t, b.Compare(hash, "importerBank"))
	assert.False(t, b.Compare(hash, "customs"))

	// Out of range costs fall back to the default.
	hash, err = HashPassword("x", 99)
	require.NoError(t, err)
	assert.True(t, CheckPassword("x", hash))
}

func newApp(t *testing.T) *framework.App {
	t.Helper()
	cfg := config.Defaults()
	cfg.App.Env = "test"
	cfg.App.LocalesDir = ""
	cfg.App.SecretKeyBase = "session-secret"
	app := framework.NewWithConfig(cfg)
	require.NoError(t, app.Boot())
	t.Cleanup(func() { _ = app.Shutdown(context.Background()) })
	return app
}

func TestSessionLoginAndRequired(t *testing.T) {
	InitJWT("unit-test-secret")
	app := newApp(t)
	app.Router.Use(JWTMiddleware())
	app.Routes(func(r *framework.Router) {
		r.POST("/login", func(ctx *framework.Context) error {
			if err := Login(ctx, "customs", "Customs"); err != nil {
				return err
			}
			return ctx.Status(http.StatusNoContent)
		})
		r.POST("/logout", func(ctx *framework.Context) error {
			if err := Logout(ctx); err != nil {
				return err
			}
			return ctx.Status(http.StatusNoContent)
		})
		r.GET("/me", Required(func(ctx *framework.Context) error {
			id := ctx.CurrentUser().(Identity)
			return ctx.Text(http.StatusOK, id.Username+"/"+id.Role)
		}))
		r.Group(func(r *framework.Router) {
			r.Use(Middleware(app))
			r.HandleFunc(http.MethodGet, "/plain", "plain", func(w http.ResponseWriter, r *http.Request) {
				id, ok := Lookup(app, r)
				if !ok {
					w.WriteHeader(http.StatusTeapot)
					return
				}
				w.Write([]byte(id.Username))
			})
		})
	})

	serve := func(method, path string, headers ...string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, nil)
		for i := 0; i+1 < len(headers); i += 2 {
			req.Header.Set(headers[i], headers[i+1])
		}
		rec := httptest.NewRecorder()
		app.Handler().ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusUnauthorized, serve(http.MethodGet, "/me").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(http.MethodGet, "/plain").Code)
	rec := serve(http.MethodGet, "/me", "Accept", "text/html")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	rec = serve(http.MethodPost, "/login")
	require.Equal(t, http.StatusNoContent, rec.Code)
	cookie := strings.SplitN(rec.Header().Get("Set-Cookie"), ";", 2)[0]
	require.NotEmpty(t, cookie)

	rec = serve(http.MethodGet, "/me", "Cookie", cookie)
	assert.Equal(t, "customs/Customs", rec.Body.String())
	rec = serve(http.MethodGet, "/plain", "Cookie", cookie)
	assert.Equal(t, "customs", rec.Body.String())

	token, err := GenerateToken("exporter", "Exporter")
	require.NoError(t, err)
	rec = serve(http.MethodGet, "/me", "Authorization", "Bearer "+token)
	assert.Equal(t, "exporter/Exporter", rec.Body.String())

	rec = serve(http.MethodPost, "/logout", "Cookie", cookie)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, rec.Header().Get("Set-Cookie"), "Max-Age=0")
}
