// Package testing boots a complete portal against temporary stores for
// end-to-end tests.
package testing

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shaurya/tradeledger/config"
	"github.com/shaurya/tradeledger/framework"
	"github.com/shaurya/tradeledger/portal"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
)

// Suite is a running portal plus an HTTP client that keeps session cookies.
type Suite struct {
	Portal *portal.Portal
	App    *framework.App
	Server *httptest.Server
	Client *http.Client
	t      *testing.T
}

// Option adjusts the configuration before the portal boots.
type Option func(cfg *config.Config)

// WithConfig applies fn to the suite configuration.
func WithConfig(fn func(cfg *config.Config)) Option { return Option(fn) }

// WithoutDatabase boots the portal with no SQL database.
func WithoutDatabase() Option {
	return func(cfg *config.Config) { cfg.Database.Driver = "" }
}

// Config returns the configuration suites start from: a SQLite database in
// dir, an in-memory ledger and cheap password hashing.
func Config(dir string) *config.Config {
	cfg := config.Defaults()
	cfg.App.Env = "test"
	cfg.App.SecretKeyBase = "test-secret"
	cfg.App.JWTSecret = "test-jwt-secret"
	cfg.App.BcryptCost = 4
	cfg.App.AutoMigrate = true
	cfg.App.LoginRate = 100
	cfg.App.LocalesDir = LocalesDir()
	cfg.Database.Driver = "sqlite"
	cfg.Database.Path = filepath.Join(dir, "tradeledger.db")
	cfg.Queue.JobTimeoutMs = 5000
	return cfg
}

// NewSuite builds and serves a portal. It is torn down with the test.
func NewSuite(t *testing.T, opts ...Option) *Suite {
	t.Helper()
	os.Setenv("APP_ENV", "test")

	cfg := Config(t.TempDir())
	for _, opt := range opts {
		opt(cfg)
	}

	app := framework.NewWithConfig(cfg)
	p, err := portal.Build(app)
	require.NoError(t, err)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	s := &Suite{
		Portal: p,
		App:    app,
		Server: httptest.NewServer(app.Handler()),
		Client: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		t: t,
	}
	t.Cleanup(s.Close)
	return s
}

// Close stops the server and shuts the portal down.
func (s *Suite) Close() {
	if s.Server != nil {
		s.Server.Close()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.App.Shutdown(ctx)
}

// Response is a fully read HTTP response.
type Response struct {
	Code   int
	Header http.Header
	Body   []byte
}

// JSON decodes the body into v.
func (r *Response) JSON(v any) error { return json.Unmarshal(r.Body, v) }

// String returns the body as text.
func (r *Response) String() string { return string(r.Body) }

// Do sends a request through the suite client. A non-nil body that is not
// an io.Reader is sent as JSON. headers are name/value pairs.
func (s *Suite) Do(method, path string, body any, headers ...string) *Response {
	s.t.Helper()

	var reader io.Reader
	contentType := ""
	switch b := body.(type) {
	case nil:
	case io.Reader:
		reader = b
	default:
		data, err := json.Marshal(b)
		require.NoError(s.t, err)
		reader = bytes.NewReader(data)
		contentType = "application/json"
	}

	req, err := http.NewRequest(method, s.Server.URL+path, reader)
	require.NoError(s.t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	res, err := s.Client.Do(req)
	require.NoError(s.t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(s.t, err)
	return &Response{Code: res.StatusCode, Header: res.Header, Body: data}
}

// GET sends a GET request.
func (s *Suite) GET(path string, headers ...string) *Response {
	s.t.Helper()
	return s.Do(http.MethodGet, path, nil, headers...)
}

// POST sends a JSON POST request.
func (s *Suite) POST(path string, body any, headers ...string) *Response {
	s.t.Helper()
	return s.Do(http.MethodPost, path, body, headers...)
}

// GETWithAuth sends a GET request with a Bearer token.
func (s *Suite) GETWithAuth(path, token string) *Response {
	s.t.Helper()
	return s.GET(path, "Authorization", "Bearer "+token)
}

// Login signs the suite client in as a ledger user.
func (s *Suite) Login(username, password string) *Response {
	s.t.Helper()
	res := s.POST("/processLogin", framework.H{"username": username, "password": password})
	require.Equal(s.t, http.StatusOK, res.Code, res.String())
	return res
}

// Token returns an API token for a ledger user.
func (s *Suite) Token(username, password string) string {
	s.t.Helper()
	res := s.POST("/api/token", framework.H{"username": username, "password": password})
	require.Equal(s.t, http.StatusOK, res.Code, res.String())
	var body struct {
		Token string `json:"token"`
	}
	require.NoError(s.t, res.JSON(&body))
	return body.Token
}

// DialWS opens a websocket on path carrying the client's session cookie.
func (s *Suite) DialWS(ctx context.Context, path string) *websocket.Conn {
	s.t.Helper()
	url := "ws" + strings.TrimPrefix(s.Server.URL, "http") + path
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPClient: s.Client})
	require.NoError(s.t, err)
	s.t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

// LocalesDir finds config/locales by walking up from the working directory.
func LocalesDir() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, "config", "locales")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
