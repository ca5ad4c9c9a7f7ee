// File: internal/devserver/proxy_test.go
package devserver

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/vedit/internal/config"
)

type echoed struct {
	Method    string `json:"method"`
	Path      string `json:"path"`
	Query     string `json:"query"`
	Host      string `json:"host"`
	Forwarded string `json:"forwarded"`
	Body      string `json:"body"`
}

func echoBackend(t *testing.T) *httptest.Server {
	t.Helper()
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Backend", "yes")
		_ = json.NewEncoder(w).Encode(echoed{
			Method:    r.Method,
			Path:      r.URL.Path,
			Query:     r.URL.RawQuery,
			Host:      r.Host,
			Forwarded: r.Header.Get("X-Forwarded-Host"),
			Body:      string(body),
		})
	}))
	t.Cleanup(backend.Close)
	return backend
}

func proxyTo(target string, changeOrigin bool) func(*config.Config) {
	return func(c *config.Config) {
		c.ServerCfg.APIProxy = config.ProxyConfig{
			Prefix:       "/api",
			Target:       target,
			ChangeOrigin: changeOrigin,
			Timeout:      5 * time.Second,
		}
	}
}

func decodeEcho(t *testing.T, resp *http.Response) echoed {
	t.Helper()
	defer resp.Body.Close()
	var out echoed
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestAPIProxy_ForwardsPrefixedRequests(t *testing.T) {
	backend := echoBackend(t)
	f := newFixture(t, "development", nil, proxyTo(backend.URL, true))

	resp, err := http.Get(f.http.URL + "/api/apps/42/entities?limit=5")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "yes", resp.Header.Get("X-Backend"))
	got := decodeEcho(t, resp)
	assert.Equal(t, http.MethodGet, got.Method)
	assert.Equal(t, "/api/apps/42/entities", got.Path, "prefix is kept")
	assert.Equal(t, "limit=5", got.Query)
	assert.Equal(t, strings.TrimPrefix(backend.URL, "http://"), got.Host)
	assert.Equal(t, strings.TrimPrefix(f.http.URL, "http://"), got.Forwarded)

	resp, err = http.Post(f.http.URL+"/api/login", "application/json", strings.NewReader(`{"user":"a"}`))
	require.NoError(t, err)
	got = decodeEcho(t, resp)
	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, `{"user":"a"}`, got.Body)
}

func TestAPIProxy_KeepsHostWithoutChangeOrigin(t *testing.T) {
	backend := echoBackend(t)
	f := newFixture(t, "development", nil, proxyTo(backend.URL, false))

	resp, err := http.Get(f.http.URL + "/api/ping")
	require.NoError(t, err)
	got := decodeEcho(t, resp)
	assert.Equal(t, strings.TrimPrefix(f.http.URL, "http://"), got.Host)
}

func TestAPIProxy_TargetBasePath(t *testing.T) {
	backend := echoBackend(t)
	f := newFixture(t, "development", nil, proxyTo(backend.URL+"/v1/", true))

	resp, err := http.Get(f.http.URL + "/api/users")
	require.NoError(t, err)
	assert.Equal(t, "/v1/api/users", decodeEcho(t, resp).Path)
}

func TestAPIProxy_OtherPathsStayLocal(t *testing.T) {
	backend := echoBackend(t)
	f := newFixture(t, "development", nil, proxyTo(backend.URL, true))

	resp, body := f.get(t, "/static/robots.txt")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "User-agent: *\n", body)
	assert.Empty(t, resp.Header.Get("X-Backend"))

	resp, body = f.get(t, "/apiary")
	assert.Empty(t, resp.Header.Get("X-Backend"))
	assert.Contains(t, body, `<div id="root"></div>`)
}

func TestAPIProxy_UnreachableBackend(t *testing.T) {
	backend := httptest.NewServer(http.NotFoundHandler())
	target := backend.URL
	backend.Close()
	f := newFixture(t, "development", nil, proxyTo(target, true))

	resp, body := f.get(t, "/api/ping")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, body, "api proxy")
}

func TestAPIProxy_DisabledByDefault(t *testing.T) {
	f := newFixture(t, "development", nil, nil)
	assert.Nil(t, f.server.api)

	resp, body := f.get(t, "/api/ping")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `<div id="root"></div>`, "falls back to the index page")
}

func TestJoinPath(t *testing.T) {
	cases := []struct{ base, rest, want string }{
		{"", "/api/x", "/api/x"},
		{"/", "/api/x", "/api/x"},
		{"/v1", "/api/x", "/v1/api/x"},
		{"/v1/", "/api/x", "/v1/api/x"},
		{"/v1", "", "/v1"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, joinPath(tc.base, tc.rest), "%q + %q", tc.base, tc.rest)
	}
}

func TestNewAPIProxy_NormalizesPrefix(t *testing.T) {
	p, err := newAPIProxy(config.ProxyConfig{Prefix: "api/", Target: "http://127.0.0.1:1"}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, "/api", p.prefix)
}
