// File: internal/devserver/proxy.go
package devserver

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/elazarl/goproxy"
	"go.uber.org/zap"

	"github.com/xkilldash9x/vedit/internal/config"
)

// apiProxy forwards requests under a path prefix to the app's backend, so
// the page can call relative API URLs during development.
type apiProxy struct {
	prefix       string
	target       *url.URL
	changeOrigin bool
	proxy        *goproxy.ProxyHttpServer
	logger       *zap.Logger
}

func newAPIProxy(cfg config.ProxyConfig, logger *zap.Logger) (*apiProxy, error) {
	target, err := url.Parse(cfg.Target)
	if err != nil {
		return nil, fmt.Errorf("parse api proxy target: %w", err)
	}

	proxy := goproxy.NewProxyHttpServer()
	proxy.Verbose = false
	proxy.Logger = zap.NewStdLog(logger.Named("goproxy"))
	proxy.KeepAcceptEncoding = true
	proxy.Tr = &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.Timeout,
	}

	p := &apiProxy{
		prefix:       "/" + strings.Trim(cfg.Prefix, "/"),
		target:       target,
		changeOrigin: cfg.ChangeOrigin,
		proxy:        proxy,
		logger:       logger,
	}
	proxy.OnRequest().DoFunc(p.handleRequest)
	proxy.OnResponse().DoFunc(p.handleResponse)
	return p, nil
}

// ServeHTTP rewrites the request onto the target and hands it to goproxy,
// which only forwards absolute URLs.
func (p *apiProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	out := r.Clone(r.Context())
	u := *r.URL
	u.Scheme = p.target.Scheme
	u.Host = p.target.Host
	u.Path = joinPath(p.target.Path, r.URL.Path)
	u.RawPath = ""
	out.URL = &u
	if p.changeOrigin {
		out.Host = p.target.Host
	}
	out.Header.Set("X-Forwarded-Host", r.Host)
	out.Header.Set("X-Forwarded-Proto", "http")
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		out.Header.Set("X-Forwarded-For", host)
	}
	p.proxy.ServeHTTP(w, out)
}

func (p *apiProxy) handleRequest(r *http.Request, ctx *goproxy.ProxyCtx) (*http.Request, *http.Response) {
	p.logger.Debug("Proxying API request", zap.String("method", r.Method), zap.String("url", r.URL.String()))
	return r, nil
}

func (p *apiProxy) handleResponse(resp *http.Response, ctx *goproxy.ProxyCtx) *http.Response {
	if resp != nil {
		p.logger.Debug("API response", zap.Int("status", resp.StatusCode), zap.String("url", ctx.Req.URL.String()))
		return resp
	}
	msg := "unknown error"
	if ctx.Error != nil {
		msg = ctx.Error.Error()
	}
	p.logger.Warn("API backend unreachable", zap.String("url", ctx.Req.URL.String()), zap.String("error", msg))
	return goproxy.NewResponse(ctx.Req, goproxy.ContentTypeText, http.StatusBadGateway, "api proxy: "+msg)
}

func joinPath(base, rest string) string {
	switch {
	case base == "" || base == "/":
		return rest
	case rest == "":
		return base
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(rest, "/")
}
