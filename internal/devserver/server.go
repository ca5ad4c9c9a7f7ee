// File: internal/devserver/server.go
// Package devserver serves an instrumented app during development. It injects
// the agent shim and rebuild notifier into HTML, hosts the agent bridge, and
// rebuilds the bundle when sources change.
package devserver

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/vedit/internal/agent"
	"github.com/xkilldash9x/vedit/internal/bridge"
	"github.com/xkilldash9x/vedit/internal/bundler"
	"github.com/xkilldash9x/vedit/internal/config"
)

const shutdownTimeout = 15 * time.Second

// Server is the development HTTP server.
type Server struct {
	cfg     config.ServerConfig
	root    string
	bundler *bundler.Bundler
	hub     *bridge.Hub
	logger  *zap.Logger
	router  *mux.Router
	events  *broker
	inject  Injection
	api     *apiProxy

	mu   sync.Mutex
	addr net.Addr
}

// New wires a server. hub may be nil, in which case the agent is not
// offered to pages.
func New(cfg config.Interface, b *bundler.Bundler, hub *bridge.Hub, logger *zap.Logger) (*Server, error) {
	sc := cfg.Server()
	root, err := filepath.Abs(sc.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve server root: %w", err)
	}
	if sc.IndexFile == "" {
		sc.IndexFile = "index.html"
	}

	logger = logger.Named("devserver")
	s := &Server{
		cfg:     sc,
		root:    root,
		bundler: b,
		hub:     hub,
		logger:  logger,
		router:  mux.NewRouter(),
		events:  newBroker(logger),
	}
	if sc.APIProxy.Enabled() {
		s.api, err = newAPIProxy(sc.APIProxy, logger.Named("api_proxy"))
		if err != nil {
			return nil, err
		}
		logger.Info("API proxy enabled", zap.String("prefix", s.api.prefix), zap.String("target", sc.APIProxy.Target))
	}
	if sc.Development() {
		s.inject = Injection{CSSRuntimeURL: sc.CSSRuntimeURL, ErrorScript: ErrorScriptPath}
		if sc.HMRNotifier || sc.Watch {
			s.inject.HMRScript = HMRScriptPath
		}
		if hub != nil {
			s.inject.AgentScript = AgentScriptPath
		}
	}
	s.setupRoutes(cfg.Build().PublicPath)
	return s, nil
}

func (s *Server) setupRoutes(publicPath string) {
	s.router.HandleFunc(AgentScriptPath, s.script(agentScript)).Methods(http.MethodGet)
	s.router.HandleFunc(HMRScriptPath, s.script(hmrScript)).Methods(http.MethodGet)
	s.router.HandleFunc(ErrorScriptPath, s.script(errorScript)).Methods(http.MethodGet)
	s.router.Handle(EventsPath, s.events).Methods(http.MethodGet)
	if s.hub != nil {
		s.router.Handle(BridgePath, s.hub)
	}

	if s.api != nil {
		s.router.Handle(s.api.prefix, s.api)
		s.router.PathPrefix(s.api.prefix + "/").Handler(s.api)
	}

	prefix := "/" + strings.Trim(publicPath, "/") + "/"
	if prefix != "//" {
		s.router.PathPrefix(prefix).Handler(http.StripPrefix(prefix, http.HandlerFunc(s.handleBundle))).Methods(http.MethodGet, http.MethodHead)
	}
	s.router.PathPrefix("/").HandlerFunc(s.handleStatic).Methods(http.MethodGet, http.MethodHead)
}

// Handler returns the server's router.
func (s *Server) Handler() http.Handler { return s.router }

// Injection returns the scripts added to served HTML.
func (s *Server) Injection() Injection { return s.inject }

// Addr returns the listening address once Run has bound it.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

func (s *Server) script(body []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write(body)
	}
}

func (s *Server) handleBundle(w http.ResponseWriter, r *http.Request) {
	out := s.bundler.Last()
	if out == nil {
		http.Error(w, "bundle not built yet", http.StatusServiceUnavailable)
		return
	}
	body, ok := out.File(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if ct := mime.TypeByExtension(path.Ext(r.URL.Path)); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(body)
}

// handleStatic serves files from the root. Paths that name no file and have
// no extension fall back to the index page so client-side routes load.
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	clean := path.Clean("/" + r.URL.Path)
	if clean == "/" || clean == "/"+s.cfg.IndexFile {
		s.serveIndex(w, r)
		return
	}

	full := filepath.Join(s.root, filepath.FromSlash(clean))
	info, err := os.Stat(full)
	switch {
	case err == nil && !info.IsDir():
		http.ServeFile(w, r, full)
	case path.Ext(clean) == "":
		s.serveIndex(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) serveIndex(w http.ResponseWriter, r *http.Request) {
	raw, err := os.ReadFile(filepath.Join(s.root, s.cfg.IndexFile))
	if err != nil {
		s.logger.Warn("Could not read index page", zap.Error(err))
		http.NotFound(w, r)
		return
	}
	page := string(raw)
	if !s.inject.Empty() {
		page, err = InjectHTML(page, s.inject)
		if err != nil {
			s.logger.Error("HTML injection failed", zap.Error(err))
			http.Error(w, "could not prepare page", http.StatusInternalServerError)
			return
		}
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write([]byte(page))
}

// Rebuild runs one build and tells connected pages about it. Parent frames
// hear sandbox:beforeUpdate and sandbox:afterUpdate around the build when the
// notifier is on, and an app_error when the build fails. Pages reload only
// after a successful build.
func (s *Server) Rebuild(ctx context.Context) error {
	s.events.publish(EventRebuild, "{}")
	s.notify(agent.TypeSandboxBeforeUpdate)
	_, err := s.bundler.Build(ctx)
	s.notify(agent.TypeSandboxAfterUpdate)
	if err != nil {
		if errors.Is(err, bundler.ErrBuildFailed) {
			s.post(buildError(err))
		}
		return err
	}
	if s.hub != nil {
		s.hub.ReloadAll()
	}
	s.events.publish(EventReload, "{}")
	return nil
}

func (s *Server) notify(msgType string) {
	if s.cfg.HMRNotifier {
		s.post(agent.Notice{Type: msgType})
	}
}

// post sends msg to every parent frame, through the bridge for attached
// pages and the event stream for the rest.
func (s *Server) post(msg any) {
	if s.hub != nil {
		s.hub.Broadcast(msg)
	}
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Debug("Could not encode message", zap.Error(err))
		return
	}
	s.events.publish(EventUpdate, string(data))
}

// buildError turns a failed build into an app_error titled with the first
// line of the bundler's report.
func buildError(err error) agent.AppError {
	details := err.Error()
	title, _, _ := strings.Cut(details, "\n")
	return agent.NewAppError(title, details)
}

func (s *Server) onChange(ctx context.Context, paths []string) {
	s.logger.Info("Sources changed; rebuilding", zap.Int("files", len(paths)), zap.Strings("paths", paths))
	if err := s.Rebuild(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("Rebuild failed", zap.Error(err))
	}
}

// Run builds once, then serves until ctx is done. The watcher runs alongside
// the HTTP server when enabled. A failed initial build is logged and the
// server still starts, so fixing the source recovers without a restart.
func (s *Server) Run(ctx context.Context) error {
	if _, err := s.bundler.Build(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Error("Initial build failed", zap.Error(err))
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	}
	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()

	server := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		ErrorLog:          zap.NewStdLog(s.logger.Named("http_server")),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("Dev server listening", zap.String("address", ln.Addr().String()), zap.String("root", s.root))
		if err := server.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("dev server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("Shutdown signal received, stopping dev server...")
		s.events.close()
		if s.hub != nil {
			s.hub.Close()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if s.cfg.Watch {
		w, err := newWatcher(s.root, s.bundler.OutDir(), s.cfg.WatchDebounce, s.logger.Named("watcher"), s.onChange)
		if err != nil {
			s.logger.Warn("File watching disabled", zap.Error(err))
		} else {
			g.Go(func() error { return w.run(gctx) })
		}
	}

	if err := g.Wait(); err != nil {
		s.logger.Error("Dev server stopped with an error", zap.Error(err))
		return err
	}
	s.logger.Info("Dev server stopped gracefully.")
	return nil
}
