// File: internal/bundler/bundler.go

// Package bundler wraps esbuild for the dev server and the build command.
// In development mode every component source passes through the
// instrumentor before esbuild loads it.
package bundler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/evanw/esbuild/pkg/api"
	"go.uber.org/zap"

	"github.com/xkilldash9x/vedit/internal/config"
	"github.com/xkilldash9x/vedit/internal/instrument"
)

// ErrBuildFailed wraps esbuild's reported errors.
var ErrBuildFailed = errors.New("build failed")

// Options configures a Bundler.
type Options struct {
	Root        string
	EntryPoints []string
	OutDir      string
	PublicPath  string
	Sourcemap   bool
	Define      map[string]string
	// Development enables the instrumentation plugin.
	Development bool
}

// OptionsFromConfig maps the build and server sections of the configuration.
// Instrumentation runs only in development mode with the instrumentor enabled.
func OptionsFromConfig(cfg config.Interface) Options {
	build, server := cfg.Build(), cfg.Server()
	return Options{
		Root:        server.Root,
		EntryPoints: build.EntryPoints,
		OutDir:      build.OutDir,
		PublicPath:  build.PublicPath,
		Sourcemap:   build.Sourcemap,
		Define:      build.Define,
		Development: server.Development() && cfg.Instrument().Enabled,
	}
}

// Output is the in-memory result of one build.
type Output struct {
	// Files maps paths relative to the out dir, slash separated, to contents.
	Files    map[string][]byte
	Warnings []string
	// Instrumented counts the modules the plugin tagged.
	Instrumented int
}

// File returns an output file by its path relative to the out dir.
func (o *Output) File(name string) ([]byte, bool) {
	if o == nil {
		return nil, false
	}
	b, ok := o.Files[strings.TrimPrefix(filepath.ToSlash(name), "/")]
	return b, ok
}

// Names lists the output paths in order.
func (o *Output) Names() []string {
	names := make([]string, 0, len(o.Files))
	for name := range o.Files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Bundler runs builds and keeps the most recent successful output.
type Bundler struct {
	logger *zap.Logger
	inst   *instrument.Instrumentor
	opts   Options

	mu   sync.RWMutex
	last *Output
}

// New creates a Bundler. Root is made absolute.
func New(logger *zap.Logger, inst *instrument.Instrumentor, opts Options) (*Bundler, error) {
	if len(opts.EntryPoints) == 0 {
		return nil, fmt.Errorf("bundler: no entry points configured")
	}
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("bundler: resolve root: %w", err)
	}
	opts.Root = root
	if opts.OutDir == "" {
		opts.OutDir = "dist"
	}
	return &Bundler{logger: logger.Named("bundler"), inst: inst, opts: opts}, nil
}

// OutDir returns the absolute output directory.
func (b *Bundler) OutDir() string {
	if filepath.IsAbs(b.opts.OutDir) {
		return b.opts.OutDir
	}
	return filepath.Join(b.opts.Root, b.opts.OutDir)
}

// Last returns the output of the most recent successful build, or nil.
func (b *Bundler) Last() *Output {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.last
}

// Build bundles the entry points in memory. Nothing is written to disk.
func (b *Bundler) Build(ctx context.Context) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var tagged atomic.Int64
	opts := api.BuildOptions{
		AbsWorkingDir: b.opts.Root,
		EntryPoints:   b.opts.EntryPoints,
		Bundle:        true,
		Write:         false,
		Outdir:        b.OutDir(),
		PublicPath:    b.opts.PublicPath,
		Define:        b.opts.Define,
		Format:        api.FormatESModule,
		Loader:        map[string]api.Loader{".js": api.LoaderJSX},
		LogLevel:      api.LogLevelSilent,
	}
	if b.opts.Sourcemap {
		opts.Sourcemap = api.SourceMapLinked
	}
	if b.opts.Development {
		opts.Plugins = []api.Plugin{Plugin(b.inst, b.logger, &tagged)}
	} else {
		opts.MinifyWhitespace = true
		opts.MinifySyntax = true
	}

	result := api.Build(opts)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(result.Errors) > 0 {
		msgs := api.FormatMessages(result.Errors, api.FormatMessagesOptions{Kind: api.ErrorMessage})
		return nil, fmt.Errorf("%w: %s", ErrBuildFailed, strings.TrimSpace(strings.Join(msgs, "\n")))
	}

	out := &Output{
		Files:        make(map[string][]byte, len(result.OutputFiles)),
		Instrumented: int(tagged.Load()),
	}
	if len(result.Warnings) > 0 {
		out.Warnings = api.FormatMessages(result.Warnings, api.FormatMessagesOptions{Kind: api.WarningMessage})
	}
	for _, f := range result.OutputFiles {
		rel, err := filepath.Rel(b.OutDir(), f.Path)
		if err != nil {
			rel = filepath.Base(f.Path)
		}
		out.Files[filepath.ToSlash(rel)] = f.Contents
	}

	b.mu.Lock()
	b.last = out
	b.mu.Unlock()

	b.logger.Info("Build complete",
		zap.Int("files", len(out.Files)),
		zap.Int("instrumented", out.Instrumented),
		zap.Int("warnings", len(out.Warnings)))
	return out, nil
}

// Write stores out under the out dir.
func (b *Bundler) Write(out *Output) error {
	dir := b.OutDir()
	for _, name := range out.Names() {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
		}
		if err := os.WriteFile(path, out.Files[name], 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	return nil
}
