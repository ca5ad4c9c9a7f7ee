// File: internal/bundler/plugin.go
package bundler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/evanw/esbuild/pkg/api"
	"go.uber.org/zap"

	"github.com/xkilldash9x/vedit/internal/instrument"
)

// PluginName is reported by esbuild in messages raised from the plugin.
const PluginName = "vedit-instrument"

// sourceFilter matches the component sources the instrumentor may tag.
const sourceFilter = `\.(jsx?|tsx?)$`

// loaderFor mirrors the dev setup: plain .js files may contain JSX.
func loaderFor(path string) api.Loader {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tsx":
		return api.LoaderTSX
	case ".ts", ".mts", ".cts":
		return api.LoaderTS
	default:
		return api.LoaderJSX
	}
}

// Plugin returns an esbuild plugin that runs the instrumentor before the
// loader sees each source. Excluded modules fall through to esbuild's own
// loading. tagged, when non-nil, counts instrumented modules.
func Plugin(inst *instrument.Instrumentor, logger *zap.Logger, tagged *atomic.Int64) api.Plugin {
	log := logger.Named("plugin")
	return api.Plugin{
		Name: PluginName,
		Setup: func(build api.PluginBuild) {
			build.OnLoad(api.OnLoadOptions{Filter: sourceFilter}, func(args api.OnLoadArgs) (api.OnLoadResult, error) {
				if !inst.ShouldTransform(args.Path) {
					return api.OnLoadResult{}, nil
				}
				src, err := os.ReadFile(args.Path)
				if err != nil {
					return api.OnLoadResult{}, fmt.Errorf("read %s: %w", args.Path, err)
				}

				res := inst.Transform(context.Background(), string(src), args.Path)
				if res.Changed && tagged != nil {
					tagged.Add(1)
				}
				if res.Fallback {
					log.Debug("Serving module uninstrumented", zap.String("path", args.Path))
				}

				contents := res.Code
				return api.OnLoadResult{
					PluginName: PluginName,
					Contents:   &contents,
					ResolveDir: filepath.Dir(args.Path),
					Loader:     loaderFor(args.Path),
				}, nil
			})
		},
	}
}
