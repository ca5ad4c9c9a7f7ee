// File: cmd/serve.go
package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/vedit/internal/bridge"
	"github.com/xkilldash9x/vedit/internal/bundler"
	"github.com/xkilldash9x/vedit/internal/devserver"
	"github.com/xkilldash9x/vedit/internal/instrument"
	"github.com/xkilldash9x/vedit/internal/observability"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the development server with the visual edit agent",
		Long: `Serves the app from the project root, rebuilding on change. In development
mode served pages get the CSS runtime, the rebuild notifier and the visual
edit agent, which a parent editor frame drives over postMessage.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			ic := cfg.Instrument()
			inst := instrument.New(logger, instrument.Options{Extensions: ic.Extensions, Exclude: ic.Exclude})
			b, err := bundler.New(logger, inst, bundler.OptionsFromConfig(cfg))
			if err != nil {
				return err
			}

			var hub *bridge.Hub
			if cfg.Agent().Enabled && cfg.Server().Development() {
				hub = bridge.NewHub(logger, bridge.OptionsFromConfig(cfg.Agent()))
			} else {
				logger.Info("Visual edit agent disabled", zap.String("mode", cfg.Server().Mode))
			}

			srv, err := devserver.New(cfg, b, hub, logger)
			if err != nil {
				return err
			}
			return srv.Run(ctx)
		},
	}

	cmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	cmd.Flags().String("root", "", "project root (overrides server.root)")
	cmd.Flags().String("mode", "", "development or production (overrides server.mode)")
	cmd.Flags().Bool("watch", true, "rebuild when sources change (overrides server.watch)")
	bindFlag(cmd.Flags(), "addr", "server.addr")
	bindFlag(cmd.Flags(), "root", "server.root")
	bindFlag(cmd.Flags(), "mode", "server.mode")
	bindFlag(cmd.Flags(), "watch", "server.watch")
	return cmd
}
