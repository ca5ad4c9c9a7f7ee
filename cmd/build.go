// File: cmd/build.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/vedit/internal/bundler"
	"github.com/xkilldash9x/vedit/internal/instrument"
	"github.com/xkilldash9x/vedit/internal/observability"
)

func newBuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Bundle the app once and write it to the output directory",
		Long: `Bundles the configured entry points with esbuild. In development mode the
instrumentor tags every JSX element on the way through.`,
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

			out, err := b.Build(ctx)
			if err != nil {
				return err
			}
			for _, w := range out.Warnings {
				logger.Warn("Build warning", zap.String("message", w))
			}
			if err := b.Write(out); err != nil {
				return fmt.Errorf("failed to write bundle: %w", err)
			}

			for _, name := range out.Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}

	cmd.Flags().String("outdir", "", "output directory (overrides build.out_dir)")
	cmd.Flags().String("root", "", "project root (overrides server.root)")
	cmd.Flags().String("mode", "", "development or production (overrides server.mode)")
	bindFlag(cmd.Flags(), "outdir", "build.out_dir")
	bindFlag(cmd.Flags(), "root", "server.root")
	bindFlag(cmd.Flags(), "mode", "server.mode")
	return cmd
}
