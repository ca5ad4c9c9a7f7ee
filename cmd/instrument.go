// File: cmd/instrument.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/vedit/internal/instrument"
	"github.com/xkilldash9x/vedit/internal/observability"
)

type instrumentMode int

const (
	modePrint instrumentMode = iota
	modeWrite
	modeDiff
)

func newInstrumentCmd() *cobra.Command {
	var write, diff bool

	cmd := &cobra.Command{
		Use:   "instrument [files...]",
		Short: "Tag JSX elements in source files with their source location",
		Long: `Runs the source instrumentor over each file. By default the transformed
source is printed to stdout. --write rewrites files in place and --diff prints
a unified diff of what would change.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			ic := cfg.Instrument()
			inst := instrument.New(observability.GetLogger(), instrument.Options{
				Extensions: ic.Extensions,
				Exclude:    ic.Exclude,
			})

			mode := modePrint
			switch {
			case write:
				mode = modeWrite
			case diff:
				mode = modeDiff
			}
			return runInstrument(cmd.Context(), observability.GetLogger(), inst, args, mode, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVarP(&write, "write", "w", false, "rewrite files in place")
	cmd.Flags().BoolVarP(&diff, "diff", "d", false, "print a unified diff instead of the transformed source")
	cmd.MarkFlagsMutuallyExclusive("write", "diff")
	return cmd
}

// runInstrument transforms each file. Files the instrumentor does not accept
// are skipped with a warning; unreadable files abort the run.
func runInstrument(ctx context.Context, logger *zap.Logger, inst *instrument.Instrumentor, files []string, mode instrumentMode, out io.Writer) error {
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		id := filepath.ToSlash(file)
		if !inst.ShouldTransform(id) {
			logger.Warn("Skipping file the instrumentor does not accept", zap.String("file", file))
			continue
		}

		src, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read %s: %w", file, err)
		}
		res := inst.Transform(ctx, string(src), id)

		switch mode {
		case modeWrite:
			if !res.Changed {
				continue
			}
			info, err := os.Stat(file)
			if err != nil {
				return fmt.Errorf("stat %s: %w", file, err)
			}
			if err := os.WriteFile(file, []byte(res.Code), info.Mode().Perm()); err != nil {
				return fmt.Errorf("write %s: %w", file, err)
			}
			logger.Info("Instrumented file", zap.String("file", file), zap.Int("elements", res.Elements))
		case modeDiff:
			if !res.Changed {
				continue
			}
			text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
				A:        difflib.SplitLines(string(src)),
				B:        difflib.SplitLines(res.Code),
				FromFile: "a/" + id,
				ToFile:   "b/" + id,
				Context:  1,
			})
			if err != nil {
				return fmt.Errorf("diff %s: %w", file, err)
			}
			if _, err := io.WriteString(out, text); err != nil {
				return err
			}
		default:
			if len(files) > 1 {
				if _, err := fmt.Fprintf(out, "// %s\n", id); err != nil {
					return err
				}
			}
			if _, err := io.WriteString(out, res.Code); err != nil {
				return err
			}
		}
	}
	return nil
}
