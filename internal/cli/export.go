package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"famhub/internal/export"

	"github.com/spf13/cobra"
)

type ExportOptions struct {
	*RootOptions
	Output string
}

type ExportResult struct {
	Path  string `json:"path"`
	Count int    `json:"count"`
}

func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:     "export",
		Short:   "Write the pending queue to an Excel workbook",
		Example: `  queuectl export --out ./exports/pending.xlsx`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "out", "o", "pending-actions.xlsx", "output .xlsx path")

	return cmd
}

func runExport(ctx context.Context, opts *ExportOptions, cmd *cobra.Command) error {
	env, err := opts.open(ctx, opts.RootOptions, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer env.Close()

	actions, err := env.Queue.List(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read queue", err)
	}
	if err := export.SaveQueue(opts.Output, actions, time.Now()); err != nil {
		return WrapExitError(ExitCommandError, "failed to write workbook", err)
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return out.Write(ExportResult{Path: opts.Output, Count: len(actions)}, func(w io.Writer) {
		fmt.Fprintf(w, "Exported %d actions to %s\n", len(actions), opts.Output)
	})
}
