package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"famhub/internal/models"

	"github.com/spf13/cobra"
)

// ListResult is the JSON shape of the list command.
type ListResult struct {
	Actions []models.QueuedAction `json:"actions"`
	Count   int                   `json:"count"`
}

func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List queued actions in replay order",
		Example: `  queuectl list
  queuectl list --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd.Context(), rootOpts, cmd)
		},
	}
}

func runList(ctx context.Context, opts *RootOptions, cmd *cobra.Command) error {
	env, err := opts.open(ctx, opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer env.Close()

	actions, err := env.Queue.List(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read queue", err)
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return out.Write(ListResult{Actions: actions, Count: len(actions)}, func(w io.Writer) {
		if len(actions) == 0 {
			fmt.Fprintln(w, "No queued actions.")
			return
		}
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "#\tID\tTYPE\tCREATED\tPAYLOAD")
		for i, a := range actions {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", i+1, a.ID, a.Type, a.CreatedAt.Format(time.RFC3339), a.Payload)
		}
		_ = tw.Flush()
	})
}
