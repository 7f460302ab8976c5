package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

type RemoveResult struct {
	ID      string `json:"id"`
	Removed bool   `json:"removed"`
}

func NewRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <id>",
		Aliases: []string{"rm"},
		Short:   "Drop a queued action without sending it",
		Long: `Drop a queued action by id. Removing an id that is not queued is not an
error; the output reports removed=false.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemove(cmd.Context(), rootOpts, args[0], cmd)
		},
	}
}

func runRemove(ctx context.Context, opts *RootOptions, id string, cmd *cobra.Command) error {
	env, err := opts.open(ctx, opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer env.Close()

	_, found, err := env.Queue.Get(ctx, id)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read queue", err)
	}
	if found {
		if err := env.Queue.Remove(ctx, id); err != nil {
			return WrapExitError(ExitCommandError, "failed to remove action", err)
		}
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return out.Write(RemoveResult{ID: id, Removed: found}, func(w io.Writer) {
		if found {
			fmt.Fprintf(w, "Removed %s\n", id)
		} else {
			fmt.Fprintf(w, "%s is not queued\n", id)
		}
	})
}
