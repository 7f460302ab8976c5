package cli

import (
	"context"
	"fmt"
	"io"

	"famhub/internal/worker"

	"github.com/spf13/cobra"
)

type SyncOptions struct {
	*RootOptions
}

func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	return &cobra.Command{
		Use:   "sync",
		Short: "Replay queued actions against the remote API",
		Long: `Replay queued actions oldest first. The pass stops at the first action the
remote rejects or cannot be reached for; that action and everything after it
stay queued.

Exit codes:
  0 - queue drained
  1 - pass stopped on a failed action
  2 - command error (config, storage, remote setup)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd.Context(), opts, cmd)
		},
	}
}

func runSync(ctx context.Context, opts *SyncOptions, cmd *cobra.Command) error {
	env, err := opts.open(ctx, opts.RootOptions, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer env.Close()

	client, closeRemote, err := env.Remote(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open remote", err)
	}
	defer closeRemote()

	runnerOpts := worker.Options{Logger: env.Logger}
	if env.Config != nil {
		runnerOpts.ActionTimeout = env.Config.Sync.ActionTimeout
	}
	result, err := worker.NewSyncRunner(env.Queue, client, runnerOpts).Run(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "sync pass could not start", err)
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if !result.Success {
		failure := fmt.Errorf("%s %s: %s", result.FailedActionType, result.FailedActionID, result.Error)
		if err := out.Fail(result, failure); err != nil {
			return err
		}
		return WrapExitError(ExitFailure, fmt.Sprintf("sync stopped after %d synced", result.SyncedCount), failure)
	}
	return out.Write(result, func(w io.Writer) {
		fmt.Fprintf(w, "Synced %d queued actions\n", result.SyncedCount)
	})
}
