package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"famhub/internal/models"
	"famhub/internal/queue"

	"github.com/spf13/cobra"
)

type AddOptions struct {
	*RootOptions
	Payload string
}

// NewAddCommand queues an action without trying the remote first.
func NewAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AddOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "add <type>",
		Short: "Queue an action for the next sync pass",
		Long: `Queue an action directly in local storage. The action is replayed by the
next sync pass, from the agent or from "queuectl sync".

Types: create_calendar_event, create_todo, create_meal, create_activity, create_goal`,
		Example: `  queuectl add create_todo --payload '{"title":"Buy milk"}'`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(cmd.Context(), opts, models.ActionType(args[0]), cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Payload, "payload", "p", "{}", "action payload as a JSON object")

	return cmd
}

func runAdd(ctx context.Context, opts *AddOptions, actionType models.ActionType, cmd *cobra.Command) error {
	payload := json.RawMessage(opts.Payload)
	if err := queue.Validate(actionType, payload); err != nil {
		return WrapExitError(ExitCommandError, "invalid action", err)
	}

	env, err := opts.open(ctx, opts.RootOptions, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer env.Close()

	action, err := env.Queue.Enqueue(ctx, actionType, payload)
	if err != nil {
		if errors.Is(err, queue.ErrQueueFull) {
			return WrapExitError(ExitFailure, "queue is full", err)
		}
		return WrapExitError(ExitCommandError, "failed to queue action", err)
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return out.Write(action, func(w io.Writer) {
		fmt.Fprintf(w, "Queued %s %s\n", action.Type, action.ID)
	})
}
