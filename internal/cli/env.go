package cli

import (
	"context"
	"io"
	"time"

	"famhub/internal/bootstrap"
	"famhub/internal/config"
	"famhub/internal/queue"
	"famhub/internal/remote"

	"github.com/rs/zerolog"
)

// Env is what a command works against: the queue over local storage and,
// for sync, a remote client opened on demand.
type Env struct {
	Queue  *queue.Store
	Logger *zerolog.Logger
	Config *config.Config

	connect func(ctx context.Context) (remote.Client, func(), error)
	close   func()
}

// Opener builds an Env for a command invocation.
type Opener func(ctx context.Context, opts *RootOptions, stderr io.Writer) (*Env, error)

// Remote opens the configured remote client. The returned close function is
// never nil.
func (e *Env) Remote(ctx context.Context) (remote.Client, func(), error) {
	if e.connect == nil {
		return nil, func() {}, NewExitError(ExitCommandError, "no remote configured")
	}
	return e.connect(ctx)
}

func (e *Env) Close() {
	if e.close != nil {
		e.close()
	}
}

// OpenEnv loads the config file and opens the storage it names.
func OpenEnv(ctx context.Context, opts *RootOptions, stderr io.Writer) (*Env, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}

	logger := newLogger(opts.Verbose, stderr)
	storage, err := bootstrap.OpenStorage(ctx, cfg, logger)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open storage", err)
	}
	q := bootstrap.NewQueue(storage, cfg)

	return &Env{
		Queue:  q,
		Logger: logger,
		Config: cfg,
		connect: func(ctx context.Context) (remote.Client, func(), error) {
			return remote.New(ctx, cfg.Remote, logger)
		},
		close: func() {
			q.Close()
			if err := storage.Close(); err != nil {
				logger.Warn().Err(err).Msg("close storage")
			}
		},
	}, nil
}

func newLogger(verbose bool, stderr io.Writer) *zerolog.Logger {
	if !verbose {
		nop := zerolog.Nop()
		return &nop
	}
	l := zerolog.New(zerolog.ConsoleWriter{Out: stderr, TimeFormat: time.RFC3339}).
		Level(zerolog.DebugLevel).
		With().
		Timestamp().
		Logger()
	return &l
}
