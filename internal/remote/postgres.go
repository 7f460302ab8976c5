package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"famhub/internal/metrics"
	"famhub/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// PostgresClient writes actions straight into the backend database.
type PostgresClient struct {
	pool   *pgxpool.Pool
	logger *zerolog.Logger
}

func NewPostgresClient(ctx context.Context, dsn string, logger *zerolog.Logger) (*PostgresClient, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresClient{pool: pool, logger: logger}, nil
}

func (c *PostgresClient) Close() {
	c.pool.Close()
}

func (c *PostgresClient) CreateCalendarEvent(ctx context.Context, payload json.RawMessage) error {
	return c.insert(ctx, models.ActionCreateCalendarEvent, payload)
}

func (c *PostgresClient) CreateTodo(ctx context.Context, payload json.RawMessage) error {
	return c.insert(ctx, models.ActionCreateTodo, payload)
}

func (c *PostgresClient) CreateMeal(ctx context.Context, payload json.RawMessage) error {
	return c.insert(ctx, models.ActionCreateMeal, payload)
}

func (c *PostgresClient) CreateActivity(ctx context.Context, payload json.RawMessage) error {
	return c.insert(ctx, models.ActionCreateActivity, payload)
}

func (c *PostgresClient) CreateGoal(ctx context.Context, payload json.RawMessage) error {
	return c.insert(ctx, models.ActionCreateGoal, payload)
}

func (c *PostgresClient) insert(ctx context.Context, actionType models.ActionType, payload json.RawMessage) error {
	keys, err := objectKeys(payload)
	if err != nil {
		return err
	}
	query := buildInsert(actionType.Table(), keys)

	var args []any
	if len(keys) > 0 {
		args = append(args, string(payload))
	}

	start := time.Now()
	_, err = c.pool.Exec(ctx, query, args...)
	metrics.ObserveRemote(string(actionType), time.Since(start).Seconds())
	if err != nil {
		c.logger.Warn().Err(err).Str("table", actionType.Table()).Msg("postgres insert failed")
		return classifyPgError(err)
	}
	return nil
}

// buildInsert maps the payload keys onto columns of table; Postgres coerces
// the JSON values to the column types.
func buildInsert(table string, keys []string) string {
	tbl := pgx.Identifier{table}.Sanitize()
	if len(keys) == 0 {
		return fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", tbl)
	}

	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	cols := make([]string, len(sorted))
	for i, k := range sorted {
		cols[i] = pgx.Identifier{k}.Sanitize()
	}
	list := strings.Join(cols, ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM json_populate_record(NULL::%s, $1::json)", tbl, list, list, tbl)
}

func classifyPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return err
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) || pgconn.Timeout(err) || pgconn.SafeToRetry(err) || IsNetworkError(err) {
		return networkError(err)
	}
	return err
}
