package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"famhub/internal/config"
	"famhub/internal/metrics"
	"famhub/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// HTTPClient inserts rows through a PostgREST endpoint:
// POST {base}/rest/v1/{table}.
type HTTPClient struct {
	baseURL     string
	apiKey      string
	accessToken string
	http        *http.Client
	limiter     *rate.Limiter
	logger      *zerolog.Logger
}

func NewHTTPClient(cfg config.RemoteConfig, logger *zerolog.Logger) *HTTPClient {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = models.DefaultRemoteTimeout * time.Second
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &HTTPClient{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		accessToken: cfg.AccessToken,
		http:        &http.Client{Timeout: timeout},
		limiter:     rate.NewLimiter(limit, burst),
		logger:      logger,
	}
}

func (c *HTTPClient) CreateCalendarEvent(ctx context.Context, payload json.RawMessage) error {
	return c.insert(ctx, models.ActionCreateCalendarEvent, payload)
}

func (c *HTTPClient) CreateTodo(ctx context.Context, payload json.RawMessage) error {
	return c.insert(ctx, models.ActionCreateTodo, payload)
}

func (c *HTTPClient) CreateMeal(ctx context.Context, payload json.RawMessage) error {
	return c.insert(ctx, models.ActionCreateMeal, payload)
}

func (c *HTTPClient) CreateActivity(ctx context.Context, payload json.RawMessage) error {
	return c.insert(ctx, models.ActionCreateActivity, payload)
}

func (c *HTTPClient) CreateGoal(ctx context.Context, payload json.RawMessage) error {
	return c.insert(ctx, models.ActionCreateGoal, payload)
}

func (c *HTTPClient) insert(ctx context.Context, actionType models.ActionType, payload json.RawMessage) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	start := time.Now()
	defer func() {
		metrics.ObserveRemote(string(actionType), time.Since(start).Seconds())
	}()

	url := c.baseURL + "/rest/v1/" + actionType.Table()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=minimal")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}
	token := c.accessToken
	if token == "" {
		token = c.apiKey
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil && !IsNetworkError(ctx.Err()) {
			return ctx.Err()
		}
		return networkError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	c.logger.Warn().
		Str("table", actionType.Table()).
		Int("status", resp.StatusCode).
		Msg("remote insert rejected")
	return &StatusError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
}

// errorMessage extracts the "message" field PostgREST puts in error bodies,
// falling back to the raw body text.
func errorMessage(body []byte) string {
	var parsed struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Message != "" {
			return parsed.Message
		}
		if parsed.Error != "" {
			return parsed.Error
		}
	}
	return strings.TrimSpace(string(body))
}
