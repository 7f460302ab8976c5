package api

import (
	"errors"
	"net"
	"net/http"
	"strings"

	"famhub/internal/config"
)

const (
	permReadStatus   = "read:status"
	permReadQueue    = "read:queue"
	permWriteQueue   = "write:queue"
	permWriteActions = "write:actions"
	permWriteSync    = "write:sync"
	permWriteNetwork = "write:network"

	apiKeyHeaderDefault = "x-api-key"
	apiKeyQueryParam    = "api_key"
	clientKeyUnknown    = "unknown"
)

var (
	errMissingAPIKey    = errors.New("missing api key")
	errInvalidAPIKey    = errors.New("invalid api key")
	errPermissionDenied = errors.New("permission denied")
	errRateLimited      = errors.New("rate limit exceeded")
)

// HTTPAuth provides API-key auth with per-key permissions and per-client
// rate limiting.
type HTTPAuth struct {
	cfg     config.APIConfig
	clients map[string]config.APIClientKey
	limiter *rateLimiter
}

func NewHTTPAuth(cfg config.APIConfig) *HTTPAuth {
	m := make(map[string]config.APIClientKey, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		m[k.Key] = k
	}
	return &HTTPAuth{cfg: cfg, clients: m, limiter: newRateLimiter(cfg.RateLimit)}
}

// Require wraps next so it only runs for clients holding permission.
func (a *HTTPAuth) Require(permission string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.cfg.Auth.Enabled {
			if err := a.checkAuth(r, permission); err != nil {
				statusCode := http.StatusUnauthorized
				if errors.Is(err, errPermissionDenied) {
					statusCode = http.StatusForbidden
				}
				writeError(w, statusCode, err.Error())
				return
			}
		}

		if !a.allow(r) {
			writeError(w, http.StatusTooManyRequests, errRateLimited.Error())
			return
		}

		next(w, r)
	})
}

func (a *HTTPAuth) checkAuth(r *http.Request, permission string) error {
	apiKey := a.apiKey(r)
	if apiKey == "" {
		return errMissingAPIKey
	}

	client, ok := a.clients[apiKey]
	if !ok {
		return errInvalidAPIKey
	}

	return checkPermissions(client, permission)
}

func checkPermissions(client config.APIClientKey, required string) error {
	if required == "" {
		return nil
	}
	// An empty permission list allows everything.
	if len(client.Permissions) == 0 {
		return nil
	}
	for _, p := range client.Permissions {
		if strings.TrimSpace(p) == required {
			return nil
		}
	}
	return errPermissionDenied
}

func (a *HTTPAuth) allow(r *http.Request) bool {
	if a.cfg.RateLimit.RPS <= 0 {
		return true
	}
	return a.limiter.getLimiter(a.clientKey(r)).Allow()
}

// apiKey reads the key header, falling back to a query parameter for
// browser websocket clients that cannot set headers.
func (a *HTTPAuth) apiKey(r *http.Request) string {
	header := strings.TrimSpace(strings.ToLower(a.cfg.Auth.HeaderAPIKey))
	if header == "" {
		header = apiKeyHeaderDefault
	}
	if key := strings.TrimSpace(r.Header.Get(header)); key != "" {
		return key
	}
	return strings.TrimSpace(r.URL.Query().Get(apiKeyQueryParam))
}

func (a *HTTPAuth) clientKey(r *http.Request) string {
	if apiKey := a.apiKey(r); apiKey != "" {
		return apiKey
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return clientKeyUnknown
}
