package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"famhub/internal/domain"

	"github.com/rs/zerolog"
)

const defaultRecoverAfter = time.Minute

// FailoverStorage writes to primary until it errors, then serves from fallback.
// After recoverAfter it probes the primary again; keys written to the fallback
// in the meantime are copied back before the primary takes over.
type FailoverStorage struct {
	primary      domain.KeyValueStore
	fallback     domain.KeyValueStore
	logger       *zerolog.Logger
	recoverAfter time.Duration
	now          func() time.Time

	mu        sync.Mutex
	isDown    bool
	lastCheck time.Time
	dirty     map[string]struct{}
}

func NewFailoverStorage(primary, fallback domain.KeyValueStore, logger *zerolog.Logger) *FailoverStorage {
	return &FailoverStorage{
		primary:      primary,
		fallback:     fallback,
		logger:       logger,
		recoverAfter: defaultRecoverAfter,
		now:          time.Now,
		dirty:        make(map[string]struct{}),
	}
}

// Degraded reports whether the fallback is currently serving.
func (r *FailoverStorage) Degraded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isDown
}

func (r *FailoverStorage) Get(ctx context.Context, key string) ([]byte, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.usePrimary(ctx) {
		val, found, err := r.primary.Get(ctx, key)
		if err == nil {
			return val, found, nil
		}
		r.markDown(err)
	}
	return r.fallback.Get(ctx, key)
}

func (r *FailoverStorage) Set(ctx context.Context, key string, value []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.usePrimary(ctx) {
		err := r.primary.Set(ctx, key, value)
		if err == nil {
			return nil
		}
		r.markDown(err)
	}
	r.dirty[key] = struct{}{}
	return r.fallback.Set(ctx, key, value)
}

func (r *FailoverStorage) Remove(ctx context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.usePrimary(ctx) {
		err := r.primary.Remove(ctx, key)
		if err == nil {
			return nil
		}
		r.markDown(err)
	}
	r.dirty[key] = struct{}{}
	return r.fallback.Remove(ctx, key)
}

// usePrimary must be called with mu held.
func (r *FailoverStorage) usePrimary(ctx context.Context) bool {
	if !r.isDown {
		return true
	}
	if r.now().Sub(r.lastCheck) <= r.recoverAfter {
		return false
	}
	r.lastCheck = r.now()
	if err := r.restore(ctx); err != nil {
		r.logger.Warn().Err(err).Msg("primary storage still unavailable")
		return false
	}
	r.isDown = false
	r.logger.Info().Msg("primary storage recovered")
	return true
}

// restore copies keys written during the outage back to the primary.
func (r *FailoverStorage) restore(ctx context.Context) error {
	keys := make([]string, 0, len(r.dirty))
	for key := range r.dirty {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		val, found, err := r.fallback.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("read fallback %s: %w", key, err)
		}
		if found {
			err = r.primary.Set(ctx, key, val)
		} else {
			err = r.primary.Remove(ctx, key)
		}
		if err != nil {
			return err
		}
		delete(r.dirty, key)
	}
	// Probe with a read so recovery is confirmed even without dirty keys.
	_, _, err := r.primary.Get(ctx, "__famhub_probe__")
	return err
}

func (r *FailoverStorage) markDown(err error) {
	r.logger.Error().Err(err).Msg("primary storage failed, falling back")
	r.isDown = true
	r.lastCheck = r.now()
}
