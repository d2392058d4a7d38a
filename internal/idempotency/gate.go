// Package idempotency deduplicates retried mutating requests. A client key
// is hashed, the mutation runs under a per-key lock and its successful
// response is replayed verbatim to later callers.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"

	"github.com/smallbiznis/ticketing/internal/apperror"
	"github.com/smallbiznis/ticketing/internal/cache"
	"github.com/smallbiznis/ticketing/internal/config"
	"github.com/smallbiznis/ticketing/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const HeaderKey = "Idempotency-Key"

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{10,255}$`)

var ErrInvalidKey = apperror.Validation("invalid_idempotency_key", HeaderKey, "Idempotency-Key header must be 10-255 characters of letters, digits, '.', '_', ':' or '-'")

// Result is the response a mutation produced. Only results below 400 are
// stored for replay.
type Result struct {
	Status int    `json:"status"`
	Body   []byte `json:"body"`
}

type Params struct {
	fx.In

	Log     *zap.Logger
	Store   cache.Store
	Locker  cache.Locker
	Tuning  *config.TuningHolder
	Metrics *metrics.Metrics `optional:"true"`
}

type Gate struct {
	log     *zap.Logger
	store   cache.Store
	locker  cache.Locker
	tuning  *config.TuningHolder
	metrics *metrics.Metrics
}

func New(p Params) *Gate {
	return &Gate{
		log:     p.Log.Named("idempotency"),
		store:   p.Store,
		locker:  p.Locker,
		tuning:  p.Tuning,
		metrics: p.Metrics,
	}
}

func ValidKey(raw string) bool {
	return keyPattern.MatchString(raw)
}

func hashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func resultKey(scope, hash string) string {
	return fmt.Sprintf("idempotency:result:%s:%s", scope, hash)
}

func lockKey(scope, hash string) string {
	return fmt.Sprintf("idempotency:lock:%s:%s", scope, hash)
}

// Execute runs fn at most once per (scope, key) while a stored result
// lives. The bool reports whether the result is a replay. Lock or store
// failures fail the request rather than skipping deduplication.
func (g *Gate) Execute(ctx context.Context, scope, rawKey string, fn func(ctx context.Context) (Result, error)) (Result, bool, error) {
	if !ValidKey(rawKey) {
		return Result{}, false, ErrInvalidKey
	}
	cfg := g.tuning.Get().Idempotency
	hash := hashKey(rawKey)
	log := g.log.With(zap.String("scope", scope), zap.String("key_hash", hash[:12]))

	lk := lockKey(scope, hash)
	token, err := cache.Acquire(ctx, g.locker, lk, cfg.LockTTL, cfg.LockWait)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return Result{}, false, err
		}
		return Result{}, false, apperror.Unavailable(fmt.Errorf("acquire idempotency lock: %w", err))
	}
	defer func() {
		if err := g.locker.Release(context.WithoutCancel(ctx), lk, token); err != nil {
			log.Warn("failed to release idempotency lock", zap.Error(err))
		}
	}()

	rk := resultKey(scope, hash)
	cached, ok, err := g.store.Get(ctx, rk)
	if err != nil {
		return Result{}, false, apperror.Unavailable(fmt.Errorf("read idempotency result: %w", err))
	}
	if ok {
		var res Result
		if err := json.Unmarshal(cached, &res); err == nil && res.Status != 0 {
			g.metrics.RecordIdempotentReplay(ctx, scope)
			log.Info("idempotent replay")
			return res, true, nil
		}
		log.Warn("discarding corrupt idempotency result")
		if err := g.store.Delete(ctx, rk); err != nil {
			return Result{}, false, apperror.Unavailable(fmt.Errorf("purge idempotency result: %w", err))
		}
	}

	res, err := fn(ctx)
	if err != nil {
		return Result{}, false, err
	}
	if res.Status == 0 {
		res.Status = http.StatusOK
	}
	if res.Status >= http.StatusBadRequest {
		return res, false, nil
	}

	encoded, err := json.Marshal(res)
	if err != nil {
		return Result{}, false, err
	}
	if err := g.store.Set(ctx, rk, encoded, cfg.ResultTTL); err != nil {
		// the mutation already happened; a retry would repeat it
		log.Error("failed to store idempotency result", zap.Error(err))
	}
	return res, false, nil
}
