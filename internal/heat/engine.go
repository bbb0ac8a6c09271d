package heat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MannyG3/Kettle/internal/ledger"
	"github.com/codeGROOVE-dev/retry"
	"go.uber.org/zap"
)

var (
	errMissingLedger   = errors.New("heat: vote ledger is required")
	errMissingBoundary = errors.New("heat: vote boundary is required")
)

// Boundary is the authoritative vote endpoint. ApplyAction must mutate the
// stored score atomically and return the new value; on error it must have no
// side effect.
type Boundary interface {
	ApplyAction(ctx context.Context, postID string, action Action) (int, error)
}

// EngineConfig describes the dependencies of the vote engine.
type EngineConfig struct {
	Ledger   ledger.Store
	Boundary Boundary
	Logger   *zap.Logger
	// Attempts bounds boundary retries before falling back to the optimistic
	// local update. Defaults to 3.
	Attempts uint
}

// Engine turns participant vote gestures into ledger mutations and boundary
// calls, falling back to optimistic local scoring when the boundary is
// unreachable.
type Engine struct {
	ledger   ledger.Store
	boundary Boundary
	logger   *zap.Logger
	attempts uint
}

// NewEngine validates dependencies and constructs the vote engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Ledger == nil {
		return nil, errMissingLedger
	}
	if cfg.Boundary == nil {
		return nil, errMissingBoundary
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	attempts := cfg.Attempts
	if attempts == 0 {
		attempts = 3
	}
	return &Engine{
		ledger:   cfg.Ledger,
		boundary: cfg.Boundary,
		logger:   logger,
		attempts: attempts,
	}, nil
}

// Result reports the outcome of one vote gesture. When Confirmed is false the
// heat value is an optimistic local guess that the next reconciliation will
// overwrite with the authoritative score.
type Result struct {
	Heat      int
	Direction ledger.Direction
	Confirmed bool
}

// ApplyVote processes one vote gesture on a post. localHeat is the score the
// caller currently displays; it seeds the optimistic fallback and is otherwise
// ignored. The ledger entry is written in both the confirmed and the
// optimistic path, so a retried gesture resolves to the correct compensating
// action instead of double counting.
func (e *Engine) ApplyVote(ctx context.Context, postID string, requested ledger.Direction, localHeat int) (Result, error) {
	current, err := e.ledger.Get(ctx, postID)
	if err != nil {
		// Fail-open: an unreadable ledger reads as unvoted.
		current = ledger.DirectionNone
	}

	change, err := Resolve(current, requested)
	if err != nil {
		return Result{}, err
	}

	authoritative, boundaryErr := e.applyWithRetry(ctx, postID, change.Action)

	if err := e.ledger.Set(ctx, postID, change.Next); err != nil {
		e.logger.Warn("vote ledger write failed",
			zap.String("post_id", postID),
			zap.String("direction", string(change.Next)),
			zap.Error(err))
	}

	if boundaryErr != nil {
		// Transient boundary failure: keep the optimistic guess, log, and let
		// the next full reconciliation restore ground truth.
		e.logger.Warn("vote boundary unreachable, applying optimistic delta",
			zap.String("post_id", postID),
			zap.String("action", string(change.Action)),
			zap.Int("delta", change.Delta),
			zap.Error(boundaryErr))
		return Result{
			Heat:      localHeat + change.Delta,
			Direction: change.Next,
			Confirmed: false,
		}, nil
	}

	// The authoritative value fully replaces the optimistic one, never adds.
	return Result{
		Heat:      authoritative,
		Direction: change.Next,
		Confirmed: true,
	}, nil
}

func (e *Engine) applyWithRetry(ctx context.Context, postID string, action Action) (int, error) {
	var newHeat int
	err := retry.Do(
		func() error {
			value, err := e.boundary.ApplyAction(ctx, postID, action)
			if err != nil {
				return fmt.Errorf("apply %s: %w", action, err)
			}
			newHeat = value
			return nil
		},
		retry.Attempts(e.attempts),
		retry.Delay(200*time.Millisecond),
		retry.MaxDelay(2*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			e.logger.Info("retrying vote boundary call",
				zap.Uint("attempt", n),
				zap.String("post_id", postID),
				zap.Error(err))
		}),
	)
	if err != nil {
		return 0, err
	}
	return newHeat, nil
}
