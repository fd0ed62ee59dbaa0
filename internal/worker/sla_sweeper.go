package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/civic-requests/internal/slaclock"
)

// Sweeper runs one SLA sweep. service.SLAService implements it.
type Sweeper interface {
	RunSweep(ctx context.Context, timeout time.Duration) (*slaclock.Report, error)
}

// SLASweeper runs sweeps on a fixed interval until its context ends.
type SLASweeper struct {
	sweeper  Sweeper
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger
}

// NewSLASweeper builds the worker. A non-positive interval disables it.
func NewSLASweeper(sweeper Sweeper, interval, timeout time.Duration, logger *zap.Logger) *SLASweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SLASweeper{sweeper: sweeper, interval: interval, timeout: timeout, logger: logger}
}

// Run sweeps once immediately and then on every tick. It returns nil when
// ctx is cancelled; sweep failures are logged and do not stop the loop.
func (w *SLASweeper) Run(ctx context.Context) error {
	if w.interval <= 0 || w.sweeper == nil {
		w.logger.Info("sla sweeper disabled")
		return nil
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("sla sweeper stopped")
			return nil
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *SLASweeper) sweep(ctx context.Context) {
	if _, err := w.sweeper.RunSweep(ctx, w.timeout); err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return
		}
		w.logger.Error("sla sweep failed", zap.Error(err))
	}
}
