package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"
)

// Sweeper deletes expired authorization codes and refresh tokens on a cron
// schedule. Rows are only removed once they can no longer change an
// authentication decision.
type Sweeper struct {
	svc      *Service
	schedule string
	logger   *slog.Logger
	stop     chan struct{}
	done     chan struct{}
}

// NewSweeper validates the cron schedule and returns a stopped sweeper.
func NewSweeper(svc *Service, schedule string, logger *slog.Logger) (*Sweeper, error) {
	if !gronx.New().IsValid(schedule) {
		return nil, fmt.Errorf("invalid sweeper schedule %q", schedule)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		svc:      svc,
		schedule: schedule,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Start runs the sweep loop in a background goroutine.
func (sw *Sweeper) Start() {
	go sw.run()
}

// Stop terminates the sweep loop and waits for an in-flight sweep to finish.
func (sw *Sweeper) Stop() {
	close(sw.stop)
	<-sw.done
}

func (sw *Sweeper) run() {
	defer close(sw.done)
	for {
		next, err := gronx.NextTick(sw.schedule, false)
		if err != nil {
			sw.logger.Error("computing next sweep", "error", err)
			return
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-timer.C:
			sw.Sweep(context.Background())
		case <-sw.stop:
			timer.Stop()
			return
		}
	}
}

// Sweep runs one deletion pass and logs what was removed.
func (sw *Sweeper) Sweep(ctx context.Context) {
	codes, err := sw.svc.DeleteExpiredAuthorizationCodes(ctx)
	if err != nil {
		sw.logger.Error("sweeping authorization codes", "error", err)
	}
	tokens, err := sw.svc.DeleteExpiredRefreshTokens(ctx)
	if err != nil {
		sw.logger.Error("sweeping refresh tokens", "error", err)
	}
	if codes > 0 || tokens > 0 {
		sw.logger.Info("credential sweep", "codes_deleted", codes, "tokens_deleted", tokens)
	}
}
