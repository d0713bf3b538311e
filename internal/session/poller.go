// Package session drives one chunk task through the remote analysis
// protocol: create, submit, start, poll to completion, fetch.
package session

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/auditkit/webaudit/internal/audit"
	"github.com/auditkit/webaudit/internal/cancel"
)

// Poll defaults mirror the remote service's expected turnaround.
const (
	DefaultInitialDelay = 500 * time.Millisecond
	DefaultFactor       = 1.5
	DefaultMaxDelay     = 5 * time.Second
	DefaultBudget       = 180 * time.Second
)

// PollConfig controls the exponential-backoff polling loop.
type PollConfig struct {
	InitialDelay time.Duration
	Factor       float64
	MaxDelay     time.Duration
	Budget       time.Duration
}

func (c PollConfig) withDefaults() PollConfig {
	if c.InitialDelay <= 0 {
		c.InitialDelay = DefaultInitialDelay
	}
	if c.Factor <= 1 {
		c.Factor = DefaultFactor
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	if c.Budget <= 0 {
		c.Budget = DefaultBudget
	}
	return c
}

// PollOutcome is the reason the polling loop stopped.
type PollOutcome int

// Poll outcomes.
const (
	PollCompleted PollOutcome = iota
	PollTerminal
	PollCancelled
	PollTimedOut
)

// Poller repeatedly queries run status with increasing spacing until the
// run is terminal, the budget is exhausted, or cancellation is observed.
type Poller struct {
	cfg    PollConfig
	ctrl   *cancel.Controller
	logger *zap.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
}

// NewPoller builds a Poller bound to a cancellation controller.
func NewPoller(ctrl *cancel.Controller, cfg PollConfig, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Poller{
		cfg:    cfg.withDefaults(),
		ctrl:   ctrl,
		logger: logger,
		now:    time.Now,
	}
	p.sleep = p.interruptibleSleep
	return p
}

// Wait drives the loop. poll queries the remote run status; cancelRun is the
// best-effort remote cancel issued when the cancellation signal is observed
// mid-poll. On PollTerminal the returned status names the terminal state.
func (p *Poller) Wait(
	ctx context.Context,
	poll func(ctx context.Context) (audit.RunStatus, error),
	cancelRun func(ctx context.Context),
) (PollOutcome, audit.RunStatus) {
	delay := p.cfg.InitialDelay
	start := p.now()

	for {
		if p.interrupted(ctx) {
			if cancelRun != nil {
				cancelRun(ctx)
			}
			return PollCancelled, ""
		}
		if p.now().Sub(start) > p.cfg.Budget {
			return PollTimedOut, ""
		}

		status, err := poll(ctx)
		switch {
		case err != nil:
			// Flaky status endpoints are tolerated; only the budget
			// bounds how long we keep retrying.
			p.logger.Debug("run status poll failed, retrying", zap.Error(err))
		case status == audit.RunStatusCompleted:
			return PollCompleted, status
		case status.Terminal():
			return PollTerminal, status
		case status == audit.RunStatusQueued, status == audit.RunStatusInProgress:
		default:
			p.logger.Debug("unknown run status, retrying", zap.String("status", string(status)))
		}

		p.sleep(ctx, delay)
		delay = p.nextDelay(delay)
	}
}

func (p *Poller) nextDelay(delay time.Duration) time.Duration {
	next := time.Duration(float64(delay) * p.cfg.Factor)
	if next > p.cfg.MaxDelay {
		next = p.cfg.MaxDelay
	}
	return next
}

func (p *Poller) interrupted(ctx context.Context) bool {
	return p.ctrl.Cancelled() || ctx.Err() != nil
}

// interruptibleSleep waits for d but wakes early on cancellation so the loop
// can observe the signal without finishing the full delay.
func (p *Poller) interruptibleSleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-p.ctrl.Done():
	case <-ctx.Done():
	}
}
