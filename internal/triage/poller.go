package triage

import (
	"context"
	"math"
	"time"

	"github.com/soyeahso/triage/internal/agentapi"
	"github.com/soyeahso/triage/internal/config"
	"github.com/soyeahso/triage/internal/domain"
	"github.com/soyeahso/triage/internal/logging"
	"github.com/soyeahso/triage/internal/metrics"
)

// PollResult is how waiting on a run ended.
type PollResult struct {
	Run      domain.Run     `json:"run"`
	Outcome  domain.Outcome `json:"outcome"`
	Attempts int            `json:"attempts"`
	Elapsed  time.Duration  `json:"elapsed"`
}

// Poller waits for runs to leave queued/in_progress, backing off exponentially
// between status checks.
type Poller struct {
	svc     agentapi.Service
	cfg     config.PollConfig
	metrics *metrics.Recorder
	log     *logging.Logger
}

// NewPoller creates a poller. Zero fields in cfg fall back to the defaults.
func NewPoller(svc agentapi.Service, cfg config.PollConfig, rec *metrics.Recorder, log *logging.Logger) *Poller {
	def := config.Defaults().Poll
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = def.InitialInterval
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = def.MaxInterval
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = def.Multiplier
	}
	if cfg.MaxInterval < cfg.InitialInterval {
		cfg.MaxInterval = cfg.InitialInterval
	}
	return &Poller{svc: svc, cfg: cfg, metrics: rec, log: log.Sub("triage.poller")}
}

// Wait polls run with a fresh poll timeout. See WaitUntil.
func (p *Poller) Wait(ctx context.Context, run domain.Run) (PollResult, error) {
	return p.WaitUntil(ctx, run, p.Deadline(time.Now()))
}

// Deadline is when a wait starting at from runs out of time. It is zero when
// no poll timeout is configured.
func (p *Poller) Deadline(from time.Time) time.Time {
	if p.cfg.Timeout <= 0 {
		return time.Time{}
	}
	return from.Add(p.cfg.Timeout)
}

// WaitUntil polls run until its status is no longer pending, deadline passes,
// the attempt budget for this wait runs out, or ctx is cancelled. Running out
// of budget is an outcome (timed_out), not an error; cancellation of ctx
// returns ctx's error alongside a timed_out outcome. Retryable GetRun failures
// are retried within the budget; any other failure is returned. A zero
// deadline means no time limit.
func (p *Poller) WaitUntil(ctx context.Context, run domain.Run, deadline time.Time) (PollResult, error) {
	start := time.Now()
	res := PollResult{Run: run}

	if !run.Status.Pending() {
		res.Outcome = domain.OutcomeFor(run.Status)
		return res, nil
	}

	pollCtx := ctx
	if !deadline.IsZero() {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithDeadline(ctx, deadline)
		defer cancel()
	}

	timedOut := func() (PollResult, error) {
		res.Outcome = domain.OutcomeTimedOut
		res.Elapsed = time.Since(start)
		if err := ctx.Err(); err != nil {
			return res, err
		}
		p.log.Warn().Str("run", run.ID).Int("attempts", res.Attempts).Dur("elapsed", res.Elapsed).Msg("gave up waiting for run")
		return res, nil
	}

	for attempt := 0; ; attempt++ {
		if p.cfg.MaxAttempts > 0 && res.Attempts >= p.cfg.MaxAttempts {
			return timedOut()
		}

		timer := time.NewTimer(p.delay(attempt))
		select {
		case <-pollCtx.Done():
			timer.Stop()
			return timedOut()
		case <-timer.C:
		}

		res.Attempts++
		p.metrics.IncPollAttempt()
		current, err := p.svc.GetRun(pollCtx, run.ThreadID, run.ID)
		if err != nil {
			if pollCtx.Err() != nil {
				return timedOut()
			}
			if agentapi.IsRetryable(err) {
				p.log.Warn().Err(err).Str("run", run.ID).Int("attempt", res.Attempts).Msg("transient error polling run, retrying")
				continue
			}
			res.Outcome = domain.OutcomeFailed
			res.Elapsed = time.Since(start)
			return res, err
		}

		res.Run = current
		p.log.Debug().Str("run", run.ID).Str("status", string(current.Status)).Int("attempt", res.Attempts).Msg("run status")

		if !current.Status.Pending() {
			res.Outcome = domain.OutcomeFor(current.Status)
			res.Elapsed = time.Since(start)
			return res, nil
		}
	}
}

// delay returns the wait before poll number attempt (0-based).
func (p *Poller) delay(attempt int) time.Duration {
	d := float64(p.cfg.InitialInterval) * math.Pow(p.cfg.Multiplier, float64(attempt))
	if d > float64(p.cfg.MaxInterval) || math.IsInf(d, 1) {
		return p.cfg.MaxInterval
	}
	return time.Duration(d)
}
