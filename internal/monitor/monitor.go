// Package monitor infers instance readiness from the remote provisioning
// log. It polls a log excerpt each cycle, classifies it into a lifecycle
// stage, and drives the observed stage monotonically forward until the
// instance is READY or a failure rule fires.
//
// # Main Types
//
//   - Stage: the ordered lifecycle ladder plus terminal ERROR
//   - Classify: pure text-to-stage classification with error preemption
//   - Monitor: the poll/classify/advance loop
//   - Result: the terminal outcome of a monitoring session
//
// # Thread Safety
//
// A Monitor runs one session at a time; Run must not be called concurrently
// on the same Monitor. Classification functions are pure and safe anywhere.
package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/rigstead/berth/internal/config"
	"github.com/rigstead/berth/internal/errors"
	"github.com/rigstead/berth/internal/event"
	"github.com/rigstead/berth/internal/instance"
	"github.com/rigstead/berth/internal/logging"
)

// Failure reasons reported in Result.Reason and the completed event.
const (
	ReasonReady       = "ready"
	ReasonUnreachable = "unreachable"
	ReasonTimeout     = "timeout"
	ReasonFailed      = "provisioning failed"
	ReasonCanceled    = "canceled"
)

// LogSource supplies the provisioning log excerpt for each poll cycle.
// remote.LogPoller is the production implementation.
type LogSource interface {
	Fetch(ctx context.Context, h instance.Handle) (string, error)
}

// Result is the terminal outcome of a monitoring session.
type Result struct {
	// Stage is StageReady on success, StageError on failure, or the last
	// observed stage when the session was canceled.
	Stage Stage
	// Reason is one of the Reason constants.
	Reason string
	// ReadyURL is the GUI URL from the ready marker, when present.
	ReadyURL string
	// Elapsed is the total session duration.
	Elapsed time.Duration
}

// Monitor drives the poll/classify loop for one instance.
type Monitor struct {
	source LogSource
	bus    *event.Bus
	logger *logging.Logger

	pollInterval   time.Duration
	deadlines      Deadlines
	maxFailures    int
	fetchAttempts  int
	backoffInitial time.Duration
	backoffCap     time.Duration

	// Clock hooks, overridden in tests.
	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

// New creates a Monitor reading from source. Zero-valued config fields fall
// back to the package defaults. A nil bus publishes into the void; a nil
// logger disables logging.
func New(source LogSource, cfg config.MonitorConfig, bus *event.Bus, logger *logging.Logger) *Monitor {
	defaults := config.Default().Monitor
	if cfg.PollIntervalSeconds <= 0 {
		cfg.PollIntervalSeconds = defaults.PollIntervalSeconds
	}
	if cfg.TimeoutMinutes < 0 {
		cfg.TimeoutMinutes = defaults.TimeoutMinutes
	}
	if cfg.StallThresholdMinutes < 0 {
		cfg.StallThresholdMinutes = defaults.StallThresholdMinutes
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = defaults.MaxFailures
	}
	if cfg.FetchAttempts <= 0 {
		cfg.FetchAttempts = defaults.FetchAttempts
	}
	if cfg.BackoffInitialMs <= 0 {
		cfg.BackoffInitialMs = defaults.BackoffInitialMs
	}
	if cfg.BackoffCapMs <= 0 {
		cfg.BackoffCapMs = defaults.BackoffCapMs
	}
	if bus == nil {
		bus = event.NewBus()
	}
	if logger == nil {
		logger = logging.NopLogger()
	}

	return &Monitor{
		source:         source,
		bus:            bus,
		logger:         logger.WithComponent("monitor"),
		pollInterval:   cfg.PollInterval(),
		deadlines:      Deadlines{Timeout: cfg.Timeout(), Stall: cfg.StallThreshold()},
		maxFailures:    cfg.MaxFailures,
		fetchAttempts:  cfg.FetchAttempts,
		backoffInitial: cfg.BackoffInitial(),
		backoffCap:     cfg.BackoffCap(),
		now:            time.Now,
		after:          time.After,
	}
}

// Run polls until the instance is READY or a failure rule fires. It never
// mutates persisted state, so a canceled or failed run leaves tunnels and
// port allocations untouched. The returned error is nil only on READY.
func (m *Monitor) Run(ctx context.Context, h instance.Handle) (Result, error) {
	if err := h.Validate(); err != nil {
		return Result{Stage: StageError, Reason: ReasonFailed}, err
	}

	log := m.logger.WithInstance(h.ID)
	start := m.now()
	observed := StageInitializing
	lastAdvance := start
	failures := 0

	log.Info("monitoring started",
		"host", h.SSHHost,
		"ssh_port", h.SSHPort,
		"poll_interval", m.pollInterval.String(),
		"timeout", m.deadlines.Timeout.String(),
	)

	for {
		// Cancellation is cooperative: checked once per cycle, and again
		// while sleeping between cycles.
		if ctx.Err() != nil {
			return m.finishCanceled(h, observed, start, ctx.Err())
		}

		excerpt, err := m.fetch(ctx, h)
		now := m.now()

		if err != nil {
			if ctx.Err() != nil {
				return m.finishCanceled(h, observed, start, ctx.Err())
			}
			failures++
			m.bus.Publish(event.NewPollFailedEvent(h.ID, failures, m.maxFailures, err.Error()))
			log.Warn("poll failed", "consecutive", failures, "max", m.maxFailures, "error", err.Error())

			if failures >= m.maxFailures {
				reason := fmt.Sprintf("unreachable after %d consecutive failed polls", failures)
				return m.finishError(h, observed, start, ReasonUnreachable,
					errors.NewMonitorError(reason, errors.ErrUnreachable).
						WithInstanceID(h.ID).WithHost(h.SSHHost).WithStage(observed.String()),
				)
			}
		} else {
			failures = 0

			cls := Classify(excerpt)
			if cls.Failed {
				return m.finishError(h, observed, start, ReasonFailed,
					errors.NewMonitorError(fmt.Sprintf("provisioning failed: %s", cls.ErrorLine), errors.ErrProvisioningFailed).
						WithInstanceID(h.ID).WithStage(observed.String()),
				)
			}
			if cls.Matched && cls.Stage > observed {
				previous := observed
				observed = cls.Stage
				lastAdvance = now
				m.bus.Publish(event.NewStageChangedEvent(h.ID, event.Stage(previous.String()), event.Stage(observed.String()), now.Sub(start)))
				log.Info("stage advanced", "from", previous.String(), "to", observed.String(), "elapsed", now.Sub(start).String())
			}
			if observed == StageDownloading {
				if p, ok := ExtractProgress(excerpt); ok {
					m.bus.Publish(event.NewDownloadProgressEvent(h.ID, p.Completed, p.Announced, p.Bytes, p.Speed, now.Sub(start)))
				}
			}
			if observed == StageReady {
				return m.finishReady(h, start, ExtractReadyURL(excerpt))
			}
		}

		switch m.deadlines.Check(now, start, lastAdvance) {
		case VerdictExpired:
			reason := fmt.Sprintf("not ready within %s", m.deadlines.Timeout)
			return m.finishError(h, observed, start, ReasonTimeout,
				errors.NewMonitorError(reason, errors.ErrTimeout).
					WithInstanceID(h.ID).WithStage(observed.String()),
			)
		case VerdictStalled:
			reason := fmt.Sprintf("stage %s unchanged for %s", observed, m.deadlines.Stall)
			return m.finishError(h, observed, start, ReasonTimeout,
				errors.NewMonitorError(reason, errors.ErrTimeout).
					WithInstanceID(h.ID).WithStage(observed.String()),
			)
		}

		select {
		case <-ctx.Done():
			return m.finishCanceled(h, observed, start, ctx.Err())
		case <-m.after(m.pollInterval):
		}
	}
}

// fetch retrieves one excerpt, retrying transport failures with bounded
// exponential backoff before the cycle counts as failed.
func (m *Monitor) fetch(ctx context.Context, h instance.Handle) (string, error) {
	backoff := retry.WithCappedDuration(m.backoffCap, retry.NewExponential(m.backoffInitial))
	backoff = retry.WithMaxRetries(uint64(m.fetchAttempts-1), backoff)

	var excerpt string
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		out, err := m.source.Fetch(ctx, h)
		if err != nil {
			return retry.RetryableError(err)
		}
		excerpt = out
		return nil
	})
	return excerpt, err
}

func (m *Monitor) finishReady(h instance.Handle, start time.Time, url string) (Result, error) {
	elapsed := m.now().Sub(start)
	m.bus.Publish(event.NewMonitorCompletedEvent(h.ID, event.StageReady, ReasonReady, url, elapsed))
	m.logger.WithInstance(h.ID).Info("instance ready", "elapsed", elapsed.String(), "url", url)
	return Result{Stage: StageReady, Reason: ReasonReady, ReadyURL: url, Elapsed: elapsed}, nil
}

func (m *Monitor) finishError(h instance.Handle, observed Stage, start time.Time, reason string, err error) (Result, error) {
	elapsed := m.now().Sub(start)
	m.bus.Publish(event.NewMonitorCompletedEvent(h.ID, event.StageError, reason, "", elapsed))
	m.logger.WithInstance(h.ID).Error("monitoring failed",
		"reason", reason,
		"stage", observed.String(),
		"elapsed", elapsed.String(),
		"error", err.Error(),
	)
	return Result{Stage: StageError, Reason: reason, Elapsed: elapsed}, err
}

func (m *Monitor) finishCanceled(h instance.Handle, observed Stage, start time.Time, err error) (Result, error) {
	elapsed := m.now().Sub(start)
	m.bus.Publish(event.NewMonitorCompletedEvent(h.ID, event.Stage(observed.String()), ReasonCanceled, "", elapsed))
	m.logger.WithInstance(h.ID).Info("monitoring canceled", "stage", observed.String(), "elapsed", elapsed.String())
	return Result{Stage: observed, Reason: ReasonCanceled, Elapsed: elapsed}, err
}
