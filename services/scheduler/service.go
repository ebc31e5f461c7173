package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// ErrRefreshInProgress is returned when a pass is requested while one is running.
var ErrRefreshInProgress = errors.New("refresh already in progress")

const DefaultInterval = time.Hour

// Summary is what a refresh pass reports back.
type Summary struct {
	Outcome string `json:"outcome"`
	Items   int    `json:"items"`
}

// Refresher performs one refresh pass: rebuild and store.
type Refresher interface {
	Refresh(ctx context.Context) (Summary, error)
}

// State is the scheduler's coarse lifecycle state.
type State string

const (
	StateIdle       State = "idle"
	StateRefreshing State = "refreshing"
	StateStopped    State = "stopped"
)

// RunResult describes one completed pass.
type RunResult struct {
	ID        string        `json:"id"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"durationNs"`
	Summary   Summary       `json:"summary"`
	Error     string        `json:"error,omitempty"`
}

// Status is a point-in-time snapshot of the scheduler.
type Status struct {
	Running         bool       `json:"running"`
	State           State      `json:"state"`
	IntervalSeconds int64      `json:"intervalSeconds"`
	LastRun         *RunResult `json:"lastRun,omitempty"`
	NextRunAt       *time.Time `json:"nextRunAt,omitempty"`
	Runs            uint64     `json:"runs"`
	Skipped         uint64     `json:"skipped"`
}

// Options configures a Service.
type Options struct {
	Interval time.Duration
	// RunOnStart performs a warm-up pass as soon as the scheduler starts.
	RunOnStart bool
	Registerer prometheus.Registerer
}

// Service runs a Refresher on a fixed interval, never more than one pass at a time.
type Service struct {
	refresher  Refresher
	interval   time.Duration
	runOnStart bool
	metrics    *metrics

	// Runtime state
	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	cron    *cron.Cron
	entry   cron.EntryID
	wg      sync.WaitGroup

	inFlight atomic.Bool
	runs     atomic.Uint64
	skipped  atomic.Uint64

	lastMu sync.RWMutex
	last   *RunResult
}

// NewService creates a scheduler for refresher. It does nothing until Start.
func NewService(refresher Refresher, opts Options) *Service {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	return &Service{
		refresher:  refresher,
		interval:   opts.Interval,
		runOnStart: opts.RunOnStart,
		metrics:    newMetrics(opts.Registerer),
	}
}

// Start schedules recurring passes. Calling Start on a running scheduler is a no-op.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron = cron.New()
	s.entry = s.cron.Schedule(cron.Every(s.interval), cron.FuncJob(s.tick))
	s.cron.Start()
	s.running = true

	if s.runOnStart {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.tick()
		}()
	}

	log.Info().Dur("interval", s.interval).Bool("warmup", s.runOnStart).Msg("[scheduler] refresh scheduler started")
	return nil
}

// Stop cancels pending ticks and waits for an in-flight pass, bounded by ctx.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.cancel()
	cronDone := s.cron.Stop()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("[scheduler] refresh scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		log.Warn().Msg("[scheduler] refresh scheduler stopped before in-flight pass finished")
		return ctx.Err()
	}
}

// RunOnce performs a pass now, or returns ErrRefreshInProgress if one is running.
func (s *Service) RunOnce(ctx context.Context) (RunResult, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.skip("manual")
		return RunResult{}, ErrRefreshInProgress
	}
	defer s.inFlight.Store(false)
	return s.run(ctx)
}

// Trigger starts a pass in the background. It reports false when one is
// already running.
func (s *Service) Trigger() bool {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.skip("manual")
		return false
	}

	s.mu.Lock()
	ctx := context.Background()
	tracked := s.running
	if tracked {
		// Stop waits for passes started while running.
		ctx = s.ctx
		s.wg.Add(1)
	}
	s.mu.Unlock()

	go func() {
		if tracked {
			defer s.wg.Done()
		}
		defer s.inFlight.Store(false)
		s.run(ctx)
	}()
	return true
}

// Refreshing reports whether a pass is in flight.
func (s *Service) Refreshing() bool {
	return s.inFlight.Load()
}

func (s *Service) Status() Status {
	status := Status{
		IntervalSeconds: int64(s.interval / time.Second),
		Runs:            s.runs.Load(),
		Skipped:         s.skipped.Load(),
	}

	s.mu.Lock()
	status.Running = s.running
	if s.running {
		next := s.cron.Entry(s.entry).Next
		if !next.IsZero() {
			status.NextRunAt = &next
		}
	}
	s.mu.Unlock()

	switch {
	case s.inFlight.Load():
		status.State = StateRefreshing
	case status.Running:
		status.State = StateIdle
	default:
		status.State = StateStopped
	}

	s.lastMu.RLock()
	if s.last != nil {
		last := *s.last
		status.LastRun = &last
	}
	s.lastMu.RUnlock()
	return status
}

// tick is the scheduled entry point. Overlapping ticks are skipped silently.
func (s *Service) tick() {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.skip("tick")
		return
	}
	defer s.inFlight.Store(false)

	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	s.run(ctx)
}

func (s *Service) run(ctx context.Context) (RunResult, error) {
	result := RunResult{ID: uuid.NewString(), StartedAt: time.Now().UTC()}
	logger := log.With().Str("run", result.ID).Logger()
	logger.Info().Msg("[scheduler] refresh pass started")

	summary, err := s.refresher.Refresh(ctx)
	result.Duration = time.Since(result.StartedAt)
	result.Summary = summary
	if err != nil {
		result.Error = err.Error()
		logger.Warn().Err(err).Dur("took", result.Duration).Msg("[scheduler] refresh pass failed")
	} else {
		logger.Info().
			Str("outcome", summary.Outcome).
			Int("items", summary.Items).
			Dur("took", result.Duration).
			Msg("[scheduler] refresh pass complete")
	}

	s.runs.Add(1)
	s.metrics.observe(result, err)
	s.lastMu.Lock()
	s.last = &result
	s.lastMu.Unlock()
	return result, err
}

func (s *Service) skip(trigger string) {
	s.skipped.Add(1)
	s.metrics.skips.WithLabelValues(trigger).Inc()
	log.Debug().Str("trigger", trigger).Msg("[scheduler] refresh already running; skipping")
}

type metrics struct {
	runs     *prometheus.CounterVec
	skips    *prometheus.CounterVec
	duration prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "curator",
			Subsystem: "refresh",
			Name:      "runs_total",
			Help:      "Completed refresh passes by result.",
		}, []string{"result"}),
		skips: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "curator",
			Subsystem: "refresh",
			Name:      "skipped_total",
			Help:      "Refresh requests skipped because a pass was running.",
		}, []string{"trigger"}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "curator",
			Subsystem: "refresh",
			Name:      "duration_seconds",
			Help:      "Refresh pass duration.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 8),
		}),
	}
}

func (m *metrics) observe(result RunResult, err error) {
	label := "success"
	if err != nil {
		label = "error"
	}
	m.runs.WithLabelValues(label).Inc()
	m.duration.Observe(result.Duration.Seconds())
}
