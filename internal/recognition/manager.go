// Package recognition owns the lifecycle of an OCR engine: lazy construction,
// one-at-a-time recognition with progress reporting, and teardown.
package recognition

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/emandor/imagetext_service/internal/telemetry"
)

type State int

const (
	Uninitialized State = iota
	Ready
	Terminated
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Ready:
		return "ready"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

type Option func(*Manager)

// WithLanguage sets the language passed to the engine factory.
func WithLanguage(lang string) Option {
	return func(m *Manager) {
		if lang != "" {
			m.lang = lang
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithTimeout bounds each extraction. Zero means no limit.
func WithTimeout(d time.Duration) Option {
	return func(m *Manager) { m.timeout = d }
}

// Manager owns exactly one engine handle. All methods are safe for
// concurrent use; at most one extraction runs at a time.
type Manager struct {
	factory Factory
	lang    string
	timeout time.Duration
	log     zerolog.Logger

	// initMu serializes construction and teardown
	initMu sync.Mutex

	mu     sync.Mutex
	state  State
	engine Engine
	busy   bool
	cancel context.CancelFunc
	idle   <-chan struct{}
}

func New(factory Factory, opts ...Option) *Manager {
	m := &Manager{
		factory: factory,
		lang:    DefaultLanguage,
		log:     telemetry.L(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) Language() string { return m.lang }

// Initialize constructs the engine if it has not been constructed yet.
// It is a no-op when already Ready.
func (m *Manager) Initialize(ctx context.Context) error {
	return m.ensureReady(ctx, "initialize")
}

func (m *Manager) ensureReady(ctx context.Context, op string) error {
	m.initMu.Lock()
	defer m.initMu.Unlock()

	switch m.State() {
	case Ready:
		return nil
	case Terminated:
		return &LifecycleError{Op: op}
	}

	start := time.Now()
	m.log.Info().Str("lang", m.lang).Msg("ocr_init_start")
	eng, err := m.factory(ctx, m.lang)
	if err == nil && eng == nil {
		err = errors.New("engine factory returned nil")
	}
	if err != nil {
		m.log.Error().Err(err).Msg("ocr_init_fail")
		return &InitializationError{Cause: err}
	}

	m.mu.Lock()
	m.engine = eng
	m.state = Ready
	m.mu.Unlock()
	m.log.Info().Int("latency_ms", int(time.Since(start)/time.Millisecond)).Msg("ocr_init_ok")
	return nil
}

// Extract starts recognition of img, initializing the engine first if needed.
// A second call while a job is in flight fails with *ConcurrencyError.
func (m *Manager) Extract(ctx context.Context, img Image) (*Job, error) {
	if err := m.ensureReady(ctx, "extract"); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.state == Terminated {
		m.mu.Unlock()
		return nil, &LifecycleError{Op: "extract"}
	}
	if m.busy {
		m.mu.Unlock()
		m.log.Warn().Msg("ocr_busy_reject")
		return nil, &ConcurrencyError{}
	}

	var (
		jobCtx context.Context
		cancel context.CancelFunc
	)
	if m.timeout > 0 {
		jobCtx, cancel = context.WithTimeout(ctx, m.timeout)
	} else {
		jobCtx, cancel = context.WithCancel(ctx)
	}
	job := newJob()
	eng := m.engine
	m.busy = true
	m.cancel = cancel
	m.idle = job.done
	m.mu.Unlock()

	go m.run(jobCtx, cancel, eng, img, job)
	return job, nil
}

// ExtractText runs Extract and drains its progress into onProgress.
// The returned text is exactly what the engine produced.
func (m *Manager) ExtractText(ctx context.Context, img Image, onProgress func(int)) (string, error) {
	job, err := m.Extract(ctx, img)
	if err != nil {
		return "", err
	}
	for p := range job.Progress() {
		if onProgress != nil {
			onProgress(p)
		}
	}
	return job.Wait()
}

func (m *Manager) run(ctx context.Context, cancel context.CancelFunc, eng Engine, img Image, job *Job) {
	defer cancel()
	start := time.Now()
	m.log.Info().Int("bytes", len(img.Data)).Str("mime", img.MIME).Msg("ocr_start")

	text, err := recognize(ctx, eng, img, func(s Status) {
		if pct, ok := job.report(s); ok {
			m.log.Debug().Int("progress", pct).Msg("ocr_progress")
		}
	})
	if err != nil {
		m.log.Error().Err(err).Msg("ocr_fail")
		err = &ExtractionError{Cause: err}
	} else {
		m.log.Info().
			Int("latency_ms", int(time.Since(start)/time.Millisecond)).
			Int("chars", len(text)).
			Msg("ocr_done")
	}

	job.closeProgress()
	m.release()
	job.finish(text, err)
}

func recognize(ctx context.Context, eng Engine, img Image, report func(Status)) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("engine panic: %v", r)
		}
	}()
	return eng.Recognize(ctx, img, report)
}

// release clears the busy flag and finishes a teardown deferred by Cleanup.
func (m *Manager) release() {
	m.mu.Lock()
	m.busy = false
	m.cancel = nil
	var eng Engine
	if m.state == Terminated && m.engine != nil {
		eng = m.engine
		m.engine = nil
	}
	m.mu.Unlock()

	if eng != nil {
		_ = m.terminate(eng)
	}
}

// Cleanup terminates the engine and moves the manager to Terminated.
// An in-flight job is cancelled and the engine is terminated once it returns;
// Cleanup waits for that unless ctx ends first. No-op unless Ready.
func (m *Manager) Cleanup(ctx context.Context) error {
	m.initMu.Lock()
	defer m.initMu.Unlock()

	m.mu.Lock()
	if m.state != Ready {
		m.mu.Unlock()
		return nil
	}
	m.state = Terminated

	if m.busy {
		m.cancel()
		idle := m.idle
		m.mu.Unlock()
		m.log.Info().Msg("ocr_cleanup_wait_inflight")
		select {
		case <-idle:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	eng := m.engine
	m.engine = nil
	m.mu.Unlock()
	return m.terminate(eng)
}

// Close is Cleanup for an owner that is discarding the manager: it also
// retires a manager whose engine was never built, so no later Extract can
// construct one.
func (m *Manager) Close(ctx context.Context) error {
	m.initMu.Lock()
	m.mu.Lock()
	if m.state == Uninitialized {
		m.state = Terminated
		m.mu.Unlock()
		m.initMu.Unlock()
		m.log.Info().Msg("ocr_closed_uninitialized")
		return nil
	}
	m.mu.Unlock()
	m.initMu.Unlock()
	return m.Cleanup(ctx)
}

func (m *Manager) terminate(eng Engine) error {
	if err := eng.Terminate(); err != nil {
		m.log.Error().Err(err).Msg("ocr_terminate_fail")
		return fmt.Errorf("terminate engine: %w", err)
	}
	m.log.Info().Msg("ocr_terminated")
	return nil
}
