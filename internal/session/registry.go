// Package session keeps one recognition manager per client session.
// A session initializes its engine when opened and releases it when closed
// or when it has been idle for longer than the configured TTL.
package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/emandor/imagetext_service/internal/recognition"
	"github.com/emandor/imagetext_service/internal/telemetry"
)

var ErrNotFound = errors.New("session not found")

type Session struct {
	ID      string
	Created time.Time
	Manager *recognition.Manager

	lastSeen atomic.Int64
	initDone chan struct{}
}

func (s *Session) touch(t time.Time) { s.lastSeen.Store(t.UnixNano()) }

func (s *Session) LastSeen() time.Time { return time.Unix(0, s.lastSeen.Load()) }

type Options struct {
	Language string
	Timeout  time.Duration
	IdleTTL  time.Duration
	Clock    func() time.Time
	Logger   *zerolog.Logger
	// OnReap is called with the id of every session closed for idleness.
	OnReap func(id string)
}

type Registry struct {
	factory recognition.Factory
	lang    string
	timeout time.Duration
	idleTTL time.Duration
	now     func() time.Time
	onReap  func(id string)
	log     zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry(factory recognition.Factory, opts Options) *Registry {
	r := &Registry{
		factory:  factory,
		lang:     opts.Language,
		timeout:  opts.Timeout,
		idleTTL:  opts.IdleTTL,
		now:      opts.Clock,
		onReap:   opts.OnReap,
		log:      telemetry.L().With().Str("module", "session").Logger(),
		sessions: map[string]*Session{},
	}
	if r.now == nil {
		r.now = time.Now
	}
	if opts.Logger != nil {
		r.log = *opts.Logger
	}
	return r
}

// Open registers a new session and starts engine construction without
// waiting for it. A failed construction is retried lazily on first extract.
func (r *Registry) Open(ctx context.Context) *Session {
	id := uuid.New().String()
	log := r.log.With().Str("session_id", id).Logger()

	now := r.now()
	s := &Session{
		ID:      id,
		Created: now,
		Manager: recognition.New(r.factory,
			recognition.WithLanguage(r.lang),
			recognition.WithTimeout(r.timeout),
			recognition.WithLogger(log),
		),
		initDone: make(chan struct{}),
	}
	s.touch(now)

	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()
	log.Info().Msg("session_opened")

	initCtx := context.WithoutCancel(ctx)
	go func() {
		defer close(s.initDone)
		if err := s.Manager.Initialize(initCtx); err != nil {
			log.Warn().Err(err).Msg("session_init_deferred")
		}
	}()
	return s
}

// Get returns the session and marks it as recently used.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if ok {
		s.touch(r.now())
	}
	return s, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Close removes the session and releases its engine.
func (r *Registry) Close(ctx context.Context, id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	r.log.Info().Str("session_id", id).Msg("session_closed")

	// let the background init land first so a half-built engine is released
	select {
	case <-s.initDone:
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.Manager.Close(ctx)
}

// Reap closes sessions idle for longer than the TTL and reports how many.
func (r *Registry) Reap(ctx context.Context) int {
	if r.idleTTL <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.idleTTL)

	var stale []string
	r.mu.RLock()
	for id, s := range r.sessions {
		if s.LastSeen().Before(cutoff) {
			stale = append(stale, id)
		}
	}
	r.mu.RUnlock()

	n := 0
	for _, id := range stale {
		if err := r.Close(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
			r.log.Error().Err(err).Str("session_id", id).Msg("session_reap_fail")
			continue
		}
		if r.onReap != nil {
			r.onReap(id)
		}
		n++
	}
	if n > 0 {
		r.log.Info().Int("count", n).Msg("session_reaped")
	}
	return n
}

// CloseAll releases every session.
func (r *Registry) CloseAll(ctx context.Context) error {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	var errs []error
	for _, id := range ids {
		if err := r.Close(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Run reaps idle sessions until ctx ends, then closes the rest.
func (r *Registry) Run(ctx context.Context) error {
	every := r.idleTTL / 2
	if every < time.Second {
		every = time.Second
	}
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			r.Reap(ctx)
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return r.CloseAll(shutdownCtx)
		}
	}
}
