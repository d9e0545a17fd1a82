package goftp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
)

// Pool manages a bounded set of reusable FTP sessions.
//
// At every instant idle+borrowed <= MaxTotal and idle <= MaxIdle. A session
// is handed to at most one borrower at a time; borrowers give it back with
// exactly one call to Release or Discard.
type Pool struct {
	factory  *SessionFactory
	config   PoolConfig
	attempts int
	retry    RetryConfig
	logger   logr.Logger
	metrics  Metrics

	mu        sync.Mutex
	idle      []*Session // LIFO, idle[len-1] was returned most recently
	borrowed  map[*Session]struct{}
	creating  int
	testing   int
	closed    bool
	available chan struct{} // closed and replaced whenever capacity frees up
	created   uint64
	destroyed uint64

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolMetrics sets the metrics sink.
func WithPoolMetrics(m Metrics) PoolOption {
	return func(p *Pool) {
		if m != nil {
			p.metrics = m
		}
	}
}

// WithAcquireRetry overrides the backoff between acquisition attempts.
// MaxRetries is ignored; the attempt count comes from Config.RetryCount.
func WithAcquireRetry(config RetryConfig) PoolOption {
	return func(p *Pool) {
		p.retry = config
	}
}

// NewPool creates a pool on top of factory and starts the eviction sweep.
func NewPool(factory *SessionFactory, config PoolConfig, opts ...PoolOption) *Pool {
	config = config.WithDefaults()
	endpoint := factory.Config()

	retry := DefaultRetryConfig()
	retry.InitialDelay = endpoint.RetryDelay

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		factory:   factory,
		config:    config,
		attempts:  endpoint.RetryCount,
		retry:     retry,
		logger:    endpoint.Logger.WithName("pool"),
		metrics:   noopMetrics{},
		borrowed:  make(map[*Session]struct{}),
		available: make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}

	for _, opt := range opts {
		opt(p)
	}

	if config.EvictionInterval > 0 {
		p.wg.Add(1)
		go p.evictionLoop()
	}

	return p
}

// Config returns the pool configuration with defaults applied.
func (p *Pool) Config() PoolConfig {
	return p.config
}

// EndpointConfig returns the endpoint configuration sessions are created with.
func (p *Pool) EndpointConfig() Config {
	return p.factory.Config()
}

// Acquire borrows a validated session, making up to Config.RetryCount attempts.
func (p *Pool) Acquire(ctx context.Context) (*Session, error) {
	return p.AcquireN(ctx, p.attempts)
}

// AcquireN borrows a validated session, making up to maxAttempts attempts.
// Each attempt either reuses an idle session or creates one while the pool is
// below MaxTotal; a session that fails validation is destroyed and the attempt
// counts as failed. When every attempt fails the error is a
// *PoolExhaustedError. Context expiry ends the loop early with ErrTimeout.
func (p *Pool) AcquireN(ctx context.Context, maxAttempts int) (*Session, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	start := time.Now()

	retry := p.retry
	retry.MaxRetries = maxAttempts - 1
	retry.Logger = p.logger
	retry.Retryable = func(err error) bool {
		return !errors.Is(err, ErrPoolClosed) && !errors.Is(err, ErrTimeout)
	}

	var session *Session
	err := Retry(ctx, retry, "acquire ftp session", func() error {
		s, err := p.borrow(ctx)
		if err != nil {
			return err
		}
		session = s
		return nil
	})

	switch {
	case err == nil:
	case errors.Is(err, ErrPoolClosed), errors.Is(err, ErrTimeout):
	case ctx.Err() != nil:
		err = fmt.Errorf("%w: %w", ErrTimeout, err)
	default:
		last := errors.Unwrap(err)
		if last == nil {
			last = err
		}
		err = &PoolExhaustedError{Attempts: maxAttempts, Err: last}
		p.logger.Error(err, "unable to acquire ftp session")
	}

	p.metrics.Acquired(time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// borrow makes a single acquisition attempt.
func (p *Pool) borrow(ctx context.Context) (*Session, error) {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrPoolClosed
		}

		if n := len(p.idle); n > 0 {
			s := p.idle[n-1]
			p.idle[n-1] = nil
			p.idle = p.idle[:n-1]
			p.markBorrowedLocked(s)
			p.mu.Unlock()
			return p.prepare(s)
		}

		if p.totalLocked() < p.config.MaxTotal {
			p.creating++
			p.mu.Unlock()
			return p.createBorrowed(ctx)
		}

		wait := p.available
		p.mu.Unlock()

		if timer == nil {
			timer = time.NewTimer(p.config.MaxWait)
		}
		select {
		case <-wait:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
		case <-timer.C:
			return nil, fmt.Errorf("no session available within %v (max total %d)", p.config.MaxWait, p.config.MaxTotal)
		}
	}
}

func (p *Pool) createBorrowed(ctx context.Context) (*Session, error) {
	s, err := p.factory.Create(ctx)

	p.mu.Lock()
	p.creating--
	if err != nil {
		p.signalLocked()
		p.mu.Unlock()
		return nil, err
	}
	p.created++
	if p.closed {
		p.mu.Unlock()
		p.destroy(s, ReasonClosed)
		return nil, ErrPoolClosed
	}
	p.markBorrowedLocked(s)
	p.mu.Unlock()

	p.metrics.SessionCreated()
	return p.prepare(s)
}

// prepare activates and, if configured, validates a freshly borrowed session.
func (p *Pool) prepare(s *Session) (*Session, error) {
	if err := p.factory.Activate(s); err != nil {
		p.discard(s, ReasonInvalid)
		return nil, fmt.Errorf("%w: session %d: %w", ErrValidationFailed, s.ID(), err)
	}
	if p.config.TestOnBorrow && !p.factory.Validate(s) {
		p.discard(s, ReasonInvalid)
		return nil, fmt.Errorf("%w: session %d", ErrValidationFailed, s.ID())
	}
	p.reportSize()
	return s, nil
}

// Release returns a borrowed session. Disconnected sessions, sessions failing
// return validation and sessions beyond MaxIdle are destroyed instead. After
// Close every released session is destroyed.
func (p *Pool) Release(s *Session) {
	if s == nil {
		return
	}

	p.mu.Lock()
	if _, ok := p.borrowed[s]; !ok || s.state != StateBorrowed {
		p.mu.Unlock()
		p.logger.Info("ignoring release of a session that is not borrowed", "session", s.ID())
		return
	}
	// Stays counted as borrowed until it is placed, so MaxTotal holds while
	// the return validation runs without the lock.
	s.state = StateIdle
	closed := p.closed
	p.mu.Unlock()

	switch {
	case closed:
		p.discard(s, ReasonClosed)
		return
	case !s.IsConnected():
		p.discard(s, ReasonInvalid)
		return
	}
	if err := p.factory.Passivate(s); err != nil {
		p.logger.V(1).Info("passivate failed", "session", s.ID(), "error", err.Error())
		p.discard(s, ReasonInvalid)
		return
	}
	if p.config.TestOnReturn && !p.factory.Validate(s) {
		p.discard(s, ReasonInvalid)
		return
	}

	p.mu.Lock()
	if p.closed || len(p.idle) >= p.config.MaxIdle {
		reason := ReasonOverflow
		if p.closed {
			reason = ReasonClosed
		}
		p.mu.Unlock()
		p.discard(s, reason)
		return
	}
	delete(p.borrowed, s)
	s.lastReturned = time.Now()
	p.idle = append(p.idle, s)
	p.signalLocked()
	p.mu.Unlock()

	p.reportSize()
}

// Discard destroys a borrowed session without returning it to the idle set.
// Use it when an operation left the session in an unknown state.
func (p *Pool) Discard(s *Session) {
	if s == nil {
		return
	}
	p.mu.Lock()
	if _, ok := p.borrowed[s]; !ok || s.state != StateBorrowed {
		p.mu.Unlock()
		p.logger.Info("ignoring discard of a session that is not borrowed", "session", s.ID())
		return
	}
	p.mu.Unlock()
	p.discard(s, ReasonDiscard)
}

// discard removes s from the borrowed set and destroys it.
func (p *Pool) discard(s *Session, reason string) {
	p.mu.Lock()
	delete(p.borrowed, s)
	s.state = StateInvalid
	p.mu.Unlock()
	p.destroy(s, reason)
}

// destroy closes a session that is no longer tracked by the pool.
func (p *Pool) destroy(s *Session, reason string) {
	p.mu.Lock()
	s.state = StateClosed
	p.destroyed++
	p.signalLocked()
	p.mu.Unlock()

	p.factory.Destroy(s)
	p.metrics.SessionDestroyed(reason)
	p.reportSize()
	p.logger.V(1).Info("session destroyed", "session", s.ID(), "reason", reason)
}

// PreWarm synchronously creates up to min(n, MaxIdle) idle sessions and
// returns how many were added. Failures are logged and do not stop the
// remaining attempts.
func (p *Pool) PreWarm(ctx context.Context, n int) int {
	if n <= 0 {
		return 0
	}
	n = min(n, p.config.MaxIdle)

	added := 0
	for i := 0; i < n; i++ {
		if err := p.addIdle(ctx); err != nil {
			p.logger.Error(err, "pre-warming ftp session failed", "attempt", i+1, "of", n)
			continue
		}
		added++
	}
	p.logger.Info("pre-warmed ftp pool", "requested", n, "created", added)
	return added
}

var errPoolFull = errors.New("pool is full")

// addIdle creates one session directly into the idle set.
func (p *Pool) addIdle(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	if p.totalLocked() >= p.config.MaxTotal || len(p.idle) >= p.config.MaxIdle {
		p.mu.Unlock()
		return errPoolFull
	}
	p.creating++
	p.mu.Unlock()

	s, err := p.factory.Create(ctx)

	p.mu.Lock()
	p.creating--
	if err != nil {
		p.signalLocked()
		p.mu.Unlock()
		return err
	}
	p.created++
	if p.closed || len(p.idle) >= p.config.MaxIdle {
		p.mu.Unlock()
		p.destroy(s, ReasonOverflow)
		return nil
	}
	s.state = StateIdle
	s.lastReturned = time.Now()
	p.idle = append(p.idle, s)
	p.signalLocked()
	p.mu.Unlock()

	p.metrics.SessionCreated()
	p.reportSize()
	return nil
}

// Evict runs one eviction sweep. Idle sessions past the hard idle timeout are
// destroyed, as are sessions past the soft timeout while more than MinIdle are
// idle. With TestWhileIdle the survivors are validated. Sessions are taken
// out of the idle set before they are examined, so a concurrent Acquire can
// never receive one that is being evicted.
func (p *Pool) Evict() {
	now := time.Now()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	remaining := len(p.idle)
	kept := make([]*Session, 0, len(p.idle))
	var evict, test []*Session
	for _, s := range p.idle {
		idleFor := now.Sub(s.lastReturned)
		hard := p.config.MinEvictableIdle > 0 && idleFor > p.config.MinEvictableIdle
		soft := p.config.SoftMinEvictableIdle > 0 && idleFor > p.config.SoftMinEvictableIdle &&
			remaining > p.config.MinIdle
		switch {
		case hard || soft:
			s.state = StateInvalid
			evict = append(evict, s)
			remaining--
		case p.config.TestWhileIdle:
			test = append(test, s)
		default:
			kept = append(kept, s)
		}
	}
	p.idle = kept
	p.testing += len(test)
	p.mu.Unlock()

	for _, s := range evict {
		p.destroy(s, ReasonEvicted)
	}

	for _, s := range test {
		ok := p.factory.Validate(s)

		p.mu.Lock()
		p.testing--
		if ok && !p.closed && len(p.idle) < p.config.MaxIdle {
			// back at the bottom of the stack, it is older than anything returned meanwhile
			p.idle = append([]*Session{s}, p.idle...)
			p.signalLocked()
			p.mu.Unlock()
			continue
		}
		reason := ReasonInvalid
		if ok {
			reason = ReasonClosed
			if !p.closed {
				reason = ReasonOverflow
			}
		}
		p.mu.Unlock()
		p.destroy(s, reason)
	}

	if len(evict) > 0 {
		p.logger.V(1).Info("eviction sweep", "evicted", len(evict), "tested", len(test))
	}

	p.ensureMinIdle()
}

// ensureMinIdle tops the idle set up to MinIdle.
func (p *Pool) ensureMinIdle() {
	p.mu.Lock()
	need := p.config.MinIdle - len(p.idle)
	p.mu.Unlock()

	for i := 0; i < need; i++ {
		if err := p.addIdle(p.ctx); err != nil {
			if !errors.Is(err, errPoolFull) && !errors.Is(err, ErrPoolClosed) {
				p.logger.Error(err, "failed to replenish idle ftp sessions")
			}
			return
		}
	}
}

func (p *Pool) evictionLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.EvictionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.Evict()
		case <-p.ctx.Done():
			return
		}
	}
}

// Close stops the eviction sweep and destroys every idle session. Sessions
// still borrowed are destroyed when they are released or discarded. Close is
// idempotent.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		p.cancel()

		p.mu.Lock()
		p.closed = true
		idle := p.idle
		p.idle = nil
		borrowed := len(p.borrowed)
		p.signalLocked()
		p.mu.Unlock()

		p.wg.Wait()

		for _, s := range idle {
			p.destroy(s, ReasonClosed)
		}
		if borrowed > 0 {
			p.logger.Info("pool closed with sessions still borrowed, they will be destroyed on return", "borrowed", borrowed)
		}
		p.logger.Info("ftp pool closed", "destroyedIdle", len(idle))
	})
}

// Stats returns current pool statistics.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return PoolStats{
		Total:     len(p.idle) + len(p.borrowed),
		InUse:     len(p.borrowed),
		Idle:      len(p.idle),
		Created:   p.created,
		Destroyed: p.destroyed,
		MaxTotal:  p.config.MaxTotal,
		MaxIdle:   p.config.MaxIdle,
	}
}

// PoolStats contains pool statistics.
type PoolStats struct {
	Total     int    `json:"total"`
	InUse     int    `json:"in_use"`
	Idle      int    `json:"idle"`
	Created   uint64 `json:"created"`
	Destroyed uint64 `json:"destroyed"`
	MaxTotal  int    `json:"max_total"`
	MaxIdle   int    `json:"max_idle"`
}

func (p *Pool) markBorrowedLocked(s *Session) {
	s.state = StateBorrowed
	s.borrowCount++
	p.borrowed[s] = struct{}{}
}

func (p *Pool) totalLocked() int {
	return len(p.idle) + len(p.borrowed) + p.creating + p.testing
}

func (p *Pool) signalLocked() {
	close(p.available)
	p.available = make(chan struct{})
}

func (p *Pool) reportSize() {
	p.mu.Lock()
	idle, inUse := len(p.idle), len(p.borrowed)
	p.mu.Unlock()
	p.metrics.PoolSize(idle, inUse)
}
