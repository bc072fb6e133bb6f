package game

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

const (
	DEFAULT_SESSION_IDLE_TTL = 30 * time.Minute
	DEFAULT_RECORDER_WORKERS = 16
	JANITOR_INTERVAL         = time.Minute
	RECORD_TIMEOUT           = 5 * time.Second
)

// Draw sources selectable by Config.RNG.
const (
	RNG_CRYPTO = "crypto"
	RNG_SEEDED = "seeded"
)

// Recorder observes resolved spins. Recorders never affect a balance.
type Recorder interface {
	Name() string
	RecordSpin(ctx context.Context, rec SpinRecord) error
}

type Config struct {
	StartBalance    int64
	SpinDelay       time.Duration
	SessionIdleTTL  time.Duration
	RecorderWorkers int
	// RNG is RNG_CRYPTO or RNG_SEEDED. Seeded sessions get their own
	// committed server seed, revealed when the session closes.
	RNG string
}

func DefaultConfig() Config {
	return Config{
		StartBalance:    DEFAULT_START_BALANCE,
		SpinDelay:       DEFAULT_SPIN_DELAY,
		SessionIdleTTL:  DEFAULT_SESSION_IDLE_TTL,
		RecorderWorkers: DEFAULT_RECORDER_WORKERS,
		RNG:             RNG_CRYPTO,
	}
}

type Option func(*SessionManager)

func WithSource(src Source) Option {
	return func(m *SessionManager) { m.source = src }
}

func WithScheduler(s Scheduler) Option {
	return func(m *SessionManager) { m.scheduler = s }
}

func WithRenderer(r Renderer) Option {
	return func(m *SessionManager) { m.renderer = r }
}

func WithRecorders(rs ...Recorder) Option {
	return func(m *SessionManager) { m.recorders = append(m.recorders, rs...) }
}

func WithLogger(log *zap.SugaredLogger) Option {
	return func(m *SessionManager) { m.log = log }
}

// SessionManager owns every open Session and fans resolved spins out to the
// registered recorders on a worker pool.
type SessionManager struct {
	cfg       Config
	source    Source
	scheduler Scheduler
	renderer  Renderer
	recorders []Recorder
	log       *zap.SugaredLogger
	pool      *ants.Pool

	mu       sync.RWMutex
	sessions map[string]*Session
	stopChan chan struct{}
	stopOnce sync.Once
}

func NewSessionManager(cfg Config, opts ...Option) (*SessionManager, error) {
	if cfg.StartBalance <= 0 {
		cfg.StartBalance = DEFAULT_START_BALANCE
	}
	if cfg.SpinDelay < 0 {
		cfg.SpinDelay = DEFAULT_SPIN_DELAY
	}
	if cfg.RecorderWorkers <= 0 {
		cfg.RecorderWorkers = DEFAULT_RECORDER_WORKERS
	}
	switch cfg.RNG {
	case "":
		cfg.RNG = RNG_CRYPTO
	case RNG_CRYPTO, RNG_SEEDED:
	default:
		return nil, fmt.Errorf("unknown rng %q", cfg.RNG)
	}

	m := &SessionManager{
		cfg:      cfg,
		sessions: make(map[string]*Session),
		stopChan: make(chan struct{}),
		log:      zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(m)
	}

	pool, err := ants.NewPool(cfg.RecorderWorkers,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(p interface{}) {
			m.log.Errorf("[RECORD] Recorder panicked: %v", p)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create recorder pool: %w", err)
	}
	m.pool = pool

	return m, nil
}

func (m *SessionManager) Config() Config {
	return m.cfg
}

// Start launches the idle-session janitor.
func (m *SessionManager) Start() {
	if m.cfg.SessionIdleTTL > 0 {
		go m.janitor()
	}
}

// Stop closes every session and releases the recorder pool.
func (m *SessionManager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopChan)

		closed := m.CloseAll()
		if err := m.pool.ReleaseTimeout(RECORD_TIMEOUT); err != nil {
			m.log.Warnf("[SESSION] Recorder pool did not drain: %v", err)
		}
		m.log.Infof("[SESSION] Manager stopped, closed %d sessions", closed)
	})
}

// CloseAll tears down every open session and returns how many were closed.
func (m *SessionManager) CloseAll() int {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	return len(sessions)
}

func (m *SessionManager) Create(ctx context.Context) (*Session, error) {
	select {
	case <-m.stopChan:
		return nil, ErrSessionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	id := uuid.NewString()
	source, err := m.sourceFor(id)
	if err != nil {
		return nil, err
	}
	engine := NewSpinEngine(source, m.scheduler, m.cfg.SpinDelay)
	s := newSession(id, m.cfg.StartBalance, engine, m.renderer, m.dispatch, m.log)

	m.mu.Lock()
	m.sessions[id] = s
	count := len(m.sessions)
	m.mu.Unlock()

	m.log.Infof("[SESSION] Created %s with balance %d (Total: %d)", id, m.cfg.StartBalance, count)
	return s, nil
}

// sourceFor picks the draw source of a new session. WithSource overrides
// the configured RNG for every session.
func (m *SessionManager) sourceFor(sessionID string) (Source, error) {
	if m.source != nil {
		return m.source, nil
	}
	if m.cfg.RNG != RNG_SEEDED {
		return CryptoSource{}, nil
	}
	seed, err := GenerateSeed()
	if err != nil {
		return nil, err
	}
	return NewSeededSource(seed, sessionID), nil
}

func (m *SessionManager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// Close tears a session down. A spin still in flight for it is discarded.
func (m *SessionManager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	count := len(m.sessions)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	s.Close()
	m.log.Infof("[SESSION] Closed %s (Total: %d)", id, count)
	return nil
}

func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *SessionManager) dispatch(rec SpinRecord) {
	if len(m.recorders) == 0 {
		return
	}
	err := m.pool.Submit(func() {
		for _, r := range m.recorders {
			ctx, cancel := context.WithTimeout(context.Background(), RECORD_TIMEOUT)
			if err := r.RecordSpin(ctx, rec); err != nil {
				m.log.Warnf("[RECORD] %s failed for session %s: %v", r.Name(), rec.SessionID, err)
			}
			cancel()
		}
	})
	if err != nil {
		m.log.Warnf("[RECORD] Dropped spin record for session %s: %v", rec.SessionID, err)
	}
}

func (m *SessionManager) janitor() {
	ticker := time.NewTicker(m.janitorInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.reapIdle()
		case <-m.stopChan:
			return
		}
	}
}

func (m *SessionManager) janitorInterval() time.Duration {
	if m.cfg.SessionIdleTTL < JANITOR_INTERVAL {
		return m.cfg.SessionIdleTTL
	}
	return JANITOR_INTERVAL
}

// reapIdle closes sessions idle past the TTL. Sessions with a spin in flight
// are left alone until it lands.
func (m *SessionManager) reapIdle() int {
	var expired []string

	m.mu.RLock()
	for id, s := range m.sessions {
		if !s.Spinning() && s.IdleFor() > m.cfg.SessionIdleTTL {
			expired = append(expired, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range expired {
		if err := m.Close(id); err == nil {
			m.log.Infof("[SESSION] Reaped idle session %s", id)
		}
	}
	return len(expired)
}
