package game

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type memRecorder struct {
	name string
	mu   sync.Mutex
	recs []SpinRecord
	err  error
	got  chan struct{}
}

func newMemRecorder(name string, err error) *memRecorder {
	return &memRecorder{name: name, err: err, got: make(chan struct{}, 16)}
}

func (r *memRecorder) Name() string { return r.name }

func (r *memRecorder) RecordSpin(_ context.Context, rec SpinRecord) error {
	r.mu.Lock()
	r.recs = append(r.recs, rec)
	r.mu.Unlock()
	r.got <- struct{}{}
	return r.err
}

func (r *memRecorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.got:
	case <-time.After(time.Second):
		t.Fatalf("recorder %s never called", r.name)
	}
}

func newTestManager(t *testing.T, cfg Config, opts ...Option) *SessionManager {
	t.Helper()
	m, err := NewSessionManager(cfg, opts...)
	if err != nil {
		t.Fatalf("NewSessionManager() = %v", err)
	}
	t.Cleanup(m.Stop)
	return m
}

func TestNewSessionManager_Defaults(t *testing.T) {
	m := newTestManager(t, Config{SpinDelay: -1})
	cfg := m.Config()

	if cfg.StartBalance != DEFAULT_START_BALANCE {
		t.Errorf("StartBalance = %d, want %d", cfg.StartBalance, DEFAULT_START_BALANCE)
	}
	if cfg.SpinDelay != DEFAULT_SPIN_DELAY {
		t.Errorf("SpinDelay = %v, want %v", cfg.SpinDelay, DEFAULT_SPIN_DELAY)
	}
	if cfg.RecorderWorkers != DEFAULT_RECORDER_WORKERS {
		t.Errorf("RecorderWorkers = %d", cfg.RecorderWorkers)
	}
	if cfg.RNG != RNG_CRYPTO {
		t.Errorf("RNG = %q, want %q", cfg.RNG, RNG_CRYPTO)
	}
}

func TestNewSessionManager_UnknownRNG(t *testing.T) {
	if _, err := NewSessionManager(Config{RNG: "dice"}); err == nil {
		t.Error("NewSessionManager() should reject an unknown rng")
	}
}

func TestSessionManager_SeededSessions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RNG = RNG_SEEDED
	m := newTestManager(t, cfg, WithScheduler(&manualScheduler{}))
	ctx := context.Background()

	a, _ := m.Create(ctx)
	b, _ := m.Create(ctx)
	snapA, _ := a.Snapshot(ctx)
	snapB, _ := b.Snapshot(ctx)

	if snapA.Fairness == nil || snapB.Fairness == nil {
		t.Fatal("seeded sessions should publish a commitment")
	}
	if snapA.Fairness.ServerSeedHash == snapB.Fairness.ServerSeedHash {
		t.Error("each session needs its own server seed")
	}
	if snapA.Fairness.ClientSeed != a.ID() {
		t.Errorf("ClientSeed = %q, want the session id", snapA.Fairness.ClientSeed)
	}

	plain := newTestManager(t, DefaultConfig(), WithScheduler(&manualScheduler{}))
	s, _ := plain.Create(ctx)
	if snap, _ := s.Snapshot(ctx); snap.Fairness != nil {
		t.Error("crypto sessions carry no commitment")
	}
}

func TestSessionManager_CreateGetClose(t *testing.T) {
	m := newTestManager(t, DefaultConfig(), WithScheduler(&manualScheduler{}))
	ctx := context.Background()

	s, err := m.Create(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if s.ID() == "" {
		t.Fatal("session id should not be empty")
	}
	if m.Count() != 1 {
		t.Errorf("Count() = %d, want 1", m.Count())
	}

	got, err := m.Get(s.ID())
	if err != nil || got != s {
		t.Fatalf("Get() = %v, %v", got, err)
	}

	snap, err := got.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Balance != DEFAULT_START_BALANCE || snap.SessionID != s.ID() {
		t.Errorf("snapshot = %+v", snap)
	}

	if err := m.Close(s.ID()); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Get(s.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get() after close = %v, want ErrSessionNotFound", err)
	}
	if err := m.Close(s.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("second Close() = %v, want ErrSessionNotFound", err)
	}
}

func TestSessionManager_SessionsAreIndependent(t *testing.T) {
	sched := &manualScheduler{}
	m := newTestManager(t, DefaultConfig(), WithScheduler(sched), WithSource(newFixedSource(9)))
	ctx := context.Background()

	a, _ := m.Create(ctx)
	b, _ := m.Create(ctx)
	if a.ID() == b.ID() {
		t.Fatal("sessions must have distinct ids")
	}

	if _, err := a.PlaceAndSpin(ctx, 400); err != nil {
		t.Fatal(err)
	}
	snapB, err := b.PlaceAndSpin(ctx, 100)
	if err != nil {
		t.Fatalf("spin on b blocked by a: %v", err)
	}
	if snapB.Balance != 900 {
		t.Errorf("b balance = %d, want 900", snapB.Balance)
	}
	snapA, _ := a.Snapshot(ctx)
	if snapA.Balance != 600 {
		t.Errorf("a balance = %d, want 600", snapA.Balance)
	}
}

func TestSessionManager_RecordersReceiveSpins(t *testing.T) {
	sched := &manualScheduler{}
	ok := newMemRecorder("ok", nil)
	failing := newMemRecorder("failing", errors.New("store down"))
	m := newTestManager(t, DefaultConfig(),
		WithScheduler(sched),
		WithSource(newFixedSource(0)),
		WithRecorders(failing, ok),
	)
	ctx := context.Background()

	s, _ := m.Create(ctx)
	if _, err := s.PlaceAndSpin(ctx, 10); err != nil {
		t.Fatal(err)
	}
	sched.Fire()

	failing.wait(t)
	ok.wait(t)

	ok.mu.Lock()
	defer ok.mu.Unlock()
	if len(ok.recs) != 1 {
		t.Fatalf("ok recorder got %d records, want 1", len(ok.recs))
	}
	rec := ok.recs[0]
	if rec.SessionID != s.ID() || rec.Bet != 10 || rec.Number != 0 || rec.Payout != 350 || rec.BalanceAfter != 1340 {
		t.Errorf("record = %+v", rec)
	}
}

func TestSessionManager_RendererWired(t *testing.T) {
	sched := &manualScheduler{}
	renders := newRenderLog()
	m := newTestManager(t, DefaultConfig(), WithScheduler(sched), WithRenderer(renders))
	ctx := context.Background()

	s, _ := m.Create(ctx)
	if _, err := s.PlaceBet(ctx, 25); err != nil {
		t.Fatal(err)
	}
	snap := renders.next(t, func(s Snapshot) bool { return s.PendingBet == 25 })
	if snap.SessionID != s.ID() {
		t.Errorf("rendered SessionID = %q, want %q", snap.SessionID, s.ID())
	}
}

func TestSessionManager_ReapIdle(t *testing.T) {
	sched := &manualScheduler{}
	m := newTestManager(t, Config{SessionIdleTTL: 20 * time.Millisecond}, WithScheduler(sched))
	ctx := context.Background()

	quiet, _ := m.Create(ctx)
	busy, _ := m.Create(ctx)
	if _, err := busy.PlaceAndSpin(ctx, 10); err != nil {
		t.Fatal(err)
	}

	time.Sleep(40 * time.Millisecond)
	if n := m.reapIdle(); n != 1 {
		t.Errorf("reapIdle() = %d, want 1", n)
	}
	if _, err := m.Get(quiet.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Error("idle session should be reaped")
	}
	if _, err := m.Get(busy.ID()); err != nil {
		t.Error("spinning session must not be reaped")
	}
}

func TestSessionManager_JanitorRuns(t *testing.T) {
	m := newTestManager(t, Config{SessionIdleTTL: 10 * time.Millisecond}, WithScheduler(&manualScheduler{}))
	m.Start()

	if _, err := m.Create(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitUntil(t, func() bool { return m.Count() == 0 })
}

func TestSessionManager_StopClosesSessions(t *testing.T) {
	m, err := NewSessionManager(DefaultConfig(), WithScheduler(&manualScheduler{}))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	s, _ := m.Create(ctx)

	m.Stop()
	m.Stop()

	if !s.Closed() {
		t.Error("Stop() should close open sessions")
	}
	if m.Count() != 0 {
		t.Errorf("Count() = %d after Stop()", m.Count())
	}
	if _, err := m.Create(ctx); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Create() after Stop() = %v, want ErrSessionClosed", err)
	}
}

func TestSessionManager_CloseAll(t *testing.T) {
	m := newTestManager(t, DefaultConfig(), WithScheduler(&manualScheduler{}))
	ctx := context.Background()
	a, _ := m.Create(ctx)
	b, _ := m.Create(ctx)

	if n := m.CloseAll(); n != 2 {
		t.Errorf("CloseAll() = %d, want 2", n)
	}
	if !a.Closed() || !b.Closed() || m.Count() != 0 {
		t.Error("CloseAll() should tear down every session")
	}
	if _, err := m.Create(ctx); err != nil {
		t.Errorf("Create() after CloseAll() = %v", err)
	}
}
