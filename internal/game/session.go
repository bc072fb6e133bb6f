package game

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Renderer receives a snapshot every time a session changes.
type Renderer interface {
	Render(s Snapshot)
}

type RendererFunc func(s Snapshot)

func (f RendererFunc) Render(s Snapshot) { f(s) }

type command struct {
	run     func(g *GameState) error
	mutates bool
	resp    chan commandResult
}

type commandResult struct {
	snapshot Snapshot
	err      error
}

// Session is one player's table. A single goroutine owns the GameState;
// every operation, including spin completion, is a message to that loop.
type Session struct {
	id         string
	state      *GameState
	engine     *SpinEngine
	renderer   Renderer
	onResolved func(SpinRecord)
	log        *zap.SugaredLogger

	commands chan command
	outcomes chan Outcome
	stopChan chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once

	stake      int64 // loop-owned
	spinning   atomic.Bool
	lastActive atomic.Int64
	fair       *SeededSource
}

func newSession(id string, startBalance int64, engine *SpinEngine, renderer Renderer, onResolved func(SpinRecord), log *zap.SugaredLogger) *Session {
	s := &Session{
		id:         id,
		state:      NewGameState(startBalance),
		engine:     engine,
		renderer:   renderer,
		onResolved: onResolved,
		log:        log,
		commands:   make(chan command),
		outcomes:   make(chan Outcome, 1),
		stopChan:   make(chan struct{}),
		stopped:    make(chan struct{}),
	}
	if fair, ok := engine.source.(*SeededSource); ok {
		s.fair = fair
	}
	s.touch()
	go s.loop()
	return s
}

func (s *Session) ID() string { return s.id }

// RevealSeed returns the server seed of a seeded session. Reveal it only once
// the session is over; afterwards its draws are predictable.
func (s *Session) RevealSeed() (string, bool) {
	if s.fair == nil {
		return "", false
	}
	return s.fair.ServerSeed(), true
}

// Spinning reports whether a draw is outstanding.
func (s *Session) Spinning() bool { return s.spinning.Load() }

// IdleFor is the time since the last player action.
func (s *Session) IdleFor() time.Duration {
	return time.Since(time.Unix(0, s.lastActive.Load()))
}

func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	return s.do(ctx, command{run: func(*GameState) error { return nil }})
}

func (s *Session) PlaceBet(ctx context.Context, amount int64) (Snapshot, error) {
	return s.do(ctx, command{
		mutates: true,
		run: func(g *GameState) error {
			return g.PlaceBet(amount)
		},
	})
}

// Spin commits the pending bet.
func (s *Session) Spin(ctx context.Context) (Snapshot, error) {
	return s.do(ctx, command{mutates: true, run: s.spin})
}

// PlaceAndSpin places amount and spins it in the same loop turn, so nothing
// can interleave between the two. A rejected amount spins nothing, even when
// an earlier bet is still pending.
func (s *Session) PlaceAndSpin(ctx context.Context, amount int64) (Snapshot, error) {
	return s.do(ctx, command{
		mutates: true,
		run: func(g *GameState) error {
			if err := g.PlaceBet(amount); err != nil {
				return err
			}
			return s.spin(g)
		},
	})
}

func (s *Session) spin(g *GameState) error {
	bet, err := g.Spin()
	if err != nil {
		return err
	}
	s.stake = bet
	s.spinning.Store(true)
	s.engine.Schedule(bet, s.deliver)
	s.log.Debugf("[SPIN] Session %s staked %d, balance %d", s.id, bet, g.Balance())
	return nil
}

func (s *Session) DismissResult(ctx context.Context) (Snapshot, error) {
	return s.do(ctx, command{
		mutates: true,
		run: func(g *GameState) error {
			g.DismissResult()
			return nil
		},
	})
}

// Close stops the loop. An outstanding spin is dropped when it lands.
func (s *Session) Close() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
	<-s.stopped
}

func (s *Session) Closed() bool {
	select {
	case <-s.stopChan:
		return true
	default:
		return false
	}
}

func (s *Session) do(ctx context.Context, cmd command) (Snapshot, error) {
	cmd.resp = make(chan commandResult, 1)

	select {
	case s.commands <- cmd:
	case <-s.stopChan:
		return Snapshot{}, ErrSessionClosed
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}

	// The loop always answers an accepted command before it can exit.
	res := <-cmd.resp
	if cmd.mutates {
		s.touch()
	}
	return res.snapshot, res.err
}

func (s *Session) deliver(o Outcome) {
	select {
	case s.outcomes <- o:
	case <-s.stopChan:
		s.log.Infof("[SPIN] Session %s closed before pocket %d landed, outcome dropped", s.id, o.Number)
	}
}

func (s *Session) loop() {
	defer close(s.stopped)

	for {
		select {
		case cmd := <-s.commands:
			err := cmd.run(s.state)
			snap := s.snapshot()
			cmd.resp <- commandResult{snapshot: snap, err: err}
			if cmd.mutates && err == nil {
				s.render(snap)
			}

		case o := <-s.outcomes:
			s.resolve(o)

		case <-s.stopChan:
			return
		}
	}
}

func (s *Session) resolve(o Outcome) {
	if err := s.state.ApplyOutcome(o); err != nil {
		s.log.Warnf("[SPIN] Session %s ignored outcome %+v: %v", s.id, o, err)
		return
	}
	bet := s.stake
	s.stake = 0
	s.spinning.Store(false)

	snap := s.snapshot()
	s.log.Infof("[SPIN] Session %s landed on %d, bet %d, payout %d, balance %d",
		s.id, o.Number, bet, o.Payout, snap.Balance)

	s.render(snap)

	if s.onResolved != nil {
		s.onResolved(SpinRecord{
			SessionID:    s.id,
			Bet:          bet,
			Number:       o.Number,
			Payout:       o.Payout,
			BalanceAfter: snap.Balance,
			ResolvedAt:   time.Now(),
		})
	}
}

func (s *Session) snapshot() Snapshot {
	snap := s.state.Snapshot()
	snap.SessionID = s.id
	if s.fair != nil {
		snap.Fairness = s.fair.Fairness()
	}
	return snap
}

func (s *Session) render(snap Snapshot) {
	if s.renderer != nil {
		s.renderer.Render(snap)
	}
}

func (s *Session) touch() {
	s.lastActive.Store(time.Now().UnixNano())
}
