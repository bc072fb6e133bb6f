package game

import (
	"math"
	"time"
)

const DEFAULT_SPIN_DELAY = 3 * time.Second

// Scheduler runs f once after d. The real implementation is time.AfterFunc.
type Scheduler interface {
	AfterFunc(d time.Duration, f func())
}

type timerScheduler struct{}

func (timerScheduler) AfterFunc(d time.Duration, f func()) {
	time.AfterFunc(d, f)
}

// TimerScheduler returns the time.AfterFunc backed Scheduler.
func TimerScheduler() Scheduler {
	return timerScheduler{}
}

// SpinEngine turns a committed bet into an Outcome after the wheel settles.
type SpinEngine struct {
	source    Source
	scheduler Scheduler
	delay     time.Duration
}

func NewSpinEngine(source Source, scheduler Scheduler, delay time.Duration) *SpinEngine {
	if source == nil {
		source = CryptoSource{}
	}
	if scheduler == nil {
		scheduler = TimerScheduler()
	}
	if delay < 0 {
		delay = 0
	}
	return &SpinEngine{
		source:    source,
		scheduler: scheduler,
		delay:     delay,
	}
}

func (e *SpinEngine) Delay() time.Duration {
	return e.delay
}

// Resolve draws a pocket and computes the payout for bet.
func (e *SpinEngine) Resolve(bet int64) Outcome {
	number := e.source.Intn(POCKET_COUNT)
	return Outcome{
		Number: number,
		Payout: Payout(bet, number),
	}
}

// Schedule resolves bet after the settle delay and calls deliver exactly once.
func (e *SpinEngine) Schedule(bet int64, deliver func(Outcome)) {
	e.scheduler.AfterFunc(e.delay, func() {
		deliver(e.Resolve(bet))
	})
}

// Payout pays bet*35 on zero and nothing otherwise. The stake was already
// debited at spin time and is not returned on top. The result saturates at
// math.MaxInt64; GameState never accepts a bet that large.
func Payout(bet int64, number int) int64 {
	if number != 0 || bet <= 0 {
		return 0
	}
	if bet > math.MaxInt64/ZERO_PAYOUT_RATIO {
		return math.MaxInt64
	}
	return bet * ZERO_PAYOUT_RATIO
}
