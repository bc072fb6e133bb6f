package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"roulette/internal/game"
)

func TestMetrics_RecordSpin(t *testing.T) {
	m := New(func() int { return 3 }, func() int { return 2 })
	ctx := context.Background()

	_ = m.RecordSpin(ctx, game.SpinRecord{Bet: 10, Number: 0, Payout: 350})
	_ = m.RecordSpin(ctx, game.SpinRecord{Bet: 20, Number: 1})
	_ = m.RecordSpin(ctx, game.SpinRecord{Bet: 5, Number: 2})

	if got := testutil.ToFloat64(m.spins.WithLabelValues("win", "green")); got != 1 {
		t.Errorf("green wins = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.spins.WithLabelValues("loss", "red")); got != 1 {
		t.Errorf("red losses = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.spins.WithLabelValues("loss", "black")); got != 1 {
		t.Errorf("black losses = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.wagered); got != 35 {
		t.Errorf("wagered = %v, want 35", got)
	}
	if got := testutil.ToFloat64(m.paid); got != 350 {
		t.Errorf("paid = %v, want 350", got)
	}
}

func TestMetrics_Gauges(t *testing.T) {
	m := New(func() int { return 7 }, nil)

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "roulette_open_sessions" {
			found = true
			if v := f.GetMetric()[0].GetGauge().GetValue(); v != 7 {
				t.Errorf("open_sessions = %v, want 7", v)
			}
		}
		if f.GetName() == "roulette_ws_clients" {
			t.Error("ws_clients should not be registered without a sampler")
		}
	}
	if !found {
		t.Error("open_sessions gauge missing")
	}
}

type zeroSource struct{}

func (zeroSource) Intn(int) int { return 0 }

type immediateScheduler struct{}

func (immediateScheduler) AfterFunc(_ time.Duration, f func()) { f() }

func TestMetrics_RecordsResolvedSpins(t *testing.T) {
	m := New(nil, nil)
	sessions, err := game.NewSessionManager(game.DefaultConfig(),
		game.WithSource(zeroSource{}),
		game.WithScheduler(immediateScheduler{}),
		game.WithRecorders(m),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer sessions.Stop()

	ctx := context.Background()
	sess, _ := sessions.Create(ctx)
	if _, err := sess.PlaceAndSpin(ctx, 40); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(time.Second)
	for testutil.ToFloat64(m.paid) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("spin never reached the metrics recorder")
		}
		time.Sleep(time.Millisecond)
	}
	if got := testutil.ToFloat64(m.spins.WithLabelValues("win", "green")); got != 1 {
		t.Errorf("green wins = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.paid); got != 1400 {
		t.Errorf("paid = %v, want 1400", got)
	}
	if got := testutil.ToFloat64(m.wagered); got != 40 {
		t.Errorf("wagered = %v, want 40", got)
	}
}
