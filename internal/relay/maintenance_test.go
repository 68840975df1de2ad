package relay

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

type countingSweeper struct {
	calls  atomic.Int32
	maxAge atomic.Int64
}

func (s *countingSweeper) SweepStale(maxAge time.Duration) []string {
	s.calls.Add(1)
	s.maxAge.Store(int64(maxAge))
	return []string{"stale"}
}

type countingProber struct {
	calls atomic.Int32
}

func (p *countingProber) ProbeAll() int {
	p.calls.Add(1)
	return 3
}

func TestReaper_SweepsOnInterval(t *testing.T) {
	sweeper := &countingSweeper{}
	reaper := NewReaper(sweeper, 10*time.Millisecond, time.Hour, zaptest.NewLogger(t))

	done := make(chan error, 1)
	go func() { done <- reaper.Start() }()

	assert.Eventually(t, func() bool { return sweeper.calls.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	reaper.Stop()
	reaper.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("reaper did not stop in time")
	}
	assert.Equal(t, int64(time.Hour), sweeper.maxAge.Load())
}

func TestReaper_SweepRunsImmediately(t *testing.T) {
	sweeper := &countingSweeper{}
	reaper := NewReaper(sweeper, time.Hour, time.Minute, zaptest.NewLogger(t))

	assert.Equal(t, []string{"stale"}, reaper.Sweep())
	assert.Equal(t, int32(1), sweeper.calls.Load())
}

func TestReaper_SweepsRelay(t *testing.T) {
	r, clock := newTestRelay(t)
	hostRoom(t, r, "R")
	reaper := NewReaper(r, time.Hour, time.Hour, zaptest.NewLogger(t))

	clock.Advance(2 * time.Hour)
	assert.Equal(t, []string{"R"}, reaper.Sweep())
	assert.Empty(t, r.Rooms())
}

func TestLivenessProbe_ProbesOnInterval(t *testing.T) {
	prober := &countingProber{}
	probe := NewLivenessProbe(prober, 10*time.Millisecond, zaptest.NewLogger(t))

	done := make(chan error, 1)
	go func() { done <- probe.Start() }()

	assert.Eventually(t, func() bool { return prober.calls.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	probe.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("probe did not stop in time")
	}
}

func TestLivenessProbe_ProbesRelayConnections(t *testing.T) {
	r, _ := newTestRelay(t)
	_, a := connect(t, r)
	probe := NewLivenessProbe(r, time.Hour, zaptest.NewLogger(t))

	assert.Equal(t, 1, probe.Probe())
	assert.Equal(t, 1, a.probes)
}

func TestPeriodic_RejectsNonPositiveInterval(t *testing.T) {
	assert.Panics(t, func() {
		NewReaper(&countingSweeper{}, 0, time.Hour, zaptest.NewLogger(t))
	})
}
