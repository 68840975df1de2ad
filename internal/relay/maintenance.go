package relay

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sweeper removes stale rooms.
type Sweeper interface {
	SweepStale(maxAge time.Duration) []string
}

// Prober sends liveness probes to every open connection.
type Prober interface {
	ProbeAll() int
}

// periodic runs tick every interval from Start until Stop.
type periodic struct {
	interval time.Duration
	tick     func()
	stop     chan struct{}
	once     sync.Once
}

func newPeriodic(interval time.Duration, tick func()) *periodic {
	if interval <= 0 {
		panic("relay: periodic interval must be > 0")
	}
	return &periodic{
		interval: interval,
		tick:     tick,
		stop:     make(chan struct{}),
	}
}

func (p *periodic) run() error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return nil
		case <-ticker.C:
			p.tick()
		}
	}
}

func (p *periodic) halt() {
	p.once.Do(func() { close(p.stop) })
}

// Reaper periodically removes rooms that have had no clients for longer
// than the configured maximum age. It runs regardless of traffic.
type Reaper struct {
	sweeper Sweeper
	maxAge  time.Duration
	logger  *zap.Logger
	*periodic
}

// NewReaper creates a Reaper sweeping every interval.
//
// Precondition: interval must be > 0; sweeper and logger must be non-nil.
func NewReaper(sweeper Sweeper, interval, maxAge time.Duration, logger *zap.Logger) *Reaper {
	r := &Reaper{
		sweeper: sweeper,
		maxAge:  maxAge,
		logger:  logger,
	}
	r.periodic = newPeriodic(interval, func() { r.Sweep() })
	return r
}

// Sweep runs one pass immediately.
//
// Postcondition: Returns the ids of the removed rooms.
func (r *Reaper) Sweep() []string {
	removed := r.sweeper.SweepStale(r.maxAge)
	if len(removed) > 0 {
		r.logger.Info("removed stale rooms",
			zap.Strings("room_ids", removed),
			zap.Duration("max_age", r.maxAge),
		)
	}
	return removed
}

// Start sweeps every interval until Stop is called. It blocks.
func (r *Reaper) Start() error { return r.run() }

// Stop ends Start. It is idempotent.
func (r *Reaper) Stop() { r.halt() }

// LivenessProbe periodically pings every open connection. Connections that
// stop answering are closed by the transport and flow through the normal
// disconnect path.
type LivenessProbe struct {
	prober Prober
	logger *zap.Logger
	*periodic
}

// NewLivenessProbe creates a LivenessProbe firing every interval.
//
// Precondition: interval must be > 0; prober and logger must be non-nil.
func NewLivenessProbe(prober Prober, interval time.Duration, logger *zap.Logger) *LivenessProbe {
	p := &LivenessProbe{
		prober: prober,
		logger: logger,
	}
	p.periodic = newPeriodic(interval, func() { p.Probe() })
	return p
}

// Probe pings every open connection once.
//
// Postcondition: Returns the number of probes sent.
func (p *LivenessProbe) Probe() int {
	sent := p.prober.ProbeAll()
	p.logger.Debug("liveness probes sent", zap.Int("count", sent))
	return sent
}

// Start probes every interval until Stop is called. It blocks.
func (p *LivenessProbe) Start() error { return p.run() }

// Stop ends Start. It is idempotent.
func (p *LivenessProbe) Stop() { p.halt() }
