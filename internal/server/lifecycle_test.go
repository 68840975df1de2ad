package server

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// blockingService blocks in Start until Stop and records stop order.
type blockingService struct {
	name    string
	started atomic.Bool
	stop    chan struct{}
	once    sync.Once
	order   *stopOrder
}

type stopOrder struct {
	mu    sync.Mutex
	names []string
}

func (o *stopOrder) add(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.names = append(o.names, name)
}

func newBlockingService(name string, order *stopOrder) *blockingService {
	return &blockingService{name: name, stop: make(chan struct{}), order: order}
}

func (s *blockingService) Start() error {
	s.started.Store(true)
	<-s.stop
	return nil
}

func (s *blockingService) Stop() {
	s.once.Do(func() {
		s.order.add(s.name)
		close(s.stop)
	})
}

func runAsync(ctx context.Context, lc *Lifecycle) <-chan error {
	done := make(chan error, 1)
	go func() { done <- lc.Run(ctx) }()
	return done
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("lifecycle did not shut down in time")
		return nil
	}
}

func TestLifecycle_StopsInReverseOrderOnCancel(t *testing.T) {
	lc := NewLifecycle(zaptest.NewLogger(t))
	order := &stopOrder{}
	ws := newBlockingService("websocket", order)
	reaper := newBlockingService("reaper", order)
	probe := newBlockingService("liveness", order)
	lc.Add("websocket", ws)
	lc.Add("reaper", reaper)
	lc.Add("liveness", probe)

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, lc)

	require.Eventually(t, func() bool {
		return ws.started.Load() && reaper.started.Load() && probe.started.Load()
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	assert.NoError(t, waitDone(t, done))
	assert.Equal(t, []string{"liveness", "reaper", "websocket"}, order.names)
}

func TestLifecycle_ServiceFailureStopsOthers(t *testing.T) {
	lc := NewLifecycle(zaptest.NewLogger(t))
	order := &stopOrder{}
	ws := newBlockingService("websocket", order)
	lc.Add("websocket", ws)

	boom := errors.New("address in use")
	lc.Add("broken", &FuncService{
		StartFn: func() error { return boom },
		StopFn:  func() { order.add("broken") },
	})

	err := waitDone(t, runAsync(context.Background(), lc))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "service broken")
	assert.Equal(t, []string{"broken", "websocket"}, order.names)
}

func TestLifecycle_DrainTimeoutDoesNotHang(t *testing.T) {
	lc := NewLifecycle(zap.NewNop())
	lc.SetDrainTimeout(50 * time.Millisecond)

	stuck := make(chan struct{})
	t.Cleanup(func() { close(stuck) })
	lc.Add("stuck", &FuncService{
		StartFn: func() error { <-stuck; return nil },
		StopFn:  func() {},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, lc)
	cancel()
	assert.NoError(t, waitDone(t, done))
}

func TestFuncService(t *testing.T) {
	started := false
	stopped := false

	svc := &FuncService{
		StartFn: func() error {
			started = true
			return nil
		},
		StopFn: func() {
			stopped = true
		},
	}

	assert.NoError(t, svc.Start())
	assert.True(t, started)

	svc.Stop()
	assert.True(t, stopped)
}
