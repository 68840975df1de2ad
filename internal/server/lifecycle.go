// Package server runs the relay's long-lived services and shuts them down
// in order on SIGINT, SIGTERM, context cancellation or the first failure.
package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// DefaultDrainTimeout bounds how long Run waits for stopped services to
// return from Start.
const DefaultDrainTimeout = 10 * time.Second

// Service is a long-running component. Start blocks until Stop is called
// or the service fails.
type Service interface {
	Start() error
	Stop()
}

// FuncService adapts a start/stop function pair into a Service.
type FuncService struct {
	StartFn func() error
	StopFn  func()
}

// Start calls StartFn.
func (f *FuncService) Start() error { return f.StartFn() }

// Stop calls StopFn.
func (f *FuncService) Stop() { f.StopFn() }

type namedService struct {
	name    string
	service Service
}

// Lifecycle starts services in registration order and stops them in
// reverse order.
type Lifecycle struct {
	logger       *zap.Logger
	drainTimeout time.Duration
	signals      []os.Signal

	mu       sync.Mutex
	services []namedService
}

// NewLifecycle creates a Lifecycle that reacts to SIGINT and SIGTERM.
//
// Precondition: logger must be non-nil.
func NewLifecycle(logger *zap.Logger) *Lifecycle {
	return &Lifecycle{
		logger:       logger,
		drainTimeout: DefaultDrainTimeout,
		signals:      []os.Signal{syscall.SIGINT, syscall.SIGTERM},
	}
}

// SetDrainTimeout changes how long Run waits for Start calls to return
// after Stop.
//
// Precondition: d must be > 0.
func (l *Lifecycle) SetDrainTimeout(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.drainTimeout = d
}

// Add registers a named service.
//
// Precondition: name must be non-empty; svc must be non-nil.
func (l *Lifecycle) Add(name string, svc Service) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.services = append(l.services, namedService{name: name, service: svc})
}

// Run starts every service and blocks until a termination signal, ctx
// cancellation or a service failure, then stops them in reverse order.
//
// Postcondition: Every service has been stopped. Returns the first service
// failure, or nil if shutdown was requested.
func (l *Lifecycle) Run(ctx context.Context) error {
	start := time.Now()

	l.mu.Lock()
	services := append([]namedService(nil), l.services...)
	drainTimeout := l.drainTimeout
	l.mu.Unlock()

	ctx, stopSignals := signal.NotifyContext(ctx, l.signals...)
	defer stopSignals()

	errCh := make(chan error, len(services))
	var running sync.WaitGroup
	for _, ns := range services {
		ns := ns
		running.Add(1)
		go func() {
			defer running.Done()
			l.logger.Info("starting service", zap.String("service", ns.name))
			svcStart := time.Now()
			if err := ns.service.Start(); err != nil {
				l.logger.Error("service failed",
					zap.String("service", ns.name),
					zap.Error(err),
					zap.Duration("uptime", time.Since(svcStart)),
				)
				errCh <- fmt.Errorf("service %s: %w", ns.name, err)
			}
		}()
	}

	l.logger.Info("all services started",
		zap.Int("count", len(services)),
		zap.Duration("startup", time.Since(start)),
	)

	var runErr error
	select {
	case err := <-errCh:
		runErr = err
		l.logger.Error("service error, shutting down", zap.Error(err))
	case <-ctx.Done():
		l.logger.Info("shutdown requested", zap.NamedError("cause", context.Cause(ctx)))
	}

	l.shutdown(services)
	l.drain(&running, drainTimeout)

	l.logger.Info("shutdown complete", zap.Duration("total_uptime", time.Since(start)))
	return runErr
}

func (l *Lifecycle) shutdown(services []namedService) {
	shutdownStart := time.Now()
	for i := len(services) - 1; i >= 0; i-- {
		ns := services[i]
		svcStart := time.Now()
		ns.service.Stop()
		l.logger.Info("service stopped",
			zap.String("service", ns.name),
			zap.Duration("elapsed", time.Since(svcStart)),
		)
	}
	l.logger.Info("all services stopped", zap.Duration("shutdown_elapsed", time.Since(shutdownStart)))
}

// errDrainTimeout is logged when a service keeps running after Stop.
var errDrainTimeout = errors.New("services still running after stop")

func (l *Lifecycle) drain(running *sync.WaitGroup, timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		running.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		l.logger.Warn("drain timed out", zap.Error(errDrainTimeout), zap.Duration("timeout", timeout))
	}
}
