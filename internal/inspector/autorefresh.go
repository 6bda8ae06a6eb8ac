package inspector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// AutoRefresh runs a refresh function periodically. Ticks that arrive while
// a refresh is still running are dropped, so cycles never overlap.
type AutoRefresh struct {
	refresh  func(ctx context.Context)
	interval time.Duration
	logger   *zap.Logger
	stopChan chan struct{}
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex
}

func NewAutoRefresh(refresh func(ctx context.Context), interval time.Duration, logger *zap.Logger) *AutoRefresh {
	return &AutoRefresh{
		refresh:  refresh,
		interval: interval,
		logger:   logger,
	}
}

// Start begins periodic refreshing.
func (a *AutoRefresh) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return nil
	}
	if a.interval <= 0 {
		return fmt.Errorf("invalid refresh interval %s", a.interval)
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.stopChan = make(chan struct{})
	a.cancel = cancel
	a.running = true
	a.wg.Add(1)

	go a.loop(ctx, a.stopChan, a.interval)

	a.logger.Info("Auto refresh started", zap.Duration("interval", a.interval))
	return nil
}

// Stop ends periodic refreshing and waits for a running cycle to finish.
// No tick is scheduled after Stop returns.
func (a *AutoRefresh) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	close(a.stopChan)
	a.cancel()
	a.mu.Unlock()

	a.wg.Wait()

	a.logger.Info("Auto refresh stopped")
}

// SetInterval changes the interval, restarting the ticker if it is running.
func (a *AutoRefresh) SetInterval(interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("invalid refresh interval %s", interval)
	}

	a.mu.Lock()
	running := a.running
	a.mu.Unlock()

	if running {
		a.Stop()
	}
	a.mu.Lock()
	a.interval = interval
	a.mu.Unlock()
	if running {
		return a.Start()
	}
	return nil
}

// Interval returns the configured interval.
func (a *AutoRefresh) Interval() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.interval
}

// IsRunning reports whether refreshes are scheduled.
func (a *AutoRefresh) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

func (a *AutoRefresh) loop(ctx context.Context, stop <-chan struct{}, interval time.Duration) {
	defer a.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			// stop may have been closed while waiting for the tick
			select {
			case <-stop:
				return
			default:
			}
			a.refresh(ctx)
		}
	}
}
