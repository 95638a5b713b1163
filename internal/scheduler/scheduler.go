// Package scheduler triggers automatic newsletter runs at fixed UTC hours.
//
// Every replica runs a scheduler. A distributed lock per (date, hour) slot
// makes sure only one of them fires the slot; the lock is not released, so
// it expires on its own after the slot has passed.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/newsly/newsly/internal/domain"
	"github.com/newsly/newsly/internal/pkg/distlock"
	"github.com/newsly/newsly/internal/pkg/logger"
	"github.com/newsly/newsly/internal/service/dispatch"
)

const (
	// DefaultInterval is how often the clock is checked.
	DefaultInterval = time.Minute

	// slotTTL keeps a fired slot locked past the end of its hour.
	slotTTL = 2 * time.Hour
)

// AutoRunner starts an automatic run. *dispatch.Runner implements it.
type AutoRunner interface {
	RunAuto(ctx context.Context, topic domain.Topic) (*dispatch.AutoResult, error)
}

// Scheduler fires RunAuto once per configured hour.
type Scheduler struct {
	runner   AutoRunner
	locks    distlock.Factory
	hours    map[int]bool
	interval time.Duration
	now      func() time.Time

	mu       sync.Mutex
	lastSlot string
	held     distlock.DistLock // slot lock kept until its hour ends
	heldSlot string
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New creates a scheduler for the given UTC hours. locks may be nil on a
// single instance.
func New(runner AutoRunner, locks distlock.Factory, hours []int) (*Scheduler, error) {
	set := make(map[int]bool, len(hours))
	for _, h := range hours {
		if h < 0 || h > 23 {
			return nil, fmt.Errorf("scheduler: invalid hour %d", h)
		}
		set[h] = true
	}
	return &Scheduler{
		runner:   runner,
		locks:    locks,
		hours:    set,
		interval: DefaultInterval,
		now:      time.Now,
	}, nil
}

// Start begins the polling loop in the background.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.Tick(ctx); err != nil {
					logger.Error("scheduler: tick failed", "error", err)
				}
			}
		}
	}()
	logger.Info("scheduler: started", "hours", len(s.hours))
	return nil
}

// Stop cancels the loop and waits for an in-progress run to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()
	s.wg.Wait()
	s.releaseSlot("")
	logger.Info("scheduler: stopped")
}

// Tick checks the clock once and runs the current slot if it is due and
// not yet claimed. It reports whether a run was started.
func (s *Scheduler) Tick(ctx context.Context) (bool, error) {
	now := s.now().UTC()
	slot := fmt.Sprintf("newsletter:auto:%s:%02d", now.Format("2006-01-02"), now.Hour())
	s.releaseSlot(slot)
	if !s.hours[now.Hour()] {
		return false, nil
	}

	s.mu.Lock()
	if s.lastSlot == slot {
		s.mu.Unlock()
		return false, nil
	}
	s.lastSlot = slot
	s.mu.Unlock()

	if s.locks != nil {
		lock := s.locks(slot, slotTTL)
		ok, err := lock.Acquire(ctx)
		if err != nil {
			s.forget(slot)
			return false, fmt.Errorf("claim slot %s: %w", slot, err)
		}
		if !ok {
			logger.Debug("scheduler: slot taken by another instance", "slot", slot)
			return false, nil
		}
		s.mu.Lock()
		s.held, s.heldSlot = lock, slot
		s.mu.Unlock()
	}

	topic := domain.TopicForHour(now.Hour())
	logger.Info("scheduler: firing", "slot", slot, "topic", topic)
	res, err := s.runner.RunAuto(ctx, topic)
	if errors.Is(err, dispatch.ErrRunInProgress) {
		logger.Warn("scheduler: run already in progress", "topic", topic)
		return false, nil
	}
	if err != nil {
		return true, fmt.Errorf("auto run %s: %w", topic, err)
	}
	for tier, r := range res.Results {
		logger.Info("scheduler: tier result", "topic", topic, "tier", tier, "sent", r.Sent, "failed", r.Failed, "error", r.Error)
	}
	return true, nil
}

// releaseSlot releases the held slot lock unless it belongs to current.
// Other instances skip the slot for as long as the lock is held.
func (s *Scheduler) releaseSlot(current string) {
	s.mu.Lock()
	lock, slot := s.held, s.heldSlot
	if lock == nil || slot == current {
		s.mu.Unlock()
		return
	}
	s.held, s.heldSlot = nil, ""
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := lock.Release(ctx); err != nil {
		logger.Warn("scheduler: release slot", "slot", slot, "error", err)
	}
}

// forget lets the next tick retry a slot that could not be claimed.
func (s *Scheduler) forget(slot string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastSlot == slot {
		s.lastSlot = ""
	}
}
