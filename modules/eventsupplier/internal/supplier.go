// Package internal implements the event batch supplier.
//
// This package is INTERNAL - clients MUST use the public API in the parent
// eventsupplier package.
package internal

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrAlreadyStarted is returned by a second Start call.
var ErrAlreadyStarted = errors.New("eventsupplier: already started")

// supplier is the concrete implementation of eventsupplier.Supplier.
//
// Goroutine topology:
//   - 1 fixed: distributionLoop (spawned by Start, stopped by Stop)
//   - 0-N/8 transient: fan-out goroutines when more than 8 consumers
//   - N external: consumer goroutines (owned by the callers)
type supplier struct {
	// Publisher → supplier
	inboxMu    sync.Mutex
	inboxCond  *sync.Cond
	inboxBatch *Batch // single slot: nil = consumed
	inboxDrops atomic.Uint64
	published  atomic.Uint64

	// Supplier → consumers
	slots sync.Map // consumer id (string) → *consumerSlot

	publishSeq atomic.Uint64

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopping atomic.Bool

	startedMu sync.Mutex
	started   bool
}

// NewSupplier creates a supplier (called by the public New in the parent package).
func NewSupplier() *supplier {
	s := &supplier{}
	s.inboxCond = sync.NewCond(&s.inboxMu)
	return s
}

// Start spawns the distribution loop and returns immediately.
func (s *supplier) Start(ctx context.Context) error {
	s.startedMu.Lock()
	defer s.startedMu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.started = true

	s.wg.Add(1)
	go s.distributionLoop()

	// Caller cancellation must also wake a loop blocked in Wait.
	go func() {
		<-s.ctx.Done()
		s.inboxMu.Lock()
		s.inboxCond.Broadcast()
		s.inboxMu.Unlock()
	}()

	return nil
}

// Stop shuts the distribution loop down and closes every consumer slot, so
// blocked read functions return nil. Idempotent.
func (s *supplier) Stop() error {
	s.startedMu.Lock()
	if !s.started || s.stopping.Load() {
		s.startedMu.Unlock()
		return nil
	}
	s.stopping.Store(true)
	s.startedMu.Unlock()

	s.cancel()

	s.inboxMu.Lock()
	s.inboxCond.Broadcast()
	s.inboxMu.Unlock()

	s.wg.Wait()

	s.slots.Range(func(key, value any) bool {
		value.(*consumerSlot).close()
		return true
	})
	return nil
}

// distributionLoop waits on the inbox and fans each batch out to the
// consumer slots until the context is cancelled.
func (s *supplier) distributionLoop() {
	defer s.wg.Done()

	for {
		s.inboxMu.Lock()
		for s.inboxBatch == nil {
			if s.ctx.Err() != nil {
				s.inboxMu.Unlock()
				return
			}
			s.inboxCond.Wait()
		}
		if s.ctx.Err() != nil {
			s.inboxMu.Unlock()
			return
		}

		batch := s.inboxBatch
		s.inboxBatch = nil
		s.inboxMu.Unlock()

		s.distribute(batch)
	}
}
