package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/powerchain/backend/internal/logger"
	"github.com/powerchain/backend/internal/models"
	"go.uber.org/zap"
)

// Journal durably appends the events of one committed ledger transaction.
type Journal interface {
	Append(ctx context.Context, events []models.Event) error
}

// EventPublisher fans committed events out to consumers. Failures never undo
// a commit.
type EventPublisher interface {
	Publish(ctx context.Context, events []models.Event) error
}

// Replayer reapplies journaled events to the state it owns. It reports false
// for events belonging to another ledger.
type Replayer interface {
	ReplayTx(tx *LedgerTx, ev models.Event) (bool, error)
}

// LedgerStore serializes every mutation across all ledgers behind one write
// lock, so a LedgerTx observes and applies state as a single indivisible unit.
// Queries take the read lock and never see a transaction in flight.
type LedgerStore struct {
	mu        sync.RWMutex
	clock     func() time.Time
	journal   Journal
	publisher EventPublisher
	log       *zap.Logger
}

type StoreOption func(*LedgerStore)

func WithClock(clock func() time.Time) StoreOption {
	return func(s *LedgerStore) { s.clock = clock }
}

func WithJournal(j Journal) StoreOption {
	return func(s *LedgerStore) { s.journal = j }
}

func WithPublisher(p EventPublisher) StoreOption {
	return func(s *LedgerStore) { s.publisher = p }
}

func WithLogger(l *zap.Logger) StoreOption {
	return func(s *LedgerStore) { s.log = l }
}

func NewLedgerStore(opts ...StoreOption) *LedgerStore {
	s := &LedgerStore{clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logger.OrNop(s.log).Named("ledger")
	return s
}

// Logger returns a child logger for a component sharing this store.
func (s *LedgerStore) Logger(component string) *zap.Logger {
	return s.log.Named(component)
}

// Now reads the store clock without taking a lock.
func (s *LedgerStore) Now() time.Time {
	return s.clock()
}

// Begin opens a transaction holding the write lock until Commit or Rollback.
func (s *LedgerStore) Begin() *LedgerTx {
	s.mu.Lock()
	return &LedgerTx{store: s, now: s.clock()}
}

// View runs fn under the read lock with a consistent timestamp.
func (s *LedgerStore) View(fn func(now time.Time)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.clock())
}

// LedgerTx collects undo steps and events for one mutation.
type LedgerTx struct {
	store  *LedgerStore
	now    time.Time
	undo   []func()
	events []models.Event
	done   bool
}

// Now is the single timestamp every step of the transaction uses.
func (tx *LedgerTx) Now() time.Time {
	return tx.now
}

// OnRollback registers fn to restore state if the transaction is abandoned.
func (tx *LedgerTx) OnRollback(fn func()) {
	tx.undo = append(tx.undo, fn)
}

func (tx *LedgerTx) Emit(ev models.Event) {
	tx.events = append(tx.events, ev)
}

// Events returns the events buffered so far.
func (tx *LedgerTx) Events() []models.Event {
	return tx.events
}

// Commit journals the buffered events and releases the lock. If the journal
// rejects them the transaction is rolled back and the error returned.
func (tx *LedgerTx) Commit(ctx context.Context) error {
	if tx.done {
		return fmt.Errorf("ledger transaction already finished")
	}
	s := tx.store

	if s.journal != nil && len(tx.events) > 0 {
		if err := s.journal.Append(ctx, tx.events); err != nil {
			s.log.Error("journal append failed, rolling back",
				zap.Int("events", len(tx.events)), zap.Error(err))
			tx.Rollback()
			return fmt.Errorf("commit: %w", err)
		}
	}

	tx.done = true
	events := tx.events
	tx.undo = nil
	s.mu.Unlock()

	if s.publisher != nil && len(events) > 0 {
		if err := s.publisher.Publish(ctx, events); err != nil {
			s.log.Warn("event publish failed", zap.Int("events", len(events)), zap.Error(err))
		}
	}
	return nil
}

// Rollback undoes every registered step in reverse order. It is a no-op once
// the transaction has committed, so it can always be deferred.
func (tx *LedgerTx) Rollback() {
	if tx.done {
		return
	}
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
	tx.events = nil
	tx.done = true
	tx.store.mu.Unlock()
}

// Restore rebuilds state from journaled events, oldest first. Each event is
// applied in its own transaction stamped with the time it originally
// occurred; nothing is journaled or published again. Every event must be
// claimed by one of the replayers. Restore stops at the first failure,
// leaving the events before it applied, and is meant to run before the
// store serves traffic.
func (s *LedgerStore) Restore(events []models.Event, replayers ...Replayer) error {
	for i, ev := range events {
		if err := s.replay(ev, replayers); err != nil {
			return fmt.Errorf("restore event %d (%s): %w", i+1, ev.Kind(), err)
		}
	}
	if len(events) > 0 {
		s.log.Info("ledger restored from journal", zap.Int("events", len(events)))
	}
	return nil
}

func (s *LedgerStore) replay(ev models.Event, replayers []Replayer) error {
	s.mu.Lock()
	tx := &LedgerTx{store: s, now: ev.OccurredAt()}
	defer tx.Rollback()

	for _, r := range replayers {
		ok, err := r.ReplayTx(tx, ev)
		if err != nil {
			return err
		}
		if ok {
			tx.done = true
			tx.undo = nil
			s.mu.Unlock()
			return nil
		}
	}
	return fmt.Errorf("no ledger replays this event")
}
