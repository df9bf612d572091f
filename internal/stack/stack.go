package stack

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"stacker/internal/orders"
)

// IDSource hands out process-unique order ids. All three stacks share one
// source so parent/child links are unambiguous across levels.
type IDSource struct {
	next atomic.Int64
}

func NewIDSource() *IDSource {
	return &IDSource{}
}

func (s *IDSource) Next() int64 {
	return s.next.Add(1)
}

// TransitionObserver is notified after a state change is committed.
// Observers run outside the stack mutex and must not call back into the
// stack synchronously from the same goroutine pass they observe.
type TransitionObserver func(level orders.Level, o *orders.Order, from, to orders.State)

type entry struct {
	order  *orders.Order
	locked bool
}

// Stack is the owned arena for one order level. Orders are reachable by id
// and by domain key; at most one working order may exist per key. Callers
// only ever see clones; mutation happens through ModifyOrder while the
// per-order lock is held.
type Stack struct {
	level orders.Level
	ids   *IDSource

	mu      sync.Mutex
	byID    map[int64]*entry
	byKey   map[orders.Key]int64
	archive map[int64]*orders.Order

	obsMu     sync.RWMutex
	observers []TransitionObserver

	nowFn func() time.Time
}

func New(level orders.Level, ids *IDSource) *Stack {
	if ids == nil {
		ids = NewIDSource()
	}
	return &Stack{
		level:   level,
		ids:     ids,
		byID:    make(map[int64]*entry),
		byKey:   make(map[orders.Key]int64),
		archive: make(map[int64]*orders.Order),
		nowFn:   time.Now,
	}
}

func (s *Stack) Level() orders.Level { return s.level }

// Observe registers a transition observer. Registration is expected at
// build time, before handlers start.
func (s *Stack) Observe(fn TransitionObserver) {
	if fn == nil {
		return
	}
	s.obsMu.Lock()
	s.observers = append(s.observers, fn)
	s.obsMu.Unlock()
}

// PutOrder adds a new order and returns its assigned id. The order must
// carry this stack's level and a non-empty key. Fails with ErrDuplicateKey
// if a working order already exists for the key, which prevents duplicate
// submission across unserialized handler passes.
func (s *Stack) PutOrder(o *orders.Order) (int64, error) {
	return s.put(o, false)
}

// PutOrderLocked adds a new order with its per-order lock already held by
// the caller. Wiring that must follow creation, such as child links, can
// then finish without losing the lock to a concurrent handler pass.
// Release with UnlockOrderByID.
func (s *Stack) PutOrderLocked(o *orders.Order) (int64, error) {
	return s.put(o, true)
}

func (s *Stack) put(o *orders.Order, locked bool) (int64, error) {
	if o == nil {
		return 0, orders.Violation("put", "nil order")
	}
	if o.Level != s.level {
		return 0, orders.Violation("put", "order level %s does not match stack level %s", o.Level, s.level)
	}
	if o.Key.IsZero() {
		return 0, orders.Violation("put", "order key is empty")
	}
	if o.State == "" {
		o.State = orders.StatePending
	}
	if o.State.Terminal() {
		return 0, orders.ErrTerminalState
	}
	if o.Fill.Abs().GreaterThan(o.Trade.Abs()) {
		return 0, orders.Violation("fill-bound", "fill %s exceeds trade %s", o.Fill, o.Trade)
	}

	s.mu.Lock()
	if _, exists := s.byKey[o.Key]; exists {
		s.mu.Unlock()
		return 0, orders.ErrDuplicateKey
	}
	id := s.ids.Next()
	now := s.nowFn()
	stored := o.Clone()
	stored.ID = id
	stored.CreatedAt = now
	stored.ModifiedAt = now
	s.byID[id] = &entry{order: stored, locked: locked}
	s.byKey[stored.Key] = id
	o.ID = id
	o.CreatedAt = now
	o.ModifiedAt = now
	s.mu.Unlock()

	// Creation is observable too: from is the empty state.
	s.notify(stored.Clone(), "", stored.State)
	return id, nil
}

// LockOrderByID takes the per-order try-lock and returns a snapshot.
// ErrAlreadyLocked is contention, not failure: skip this cycle and retry
// on the next one. An archived id reports ErrTerminalState.
func (s *Stack) LockOrderByID(id int64) (*orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[id]
	if !ok {
		if _, archived := s.archive[id]; archived {
			return nil, orders.ErrTerminalState
		}
		return nil, orders.ErrMissingOrder
	}
	if e.locked {
		return nil, orders.ErrAlreadyLocked
	}
	e.locked = true
	return e.order.Clone(), nil
}

// UnlockOrderByID releases the per-order lock. Unlocking an unlocked or
// missing order is a no-op.
func (s *Stack) UnlockOrderByID(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.byID[id]; ok {
		e.locked = false
	}
}

// FindOrderByKey returns a snapshot of the working order for the key.
func (s *Stack) FindOrderByKey(key orders.Key) (*orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byKey[key]
	if !ok {
		return nil, orders.ErrMissingOrder
	}
	return s.byID[id].order.Clone(), nil
}

// GetOrder returns a snapshot of a working or archived order.
func (s *Stack) GetOrder(id int64) (*orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.byID[id]; ok {
		return e.order.Clone(), nil
	}
	if o, ok := s.archive[id]; ok {
		return o.Clone(), nil
	}
	return nil, orders.ErrMissingOrder
}

// ModifyOrder applies updater to the order under its lock and commits the
// result if it keeps every invariant: identity immutable, terminal states
// immutable, fill magnitude bounded by trade and non-decreasing, state
// changes legal. The caller must hold the lock from LockOrderByID.
func (s *Stack) ModifyOrder(id int64, updater func(*orders.Order) error) error {
	s.mu.Lock()
	e, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		if _, archived := s.archive[id]; archived {
			return orders.ErrTerminalState
		}
		return orders.ErrMissingOrder
	}
	if !e.locked {
		s.mu.Unlock()
		return orders.ErrNotLocked
	}
	prev := e.order
	s.mu.Unlock()

	next := prev.Clone()
	if err := updater(next); err != nil {
		return err
	}
	if err := checkMutation(prev, next); err != nil {
		return err
	}
	next.ModifiedAt = s.nowFn()

	s.mu.Lock()
	// Re-check under the mutex: the entry cannot have changed while we
	// held the per-order lock, but it may have been force-removed.
	e, ok = s.byID[id]
	if !ok {
		s.mu.Unlock()
		return orders.ErrMissingOrder
	}
	from := e.order.State
	e.order = next
	if next.State.Terminal() {
		if cur, ok := s.byKey[next.Key]; ok && cur == id {
			delete(s.byKey, next.Key)
		}
	}
	s.mu.Unlock()

	if from != next.State {
		s.notify(next.Clone(), from, next.State)
	}
	return nil
}

// RemoveOrder archives a terminal order. Archived orders stay queryable
// for audit; they never re-enter the working set.
func (s *Stack) RemoveOrder(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[id]
	if !ok {
		if _, archived := s.archive[id]; archived {
			return nil
		}
		return orders.ErrMissingOrder
	}
	if !e.order.State.Terminal() {
		return orders.ErrNotTerminal
	}
	delete(s.byID, id)
	if cur, ok := s.byKey[e.order.Key]; ok && cur == id {
		delete(s.byKey, e.order.Key)
	}
	s.archive[id] = e.order
	return nil
}

// ListActive returns snapshots of every working order, ordered by id.
func (s *Stack) ListActive() []*orders.Order {
	s.mu.Lock()
	out := make([]*orders.Order, 0, len(s.byID))
	for _, e := range s.byID {
		out = append(out, e.order.Clone())
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListByInstrument returns snapshots of working orders for one instrument.
func (s *Stack) ListByInstrument(code string) []*orders.Order {
	key := orders.InstrumentKey(code)
	s.mu.Lock()
	out := make([]*orders.Order, 0, 4)
	for _, e := range s.byID {
		if e.order.Key.Instrument == key.Instrument {
			out = append(out, e.order.Clone())
		}
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListArchived returns up to limit archived orders, newest first.
func (s *Stack) ListArchived(limit int) []*orders.Order {
	s.mu.Lock()
	out := make([]*orders.Order, 0, len(s.archive))
	for _, o := range s.archive {
		out = append(out, o.Clone())
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *Stack) notify(o *orders.Order, from, to orders.State) {
	s.obsMu.RLock()
	obs := append([]TransitionObserver(nil), s.observers...)
	s.obsMu.RUnlock()
	for _, fn := range obs {
		fn(s.level, o, from, to)
	}
}

func checkMutation(prev, next *orders.Order) error {
	if next.ID != prev.ID || next.Level != prev.Level || next.Key != prev.Key {
		return orders.Violation("identity", "id/level/key are immutable")
	}
	if prev.State.Terminal() {
		return orders.ErrTerminalState
	}
	if next.State != prev.State && !orders.CanTransition(prev.State, next.State) {
		return orders.Violation("state", "illegal transition %s -> %s", prev.State, next.State)
	}
	if next.Fill.Abs().LessThan(prev.Fill.Abs()) {
		return orders.Violation("fill-monotonic", "fill magnitude decreased %s -> %s", prev.Fill, next.Fill)
	}
	if next.Fill.Abs().GreaterThan(next.Trade.Abs()) {
		return orders.Violation("fill-bound", "fill %s exceeds trade %s", next.Fill, next.Trade)
	}
	return nil
}
