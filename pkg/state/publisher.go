package state

import (
	"sync"
	"time"

	"svcfwd/pkg/logging"
)

// EntryStatus is one row of the published view.
type EntryStatus struct {
	Entry     Entry
	Status    Status
	LocalPort int
	LastError error
	StartedAt time.Time
}

// Event is one row change delivered to subscribers.
type Event struct {
	Row EntryStatus
}

// Subscription is one consumer of row changes. A new subscriber first
// receives the full current table, then deltas.
type Subscription struct {
	C <-chan Event

	id     int
	ch     chan Event
	closed bool
	mu     sync.Mutex
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		close(s.ch)
		s.closed = true
	}
}

const subscriptionBuffer = 256

// Publisher holds the authoritative status table. All writes come from
// the session manager's control loop; readers get consistent copies.
type Publisher struct {
	mu     sync.RWMutex
	order  []string
	rows   map[string]EntryStatus
	subs   map[int]*Subscription
	nextID int
}

// NewPublisher builds the table from the snapshot entries, all Idle,
// preserving the given order.
func NewPublisher(entries []Entry) *Publisher {
	p := &Publisher{
		rows: make(map[string]EntryStatus, len(entries)),
		subs: make(map[int]*Subscription),
	}
	for _, e := range entries {
		key := e.Key()
		if _, dup := p.rows[key]; dup {
			continue
		}
		p.order = append(p.order, key)
		p.rows[key] = EntryStatus{Entry: e, Status: StatusIdle}
	}
	return p
}

// Snapshot returns a consistent copy of the table in snapshot order.
func (p *Publisher) Snapshot() []EntryStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]EntryStatus, 0, len(p.order))
	for _, key := range p.order {
		out = append(out, p.rows[key])
	}
	return out
}

// Apply replaces one row and notifies subscribers. Only the session
// control loop calls this, so row updates are totally ordered.
func (p *Publisher) Apply(row EntryStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := row.Entry.Key()
	if _, known := p.rows[key]; !known {
		logging.Warn("state", "ignoring update for unknown entry %s", key)
		return
	}
	p.rows[key] = row

	ev := Event{Row: row}
	for _, sub := range p.subs {
		select {
		case sub.ch <- ev:
		default:
			// Slow subscriber; it reconciles from the next snapshot.
			logging.Debug("state", "dropped event for %s on subscription %d", key, sub.id)
		}
	}
}

// Subscribe registers a consumer. The current table is queued on the
// channel before any later delta, so the subscriber never starts from a
// torn view.
func (p *Publisher) Subscribe() *Subscription {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.nextID++
	sub := &Subscription{
		id: p.nextID,
		// Sized to hold the initial snapshot plus a burst of deltas.
		ch: make(chan Event, len(p.order)+subscriptionBuffer),
	}
	sub.C = sub.ch
	for _, key := range p.order {
		sub.ch <- Event{Row: p.rows[key]}
	}
	p.subs[sub.id] = sub
	return sub
}

// Unsubscribe removes the consumer and closes its channel.
func (p *Publisher) Unsubscribe(sub *Subscription) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.subs[sub.id]; ok {
		delete(p.subs, sub.id)
		sub.close()
	}
}
