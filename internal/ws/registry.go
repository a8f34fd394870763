package ws

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var ErrUnknownConnection = errors.New("unknown connection")

// Subscription is the routing state of one downstream connection.
type Subscription struct {
	ConnID        string
	UserID        string
	Authenticated bool
	Traders       map[string]struct{}
	Symbols       map[string]struct{}
	ConnectedAt   time.Time
}

func (s *Subscription) followsTrader(id string) bool {
	_, ok := s.Traders[id]
	return ok
}

func (s *Subscription) watchesSymbol(sym string) bool {
	_, ok := s.Symbols[sym]
	return ok
}

type entry struct {
	sub  *Subscription
	send chan []byte
}

// Registry owns every Subscription and its outbound buffer, keyed by
// connection id. Sends never block: a full buffer drops the message.
// Removal closes the buffer under the write lock, so no send can race it.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	buffer  int
	dropped atomic.Uint64
}

func NewRegistry(buffer int) *Registry {
	if buffer <= 0 {
		buffer = 256
	}
	return &Registry{entries: make(map[string]*entry), buffer: buffer}
}

// Add registers a connection and returns its outbound channel.
func (r *Registry) Add(connID, userID string, authenticated bool) <-chan []byte {
	e := &entry{
		sub: &Subscription{
			ConnID:        connID,
			UserID:        userID,
			Authenticated: authenticated,
			Traders:       make(map[string]struct{}),
			Symbols:       make(map[string]struct{}),
			ConnectedAt:   time.Now(),
		},
		send: make(chan []byte, r.buffer),
	}
	r.mu.Lock()
	r.entries[connID] = e
	r.mu.Unlock()
	return e.send
}

func (r *Registry) Remove(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[connID]; ok {
		delete(r.entries, connID)
		close(e.send)
	}
}

// SubscribeTrader reports whether the trader was newly added.
func (r *Registry) SubscribeTrader(connID, traderID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[connID]
	if !ok {
		return false, ErrUnknownConnection
	}
	if e.sub.followsTrader(traderID) {
		return false, nil
	}
	e.sub.Traders[traderID] = struct{}{}
	return true, nil
}

func (r *Registry) UnsubscribeTrader(connID, traderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[connID]
	if !ok {
		return ErrUnknownConnection
	}
	delete(e.sub.Traders, traderID)
	return nil
}

// SubscribeSymbols returns the symbols that were not watched before.
func (r *Registry) SubscribeSymbols(connID string, symbols []string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[connID]
	if !ok {
		return nil, ErrUnknownConnection
	}
	added := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if e.sub.watchesSymbol(s) {
			continue
		}
		e.sub.Symbols[s] = struct{}{}
		added = append(added, s)
	}
	return added, nil
}

// Get returns a copy of the connection's subscription.
func (r *Registry) Get(connID string) (Subscription, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[connID]
	if !ok {
		return Subscription{}, false
	}
	cp := *e.sub
	cp.Traders = make(map[string]struct{}, len(e.sub.Traders))
	for k := range e.sub.Traders {
		cp.Traders[k] = struct{}{}
	}
	cp.Symbols = make(map[string]struct{}, len(e.sub.Symbols))
	for k := range e.sub.Symbols {
		cp.Symbols[k] = struct{}{}
	}
	return cp, true
}

// Send queues payload for one connection.
func (r *Registry) Send(connID string, payload []byte) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[connID]
	if !ok {
		return false
	}
	return r.offer(e, payload)
}

// Broadcast queues payload for every connection match accepts and returns
// how many accepted it.
func (r *Registry) Broadcast(payload []byte, match func(*Subscription) bool) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	delivered := 0
	for _, e := range r.entries {
		if match(e.sub) && r.offer(e, payload) {
			delivered++
		}
	}
	return delivered
}

func (r *Registry) offer(e *entry, payload []byte) bool {
	select {
	case e.send <- payload:
		return true
	default:
		r.dropped.Add(1)
		return false
	}
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *Registry) Dropped() uint64 { return r.dropped.Load() }
