// Package channel implements the per-session channel id registry and
// the command dispatcher that routes inbound, channel-bearing frames
// to it (spec.md §4.6). Design Note 1 re-architects the source's
// process-wide static allocator into a value owned by one session.
package channel

import (
	"sync"

	"apwire/internal/domain"
)

// Channel is one open logical stream: an id, the kind of request that
// opened it, and the listener that wants its data.
type Channel struct {
	ID       uint16
	Kind     domain.ChannelKind
	Listener domain.Listener
}

// Registry allocates and tracks channel ids for one session. It is the
// "only cross-cutting shared resource" spec.md §5 names: both the send
// path (allocating on outbound requests) and the receive path
// (dispatching inbound frames) touch it, so it carries its own mutex.
type Registry struct {
	mu   sync.Mutex
	next uint16
	live map[uint16]*Channel
}

// NewRegistry returns an empty registry starting id allocation at 1;
// id 0 is reserved (never handed out) so callers can use it as a
// sentinel for "no channel".
func NewRegistry() *Registry {
	return &Registry{next: 1, live: make(map[uint16]*Channel)}
}

// Open allocates a fresh id, skipping any id still live (Design Note 1:
// "Ids remain 16-bit", incrementing counter skipping live ids on
// wrap-around), registers a Channel under it, and returns it.
func (r *Registry) Open(kind domain.ChannelKind, listener domain.Listener) *Channel {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.next
	for {
		if id == 0 {
			id = 1
		}
		if _, taken := r.live[id]; !taken {
			break
		}
		id++
	}
	r.next = id + 1

	ch := &Channel{ID: id, Kind: kind, Listener: listener}
	r.live[id] = ch
	return ch
}

// Retire removes id from the live set, per spec.md §4.6's
// end-of-channel handling. Retiring an id that isn't live is a no-op.
func (r *Registry) Retire(id uint16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.live, id)
}

// Lookup returns the live Channel for id, if any.
func (r *Registry) Lookup(id uint16) (*Channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.live[id]
	return ch, ok
}

// Dispatcher is the default command listener installed on the receive
// path: it peels a channel id off the front of channel-bearing command
// payloads and routes the remainder to that channel's listener
// (spec.md §4.6 paragraph 2).
type Dispatcher struct {
	registry *Registry
}

// NewDispatcher builds a Dispatcher routing through registry.
func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{registry: registry}
}

// Dispatch routes one inbound frame. payload's first two bytes are the
// channel id (big-endian); an empty remainder is the end-of-channel
// marker, which fires OnEnd and retires the channel. A frame whose
// channel id has no registered listener is silently dropped: the
// server may legitimately keep emitting for a channel the client just
// retired.
func (d *Dispatcher) Dispatch(payload []byte) {
	if len(payload) < 2 {
		return
	}
	id := uint16(payload[0])<<8 | uint16(payload[1])
	rest := payload[2:]

	ch, ok := d.registry.Lookup(id)
	if !ok {
		return
	}

	if len(rest) == 0 {
		ch.Listener.OnEnd(id)
		d.registry.Retire(id)
		return
	}
	ch.Listener.OnData(id, rest)
}
