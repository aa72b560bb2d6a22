// Package registry implements C7: process-wide fan-out of
// single-producer events to every connected client, with per-client
// backpressure isolation.
package registry

import (
	"log"
	"os"
	"sync"

	"github.com/elliotchance/orderedmap/v3"
)

var registryLog = log.New(os.Stderr, "[registry] ", log.LstdFlags)

// SendHandle is the weak reference the registry holds to a client's
// outbound queue: a channel it can push onto, never the client state
// itself.
type SendHandle chan<- []byte

// Registry holds exactly one send handle per connected client. Kept
// in insertion order so broadcast iteration (and any debug listing)
// is deterministic instead of Go's randomized map order.
type Registry struct {
	mu      sync.RWMutex
	clients *orderedmap.OrderedMap[string, SendHandle]
}

func New() *Registry {
	return &Registry{clients: orderedmap.NewOrderedMap[string, SendHandle]()}
}

// Add registers id's outbound send handle.
func (r *Registry) Add(id string, handle SendHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients.Set(id, handle)
}

// Remove unregisters id. Safe to call even if id was never added, or
// already removed.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients.Delete(id)
}

// Count reports how many clients are currently registered.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.clients.Len()
}

// Broadcast serializes msg once (JSON already encoded by the caller
// via wire.Encode) and enqueues the shared payload on every
// registered client's queue. A client whose send fails (queue full,
// or its writer already gone) is logged and skipped — its own
// disconnect path is responsible for calling Remove, not this one.
func (r *Registry) Broadcast(payload []byte) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for el := r.clients.Front(); el != nil; el = el.Next() {
		send(el.Key, el.Value, payload)
	}
}

func send(id string, handle SendHandle, payload []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			// send on a closed channel: the client's writer already
			// tore down its queue between our read-lock snapshot and
			// this send. Its own disconnect path already called Remove
			// or is about to; nothing further to do here.
			registryLog.Printf("client %s: send on closed queue", id)
		}
	}()
	select {
	case handle <- payload:
	default:
		registryLog.Printf("client %s: outbound queue full, dropping broadcast", id)
	}
}
