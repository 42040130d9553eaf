// Package events provides the publish/subscribe bus that carries every
// state change from the orchestrator and agents to subscribed clients
// (WebSocket push, MQTT publisher, tests). The bus is nil-safe: calling
// Publish on a nil *Bus is a no-op, so components do not need guard
// checks.
package events

import (
	"sync"
	"time"
)

// Type constants for the tagged broadcast events. Each maps to one
// kind of state change; subscribers receive the full stream and filter
// what they need.
const (
	// TypeEnergyUpdate carries a new Reading after each simulation tick
	// or ingested telemetry sample.
	TypeEnergyUpdate = "energy_update"
	// TypeDeviceUpdate carries one device after a control command.
	TypeDeviceUpdate = "device_update"
	// TypeAnalysisUpdate carries the monitoring agent's latest Analysis.
	TypeAnalysisUpdate = "analysis_update"
	// TypePredictionsUpdate carries the forecast agent's 24-point
	// forecast array.
	TypePredictionsUpdate = "predictions_update"
	// TypeRecommendationsUpdate carries the optimization agent's active
	// recommendation set.
	TypeRecommendationsUpdate = "recommendations_update"
	// TypeSystemHealth carries the aggregated agent health value.
	TypeSystemHealth = "system_health"
)

// Event is one tagged state-change message. Data holds the
// type-specific payload and is what subscribers serialize onto the
// wire.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"ts"`
	Data      any       `json:"data,omitempty"`
}

// Bus is a non-blocking broadcast bus. Subscribers receive events on
// buffered channels; slow subscribers miss events rather than blocking
// publishers. Delivery is best-effort with no replay.
type Bus struct {
	mu     sync.RWMutex
	subs   map[chan Event]struct{}
	closed bool
	// recvToSend maps the receive-only channel returned by Subscribe
	// back to the bidirectional channel stored in subs, so Unsubscribe
	// can accept <-chan Event (the caller's view) without an illegal
	// type conversion.
	recvToSend map[<-chan Event]chan Event
}

// New creates a bus ready for use.
func New() *Bus {
	return &Bus{
		subs:       make(map[chan Event]struct{}),
		recvToSend: make(map[<-chan Event]chan Event),
	}
}

// Publish sends an event to all subscribers. Non-blocking: if a
// subscriber's channel is full, the event is dropped for that
// subscriber. Safe to call on a nil or closed bus (no-op). A zero
// Timestamp is stamped with the current time.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			// Subscriber is full; drop the event rather than block.
		}
	}
}

// Subscribe returns a channel that receives published events. The
// caller must eventually call Unsubscribe to avoid resource leaks.
// bufSize controls the channel buffer; 64 is a reasonable default for
// WebSocket consumers. Subscribing to a closed bus returns a closed
// channel.
func (b *Bus) Subscribe(bufSize int) <-chan Event {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.subs[ch] = struct{}{}
	b.recvToSend[ch] = ch
	return ch
}

// Unsubscribe removes a subscription and closes the channel. Safe to
// call with a channel that is already unsubscribed (no-op).
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sendCh, ok := b.recvToSend[ch]
	if !ok {
		return
	}
	delete(b.subs, sendCh)
	delete(b.recvToSend, ch)
	close(sendCh)
}

// Close shuts the bus down, closing every subscriber channel. Further
// Publish calls are no-ops. Used at orchestrator shutdown so clients
// observe a clean end of stream.
func (b *Bus) Close() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		close(ch)
	}
	b.subs = make(map[chan Event]struct{})
	b.recvToSend = make(map[<-chan Event]chan Event)
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
