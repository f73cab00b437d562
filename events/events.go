/*
Package events fans terminal request outcomes out to subscribed WebSocket
clients as JSON-RPC 2.0 subscription notifications.
*/
package events

import (
	"context"
	"sync"
	"time"

	"github.com/vortexdex/dexproxy/log"
)

const sweepInterval = 5 * time.Second

// Notification is the wire shape pushed to subscribers.
type Notification struct {
	JSONRPC string             `json:"jsonrpc"`
	Method  string             `json:"method"`
	Params  NotificationParams `json:"params"`
}

// NotificationParams carries the channel name and payload.
type NotificationParams struct {
	Channel string `json:"channel"`
	Data    any    `json:"data"`
}

// Subscriber is one connected client. Send failures mark the subscriber
// dead; the sweep loop removes it.
type Subscriber interface {
	Send(v any) error
	Alive() bool
}

// Dispatcher routes events to per-channel subscriber sets.
type Dispatcher struct {
	mu       sync.Mutex
	channels map[string]map[Subscriber]struct{}

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		channels: make(map[string]map[Subscriber]struct{}),
		stop:     make(chan struct{}),
	}
}

// Start launches the stale-subscriber sweep loop.
func (d *Dispatcher) Start(ctx context.Context) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-d.stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				d.sweep()
			}
		}
	}()
}

// Stop halts the sweep loop.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.stop) })
	d.wg.Wait()
}

// Subscribe adds the subscriber to a channel.
func (d *Dispatcher) Subscribe(channel string, s Subscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	set, ok := d.channels[channel]
	if !ok {
		set = make(map[Subscriber]struct{})
		d.channels[channel] = set
	}
	set[s] = struct{}{}
}

// Unsubscribe removes the subscriber from a channel.
func (d *Dispatcher) Unsubscribe(channel string, s Subscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.channels[channel], s)
}

// UnsubscribeAll removes the subscriber from every channel, used when its
// connection closes.
func (d *Dispatcher) UnsubscribeAll(s Subscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, set := range d.channels {
		delete(set, s)
	}
}

// Subscribers returns the number of live subscribers on a channel.
func (d *Dispatcher) Subscribers(channel string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.channels[channel])
}

// Emit pushes data to every subscriber of the channel. It implements the
// lifecycle manager's event sink.
func (d *Dispatcher) Emit(channel string, data any) {
	d.mu.Lock()
	targets := make([]Subscriber, 0, len(d.channels[channel]))
	for s := range d.channels[channel] {
		targets = append(targets, s)
	}
	d.mu.Unlock()
	if len(targets) == 0 {
		return
	}

	n := Notification{
		JSONRPC: "2.0",
		Method:  "subscription",
		Params:  NotificationParams{Channel: channel, Data: data},
	}
	delivered := 0
	for _, s := range targets {
		if err := s.Send(n); err != nil {
			log.Debugw("event delivery failed, subscriber will be swept", "channel", channel, "error", err.Error())
			continue
		}
		delivered++
	}
	log.Debugw("event dispatched", "channel", channel, "subscribers", delivered)
}

// sweep drops subscribers whose connection died.
func (d *Dispatcher) sweep() {
	d.mu.Lock()
	defer d.mu.Unlock()
	removed := 0
	for _, set := range d.channels {
		for s := range set {
			if !s.Alive() {
				delete(set, s)
				removed++
			}
		}
	}
	if removed > 0 {
		log.Debugw("stale subscribers swept", "count", removed)
	}
}
