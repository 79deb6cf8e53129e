// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package device

import (
	"time"

	"github.com/Thermoquad/brickstat/internal/syncutil"
	"github.com/Thermoquad/brickstat/pkg/nxt"
)

// EventKind identifies what changed
type EventKind int

const (
	EventStateChanged EventKind = iota
	EventLogAppended
	EventTelemetryUpdated
)

func (k EventKind) String() string {
	switch k {
	case EventStateChanged:
		return "state"
	case EventLogAppended:
		return "log"
	case EventTelemetryUpdated:
		return "telemetry"
	default:
		return "unknown"
	}
}

// Reading is the latest telemetry for one output
type Reading struct {
	Port     nxt.Port
	Power    int8
	Position int32
	Output   nxt.OutputState
	Time     time.Time
}

// Event is a change notification. Only the field matching Kind is set.
type Event struct {
	Kind    EventKind
	Time    time.Time
	State   State   // EventStateChanged
	Line    string  // EventLogAppended
	Reading Reading // EventTelemetryUpdated
}

type subscriber struct {
	id uint64
	fn func(Event)
}

// notifier delivers events to subscribers in publish order from a single
// goroutine. Publishing never blocks on a slow subscriber.
type notifier struct {
	mu     syncutil.Mutex
	queue  []Event
	subs   []subscriber
	nextID uint64
	closed bool

	wake chan struct{}
	done chan struct{}
}

func newNotifier() *notifier {
	n := &notifier{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go n.run()
	return n
}

func (n *notifier) subscribe(fn func(Event)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextID++
	id := n.nextID
	n.subs = append(n.subs, subscriber{id: id, fn: fn})

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		for i, s := range n.subs {
			if s.id == id {
				n.subs = append(n.subs[:i:i], n.subs[i+1:]...)
				return
			}
		}
	}
}

// publish queues ev. Events published after close are dropped.
func (n *notifier) publish(ev Event) {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.queue = append(n.queue, ev)
	n.mu.Unlock()
	n.signal()
}

// close stops the delivery goroutine once every queued event is delivered
func (n *notifier) close() {
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()
	n.signal()
}

func (n *notifier) signal() {
	select {
	case n.wake <- struct{}{}:
	default:
	}
}

func (n *notifier) run() {
	defer close(n.done)
	for {
		n.mu.Lock()
		if len(n.queue) == 0 {
			closed := n.closed
			n.mu.Unlock()
			if closed {
				return
			}
			<-n.wake
			continue
		}
		ev := n.queue[0]
		n.queue[0] = Event{}
		n.queue = n.queue[1:]
		subs := append([]subscriber(nil), n.subs...)
		n.mu.Unlock()

		for _, s := range subs {
			s.fn(ev)
		}
	}
}
