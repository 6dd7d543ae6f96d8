package goKaltura

import (
	"context"
	"sync"
	"sync/atomic"
)

// auditEventTypes indexes the per-type drop counters. Unknown types share the last slot.
var auditEventTypes = [...]string{
	auditEventKSIssued,
	auditEventKSIssueFailed,
	auditEventKSCacheHit,
	auditEventCacheCleared,
	auditEventAPIRequest,
	auditEventOther,
}

const auditEventOther = "other"

func auditEventIndex(eventType string) int {
	last := len(auditEventTypes) - 1
	for i, name := range auditEventTypes[:last] {
		if name == eventType {
			return i
		}
	}
	return last
}

// auditDispatcher delivers audit events to the sink on a single goroutine and counts
// every event it could not deliver under the event's type.
type auditDispatcher struct {
	sink       AuditSink
	dropIfFull bool

	queue   chan AuditEvent
	quit    chan struct{}
	stopped chan struct{}
	once    sync.Once

	// sinkCtx is canceled when Close gives up; queued events are then counted, not sent.
	sinkCtx context.Context
	abandon context.CancelFunc

	drops [len(auditEventTypes)]atomic.Uint64
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &auditDispatcher{
		sink:       sink,
		dropIfFull: cfg.DropIfFull,
		queue:      make(chan AuditEvent, size),
		quit:       make(chan struct{}),
		stopped:    make(chan struct{}),
		sinkCtx:    ctx,
		abandon:    cancel,
	}
	go d.run()
	return d
}

func (d *auditDispatcher) run() {
	defer close(d.stopped)

	for {
		select {
		case event := <-d.queue:
			d.deliver(event)
		case <-d.quit:
			for {
				select {
				case event := <-d.queue:
					d.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (d *auditDispatcher) deliver(event AuditEvent) {
	if d.sinkCtx.Err() != nil {
		d.drop(event.EventType)
		return
	}
	d.sink.Emit(d.sinkCtx, event)
}

func (d *auditDispatcher) drop(eventType string) {
	d.drops[auditEventIndex(eventType)].Add(1)
}

// Emit queues event. With dropIfFull a full queue drops the event; otherwise Emit waits
// for room and drops the event if ctx ends first. Events emitted after Close are dropped.
func (d *auditDispatcher) Emit(ctx context.Context, event AuditEvent) {
	if d == nil {
		return
	}
	select {
	case <-d.quit:
		d.drop(event.EventType)
		return
	default:
	}

	if d.dropIfFull {
		select {
		case d.queue <- event:
		default:
			d.drop(event.EventType)
		}
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case d.queue <- event:
	case <-ctx.Done():
		d.drop(event.EventType)
	case <-d.quit:
		d.drop(event.EventType)
	}
}

// Close stops accepting events and waits until the queue is delivered or ctx ends.
// When ctx ends first the sink context is canceled, the remaining events are counted as
// dropped, and ctx's error is returned. Later calls only wait.
func (d *auditDispatcher) Close(ctx context.Context) error {
	if d == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	d.once.Do(func() { close(d.quit) })

	select {
	case <-d.stopped:
		d.abandon()
		return nil
	case <-ctx.Done():
		d.abandon()
		return ctx.Err()
	}
}

// Dropped returns the total number of undelivered events.
func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	var total uint64
	for i := range d.drops {
		total += d.drops[i].Load()
	}
	return total
}

// DroppedByType returns the non-zero drop counts keyed by event type.
func (d *auditDispatcher) DroppedByType() map[string]uint64 {
	out := map[string]uint64{}
	if d == nil {
		return out
	}
	for i, name := range auditEventTypes {
		if n := d.drops[i].Load(); n > 0 {
			out[name] = n
		}
	}
	return out
}
