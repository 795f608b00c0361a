package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull discards events when the buffer is full instead of
	// waiting for space.
	DropIfFull bool
	// Critical lists event types that always wait for buffer space, even
	// with DropIfFull. Only cancellation of the caller's context or Close
	// can discard them.
	Critical []string
}

// Dispatcher forwards audit events to a sink from a single background
// goroutine, so a slow sink never adds latency to the request path.
// Drops are counted per event type. A nil *Dispatcher is valid and
// drops everything.
type Dispatcher struct {
	dropIfFull bool
	critical   map[string]struct{}
	sink       Sink

	queue     chan Event
	stop      chan struct{}
	worker    sync.WaitGroup
	closed    atomic.Bool
	closeOnce sync.Once

	delivered atomic.Uint64
	dropped   atomic.Uint64
	dropMu    sync.Mutex
	dropsBy   map[string]uint64
}

// NewDispatcher starts the delivery goroutine. It returns nil when
// cfg.Enabled is false.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	critical := make(map[string]struct{}, len(cfg.Critical))
	for _, eventType := range cfg.Critical {
		critical[eventType] = struct{}{}
	}

	d := &Dispatcher{
		dropIfFull: cfg.DropIfFull,
		critical:   critical,
		sink:       sink,
		queue:      make(chan Event, cfg.BufferSize),
		stop:       make(chan struct{}),
		dropsBy:    map[string]uint64{},
	}

	d.worker.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer d.worker.Done()

	for {
		select {
		case event := <-d.queue:
			d.deliver(event)
		case <-d.stop:
			d.drain()
			return
		}
	}
}

// drain delivers whatever is still buffered after Close.
func (d *Dispatcher) drain() {
	for {
		select {
		case event := <-d.queue:
			d.deliver(event)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(event Event) {
	d.sink.Emit(context.Background(), event)
	d.delivered.Add(1)
}

// IsCritical reports whether eventType is exempt from DropIfFull.
func (d *Dispatcher) IsCritical(eventType string) bool {
	if d == nil {
		return false
	}
	_, ok := d.critical[eventType]
	return ok
}

// Emit queues event. Routine events under DropIfFull never block and are
// counted as dropped when the buffer is full. Critical events, and every
// event without DropIfFull, wait for space until ctx is done or the
// dispatcher closes.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.dropIfFull && !d.IsCritical(event.EventType) {
		select {
		case d.queue <- event:
		case <-d.stop:
		default:
			d.recordDrop(event.EventType)
		}
		return
	}

	select {
	case d.queue <- event:
	case <-ctx.Done():
		d.recordDrop(event.EventType)
	case <-d.stop:
	}
}

func (d *Dispatcher) recordDrop(eventType string) {
	d.dropped.Add(1)
	d.dropMu.Lock()
	d.dropsBy[eventType]++
	d.dropMu.Unlock()
}

// Close stops accepting events, drains the buffer and waits for delivery.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.stop)
		d.worker.Wait()
	})
}

// Dropped returns how many events were discarded.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// DroppedByType returns a copy of the drop counts keyed by event type.
func (d *Dispatcher) DroppedByType() map[string]uint64 {
	out := map[string]uint64{}
	if d == nil {
		return out
	}
	d.dropMu.Lock()
	defer d.dropMu.Unlock()
	for eventType, n := range d.dropsBy {
		out[eventType] = n
	}
	return out
}

// Delivered returns how many events reached the sink.
func (d *Dispatcher) Delivered() uint64 {
	if d == nil {
		return 0
	}
	return d.delivered.Load()
}
