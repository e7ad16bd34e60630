package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Config mirrors the engine's audit settings.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull keeps login and refresh latency independent of the sink:
	// when the queue is full the event is counted in Dropped and discarded.
	// Otherwise Emit waits for room or for the request context to end.
	DropIfFull bool
	// Now stamps events that arrive without a timestamp. It defaults to
	// time.Now and is set to the engine clock.
	Now func() time.Time
}

// Dispatcher moves events off the request path. Operations enqueue and
// return; a single goroutine feeds the sink, so a slow Kafka broker or log
// writer never holds a login open. A nil Dispatcher accepts and discards
// events, which is what a disabled audit config produces.
type Dispatcher struct {
	cfg   Config
	sink  Sink
	queue chan Event
	stop  chan struct{}
	wg    sync.WaitGroup

	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		cfg:   cfg,
		sink:  sink,
		queue: make(chan Event, cfg.BufferSize),
		stop:  make(chan struct{}),
	}
	d.wg.Add(1)
	go d.loop()
	return d
}

func (d *Dispatcher) loop() {
	defer d.wg.Done()
	for {
		select {
		case event := <-d.queue:
			d.sink.Emit(context.Background(), event)
		case <-d.stop:
			d.flush()
			return
		}
	}
}

// flush delivers what is still queued at shutdown.
func (d *Dispatcher) flush() {
	for {
		select {
		case event := <-d.queue:
			d.sink.Emit(context.Background(), event)
		default:
			return
		}
	}
}

// Emit enqueues event. Events emitted after Close are discarded.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = d.cfg.Now().UTC()
	}

	if d.cfg.DropIfFull {
		select {
		case d.queue <- event:
		case <-d.stop:
		default:
			d.dropped.Add(1)
		}
		return
	}
	select {
	case d.queue <- event:
	case <-ctx.Done():
	case <-d.stop:
	}
}

// Close runs during server shutdown, after the HTTP listener has drained. It
// delivers the queued events and waits for the sink to return.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.stop)
		d.wg.Wait()
	})
}

// Dropped is exported as the audit_dropped metric.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
