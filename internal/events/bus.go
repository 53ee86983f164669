package events

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Config controls delivery.
type Config struct {
	// Async queues events on a single dispatcher goroutine instead of calling
	// handlers on the emitting goroutine.
	Async      bool
	BufferSize int
	// DropIfFull drops events when the async buffer is full instead of
	// blocking the emitter.
	DropIfFull bool
}

// Bus fans events out to a frozen set of handlers.
type Bus struct {
	cfg      Config
	handlers map[Kind][]Handler
	log      *zap.Logger

	ch        chan queued
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closeOnce sync.Once

	// mu is held shared while enqueueing and exclusively by Close, so no
	// event is sent after the dispatcher starts its final drain.
	mu     sync.RWMutex
	closed bool
}

type queued struct {
	ctx   context.Context
	event Event
}

// NewBus copies handlers and starts the dispatcher when cfg.Async is set.
func NewBus(cfg Config, handlers map[Kind][]Handler, log *zap.Logger) *Bus {
	if log == nil {
		log = zap.NewNop()
	}

	frozen := make(map[Kind][]Handler, len(handlers))
	for kind, hs := range handlers {
		for _, h := range hs {
			if h != nil {
				frozen[kind] = append(frozen[kind], h)
			}
		}
	}

	b := &Bus{
		cfg:      cfg,
		handlers: frozen,
		log:      log,
	}
	if !cfg.Async {
		return b
	}

	if b.cfg.BufferSize <= 0 {
		b.cfg.BufferSize = 1
	}
	b.ch = make(chan queued, b.cfg.BufferSize)
	b.done = make(chan struct{})

	b.wg.Add(1)
	go b.run()

	return b
}

// Subscribed reports whether any handler listens for kind.
func (b *Bus) Subscribed(kind Kind) bool {
	return b != nil && len(b.handlers[kind]) > 0
}

func (b *Bus) run() {
	defer b.wg.Done()

	for {
		select {
		case q := <-b.ch:
			b.deliver(q.ctx, q.event)
		case <-b.done:
			for {
				select {
				case q := <-b.ch:
					b.deliver(q.ctx, q.event)
				default:
					return
				}
			}
		}
	}
}

// Emit delivers event to the handlers of its kind. Events emitted after
// Close are counted as dropped.
func (b *Bus) Emit(ctx context.Context, event Event) {
	if b == nil || len(b.handlers[event.Kind]) == 0 {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if !b.cfg.Async {
		if b.isClosed() {
			b.dropped.Add(1)
			return
		}
		b.deliver(ctx, event)
		return
	}

	// Queued handlers outlive the request, so they only keep its values.
	if !b.enqueue(ctx, queued{ctx: context.WithoutCancel(ctx), event: event}) {
		b.dropped.Add(1)
	}
}

func (b *Bus) isClosed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}

func (b *Bus) enqueue(ctx context.Context, q queued) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return false
	}

	if b.cfg.DropIfFull {
		select {
		case b.ch <- q:
			return true
		default:
			return false
		}
	}

	select {
	case b.ch <- q:
		return true
	case <-ctx.Done():
		return false
	}
}

func (b *Bus) deliver(ctx context.Context, event Event) {
	for _, h := range b.handlers[event.Kind] {
		b.call(ctx, h, event)
	}
}

func (b *Bus) call(ctx context.Context, h Handler, event Event) {
	defer func() {
		if p := recover(); p != nil {
			b.log.Error("event handler panicked", zap.String("kind", string(event.Kind)), zap.Any("panic", p))
		}
	}()
	h(ctx, event)
}

// Close stops accepting events and waits for queued ones to be delivered.
func (b *Bus) Close() {
	if b == nil {
		return
	}
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		b.mu.Unlock()
		if b.done != nil {
			close(b.done)
			b.wg.Wait()
		}
	})
}

// Dropped is the number of events discarded because the buffer was full,
// the emitter gave up waiting, or the bus was closed.
func (b *Bus) Dropped() uint64 {
	if b == nil {
		return 0
	}
	return b.dropped.Load()
}
