package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event is an in-memory signal from the scheduling loop: ticks, sleep
// detection, command dispatch and completion. Consumers feed it into
// lifecycle reporting such as sd_notify status lines.
//
// Publish never blocks and slow subscribers lose events, so Data must be
// small and disposable.
type Event struct {
	Type string
	Time time.Time
	Data any
}

// Event types published by the scheduler.
const (
	TypeTick       = "scheduler.tick"
	TypeSleep      = "scheduler.sleep_detected"
	TypeDispatched = "command.dispatched"
	TypeCompleted  = "command.completed"
)

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory fanout bus with no background goroutines.
func New() Bus {
	return &fanout{subs: map[uint64]chan Event{}}
}

type fanout struct {
	mu     sync.RWMutex
	subs   map[uint64]chan Event
	nextID atomic.Uint64
}

func (b *fanout) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Copy the subscriber list first; sends must not happen under the lock.
	b.mu.RLock()
	chs := make([]chan Event, 0, len(b.subs))
	for _, ch := range b.subs {
		chs = append(chs, ch)
	}
	b.mu.RUnlock()

	for _, ch := range chs {
		trySend(ch, e)
	}
}

// trySend delivers without blocking, dropping when the subscriber's buffer
// is full. A concurrent unsubscribe may close the channel mid-send; the
// recover absorbs that race.
func trySend(ch chan Event, e Event) {
	defer func() { _ = recover() }()
	select {
	case ch <- e:
	default:
	}
}

func (b *fanout) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.nextID.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}
