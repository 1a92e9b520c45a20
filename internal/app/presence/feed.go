package presence

import (
	"bytes"
	"context"
	"sync"
	"time"
)

// initialLoadTimeout bounds the read that seeds every new subscription.
const initialLoadTimeout = 10 * time.Second

// ChangeFunc receives the raw value of a watched key (nil when absent), or a load error.
type ChangeFunc func(value []byte, err error)

// loadFunc reads the current value of a key.
type loadFunc func(ctx context.Context, key string) ([]byte, error)

// feed fans change notifications out to the watchers of each key.
// Every watcher owns a goroutine and an unbounded queue, so publishers never block on
// slow subscribers and each subscriber sees its key's changes in publish order.
type feed struct {
	mu       sync.Mutex
	nextID   uint64
	watchers map[string]map[uint64]*watcher
	closed   bool
}

func newFeed() *feed {
	return &feed{watchers: make(map[string]map[uint64]*watcher)}
}

// watch registers fn for key. The watcher first delivers the value returned by load,
// then every value published afterwards. Registration happens before load runs, so no
// change is lost between the two. Queued values up to the last one equal to the loaded
// value are dropped, so an older value is never replayed after a newer load.
func (f *feed) watch(key string, load loadFunc, fn ChangeFunc) (cancel func()) {
	w := &watcher{
		feed: f,
		key:  key,
		fn:   fn,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return func() {}
	}
	f.nextID++
	w.id = f.nextID
	if f.watchers[key] == nil {
		f.watchers[key] = make(map[uint64]*watcher)
	}
	f.watchers[key][w.id] = w
	f.mu.Unlock()

	go w.run(load)

	return w.cancel
}

// publish queues value for every watcher of key.
func (f *feed) publish(key string, value []byte) {
	f.mu.Lock()
	targets := make([]*watcher, 0, len(f.watchers[key]))
	for _, w := range f.watchers[key] {
		targets = append(targets, w)
	}
	f.mu.Unlock()

	for _, w := range targets {
		w.enqueue(value)
	}
}

// count returns the number of live watchers of key.
func (f *feed) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.watchers[key])
}

// close cancels every watcher and rejects new ones.
func (f *feed) close() {
	f.mu.Lock()
	f.closed = true
	all := f.watchers
	f.watchers = make(map[string]map[uint64]*watcher)
	f.mu.Unlock()

	for _, byID := range all {
		for _, w := range byID {
			w.stop()
		}
	}
}

func (f *feed) remove(w *watcher) {
	f.mu.Lock()
	defer f.mu.Unlock()

	byID := f.watchers[w.key]
	delete(byID, w.id)
	if len(byID) == 0 {
		delete(f.watchers, w.key)
	}
}

type watcher struct {
	feed *feed
	key  string
	id   uint64
	fn   ChangeFunc

	mu    sync.Mutex
	queue [][]byte

	wake     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func (w *watcher) enqueue(value []byte) {
	w.mu.Lock()
	w.queue = append(w.queue, value)
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *watcher) cancel() {
	w.feed.remove(w)
	w.stop()
}

func (w *watcher) stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

func (w *watcher) stopped() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

func (w *watcher) run(load loadFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), initialLoadTimeout)
	value, err := load(ctx, w.key)
	cancel()

	if w.stopped() {
		return
	}
	value = normalizeRaw(value)
	if err == nil {
		w.dropUpTo(value)
	}
	w.fn(value, err)

	for {
		select {
		case <-w.done:
			return
		case <-w.wake:
		}

		for {
			w.mu.Lock()
			if len(w.queue) == 0 {
				w.mu.Unlock()
				break
			}
			next := w.queue[0]
			w.queue = w.queue[1:]
			w.mu.Unlock()

			if w.stopped() {
				return
			}
			w.fn(normalizeRaw(next), nil)
		}
	}
}

// dropUpTo removes queued values up to and including the last one equal to loaded.
func (w *watcher) dropUpTo(loaded []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for i := len(w.queue) - 1; i >= 0; i-- {
		if bytes.Equal(normalizeRaw(w.queue[i]), loaded) {
			w.queue = w.queue[i+1:]
			return
		}
	}
}
