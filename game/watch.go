package game

import "sync"

const watchBuffer = 64

// WatchList fans session snapshots out to subscribers, keyed by session
// code. Each subscriber gets its own buffered queue drained by its own
// goroutine, so notification order is preserved per subscriber and a
// slow consumer never blocks a writer; a consumer that falls more than
// a full buffer behind is dropped.
type WatchList struct {
	mu     sync.Mutex
	nextID int
	byCode map[string]map[int]*watcher
	closed bool
}

type watcher struct {
	queue chan *Session
	done  chan struct{}
	once  sync.Once
}

func (w *watcher) close() {
	w.once.Do(func() { close(w.done) })
}

// NewWatchList returns an empty fan-out registry.
func NewWatchList() *WatchList {
	return &WatchList{byCode: make(map[string]map[int]*watcher)}
}

// Subscribe registers onChange for a code and immediately queues the
// given current snapshot (nil if the document does not exist). The
// returned cancel func releases the watch and is safe to call twice.
func (wl *WatchList) Subscribe(code string, current *Session, onChange func(*Session)) func() {
	w := &watcher{
		queue: make(chan *Session, watchBuffer),
		done:  make(chan struct{}),
	}

	wl.mu.Lock()
	if wl.closed {
		wl.mu.Unlock()
		w.close()
		return func() {}
	}
	wl.nextID++
	id := wl.nextID
	if wl.byCode[code] == nil {
		wl.byCode[code] = make(map[int]*watcher)
	}
	wl.byCode[code][id] = w
	w.queue <- current
	wl.mu.Unlock()

	go func() {
		for {
			select {
			case <-w.done:
				return
			case snapshot := <-w.queue:
				select {
				case <-w.done:
					return
				default:
				}
				onChange(snapshot)
			}
		}
	}()

	return func() {
		wl.mu.Lock()
		if watchers := wl.byCode[code]; watchers != nil {
			delete(watchers, id)
			if len(watchers) == 0 {
				delete(wl.byCode, code)
			}
		}
		wl.mu.Unlock()
		w.close()
	}
}

// Notify queues a snapshot for every subscriber of the code. A nil
// snapshot signals deletion.
func (wl *WatchList) Notify(code string, snapshot *Session) {
	wl.mu.Lock()
	defer wl.mu.Unlock()

	for id, w := range wl.byCode[code] {
		select {
		case w.queue <- snapshot:
		default:
			// Fell a full buffer behind; cut it loose.
			delete(wl.byCode[code], id)
			w.close()
		}
	}
}

// Close drops every subscriber. Further Subscribe calls are no-ops.
func (wl *WatchList) Close() {
	wl.mu.Lock()
	defer wl.mu.Unlock()

	wl.closed = true
	for code, watchers := range wl.byCode {
		for id, w := range watchers {
			delete(watchers, id)
			w.close()
		}
		delete(wl.byCode, code)
	}
}
