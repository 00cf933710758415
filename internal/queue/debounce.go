package queue

import (
	"sync"
	"time"
)

// Debouncer schedules a per-sender flush after a quiet period. Each
// Touch resets the sender's timer, so the flush fires only once the
// sender has stopped sending for the full window. Flush callbacks run
// on their own goroutine (timer goroutine), never under the lock; Stop
// waits for callbacks already running.
type Debouncer struct {
	mu      sync.Mutex
	window  time.Duration
	flush   func(senderID string)
	timers  map[string]*time.Timer
	stopped bool
	running sync.WaitGroup // in-flight flush callbacks
}

// NewDebouncer creates a debouncer with the given quiet window.
func NewDebouncer(window time.Duration, flush func(senderID string)) *Debouncer {
	return &Debouncer{
		window: window,
		flush:  flush,
		timers: make(map[string]*time.Timer),
	}
}

// Touch arms or resets the sender's flush timer.
func (d *Debouncer) Touch(senderID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if t, ok := d.timers[senderID]; ok {
		t.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(d.window, func() {
		d.mu.Lock()
		if d.stopped {
			d.mu.Unlock()
			return
		}
		// A fired timer may race a Touch that already replaced it;
		// only the current timer owns the map entry.
		if d.timers[senderID] == t {
			delete(d.timers, senderID)
		}
		d.running.Add(1)
		d.mu.Unlock()
		defer d.running.Done()
		d.flush(senderID)
	})
	d.timers[senderID] = t
}

// FlushNow cancels any pending timer for the sender and flushes
// immediately. Used when a sender's buffer hits its cap.
func (d *Debouncer) FlushNow(senderID string) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	if t, ok := d.timers[senderID]; ok {
		t.Stop()
		delete(d.timers, senderID)
	}
	d.running.Add(1)
	d.mu.Unlock()
	defer d.running.Done()
	d.flush(senderID)
}

// Cancel drops the sender's pending timer without flushing.
func (d *Debouncer) Cancel(senderID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.timers[senderID]; ok {
		t.Stop()
		delete(d.timers, senderID)
	}
}

// Stop cancels all pending timers and waits for flush callbacks that
// already started. After Stop returns no new flush will begin, so
// callers can safely wait on work the callbacks spawned.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	d.stopped = true
	for id, t := range d.timers {
		t.Stop()
		delete(d.timers, id)
	}
	d.mu.Unlock()
	d.running.Wait()
}
