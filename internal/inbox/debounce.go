package inbox

import (
	"sync"
	"time"
)

// debouncer runs action once after a quiet period following the last
// Trigger.
type debouncer struct {
	mu       sync.Mutex
	timer    *time.Timer
	duration time.Duration
	action   func()
	seq      uint64          // invalidates timers that fire after a newer Trigger
	wg       *sync.WaitGroup // shared with the watcher for shutdown
}

func newDebouncer(duration time.Duration, wg *sync.WaitGroup, action func()) *debouncer {
	return &debouncer{duration: duration, action: action, wg: wg}
}

func (d *debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil && d.timer.Stop() {
		d.wg.Done()
	}
	d.seq++
	seq := d.seq

	d.wg.Add(1)
	d.timer = time.AfterFunc(d.duration, func() {
		defer d.wg.Done()
		d.mu.Lock()
		if d.seq != seq {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()
		d.action()
	})
}

// Cancel stops a pending action. It does not wait for one already running.
func (d *debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		if d.timer.Stop() {
			d.wg.Done()
		}
		d.timer = nil
	}
}
