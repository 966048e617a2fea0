package liveview

import "sync"

// Recorder is a Sink that keeps every view and failure in memory.
type Recorder struct {
	mu       sync.Mutex
	views    []View
	failures []string
	notify   chan struct{}
}

func NewRecorder() *Recorder {
	return &Recorder{notify: make(chan struct{}, 1)}
}

func (r *Recorder) Render(v View) {
	r.mu.Lock()
	r.views = append(r.views, v)
	r.mu.Unlock()
	r.signal()
}

func (r *Recorder) Fail(message string) {
	r.mu.Lock()
	r.failures = append(r.failures, message)
	r.mu.Unlock()
	r.signal()
}

// Last returns the most recent view.
func (r *Recorder) Last() (View, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.views) == 0 {
		return View{}, false
	}
	return r.views[len(r.views)-1], true
}

func (r *Recorder) Views() []View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]View(nil), r.views...)
}

func (r *Recorder) Failures() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.failures...)
}

// Updated is signalled after every Render or Fail.
func (r *Recorder) Updated() <-chan struct{} { return r.notify }

func (r *Recorder) signal() {
	select {
	case r.notify <- struct{}{}:
	default:
	}
}
