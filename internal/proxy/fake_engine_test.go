package proxy

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// fakeEngine is an instrumented in-memory browser.Engine. It records the
// operation sequence, supports per-operation error injection, and tracks
// overlapping "busy" windows so concurrency tests can assert engine
// access is never interleaved.
type fakeEngine struct {
	mu    sync.Mutex
	calls []string

	content    string
	navErr     error
	visibleErr error
	fillErr    error
	clickErr   error
	clearErr   error

	// opDelay widens each operation's busy window so overlap detection
	// is meaningful under the race detector.
	opDelay time.Duration

	inflight atomic.Int32
	overlaps atomic.Int32
	closed   atomic.Int32
}

func newFakeEngine(content string) *fakeEngine {
	return &fakeEngine{content: content}
}

func (f *fakeEngine) begin(op string, args ...string) func() {
	if f.inflight.Add(1) > 1 {
		f.overlaps.Add(1)
	}
	f.mu.Lock()
	entry := op
	for _, a := range args {
		entry += " " + a
	}
	f.calls = append(f.calls, entry)
	f.mu.Unlock()
	if f.opDelay > 0 {
		time.Sleep(f.opDelay)
	}
	return func() { f.inflight.Add(-1) }
}

func (f *fakeEngine) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeEngine) callCount(op string) int {
	n := 0
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if len(c) >= len(op) && c[:len(op)] == op {
			n++
		}
	}
	return n
}

func (f *fakeEngine) Navigate(ctx context.Context, url string) error {
	defer f.begin("navigate", url)()
	return f.navErr
}

func (f *fakeEngine) WaitSettled(ctx context.Context) error {
	defer f.begin("settle")()
	return nil
}

func (f *fakeEngine) WaitVisible(ctx context.Context, selector string) error {
	defer f.begin("wait_visible", selector)()
	return f.visibleErr
}

func (f *fakeEngine) FillField(ctx context.Context, formSelector, name, value string) error {
	defer f.begin("fill", formSelector, name, value)()
	return f.fillErr
}

func (f *fakeEngine) Click(ctx context.Context, selector string) error {
	defer f.begin("click", selector)()
	return f.clickErr
}

func (f *fakeEngine) Content(ctx context.Context) (string, error) {
	defer f.begin("content")()
	return f.content, nil
}

func (f *fakeEngine) ClearState(ctx context.Context) error {
	defer f.begin("clear")()
	return f.clearErr
}

func (f *fakeEngine) Close(ctx context.Context) error {
	f.closed.Add(1)
	return nil
}
