package backends

import (
	"context"
	"sync"
	"time"
)

// dummyDelay keeps the offline backend asynchronous-equivalent to a real
// provider so callers cannot distinguish it structurally.
const dummyDelay = 800 * time.Millisecond

// Canned responses rotated per call. Kept as strict JSON so the full
// parse path is exercised even offline.
var dummyResponses = []string{
	`{"speaker": "ナレーター", "text": "あたりは静まり返っている。風の音だけが聞こえる。", "event": null}`,
	`{"speaker": "謎の声", "text": "…何者だ…？", "event": "voice_heard"}`,
	`{"speaker": "ナレーター", "text": "足元で何かが光った。調べてみますか？", "event": null}`,
}

// DummyBackend is the deterministic offline provider. It costs nothing and
// is substituted for paid backends when the monthly budget is exceeded.
type DummyBackend struct {
	mu    sync.Mutex
	index int
	delay time.Duration
}

// NewDummyBackend creates the offline backend with the standard delay
func NewDummyBackend() *DummyBackend {
	return &DummyBackend{delay: dummyDelay}
}

// NewDummyBackendWithDelay overrides the artificial delay, used in tests
func NewDummyBackendWithDelay(delay time.Duration) *DummyBackend {
	return &DummyBackend{delay: delay}
}

func (b *DummyBackend) Name() string { return "dummy" }

// Generate returns the next canned response after the fixed delay
func (b *DummyBackend) Generate(ctx context.Context, prompt string) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(b.delay):
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	resp := dummyResponses[b.index]
	b.index = (b.index + 1) % len(dummyResponses)
	return resp, nil
}
