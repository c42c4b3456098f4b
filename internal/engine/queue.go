package engine

import (
	"sync"
	"time"

	"go.uber.org/atomic"

	"kotonoha/internal/models"
)

// QueuePlayer reveals queued turns one at a time at a fixed interval.
// It is a timer-driven state machine (Idle -> Revealing -> Idle), not a
// worker goroutine: each reveal schedules the next.
type QueuePlayer struct {
	interval time.Duration
	commit   func(models.Turn)
	drained  func()

	revealing *atomic.Bool

	mu    sync.Mutex
	queue []models.Turn
	timer *time.Timer
	gen   int
}

// NewQueuePlayer creates a queue player. commit is called for each
// revealed turn, drained once when the queue empties.
func NewQueuePlayer(interval time.Duration, commit func(models.Turn), drained func()) *QueuePlayer {
	return &QueuePlayer{
		interval:  interval,
		commit:    commit,
		drained:   drained,
		revealing: atomic.NewBool(false),
	}
}

// IsRevealing reports whether a reveal is in progress
func (q *QueuePlayer) IsRevealing() bool {
	return q.revealing.Load()
}

// Pending returns a copy of the not-yet-revealed turns
func (q *QueuePlayer) Pending() []models.Turn {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]models.Turn, len(q.queue))
	copy(out, q.queue)
	return out
}

// Start begins revealing the given turns. Any previous reveal is
// discarded first.
func (q *QueuePlayer) Start(turns []models.Turn) {
	if len(turns) == 0 {
		return
	}

	q.mu.Lock()
	q.gen++
	gen := q.gen
	if q.timer != nil {
		q.timer.Stop()
	}
	q.queue = append([]models.Turn(nil), turns...)
	q.revealing.Store(true)
	q.timer = time.AfterFunc(q.interval, func() { q.reveal(gen) })
	q.mu.Unlock()
}

// Cancel discards the queue without committing remaining turns
func (q *QueuePlayer) Cancel() {
	q.mu.Lock()
	q.gen++
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	q.queue = nil
	q.revealing.Store(false)
	q.mu.Unlock()
}

// reveal commits the head of the queue and schedules the next reveal.
// The commit runs under the queue lock so a concurrent Cancel cannot
// return while a popped turn is still on its way into the transcript.
func (q *QueuePlayer) reveal(gen int) {
	q.mu.Lock()
	if gen != q.gen || len(q.queue) == 0 {
		q.mu.Unlock()
		return
	}

	turn := q.queue[0]
	q.queue = q.queue[1:]
	remaining := len(q.queue)
	if remaining > 0 {
		q.timer = time.AfterFunc(q.interval, func() { q.reveal(gen) })
	} else {
		q.timer = nil
		q.revealing.Store(false)
	}
	q.commit(turn)
	q.mu.Unlock()

	if remaining == 0 && q.drained != nil {
		q.drained()
	}
}
