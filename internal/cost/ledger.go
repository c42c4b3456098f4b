package cost

import (
	"context"
	"sync"
	"time"
)

// Entry is one append-only cost ledger record
type Entry struct {
	ID            string    `json:"id" gorm:"primaryKey;size:64"`
	Timestamp     time.Time `json:"timestamp"`
	Backend       string    `json:"backend" gorm:"size:32;index"`
	PromptUnits   int       `json:"prompt_units"`
	ResponseUnits int       `json:"response_units"`
	Cost          float64   `json:"cost"`
	Month         string    `json:"month" gorm:"size:7;index"` // YYYY-MM
}

// TableName sets the ledger table name for GORM
func (Entry) TableName() string { return "cost_entries" }

// Ledger is the append-only store behind the governor. Entries older than
// the retention window are pruned on write.
type Ledger interface {
	Append(ctx context.Context, entry Entry) error
	Prune(ctx context.Context, cutoffMonth string) error
	Entries(ctx context.Context) ([]Entry, error)
	MonthTotal(ctx context.Context, month string) (float64, error)
	Clear(ctx context.Context) error
}

// MemoryLedger keeps cost entries in process memory. Used when no
// database is configured and in tests.
type MemoryLedger struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewMemoryLedger creates an empty in-memory ledger
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{}
}

func (l *MemoryLedger) Append(ctx context.Context, entry Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return nil
}

func (l *MemoryLedger) Prune(ctx context.Context, cutoffMonth string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.entries[:0]
	for _, e := range l.entries {
		if e.Month >= cutoffMonth {
			kept = append(kept, e)
		}
	}
	l.entries = kept
	return nil
}

func (l *MemoryLedger) Entries(ctx context.Context) ([]Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out, nil
}

func (l *MemoryLedger) MonthTotal(ctx context.Context, month string) (float64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var total float64
	for _, e := range l.entries {
		if e.Month == month {
			total += e.Cost
		}
	}
	return total, nil
}

func (l *MemoryLedger) Clear(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
	return nil
}
