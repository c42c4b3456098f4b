package cost

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Pricing describes how a backend charges. TokenBased backends are priced
// per estimated token (4 characters per token), the rest per character.
type Pricing struct {
	InputPer1K  float64
	OutputPer1K float64
	TokenBased  bool
}

// defaultPricing mirrors the published provider rates
var defaultPricing = map[string]Pricing{
	"openai":     {InputPer1K: 0.00015, OutputPer1K: 0.0006, TokenBased: true},
	"gemini":     {InputPer1K: 0.000105, OutputPer1K: 0.000210, TokenBased: false},
	"gemini-cli": {},
	"dummy":      {},
}

// Status is the derived monthly budget state
type Status struct {
	Month       string  `json:"month"`
	CurrentCost float64 `json:"current_cost"`
	Limit       float64 `json:"limit"`
	Warning     bool    `json:"warning"`
	OverLimit   bool    `json:"over_limit"`
}

// MonthlySummary is a per-month rollup of the ledger
type MonthlySummary struct {
	Month         string             `json:"month"`
	TotalCost     float64            `json:"total_cost"`
	TotalRequests int                `json:"total_requests"`
	ByBackend     map[string]float64 `json:"by_backend"`
}

// Governor prices request/response pairs, keeps the append-only ledger
// within its retention window and exposes the monthly budget state.
type Governor struct {
	ledger          Ledger
	logger          *zap.Logger
	retentionMonths int

	mu    sync.RWMutex
	limit float64

	// now is swappable for tests
	now func() time.Time
}

// NewGovernor creates a cost governor over the given ledger
func NewGovernor(ledger Ledger, monthlyLimit float64, retentionMonths int, logger *zap.Logger) *Governor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Governor{
		ledger:          ledger,
		logger:          logger.Named("cost"),
		retentionMonths: retentionMonths,
		limit:           monthlyLimit,
		now:             time.Now,
	}
}

// Calculate prices a request/response pair without recording it
func (g *Governor) Calculate(backend, promptText, responseText string) (promptUnits, responseUnits int, price float64) {
	pricing, ok := defaultPricing[backend]
	if !ok {
		return 0, 0, 0
	}
	// Free backends report no usage at all, so their ledger entries do
	// not inflate the unit totals in the monthly breakdown
	if pricing.InputPer1K == 0 && pricing.OutputPer1K == 0 {
		return 0, 0, 0
	}

	if pricing.TokenBased {
		promptUnits = (len(promptText) + 3) / 4
		responseUnits = (len(responseText) + 3) / 4
	} else {
		promptUnits = len(promptText)
		responseUnits = len(responseText)
	}

	price = float64(promptUnits)/1000*pricing.InputPer1K +
		float64(responseUnits)/1000*pricing.OutputPer1K
	return promptUnits, responseUnits, price
}

// PriceAndRecord prices the pair, appends a ledger entry and prunes the
// ledger to the retention window. The returned cost is attached to the
// committed turn.
func (g *Governor) PriceAndRecord(ctx context.Context, backend, promptText, responseText string) (float64, error) {
	promptUnits, responseUnits, price := g.Calculate(backend, promptText, responseText)
	now := g.now().UTC()

	entry := Entry{
		ID:            uuid.NewString(),
		Timestamp:     now,
		Backend:       backend,
		PromptUnits:   promptUnits,
		ResponseUnits: responseUnits,
		Cost:          price,
		Month:         now.Format("2006-01"),
	}

	if err := g.ledger.Append(ctx, entry); err != nil {
		return price, fmt.Errorf("failed to record cost entry: %w", err)
	}

	cutoff := now.AddDate(0, -g.retentionMonths, 0).Format("2006-01")
	if err := g.ledger.Prune(ctx, cutoff); err != nil {
		g.logger.Warn("ledger prune failed", zap.Error(err))
	}

	return price, nil
}

// MonthlyStatus computes the current-month budget state on demand
func (g *Governor) MonthlyStatus(ctx context.Context) Status {
	month := g.now().UTC().Format("2006-01")

	current, err := g.ledger.MonthTotal(ctx, month)
	if err != nil {
		g.logger.Warn("month total unavailable", zap.Error(err))
	}

	g.mu.RLock()
	limit := g.limit
	g.mu.RUnlock()

	return Status{
		Month:       month,
		CurrentCost: current,
		Limit:       limit,
		Warning:     current >= limit*0.8,
		OverLimit:   current >= limit,
	}
}

// SetMonthlyLimit updates the configured spending ceiling
func (g *Governor) SetMonthlyLimit(limit float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.limit = limit
}

// MonthlyBreakdown rolls the ledger up per month, newest first
func (g *Governor) MonthlyBreakdown(ctx context.Context) ([]MonthlySummary, error) {
	entries, err := g.ledger.Entries(ctx)
	if err != nil {
		return nil, err
	}

	byMonth := make(map[string]*MonthlySummary)
	for _, e := range entries {
		s, ok := byMonth[e.Month]
		if !ok {
			s = &MonthlySummary{Month: e.Month, ByBackend: make(map[string]float64)}
			byMonth[e.Month] = s
		}
		s.TotalCost += e.Cost
		s.TotalRequests++
		s.ByBackend[e.Backend] += e.Cost
	}

	out := make([]MonthlySummary, 0, len(byMonth))
	for _, s := range byMonth {
		out = append(out, *s)
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].Month > out[i].Month {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

// ExportCSV renders the full ledger as a tabular report
func (g *Governor) ExportCSV(ctx context.Context) (string, error) {
	entries, err := g.ledger.Entries(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to load ledger: %w", err)
	}

	var b strings.Builder
	b.WriteString("Timestamp,Backend,Prompt Units,Response Units,Cost (USD),Month\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "%s,%s,%d,%d,%.6f,%s\n",
			e.Timestamp.Format(time.RFC3339),
			e.Backend,
			e.PromptUnits,
			e.ResponseUnits,
			e.Cost,
			e.Month,
		)
	}
	return b.String(), nil
}
