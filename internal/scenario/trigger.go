package scenario

import (
	"encoding/json"
	"os"
	"sync"

	"go.uber.org/zap"

	"kotonoha/internal/models"
)

// TriggerEngine watches event tags on committed turns and arms a
// checkpoint's forced prompt for exactly the next generation request.
// A checkpoint fires at most once per session: every consumed event key
// is remembered, not just the latest one.
type TriggerEngine struct {
	logger      *zap.Logger
	checkpoints map[string]models.Checkpoint

	mu       sync.Mutex
	consumed map[string]bool
	pending  string
}

// NewTriggerEngine creates an engine over a static checkpoint set
func NewTriggerEngine(checkpoints []models.Checkpoint, logger *zap.Logger) *TriggerEngine {
	if logger == nil {
		logger = zap.NewNop()
	}

	byEvent := make(map[string]models.Checkpoint, len(checkpoints))
	for _, cp := range checkpoints {
		byEvent[cp.Event] = cp
	}

	return &TriggerEngine{
		logger:      logger.Named("scenario"),
		checkpoints: byEvent,
		consumed:    make(map[string]bool),
	}
}

// LoadFile reads scenario reference data from a JSON file. A load failure
// degrades to an empty checkpoint set: forced directives become
// unavailable, nothing else breaks.
func LoadFile(path string, logger *zap.Logger) *TriggerEngine {
	if logger == nil {
		logger = zap.NewNop()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("scenario file unavailable, continuing without checkpoints",
			zap.String("path", path), zap.Error(err))
		return NewTriggerEngine(nil, logger)
	}

	var scenario models.ScenarioData
	if err := json.Unmarshal(data, &scenario); err != nil {
		logger.Warn("scenario file malformed, continuing without checkpoints",
			zap.String("path", path), zap.Error(err))
		return NewTriggerEngine(nil, logger)
	}

	logger.Info("scenario checkpoints loaded",
		zap.String("path", path), zap.Int("count", len(scenario.Checkpoints)))
	return NewTriggerEngine(scenario.Checkpoints, logger)
}

// OnTurnCommitted arms the matching checkpoint's forced prompt if the
// turn carries a known, not-yet-consumed event tag. Unknown tags are
// ignored.
func (e *TriggerEngine) OnTurnCommitted(turn models.Turn) {
	if turn.Event == "" {
		return
	}

	cp, ok := e.checkpoints[turn.Event]
	if !ok {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.consumed[cp.Event] {
		return
	}
	e.consumed[cp.Event] = true
	e.pending = cp.ForcedPrompt

	e.logger.Info("checkpoint triggered", zap.String("event", cp.Event))
}

// ConsumePendingDirective returns and clears the pending forced prompt.
// Called once per outgoing generation request so a directive applies to
// exactly one turn.
func (e *TriggerEngine) ConsumePendingDirective() string {
	e.mu.Lock()
	defer e.mu.Unlock()

	p := e.pending
	e.pending = ""
	return p
}

// PendingDirective reports the armed directive without consuming it
func (e *TriggerEngine) PendingDirective() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending
}

// Checkpoint looks up reference data by event key, for asset hints
func (e *TriggerEngine) Checkpoint(event string) (models.Checkpoint, bool) {
	cp, ok := e.checkpoints[event]
	return cp, ok
}

// ConsumedKeys returns the event keys already fired this session
func (e *TriggerEngine) ConsumedKeys() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	keys := make([]string, 0, len(e.consumed))
	for k := range e.consumed {
		keys = append(keys, k)
	}
	return keys
}

// Restore replaces the consumed set and pending directive, used when a
// saved session is loaded
func (e *TriggerEngine) Restore(consumedKeys []string, pending string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.consumed = make(map[string]bool, len(consumedKeys))
	for _, k := range consumedKeys {
		e.consumed[k] = true
	}
	e.pending = pending
}
