package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"kotonoha/internal/backends"
	"kotonoha/internal/cost"
	"kotonoha/internal/interfaces"
	"kotonoha/internal/models"
	"kotonoha/internal/prompts"
	"kotonoha/internal/scenario"
	"kotonoha/internal/storage"
)

var (
	// ErrBusy rejects a submission while a previous one is in flight or
	// a reveal is still playing out
	ErrBusy = errors.New("session is busy")

	// ErrNoAgentTurn rejects retry when the trailing turn is not an
	// agent turn
	ErrNoAgentTurn = errors.New("no trailing agent turn to retry")

	// ErrSlotNotFound is returned when loading an empty save slot
	ErrSlotNotFound = errors.New("save slot not found")
)

// budgetNotice is prepended to a turn generated by the offline backend
// after a budget-forced substitution
const budgetNotice = "（月間予算の上限に達したため、オフラインの語り手が応答しています）\n"

// saveVersion versions the persisted session envelope
const saveVersion = 1

// Settings is the player-editable session configuration
type Settings struct {
	Backend        string             `json:"backend"`
	WorldPrompt    string             `json:"world_prompt"`
	Characters     []models.Character `json:"characters"`
	ShortTermTurns int                `json:"short_term_turns"`
	SearchLimit    int                `json:"search_limit"`
	ShowCost       bool               `json:"show_cost"`
}

// SettingsPatch is a partial settings update; nil fields are unchanged
type SettingsPatch struct {
	Backend        *string             `json:"backend,omitempty"`
	WorldPrompt    *string             `json:"world_prompt,omitempty"`
	Characters     *[]models.Character `json:"characters,omitempty"`
	ShortTermTurns *int                `json:"short_term_turns,omitempty"`
	SearchLimit    *int                `json:"search_limit,omitempty"`
	ShowCost       *bool               `json:"show_cost,omitempty"`
	MonthlyLimit   *float64            `json:"monthly_limit,omitempty"`
}

// Event is pushed to the presentation layer when session state changes
type Event struct {
	Type      string       `json:"type"` // turn, loading, error
	Turn      *models.Turn `json:"turn,omitempty"`
	IsLoading bool         `json:"is_loading"`
	Error     string       `json:"error,omitempty"`
}

// Notifier receives session events; the websocket hub implements it
type Notifier interface {
	Notify(event Event)
}

// Snapshot is a read-only projection of session state for the
// presentation layer
type Snapshot struct {
	Turns          []models.Turn        `json:"turns"`
	IsLoading      bool                 `json:"is_loading"`
	IsRevealing    bool                 `json:"is_revealing"`
	Error          string               `json:"error,omitempty"`
	TotalCost      float64              `json:"total_cost"`
	LongTermMemory string               `json:"long_term_memory"`
	Gallery        []models.GalleryItem `json:"gallery"`
	Settings       Settings             `json:"settings"`
}

// Session owns all mutable narrative state and sequences every component:
// context assembly, generation dispatch, parsing, cost governance, memory
// persistence, checkpoint triggering and queued reveal. State is only
// mutated by its transition methods, never from outside.
type Session struct {
	logger    *zap.Logger
	registry  *backends.Registry
	governor  *cost.Governor
	memory    interfaces.VectorStore
	trigger   *scenario.TriggerEngine
	templates *prompts.TemplateEngine
	saves     storage.KV
	queue     *QueuePlayer
	notifier  Notifier

	// loading is set synchronously before any suspension point so two
	// submissions can never interleave
	loading *atomic.Bool

	mu             sync.RWMutex
	turns          []models.Turn
	totalCost      float64
	longTermMemory string
	lastError      string
	gallery        []models.GalleryItem
	settings       Settings

	// epoch is bumped by Restore and Reset. A generation captures it at
	// dispatch and its results are dropped on mismatch, so a response
	// that was in flight across a load cannot leak into the new state.
	epoch       int
	revealEpoch int
}

// Options wires a session's collaborators
type Options struct {
	Registry       *backends.Registry
	Governor       *cost.Governor
	Memory         interfaces.VectorStore
	Trigger        *scenario.TriggerEngine
	Saves          storage.KV
	Notifier       Notifier
	Settings       Settings
	RevealInterval time.Duration
	Logger         *zap.Logger
}

// NewSession creates a session seeded with the opening narrator turn
func NewSession(opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RevealInterval == 0 {
		opts.RevealInterval = 1500 * time.Millisecond
	}
	if opts.Settings.ShortTermTurns == 0 {
		opts.Settings.ShortTermTurns = 5
	}
	if opts.Settings.SearchLimit == 0 {
		opts.Settings.SearchLimit = 3
	}
	if opts.Settings.WorldPrompt == "" {
		opts.Settings.WorldPrompt = prompts.DefaultWorldPrompt
	}
	if opts.Saves == nil {
		opts.Saves = storage.NewMemoryKV()
	}

	s := &Session{
		logger:    logger.Named("session"),
		registry:  opts.Registry,
		governor:  opts.Governor,
		memory:    opts.Memory,
		trigger:   opts.Trigger,
		templates: prompts.NewTemplateEngine(),
		saves:     opts.Saves,
		notifier:  opts.Notifier,
		loading:   atomic.NewBool(false),
		settings:  opts.Settings,
	}
	s.queue = NewQueuePlayer(opts.RevealInterval, s.commitQueuedTurn, s.onQueueDrained)
	s.seedOpening()
	return s
}

// seedOpening installs the initial narrator turn and its gallery record
func (s *Session) seedOpening() {
	opening := models.Turn{
		ID:        uuid.NewString(),
		Role:      models.RoleAgent,
		Speaker:   models.DefaultNarrator,
		Text:      prompts.OpeningText,
		Timestamp: time.Now().UTC(),
		Event:     prompts.OpeningEvent,
	}

	s.mu.Lock()
	s.turns = []models.Turn{opening}
	s.gallery = []models.GalleryItem{s.galleryItemFor(opening)}
	s.mu.Unlock()
}

// Snapshot returns a copy of the session state
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := make([]models.Turn, len(s.turns))
	copy(turns, s.turns)
	gallery := make([]models.GalleryItem, len(s.gallery))
	copy(gallery, s.gallery)

	return Snapshot{
		Turns:          turns,
		IsLoading:      s.loading.Load(),
		IsRevealing:    s.queue.IsRevealing(),
		Error:          s.lastError,
		TotalCost:      s.totalCost,
		LongTermMemory: s.longTermMemory,
		Gallery:        gallery,
		Settings:       s.settings,
	}
}

// Submit appends a player turn and runs the full generation pipeline.
// Rejected with ErrBusy while loading or revealing.
func (s *Session) Submit(ctx context.Context, playerText string) error {
	if !s.loading.CompareAndSwap(false, true) {
		return ErrBusy
	}

	playerTurn := models.Turn{
		ID:        uuid.NewString(),
		Role:      models.RolePlayer,
		Speaker:   "プレイヤー",
		Text:      playerText,
		Timestamp: time.Now().UTC(),
	}

	s.mu.Lock()
	s.turns = append(s.turns, playerTurn)
	s.lastError = ""
	s.mu.Unlock()

	s.notify(Event{Type: "turn", Turn: &playerTurn, IsLoading: true})

	return s.generate(ctx, playerText)
}

// Retry removes exactly the trailing agent turn and re-runs the pipeline
// for the player turn that preceded it. The player turn is never removed
// or duplicated.
func (s *Session) Retry(ctx context.Context) error {
	if !s.loading.CompareAndSwap(false, true) {
		return ErrBusy
	}

	s.mu.Lock()
	if len(s.turns) == 0 || s.turns[len(s.turns)-1].Role != models.RoleAgent {
		s.mu.Unlock()
		s.loading.Store(false)
		return ErrNoAgentTurn
	}
	s.turns = s.turns[:len(s.turns)-1]
	s.lastError = ""

	playerText := ""
	for i := len(s.turns) - 1; i >= 0; i-- {
		if s.turns[i].Role == models.RolePlayer {
			playerText = s.turns[i].Text
			break
		}
	}
	s.mu.Unlock()

	s.notify(Event{Type: "loading", IsLoading: true})

	return s.generate(ctx, playerText)
}

// generate runs budget check, assembly, dispatch, parse and commit.
// Callers must hold the loading flag; it is released here on failure and
// on single-turn success, or by the queue player after the last reveal.
func (s *Session) generate(ctx context.Context, playerText string) error {
	s.mu.RLock()
	in := contextInput{
		worldPrompt:    s.settings.WorldPrompt,
		characters:     append([]models.Character(nil), s.settings.Characters...),
		turns:          append([]models.Turn(nil), s.turns...),
		longTermMemory: s.longTermMemory,
		shortTermTurns: s.settings.ShortTermTurns,
		searchLimit:    s.settings.SearchLimit,
		playerInput:    playerText,
	}
	backendName := s.settings.Backend
	epoch := s.epoch
	s.mu.RUnlock()

	// Budget policy: an exceeded monthly limit is not an error, the paid
	// backend is transparently replaced by the offline one for this turn
	substituted := false
	status := s.governor.MonthlyStatus(ctx)
	if status.OverLimit && backendName != "dummy" {
		s.logger.Warn("monthly budget exceeded, substituting offline backend",
			zap.String("backend", backendName),
			zap.Float64("current", status.CurrentCost),
			zap.Float64("limit", status.Limit))
		backendName = "dummy"
		substituted = true
	}

	backend, err := s.registry.Select(ctx, backendName)
	if err != nil {
		return s.fail(fmt.Errorf("backend unavailable: %w", err), epoch)
	}

	// The one-shot directive is consumed only once dispatch is certain
	in.forcedPrompt = s.trigger.ConsumePendingDirective()

	prompt := s.assembleContext(ctx, in)

	raw, err := backend.Generate(ctx, prompt)
	if err != nil {
		return s.fail(fmt.Errorf("generation failed: %w", err), epoch)
	}

	payloads := ParseResponse(raw)

	price, err := s.governor.PriceAndRecord(ctx, backend.Name(), prompt, raw)
	if err != nil {
		s.logger.Warn("cost recording failed", zap.Error(err))
	}

	primary := payloads[0]
	if substituted {
		primary.Text = budgetNotice + primary.Text
	}

	primaryTurn := s.newAgentTurn(primary, price)
	if !s.commitAgentTurn(primaryTurn, playerText, epoch) {
		// The session was restored or reset while this generation was in
		// flight; its state is gone, nothing more to do
		return nil
	}

	if len(payloads) > 1 {
		queued := make([]models.Turn, 0, len(payloads)-1)
		for _, p := range payloads[1:] {
			queued = append(queued, s.newAgentTurn(p, 0))
		}
		s.mu.Lock()
		if epoch != s.epoch {
			s.mu.Unlock()
			return nil
		}
		s.revealEpoch = epoch
		s.mu.Unlock()
		// Loading stays on until the queue drains so a fresh submission
		// cannot overlap the reveal
		s.queue.Start(queued)
		return nil
	}

	s.loading.Store(false)
	s.notify(Event{Type: "loading", IsLoading: false})
	return nil
}

// fail records a session-level error and releases the loading flag
// without appending a partial agent turn. A stale epoch means the
// session was restored or reset mid-flight; the error belongs to a
// state that no longer exists, so it is logged but not surfaced.
func (s *Session) fail(err error, epoch int) error {
	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		s.logger.Warn("discarding error from superseded generation", zap.Error(err))
		return err
	}
	s.lastError = err.Error()
	s.mu.Unlock()

	s.loading.Store(false)
	s.logger.Error("submission failed", zap.Error(err))
	s.notify(Event{Type: "error", Error: err.Error(), IsLoading: false})
	return err
}

func (s *Session) newAgentTurn(p TurnPayload, price float64) models.Turn {
	return models.Turn{
		ID:              uuid.NewString(),
		Role:            models.RoleAgent,
		Speaker:         p.Speaker,
		Text:            p.Text,
		Timestamp:       time.Now().UTC(),
		Event:           p.Event,
		SceneCharacters: p.SceneCharacters,
		Cost:            price,
	}
}

// commitAgentTurn appends the turn and runs the post-commit chain:
// gallery unlock, checkpoint trigger and fire-and-forget memory save.
// It reports false, committing nothing, when the generation that
// produced the turn predates a Restore or Reset.
func (s *Session) commitAgentTurn(turn models.Turn, playerText string, epoch int) bool {
	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return false
	}
	s.turns = append(s.turns, turn)
	s.totalCost += turn.Cost
	if turn.Event != "" {
		s.gallery = append(s.gallery, s.galleryItemFor(turn))
	}
	s.mu.Unlock()

	s.trigger.OnTurnCommitted(turn)

	// Memory persistence must never delay or roll back the committed turn
	memoryText := fmt.Sprintf("%s: %s", turn.Speaker, turn.Text)
	if playerText != "" {
		memoryText = fmt.Sprintf("プレイヤー: %s\n%s", playerText, memoryText)
	}
	go func() {
		saveCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = s.memory.Save(saveCtx, memoryText, turn.ID)
	}()

	s.notify(Event{Type: "turn", Turn: &turn, IsLoading: s.loading.Load()})
	return true
}

// commitQueuedTurn is the queue player's per-reveal callback. Queued
// turns carry no player context of their own; they inherit the epoch
// of the generation that started the reveal.
func (s *Session) commitQueuedTurn(turn models.Turn) {
	s.mu.RLock()
	epoch := s.revealEpoch
	s.mu.RUnlock()
	s.commitAgentTurn(turn, "", epoch)
}

// onQueueDrained releases the loading flag after the last reveal
func (s *Session) onQueueDrained() {
	s.loading.Store(false)
	s.notify(Event{Type: "loading", IsLoading: false})
}

// galleryItemFor derives an unlocked gallery record from an event turn
func (s *Session) galleryItemFor(turn models.Turn) models.GalleryItem {
	description := turn.Text
	if len([]rune(description)) > 100 {
		description = string([]rune(description)[:100]) + "..."
	}

	imageURL := ""
	if cp, ok := s.trigger.Checkpoint(turn.Event); ok && cp.Background != "" {
		imageURL = cp.Background
	}

	return models.GalleryItem{
		ID:          uuid.NewString(),
		Title:       "イベント: " + turn.Event,
		Description: description,
		ImageURL:    imageURL,
		EventName:   turn.Event,
		Speaker:     turn.Speaker,
		UnlockedAt:  time.Now().UTC(),
	}
}

// DismissError clears the session-level error explicitly
func (s *Session) DismissError() {
	s.mu.Lock()
	s.lastError = ""
	s.mu.Unlock()
}

// UpdateSettings applies a partial configuration update
func (s *Session) UpdateSettings(patch SettingsPatch) Settings {
	s.mu.Lock()
	if patch.Backend != nil {
		s.settings.Backend = *patch.Backend
	}
	if patch.WorldPrompt != nil {
		s.settings.WorldPrompt = *patch.WorldPrompt
	}
	if patch.Characters != nil {
		s.settings.Characters = *patch.Characters
	}
	if patch.ShortTermTurns != nil && *patch.ShortTermTurns > 0 {
		s.settings.ShortTermTurns = *patch.ShortTermTurns
	}
	if patch.SearchLimit != nil && *patch.SearchLimit > 0 {
		s.settings.SearchLimit = *patch.SearchLimit
	}
	if patch.ShowCost != nil {
		s.settings.ShowCost = *patch.ShowCost
	}
	updated := s.settings
	s.mu.Unlock()

	if patch.MonthlyLimit != nil && *patch.MonthlyLimit > 0 {
		s.governor.SetMonthlyLimit(*patch.MonthlyLimit)
	}
	return updated
}

// Summarize condenses the full history into the long-term memory summary
// using the configured backend
func (s *Session) Summarize(ctx context.Context) error {
	if !s.loading.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer s.loading.Store(false)

	s.mu.RLock()
	turns := append([]models.Turn(nil), s.turns...)
	backendName := s.settings.Backend
	epoch := s.epoch
	s.mu.RUnlock()

	backend, err := s.registry.Select(ctx, backendName)
	if err != nil {
		return s.fail(fmt.Errorf("backend unavailable: %w", err), epoch)
	}

	prompt, err := s.templates.Render(prompts.TemplateSummarize, map[string]string{
		"history": renderShortTermWindow(turns, len(turns)),
	})
	if err != nil {
		return s.fail(err, epoch)
	}

	summary, err := backend.Generate(ctx, prompt)
	if err != nil {
		return s.fail(fmt.Errorf("summarization failed: %w", err), epoch)
	}

	if _, err := s.governor.PriceAndRecord(ctx, backend.Name(), prompt, summary); err != nil {
		s.logger.Warn("cost recording failed", zap.Error(err))
	}

	s.mu.Lock()
	if epoch == s.epoch {
		s.longTermMemory = summary
	}
	s.mu.Unlock()
	return nil
}

// saveEnvelope is the versioned persisted session record
type saveEnvelope struct {
	Version        int                       `json:"version"`
	SavedAt        time.Time                 `json:"saved_at"`
	Turns          []models.Turn             `json:"turns"`
	TotalCost      float64                   `json:"total_cost"`
	LongTermMemory string                    `json:"long_term_memory"`
	Gallery        []models.GalleryItem      `json:"gallery"`
	Settings       Settings                  `json:"settings"`
	ConsumedEvents []string                  `json:"consumed_events"`
	PendingPrompt  string                    `json:"pending_prompt"`
	Memory         []interfaces.MemoryVector `json:"memory"`
}

func slotKey(slot int) string { return fmt.Sprintf("session:slot:%d", slot) }

const slotIndexKey = "session:slots"

// Persist serializes the session state together with the memory export
// into the given save slot
func (s *Session) Persist(ctx context.Context, slot int) error {
	s.mu.RLock()
	env := saveEnvelope{
		Version:        saveVersion,
		SavedAt:        time.Now().UTC(),
		Turns:          append([]models.Turn(nil), s.turns...),
		TotalCost:      s.totalCost,
		LongTermMemory: s.longTermMemory,
		Gallery:        append([]models.GalleryItem(nil), s.gallery...),
		Settings:       s.settings,
	}
	s.mu.RUnlock()

	env.ConsumedEvents = s.trigger.ConsumedKeys()
	env.PendingPrompt = s.trigger.PendingDirective()
	env.Memory = s.memory.Export()

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to serialize session: %w", err)
	}
	if err := s.saves.Put(ctx, slotKey(slot), data); err != nil {
		return fmt.Errorf("failed to write save slot %d: %w", slot, err)
	}

	s.updateSlotIndex(ctx, slot, env)
	return nil
}

// Restore replaces the session state wholesale from a save slot. Any
// in-flight reveal is discarded and the error field cleared.
func (s *Session) Restore(ctx context.Context, slot int) error {
	data, err := s.saves.Get(ctx, slotKey(slot))
	if errors.Is(err, storage.ErrNotFound) {
		return ErrSlotNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read save slot %d: %w", slot, err)
	}

	var env saveEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("failed to decode save slot %d: %w", slot, err)
	}
	if env.Version != saveVersion {
		return fmt.Errorf("unsupported save version %d", env.Version)
	}

	s.queue.Cancel()

	s.mu.Lock()
	s.epoch++
	s.turns = env.Turns
	s.totalCost = env.TotalCost
	s.longTermMemory = env.LongTermMemory
	s.gallery = env.Gallery
	s.settings = env.Settings
	s.lastError = ""
	s.mu.Unlock()

	s.trigger.Restore(env.ConsumedEvents, env.PendingPrompt)
	s.memory.Import(env.Memory)
	s.loading.Store(false)

	s.notify(Event{Type: "loading", IsLoading: false})
	return nil
}

// SaveList returns metadata for every occupied save slot
func (s *Session) SaveList(ctx context.Context) []models.SaveMeta {
	data, err := s.saves.Get(ctx, slotIndexKey)
	if err != nil {
		return nil
	}

	var index map[string]models.SaveMeta
	if err := json.Unmarshal(data, &index); err != nil {
		return nil
	}

	out := make([]models.SaveMeta, 0, len(index))
	for _, meta := range index {
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slot < out[j].Slot })
	return out
}

// updateSlotIndex maintains the save-slot listing alongside the slots
func (s *Session) updateSlotIndex(ctx context.Context, slot int, env saveEnvelope) {
	index := make(map[string]models.SaveMeta)
	if data, err := s.saves.Get(ctx, slotIndexKey); err == nil {
		_ = json.Unmarshal(data, &index)
	}

	preview := ""
	if n := len(env.Turns); n > 0 {
		preview = env.Turns[n-1].Text
		if len([]rune(preview)) > 50 {
			preview = string([]rune(preview)[:50]) + "..."
		}
	}

	index[strconv.Itoa(slot)] = models.SaveMeta{
		Slot:      slot,
		SavedAt:   env.SavedAt,
		TurnCount: len(env.Turns),
		Preview:   preview,
	}

	data, err := json.Marshal(index)
	if err != nil {
		return
	}
	if err := s.saves.Put(ctx, slotIndexKey, data); err != nil {
		s.logger.Warn("failed to update save index", zap.Error(err))
	}
}

// Reset discards the running narrative and reseeds the opening turn. The
// memory store is cleared so the new session starts unenriched.
func (s *Session) Reset() {
	s.queue.Cancel()
	s.loading.Store(false)

	s.mu.Lock()
	s.epoch++
	s.totalCost = 0
	s.longTermMemory = ""
	s.lastError = ""
	s.mu.Unlock()

	s.memory.Clear()
	s.trigger.Restore(nil, "")
	s.seedOpening()

	s.notify(Event{Type: "loading", IsLoading: false})
}

func (s *Session) notify(event Event) {
	if s.notifier != nil {
		s.notifier.Notify(event)
	}
}
