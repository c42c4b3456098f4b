package scenario

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kotonoha/internal/models"
)

func testCheckpoints() []models.Checkpoint {
	return []models.Checkpoint{
		{
			Event:        "door_opened",
			ForcedPrompt: "廊下の奥から物音を聞かせてください。",
			Background:   "/assets/backgrounds/entrance_hall.png",
		},
		{
			Event:        "voice_heard",
			ForcedPrompt: "謎の少女を登場させてください。",
		},
	}
}

func TestTriggerArmsDirectiveOnce(t *testing.T) {
	e := NewTriggerEngine(testCheckpoints(), nil)

	e.OnTurnCommitted(models.Turn{Event: "door_opened"})
	assert.Equal(t, "廊下の奥から物音を聞かせてください。", e.PendingDirective())

	// Consuming clears the directive
	got := e.ConsumePendingDirective()
	assert.Equal(t, "廊下の奥から物音を聞かせてください。", got)
	assert.Empty(t, e.ConsumePendingDirective())

	// The same event never fires again
	e.OnTurnCommitted(models.Turn{Event: "door_opened"})
	assert.Empty(t, e.PendingDirective())
}

func TestTriggerIgnoresUnknownAndEmptyEvents(t *testing.T) {
	e := NewTriggerEngine(testCheckpoints(), nil)

	e.OnTurnCommitted(models.Turn{Event: ""})
	e.OnTurnCommitted(models.Turn{Event: "no_such_event"})
	assert.Empty(t, e.PendingDirective())
	assert.Empty(t, e.ConsumedKeys())
}

func TestTriggerEachCheckpointIndependent(t *testing.T) {
	e := NewTriggerEngine(testCheckpoints(), nil)

	e.OnTurnCommitted(models.Turn{Event: "door_opened"})
	e.ConsumePendingDirective()

	e.OnTurnCommitted(models.Turn{Event: "voice_heard"})
	assert.Equal(t, "謎の少女を登場させてください。", e.ConsumePendingDirective())

	assert.ElementsMatch(t, []string{"door_opened", "voice_heard"}, e.ConsumedKeys())
}

func TestTriggerLaterEventOverwritesPending(t *testing.T) {
	e := NewTriggerEngine(testCheckpoints(), nil)

	// Two checkpoints fire before the next generation; the newest wins
	e.OnTurnCommitted(models.Turn{Event: "door_opened"})
	e.OnTurnCommitted(models.Turn{Event: "voice_heard"})

	assert.Equal(t, "謎の少女を登場させてください。", e.ConsumePendingDirective())
}

func TestTriggerCheckpointLookup(t *testing.T) {
	e := NewTriggerEngine(testCheckpoints(), nil)

	cp, ok := e.Checkpoint("door_opened")
	require.True(t, ok)
	assert.Equal(t, "/assets/backgrounds/entrance_hall.png", cp.Background)

	_, ok = e.Checkpoint("missing")
	assert.False(t, ok)
}

func TestTriggerRestore(t *testing.T) {
	e := NewTriggerEngine(testCheckpoints(), nil)

	e.Restore([]string{"door_opened"}, "保留中の指示")
	assert.Equal(t, "保留中の指示", e.PendingDirective())

	// Restored keys count as consumed
	e.ConsumePendingDirective()
	e.OnTurnCommitted(models.Turn{Event: "door_opened"})
	assert.Empty(t, e.PendingDirective())

	// Unconsumed checkpoints still fire after restore
	e.OnTurnCommitted(models.Turn{Event: "voice_heard"})
	assert.NotEmpty(t, e.PendingDirective())
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("valid file", func(t *testing.T) {
		path := filepath.Join(dir, "scenario.json")
		data := `{"checkpoints": [{"event": "door_opened", "forced_prompt": "物音を描写。"}]}`
		require.NoError(t, os.WriteFile(path, []byte(data), 0644))

		e := LoadFile(path, nil)
		e.OnTurnCommitted(models.Turn{Event: "door_opened"})
		assert.Equal(t, "物音を描写。", e.PendingDirective())
	})

	t.Run("missing file degrades to empty set", func(t *testing.T) {
		e := LoadFile(filepath.Join(dir, "nope.json"), nil)
		e.OnTurnCommitted(models.Turn{Event: "door_opened"})
		assert.Empty(t, e.PendingDirective())
	})

	t.Run("malformed file degrades to empty set", func(t *testing.T) {
		path := filepath.Join(dir, "broken.json")
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

		e := LoadFile(path, nil)
		e.OnTurnCommitted(models.Turn{Event: "door_opened"})
		assert.Empty(t, e.PendingDirective())
	})
}
