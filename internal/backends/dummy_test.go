package backends

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDummyBackendRotatesResponses(t *testing.T) {
	b := NewDummyBackendWithDelay(0)
	ctx := context.Background()

	seen := make([]string, 0, len(dummyResponses)+1)
	for i := 0; i <= len(dummyResponses); i++ {
		resp, err := b.Generate(ctx, "prompt")
		require.NoError(t, err)
		seen = append(seen, resp)
	}

	assert.Equal(t, dummyResponses[0], seen[0])
	assert.Equal(t, dummyResponses[1], seen[1])
	assert.Equal(t, seen[0], seen[len(dummyResponses)], "rotation wraps around")
}

func TestDummyResponsesAreStrictJSON(t *testing.T) {
	for _, resp := range dummyResponses {
		var payload map[string]interface{}
		assert.NoError(t, json.Unmarshal([]byte(resp), &payload), "response %q", resp)
		assert.NotEmpty(t, payload["text"])
	}
}

func TestDummyBackendHonorsContext(t *testing.T) {
	b := NewDummyBackendWithDelay(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := b.Generate(ctx, "prompt")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDummyBackendName(t *testing.T) {
	assert.Equal(t, "dummy", NewDummyBackend().Name())
}
