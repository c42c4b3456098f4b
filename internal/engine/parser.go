package engine

import (
	"encoding/json"
	"regexp"
	"strings"

	"kotonoha/internal/models"
)

// TurnPayload is the structured shape the backend is asked to emit
type TurnPayload struct {
	Speaker         string   `json:"speaker"`
	Text            string   `json:"text"`
	Event           string   `json:"event"`
	SceneCharacters []string `json:"scene_characters"`
}

var fenceRegex = regexp.MustCompile("(?s)^```(\\w*)?\\s*\n?(.*?)\n?\\s*```$")

// ParseResponse turns raw backend text into one or more turn payloads.
// It never fails: a fenced JSON array yields a primary payload plus a
// queued continuation, a fenced JSON object yields a single payload, and
// anything unparsable becomes verbatim narration by the default narrator.
func ParseResponse(raw string) []TurnPayload {
	cleaned := strings.TrimSpace(raw)
	if match := fenceRegex.FindStringSubmatch(cleaned); match != nil {
		cleaned = strings.TrimSpace(match[2])
	}

	switch {
	case strings.HasPrefix(cleaned, "["):
		var payloads []TurnPayload
		if err := json.Unmarshal([]byte(cleaned), &payloads); err == nil {
			if normalized := normalizePayloads(payloads); len(normalized) > 0 {
				return normalized
			}
		}
	case strings.HasPrefix(cleaned, "{"):
		var payload TurnPayload
		if err := json.Unmarshal([]byte(cleaned), &payload); err == nil && strings.TrimSpace(payload.Text) != "" {
			return normalizePayloads([]TurnPayload{payload})
		}
	}

	// Fallback tier: the whole raw text becomes the narration
	return []TurnPayload{{
		Speaker:         models.DefaultNarrator,
		Text:            raw,
		SceneCharacters: []string{},
	}}
}

// normalizePayloads drops empty-text elements and fills defaults
func normalizePayloads(payloads []TurnPayload) []TurnPayload {
	out := make([]TurnPayload, 0, len(payloads))
	for _, p := range payloads {
		if strings.TrimSpace(p.Text) == "" {
			continue
		}
		if p.Speaker == "" {
			p.Speaker = models.DefaultNarrator
		}
		if p.SceneCharacters == nil {
			p.SceneCharacters = []string{}
		}
		out = append(out, p)
	}
	return out
}
