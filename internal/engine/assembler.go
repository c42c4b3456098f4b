package engine

import (
	"context"
	"fmt"
	"strings"

	"kotonoha/internal/models"
	"kotonoha/internal/prompts"
)

// contextInput is everything prompt assembly needs, captured under the
// state lock so assembly itself can run without holding it
type contextInput struct {
	worldPrompt    string
	characters     []models.Character
	turns          []models.Turn
	longTermMemory string
	shortTermTurns int
	searchLimit    int
	forcedPrompt   string
	playerInput    string
}

// assembleContext builds the generation prompt. It never fails: when the
// vector search is unavailable the long-term section degrades to the bare
// summary, and a broken template degrades to plain concatenation.
func (s *Session) assembleContext(ctx context.Context, in contextInput) string {
	vars := map[string]string{
		"world_prompt":      in.worldPrompt,
		"character_list":    renderCharacterList(in.characters),
		"long_term_memory":  s.renderLongTermMemory(ctx, in),
		"short_term_memory": renderShortTermWindow(in.turns, in.shortTermTurns),
		"forced_prompt":     in.forcedPrompt,
		"player_input":      in.playerInput,
	}
	if vars["forced_prompt"] == "" {
		vars["forced_prompt"] = prompts.NoDirectiveMarker
	}

	prompt, err := s.templates.Render(prompts.TemplateStoryTurn, vars)
	if err != nil {
		// Assembly must always produce a payload
		var b strings.Builder
		for _, key := range []string{"world_prompt", "character_list", "long_term_memory", "short_term_memory", "forced_prompt", "player_input"} {
			b.WriteString(vars[key])
			b.WriteString("\n\n")
		}
		return b.String()
	}
	return prompt
}

// renderCharacterList formats the roster as name plus aliases
func renderCharacterList(characters []models.Character) string {
	if len(characters) == 0 {
		return "- 主人公\n- " + models.DefaultNarrator
	}

	lines := make([]string, 0, len(characters))
	for _, c := range characters {
		aliases := "なし"
		if len(c.Aliases) > 0 {
			aliases = strings.Join(c.Aliases, ", ")
		}
		lines = append(lines, fmt.Sprintf("- %s (別名: %s)", c.Name, aliases))
	}
	return strings.Join(lines, "\n")
}

// renderShortTermWindow renders the most recent turns as speaker-prefixed
// lines. The window is counted in exchanges, so both sides of the last
// shortTermTurns rounds are included.
func renderShortTermWindow(turns []models.Turn, shortTermTurns int) string {
	window := turns
	if max := shortTermTurns * 2; len(window) > max {
		window = window[len(window)-max:]
	}

	lines := make([]string, 0, len(window))
	for _, t := range window {
		speaker := t.Speaker
		if t.Role == models.RolePlayer {
			speaker = "プレイヤー"
		}
		lines = append(lines, fmt.Sprintf("%s: %s", speaker, t.Text))
	}
	return strings.Join(lines, "\n")
}

// renderLongTermMemory concatenates the running summary with the top
// semantically relevant memories for the player input
func (s *Session) renderLongTermMemory(ctx context.Context, in contextInput) string {
	var b strings.Builder
	if in.longTermMemory != "" {
		b.WriteString(in.longTermMemory)
	}

	results := s.memory.Search(ctx, in.playerInput, in.searchLimit)
	for i, r := range results {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d. [関連度 %.2f] %s", i+1, r.Similarity, r.Text)
	}

	if b.Len() == 0 {
		return "（なし）"
	}
	return b.String()
}
