package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderSubstitutesVariables(t *testing.T) {
	e := NewTemplateEngine()
	e.RegisterTemplate(&Template{
		Name:    "greeting",
		Content: "こんにちは、{{name}}さん。今日は{{weather}}です。",
	})

	got, err := e.Render("greeting", map[string]string{
		"name":    "詩織",
		"weather": "晴れ",
	})
	require.NoError(t, err)
	assert.Equal(t, "こんにちは、詩織さん。今日は晴れです。", got)
}

func TestRenderKeepsUnknownPlaceholders(t *testing.T) {
	e := NewTemplateEngine()
	e.RegisterTemplate(&Template{Name: "partial", Content: "{{known}} / {{unknown}}"})

	got, err := e.Render("partial", map[string]string{"known": "値"})
	require.NoError(t, err)
	assert.Equal(t, "値 / {{unknown}}", got)
}

func TestRenderMissingTemplate(t *testing.T) {
	e := NewTemplateEngine()
	_, err := e.Render("nope", nil)
	assert.Error(t, err)
}

func TestDefaultTemplatesPreloaded(t *testing.T) {
	e := NewTemplateEngine()

	story, err := e.GetTemplate(TemplateStoryTurn)
	require.NoError(t, err)
	for _, placeholder := range []string{
		"{{world_prompt}}",
		"{{character_list}}",
		"{{long_term_memory}}",
		"{{short_term_memory}}",
		"{{forced_prompt}}",
		"{{player_input}}",
	} {
		assert.Contains(t, story.Content, placeholder)
	}

	summarize, err := e.GetTemplate(TemplateSummarize)
	require.NoError(t, err)
	assert.Contains(t, summarize.Content, "{{history}}")
}

func TestRegisterReplacesTemplate(t *testing.T) {
	e := NewTemplateEngine()
	e.RegisterTemplate(&Template{Name: TemplateSummarize, Content: "上書き: {{history}}"})

	got, err := e.Render(TemplateSummarize, map[string]string{"history": "履歴"})
	require.NoError(t, err)
	assert.Equal(t, "上書き: 履歴", got)
}
