package prompts

import (
	"fmt"
	"regexp"
	"sync"
)

// TemplateEngine manages prompt templates
type TemplateEngine struct {
	templates map[string]*Template
	mu        sync.RWMutex
}

// Template is a prompt template with {{variable}} placeholders
type Template struct {
	Name        string `json:"name"`
	Content     string `json:"content"`
	Description string `json:"description"`
}

var varRegex = regexp.MustCompile(`\{\{(\w+)\}\}`)

// NewTemplateEngine creates an engine preloaded with the default templates
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]*Template)}
	e.RegisterTemplate(&Template{
		Name:        TemplateStoryTurn,
		Content:     storyTurnTemplate,
		Description: "one narrative turn in strict JSON",
	})
	e.RegisterTemplate(&Template{
		Name:        TemplateSummarize,
		Content:     summarizeTemplate,
		Description: "long-term memory summarization",
	})
	return e
}

// RegisterTemplate registers or replaces a template
func (e *TemplateEngine) RegisterTemplate(tmpl *Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[tmpl.Name] = tmpl
}

// GetTemplate retrieves a template by name
func (e *TemplateEngine) GetTemplate(name string) (*Template, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	tmpl, ok := e.templates[name]
	if !ok {
		return nil, fmt.Errorf("template not found: %s", name)
	}
	return tmpl, nil
}

// Render substitutes {{variable}} placeholders from vars. Unknown
// placeholders are kept verbatim so a broken template is visible in the
// generated prompt instead of silently empty.
func (e *TemplateEngine) Render(templateName string, vars map[string]string) (string, error) {
	tmpl, err := e.GetTemplate(templateName)
	if err != nil {
		return "", err
	}

	result := varRegex.ReplaceAllStringFunc(tmpl.Content, func(match string) string {
		name := varRegex.FindStringSubmatch(match)[1]
		if value, ok := vars[name]; ok {
			return value
		}
		return match
	})
	return result, nil
}
