package models

// Checkpoint is a story milestone loaded from scenario reference data.
// When its event name is first observed on a committed turn, the forced
// prompt is injected into the next generation request.
type Checkpoint struct {
	Event        string `json:"event"`
	Description  string `json:"description"`
	ForcedPrompt string `json:"forced_prompt"`

	// Optional asset hints for the presentation layer
	Background string `json:"background,omitempty"`
	Character  string `json:"character,omitempty"`
	Sound      string `json:"sound,omitempty"`
}

// ScenarioData is the on-disk shape of the scenario file
type ScenarioData struct {
	Checkpoints []Checkpoint `json:"checkpoints"`
}
