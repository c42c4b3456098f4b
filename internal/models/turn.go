package models

import "time"

// Role identifies who produced a turn
type Role string

const (
	RolePlayer Role = "player"
	RoleAgent  Role = "agent"
	RoleSystem Role = "system"
)

// DefaultNarrator is the speaker used when the backend does not name one
const DefaultNarrator = "ナレーター"

// Turn is one unit of narrative: a player input or a generated response.
// Turns are immutable once committed; retry removes and replaces the
// trailing agent turn instead of editing it.
type Turn struct {
	ID              string    `json:"id"`
	Role            Role      `json:"role"`
	Speaker         string    `json:"speaker"`
	Text            string    `json:"text"`
	Timestamp       time.Time `json:"timestamp"`
	Event           string    `json:"event,omitempty"`
	SceneCharacters []string  `json:"scene_characters,omitempty"`
	Cost            float64   `json:"cost,omitempty"`
}

// Character is an entry in the character roster used for prompt assembly
type Character struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Aliases       []string `json:"aliases"`
	ImageURL      string   `json:"image_url,omitempty"`
	IsProtagonist bool     `json:"is_protagonist,omitempty"`
}

// WorldSetting describes the narrative world fed into every prompt
type WorldSetting struct {
	Title         string `json:"title"`
	Genre         string `json:"genre"`
	Setting       string `json:"setting"`
	MainCharacter string `json:"main_character"`
	CustomPrompt  string `json:"custom_prompt,omitempty"`
}

// GalleryItem records an event CG unlocked by a committed turn
type GalleryItem struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	ImageURL    string    `json:"image_url"`
	EventName   string    `json:"event_name"`
	Speaker     string    `json:"speaker,omitempty"`
	UnlockedAt  time.Time `json:"unlocked_at"`
}

// SaveMeta summarizes a save slot for the slot list
type SaveMeta struct {
	Slot      int       `json:"slot"`
	SavedAt   time.Time `json:"saved_at"`
	TurnCount int       `json:"turn_count"`
	Preview   string    `json:"preview"`
}
