package model

import "time"

// SavedQuery is a persisted, named QuerySpec. Names are unique within the
// store.
type SavedQuery struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Spec      QuerySpec `json:"spec"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TemplatePreset is a read-only QuerySpec shipped with the application.
// Presets have no persistence and no lifecycle beyond process start.
type TemplatePreset struct {
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Spec        QuerySpec `json:"spec" yaml:"spec"`
}
