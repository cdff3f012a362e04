package render

import "sync"

// Theme selects the colour scheme of rendered fragments.
type Theme string

const (
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"
)

// ParseTheme maps a query value to a Theme, defaulting to dark.
func ParseTheme(s string) Theme {
	if Theme(s) == ThemeLight {
		return ThemeLight
	}
	return ThemeDark
}

// ViewState holds per-message presentation state that is not part of the
// message itself. Elements start expanded.
type ViewState struct {
	mu        sync.Mutex
	collapsed map[string]bool
}

// NewViewState creates an empty view state.
func NewViewState() *ViewState {
	return &ViewState{collapsed: make(map[string]bool)}
}

// Collapsed reports whether the element of messageID is collapsed. A nil
// ViewState reports false.
func (v *ViewState) Collapsed(messageID string) bool {
	if v == nil {
		return false
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.collapsed[messageID]
}

// Toggle flips the collapsed state of messageID and returns the new value.
func (v *ViewState) Toggle(messageID string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.collapsed[messageID] = !v.collapsed[messageID]
	return v.collapsed[messageID]
}

// Reset forgets every message.
func (v *ViewState) Reset() {
	v.mu.Lock()
	v.collapsed = make(map[string]bool)
	v.mu.Unlock()
}
