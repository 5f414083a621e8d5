package policy

import (
	"fmt"
	"sort"
)

// Registry holds the known blocklist presets.
type Registry struct {
	presets map[string]Preset
}

// NewRegistry creates a registry with all default presets.
func NewRegistry() *Registry {
	r := &Registry{
		presets: make(map[string]Preset),
	}

	r.Register(NewSteamPreset())
	r.Register(NewDota2Preset())

	return r
}

// NewRegistryWithPresets creates a registry with custom presets (for testing).
func NewRegistryWithPresets(presets ...Preset) *Registry {
	r := &Registry{
		presets: make(map[string]Preset),
	}
	for _, p := range presets {
		r.Register(p)
	}
	return r
}

// Register adds a preset to the registry.
func (r *Registry) Register(p Preset) {
	r.presets[Normalize(p.ID())] = p
}

// Get returns a preset by ID.
func (r *Registry) Get(id string) (Preset, bool) {
	p, ok := r.presets[Normalize(id)]
	return p, ok
}

// List returns all preset IDs, sorted.
func (r *Registry) List() []string {
	ids := make([]string, 0, len(r.presets))
	for id := range r.presets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Expand returns the validated, normalized process names of a preset.
func (r *Registry) Expand(id string) ([]string, error) {
	p, ok := r.Get(id)
	if !ok {
		return nil, fmt.Errorf("unknown preset %q (available: %v)", id, r.List())
	}
	names := make([]string, 0, len(p.ProcessNames()))
	for _, raw := range p.ProcessNames() {
		n, err := Validate(raw)
		if err != nil {
			return nil, fmt.Errorf("preset %s: %w", p.ID(), err)
		}
		names = append(names, n)
	}
	return names, nil
}
