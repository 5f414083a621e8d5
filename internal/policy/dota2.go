package policy

// Dota2Preset blocks Dota 2. Steam itself is a separate preset.
type Dota2Preset struct{}

// NewDota2Preset creates the Dota 2 preset.
func NewDota2Preset() *Dota2Preset {
	return &Dota2Preset{}
}

func (p *Dota2Preset) ID() string {
	return "dota2"
}

func (p *Dota2Preset) Name() string {
	return "Dota 2"
}

// ProcessNames returns Dota 2 process names.
func (p *Dota2Preset) ProcessNames() []string {
	return []string{
		"dota2",
		"dota_osx64",
		"dota 2",
		"dota2_launcher",
		"dota2.exe",
	}
}

// Ensure Dota2Preset implements Preset.
var _ Preset = (*Dota2Preset)(nil)
