package policy

// SteamPreset blocks the Steam client and its helpers.
type SteamPreset struct{}

// NewSteamPreset creates the Steam preset.
func NewSteamPreset() *SteamPreset {
	return &SteamPreset{}
}

func (p *SteamPreset) ID() string {
	return "steam"
}

func (p *SteamPreset) Name() string {
	return "Steam"
}

// ProcessNames returns Steam process names on macOS, Linux and Windows.
func (p *SteamPreset) ProcessNames() []string {
	return []string{
		"steam",
		"steam_osx",
		"steamwebhelper",
		"steam helper",
		"steam.exe",
		"steamwebhelper.exe",
	}
}

// Ensure SteamPreset implements Preset.
var _ Preset = (*SteamPreset)(nil)
