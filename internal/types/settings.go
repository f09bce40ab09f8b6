package types

// DefaultTargetURL is where a new target tab is opened.
const DefaultTargetURL = "https://chatgpt.com/"

// Settings is the user preference record carried with every message.
type Settings struct {
	AutoSend          bool   `json:"auto_send" yaml:"auto_send"`
	ShowNotifications bool   `json:"show_notifications" yaml:"show_notifications"`
	SwitchTab         bool   `json:"switch_tab" yaml:"switch_tab"`
	TargetURL         string `json:"target_url" yaml:"target_url"`
}

// DefaultSettings returns the settings used when nothing is stored.
func DefaultSettings() Settings {
	return Settings{
		AutoSend:          true,
		ShowNotifications: true,
		SwitchTab:         true,
		TargetURL:         DefaultTargetURL,
	}
}

// Normalize fills an empty target URL with the default.
func (s Settings) Normalize() Settings {
	if OriginOf(s.TargetURL) == "" {
		s.TargetURL = DefaultTargetURL
	}
	return s
}
