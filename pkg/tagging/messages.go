package tagging

import "strings"

// Messages holds every user-facing text of the flow
type Messages struct {
	Prompt          string `json:"prompt" mapstructure:"prompt"`
	Confirm         string `json:"confirm" mapstructure:"confirm"`
	Summary         string `json:"summary" mapstructure:"summary"`
	NothingSelected string `json:"nothing_selected" mapstructure:"nothing_selected"`
	AudioMissing    string `json:"audio_missing" mapstructure:"audio_missing"`
	SessionExpired  string `json:"session_expired" mapstructure:"session_expired"`
	// Caption receives the sender name in place of every %s
	Caption string `json:"caption" mapstructure:"caption"`
}

// DefaultMessages returns the built-in texts
func DefaultMessages() Messages {
	return Messages{
		Prompt:          "Choose the playlists to forward this track to:",
		Confirm:         "✅ Done",
		Summary:         "Added to playlists:",
		NothingSelected: "You did not select anything.",
		AudioMissing:    "Error: could not find the audio. Please send the file again.",
		SessionExpired:  "This selection has expired. Please send the file again.",
		Caption:         "Forwarded from %s",
	}
}

// withDefaults fills empty fields from DefaultMessages
func (m Messages) withDefaults() Messages {
	d := DefaultMessages()
	if m.Prompt == "" {
		m.Prompt = d.Prompt
	}
	if m.Confirm == "" {
		m.Confirm = d.Confirm
	}
	if m.Summary == "" {
		m.Summary = d.Summary
	}
	if m.NothingSelected == "" {
		m.NothingSelected = d.NothingSelected
	}
	if m.AudioMissing == "" {
		m.AudioMissing = d.AudioMissing
	}
	if m.SessionExpired == "" {
		m.SessionExpired = d.SessionExpired
	}
	if m.Caption == "" {
		m.Caption = d.Caption
	}
	return m
}

// caption renders the delivery caption for sender. Other % sequences are
// kept as written.
func (m Messages) caption(sender string) string {
	return strings.ReplaceAll(m.Caption, "%s", sender)
}

// summary renders the confirmation text listing tags
func (m Messages) summary(tags []string) string {
	return m.Summary + "\n" + strings.Join(tags, "\n")
}
