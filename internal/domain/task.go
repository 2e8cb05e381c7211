package domain

// Modality identifies which generation a scene task performs.
type Modality string

const (
	ModalityImage Modality = "image"
	ModalityVideo Modality = "video"
	ModalityAudio Modality = "audio"
)

// IsValid reports whether the modality is one of the closed set.
func (m Modality) IsValid() bool {
	return m == ModalityImage || m == ModalityVideo || m == ModalityAudio
}

// SceneTask is the queue message describing one generation unit: one scene of
// one story in one modality. Delivery is at-least-once; consumers must route
// results through the story coordinator, never patch shared state directly.
type SceneTask struct {
	JobID      string   `json:"job_id"`
	UserID     string   `json:"user_id"`
	StoryID    string   `json:"story_id"`
	SceneIndex int      `json:"scene_index"`
	Type       Modality `json:"type"`
	Tier       string   `json:"tier"`
	Priority   int      `json:"priority"`

	Prompt    string `json:"prompt,omitempty"`
	Narration string `json:"narration,omitempty"`
	VoiceID   string `json:"voice_id,omitempty"`
	Model     string `json:"model,omitempty"`

	// CallbackBase is the externally reachable URL prefix async providers
	// post completion notifications to.
	CallbackBase string `json:"callback_base,omitempty"`
}
