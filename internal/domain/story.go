package domain

import "time"

// MediaType selects the visual modality generated for every scene of a story.
type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeVideo MediaType = "video"
)

// IsValid reports whether the media type is supported.
func (m MediaType) IsValid() bool {
	return m == MediaTypeImage || m == MediaTypeVideo
}

// StoryStatus enumerates story document states.
type StoryStatus string

const (
	StoryStatusGenerating StoryStatus = "generating"
	StoryStatusReady      StoryStatus = "ready"
	StoryStatusCancelled  StoryStatus = "cancelled"
)

// Caption is a single word with its spoken time range, in seconds.
type Caption struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Scene is one unit of a story: a visual prompt plus optional narration, and
// the artifact fields filled in as generation completes.
type Scene struct {
	Index     int    `json:"index"`
	Prompt    string `json:"prompt"`
	Narration string `json:"narration,omitempty"`
	VoiceID   string `json:"voice_id,omitempty"`

	ImageURL      string    `json:"image_url,omitempty"`
	VideoURL      string    `json:"video_url,omitempty"`
	MediaError    string    `json:"media_error,omitempty"`
	AudioURL      string    `json:"audio_url,omitempty"`
	AudioDuration float64   `json:"audio_duration,omitempty"`
	Captions      []Caption `json:"captions,omitempty"`
	AudioError    string    `json:"audio_error,omitempty"`
}

// Story is the durable system-of-record document downstream compilation reads.
type Story struct {
	ID        string
	UserID    string
	Title     string
	MediaType MediaType
	Status    StoryStatus
	Scenes    []Scene
	CreatedAt time.Time
	UpdatedAt time.Time
}
