package coordinator

import "storyreel/internal/domain"

// State is the authoritative in-flight record of one story's generation
// progress. It is only ever touched by the story's actor goroutine; callers
// interact through Coordinator methods and receive copies.
type State struct {
	StoryID     string           `json:"story_id"`
	UserID      string           `json:"user_id"`
	MediaType   domain.MediaType `json:"media_type"`
	TotalScenes int              `json:"total_scenes"`

	// ImagesCompleted counts the visual modality: video updates land here
	// when the story's media type is video.
	ImagesCompleted int  `json:"images_completed"`
	AudioCompleted  int  `json:"audio_completed"`
	Cancelled       bool `json:"cancelled"`

	Scenes []domain.Scene `json:"scenes"`

	// Applied sets make updates idempotent per (scene, modality): a
	// redelivered queue message or webhook merges its fields again but
	// never double-increments a counter.
	MediaApplied map[int]bool `json:"media_applied"`
	AudioApplied map[int]bool `json:"audio_applied"`
}

// Progress is the read-only view handed back from every actor operation.
type Progress struct {
	StoryID         string `json:"story_id"`
	TotalScenes     int    `json:"total_scenes"`
	ImagesCompleted int    `json:"images_completed"`
	AudioCompleted  int    `json:"audio_completed"`
	Cancelled       bool   `json:"cancelled"`
	Complete        bool   `json:"complete"`
}

// FinalizeResult is the destructive read returned by Finalize. When Success is
// true the actor's durable state has been deleted and Scenes carries the full
// per-scene bundle for the merge into the story document.
type FinalizeResult struct {
	Success bool
	Progress
	Scenes []domain.Scene
}

// AudioUpdate carries the result of one scene's voice-over generation.
type AudioUpdate struct {
	SceneIndex int
	URL        string
	Duration   float64
	Captions   []domain.Caption
	Err        string
}

// InitParams establishes a story's actor state.
type InitParams struct {
	StoryID     string
	UserID      string
	MediaType   domain.MediaType
	Scenes      []domain.Scene
	TotalScenes int
}

func newState(p InitParams) *State {
	scenes := make([]domain.Scene, len(p.Scenes))
	copy(scenes, p.Scenes)
	total := p.TotalScenes
	if total <= 0 {
		total = len(scenes)
	}
	return &State{
		StoryID:      p.StoryID,
		UserID:       p.UserID,
		MediaType:    p.MediaType,
		TotalScenes:  total,
		Scenes:       scenes,
		MediaApplied: make(map[int]bool),
		AudioApplied: make(map[int]bool),
	}
}

func (s *State) clone() *State {
	if s == nil {
		return nil
	}
	out := *s
	out.Scenes = make([]domain.Scene, len(s.Scenes))
	copy(out.Scenes, s.Scenes)
	out.MediaApplied = make(map[int]bool, len(s.MediaApplied))
	for k, v := range s.MediaApplied {
		out.MediaApplied[k] = v
	}
	out.AudioApplied = make(map[int]bool, len(s.AudioApplied))
	for k, v := range s.AudioApplied {
		out.AudioApplied[k] = v
	}
	return &out
}

func (s *State) progress() Progress {
	if s == nil {
		return Progress{}
	}
	return Progress{
		StoryID:         s.StoryID,
		TotalScenes:     s.TotalScenes,
		ImagesCompleted: s.ImagesCompleted,
		AudioCompleted:  s.AudioCompleted,
		Cancelled:       s.Cancelled,
		Complete:        s.complete(),
	}
}

func (s *State) complete() bool {
	return s.TotalScenes > 0 &&
		s.ImagesCompleted >= s.TotalScenes &&
		s.AudioCompleted >= s.TotalScenes
}

// applyMedia merges an image or video result into the scene at idx and counts
// the attempt. Failed generations count too, so a story with failed scenes
// still reaches completion instead of stalling.
func (s *State) applyMedia(idx int, video bool, url, errMsg string) bool {
	if s.Cancelled {
		return false
	}
	if idx >= 0 && idx < len(s.Scenes) {
		sc := &s.Scenes[idx]
		if url != "" {
			if video {
				sc.VideoURL = url
			} else {
				sc.ImageURL = url
			}
		}
		if errMsg != "" {
			sc.MediaError = errMsg
		}
	}
	if s.MediaApplied[idx] || s.ImagesCompleted >= s.TotalScenes {
		return true
	}
	s.MediaApplied[idx] = true
	s.ImagesCompleted++
	return true
}

// applyAudio merges a voice-over result. Scenes without narration still count
// (empty URL, zero duration) so silent scenes cannot stall completion.
func (s *State) applyAudio(u AudioUpdate) bool {
	if s.Cancelled {
		return false
	}
	idx := u.SceneIndex
	if idx >= 0 && idx < len(s.Scenes) {
		sc := &s.Scenes[idx]
		if u.URL != "" {
			sc.AudioURL = u.URL
		}
		if u.Duration > 0 {
			sc.AudioDuration = u.Duration
		}
		if len(u.Captions) > 0 {
			sc.Captions = append([]domain.Caption(nil), u.Captions...)
		}
		if u.Err != "" {
			sc.AudioError = u.Err
		}
	}
	if s.AudioApplied[idx] || s.AudioCompleted >= s.TotalScenes {
		return true
	}
	s.AudioApplied[idx] = true
	s.AudioCompleted++
	return true
}
