package domain

import "time"

// JobStatus enumerates generation job lifecycle states.
type JobStatus string

const (
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Terminal reports whether the status is a terminal state.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// GenerationJob tracks the lifecycle of one story generation request. It is the
// user-facing progress record; the per-scene truth lives in the coordinator
// until finalize commits it to the story document.
type GenerationJob struct {
	ID              string
	UserID          string
	StoryID         string
	Status          JobStatus
	Progress        int // 0..100
	TotalScenes     int
	ImagesGenerated int
	AudioGenerated  int
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
