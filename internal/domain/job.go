package domain

import (
	"time"
)

type JobKind string

const (
	JobKindSubtitleTranslation JobKind = "subtitle_translation"
	JobKindDubbing             JobKind = "dubbing"
	JobKindYoutubeIngest       JobKind = "youtube_ingest"
)

func (k JobKind) Label() string {
	switch k {
	case JobKindSubtitleTranslation:
		return "Subtitle translation"
	case JobKindDubbing:
		return "Video dubbing"
	case JobKindYoutubeIngest:
		return "YouTube ingest"
	default:
		return string(k)
	}
}

type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsTerminal reports whether the backend will no longer change the job.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// JobOutput is a file produced by a finished job.
type JobOutput struct {
	Name string `json:"name" validate:"required"`
	URL  string `json:"url" validate:"required"`
	Size int64  `json:"size" validate:"gte=0"`
}

// Job mirrors the backend's view of a unit of work.
type Job struct {
	ID        string      `json:"id" validate:"required"`
	Kind      JobKind     `json:"kind" validate:"required,oneof=subtitle_translation dubbing youtube_ingest"`
	Status    JobStatus   `json:"status" validate:"required,oneof=queued running completed failed cancelled"`
	Progress  int         `json:"progress"`
	Stage     string      `json:"stage"`
	Error     string      `json:"error"`
	Title     string      `json:"title"`
	Outputs   []JobOutput `json:"outputs" validate:"dive"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// ClampedProgress returns Progress bounded to 0..100; completed jobs report 100.
func (j *Job) ClampedProgress() int {
	if j.Status == JobStatusCompleted {
		return 100
	}
	return ClampPercent(j.Progress)
}

// Submission is the local record of a job this front-end submitted.
type Submission struct {
	ID          string
	JobID       string
	Kind        JobKind
	Title       string
	StartTime   string
	EndTime     string
	SubmittedBy string
	CreatedAt   time.Time
}
