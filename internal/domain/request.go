package domain

import "io"

// DefaultStartTime is sent when the start field is left blank.
const DefaultStartTime = "00:00"

// Upload is a file picked in a form, streamed straight through to the backend.
type Upload struct {
	Name    string
	Size    int64
	Content io.Reader
}

type SubtitleJobRequest struct {
	File         Upload `validate:"-"`
	FileName     string `validate:"required"`
	SourceLang   string `validate:"required"`
	TargetLang   string `validate:"required,nefield=SourceLang"`
	StartTime    string `validate:"required"`
	EndTime      string
	ShowOriginal bool
	Model        string `validate:"omitempty,max=64"`
}

type DubJobRequest struct {
	File       Upload  `validate:"-"`
	FileName   string  `validate:"required"`
	TargetLang string  `validate:"required"`
	Voice      string  `validate:"required"`
	Speed      float64 `validate:"gte=0.5,lte=2"`
	StartTime  string  `validate:"required"`
	EndTime    string
}

type YoutubeIngestRequest struct {
	URL        string `json:"url" validate:"required,url"`
	SourceLang string `json:"source_lang,omitempty"`
	TargetLang string `json:"target_lang" validate:"required"`
	Dub        bool   `json:"dub"`
	Voice      string `json:"voice,omitempty" validate:"required_if=Dub true"`
	StartTime  string `json:"start_time" validate:"required"`
	EndTime    string `json:"end_time,omitempty"`
}

// SubmitResult is what the backend returns for an accepted job.
type SubmitResult struct {
	JobID string `json:"job_id" validate:"required"`
}
