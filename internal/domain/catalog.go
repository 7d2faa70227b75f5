package domain

import "time"

type FileKind string

const (
	FileKindSubtitle FileKind = "subtitle"
	FileKindVideo    FileKind = "video"
	FileKindAudio    FileKind = "audio"
	FileKindOther    FileKind = "other"
)

// FileEntry is one row of a backend directory listing.
type FileEntry struct {
	Name     string    `json:"name" validate:"required"`
	Path     string    `json:"path" validate:"required"`
	Size     int64     `json:"size" validate:"gte=0"`
	IsDir    bool      `json:"is_dir"`
	Kind     FileKind  `json:"kind"`
	Modified time.Time `json:"modified"`
}

// ShowMetadata is a TVMaze show as relayed by the backend.
type ShowMetadata struct {
	ID        int      `json:"id" validate:"required"`
	Name      string   `json:"name" validate:"required"`
	Premiered string   `json:"premiered"`
	Language  string   `json:"language"`
	Genres    []string `json:"genres"`
	Summary   string   `json:"summary"`
	ImageURL  string   `json:"image_url"`
}

// VideoMetadata is yt-dlp output for a YouTube URL.
type VideoMetadata struct {
	ID          string `json:"id" validate:"required"`
	Title       string `json:"title" validate:"required"`
	Channel     string `json:"channel"`
	Duration    int    `json:"duration" validate:"gte=0"`
	UploadDate  string `json:"upload_date"`
	Thumbnail   string `json:"thumbnail"`
	Description string `json:"description"`
}

// MetadataUpdate is the editable metadata attached to a job's outputs.
type MetadataUpdate struct {
	Title       string `json:"title" validate:"required,max=200"`
	ShowName    string `json:"show_name,omitempty"`
	Season      int    `json:"season,omitempty" validate:"gte=0"`
	Episode     int    `json:"episode,omitempty" validate:"gte=0"`
	Description string `json:"description,omitempty"`
}

// Voice is a selectable TTS voice.
type Voice struct {
	ID       string `json:"id" validate:"required"`
	Label    string `json:"label"`
	Language string `json:"language"`
	Gender   string `json:"gender"`
}
