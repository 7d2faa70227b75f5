package port

import (
	"context"
	"io"

	"github.com/bnema/mediadesk/internal/domain"
)

// JobBackend is the external service that runs jobs and owns media files.
type JobBackend interface {
	SubmitSubtitleJob(ctx context.Context, req *domain.SubtitleJobRequest) (*domain.SubmitResult, error)
	SubmitDubJob(ctx context.Context, req *domain.DubJobRequest) (*domain.SubmitResult, error)
	SubmitYoutubeIngest(ctx context.Context, req *domain.YoutubeIngestRequest) (*domain.SubmitResult, error)

	GetJob(ctx context.Context, id string) (*domain.Job, error)
	ListJobs(ctx context.Context) ([]domain.Job, error)
	CancelJob(ctx context.Context, id string) error

	ListFiles(ctx context.Context, dir string) ([]domain.FileEntry, error)
	DeleteFile(ctx context.Context, path string) error

	SearchShows(ctx context.Context, query string) ([]domain.ShowMetadata, error)
	LookupVideo(ctx context.Context, url string) (*domain.VideoMetadata, error)
	UpdateMetadata(ctx context.Context, jobID string, update *domain.MetadataUpdate) error

	ListVoices(ctx context.Context) ([]domain.Voice, error)
	PreviewVoice(ctx context.Context, voiceID, text string) (io.ReadCloser, string, error)
}
