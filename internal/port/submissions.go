package port

import (
	"context"

	"github.com/bnema/mediadesk/internal/domain"
)

// SubmissionStore keeps the local history of jobs submitted through this UI.
type SubmissionStore interface {
	SaveSubmission(ctx context.Context, s *domain.Submission) error
	GetSubmissionByJob(ctx context.Context, jobID string) (*domain.Submission, error)
	ListSubmissions(ctx context.Context, limit int) ([]*domain.Submission, error)
	DeleteSubmission(ctx context.Context, jobID string) error
}
