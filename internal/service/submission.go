package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bnema/mediadesk/internal/domain"
	"github.com/bnema/mediadesk/internal/infrastructure/logger"
	"github.com/bnema/mediadesk/internal/infrastructure/metrics"
	"github.com/bnema/mediadesk/internal/port"
)

const (
	msgInvalidStart = "Enter a valid start time in MM:SS or HH:MM:SS format."
	msgInvalidEnd   = "Enter a valid end time in MM:SS, HH:MM:SS or +offset format."
)

// FormError is a user-correctable problem with submitted form input.
type FormError struct {
	Field   string
	Message string
}

func (e *FormError) Error() string {
	return e.Message
}

// JobWatcher is notified about every accepted job.
type JobWatcher interface {
	Watch(jobID string)
}

type SubtitleForm struct {
	File         domain.Upload
	SourceLang   string
	TargetLang   string
	StartTime    string
	EndTime      string
	ShowOriginal bool
	Model        string
}

type DubForm struct {
	File       domain.Upload
	TargetLang string
	Voice      string
	Speed      float64
	StartTime  string
	EndTime    string
}

type YoutubeForm struct {
	URL        string
	SourceLang string
	TargetLang string
	Dub        bool
	Voice      string
	StartTime  string
	EndTime    string
}

// SubmissionService turns raw form input into backend job requests.
type SubmissionService struct {
	backend  port.JobBackend
	history  port.SubmissionStore
	watcher  JobWatcher
	validate *validator.Validate
	now      func() time.Time
	log      zerolog.Logger
}

func NewSubmissionService(backend port.JobBackend, history port.SubmissionStore, watcher JobWatcher) *SubmissionService {
	return &SubmissionService{
		backend:  backend,
		history:  history,
		watcher:  watcher,
		validate: validator.New(),
		now:      time.Now,
		log:      logger.WithComponent("submission"),
	}
}

// NormalizeTimes canonicalizes the start/end fields of a job form. A blank
// start means the beginning of the media; a blank end is omitted.
func NormalizeTimes(start, end string) (string, string, error) {
	s, err := domain.NormalizeInput(start, domain.NormalizeOptions{EmptyValue: domain.DefaultStartTime})
	if err != nil {
		metrics.TimecodeRejectsTotal.WithLabelValues("start_time").Inc()
		return "", "", &FormError{Field: "start_time", Message: msgInvalidStart}
	}
	e, err := domain.NormalizeInput(end, domain.NormalizeOptions{AllowRelative: true})
	if err != nil {
		metrics.TimecodeRejectsTotal.WithLabelValues("end_time").Inc()
		return "", "", &FormError{Field: "end_time", Message: msgInvalidEnd}
	}
	return s, e, nil
}

func (s *SubmissionService) SubmitSubtitle(ctx context.Context, user string, form SubtitleForm) (*domain.Submission, error) {
	kind := domain.JobKindSubtitleTranslation
	start, end, err := NormalizeTimes(form.StartTime, form.EndTime)
	if err != nil {
		return nil, s.reject(kind, err)
	}

	req := &domain.SubtitleJobRequest{
		File:         form.File,
		FileName:     strings.TrimSpace(form.File.Name),
		SourceLang:   normalizeLang(form.SourceLang),
		TargetLang:   normalizeLang(form.TargetLang),
		StartTime:    start,
		EndTime:      end,
		ShowOriginal: form.ShowOriginal,
		Model:        strings.TrimSpace(form.Model),
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, s.reject(kind, toFormError(err))
	}

	res, err := s.backend.SubmitSubtitleJob(ctx, req)
	if err != nil {
		return nil, s.backendFailure(kind, err)
	}
	return s.accept(ctx, user, kind, res.JobID, req.FileName, start, end)
}

func (s *SubmissionService) SubmitDub(ctx context.Context, user string, form DubForm) (*domain.Submission, error) {
	kind := domain.JobKindDubbing
	start, end, err := NormalizeTimes(form.StartTime, form.EndTime)
	if err != nil {
		return nil, s.reject(kind, err)
	}

	speed := form.Speed
	if speed == 0 {
		speed = 1
	}
	req := &domain.DubJobRequest{
		File:       form.File,
		FileName:   strings.TrimSpace(form.File.Name),
		TargetLang: normalizeLang(form.TargetLang),
		Voice:      strings.TrimSpace(form.Voice),
		Speed:      speed,
		StartTime:  start,
		EndTime:    end,
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, s.reject(kind, toFormError(err))
	}

	res, err := s.backend.SubmitDubJob(ctx, req)
	if err != nil {
		return nil, s.backendFailure(kind, err)
	}
	return s.accept(ctx, user, kind, res.JobID, req.FileName, start, end)
}

func (s *SubmissionService) SubmitYoutube(ctx context.Context, user string, form YoutubeForm) (*domain.Submission, error) {
	kind := domain.JobKindYoutubeIngest
	start, end, err := NormalizeTimes(form.StartTime, form.EndTime)
	if err != nil {
		return nil, s.reject(kind, err)
	}

	req := &domain.YoutubeIngestRequest{
		URL:        strings.TrimSpace(form.URL),
		SourceLang: normalizeLang(form.SourceLang),
		TargetLang: normalizeLang(form.TargetLang),
		Dub:        form.Dub,
		Voice:      strings.TrimSpace(form.Voice),
		StartTime:  start,
		EndTime:    end,
	}
	if req.SourceLang == domain.AutoLanguage {
		req.SourceLang = ""
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, s.reject(kind, toFormError(err))
	}

	res, err := s.backend.SubmitYoutubeIngest(ctx, req)
	if err != nil {
		return nil, s.backendFailure(kind, err)
	}
	return s.accept(ctx, user, kind, res.JobID, req.URL, start, end)
}

func (s *SubmissionService) accept(ctx context.Context, user string, kind domain.JobKind, jobID, title, start, end string) (*domain.Submission, error) {
	sub := &domain.Submission{
		ID:          uuid.NewString(),
		JobID:       jobID,
		Kind:        kind,
		Title:       title,
		StartTime:   start,
		EndTime:     end,
		SubmittedBy: user,
		CreatedAt:   s.now().UTC(),
	}
	metrics.SubmissionsTotal.WithLabelValues(string(kind), "accepted").Inc()

	// The backend already owns the job; a failed history write must not hide it.
	if err := s.history.SaveSubmission(ctx, sub); err != nil {
		s.log.Error().Err(err).Str("job_id", jobID).Msg("failed to record submission")
	}
	if s.watcher != nil {
		s.watcher.Watch(jobID)
	}

	s.log.Info().
		Str("job_id", jobID).
		Str("kind", string(kind)).
		Str("title", logger.Sanitize(title)).
		Str("start", start).
		Str("end", end).
		Msg("job submitted")
	return sub, nil
}

func (s *SubmissionService) reject(kind domain.JobKind, err error) error {
	metrics.SubmissionsTotal.WithLabelValues(string(kind), "invalid").Inc()
	return err
}

func (s *SubmissionService) backendFailure(kind domain.JobKind, err error) error {
	metrics.SubmissionsTotal.WithLabelValues(string(kind), "backend_error").Inc()
	s.log.Warn().Err(err).Str("kind", string(kind)).Msg("backend rejected submission")
	return fmt.Errorf("submit %s job: %w", kind, err)
}

func normalizeLang(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	return domain.NormalizeLanguageCode(code)
}

var fieldLabels = map[string]string{
	"FileName":   "file",
	"SourceLang": "source language",
	"TargetLang": "target language",
	"Voice":      "voice",
	"Speed":      "speed",
	"URL":        "YouTube URL",
	"Model":      "model",
}

// toFormError reduces validator output to the first failing field.
func toFormError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}

	fe := verrs[0]
	label, ok := fieldLabels[fe.Field()]
	if !ok {
		label = strings.ToLower(fe.Field())
	}

	var msg string
	switch fe.Tag() {
	case "required", "required_if":
		msg = fmt.Sprintf("Choose a %s.", label)
	case "nefield":
		msg = "Source and target language must differ."
	case "url":
		msg = "Enter a valid URL."
	case "gte", "lte":
		msg = fmt.Sprintf("The %s must be between 0.5 and 2.", label)
	default:
		msg = fmt.Sprintf("Invalid %s.", label)
	}
	return &FormError{Field: fe.Field(), Message: msg}
}
