package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/a-h/templ"
	"github.com/rs/zerolog"

	"github.com/bnema/mediadesk/internal/adapter/http/templates"
	"github.com/bnema/mediadesk/internal/adapter/http/validation"
	"github.com/bnema/mediadesk/internal/domain"
	"github.com/bnema/mediadesk/internal/infrastructure/logger"
	"github.com/bnema/mediadesk/internal/port"
	"github.com/bnema/mediadesk/internal/service"
)

const (
	msgBackendDown = "The job backend is unavailable. Try again in a moment."
	recentLimit    = 20
)

type SubmissionService interface {
	SubmitSubtitle(ctx context.Context, user string, form service.SubtitleForm) (*domain.Submission, error)
	SubmitDub(ctx context.Context, user string, form service.DubForm) (*domain.Submission, error)
	SubmitYoutube(ctx context.Context, user string, form service.YoutubeForm) (*domain.Submission, error)
}

type MetadataService interface {
	Search(ctx context.Context, client, query, url string) (*service.Lookup, error)
	Update(ctx context.Context, jobID string, update *domain.MetadataUpdate) error
}

type PreferenceService interface {
	Load(ctx context.Context, user string) (service.Preferences, error)
	SetShowOriginal(ctx context.Context, user string, show bool) error
	SetLastDirectory(ctx context.Context, user, dir string) error
}

// JobTracker follows backend jobs on behalf of open pages.
type JobTracker interface {
	Watch(jobID string)
	Last(jobID string) *domain.Job
	Refresh(ctx context.Context, jobID string) (*domain.Job, error)
}

var languages = []string{"en", "fr", "de", "es", "it", "pt-BR", "nl", "pl", "ru", "ja", "ko", "zh"}

type Handlers struct {
	submissions SubmissionService
	metadata    MetadataService
	prefs       PreferenceService
	backend     port.JobBackend
	history     port.SubmissionStore
	jobs        JobTracker
	voices      []domain.Voice
	maxUpload   int64
	log         zerolog.Logger
}

func NewHandlers(deps Deps, opts Options) *Handlers {
	return &Handlers{
		submissions: deps.Submissions,
		metadata:    deps.Metadata,
		prefs:       deps.Preferences,
		backend:     deps.Backend,
		history:     deps.History,
		jobs:        deps.Jobs,
		voices:      opts.Voices,
		maxUpload:   int64(opts.MaxUploadSizeMB) << 20,
		log:         logger.WithComponent("http"),
	}
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

func renderPage(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := c.Render(r.Context(), w); err != nil && r.Context().Err() == nil {
		log := logger.WithComponent("http")
		log.Error().Err(err).Str("path", r.URL.Path).Msg("render failed")
	}
}

func (h *Handlers) Dashboard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobs, err := h.backend.ListJobs(r.Context())
		if err != nil {
			h.log.Error().Err(err).Msg("list jobs")
			recent, herr := h.history.ListSubmissions(r.Context(), recentLimit)
			if herr != nil {
				h.log.Warn().Err(herr).Msg("list submissions")
			}
			renderPage(w, r, http.StatusOK, templates.Dashboard(nil, recent, msgBackendDown))
			return
		}
		renderPage(w, r, http.StatusOK, templates.Dashboard(jobs, nil, ""))
	}
}

// JobPage renders a job's status page, or only its status fragment for
// HTMX requests. Unfinished jobs are handed to the tracker so the page's
// event stream has something to follow.
func (h *Handlers) JobPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		job, err := h.jobs.Refresh(r.Context(), id)
		if err != nil {
			h.jobError(w, r, id, err)
			return
		}
		if !job.Status.IsTerminal() {
			h.jobs.Watch(id)
		}

		if isHTMX(r) {
			renderPage(w, r, http.StatusOK, templates.JobStatus(*job))
			return
		}

		sub, err := h.history.GetSubmissionByJob(r.Context(), id)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			h.log.Warn().Err(err).Str("job_id", id).Msg("load submission record")
		}
		meta := templates.MetadataView{Title: job.Title}
		renderPage(w, r, http.StatusOK, templates.JobPage(*job, sub, meta))
	}
}

func (h *Handlers) CancelJob() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if err := h.backend.CancelJob(r.Context(), id); err != nil {
			h.jobError(w, r, id, err)
			return
		}
		h.log.Info().Str("job_id", id).Str("user", username(r)).Msg("job cancelled")

		job, err := h.jobs.Refresh(r.Context(), id)
		if err != nil {
			h.jobError(w, r, id, err)
			return
		}
		renderPage(w, r, http.StatusOK, templates.JobStatus(*job))
	}
}

func (h *Handlers) jobError(w http.ResponseWriter, r *http.Request, id string, err error) {
	status, msg := http.StatusBadGateway, msgBackendDown
	if errors.Is(err, domain.ErrNotFound) {
		status, msg = http.StatusNotFound, "Job not found."
	} else {
		h.log.Error().Err(err).Str("job_id", id).Msg("job request failed")
	}
	if isHTMX(r) {
		renderPage(w, r, status, templates.ErrorInline(msg))
		return
	}
	renderPage(w, r, status, templates.ErrorPage(http.StatusText(status), msg))
}

// Files lists a backend directory. Without ?dir= the user's last visited
// directory is shown.
func (h *Handlers) Files() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := username(r)
		dir := r.URL.Query().Get("dir")
		if dir == "" {
			if prefs, err := h.prefs.Load(r.Context(), user); err == nil {
				dir = prefs.LastDirectory
			} else {
				h.log.Warn().Err(err).Msg("load preferences")
			}
		}

		clean, err := validation.CleanBackendPath(dir)
		if err != nil {
			renderPage(w, r, http.StatusBadRequest, templates.FilesPage("/", nil, "Invalid directory."))
			return
		}

		entries, err := h.backend.ListFiles(r.Context(), clean)
		if err != nil {
			status, msg := http.StatusBadGateway, msgBackendDown
			if errors.Is(err, domain.ErrNotFound) {
				status, msg = http.StatusNotFound, "Directory not found."
			} else {
				h.log.Error().Err(err).Str("dir", logger.Sanitize(clean)).Msg("list files")
			}
			renderPage(w, r, status, templates.FilesPage(clean, nil, msg))
			return
		}

		if err := h.prefs.SetLastDirectory(r.Context(), user, clean); err != nil {
			h.log.Warn().Err(err).Msg("save last directory")
		}
		renderPage(w, r, http.StatusOK, templates.FilesPage(clean, entries, ""))
	}
}

// DeleteFile removes one backend file. The empty response replaces the row.
func (h *Handlers) DeleteFile() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := validation.CleanBackendPath(r.URL.Query().Get("path"))
		if err != nil || p == "/" {
			renderPage(w, r, http.StatusBadRequest, templates.ErrorInline("Invalid path."))
			return
		}

		if err := h.backend.DeleteFile(r.Context(), p); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				renderPage(w, r, http.StatusNotFound, templates.ErrorInline("File not found."))
				return
			}
			h.log.Error().Err(err).Str("path", logger.Sanitize(p)).Msg("delete file")
			renderPage(w, r, http.StatusBadGateway, templates.ErrorInline(msgBackendDown))
			return
		}

		h.log.Info().Str("path", logger.Sanitize(p)).Str("user", username(r)).Msg("file deleted")
		w.WriteHeader(http.StatusOK)
	}
}
