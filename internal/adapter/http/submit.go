package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/a-h/templ"

	"github.com/bnema/mediadesk/internal/adapter/http/templates"
	"github.com/bnema/mediadesk/internal/adapter/http/validation"
	"github.com/bnema/mediadesk/internal/domain"
	"github.com/bnema/mediadesk/internal/service"
)

const maxFieldBytes = 64 << 10

var errFieldTooLarge = errors.New("form field too large")

// readMultipart collects the text fields that precede the "file" part and
// returns that part unread, so the upload can be streamed to the backend.
// A nil part means the form carried no file.
func readMultipart(r *http.Request) (url.Values, *multipart.Part, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, nil, err
	}

	vals := url.Values{}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return vals, nil, nil
		}
		if err != nil {
			return vals, nil, err
		}

		name := part.FormName()
		if name == "file" {
			return vals, part, nil
		}
		if name == "" {
			_ = part.Close()
			continue
		}
		b, err := io.ReadAll(io.LimitReader(part, maxFieldBytes+1))
		_ = part.Close()
		if err != nil {
			return vals, nil, err
		}
		if len(b) > maxFieldBytes {
			return vals, nil, fmt.Errorf("%w: %s", errFieldTooLarge, name)
		}
		vals.Add(name, string(b))
	}
}

func (h *Handlers) loadVoices(ctx context.Context) []domain.Voice {
	remote, err := h.backend.ListVoices(ctx)
	if err != nil {
		h.log.Warn().Err(err).Msg("list voices")
	}
	return domain.MergeVoices(h.voices, remote)
}

// voicesFor narrows voices to lang, falling back to all of them.
func voicesFor(voices []domain.Voice, lang string) []domain.Voice {
	if filtered := domain.VoicesForLanguage(voices, lang); len(filtered) > 0 {
		return filtered
	}
	return voices
}

func (h *Handlers) SubtitleForm() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view := templates.SubtitleView{Languages: languages}
		if prefs, err := h.prefs.Load(r.Context(), username(r)); err == nil {
			view.ShowOriginal = prefs.ShowOriginal
		} else {
			h.log.Warn().Err(err).Msg("load preferences")
		}
		renderPage(w, r, http.StatusOK, templates.SubtitlePage(view))
	}
}

func (h *Handlers) DubForm() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		renderPage(w, r, http.StatusOK, templates.DubPage(templates.DubView{
			Languages: languages,
			Voices:    h.loadVoices(r.Context()),
		}))
	}
}

func (h *Handlers) YoutubeForm() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		renderPage(w, r, http.StatusOK, templates.YoutubePage(templates.YoutubeView{
			URL:       r.URL.Query().Get("url"),
			Languages: languages,
			Voices:    h.loadVoices(r.Context()),
		}))
	}
}

func (h *Handlers) SubmitSubtitle() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
		vals, part, err := readMultipart(r)

		view := templates.SubtitleView{
			SourceLang:   vals.Get("source_lang"),
			TargetLang:   vals.Get("target_lang"),
			StartTime:    vals.Get("start_time"),
			EndTime:      vals.Get("end_time"),
			ShowOriginal: vals.Get("show_original") == "true",
			Model:        vals.Get("model"),
			Languages:    languages,
		}
		page := func(msg string) templ.Component {
			view.Error = msg
			return templates.SubtitlePage(view)
		}

		upload, err := h.openUpload(part, err, domain.JobKindSubtitleTranslation)
		if err != nil {
			h.submitFailed(w, r, err, page)
			return
		}
		defer part.Close() //nolint:errcheck

		sub, err := h.submissions.SubmitSubtitle(r.Context(), username(r), service.SubtitleForm{
			File:         upload,
			SourceLang:   view.SourceLang,
			TargetLang:   view.TargetLang,
			StartTime:    view.StartTime,
			EndTime:      view.EndTime,
			ShowOriginal: view.ShowOriginal,
			Model:        view.Model,
		})
		h.finishSubmit(w, r, sub, err, page)
	}
}

func (h *Handlers) SubmitDub() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
		vals, part, err := readMultipart(r)

		view := templates.DubView{
			TargetLang: vals.Get("target_lang"),
			Voice:      vals.Get("voice"),
			Speed:      vals.Get("speed"),
			StartTime:  vals.Get("start_time"),
			EndTime:    vals.Get("end_time"),
			Languages:  languages,
		}
		page := func(msg string) templ.Component {
			view.Error = msg
			view.Voices = voicesFor(h.loadVoices(r.Context()), view.TargetLang)
			return templates.DubPage(view)
		}

		var speed float64
		if s := strings.TrimSpace(view.Speed); s != "" && err == nil {
			if speed, err = strconv.ParseFloat(s, 64); err != nil {
				err = &service.FormError{Field: "speed", Message: "The speed must be a number."}
			}
		}

		upload, err := h.openUpload(part, err, domain.JobKindDubbing)
		if err != nil {
			h.submitFailed(w, r, err, page)
			return
		}
		defer part.Close() //nolint:errcheck

		sub, err := h.submissions.SubmitDub(r.Context(), username(r), service.DubForm{
			File:       upload,
			TargetLang: view.TargetLang,
			Voice:      view.Voice,
			Speed:      speed,
			StartTime:  view.StartTime,
			EndTime:    view.EndTime,
		})
		h.finishSubmit(w, r, sub, err, page)
	}
}

func (h *Handlers) SubmitYoutube() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view := templates.YoutubeView{
			URL:        r.PostFormValue("url"),
			SourceLang: r.PostFormValue("source_lang"),
			TargetLang: r.PostFormValue("target_lang"),
			Dub:        r.PostFormValue("dub") == "true",
			Voice:      r.PostFormValue("voice"),
			StartTime:  r.PostFormValue("start_time"),
			EndTime:    r.PostFormValue("end_time"),
			Languages:  languages,
		}
		page := func(msg string) templ.Component {
			view.Error = msg
			view.Voices = voicesFor(h.loadVoices(r.Context()), view.TargetLang)
			return templates.YoutubePage(view)
		}

		sub, err := h.submissions.SubmitYoutube(r.Context(), username(r), service.YoutubeForm{
			URL:        view.URL,
			SourceLang: view.SourceLang,
			TargetLang: view.TargetLang,
			Dub:        view.Dub,
			Voice:      view.Voice,
			StartTime:  view.StartTime,
			EndTime:    view.EndTime,
		})
		h.finishSubmit(w, r, sub, err, page)
	}
}

// openUpload checks the streamed file part before it is handed on. readErr is
// whatever went wrong while reading the preceding fields.
func (h *Handlers) openUpload(part *multipart.Part, readErr error, kind domain.JobKind) (domain.Upload, error) {
	if readErr != nil {
		if part != nil {
			_ = part.Close()
		}
		return domain.Upload{}, readErr
	}
	if part == nil {
		return domain.Upload{}, &service.FormError{Field: "file", Message: "Choose a file to upload."}
	}

	sniffed, err := validation.SniffUpload(part, kind)
	switch {
	case errors.Is(err, validation.ErrEmptyFile):
		_ = part.Close()
		return domain.Upload{}, &service.FormError{Field: "file", Message: "Choose a file to upload."}
	case errors.Is(err, validation.ErrDisallowedFileType):
		_ = part.Close()
		msg := "Upload a video or audio file."
		if kind == domain.JobKindSubtitleTranslation {
			msg = "Upload an SRT, WebVTT or ASS subtitle file."
		}
		return domain.Upload{}, &service.FormError{Field: "file", Message: msg}
	case err != nil:
		_ = part.Close()
		return domain.Upload{}, err
	}

	return domain.Upload{
		Name:    validation.SanitizeFilename(part.FileName()),
		Content: sniffed.Reader,
	}, nil
}

func (h *Handlers) finishSubmit(w http.ResponseWriter, r *http.Request, sub *domain.Submission, err error, page func(string) templ.Component) {
	if err != nil {
		h.submitFailed(w, r, err, page)
		return
	}
	target := "/jobs/" + url.PathEscape(sub.JobID)
	if isHTMX(r) {
		w.Header().Set("HX-Redirect", target)
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// submitFailed answers a rejected submission. HTMX requests get the message
// swapped into the form's error slot, others the whole form again.
func (h *Handlers) submitFailed(w http.ResponseWriter, r *http.Request, err error, page func(string) templ.Component) {
	var (
		formErr  *service.FormError
		tooLarge *http.MaxBytesError
		status   int
		msg      string
	)
	switch {
	case errors.As(err, &formErr):
		status, msg = http.StatusUnprocessableEntity, formErr.Message
	case errors.As(err, &tooLarge):
		status = http.StatusRequestEntityTooLarge
		msg = fmt.Sprintf("The upload exceeds the %d MB limit.", h.maxUpload>>20)
	case errors.Is(err, errFieldTooLarge), errors.Is(err, http.ErrNotMultipart), errors.Is(err, multipart.ErrMessageTooLarge):
		status, msg = http.StatusBadRequest, "The form could not be read."
	case r.Context().Err() != nil:
		return
	default:
		h.log.Error().Err(err).Str("path", r.URL.Path).Msg("submission failed")
		status, msg = http.StatusBadGateway, msgBackendDown
	}

	if isHTMX(r) {
		renderPage(w, r, status, templates.ErrorInline(msg))
		return
	}
	renderPage(w, r, status, page(msg))
}
