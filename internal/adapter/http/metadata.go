package http

import (
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/bnema/mediadesk/internal/adapter/http/templates"
	"github.com/bnema/mediadesk/internal/domain"
	"github.com/bnema/mediadesk/internal/service"
)

const (
	maxPreviewBytes = 4 << 20
	previewText     = "Hello! This is how I sound when I read your subtitles."
)

// SearchMetadata serves show and video typeahead. Each input gets its own
// sequence, so a slower earlier lookup is answered with 204 and never
// replaces newer results.
func (h *Handlers) SearchMetadata() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		client := username(r) + "|" + r.Header.Get("HX-Target")

		res, err := h.metadata.Search(r.Context(), client, q.Get("q"), q.Get("url"))
		switch {
		case errors.Is(err, service.ErrStaleRequest):
			w.WriteHeader(http.StatusNoContent)
			return
		case err != nil:
			if r.Context().Err() != nil {
				return
			}
			h.log.Warn().Err(err).Msg("metadata search")
			renderPage(w, r, http.StatusBadGateway, templates.ErrorInline("Lookup failed."))
			return
		}
		renderPage(w, r, http.StatusOK, templates.SearchResults(res.Shows, res.Video))
	}
}

func (h *Handlers) UpdateMetadata() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		view := templates.MetadataView{
			Title:       r.PostFormValue("title"),
			ShowName:    r.PostFormValue("show_name"),
			Description: r.PostFormValue("description"),
		}

		var convErr error
		view.Season, convErr = atoiOrZero(r.PostFormValue("season"))
		if convErr == nil {
			view.Episode, convErr = atoiOrZero(r.PostFormValue("episode"))
		}
		if convErr != nil {
			view.Error = "Season and episode must be whole numbers."
			renderPage(w, r, http.StatusUnprocessableEntity, templates.MetadataEditor(id, view))
			return
		}

		update := &domain.MetadataUpdate{
			Title:       view.Title,
			ShowName:    view.ShowName,
			Season:      view.Season,
			Episode:     view.Episode,
			Description: strings.TrimSpace(view.Description),
		}
		err := h.metadata.Update(r.Context(), id, update)

		var formErr *service.FormError
		switch {
		case err == nil:
			view.Title, view.ShowName = update.Title, update.ShowName
			view.Saved = true
			renderPage(w, r, http.StatusOK, templates.MetadataEditor(id, view))
		case errors.As(err, &formErr):
			view.Error = formErr.Message
			renderPage(w, r, http.StatusUnprocessableEntity, templates.MetadataEditor(id, view))
		default:
			h.log.Error().Err(err).Str("job_id", id).Msg("update metadata")
			view.Error = "Could not save the metadata."
			renderPage(w, r, http.StatusBadGateway, templates.MetadataEditor(id, view))
		}
	}
}

func atoiOrZero(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

// PreviewVoice fetches a short sample from the backend and inlines it as a
// data URI in an audio element.
func (h *Handlers) PreviewVoice() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		voice := strings.TrimSpace(r.FormValue("voice"))
		if voice == "" {
			renderPage(w, r, http.StatusUnprocessableEntity, templates.ErrorInline("Choose a voice first."))
			return
		}

		body, contentType, err := h.backend.PreviewVoice(r.Context(), voice, previewText)
		if err != nil {
			h.log.Warn().Err(err).Str("voice", voice).Msg("voice preview")
			renderPage(w, r, http.StatusBadGateway, templates.ErrorInline("Preview unavailable."))
			return
		}
		defer body.Close() //nolint:errcheck

		audio, err := io.ReadAll(io.LimitReader(body, maxPreviewBytes+1))
		if err != nil || len(audio) > maxPreviewBytes {
			renderPage(w, r, http.StatusBadGateway, templates.ErrorInline("Preview unavailable."))
			return
		}
		if !strings.HasPrefix(contentType, "audio/") {
			contentType = "audio/mpeg"
		}
		if i := strings.IndexByte(contentType, ';'); i >= 0 {
			contentType = contentType[:i]
		}

		uri := "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(audio)
		renderPage(w, r, http.StatusOK, templates.VoicePreview(uri))
	}
}

// SavePreferences stores toggles changed on a form without submitting it.
func (h *Handlers) SavePreferences() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := r.FormValue("show_original")
		if raw == "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		show, err := strconv.ParseBool(raw)
		if err != nil {
			http.Error(w, "invalid show_original", http.StatusBadRequest)
			return
		}
		if err := h.prefs.SetShowOriginal(r.Context(), username(r), show); err != nil {
			h.log.Error().Err(err).Msg("save preference")
			http.Error(w, "could not save preference", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
