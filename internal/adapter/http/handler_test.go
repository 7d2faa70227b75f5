package http

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/a-h/templ"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/mediadesk/internal/adapter/http/middleware"
	"github.com/bnema/mediadesk/internal/domain"
	"github.com/bnema/mediadesk/internal/infrastructure/logger"
	"github.com/bnema/mediadesk/internal/service"
)

const srtSample = "1\n00:00:01,000 --> 00:00:02,500\nHello there\n\n2\n00:00:03,000 --> 00:00:04,000\nBye\n"

type formField struct{ name, value string }

// multipartBody writes fields in order and the file part last, the way the
// upload forms are laid out.
func multipartBody(t *testing.T, fields []formField, filename string, content []byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range fields {
		require.NoError(t, mw.WriteField(f.name, f.value))
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestAuth_RedirectsAnonymousVisitors(t *testing.T) {
	tests := []struct {
		name     string
		hasUser  bool
		htmx     bool
		status   int
		location string
		hxTarget string
	}{
		{name: "to login", hasUser: true, status: http.StatusSeeOther, location: "/login"},
		{name: "to setup before first account", hasUser: false, status: http.StatusSeeOther, location: "/setup"},
		{name: "htmx gets HX-Redirect", hasUser: true, htmx: true, status: http.StatusUnauthorized, hxTarget: "/login"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.auth.hasUser = tt.hasUser

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.htmx {
				req.Header.Set("HX-Request", "true")
			}
			rec := env.serve(req)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.location, rec.Header().Get("Location"))
			assert.Equal(t, tt.hxTarget, rec.Header().Get("HX-Redirect"))
		})
	}
}

func TestAuth_RejectsForgedSession(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/files", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "forged"})

	rec := env.serve(req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
}

func TestSetup_CreatesFirstAccount(t *testing.T) {
	env := newTestEnv(t)
	env.auth.hasUser = false

	rec := env.serve(env.form(http.MethodPost, "/setup", map[string]string{
		"username": "admin", "password": testPassword, "confirm": testPassword,
	}))

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	assert.Equal(t, []string{"admin"}, env.auth.created)
	require.NotEmpty(t, rec.Result().Cookies())
	assert.Equal(t, CookieName, rec.Result().Cookies()[0].Name)
	assert.True(t, rec.Result().Cookies()[0].HttpOnly)
}

func TestSetup_RejectsMismatchAndExistingUser(t *testing.T) {
	env := newTestEnv(t)
	env.auth.hasUser = false

	rec := env.serve(env.form(http.MethodPost, "/setup", map[string]string{
		"username": "admin", "password": testPassword, "confirm": "different",
	}))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "Passwords do not match.")

	env.auth.hasUser = true
	rec = env.serve(httptest.NewRequest(http.MethodGet, "/setup", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)

	rec := env.serve(env.form(http.MethodPost, "/login", map[string]string{
		"username": "admin", "password": "wrong",
	}))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid username or password.")

	rec = env.serve(env.form(http.MethodPost, "/login", map[string]string{
		"username": "admin", "password": testPassword,
	}))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	assert.Equal(t, 0, env.srv.failures.Failures("192.0.2.1"))
}

func TestLogin_ThrottlesRepeatedFailures(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 5; i++ {
		rec := env.serve(env.form(http.MethodPost, "/login", map[string]string{
			"username": "admin", "password": "wrong",
		}))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec := env.serve(env.form(http.MethodPost, "/login", map[string]string{
		"username": "admin", "password": testPassword,
	}))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestAccount_ChangesPassword(t *testing.T) {
	env := newTestEnv(t)

	rec := env.serve(env.form(http.MethodPost, "/account", map[string]string{
		"current": "nope", "password": "N3w!password", "confirm": "N3w!password",
	}))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.False(t, env.auth.changed)

	rec = env.serve(env.form(http.MethodPost, "/account", map[string]string{
		"current": testPassword, "password": "N3w!password", "confirm": "N3w!password",
	}))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.auth.changed)
}

func TestCSRF_RejectsMissingToken(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/preferences", strings.NewReader("show_original=true"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: CookieName, Value: validSession})

	rec := env.serve(req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, env.prefs.prefs.ShowOriginal)
}

func TestDashboard(t *testing.T) {
	env := newTestEnv(t)
	env.backend.jobs = []domain.Job{
		{ID: "job-1", Kind: domain.JobKindDubbing, Status: domain.JobStatusRunning, Title: "Pilot episode"},
	}

	rec := env.serve(env.request(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Pilot episode")
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	env.backend.listErr = errors.New("connection refused")
	env.history.subs["job-9"] = &domain.Submission{JobID: "job-9", Kind: domain.JobKindYoutubeIngest, Title: "Local record", SubmittedBy: "admin"}
	rec = env.serve(env.request(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "The job backend is unavailable.")
	assert.Contains(t, rec.Body.String(), `href="/jobs/job-9"`)
	assert.Contains(t, rec.Body.String(), "Local record")
}

func TestJobPage(t *testing.T) {
	env := newTestEnv(t)
	env.backend.jobs = []domain.Job{
		{ID: "job-1", Kind: domain.JobKindSubtitleTranslation, Status: domain.JobStatusRunning, Progress: 35, Title: "Episode 3"},
		{ID: "job-2", Kind: domain.JobKindDubbing, Status: domain.JobStatusCompleted},
	}
	env.history.subs["job-1"] = &domain.Submission{ID: "sub-1", JobID: "job-1", Kind: domain.JobKindSubtitleTranslation}

	t.Run("full page watches unfinished job", func(t *testing.T) {
		rec := env.serve(env.request(http.MethodGet, "/jobs/job-1", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		body := rec.Body.String()
		assert.Contains(t, body, `sse-connect="/events/job-1"`)
		assert.Contains(t, body, "<h1>Episode 3</h1>")
		assert.Contains(t, body, "<title>Episode 3 ")
		assert.Contains(t, body, `<dt>Source</dt><dd>Episode 3</dd>`, "untitled submission falls back to the job title")
		assert.Contains(t, env.jobs.Watched(), "job-1")
	})

	t.Run("htmx gets the status fragment", func(t *testing.T) {
		req := env.request(http.MethodGet, "/jobs/job-1", nil)
		req.Header.Set("HX-Request", "true")
		rec := env.serve(req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, strings.HasPrefix(rec.Body.String(), `<div class="job-status">`))
		assert.NotContains(t, rec.Body.String(), "<html")
	})

	t.Run("finished job is not watched", func(t *testing.T) {
		before := len(env.jobs.Watched())
		rec := env.serve(env.request(http.MethodGet, "/jobs/job-2", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "<h1>Video dubbing</h1>", "untitled job is named by its kind")
		assert.Len(t, env.jobs.Watched(), before)
	})

	t.Run("unknown job", func(t *testing.T) {
		rec := env.serve(env.request(http.MethodGet, "/jobs/nope", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestCancelJob(t *testing.T) {
	env := newTestEnv(t)
	env.backend.jobs = []domain.Job{{ID: "job-1", Status: domain.JobStatusRunning}}

	rec := env.serve(env.request(http.MethodPost, "/jobs/job-1/cancel", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"job-1"}, env.backend.cancelled)
	assert.Contains(t, rec.Body.String(), "cancelled")
	assert.NotContains(t, rec.Body.String(), "/cancel", "no cancel button on a finished job")

	rec = env.serve(env.request(http.MethodPost, "/jobs/missing/cancel", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSubmitSubtitle(t *testing.T) {
	fields := []formField{
		{"source_lang", "en"},
		{"target_lang", "fr"},
		{"start_time", "1:30"},
		{"end_time", "2:00"},
		{"show_original", "true"},
	}

	t.Run("streams the upload and redirects", func(t *testing.T) {
		env := newTestEnv(t)
		body, contentType := multipartBody(t, fields, "../My Show?.srt", []byte(srtSample))
		req := env.request(http.MethodPost, "/subtitles", body)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("HX-Request", "true")

		rec := env.serve(req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "/jobs/job-1", rec.Header().Get("HX-Redirect"))
		require.NotNil(t, env.submissions.subtitle)
		form := env.submissions.subtitle
		assert.Equal(t, "fr", form.TargetLang)
		assert.Equal(t, "1:30", form.StartTime)
		assert.True(t, form.ShowOriginal)
		assert.NotContains(t, form.File.Name, "/")
		assert.Equal(t, srtSample, string(env.submissions.content))
	})

	t.Run("plain form post gets see other", func(t *testing.T) {
		env := newTestEnv(t)
		body, contentType := multipartBody(t, fields, "ep.srt", []byte(srtSample))
		req := env.request(http.MethodPost, "/subtitles", body)
		req.Header.Set("Content-Type", contentType)

		rec := env.serve(req)

		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/jobs/job-1", rec.Header().Get("Location"))
	})

	t.Run("service rejection is shown inline", func(t *testing.T) {
		env := newTestEnv(t)
		env.submissions.err = &service.FormError{Field: "start_time", Message: "Start time: invalid timecode."}
		body, contentType := multipartBody(t, fields, "ep.srt", []byte(srtSample))
		req := env.request(http.MethodPost, "/subtitles", body)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("HX-Request", "true")

		rec := env.serve(req)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, rec.Body.String(), "Start time: invalid timecode.")
		assert.Empty(t, rec.Header().Get("HX-Redirect"))
	})

	t.Run("non subtitle upload is refused before submission", func(t *testing.T) {
		env := newTestEnv(t)
		png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
		body, contentType := multipartBody(t, fields, "cover.srt", png)
		req := env.request(http.MethodPost, "/subtitles", body)
		req.Header.Set("Content-Type", contentType)

		rec := env.serve(req)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, rec.Body.String(), "Upload an SRT, WebVTT or ASS subtitle file.")
		assert.Nil(t, env.submissions.subtitle)
		assert.Contains(t, rec.Body.String(), `value="1:30"`, "form keeps what was typed")
	})

	t.Run("missing file", func(t *testing.T) {
		env := newTestEnv(t)
		body, contentType := multipartBody(t, fields, "", nil)
		req := env.request(http.MethodPost, "/subtitles", body)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("HX-Request", "true")

		rec := env.serve(req)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, rec.Body.String(), "Choose a file to upload.")
	})

	t.Run("oversized upload", func(t *testing.T) {
		env := newTestEnv(t)
		big := []byte(strings.Repeat(srtSample, (2<<20)/len(srtSample)))
		body, contentType := multipartBody(t, fields, "big.srt", big)
		req := env.request(http.MethodPost, "/subtitles", body)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("HX-Request", "true")

		rec := env.serve(req)

		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		assert.Contains(t, rec.Body.String(), "1 MB")
	})
}

func TestSubmitDub_RejectsBadSpeed(t *testing.T) {
	env := newTestEnv(t)
	body, contentType := multipartBody(t, []formField{
		{"target_lang", "de"},
		{"voice", "de-DE-KatjaNeural"},
		{"speed", "fast"},
	}, "clip.mp4", []byte("\x00\x00\x00\x18ftypmp42\x00\x00\x00\x00mp42isom"))
	req := env.request(http.MethodPost, "/dub", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("HX-Request", "true")

	rec := env.serve(req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "The speed must be a number.")
	assert.Nil(t, env.submissions.dub)
}

func TestSubmitYoutube(t *testing.T) {
	env := newTestEnv(t)

	rec := env.serve(env.form(http.MethodPost, "/youtube", map[string]string{
		"url":         "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		"target_lang": "es",
		"dub":         "true",
		"voice":       "es-ES-ElviraNeural",
		"start_time":  "0:10",
	}))

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	require.NotNil(t, env.submissions.youtube)
	assert.True(t, env.submissions.youtube.Dub)
	assert.Equal(t, "0:10", env.submissions.youtube.StartTime)
}

func TestFiles(t *testing.T) {
	env := newTestEnv(t)
	env.backend.files["/media"] = []domain.FileEntry{
		{Name: "show.mkv", Path: "/media/show.mkv", Size: 2048, Kind: domain.FileKindVideo},
	}

	rec := env.serve(env.request(http.MethodGet, "/files?dir=/media/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "show.mkv")
	assert.Equal(t, "/media", env.prefs.prefs.LastDirectory)

	rec = env.serve(env.request(http.MethodGet, "/files", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "show.mkv", "falls back to the last directory")

	rec = env.serve(env.request(http.MethodGet, "/files?dir=/media/../../etc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.serve(env.request(http.MethodGet, "/files?dir=/gone", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteFile(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		status  int
		deleted []string
	}{
		{name: "file", path: "/media/old.srt", status: http.StatusOK, deleted: []string{"/media/old.srt"}},
		{name: "root", path: "/", status: http.StatusBadRequest},
		{name: "traversal", path: "/media/../../x", status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			rec := env.serve(env.request(http.MethodDelete, "/files?path="+tt.path, nil))
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.deleted, env.backend.deleted)
		})
	}
}

func TestSearchMetadata(t *testing.T) {
	env := newTestEnv(t)
	env.metadata.lookup = &service.Lookup{Shows: []domain.ShowMetadata{{ID: 1, Name: "Severance"}}}

	req := env.request(http.MethodGet, "/metadata/search?q=sever", nil)
	req.Header.Set("HX-Request", "true")
	req.Header.Set("HX-Target", "meta-results")
	rec := env.serve(req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Severance")
	assert.Equal(t, []string{"admin|meta-results"}, env.metadata.clients)

	env.metadata.err = service.ErrStaleRequest
	rec = env.serve(req.Clone(req.Context()))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())

	env.metadata.err = errors.New("tvmaze timeout")
	rec = env.serve(req.Clone(req.Context()))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "Lookup failed.")
}

func TestUpdateMetadata(t *testing.T) {
	env := newTestEnv(t)

	rec := env.serve(env.form(http.MethodPost, "/metadata/job-1", map[string]string{
		"title": "Pilot", "show_name": "Severance", "season": "one",
	}))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "Season and episode must be whole numbers.")
	assert.Nil(t, env.metadata.update)

	rec = env.serve(env.form(http.MethodPost, "/metadata/job-1", map[string]string{
		"title": "Pilot", "show_name": "Severance", "season": "1", "episode": "2",
	}))
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, env.metadata.update)
	assert.Equal(t, 1, env.metadata.update.Season)
	assert.Equal(t, 2, env.metadata.update.Episode)

	env.metadata.updErr = &service.FormError{Field: "title", Message: "Title is required."}
	rec = env.serve(env.form(http.MethodPost, "/metadata/job-1", map[string]string{"title": ""}))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "Title is required.")
}

func TestPreviewVoice(t *testing.T) {
	env := newTestEnv(t)
	env.backend.preview = []byte("OggS")

	rec := env.serve(env.form(http.MethodPost, "/voices/preview", map[string]string{"voice": "en-US-AriaNeural"}))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `src="data:audio/ogg;base64,T2dnUw=="`)

	rec = env.serve(env.form(http.MethodPost, "/voices/preview", map[string]string{"voice": ""}))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestSavePreferences(t *testing.T) {
	env := newTestEnv(t)

	rec := env.serve(env.form(http.MethodPost, "/preferences", map[string]string{"show_original": "true"}))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, env.prefs.prefs.ShowOriginal)

	rec = env.serve(env.form(http.MethodPost, "/preferences", map[string]string{"show_original": "maybe"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.True(t, env.prefs.prefs.ShowOriginal)
}

func TestSubtitleForm_UsesStoredPreference(t *testing.T) {
	env := newTestEnv(t)
	env.prefs.prefs.ShowOriginal = true

	rec := env.serve(env.request(http.MethodGet, "/subtitles", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `name="show_original" value="true" checked`)
	assert.Contains(t, rec.Body.String(), `hx-headers='{"`+middleware.CSRFHeaderName+`"`)
}

func TestJobForms_UploadFormsPostThroughHtmx(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/subtitles", "/dub"} {
		t.Run(path, func(t *testing.T) {
			body := env.serve(env.request(http.MethodGet, path, nil)).Body.String()
			assert.Contains(t, body, `<form hx-post="`+path+`"`)
			assert.Contains(t, body, `hx-encoding="multipart/form-data"`)
			assert.NotContains(t, body, `action="`+path+`"`, "a plain submit would lack the CSRF header")
			assert.Contains(t, body, "<noscript>")
		})
	}

	t.Run("/youtube", func(t *testing.T) {
		body := env.serve(env.request(http.MethodGet, "/youtube", nil)).Body.String()
		assert.Contains(t, body, `<form method="post" action="/youtube"`)
		assert.Contains(t, body, `name="csrf_token" value="`+env.csrf+`"`)
	})
}

func TestRenderPage_LogsRenderFailure(t *testing.T) {
	var buf bytes.Buffer
	logger.Configure(logger.Config{Level: "debug", Output: &buf})
	t.Cleanup(func() { logger.Configure(logger.Config{}) })

	failing := templ.ComponentFunc(func(context.Context, io.Writer) error {
		return errors.New("template exploded")
	})
	rec := httptest.NewRecorder()
	renderPage(rec, httptest.NewRequest(http.MethodGet, "/jobs/x", nil), http.StatusOK, failing)

	assert.Equal(t, http.StatusOK, rec.Code)
	out := buf.String()
	assert.Contains(t, out, `"component":"http"`)
	assert.Contains(t, out, `"message":"render failed"`)
	assert.Contains(t, out, "template exploded")
	assert.Contains(t, out, `"path":"/jobs/x"`)
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	rec := env.serve(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}
