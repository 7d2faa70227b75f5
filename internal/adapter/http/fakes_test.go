package http

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bnema/mediadesk/internal/adapter/http/middleware"
	"github.com/bnema/mediadesk/internal/domain"
	"github.com/bnema/mediadesk/internal/service"
)

const (
	testSecret   = "test-secret"
	validSession = "valid-session"
	testPassword = "Str0ng!pass"
)

type fakeAuth struct {
	hasUser bool
	created []string
	changed bool
}

func (f *fakeAuth) HasUser(context.Context) (bool, error) { return f.hasUser, nil }

func (f *fakeAuth) CreateUser(_ context.Context, username, password string) error {
	if f.hasUser {
		return service.ErrUserExists
	}
	if len(password) < 8 {
		return service.ErrWeakPassword
	}
	f.created = append(f.created, username)
	f.hasUser = true
	return nil
}

func (f *fakeAuth) Login(_ context.Context, username, password string) (string, error) {
	if username == "admin" && password == testPassword {
		return validSession, nil
	}
	return "", service.ErrInvalidCreds
}

func (f *fakeAuth) ValidateToken(_ context.Context, token string) (*domain.User, error) {
	if token != validSession {
		return nil, service.ErrInvalidToken
	}
	return &domain.User{ID: 1, Username: "admin"}, nil
}

func (f *fakeAuth) ChangePassword(_ context.Context, _, oldPassword, _ string) error {
	if oldPassword != testPassword {
		return service.ErrWrongPassword
	}
	f.changed = true
	return nil
}

type fakeSubmissions struct {
	mu       sync.Mutex
	subtitle *service.SubtitleForm
	dub      *service.DubForm
	youtube  *service.YoutubeForm
	content  []byte
	err      error
}

func (f *fakeSubmissions) accept(kind domain.JobKind, upload domain.Upload) (*domain.Submission, error) {
	if upload.Content != nil {
		b, err := io.ReadAll(upload.Content)
		if err != nil {
			return nil, err
		}
		f.content = b
	}
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Submission{ID: "sub-1", JobID: "job-1", Kind: kind}, nil
}

func (f *fakeSubmissions) SubmitSubtitle(_ context.Context, _ string, form service.SubtitleForm) (*domain.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subtitle = &form
	return f.accept(domain.JobKindSubtitleTranslation, form.File)
}

func (f *fakeSubmissions) SubmitDub(_ context.Context, _ string, form service.DubForm) (*domain.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dub = &form
	return f.accept(domain.JobKindDubbing, form.File)
}

func (f *fakeSubmissions) SubmitYoutube(_ context.Context, _ string, form service.YoutubeForm) (*domain.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.youtube = &form
	return f.accept(domain.JobKindYoutubeIngest, domain.Upload{})
}

type fakeMetadata struct {
	lookup  *service.Lookup
	err     error
	update  *domain.MetadataUpdate
	updErr  error
	clients []string
}

func (f *fakeMetadata) Search(_ context.Context, client, _, _ string) (*service.Lookup, error) {
	f.clients = append(f.clients, client)
	return f.lookup, f.err
}

func (f *fakeMetadata) Update(_ context.Context, _ string, update *domain.MetadataUpdate) error {
	f.update = update
	return f.updErr
}

type fakePrefs struct {
	prefs service.Preferences
}

func (f *fakePrefs) Load(context.Context, string) (service.Preferences, error) { return f.prefs, nil }

func (f *fakePrefs) SetShowOriginal(_ context.Context, _ string, show bool) error {
	f.prefs.ShowOriginal = show
	return nil
}

func (f *fakePrefs) SetLastDirectory(_ context.Context, _, dir string) error {
	f.prefs.LastDirectory = dir
	return nil
}

type fakeBackend struct {
	mu        sync.Mutex
	getErr    error
	jobs      []domain.Job
	listErr   error
	cancelled []string
	files     map[string][]domain.FileEntry
	deleted   []string
	voices    []domain.Voice
	preview   []byte
}

func (f *fakeBackend) SubmitSubtitleJob(context.Context, *domain.SubtitleJobRequest) (*domain.SubmitResult, error) {
	return &domain.SubmitResult{JobID: "job-1"}, nil
}

func (f *fakeBackend) SubmitDubJob(context.Context, *domain.DubJobRequest) (*domain.SubmitResult, error) {
	return &domain.SubmitResult{JobID: "job-1"}, nil
}

func (f *fakeBackend) SubmitYoutubeIngest(context.Context, *domain.YoutubeIngestRequest) (*domain.SubmitResult, error) {
	return &domain.SubmitResult{JobID: "job-1"}, nil
}

// failGets makes GetJob return err until it is called again with nil.
func (f *fakeBackend) failGets(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getErr = err
}

func (f *fakeBackend) setJob(job domain.Job) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.jobs {
		if f.jobs[i].ID == job.ID {
			f.jobs[i] = job
			return
		}
	}
	f.jobs = append(f.jobs, job)
}

func (f *fakeBackend) GetJob(_ context.Context, id string) (*domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, j := range f.jobs {
		if j.ID == id {
			j := j
			return &j, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeBackend) ListJobs(context.Context) ([]domain.Job, error) { return f.jobs, f.listErr }

func (f *fakeBackend) CancelJob(_ context.Context, id string) error {
	for i := range f.jobs {
		if f.jobs[i].ID == id {
			f.jobs[i].Status = domain.JobStatusCancelled
			f.cancelled = append(f.cancelled, id)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (f *fakeBackend) ListFiles(_ context.Context, dir string) ([]domain.FileEntry, error) {
	entries, ok := f.files[dir]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return entries, nil
}

func (f *fakeBackend) DeleteFile(_ context.Context, path string) error {
	f.deleted = append(f.deleted, path)
	return nil
}

func (f *fakeBackend) SearchShows(context.Context, string) ([]domain.ShowMetadata, error) {
	return nil, nil
}

func (f *fakeBackend) LookupVideo(context.Context, string) (*domain.VideoMetadata, error) {
	return nil, nil
}

func (f *fakeBackend) UpdateMetadata(context.Context, string, *domain.MetadataUpdate) error {
	return nil
}

func (f *fakeBackend) ListVoices(context.Context) ([]domain.Voice, error) { return f.voices, nil }

func (f *fakeBackend) PreviewVoice(context.Context, string, string) (io.ReadCloser, string, error) {
	return io.NopCloser(bytes.NewReader(f.preview)), "audio/ogg; codecs=opus", nil
}

type fakeHistory struct {
	subs map[string]*domain.Submission
}

func (f *fakeHistory) SaveSubmission(_ context.Context, s *domain.Submission) error {
	f.subs[s.JobID] = s
	return nil
}

func (f *fakeHistory) GetSubmissionByJob(_ context.Context, jobID string) (*domain.Submission, error) {
	if s, ok := f.subs[jobID]; ok {
		return s, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeHistory) ListSubmissions(context.Context, int) ([]*domain.Submission, error) {
	out := make([]*domain.Submission, 0, len(f.subs))
	for _, s := range f.subs {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeHistory) DeleteSubmission(context.Context, string) error { return nil }

// fakeJobs serves jobs straight from the fake backend and records watches.
type fakeJobs struct {
	mu      sync.Mutex
	backend *fakeBackend
	last    map[string]*domain.Job
	watched []string
}

func (f *fakeJobs) Watch(jobID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.watched = append(f.watched, jobID)
}

func (f *fakeJobs) Watched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.watched...)
}

func (f *fakeJobs) Last(jobID string) *domain.Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last[jobID]
}

func (f *fakeJobs) Refresh(ctx context.Context, jobID string) (*domain.Job, error) {
	return f.backend.GetJob(ctx, jobID)
}

type testEnv struct {
	srv         *Server
	auth        *fakeAuth
	submissions *fakeSubmissions
	metadata    *fakeMetadata
	prefs       *fakePrefs
	backend     *fakeBackend
	history     *fakeHistory
	jobs        *fakeJobs
	events      *service.EventBus
	csrf        string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	backend := &fakeBackend{files: map[string][]domain.FileEntry{}}
	env := &testEnv{
		auth:        &fakeAuth{hasUser: true},
		submissions: &fakeSubmissions{},
		metadata:    &fakeMetadata{lookup: &service.Lookup{}},
		prefs:       &fakePrefs{},
		backend:     backend,
		history:     &fakeHistory{subs: map[string]*domain.Submission{}},
		jobs:        &fakeJobs{backend: backend, last: map[string]*domain.Job{}},
		events:      service.NewEventBus(),
	}
	env.srv = NewServer(Deps{
		Auth:        env.auth,
		Submissions: env.submissions,
		Metadata:    env.metadata,
		Preferences: env.prefs,
		Backend:     env.backend,
		History:     env.history,
		Jobs:        env.jobs,
		Events:      env.events,
	}, Options{AuthSecret: testSecret, MaxUploadSizeMB: 1, Voices: domain.BuiltinVoices})
	env.srv.backoff.Min = 0
	env.srv.backoff.Max = 0

	token, err := middleware.NewCSRF(testSecret, false).NewToken()
	require.NoError(t, err)
	env.csrf = token
	return env
}

// request builds a signed-in request carrying a valid CSRF token.
func (e *testEnv) request(method, target string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, target, body)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: validSession})
	req.AddCookie(&http.Cookie{Name: middleware.CSRFCookieName, Value: e.csrf})
	req.Header.Set(middleware.CSRFHeaderName, e.csrf)
	return req
}

func (e *testEnv) form(method, target string, values map[string]string) *http.Request {
	form := url.Values{}
	for k, v := range values {
		form.Set(k, v)
	}
	req := e.request(method, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func (e *testEnv) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	return rec
}
