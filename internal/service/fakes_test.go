package service

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/bnema/mediadesk/internal/domain"
	"github.com/bnema/mediadesk/internal/port"
)

// fakeBackend implements port.JobBackend with overridable hooks. Unset
// hooks return zero values.
type fakeBackend struct {
	mu sync.Mutex

	submitSubtitle func(*domain.SubtitleJobRequest) (*domain.SubmitResult, error)
	submitDub      func(*domain.DubJobRequest) (*domain.SubmitResult, error)
	submitYoutube  func(*domain.YoutubeIngestRequest) (*domain.SubmitResult, error)
	getJob         func(ctx context.Context, id string) (*domain.Job, error)
	searchShows    func(ctx context.Context, q string) ([]domain.ShowMetadata, error)
	lookupVideo    func(ctx context.Context, url string) (*domain.VideoMetadata, error)
	updateMetadata func(jobID string, u *domain.MetadataUpdate) error

	getJobCalls int
	searchCalls int
}

func (f *fakeBackend) SubmitSubtitleJob(_ context.Context, req *domain.SubtitleJobRequest) (*domain.SubmitResult, error) {
	if f.submitSubtitle == nil {
		return &domain.SubmitResult{JobID: "sub-job"}, nil
	}
	return f.submitSubtitle(req)
}

func (f *fakeBackend) SubmitDubJob(_ context.Context, req *domain.DubJobRequest) (*domain.SubmitResult, error) {
	if f.submitDub == nil {
		return &domain.SubmitResult{JobID: "dub-job"}, nil
	}
	return f.submitDub(req)
}

func (f *fakeBackend) SubmitYoutubeIngest(_ context.Context, req *domain.YoutubeIngestRequest) (*domain.SubmitResult, error) {
	if f.submitYoutube == nil {
		return &domain.SubmitResult{JobID: "yt-job"}, nil
	}
	return f.submitYoutube(req)
}

func (f *fakeBackend) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	f.mu.Lock()
	f.getJobCalls++
	f.mu.Unlock()
	if f.getJob == nil {
		return &domain.Job{ID: id, Kind: domain.JobKindDubbing, Status: domain.JobStatusQueued}, nil
	}
	return f.getJob(ctx, id)
}

func (f *fakeBackend) GetJobCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getJobCalls
}

func (f *fakeBackend) ListJobs(context.Context) ([]domain.Job, error) { return nil, nil }
func (f *fakeBackend) CancelJob(context.Context, string) error        { return nil }

func (f *fakeBackend) ListFiles(context.Context, string) ([]domain.FileEntry, error) {
	return nil, nil
}
func (f *fakeBackend) DeleteFile(context.Context, string) error { return nil }

func (f *fakeBackend) SearchShows(ctx context.Context, q string) ([]domain.ShowMetadata, error) {
	f.mu.Lock()
	f.searchCalls++
	f.mu.Unlock()
	if f.searchShows == nil {
		return nil, nil
	}
	return f.searchShows(ctx, q)
}

func (f *fakeBackend) SearchCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.searchCalls
}

func (f *fakeBackend) LookupVideo(ctx context.Context, url string) (*domain.VideoMetadata, error) {
	if f.lookupVideo == nil {
		return nil, nil
	}
	return f.lookupVideo(ctx, url)
}

func (f *fakeBackend) UpdateMetadata(_ context.Context, jobID string, u *domain.MetadataUpdate) error {
	if f.updateMetadata == nil {
		return nil
	}
	return f.updateMetadata(jobID, u)
}

func (f *fakeBackend) ListVoices(context.Context) ([]domain.Voice, error) { return nil, nil }

func (f *fakeBackend) PreviewVoice(context.Context, string, string) (io.ReadCloser, string, error) {
	return io.NopCloser(strings.NewReader("")), "audio/mpeg", nil
}

var _ port.JobBackend = (*fakeBackend)(nil)

type fakeHistory struct {
	mu      sync.Mutex
	subs    []*domain.Submission
	saveErr error
}

func (f *fakeHistory) SaveSubmission(_ context.Context, s *domain.Submission) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, s)
	return nil
}

func (f *fakeHistory) GetSubmissionByJob(_ context.Context, jobID string) (*domain.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.subs {
		if s.JobID == jobID {
			return s, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeHistory) ListSubmissions(_ context.Context, limit int) ([]*domain.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]*domain.Submission(nil), f.subs...)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeHistory) DeleteSubmission(context.Context, string) error { return nil }

type fakeWatcher struct {
	mu      sync.Mutex
	watched []string
}

func (f *fakeWatcher) Watch(jobID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.watched = append(f.watched, jobID)
}

type fakePrefs struct {
	values map[string]string
	err    error
}

func newFakePrefs() *fakePrefs {
	return &fakePrefs{values: make(map[string]string)}
}

func (f *fakePrefs) Get(_ context.Context, user, key string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	v, ok := f.values[user+"/"+key]
	if !ok {
		return "", port.ErrPreferenceNotSet
	}
	return v, nil
}

func (f *fakePrefs) Set(_ context.Context, user, key, value string) error {
	if f.err != nil {
		return f.err
	}
	f.values[user+"/"+key] = value
	return nil
}

func (f *fakePrefs) Delete(_ context.Context, user, key string) error {
	if f.err != nil {
		return f.err
	}
	delete(f.values, user+"/"+key)
	return nil
}

type recordingBus struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingBus) Publish(_ string, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingBus) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
