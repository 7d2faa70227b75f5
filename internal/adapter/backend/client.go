package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/bnema/mediadesk/config"
	"github.com/bnema/mediadesk/internal/domain"
	"github.com/bnema/mediadesk/internal/infrastructure/logger"
	"github.com/bnema/mediadesk/internal/infrastructure/metrics"
	"github.com/bnema/mediadesk/internal/port"
)

// maxJSONBody caps how much of a JSON response is read into memory.
const maxJSONBody = 8 << 20

// APIError is a non-2xx answer from the backend.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a backend 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// Client talks to the job backend's REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	validate   *validator.Validate
	log        zerolog.Logger
}

func NewClient(cfg config.BackendConfig) *Client {
	limit := rate.Inf
	if cfg.RequestsPerS > 0 {
		limit = rate.Limit(cfg.RequestsPerS)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		limiter:    rate.NewLimiter(limit, burst),
		validate:   validator.New(),
		log:        logger.WithComponent("backend"),
	}
}

type jobsEnvelope struct {
	Jobs []domain.Job `json:"jobs"`
}

type filesEnvelope struct {
	Entries []domain.FileEntry `json:"entries"`
}

type showsEnvelope struct {
	Results []domain.ShowMetadata `json:"results"`
}

type voicesEnvelope struct {
	Voices []domain.Voice `json:"voices"`
}

type errorBody struct {
	Detail string `json:"detail"`
	Error  struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) SubmitSubtitleJob(ctx context.Context, req *domain.SubtitleJobRequest) (*domain.SubmitResult, error) {
	fields := []formField{
		{"source_lang", req.SourceLang},
		{"target_lang", req.TargetLang},
		{"start_time", req.StartTime},
		{"end_time", req.EndTime},
		{"show_original", strconv.FormatBool(req.ShowOriginal)},
		{"model", req.Model},
	}
	var out domain.SubmitResult
	if err := c.postMultipart(ctx, "submit_subtitle", "/api/subtitles/jobs", fields, req.File, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SubmitDubJob(ctx context.Context, req *domain.DubJobRequest) (*domain.SubmitResult, error) {
	fields := []formField{
		{"target_lang", req.TargetLang},
		{"voice", req.Voice},
		{"speed", strconv.FormatFloat(req.Speed, 'f', -1, 64)},
		{"start_time", req.StartTime},
		{"end_time", req.EndTime},
	}
	var out domain.SubmitResult
	if err := c.postMultipart(ctx, "submit_dub", "/api/dub/jobs", fields, req.File, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SubmitYoutubeIngest(ctx context.Context, req *domain.YoutubeIngestRequest) (*domain.SubmitResult, error) {
	var out domain.SubmitResult
	if err := c.doJSON(ctx, "submit_youtube", http.MethodPost, "/api/youtube/dub", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	var job domain.Job
	if err := c.doJSON(ctx, "get_job", http.MethodGet, "/api/jobs/"+url.PathEscape(id), nil, &job); err != nil {
		if IsNotFound(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

func (c *Client) ListJobs(ctx context.Context) ([]domain.Job, error) {
	var env jobsEnvelope
	if err := c.doJSON(ctx, "list_jobs", http.MethodGet, "/api/jobs", nil, &env); err != nil {
		return nil, err
	}
	if err := validateSlice(c.validate, env.Jobs); err != nil {
		return nil, err
	}
	return env.Jobs, nil
}

func (c *Client) CancelJob(ctx context.Context, id string) error {
	err := c.doJSON(ctx, "cancel_job", http.MethodPost, "/api/jobs/"+url.PathEscape(id)+"/cancel", nil, nil)
	if IsNotFound(err) {
		return domain.ErrNotFound
	}
	return err
}

func (c *Client) ListFiles(ctx context.Context, dir string) ([]domain.FileEntry, error) {
	var env filesEnvelope
	path := "/api/files?" + url.Values{"dir": {dir}}.Encode()
	if err := c.doJSON(ctx, "list_files", http.MethodGet, path, nil, &env); err != nil {
		if IsNotFound(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if err := validateSlice(c.validate, env.Entries); err != nil {
		return nil, err
	}
	return env.Entries, nil
}

func (c *Client) DeleteFile(ctx context.Context, path string) error {
	err := c.doJSON(ctx, "delete_file", http.MethodDelete, "/api/files?"+url.Values{"path": {path}}.Encode(), nil, nil)
	if IsNotFound(err) {
		return domain.ErrNotFound
	}
	return err
}

func (c *Client) SearchShows(ctx context.Context, query string) ([]domain.ShowMetadata, error) {
	var env showsEnvelope
	path := "/api/metadata/tvmaze?" + url.Values{"q": {query}}.Encode()
	if err := c.doJSON(ctx, "search_shows", http.MethodGet, path, nil, &env); err != nil {
		return nil, err
	}
	if err := validateSlice(c.validate, env.Results); err != nil {
		return nil, err
	}
	return env.Results, nil
}

func (c *Client) LookupVideo(ctx context.Context, videoURL string) (*domain.VideoMetadata, error) {
	var meta domain.VideoMetadata
	path := "/api/metadata/youtube?" + url.Values{"url": {videoURL}}.Encode()
	if err := c.doJSON(ctx, "lookup_video", http.MethodGet, path, nil, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (c *Client) UpdateMetadata(ctx context.Context, jobID string, update *domain.MetadataUpdate) error {
	return c.doJSON(ctx, "update_metadata", http.MethodPut, "/api/metadata/"+url.PathEscape(jobID), update, nil)
}

func (c *Client) ListVoices(ctx context.Context) ([]domain.Voice, error) {
	var env voicesEnvelope
	if err := c.doJSON(ctx, "list_voices", http.MethodGet, "/api/voices", nil, &env); err != nil {
		return nil, err
	}
	if err := validateSlice(c.validate, env.Voices); err != nil {
		return nil, err
	}
	return env.Voices, nil
}

// PreviewVoice returns the synthesized sample and its content type. The caller closes the body.
func (c *Client) PreviewVoice(ctx context.Context, voiceID, text string) (io.ReadCloser, string, error) {
	payload, err := json.Marshal(map[string]string{"voice": voiceID, "text": text})
	if err != nil {
		return nil, "", fmt.Errorf("marshal preview request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/voices/preview", bytes.NewReader(payload))
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.send(ctx, "preview_voice", req)
	if err != nil {
		return nil, "", err
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	return resp.Body, contentType, nil
}

type formField struct {
	name  string
	value string
}

// postMultipart streams fields and the upload through a pipe so large videos
// are never buffered in memory.
func (c *Client) postMultipart(ctx context.Context, endpoint, path string, fields []formField, upload domain.Upload, out any) error {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		err := writeMultipart(mw, fields, upload)
		if err == nil {
			err = mw.Close()
		}
		_ = pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, pr)
	if err != nil {
		_ = pr.Close()
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.send(ctx, endpoint, req)
	if err != nil {
		_ = pr.CloseWithError(err)
		return err
	}
	defer resp.Body.Close() //nolint:errcheck
	return c.decode(resp.Body, out)
}

func writeMultipart(mw *multipart.Writer, fields []formField, upload domain.Upload) error {
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		if err := mw.WriteField(f.name, f.value); err != nil {
			return fmt.Errorf("write field %s: %w", f.name, err)
		}
	}
	if upload.Content == nil {
		return nil
	}
	part, err := mw.CreateFormFile("file", upload.Name)
	if err != nil {
		return fmt.Errorf("create file part: %w", err)
	}
	if _, err := io.Copy(part, upload.Content); err != nil {
		return fmt.Errorf("copy upload: %w", err)
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, endpoint, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.send(ctx, endpoint, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck
	return c.decode(resp.Body, out)
}

// send waits for the rate limiter, performs the request and converts non-2xx
// answers into *APIError. On success the caller owns resp.Body.
func (c *Client) send(ctx context.Context, endpoint string, req *http.Request) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	metrics.BackendRequestDuration.WithLabelValues(endpoint, metrics.StatusClass(status)).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close() //nolint:errcheck
		apiErr := &APIError{Status: resp.StatusCode, Message: readErrorMessage(resp.Body)}
		c.log.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("message", logger.Sanitize(apiErr.Message)).
			Msg("backend request failed")
		return nil, apiErr
	}
	return resp, nil
}

func (c *Client) decode(r io.Reader, out any) error {
	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(r, maxJSONBody))
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(r, maxJSONBody)).Decode(out); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidPayload, err)
	}
	switch out.(type) {
	case *domain.Job, *domain.VideoMetadata, *domain.SubmitResult:
		if err := c.validate.Struct(out); err != nil {
			return fmt.Errorf("%w: %w", domain.ErrInvalidPayload, err)
		}
	}
	return nil
}

func validateSlice[T any](v *validator.Validate, items []T) error {
	for i := range items {
		if err := v.Struct(&items[i]); err != nil {
			return fmt.Errorf("%w: item %d: %w", domain.ErrInvalidPayload, i, err)
		}
	}
	return nil
}

func readErrorMessage(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, 4096))
	var body errorBody
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.Detail != "" {
			return body.Detail
		}
		if body.Error.Message != "" {
			return body.Error.Message
		}
	}
	msg := strings.TrimSpace(string(raw))
	if msg == "" {
		return "no response body"
	}
	return msg
}

var _ port.JobBackend = (*Client)(nil)
