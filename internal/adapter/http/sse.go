package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/a-h/templ"

	"github.com/bnema/mediadesk/internal/adapter/http/templates"
	"github.com/bnema/mediadesk/internal/domain"
	"github.com/bnema/mediadesk/internal/infrastructure/logger"
	"github.com/bnema/mediadesk/internal/infrastructure/metrics"
	"github.com/bnema/mediadesk/internal/service"
)

const defaultKeepAlive = 15 * time.Second

type EventSource interface {
	Subscribe(jobID string) chan service.Event
	Unsubscribe(jobID string, ch chan service.Event)
}

type SSEHandler struct {
	events    EventSource
	jobs      JobTracker
	keepAlive time.Duration
}

func NewSSEHandler(events EventSource, jobs JobTracker, keepAlive time.Duration) *SSEHandler {
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	return &SSEHandler{events: events, jobs: jobs, keepAlive: keepAlive}
}

// sseStream writes named events and skips any whose payload equals the last
// one sent under the same name.
type sseStream struct {
	w    http.ResponseWriter
	rc   *http.ResponseController
	last map[string]string
}

func newSSEStream(w http.ResponseWriter) *sseStream {
	return &sseStream{w: w, rc: http.NewResponseController(w), last: make(map[string]string)}
}

func (s *sseStream) send(event, data string) (bool, error) {
	if prev, ok := s.last[event]; ok && prev == data {
		return false, nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "event: %s\n", event)
	for _, line := range strings.Split(data, "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteString("\n")
	if _, err := s.w.Write([]byte(b.String())); err != nil {
		return false, err
	}
	s.last[event] = data
	return true, s.flush()
}

func (s *sseStream) sendComponent(ctx context.Context, event string, c templ.Component) (bool, error) {
	var buf bytes.Buffer
	if err := c.Render(ctx, &buf); err != nil {
		return false, err
	}
	return s.send(event, buf.String())
}

func (s *sseStream) keepAlive() error {
	if _, err := s.w.Write([]byte(": keep-alive\n\n")); err != nil {
		return err
	}
	return s.flush()
}

func (s *sseStream) flush() error {
	if err := s.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}

// Events streams "status" fragments for one job until the client leaves.
// Once the job is terminal the stream stays open but idle, so the browser
// does not reconnect and replay it.
func (h *SSEHandler) Events() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if id == "" {
			http.Error(w, "Missing job ID", http.StatusBadRequest)
			return
		}
		ctx := r.Context()
		log := logger.WithComponent("sse").With().Str("job_id", id).Logger()

		ch := h.events.Subscribe(id)
		defer h.events.Unsubscribe(id, ch)

		job := h.jobs.Last(id)
		if job == nil {
			var err error
			if job, err = h.jobs.Refresh(ctx, id); err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					http.Error(w, "Job not found", http.StatusNotFound)
					return
				}
				log.Warn().Err(err).Msg("initial job fetch")
				http.Error(w, "Job backend unavailable", http.StatusBadGateway)
				return
			}
		}
		if !job.Status.IsTerminal() {
			h.jobs.Watch(id)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)

		metrics.SSEClients.Inc()
		defer metrics.SSEClients.Dec()

		stream := newSSEStream(w)
		if _, err := stream.sendComponent(ctx, service.EventStatus, templates.JobStatus(*job)); err != nil {
			return
		}
		if job.Status.IsTerminal() {
			<-ctx.Done()
			return
		}

		// stalled is set once the monitor has stopped polling this job. Each
		// keep-alive tick then retries the backend and re-arms the watch.
		stalled := false
		ticker := time.NewTicker(h.keepAlive)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if stalled {
					if job, err := h.jobs.Refresh(ctx, id); err == nil {
						stalled = false
						if err := h.resume(ctx, stream, id, job); err != nil {
							log.Debug().Err(err).Msg("stream closed")
							return
						}
						if job.Status.IsTerminal() {
							<-ctx.Done()
							return
						}
					}
				}
				if err := stream.keepAlive(); err != nil {
					return
				}
			case ev, ok := <-ch:
				if !ok {
					return
				}
				if err := h.forward(ctx, stream, ev); err != nil {
					log.Debug().Err(err).Msg("stream closed")
					return
				}
				switch ev.Type {
				case service.EventDone:
					<-ctx.Done()
					return
				case service.EventStalled:
					log.Warn().Msg("job watch stalled, retrying on keep-alive")
					stalled = true
				}
			}
		}
	}
}

// resume sends a job fetched after its watch stalled, which clears the shown
// error, and watches the job again unless it already finished.
func (h *SSEHandler) resume(ctx context.Context, stream *sseStream, id string, job *domain.Job) error {
	if !job.Status.IsTerminal() {
		h.jobs.Watch(id)
	}
	return h.forward(ctx, stream, service.Event{Type: service.EventStatus, Job: *job})
}

func (h *SSEHandler) forward(ctx context.Context, stream *sseStream, ev service.Event) error {
	switch ev.Type {
	case service.EventError, service.EventStalled:
		_, err := stream.sendComponent(ctx, service.EventError, templates.StreamError(ev.Message))
		return err
	default:
		if _, err := stream.sendComponent(ctx, service.EventStatus, templates.JobStatus(ev.Job)); err != nil {
			return err
		}
		// A fresh status clears a previously shown connection error.
		if _, shown := stream.last[service.EventError]; shown {
			_, err := stream.send(service.EventError, "")
			return err
		}
		return nil
	}
}
