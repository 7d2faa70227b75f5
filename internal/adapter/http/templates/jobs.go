package templates

import (
	"context"
	"strconv"

	"github.com/a-h/templ"

	"github.com/bnema/mediadesk/internal/domain"
)

func statusClass(s domain.JobStatus) string {
	return "status status-" + string(s)
}

// Dashboard lists backend jobs, newest first as returned by the backend.
// When the backend cannot be reached, recent holds the locally recorded
// submissions instead.
func Dashboard(jobs []domain.Job, recent []*domain.Submission, backendErr string) templ.Component {
	return Page("Jobs", component(func(ctx context.Context, h *writer) {
		h.raw(`<section class="jobs"><h1>Jobs</h1>`)
		if backendErr != "" {
			h.render(ctx, ErrorInline(backendErr))
			if len(recent) > 0 {
				h.render(ctx, recentSubmissions(recent))
			}
			h.raw(`</section>`)
			return
		}
		if len(jobs) == 0 {
			h.raw(`<p class="empty">No jobs yet. Start one from the menu above.</p></section>`)
			return
		}
		h.raw(`<table><thead><tr><th>Job</th><th>Type</th><th>Status</th><th>Progress</th><th>Updated</th></tr></thead><tbody>`)
		for _, j := range jobs {
			h.render(ctx, JobRow(j))
		}
		h.raw(`</tbody></table></section>`)
	}))
}

func recentSubmissions(subs []*domain.Submission) templ.Component {
	return component(func(ctx context.Context, h *writer) {
		h.raw(`<h2>Submitted from here</h2><table><thead><tr><th>Job</th><th>Type</th><th>By</th><th>Submitted</th></tr></thead><tbody>`)
		for _, s := range subs {
			title := s.Title
			if title == "" {
				title = s.JobID
			}
			h.raw(`<tr><td><a href="/jobs/`, esc(s.JobID), `">`)
			h.text(title)
			h.raw(`</a></td><td>`)
			h.text(s.Kind.Label())
			h.raw(`</td><td>`)
			h.text(s.SubmittedBy)
			h.raw(`</td><td>`)
			h.text(domain.FormatAge(s.CreatedAt))
			h.raw(`</td></tr>`)
		}
		h.raw(`</tbody></table>`)
	})
}

func JobRow(j domain.Job) templ.Component {
	return component(func(ctx context.Context, h *writer) {
		title := j.Title
		if title == "" {
			title = j.ID
		}
		h.raw(`<tr id="job-`, esc(j.ID), `"><td><a href="/jobs/`, esc(j.ID), `">`)
		h.text(title)
		h.raw(`</a></td><td>`)
		h.text(j.Kind.Label())
		h.raw(`</td><td><span class="`, statusClass(j.Status), `">`)
		h.text(string(j.Status))
		h.raw(`</span></td><td>`, strconv.Itoa(j.ClampedProgress()), `%</td><td>`)
		h.text(domain.FormatAge(j.UpdatedAt))
		h.raw(`</td></tr>`)
	})
}

// JobPage shows one job and follows its updates over SSE.
func JobPage(j domain.Job, sub *domain.Submission, meta MetadataView) templ.Component {
	title := j.Title
	if title == "" {
		title = j.Kind.Label()
	}
	return Page(title, component(func(ctx context.Context, h *writer) {
		h.raw(`<section class="job" hx-ext="sse" sse-connect="/events/`, esc(j.ID), `">`)
		h.raw(`<h1>`)
		h.text(title)
		h.raw(`</h1>`)
		if title != j.Kind.Label() {
			h.raw(`<p class="kind">`)
			h.text(j.Kind.Label())
			h.raw(`</p>`)
		}
		if sub != nil {
			source := sub.Title
			if source == "" {
				source = j.Title
			}
			h.raw(`<dl class="submission"><dt>Source</dt><dd>`)
			h.text(source)
			h.raw(`</dd><dt>Range</dt><dd>`)
			h.text(sub.StartTime)
			if sub.EndTime != "" {
				h.raw(` → `)
				h.text(sub.EndTime)
			}
			h.raw(`</dd><dt>Submitted</dt><dd>`)
			h.text(domain.FormatDate(sub.CreatedAt))
			h.raw(`</dd></dl>`)
		}
		h.raw(`<div id="job-stream-error" sse-swap="error"></div>`)
		h.raw(`<div id="job-status" sse-swap="status">`)
		h.render(ctx, JobStatus(j))
		h.raw(`</div>`)
		if j.Status == domain.JobStatusCompleted {
			h.render(ctx, MetadataEditor(j.ID, meta))
		}
		h.raw(`</section>`)
	}))
}

// JobStatus is the fragment replaced on every status event.
func JobStatus(j domain.Job) templ.Component {
	return component(func(ctx context.Context, h *writer) {
		p := strconv.Itoa(j.ClampedProgress())
		h.raw(`<div class="job-status"><span class="`, statusClass(j.Status), `">`)
		h.text(string(j.Status))
		h.raw(`</span>`)
		h.raw(`<progress max="100" value="`, p, `">`, p, `%</progress>`)
		if j.Stage != "" {
			h.raw(`<p class="stage">`)
			h.text(j.Stage)
			h.raw(`</p>`)
		}
		if j.Error != "" {
			h.render(ctx, ErrorInline(j.Error))
		}
		if len(j.Outputs) > 0 {
			h.raw(`<ul class="outputs">`)
			for _, o := range j.Outputs {
				h.raw(`<li><a href="`, esc(o.URL), `" download>`)
				h.text(o.Name)
				h.raw(`</a> <small>`)
				h.text(domain.FormatBytes(o.Size))
				h.raw(`</small></li>`)
			}
			h.raw(`</ul>`)
		}
		if !j.Status.IsTerminal() {
			h.raw(`<button hx-post="/jobs/`, esc(j.ID), `/cancel" hx-target="#job-status" hx-confirm="Cancel this job?">Cancel</button>`)
		}
		h.raw(`</div>`)
	})
}

// StreamError is pushed over SSE when the job can no longer be followed.
func StreamError(message string) templ.Component {
	return component(func(ctx context.Context, h *writer) {
		h.raw(`<div class="stream-error" role="status">`)
		h.text(message)
		h.raw(`</div>`)
	})
}
