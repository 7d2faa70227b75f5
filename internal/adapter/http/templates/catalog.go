package templates

import (
	"context"
	"net/url"
	"path"
	"strconv"

	"github.com/a-h/templ"

	"github.com/bnema/mediadesk/internal/domain"
)

type MetadataView struct {
	Title       string
	ShowName    string
	Season      int
	Episode     int
	Description string
	Error       string
	Saved       bool
}

func FilesPage(dir string, entries []domain.FileEntry, errMsg string) templ.Component {
	return Page("Files", component(func(ctx context.Context, h *writer) {
		h.raw(`<section class="files"><h1>`)
		h.text(dir)
		h.raw(`</h1>`)
		if errMsg != "" {
			h.render(ctx, ErrorInline(errMsg))
		}
		if dir != "/" {
			h.raw(`<a class="up" href="/files?dir=`, esc(url.QueryEscape(path.Dir(dir))), `">Parent directory</a>`)
		}
		h.raw(`<table><thead><tr><th>Name</th><th>Kind</th><th>Size</th><th>Modified</th><th></th></tr></thead><tbody>`)
		for _, e := range entries {
			h.render(ctx, FileRow(e))
		}
		h.raw(`</tbody></table></section>`)
	}))
}

func FileRow(e domain.FileEntry) templ.Component {
	return component(func(ctx context.Context, h *writer) {
		q := esc(url.QueryEscape(e.Path))
		h.raw(`<tr><td>`)
		if e.IsDir {
			h.raw(`<a href="/files?dir=`, q, `">`)
			h.text(e.Name)
			h.raw(`/</a></td><td>directory</td><td></td>`)
		} else {
			h.text(e.Name)
			h.raw(`</td><td>`)
			h.text(string(e.Kind))
			h.raw(`</td><td>`)
			h.text(domain.FormatBytes(e.Size))
			h.raw(`</td>`)
		}
		h.raw(`<td>`)
		h.text(domain.FormatDate(e.Modified))
		h.raw(`</td><td>`)
		if !e.IsDir {
			h.raw(`<button hx-delete="/files?path=`, q, `" hx-target="closest tr" hx-swap="outerHTML" hx-confirm="Delete this file?">Delete</button>`)
		}
		h.raw(`</td></tr>`)
	})
}

// MetadataEditor edits the metadata attached to a finished job's outputs.
func MetadataEditor(jobID string, v MetadataView) templ.Component {
	return component(func(ctx context.Context, h *writer) {
		h.raw(`<section id="metadata" class="metadata"><h2>Metadata</h2>`,
			`<form hx-post="/metadata/`, esc(jobID), `" hx-target="#metadata" hx-swap="outerHTML">`)
		csrfField(ctx, h)
		h.raw(`<label>Title <input name="title" required maxlength="200" value="`, esc(v.Title), `"></label>`,
			`<label>Show <input name="show_name" value="`, esc(v.ShowName), `"`,
			` hx-get="/metadata/search" hx-trigger="keyup changed delay:300ms" hx-target="#meta-results" hx-vals='js:{"q": event.target.value}'></label>`,
			`<div id="meta-results"></div>`,
			`<label>Season <input type="number" min="0" name="season" value="`, strconv.Itoa(v.Season), `"></label>`,
			`<label>Episode <input type="number" min="0" name="episode" value="`, strconv.Itoa(v.Episode), `"></label>`,
			`<label>Description <textarea name="description">`)
		h.text(v.Description)
		h.raw(`</textarea></label>`)
		if v.Error != "" {
			h.render(ctx, ErrorInline(v.Error))
		}
		if v.Saved {
			h.raw(`<p class="saved">Saved.</p>`)
		}
		h.raw(`<button type="submit">Save</button></form></section>`)
	})
}

// SearchResults renders typeahead matches for shows and a YouTube video.
func SearchResults(shows []domain.ShowMetadata, video *domain.VideoMetadata) templ.Component {
	return component(func(ctx context.Context, h *writer) {
		if video != nil {
			h.raw(`<div class="video-card">`)
			if video.Thumbnail != "" {
				h.raw(`<img src="`, esc(video.Thumbnail), `" alt="" width="160">`)
			}
			h.raw(`<strong>`)
			h.text(video.Title)
			h.raw(`</strong> <span>`)
			h.text(video.Channel)
			h.raw(`</span> <small>`)
			h.text(domain.FormatRelativeDuration(video.Duration))
			h.raw(`</small></div>`)
		}
		if len(shows) == 0 {
			return
		}
		h.raw(`<ul class="show-results">`)
		for _, s := range shows {
			h.raw(`<li><button type="button" onclick="this.closest('form').show_name.value=this.dataset.name" data-name="`, esc(s.Name), `">`)
			h.text(s.Name)
			if s.Premiered != "" {
				h.raw(` <small>(`)
				h.text(s.Premiered)
				h.raw(`)</small>`)
			}
			h.raw(`</button></li>`)
		}
		h.raw(`</ul>`)
	})
}
