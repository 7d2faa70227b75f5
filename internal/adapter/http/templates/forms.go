package templates

import (
	"context"

	"github.com/a-h/templ"

	"github.com/bnema/mediadesk/internal/domain"
)

type SubtitleView struct {
	Error        string
	SourceLang   string
	TargetLang   string
	StartTime    string
	EndTime      string
	ShowOriginal bool
	Model        string
	Languages    []string
}

type DubView struct {
	Error      string
	TargetLang string
	Voice      string
	Speed      string
	StartTime  string
	EndTime    string
	Languages  []string
	Voices     []domain.Voice
}

type YoutubeView struct {
	Error      string
	URL        string
	SourceLang string
	TargetLang string
	Dub        bool
	Voice      string
	StartTime  string
	EndTime    string
	Languages  []string
	Voices     []domain.Voice
}

// formOpen starts a job form. Multipart forms list the file input last: the
// server forwards the file while reading it and only sees fields sent before.
// They carry no plain action because the CSRF check reads a multipart token
// from the htmx request header only, so they need JavaScript.
func formOpen(ctx context.Context, h *writer, action string, multipart bool) {
	if multipart {
		h.raw(`<form hx-post="`, action, `" hx-target="#form-error" hx-encoding="multipart/form-data">`,
			`<noscript><p class="error">Uploading requires JavaScript.</p></noscript>`)
		return
	}
	h.raw(`<form method="post" action="`, action, `" hx-post="`, action, `" hx-target="#form-error">`)
	csrfField(ctx, h)
}

func formError(ctx context.Context, h *writer, msg string) {
	h.raw(`<div id="form-error">`)
	if msg != "" {
		h.render(ctx, ErrorInline(msg))
	}
	h.raw(`</div>`)
}

func languageSelect(h *writer, name, label, current string, langs []string, allowAuto bool) {
	h.raw(`<label>`, label, ` <select name="`, name, `">`)
	if allowAuto {
		h.raw(`<option value="auto"`, selected(current == "" || current == domain.AutoLanguage), `>Auto-detect</option>`)
	}
	for _, code := range langs {
		if code == domain.AutoLanguage {
			continue
		}
		h.raw(`<option value="`, esc(code), `"`, selected(code == current), `>`)
		h.text(domain.LanguageLabel(code))
		h.raw(`</option>`)
	}
	h.raw(`</select></label>`)
}

func voiceSelect(h *writer, current string, voices []domain.Voice) {
	h.raw(`<label>Voice <select name="voice"><option value="">Choose…</option>`)
	for _, v := range voices {
		h.raw(`<option value="`, esc(v.ID), `"`, selected(v.ID == current), `>`)
		h.text(v.DisplayLabel())
		h.raw(`</option>`)
	}
	h.raw(`</select></label>`,
		`<button type="button" hx-post="/voices/preview" hx-include="[name=voice]" hx-target="#voice-preview">Preview</button>`,
		`<div id="voice-preview"></div>`)
}

func timeRange(h *writer, start, end string) {
	h.raw(`<fieldset class="range"><legend>Range</legend>`,
		`<label>Start <input name="start_time" placeholder="00:00" value="`, esc(start), `"></label>`,
		`<label>End <input name="end_time" placeholder="MM:SS, HH:MM:SS or +minutes" value="`, esc(end), `"></label>`,
		`</fieldset>`)
}

func SubtitlePage(v SubtitleView) templ.Component {
	return Page("Subtitle translation", component(func(ctx context.Context, h *writer) {
		h.raw(`<section class="job-form"><h1>Translate subtitles</h1>`)
		formOpen(ctx, h, "/subtitles", true)
		languageSelect(h, "source_lang", "From", v.SourceLang, v.Languages, true)
		languageSelect(h, "target_lang", "To", v.TargetLang, v.Languages, false)
		timeRange(h, v.StartTime, v.EndTime)
		h.raw(`<label><input type="checkbox" name="show_original" value="true"`, checked(v.ShowOriginal), `
			hx-post="/preferences" hx-trigger="change" hx-params="show_original" hx-vals='js:{"show_original": event.target.checked}' hx-swap="none"> Keep original lines</label>`)
		h.raw(`<label>Model <input name="model" value="`, esc(v.Model), `" placeholder="default"></label>`)
		h.raw(`<label>Subtitle file <input type="file" name="file" accept=".srt,.vtt,.ass,.ssa" required></label>`)
		formError(ctx, h, v.Error)
		h.raw(`<button type="submit">Submit</button></form></section>`)
	}))
}

func DubPage(v DubView) templ.Component {
	return Page("Dubbing", component(func(ctx context.Context, h *writer) {
		h.raw(`<section class="job-form"><h1>Dub a video</h1>`)
		formOpen(ctx, h, "/dub", true)
		languageSelect(h, "target_lang", "Language", v.TargetLang, v.Languages, false)
		voiceSelect(h, v.Voice, v.Voices)
		speed := v.Speed
		if speed == "" {
			speed = "1.0"
		}
		h.raw(`<label>Speed <input type="number" name="speed" min="0.5" max="2" step="0.05" value="`, esc(speed), `"></label>`)
		timeRange(h, v.StartTime, v.EndTime)
		h.raw(`<label>Video <input type="file" name="file" accept="video/*,audio/*" required></label>`)
		formError(ctx, h, v.Error)
		h.raw(`<button type="submit">Submit</button></form></section>`)
	}))
}

func YoutubePage(v YoutubeView) templ.Component {
	return Page("YouTube", component(func(ctx context.Context, h *writer) {
		h.raw(`<section class="job-form"><h1>Ingest from YouTube</h1>`)
		formOpen(ctx, h, "/youtube", false)
		h.raw(`<label>URL <input type="url" name="url" required value="`, esc(v.URL), `"`,
			` hx-get="/metadata/search" hx-trigger="change, keyup changed delay:500ms" hx-target="#video-preview" hx-include="this"></label>`,
			`<div id="video-preview"></div>`)
		languageSelect(h, "source_lang", "From", v.SourceLang, v.Languages, true)
		languageSelect(h, "target_lang", "To", v.TargetLang, v.Languages, false)
		h.raw(`<label><input type="checkbox" name="dub" value="true"`, checked(v.Dub), `> Dub audio</label>`)
		voiceSelect(h, v.Voice, v.Voices)
		timeRange(h, v.StartTime, v.EndTime)
		formError(ctx, h, v.Error)
		h.raw(`<button type="submit">Submit</button></form></section>`)
	}))
}

// VoicePreview embeds a short audio sample.
func VoicePreview(dataURI string) templ.Component {
	return component(func(ctx context.Context, h *writer) {
		h.raw(`<audio controls autoplay src="`, esc(dataURI), `"></audio>`)
	})
}
