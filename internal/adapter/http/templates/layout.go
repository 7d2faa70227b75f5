package templates

import (
	"context"

	"github.com/a-h/templ"
)

type ctxKey int

const (
	csrfKey ctxKey = iota
	userKey
)

// WithCSRFToken makes the token available to forms rendered with ctx.
func WithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfKey, token)
}

// WithUser records the signed-in username for the navigation bar.
func WithUser(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, userKey, username)
}

// CSRFTokenFrom returns the token stored by WithCSRFToken.
func CSRFTokenFrom(ctx context.Context) string {
	v, _ := ctx.Value(csrfKey).(string)
	return v
}

func username(ctx context.Context) string {
	v, _ := ctx.Value(userKey).(string)
	return v
}

func csrfField(ctx context.Context, h *writer) {
	h.raw(`<input type="hidden" name="csrf_token" value="`, esc(CSRFTokenFrom(ctx)), `">`)
}

var navLinks = []struct{ href, label string }{
	{"/", "Jobs"},
	{"/subtitles", "Subtitles"},
	{"/dub", "Dubbing"},
	{"/youtube", "YouTube"},
	{"/files", "Files"},
	{"/account", "Account"},
}

// Page wraps body in the shared document shell.
func Page(title string, body templ.Component) templ.Component {
	return component(func(ctx context.Context, h *writer) {
		h.raw(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`,
			`<meta name="viewport" content="width=device-width, initial-scale=1">`,
			`<meta name="htmx-config" content='{"responseHandling":[{"code":"204","swap":false},{"code":"[23]..","swap":true},{"code":"[45]..","swap":true,"error":true}]}'>`,
			`<title>`)
		h.text(title)
		h.raw(` · mediadesk</title>`,
			`<link rel="stylesheet" href="/static/app.css">`,
			`<script src="https://cdn.jsdelivr.net/npm/htmx.org@2.0.4/dist/htmx.min.js"></script>`,
			`<script src="https://cdn.jsdelivr.net/npm/htmx-ext-sse@2.2.2/sse.js"></script>`,
			`</head><body hx-headers='{"X-CSRF-Token": "`, esc(CSRFTokenFrom(ctx)), `"}'>`)

		if user := username(ctx); user != "" {
			h.raw(`<nav class="topbar"><ul>`)
			for _, l := range navLinks {
				h.raw(`<li><a href="`, l.href, `">`, l.label, `</a></li>`)
			}
			h.raw(`</ul><form method="post" action="/logout" class="logout">`)
			csrfField(ctx, h)
			h.raw(`<span>`)
			h.text(user)
			h.raw(`</span><button type="submit">Log out</button></form></nav>`)
		}

		h.raw(`<main>`)
		h.render(ctx, body)
		h.raw(`</main></body></html>`)
	})
}

func ErrorPage(code, message string) templ.Component {
	return Page(code, component(func(ctx context.Context, h *writer) {
		h.raw(`<section class="error-page"><h1>`)
		h.text(code)
		h.raw(`</h1><p>`)
		h.text(message)
		h.raw(`</p><a href="/">Back to jobs</a></section>`)
	}))
}

// ErrorInline is swapped into a form's error slot by HTMX.
func ErrorInline(message string) templ.Component {
	return component(func(ctx context.Context, h *writer) {
		h.raw(`<div class="form-error" role="alert">`)
		h.text(message)
		h.raw(`</div>`)
	})
}
