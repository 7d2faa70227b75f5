package templates

import (
	"context"

	"github.com/a-h/templ"
)

func Login(errMsg string) templ.Component {
	return Page("Sign in", credentialsForm("/login", "Sign in", errMsg, false))
}

// Setup creates the operator account on first start.
func Setup(errMsg string) templ.Component {
	return Page("Setup", credentialsForm("/setup", "Create account", errMsg, true))
}

func credentialsForm(action, submit, errMsg string, confirm bool) templ.Component {
	return component(func(ctx context.Context, h *writer) {
		h.raw(`<section class="auth"><h1>mediadesk</h1>`)
		if errMsg != "" {
			h.render(ctx, ErrorInline(errMsg))
		}
		h.raw(`<form method="post" action="`, action, `">`)
		csrfField(ctx, h)
		h.raw(`<label>Username <input name="username" autocomplete="username" required></label>`,
			`<label>Password <input type="password" name="password" autocomplete="current-password" required></label>`)
		if confirm {
			h.raw(`<label>Confirm password <input type="password" name="confirm" autocomplete="new-password" required></label>`)
		}
		h.raw(`<button type="submit">`, submit, `</button></form></section>`)
	})
}

// Account lets the operator change their password.
func Account(errMsg string, changed bool) templ.Component {
	return Page("Account", component(func(ctx context.Context, h *writer) {
		h.raw(`<section class="auth"><h1>Change password</h1>`)
		if errMsg != "" {
			h.render(ctx, ErrorInline(errMsg))
		}
		if changed {
			h.raw(`<p class="saved">Password changed.</p>`)
		}
		h.raw(`<form method="post" action="/account">`)
		csrfField(ctx, h)
		h.raw(`<label>Current password <input type="password" name="current" autocomplete="current-password" required></label>`,
			`<label>New password <input type="password" name="password" autocomplete="new-password" required></label>`,
			`<label>Confirm new password <input type="password" name="confirm" autocomplete="new-password" required></label>`,
			`<button type="submit">Change password</button></form></section>`)
	}))
}
