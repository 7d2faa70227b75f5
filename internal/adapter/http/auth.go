package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bnema/mediadesk/internal/adapter/http/middleware"
	"github.com/bnema/mediadesk/internal/adapter/http/ratelimit"
	"github.com/bnema/mediadesk/internal/adapter/http/templates"
	"github.com/bnema/mediadesk/internal/domain"
	"github.com/bnema/mediadesk/internal/infrastructure/logger"
	"github.com/bnema/mediadesk/internal/infrastructure/metrics"
	"github.com/bnema/mediadesk/internal/service"
)

const (
	CookieName     = "auth_token"
	CookieMaxAge   = int(service.SessionTTL / time.Second)
	CookiePath     = "/"
	CookieSameSite = http.SameSiteStrictMode
)

type AuthService interface {
	HasUser(ctx context.Context) (bool, error)
	CreateUser(ctx context.Context, username, password string) error
	Login(ctx context.Context, username, password string) (string, error)
	ValidateToken(ctx context.Context, token string) (*domain.User, error)
	ChangePassword(ctx context.Context, username, oldPassword, newPassword string) error
}

type userKey struct{}

func currentUser(ctx context.Context) *domain.User {
	u, _ := ctx.Value(userKey{}).(*domain.User)
	return u
}

func username(r *http.Request) string {
	if u := currentUser(r.Context()); u != nil {
		return u.Username
	}
	return ""
}

// AuthMiddleware requires a valid session cookie. Before the operator account
// exists every page sends the browser to /setup.
func AuthMiddleware(authSvc AuthService, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(CookieName)
		if err != nil {
			redirectToLogin(w, r, authSvc)
			return
		}

		user, err := authSvc.ValidateToken(r.Context(), cookie.Value)
		if err != nil {
			redirectToLogin(w, r, authSvc)
			return
		}

		ctx := context.WithValue(r.Context(), userKey{}, user)
		ctx = templates.WithUser(ctx, user.Username)
		next(w, r.WithContext(ctx))
	}
}

func redirectToLogin(w http.ResponseWriter, r *http.Request, authSvc AuthService) {
	target := "/login"
	if has, err := authSvc.HasUser(r.Context()); err == nil && !has {
		target = "/setup"
	}
	if isHTMX(r) {
		w.Header().Set("HX-Redirect", target)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func SetupHandler(authSvc AuthService, behindProxy bool) http.HandlerFunc {
	log := logger.WithComponent("auth")
	return func(w http.ResponseWriter, r *http.Request) {
		has, err := authSvc.HasUser(r.Context())
		if err != nil {
			log.Error().Err(err).Msg("check existing user")
			renderPage(w, r, http.StatusInternalServerError, templates.ErrorPage("500", "Could not read the user store."))
			return
		}
		if has {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}

		if r.Method == http.MethodGet {
			renderPage(w, r, http.StatusOK, templates.Setup(""))
			return
		}

		name := strings.TrimSpace(r.PostFormValue("username"))
		password := r.PostFormValue("password")
		if password != r.PostFormValue("confirm") {
			renderPage(w, r, http.StatusUnprocessableEntity, templates.Setup("Passwords do not match."))
			return
		}

		if err := authSvc.CreateUser(r.Context(), name, password); err != nil {
			switch {
			case errors.Is(err, service.ErrInvalidUsername), errors.Is(err, service.ErrWeakPassword):
				renderPage(w, r, http.StatusUnprocessableEntity, templates.Setup(userMessage(err)))
			case errors.Is(err, service.ErrUserExists):
				http.Redirect(w, r, "/login", http.StatusSeeOther)
			default:
				log.Error().Err(err).Msg("create user")
				renderPage(w, r, http.StatusInternalServerError, templates.Setup("Could not create the account."))
			}
			return
		}

		token, err := authSvc.Login(r.Context(), name, password)
		if err != nil {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		setSessionCookie(w, r, token, behindProxy)
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

// LoginHandler signs the operator in. Attempts are rate limited per client
// and every failure is answered after an exponential delay.
func LoginHandler(authSvc AuthService, limiter *ratelimit.LoginRateLimiter, failures *ratelimit.FailureTracker, backoff *ratelimit.Backoff, behindProxy bool) http.HandlerFunc {
	log := logger.WithComponent("auth")
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			if has, err := authSvc.HasUser(r.Context()); err == nil && !has {
				http.Redirect(w, r, "/setup", http.StatusSeeOther)
				return
			}
			renderPage(w, r, http.StatusOK, templates.Login(""))
			return
		}

		client := clientIP(r, behindProxy)
		if ok, wait := limiter.Allow(client); !ok {
			metrics.LoginThrottledTotal.Inc()
			log.Warn().Str("client", client).Dur("retry_after", wait).Msg("login throttled")
			w.Header().Set("Retry-After", retryAfter(wait))
			renderPage(w, r, http.StatusTooManyRequests, templates.Login("Too many attempts. Try again later."))
			return
		}

		name := strings.TrimSpace(r.PostFormValue("username"))
		token, err := authSvc.Login(r.Context(), name, r.PostFormValue("password"))
		if err != nil {
			n := failures.RecordFailure(client)
			log.Warn().Str("client", client).Str("username", logger.Sanitize(name)).Int("failures", n).Msg("login failed")
			select {
			case <-time.After(backoff.Duration(n)):
			case <-r.Context().Done():
				return
			}
			renderPage(w, r, http.StatusUnauthorized, templates.Login("Invalid username or password."))
			return
		}

		failures.RecordSuccess(client)
		limiter.Reset(client)
		setSessionCookie(w, r, token, behindProxy)
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

func LogoutHandler(behindProxy bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{
			Name:     CookieName,
			Value:    "",
			MaxAge:   -1,
			Path:     CookiePath,
			Secure:   middleware.IsTLS(r, behindProxy),
			HttpOnly: true,
			SameSite: CookieSameSite,
		})
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	}
}

func AccountHandler(authSvc AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			renderPage(w, r, http.StatusOK, templates.Account("", false))
			return
		}

		password := r.PostFormValue("password")
		if password != r.PostFormValue("confirm") {
			renderPage(w, r, http.StatusUnprocessableEntity, templates.Account("Passwords do not match.", false))
			return
		}
		err := authSvc.ChangePassword(r.Context(), username(r), r.PostFormValue("current"), password)
		switch {
		case err == nil:
			renderPage(w, r, http.StatusOK, templates.Account("", true))
		case errors.Is(err, service.ErrWrongPassword), errors.Is(err, service.ErrWeakPassword):
			renderPage(w, r, http.StatusUnprocessableEntity, templates.Account(userMessage(err), false))
		default:
			log := logger.WithComponent("auth")
			log.Error().Err(err).Msg("change password")
			renderPage(w, r, http.StatusInternalServerError, templates.Account("Could not change the password.", false))
		}
	}
}

func setSessionCookie(w http.ResponseWriter, r *http.Request, token string, behindProxy bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		MaxAge:   CookieMaxAge,
		Path:     CookiePath,
		Secure:   middleware.IsTLS(r, behindProxy),
		HttpOnly: true,
		SameSite: CookieSameSite,
	})
}

// userMessage capitalizes a service error for display.
func userMessage(err error) string {
	msg := err.Error()
	if msg == "" {
		return msg
	}
	return strings.ToUpper(msg[:1]) + msg[1:] + "."
}

// clientIP identifies the caller for rate limiting. Forwarded headers are
// only trusted behind a proxy.
func clientIP(r *http.Request, behindProxy bool) string {
	if behindProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func retryAfter(d time.Duration) string {
	secs := int(d.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
