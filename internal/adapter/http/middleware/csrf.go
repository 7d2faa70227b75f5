package middleware

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"mime"
	"net/http"

	"github.com/bnema/mediadesk/internal/adapter/http/templates"
	"github.com/bnema/mediadesk/internal/infrastructure/logger"
)

const (
	CSRFCookieName = "csrf_token"
	CSRFHeaderName = "X-CSRF-Token"
	csrfFormField  = "csrf_token"
	csrfMaxAge     = 24 * 60 * 60
	nonceSize      = 32
)

// CSRF implements the double-submit cookie pattern with HMAC-signed tokens.
type CSRF struct {
	key        []byte
	trustProxy bool
}

func NewCSRF(secret string, trustProxy bool) *CSRF {
	return &CSRF{key: []byte(secret), trustProxy: trustProxy}
}

// Protect issues a token cookie when missing and rejects unsafe requests whose
// submitted token does not match the cookie. The current token is exposed to
// templates through the request context.
//
// Multipart bodies are streamed by the handlers, so their token must arrive in
// the header.
func (c *CSRF) Protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := ""
		if cookie, err := r.Cookie(CSRFCookieName); err == nil && c.Valid(cookie.Value) {
			token = cookie.Value
		} else {
			fresh, err := c.NewToken()
			if err != nil {
				log := logger.WithComponent("csrf")
				log.Error().Err(err).Msg("token generation failed")
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}
			token = fresh
			c.setCookie(w, r, token)
		}

		if !isSafeMethod(r.Method) && !c.checkRequest(r, token) {
			http.Error(w, "Forbidden - Invalid CSRF token", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r.WithContext(templates.WithCSRFToken(r.Context(), token)))
	})
}

// NewToken returns base64url(nonce || HMAC-SHA256(nonce)).
func (c *CSRF) NewToken() (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("read random nonce: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(append(nonce, c.sign(nonce)...)), nil
}

// Valid reports whether token carries a signature made with this key.
func (c *CSRF) Valid(token string) bool {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) != nonceSize+sha256.Size {
		return false
	}
	return hmac.Equal(raw[nonceSize:], c.sign(raw[:nonceSize]))
}

func (c *CSRF) sign(nonce []byte) []byte {
	mac := hmac.New(sha256.New, c.key)
	mac.Write(nonce)
	return mac.Sum(nil)
}

func (c *CSRF) checkRequest(r *http.Request, cookieToken string) bool {
	submitted := r.Header.Get(CSRFHeaderName)
	if submitted == "" && !isMultipart(r) {
		submitted = r.PostFormValue(csrfFormField)
	}
	if submitted == "" {
		return false
	}
	return hmac.Equal([]byte(submitted), []byte(cookieToken))
}

func (c *CSRF) setCookie(w http.ResponseWriter, r *http.Request, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   csrfMaxAge,
		Secure:   IsTLS(r, c.trustProxy),
		HttpOnly: false,
		SameSite: http.SameSiteStrictMode,
	})
}

func isMultipart(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "multipart/form-data"
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}
