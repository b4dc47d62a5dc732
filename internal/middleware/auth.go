package middleware

import (
	"context"
	"crypto/subtle"
	"log"
	"net/http"

	"clinic-portal/internal/backend"
	"clinic-portal/internal/guard"
	"clinic-portal/internal/model"
)

type ctxKey string

const SessionKey ctxKey = "session"

// CSRFField is the hidden form field carrying the csrf_access_token value.
const CSRFField = "csrf_token"

type SessionChecker interface {
	Session(ctx context.Context, creds backend.Credentials) backend.SessionResult
}

// Rejected is called when the guard keeps a request out.
type Rejected func(w http.ResponseWriter, r *http.Request, d guard.Decision)

// RequireRole checks the session once per request, before the page handler
// loads any data.
func RequireRole(sc SessionChecker, role model.Role, reject Rejected) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := sc.Session(r.Context(), backend.CredentialsFromRequest(r))
			if res.Status == backend.SessionTransportError {
				log.Printf("[%s] session check: %v", RequestIDFrom(r.Context()), res.Err)
			}
			d := guard.Evaluate(res, role)
			if d.Outcome != guard.Allow {
				reject(w, r, d)
				return
			}
			ctx := context.WithValue(r.Context(), SessionKey, d.Session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func SessionFrom(ctx context.Context) (model.Session, bool) {
	s, ok := ctx.Value(SessionKey).(model.Session)
	return s, ok
}

// VerifyCSRF requires POST forms to echo the csrf_access_token cookie.
func VerifyCSRF(reject http.HandlerFunc) func(http.Handler) http.Handler {
	return verifyCSRF(reject, true)
}

// VerifyCSRFWhenSet checks the echo only when a csrf_access_token cookie
// exists. A browser without one has no session to protect.
func VerifyCSRFWhenSet(reject http.HandlerFunc) func(http.Handler) http.Handler {
	return verifyCSRF(reject, false)
}

func verifyCSRF(reject http.HandlerFunc, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}
			ck, err := r.Cookie(backend.CSRFCookie)
			if !required && (err != nil || ck.Value == "") {
				next.ServeHTTP(w, r)
				return
			}
			field := r.PostFormValue(CSRFField)
			if err != nil || ck.Value == "" || field == "" ||
				subtle.ConstantTimeCompare([]byte(ck.Value), []byte(field)) != 1 {
				reject(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
