package handler

import (
	"log"
	"net/http"
	"time"
	"unicode/utf8"

	"clinic-portal/internal/auth"
	"clinic-portal/internal/backend"
)

const (
	noticeCookie = "portal_notice"
	roleCookie   = "portal_role"
)

// maxNoticeRunes keeps the signed notice cookie well under the 4 KB
// browser limit.
const maxNoticeRunes = 512

// clip shortens text to at most limit runes, marking the cut with "...".
func clip(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit-3]) + "..."
}

// flash queues a notice for the next rendered page.
func (h *Handler) flash(w http.ResponseWriter, kind auth.NoticeKind, text string) {
	tok, err := auth.MakeNotice(auth.Notice{Kind: kind, Text: clip(text, maxNoticeRunes)}, h.cfg.Secret)
	if err != nil {
		log.Printf("notice %q not queued: %v", kind, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     noticeCookie,
		Value:    tok,
		Path:     "/",
		MaxAge:   int(time.Minute / time.Second),
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// takeNotice returns the pending notice, if any, and clears it.
func (h *Handler) takeNotice(w http.ResponseWriter, r *http.Request) auth.Notice {
	ck, err := r.Cookie(noticeCookie)
	if err != nil {
		return auth.Notice{}
	}
	h.expire(w, noticeCookie)
	n, err := auth.ParseNotice(ck.Value, h.cfg.Secret)
	if err != nil {
		return auth.Notice{}
	}
	return n
}

func (h *Handler) expire(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// relay re-issues the backend's session cookies on the portal origin.
func (h *Handler) relay(w http.ResponseWriter, cookies []*http.Cookie) {
	for _, c := range cookies {
		if c.Name != backend.AccessCookie && c.Name != backend.CSRFCookie {
			continue
		}
		http.SetCookie(w, &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Path:     "/",
			Expires:  c.Expires,
			MaxAge:   c.MaxAge,
			HttpOnly: c.Name == backend.AccessCookie || c.HttpOnly,
			Secure:   h.cfg.CookieSecure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

func (h *Handler) setRole(w http.ResponseWriter, role string) {
	http.SetCookie(w, &http.Cookie{
		Name:     roleCookie,
		Value:    role,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearSession(w http.ResponseWriter) {
	h.expire(w, backend.AccessCookie)
	h.expire(w, backend.CSRFCookie)
	h.expire(w, roleCookie)
}
