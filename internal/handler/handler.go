// Package handler serves the portal pages. Every page is a thin layer over
// one or two backend calls: guard, fetch, render, or act and redirect.
package handler

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"clinic-portal/internal/auth"
	"clinic-portal/internal/backend"
	"clinic-portal/internal/guard"
	"clinic-portal/internal/metrics"
	"clinic-portal/internal/middleware"
	"clinic-portal/internal/model"
	"clinic-portal/internal/store"
	"clinic-portal/internal/view"
)

// number of activity entries on the admin dashboard
const recentActivity = 10

type Config struct {
	Secret       string
	CookieSecure bool
	// limits POST /login and POST /signup; nil means unlimited
	Limiter middleware.Limiter
	// served at /healthz when set
	Health http.Handler
}

type Handler struct {
	api      *backend.Client
	views    *view.Renderer
	activity store.ActivityLog
	metrics  *metrics.Metrics
	cfg      Config
}

func New(api *backend.Client, activity store.ActivityLog, m *metrics.Metrics, cfg Config) (*Handler, error) {
	views, err := view.New()
	if err != nil {
		return nil, err
	}
	if activity == nil {
		activity = store.Discard
	}
	return &Handler{api: api, views: views, activity: activity, metrics: m, cfg: cfg}, nil
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Metrics(h.metrics))

	r.Get("/", h.home)
	r.Get("/login", h.loginPage)
	r.Get("/signup", h.signupPage)
	r.Group(func(r chi.Router) {
		if h.cfg.Limiter != nil {
			r.Use(middleware.RateLimit(h.cfg.Limiter))
		}
		r.Post("/login", h.login)
		r.Post("/signup", h.signup)
	})
	r.With(middleware.VerifyCSRFWhenSet(h.csrfRejected)).Post("/logout", h.logout)

	r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	if h.cfg.Health != nil {
		r.Method(http.MethodGet, "/healthz", h.cfg.Health)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireRole(h.api, model.RoleAdmin, h.rejected))
		r.Use(middleware.VerifyCSRF(h.csrfRejected))
		r.Get("/admin", h.adminPage)
		r.Post("/admin/{coll}/{id}/delete", h.adminDelete)
	})
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireRole(h.api, model.RoleDoctor, h.rejected))
		r.Use(middleware.VerifyCSRF(h.csrfRejected))
		r.Get("/doctor", h.doctorPage)
		r.Post("/doctor/appointments/{id}/done", h.markDone)
		r.Post("/doctor/appointments/{id}/delete", h.deleteAppointment)
	})
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireRole(h.api, model.RolePatient, h.rejected))
		r.Use(middleware.VerifyCSRF(h.csrfRejected))
		r.Get("/book", h.bookPage)
		r.Post("/book", h.book)
	})
	return r
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, page string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := h.views.Render(w, page, data); err != nil {
		log.Printf("[%s] render %s: %v", middleware.RequestIDFrom(r.Context()), page, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// base fills the fields every page shares and consumes the pending notice.
func (h *Handler) base(w http.ResponseWriter, r *http.Request, title string) view.Base {
	b := view.Base{
		Title:  title,
		Notice: h.takeNotice(w, r),
		CSRF:   backend.CredentialsFromRequest(r).CSRF,
	}
	if s, ok := middleware.SessionFrom(r.Context()); ok {
		b.Greeting = guard.Greeting(s)
		b.LoggedIn = true
	}
	return b
}

func (h *Handler) redirect(w http.ResponseWriter, r *http.Request, to string) {
	http.Redirect(w, r, to, http.StatusSeeOther)
}

func (h *Handler) rejected(w http.ResponseWriter, r *http.Request, d guard.Decision) {
	if d.Outcome == guard.Deny {
		h.flash(w, auth.NoticeError, d.Notice)
	}
	h.redirect(w, r, "/login")
}

func (h *Handler) csrfRejected(w http.ResponseWriter, r *http.Request) {
	h.flash(w, auth.NoticeError, backend.ErrMissingCSRF.Error())
	h.redirect(w, r, "/login")
}

// confirmed reports whether the form was resubmitted from the confirmation
// page. When it was not, the confirmation page is rendered instead.
func (h *Handler) confirmed(w http.ResponseWriter, r *http.Request, question, back string) bool {
	if r.PostFormValue("confirm") == "yes" {
		return true
	}
	h.render(w, r, "confirm", view.ConfirmPage{
		Base:     h.base(w, r, "Confirm"),
		Question: question,
		Path:     r.URL.Path,
		Back:     back,
	})
	return false
}

// userMessage picks the text shown for a failed backend action. Transport
// details stay in the log.
func userMessage(err error, fallback string) string {
	var apiErr *backend.APIError
	switch {
	case errors.Is(err, backend.ErrMissingCSRF):
		return err.Error()
	case errors.As(err, &apiErr) && apiErr.Message != "":
		return apiErr.Message
	}
	return fallback
}

// record logs a user action to the activity log and the action counter.
// A failing log write never fails the action itself.
func (h *Handler) record(ctx context.Context, action, target string, err error) {
	outcome := store.OutcomeOK
	if err != nil {
		outcome = store.OutcomeFailed
		log.Printf("[%s] %s %s: %v", middleware.RequestIDFrom(ctx), action, target, err)
	}
	h.metrics.ObserveAction(action, outcome)

	s, _ := middleware.SessionFrom(ctx)
	a := store.Activity{
		ActorRole: string(s.Role),
		ActorName: s.Name,
		Action:    action,
		Target:    target,
		Outcome:   outcome,
	}
	if err := h.activity.Record(ctx, a); err != nil {
		log.Printf("[%s] activity: %v", middleware.RequestIDFrom(ctx), err)
	}
}
