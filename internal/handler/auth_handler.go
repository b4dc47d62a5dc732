package handler

import (
	"log"
	"net/http"

	"clinic-portal/internal/auth"
	"clinic-portal/internal/backend"
	"clinic-portal/internal/middleware"
	"clinic-portal/internal/model"
	"clinic-portal/internal/view"
)

var signupRoles = []model.Role{model.RolePatient, model.RoleDoctor, model.RoleAdmin}

// home sends a returning user to the page for their last role. The guard on
// that page still decides.
func (h *Handler) home(w http.ResponseWriter, r *http.Request) {
	if ck, err := r.Cookie(roleCookie); err == nil {
		if role, ok := model.ParseRole(ck.Value); ok {
			h.redirect(w, r, role.Landing())
			return
		}
	}
	h.redirect(w, r, "/login")
}

func (h *Handler) loginPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "login", view.LoginPage{Base: h.base(w, r, "Login")})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	email := r.PostFormValue("email")
	fail := func(text string) {
		page := view.LoginPage{Base: h.base(w, r, "Login"), Email: email}
		page.Notice = auth.Notice{Kind: auth.NoticeError, Text: text}
		h.render(w, r, "login", page)
	}

	res, err := h.api.Login(r.Context(), email, r.PostFormValue("password"))
	if err != nil {
		log.Printf("[%s] login: %v", middleware.RequestIDFrom(r.Context()), err)
		fail("Login failed. Please try again.")
		return
	}
	if !res.OK {
		fail("Invalid credentials.")
		return
	}
	role, ok := model.ParseRole(res.Role)
	if !ok {
		fail("Invalid role.")
		return
	}

	h.relay(w, res.Cookies)
	h.setRole(w, string(role))
	h.flash(w, auth.NoticeInfo, "Login successful! Role: "+string(role))
	h.redirect(w, r, role.Landing())
}

func (h *Handler) signupPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "signup", view.SignupPage{Base: h.base(w, r, "Sign up"), Roles: signupRoles})
}

func (h *Handler) signup(w http.ResponseWriter, r *http.Request) {
	form := model.Signup{
		Name:      r.PostFormValue("name"),
		Email:     r.PostFormValue("email"),
		Password:  r.PostFormValue("password"),
		Role:      r.PostFormValue("role"),
		Specialty: r.PostFormValue("specialty"),
	}
	msg, err := h.api.Signup(r.Context(), form)
	if err != nil {
		log.Printf("[%s] signup: %v", middleware.RequestIDFrom(r.Context()), err)
		page := view.SignupPage{
			Base:      h.base(w, r, "Sign up"),
			Name:      form.Name,
			Email:     form.Email,
			Role:      form.Role,
			Specialty: form.Specialty,
			Roles:     signupRoles,
		}
		page.Notice = auth.Notice{Kind: auth.NoticeError, Text: userMessage(err, "Signup failed. Please try again.")}
		h.render(w, r, "signup", page)
		return
	}
	h.flash(w, auth.NoticeInfo, msg)
	h.redirect(w, r, "/login")
}

// logout always ends on the login page, whatever the backend says.
func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	msg, err := h.api.Logout(r.Context(), backend.CredentialsFromRequest(r))
	h.clearSession(w)
	if err != nil {
		log.Printf("[%s] logout: %v", middleware.RequestIDFrom(r.Context()), err)
		h.flash(w, auth.NoticeError, "Session expired or invalid request. Redirecting to login.")
	} else {
		h.flash(w, auth.NoticeInfo, msg)
	}
	h.redirect(w, r, "/login")
}
