// Package guard decides whether a session may enter a page.
package guard

import (
	"strings"

	"clinic-portal/internal/backend"
	"clinic-portal/internal/model"
)

type Outcome int

const (
	Allow Outcome = iota
	RedirectLogin
	Deny
)

func (o Outcome) String() string {
	switch o {
	case Allow:
		return "allow"
	case RedirectLogin:
		return "redirect_login"
	}
	return "deny"
}

type Decision struct {
	Outcome Outcome
	// shown to the user on Deny
	Notice  string
	Session model.Session
}

// Evaluate fails closed: anything but a confirmed session with the
// required role keeps the page from loading.
func Evaluate(res backend.SessionResult, required model.Role) Decision {
	if res.Status != backend.SessionOK {
		return Decision{Outcome: RedirectLogin}
	}
	if res.Session.Role != required {
		return Decision{Outcome: Deny, Notice: DeniedNotice(required)}
	}
	return Decision{Outcome: Allow, Session: res.Session}
}

func DeniedNotice(required model.Role) string {
	return "Access denied. Only " + strings.ToLower(string(required)) + "s can view this page."
}

func Greeting(s model.Session) string {
	switch s.Role {
	case model.RoleAdmin:
		return "Welcome, Admin"
	case model.RoleDoctor:
		return "Welcome Dr. " + strings.ToUpper(s.Name)
	case model.RolePatient:
		return "Welcome " + s.Name + "!"
	}
	return ""
}
