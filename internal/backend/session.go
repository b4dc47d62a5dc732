package backend

import (
	"context"
	"errors"
	"net/http"

	"clinic-portal/internal/auth"
	"clinic-portal/internal/model"
)

type SessionStatus int

const (
	SessionOK SessionStatus = iota
	SessionUnauthorized
	SessionTransportError
)

func (s SessionStatus) String() string {
	switch s {
	case SessionOK:
		return "ok"
	case SessionUnauthorized:
		return "unauthorized"
	}
	return "transport_error"
}

// SessionResult is the outcome of one session check. Session is only set
// when Status is SessionOK.
type SessionResult struct {
	Status  SessionStatus
	Session model.Session
	Err     error
}

var ErrNoSession = errors.New("no session")

type dashboardBody struct {
	envelope
	Role      string `json:"role"`
	Name      string `json:"name"`
	PatientID *int64 `json:"patient_id"`
	DoctorID  *int64 `json:"doctor_id"`
}

// Session asks the backend who the credentials belong to.
func (c *Client) Session(ctx context.Context, creds Credentials) SessionResult {
	if creds.Access == "" {
		return SessionResult{Status: SessionUnauthorized, Err: ErrNoSession}
	}
	if auth.Expired(creds.Access, c.now()) {
		return SessionResult{Status: SessionUnauthorized, Err: ErrNoSession}
	}

	r, err := c.do(ctx, call{method: http.MethodGet, route: "/dashboard", path: "/dashboard", creds: creds})
	if err != nil {
		return SessionResult{Status: SessionTransportError, Err: err}
	}
	switch {
	case r.status == http.StatusUnauthorized, r.status == http.StatusForbidden,
		r.status == http.StatusUnprocessableEntity:
		return SessionResult{Status: SessionUnauthorized, Err: r.fail("session rejected")}
	case !r.ok():
		return SessionResult{Status: SessionTransportError, Err: r.fail("session check failed")}
	}

	var body dashboardBody
	if err := r.decode(&body); err != nil {
		return SessionResult{Status: SessionTransportError, Err: err}
	}
	if body.Error != "" || body.Msg != "" {
		return SessionResult{Status: SessionUnauthorized, Err: &APIError{StatusCode: r.status, Message: body.errorText("")}}
	}
	role, ok := model.ParseRole(body.Role)
	if !ok {
		return SessionResult{Status: SessionUnauthorized, Err: ErrNoSession}
	}

	s := model.Session{Role: role, Name: body.Name}
	switch {
	case role == model.RolePatient && body.PatientID != nil:
		s.ID = *body.PatientID
	case role == model.RoleDoctor && body.DoctorID != nil:
		s.ID = *body.DoctorID
	}
	return SessionResult{Status: SessionOK, Session: s}
}
