package backend

import (
	"context"
	"net/http"

	"clinic-portal/internal/model"
)

type LoginResult struct {
	OK      bool
	Role    string
	Name    string
	Message string
	// Set-Cookie values from the backend, to be re-issued by the portal
	Cookies []*http.Cookie
}

type loginBody struct {
	envelope
	Role string `json:"role"`
	Name string `json:"name"`
}

// Login posts credentials. A response carrying a message is a success;
// anything else is a rejected login, not an error.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	r, err := c.do(ctx, call{
		method: http.MethodPost,
		route:  "/login",
		path:   "/login",
		body:   map[string]string{"email": email, "password": password},
	})
	if err != nil {
		return LoginResult{}, err
	}
	var body loginBody
	if err := r.decode(&body); err != nil {
		return LoginResult{}, err
	}
	if body.Message == "" || !r.ok() {
		return LoginResult{Message: body.errorText("Invalid credentials.")}, nil
	}
	return LoginResult{
		OK:      true,
		Role:    body.Role,
		Name:    body.Name,
		Message: body.Message,
		Cookies: r.cookies,
	}, nil
}

// Signup registers an account and returns the server's message. A refusal
// comes back as *APIError carrying the server's error text verbatim.
func (c *Client) Signup(ctx context.Context, s model.Signup) (string, error) {
	r, err := c.do(ctx, call{method: http.MethodPost, route: "/signup", path: "/signup", body: s})
	if err != nil {
		return "", err
	}
	var e envelope
	if err := r.decode(&e); err != nil {
		return "", err
	}
	if e.Message == "" || !r.ok() {
		return "", &APIError{StatusCode: r.status, Message: e.errorText("Signup failed")}
	}
	return e.Message, nil
}

func (c *Client) Logout(ctx context.Context, creds Credentials) (string, error) {
	r, err := c.do(ctx, call{method: http.MethodPost, route: "/logout", path: "/logout", creds: creds})
	if err != nil {
		return "", err
	}
	if !r.ok() {
		return "", r.fail("Logout failed")
	}
	return r.envelope().Message, nil
}
