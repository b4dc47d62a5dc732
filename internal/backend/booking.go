package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"clinic-portal/internal/model"
)

func (c *Client) ListDoctors(ctx context.Context, creds Credentials) ([]model.Doctor, error) {
	r, err := c.do(ctx, call{method: http.MethodGet, route: "/doctors", path: "/doctors", creds: creds})
	if err != nil {
		return nil, err
	}
	if !r.ok() {
		return nil, r.fail("Failed to load doctors")
	}
	return list[model.Doctor](r, "doctors")
}

// AvailableTimes lists the open slots for one doctor on one date. A
// non-success status is an error, never an empty list.
func (c *Client) AvailableTimes(ctx context.Context, creds Credentials, doctor, date string) ([]string, error) {
	r, err := c.do(ctx, call{
		method: http.MethodGet,
		route:  "/available-times/{doctor}/{date}",
		path:   "/available-times/" + url.PathEscape(doctor) + "/" + url.PathEscape(date),
		creds:  creds,
	})
	if err != nil {
		return nil, err
	}
	if !r.ok() {
		return nil, r.fail(fmt.Sprintf("Server error: %d", r.status))
	}
	return list[string](r, "available_times")
}

type BookResult struct {
	OK      bool
	Message string
}

// Book submits a booking. The body decides success, whatever the status.
func (c *Client) Book(ctx context.Context, creds Credentials, b model.Booking) (BookResult, error) {
	r, err := c.do(ctx, call{
		method: http.MethodPost,
		route:  "/book-appointment-api",
		path:   "/book-appointment-api",
		body:   b,
		creds:  creds,
	})
	if err != nil {
		return BookResult{}, err
	}
	var e envelope
	if err := r.decode(&e); err != nil {
		return BookResult{}, err
	}
	if e.Status == "success" {
		return BookResult{OK: true, Message: e.Message}, nil
	}
	return BookResult{Message: e.errorText(fmt.Sprintf("booking failed with status %d", r.status))}, nil
}
