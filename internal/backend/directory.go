package backend

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"clinic-portal/internal/model"
)

func (c *Client) ListDirectory(ctx context.Context, creds Credentials, kind model.Kind) ([]model.DirectoryEntry, error) {
	coll := kind.Collection()
	r, err := c.do(ctx, call{
		method: http.MethodGet,
		route:  "/admin/" + coll,
		path:   "/admin/" + coll,
		creds:  creds,
	})
	if err != nil {
		return nil, err
	}
	if !r.ok() {
		return nil, r.fail("Failed to load " + coll)
	}
	return list[model.DirectoryEntry](r, coll)
}

// DeleteDirectoryEntry returns the server's confirmation message.
func (c *Client) DeleteDirectoryEntry(ctx context.Context, creds Credentials, kind model.Kind, id int64) (string, error) {
	coll := kind.Collection()
	r, err := c.do(ctx, call{
		method: http.MethodDelete,
		route:  "/admin/" + coll + "/{id}",
		path:   "/admin/" + coll + "/" + strconv.FormatInt(id, 10),
		creds:  creds,
	})
	if err != nil {
		return "", err
	}
	if !r.ok() {
		return "", r.fail("Failed to delete item")
	}
	return r.envelope().Message, nil
}

func (c *Client) ListAppointments(ctx context.Context, creds Credentials) ([]model.Appointment, error) {
	// timestamp defeats intermediary caches, the list must always be fresh
	q := url.Values{"timestamp": {strconv.FormatInt(c.now().UnixMilli(), 10)}}
	r, err := c.do(ctx, call{
		method: http.MethodGet,
		route:  "/doctor/appointments",
		path:   "/doctor/appointments",
		query:  q,
		creds:  creds,
	})
	if err != nil {
		return nil, err
	}
	if !r.ok() {
		return nil, r.fail("Failed to load appointments")
	}
	return list[model.Appointment](r, "appointments")
}

func (c *Client) DeleteAppointment(ctx context.Context, creds Credentials, id int64) (string, error) {
	r, err := c.do(ctx, call{
		method: http.MethodDelete,
		route:  "/doctor/appointments/{id}",
		path:   "/doctor/appointments/" + strconv.FormatInt(id, 10),
		creds:  creds,
	})
	if err != nil {
		return "", err
	}
	if !r.ok() {
		return "", r.fail("Failed to delete appointment")
	}
	return r.envelope().Message, nil
}

func (c *Client) MarkAppointmentDone(ctx context.Context, creds Credentials, id int64) (string, error) {
	r, err := c.do(ctx, call{
		method: http.MethodPut,
		route:  "/doctor/appointments/{id}/done",
		path:   "/doctor/appointments/" + strconv.FormatInt(id, 10) + "/done",
		creds:  creds,
	})
	if err != nil {
		return "", err
	}
	if !r.ok() {
		return "", r.fail("Failed to mark appointment as done")
	}
	return r.envelope().Message, nil
}
