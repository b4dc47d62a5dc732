package backend_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinic-portal/internal/backend"
	"clinic-portal/internal/backend/backendtest"
	"clinic-portal/internal/model"
)

func newClient(fb *backendtest.Server) *backend.Client {
	return backend.New(fb.URL, 5*time.Second)
}

func TestSessionRoles(t *testing.T) {
	fb := backendtest.New(t)
	c := newClient(fb)
	ctx := context.Background()

	admin := fb.AddUser("Root", "root@x.com", "pw", model.RoleAdmin, "")
	doc := fb.AddUser("house", "house@x.com", "pw", model.RoleDoctor, "Diagnostics")
	pat := fb.AddUser("Ann", "ann@x.com", "pw", model.RolePatient, "")

	res := c.Session(ctx, fb.Credentials(admin))
	require.Equal(t, backend.SessionOK, res.Status)
	assert.Equal(t, model.RoleAdmin, res.Session.Role)
	assert.Zero(t, res.Session.ID)

	res = c.Session(ctx, fb.Credentials(doc))
	require.Equal(t, backend.SessionOK, res.Status)
	assert.Equal(t, model.RoleDoctor, res.Session.Role)
	assert.Equal(t, doc, res.Session.ID)
	assert.Equal(t, "house", res.Session.Name)

	res = c.Session(ctx, fb.Credentials(pat))
	require.Equal(t, backend.SessionOK, res.Status)
	assert.Equal(t, model.RolePatient, res.Session.Role)
	assert.Equal(t, pat, res.Session.ID)
}

func TestSessionUnauthorized(t *testing.T) {
	fb := backendtest.New(t)
	c := newClient(fb)
	ctx := context.Background()
	uid := fb.AddUser("Ann", "ann@x.com", "pw", model.RolePatient, "")

	t.Run("no cookie skips the backend", func(t *testing.T) {
		res := c.Session(ctx, backend.Credentials{})
		assert.Equal(t, backend.SessionUnauthorized, res.Status)
		assert.Zero(t, fb.Hits("GET /dashboard"))
	})

	t.Run("expired token skips the backend", func(t *testing.T) {
		access, csrf := fb.Token(uid, -time.Minute)
		res := c.Session(ctx, backend.Credentials{Access: access, CSRF: csrf})
		assert.Equal(t, backend.SessionUnauthorized, res.Status)
		assert.Zero(t, fb.Hits("GET /dashboard"))
	})

	t.Run("garbage token", func(t *testing.T) {
		res := c.Session(ctx, backend.Credentials{Access: "garbage"})
		assert.Equal(t, backend.SessionUnauthorized, res.Status)
		assert.Equal(t, 1, fb.Hits("GET /dashboard"))
	})
}

func TestSessionErrorBody(t *testing.T) {
	fb := backendtest.New(t)
	uid := fb.AddUser("Ann", "ann@x.com", "pw", model.RolePatient, "")
	fb.FailWith("GET /dashboard", http.StatusOK, `{"error":"Access denied"}`)

	res := newClient(fb).Session(context.Background(), fb.Credentials(uid))
	assert.Equal(t, backend.SessionUnauthorized, res.Status)
}

func TestSessionCompositeRoleRejected(t *testing.T) {
	fb := backendtest.New(t)
	uid := fb.AddUser("Ann", "ann@x.com", "pw", model.RolePatient, "")
	fb.FailWith("GET /dashboard", http.StatusOK, `{"role":"Patient,Admin","name":"Ann"}`)

	res := newClient(fb).Session(context.Background(), fb.Credentials(uid))
	assert.Equal(t, backend.SessionUnauthorized, res.Status)
}

func TestSessionTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := backend.New(url, time.Second)
	res := c.Session(context.Background(), backend.Credentials{Access: "x"})
	assert.Equal(t, backend.SessionTransportError, res.Status)
	var te *backend.TransportError
	assert.True(t, errors.As(res.Err, &te))
}

func TestSessionServerError(t *testing.T) {
	fb := backendtest.New(t)
	uid := fb.AddUser("Ann", "ann@x.com", "pw", model.RolePatient, "")
	fb.FailWith("GET /dashboard", http.StatusInternalServerError, `{"error":"Internal server error"}`)

	res := newClient(fb).Session(context.Background(), fb.Credentials(uid))
	assert.Equal(t, backend.SessionTransportError, res.Status)
}

func TestListDirectoryExample(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/admin/doctors", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"doctors":[{"id":3,"name":"A","email":"a@x.com"}]}`))
	}))
	defer srv.Close()

	entries, err := backend.New(srv.URL, time.Second).ListDirectory(context.Background(), backend.Credentials{}, model.KindDoctor)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.DirectoryEntry{ID: 3, Name: "A", Email: "a@x.com"}, entries[0])
}

func TestListDirectoryMissingKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"patients":[]}`))
	}))
	defer srv.Close()

	_, err := backend.New(srv.URL, time.Second).ListDirectory(context.Background(), backend.Credentials{}, model.KindDoctor)
	assert.ErrorIs(t, err, backend.ErrMalformed)
}

func TestDeleteDirectoryEntry(t *testing.T) {
	fb := backendtest.New(t)
	c := newClient(fb)
	ctx := context.Background()
	admin := fb.AddUser("Root", "root@x.com", "pw", model.RoleAdmin, "")
	doc := fb.AddUser("House", "house@x.com", "pw", model.RoleDoctor, "")
	creds := fb.Credentials(admin)

	msg, err := c.DeleteDirectoryEntry(ctx, creds, model.KindDoctor, doc)
	require.NoError(t, err)
	assert.Equal(t, "Doctor and associated appointments deleted successfully", msg)
	assert.False(t, fb.UserExists(doc))

	_, err = c.DeleteDirectoryEntry(ctx, creds, model.KindDoctor, doc)
	var apiErr *backend.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "Doctor not found", apiErr.Message)

	_, err = c.DeleteDirectoryEntry(ctx, creds, model.KindAdmin, admin)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "You cannot delete yourself!", apiErr.Message)
}

func TestMutationWithoutCSRFIsNotSent(t *testing.T) {
	fb := backendtest.New(t)
	admin := fb.AddUser("Root", "root@x.com", "pw", model.RoleAdmin, "")
	creds := fb.Credentials(admin)
	creds.CSRF = ""

	_, err := newClient(fb).DeleteDirectoryEntry(context.Background(), creds, model.KindPatient, 99)
	assert.ErrorIs(t, err, backend.ErrMissingCSRF)
	assert.Zero(t, fb.Hits("DELETE"))
}

func TestCSRFHeaderOnlyOnWrites(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]string{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen[r.Method] = r.Header.Get(backend.CSRFHeader)
		mu.Unlock()
		assert.Equal(t, "req-1", r.Header.Get(backend.RequestIDHeader))
		ck, err := r.Cookie(backend.AccessCookie)
		if assert.NoError(t, err) {
			assert.Equal(t, "acc", ck.Value)
		}
		_, _ = w.Write([]byte(`{"appointments":[],"message":"ok"}`))
	}))
	defer srv.Close()

	c := backend.New(srv.URL, time.Second)
	ctx := backend.WithRequestID(context.Background(), "req-1")
	creds := backend.Credentials{Access: "acc", CSRF: "tok"}

	_, err := c.ListAppointments(ctx, creds)
	require.NoError(t, err)
	_, err = c.MarkAppointmentDone(ctx, creds, 4)
	require.NoError(t, err)

	assert.Equal(t, "", seen[http.MethodGet])
	assert.Equal(t, "tok", seen[http.MethodPut])
}

func TestAppointmentsLifecycle(t *testing.T) {
	fb := backendtest.New(t)
	c := newClient(fb)
	ctx := context.Background()
	doc := fb.AddUser("House", "house@x.com", "pw", model.RoleDoctor, "")
	pat := fb.AddUser("Ann", "ann@x.com", "pw", model.RolePatient, "")
	id := fb.AddAppointment(pat, doc, "2026-11-02", "10:00AM")
	creds := fb.Credentials(doc)

	appts, err := c.ListAppointments(ctx, creds)
	require.NoError(t, err)
	require.Len(t, appts, 1)
	assert.Equal(t, "Ann", appts[0].PatientName)
	assert.False(t, appts[0].Done())

	msg, err := c.MarkAppointmentDone(ctx, creds, id)
	require.NoError(t, err)
	assert.Equal(t, "Appointment marked as done", msg)

	appts, err = c.ListAppointments(ctx, creds)
	require.NoError(t, err)
	assert.True(t, appts[0].Done())

	_, err = c.DeleteAppointment(ctx, creds, id)
	require.NoError(t, err)
	appts, err = c.ListAppointments(ctx, creds)
	require.NoError(t, err)
	assert.Empty(t, appts)
}

func TestAvailableTimesAndBooking(t *testing.T) {
	fb := backendtest.New(t)
	c := newClient(fb)
	ctx := context.Background()
	fb.AddUser("Dr Who", "who@x.com", "pw", model.RoleDoctor, "Time")
	pat := fb.AddUser("Ann", "ann@x.com", "pw", model.RolePatient, "")
	creds := fb.Credentials(pat)

	docs, err := c.ListDoctors(ctx, creds)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Time", docs[0].Specialty)

	slots, err := c.AvailableTimes(ctx, creds, "Dr Who", "2026-11-02")
	require.NoError(t, err)
	require.Len(t, slots, 8)
	assert.Equal(t, "09:00AM", slots[0])

	res, err := c.Book(ctx, creds, model.Booking{PatientID: "2", Doctor: "Dr Who", Date: "2026-11-02", Time: "09:00AM"})
	require.NoError(t, err)
	assert.True(t, res.OK)

	res, err = c.Book(ctx, creds, model.Booking{PatientID: "2", Doctor: "Dr Who", Date: "2026-11-02", Time: "09:00AM"})
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, "Time slot already booked", res.Message)

	slots, err = c.AvailableTimes(ctx, creds, "Dr Who", "2026-11-02")
	require.NoError(t, err)
	assert.NotContains(t, slots, "09:00AM")
}

func TestAvailableTimesErrorIsNotEmpty(t *testing.T) {
	fb := backendtest.New(t)
	pat := fb.AddUser("Ann", "ann@x.com", "pw", model.RolePatient, "")

	_, err := newClient(fb).AvailableTimes(context.Background(), fb.Credentials(pat), "Nobody", "2026-11-02")
	var apiErr *backend.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestLoginSignupLogout(t *testing.T) {
	fb := backendtest.New(t)
	c := newClient(fb)
	ctx := context.Background()

	msg, err := c.Signup(ctx, model.Signup{Name: "Ann", Email: "ann@x.com", Password: "pw", Role: "Patient"})
	require.NoError(t, err)
	assert.Equal(t, "Signup successful!", msg)

	_, err = c.Signup(ctx, model.Signup{Name: "Ann", Email: "ann@x.com", Password: "pw", Role: "Patient"})
	var apiErr *backend.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Email already exists", apiErr.Message)

	bad, err := c.Login(ctx, "ann@x.com", "wrong")
	require.NoError(t, err)
	assert.False(t, bad.OK)

	res, err := c.Login(ctx, "ann@x.com", "pw")
	require.NoError(t, err)
	require.True(t, res.OK)
	assert.Equal(t, "Patient", res.Role)

	var creds backend.Credentials
	for _, ck := range res.Cookies {
		switch ck.Name {
		case backend.AccessCookie:
			creds.Access = ck.Value
		case backend.CSRFCookie:
			creds.CSRF = ck.Value
		}
	}
	require.NotEmpty(t, creds.Access)
	require.NotEmpty(t, creds.CSRF)

	out, err := c.Logout(ctx, creds)
	require.NoError(t, err)
	assert.Equal(t, "Logged out successfully", out)

	assert.Equal(t, backend.SessionUnauthorized, c.Session(ctx, creds).Status)
}

type countingObserver struct {
	mu    sync.Mutex
	codes []int
}

func (o *countingObserver) ObserveBackend(method, route string, code int, d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.codes = append(o.codes, code)
}

func TestObserver(t *testing.T) {
	fb := backendtest.New(t)
	obs := &countingObserver{}
	c := backend.New(fb.URL, time.Second, backend.WithObserver(obs))

	require.NoError(t, c.Ping(context.Background()))
	assert.Equal(t, []int{http.StatusUnauthorized}, obs.codes)
}
