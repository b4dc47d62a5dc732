// Package backendtest runs an in-memory clinic backend for tests. It issues
// JWT access cookies and CSRF cookies and checks X-CSRF-TOKEN on writes the
// way the real backend does.
package backendtest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"clinic-portal/internal/backend"
	"clinic-portal/internal/model"
)

type User struct {
	ID        int64
	Name      string
	Email     string
	Password  string
	Role      model.Role
	Specialty string
}

type Appointment struct {
	ID        int64
	PatientID int64
	DoctorID  int64
	Date      string
	Time      string
	Status    string
}

type failure struct {
	status int
	body   string
}

type Server struct {
	*httptest.Server

	mu       sync.Mutex
	secret   []byte
	nextID   int64
	users    map[int64]*User
	appts    map[int64]*Appointment
	hits     map[string]int
	failures map[string]failure
	revoked  map[string]bool
}

type claims struct {
	CSRF string `json:"csrf"`
	jwt.RegisteredClaims
}

func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		secret:   []byte("backend-secret"),
		users:    make(map[int64]*User),
		appts:    make(map[int64]*Appointment),
		hits:     make(map[string]int),
		failures: make(map[string]failure),
		revoked:  make(map[string]bool),
	}
	s.Server = httptest.NewServer(s.router())
	t.Cleanup(s.Close)
	return s
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.record)

	r.Post("/login", s.login)
	r.Post("/signup", s.signup)
	r.With(s.jwtRequired).Post("/logout", s.logout)
	r.With(s.jwtRequired).Get("/dashboard", s.dashboard)
	r.With(s.jwtRequired).Get("/doctors", s.doctors)
	r.With(s.jwtRequired).Get("/available-times/{doctor}/{date}", s.availableTimes)
	r.With(s.jwtRequired).Post("/book-appointment-api", s.book)
	r.With(s.jwtRequired).Get("/doctor/appointments", s.doctorAppointments)
	r.With(s.jwtRequired).Delete("/doctor/appointments/{id}", s.deleteAppointment)
	r.With(s.jwtRequired).Put("/doctor/appointments/{id}/done", s.markDone)
	r.With(s.jwtRequired).Get("/admin/{coll}", s.adminList)
	r.With(s.jwtRequired).Delete("/admin/{coll}/{id}", s.adminDelete)
	return r
}

// AddUser creates an account and the matching doctor/patient profile.
func (s *Server) AddUser(name, email, password string, role model.Role, specialty string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addUser(name, email, password, role, specialty)
}

func (s *Server) addUser(name, email, password string, role model.Role, specialty string) int64 {
	s.nextID++
	if role == model.RoleDoctor && specialty == "" {
		specialty = "General"
	}
	s.users[s.nextID] = &User{ID: s.nextID, Name: name, Email: email, Password: password, Role: role, Specialty: specialty}
	return s.nextID
}

func (s *Server) AddAppointment(patientID, doctorID int64, date, slot string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.appts[s.nextID] = &Appointment{ID: s.nextID, PatientID: patientID, DoctorID: doctorID, Date: date, Time: slot, Status: model.StatusPending}
	return s.nextID
}

func (s *Server) Appointment(id int64) (Appointment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appts[id]
	if !ok {
		return Appointment{}, false
	}
	return *a, true
}

func (s *Server) UserExists(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.users[id]
	return ok
}

// Hits counts requests whose "METHOD /path" starts with prefix.
func (s *Server) Hits(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, v := range s.hits {
		if strings.HasPrefix(k, prefix) {
			n += v
		}
	}
	return n
}

// FailWith makes every request matching prefix answer status and body.
func (s *Server) FailWith(prefix string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[prefix] = failure{status: status, body: body}
}

// Token mints the access and CSRF cookie values for a user.
func (s *Server) Token(userID int64, ttl time.Duration) (access, csrf string) {
	csrf = uuid.NewString()
	c := claims{
		CSRF: csrf,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		panic(err)
	}
	return access, csrf
}

// Credentials is Token packaged the way the portal holds it.
func (s *Server) Credentials(userID int64) backend.Credentials {
	access, csrf := s.Token(userID, time.Hour)
	return backend.Credentials{Access: access, CSRF: csrf}
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		s.mu.Lock()
		s.hits[key]++
		var f *failure
		for prefix, v := range s.failures {
			if strings.HasPrefix(key, prefix) {
				v := v
				f = &v
			}
		}
		s.mu.Unlock()
		if f != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(f.status)
			fmt.Fprint(w, f.body)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type userKey struct{}

type authed struct {
	user User
	jti  string
}

func contextWithUser(ctx context.Context, u *User, jti string) context.Context {
	return context.WithValue(ctx, userKey{}, authed{user: *u, jti: jti})
}

func userFrom(r *http.Request) (User, string) {
	a, _ := r.Context().Value(userKey{}).(authed)
	return a.user, a.jti
}

func kindRole(k model.Kind) model.Role {
	switch k {
	case model.KindDoctor:
		return model.RoleDoctor
	case model.KindPatient:
		return model.RolePatient
	}
	return model.RoleAdmin
}

func (s *Server) jwtRequired(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ck, err := r.Cookie(backend.AccessCookie)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"msg": `Missing cookie "access_token_cookie"`})
			return
		}
		var c claims
		_, err = jwt.ParseWithClaims(ck.Value, &c, func(*jwt.Token) (any, error) { return s.secret, nil },
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"msg": "Token has expired"})
			return
		}
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodDelete:
			h := r.Header.Get(backend.CSRFHeader)
			if h == "" {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"msg": "Missing CSRF token"})
				return
			}
			if h != c.CSRF {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"msg": "CSRF double submit tokens do not match"})
				return
			}
		}
		id, _ := strconv.ParseInt(c.Subject, 10, 64)
		s.mu.Lock()
		u, ok := s.users[id]
		revoked := s.revoked[c.ID]
		var cp User
		if ok {
			cp = *u
		}
		s.mu.Unlock()
		if !ok || revoked {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"msg": "Token has been revoked"})
			return
		}
		ctx := r.Context()
		ctx = contextWithUser(ctx, &cp, c.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	_ = json.NewDecoder(r.Body).Decode(&in)

	s.mu.Lock()
	var found *User
	for _, u := range s.users {
		if u.Email == in.Email && u.Password == in.Password {
			cp := *u
			found = &cp
		}
	}
	s.mu.Unlock()
	if found == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid credentials"})
		return
	}

	access, csrf := s.Token(found.ID, time.Hour)
	http.SetCookie(w, &http.Cookie{Name: backend.AccessCookie, Value: access, Path: "/", HttpOnly: true, SameSite: http.SameSiteLaxMode})
	http.SetCookie(w, &http.Cookie{Name: backend.CSRFCookie, Value: csrf, Path: "/", SameSite: http.SameSiteLaxMode})
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Welcome " + string(found.Role) + "!",
		"role":    string(found.Role),
		"name":    found.Name,
	})
}

func (s *Server) signup(w http.ResponseWriter, r *http.Request) {
	var in model.Signup
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Name == "" || in.Email == "" || in.Password == "" || in.Role == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing required fields"})
		return
	}
	role, ok := model.ParseRole(in.Role)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid role. Please select 'Doctor', 'Patient', or 'Admin'."})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == in.Email {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Email already exists"})
			return
		}
	}
	s.addUser(in.Name, in.Email, in.Password, role, in.Specialty)
	writeJSON(w, http.StatusCreated, map[string]string{"message": "Signup successful!", "role": in.Role})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	_, jti := userFrom(r)
	s.mu.Lock()
	s.revoked[jti] = true
	s.mu.Unlock()
	http.SetCookie(w, &http.Cookie{Name: backend.AccessCookie, Value: "", Path: "/", MaxAge: -1})
	http.SetCookie(w, &http.Cookie{Name: backend.CSRFCookie, Value: "", Path: "/", MaxAge: -1})
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

func (s *Server) dashboard(w http.ResponseWriter, r *http.Request) {
	u, _ := userFrom(r)
	switch u.Role {
	case model.RolePatient:
		writeJSON(w, http.StatusOK, map[string]any{"message": "Welcome " + u.Name, "patient_id": u.ID, "role": "Patient", "name": u.Name})
	case model.RoleDoctor:
		writeJSON(w, http.StatusOK, map[string]any{"message": "Welcome Dr. " + u.Name, "doctor_id": u.ID, "role": "Doctor", "name": u.Name, "specialty": u.Specialty})
	case model.RoleAdmin:
		writeJSON(w, http.StatusOK, map[string]any{"message": "Welcome Admin", "role": "Admin"})
	default:
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "Invalid role"})
	}
}

func (s *Server) usersWithRole(role model.Role) []User {
	var out []User
	for _, u := range s.users {
		if u.Role == role {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Server) doctors(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	docs := s.usersWithRole(model.RoleDoctor)
	s.mu.Unlock()
	list := make([]map[string]any, 0, len(docs))
	for _, d := range docs {
		list = append(list, map[string]any{"id": d.ID, "name": d.Name, "specialty": d.Specialty})
	}
	writeJSON(w, http.StatusOK, map[string]any{"doctors": list})
}

// hourly slots from 09:00AM to 04:00PM
func daySlots() []string {
	start := time.Date(2000, 1, 1, 9, 0, 0, 0, time.UTC)
	var out []string
	for t := start; t.Hour() < 17; t = t.Add(time.Hour) {
		out = append(out, t.Format("03:04PM"))
	}
	return out
}

func (s *Server) doctorByName(name string) (*User, bool) {
	for _, u := range s.users {
		if u.Role == model.RoleDoctor && u.Name == name {
			return u, true
		}
	}
	return nil, false
}

func (s *Server) availableTimes(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "doctor")
	date := chi.URLParam(r, "date")
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.doctorByName(name)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Doctor not found"})
		return
	}
	booked := map[string]bool{}
	for _, a := range s.appts {
		if a.DoctorID == doc.ID && a.Date == date {
			booked[a.Time] = true
		}
	}
	free := []string{}
	for _, slot := range daySlots() {
		if !booked[slot] {
			free = append(free, slot)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"available_times": free})
}

func (s *Server) book(w http.ResponseWriter, r *http.Request) {
	u, _ := userFrom(r)
	if u.Role != model.RolePatient && u.Role != model.RoleAdmin {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "Unauthorized"})
		return
	}
	var in model.Booking
	_ = json.NewDecoder(r.Body).Decode(&in)
	if !in.Complete() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "message": "Missing data"})
		return
	}
	pid, err := strconv.ParseInt(in.PatientID, 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "message": "Invalid patient"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.doctorByName(in.Doctor)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"status": "error", "message": "Doctor not found"})
		return
	}
	for _, a := range s.appts {
		if a.DoctorID == doc.ID && a.Date == in.Date && a.Time == in.Time {
			writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "message": "Time slot already booked"})
			return
		}
	}
	s.nextID++
	s.appts[s.nextID] = &Appointment{ID: s.nextID, PatientID: pid, DoctorID: doc.ID, Date: in.Date, Time: in.Time, Status: model.StatusPending}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "Appointment booked successfully!"})
}

func (s *Server) doctorAppointments(w http.ResponseWriter, r *http.Request) {
	u, _ := userFrom(r)
	if u.Role != model.RoleDoctor {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "Unauthorized"})
		return
	}
	s.mu.Lock()
	var mine []*Appointment
	for _, a := range s.appts {
		if a.DoctorID == u.ID {
			mine = append(mine, a)
		}
	}
	sort.Slice(mine, func(i, j int) bool { return mine[i].ID < mine[j].ID })
	list := make([]map[string]any, 0, len(mine))
	for _, a := range mine {
		name := "Unknown"
		if p, ok := s.users[a.PatientID]; ok {
			name = p.Name
		}
		list = append(list, map[string]any{"id": a.ID, "patient_name": name, "date": a.Date, "time": a.Time, "status": a.Status})
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"appointments": list})
}

func (s *Server) ownedAppointment(w http.ResponseWriter, r *http.Request) (*Appointment, bool) {
	u, _ := userFrom(r)
	if u.Role != model.RoleDoctor {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "Unauthorized role"})
		return nil, false
	}
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	a, ok := s.appts[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Appointment not found"})
		return nil, false
	}
	if a.DoctorID != u.ID {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "Unauthorized to modify this appointment"})
		return nil, false
	}
	return a, true
}

func (s *Server) deleteAppointment(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.ownedAppointment(w, r)
	if !ok {
		return
	}
	delete(s.appts, a.ID)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Appointment deleted successfully"})
}

func (s *Server) markDone(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.ownedAppointment(w, r)
	if !ok {
		return
	}
	a.Status = model.StatusDone
	writeJSON(w, http.StatusOK, map[string]string{"message": "Appointment marked as done"})
}

func (s *Server) adminList(w http.ResponseWriter, r *http.Request) {
	u, _ := userFrom(r)
	if u.Role != model.RoleAdmin {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "Unauthorized"})
		return
	}
	kind, ok := model.KindFromCollection(chi.URLParam(r, "coll"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Resource not found"})
		return
	}
	s.mu.Lock()
	users := s.usersWithRole(kindRole(kind))
	s.mu.Unlock()
	list := make([]model.DirectoryEntry, 0, len(users))
	for _, u := range users {
		e := model.DirectoryEntry{ID: u.ID, Name: u.Name, Email: u.Email}
		if kind == model.KindDoctor {
			e.Specialty = u.Specialty
		}
		list = append(list, e)
	}
	writeJSON(w, http.StatusOK, map[string]any{kind.Collection(): list})
}

func (s *Server) adminDelete(w http.ResponseWriter, r *http.Request) {
	me, _ := userFrom(r)
	if me.Role != model.RoleAdmin {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "Unauthorized"})
		return
	}
	kind, ok := model.KindFromCollection(chi.URLParam(r, "coll"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Resource not found"})
		return
	}
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	label := string(kindRole(kind))

	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok || string(u.Role) != label {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": label + " not found"})
		return
	}
	if kind == model.KindAdmin && id == me.ID {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "You cannot delete yourself!"})
		return
	}
	for aid, a := range s.appts {
		if a.DoctorID == id || a.PatientID == id {
			delete(s.appts, aid)
		}
	}
	delete(s.users, id)
	msg := label + " and associated appointments deleted successfully"
	if kind == model.KindAdmin {
		msg = "Admin deleted successfully"
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
