package model

import "strconv"

type Role string

const (
	RoleAdmin   Role = "Admin"
	RoleDoctor  Role = "Doctor"
	RolePatient Role = "Patient"
)

// ParseRole only accepts the exact role labels the backend emits.
func ParseRole(s string) (Role, bool) {
	switch r := Role(s); r {
	case RoleAdmin, RoleDoctor, RolePatient:
		return r, true
	}
	return "", false
}

// Landing is the page a freshly logged-in user of this role is sent to.
func (r Role) Landing() string {
	switch r {
	case RoleAdmin:
		return "/admin"
	case RoleDoctor:
		return "/doctor"
	case RolePatient:
		return "/book"
	}
	return ""
}

type Session struct {
	Role Role
	Name string
	// patient_id or doctor_id, zero for admins
	ID int64
}

func (s Session) Identifier() string {
	if s.ID == 0 {
		return ""
	}
	return strconv.FormatInt(s.ID, 10)
}

// Kind names a directory collection managed from the admin dashboard.
type Kind string

const (
	KindDoctor  Kind = "doctor"
	KindPatient Kind = "patient"
	KindAdmin   Kind = "admin"
)

var Kinds = []Kind{KindDoctor, KindPatient, KindAdmin}

// Collection is both the URL segment and the JSON key of the list.
func (k Kind) Collection() string { return string(k) + "s" }

func KindFromCollection(c string) (Kind, bool) {
	for _, k := range Kinds {
		if k.Collection() == c {
			return k, true
		}
	}
	return "", false
}

type DirectoryEntry struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Specialty string `json:"specialty,omitempty"`
}

const (
	StatusPending = "pending"
	StatusDone    = "done"
)

type Appointment struct {
	ID          int64  `json:"id"`
	PatientName string `json:"patient_name"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Status      string `json:"status"`
}

func (a Appointment) EffectiveStatus() string {
	if a.Status == "" {
		return StatusPending
	}
	return a.Status
}

func (a Appointment) Done() bool { return a.EffectiveStatus() == StatusDone }

type Doctor struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Specialty string `json:"specialty"`
}

type Booking struct {
	PatientID string `json:"patient_id"`
	Doctor    string `json:"doctor"`
	Date      string `json:"date"`
	Time      string `json:"time"`
}

func (b Booking) Complete() bool {
	return b.PatientID != "" && b.Doctor != "" && b.Date != "" && b.Time != ""
}

type Signup struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Role      string `json:"role"`
	Specialty string `json:"specialty,omitempty"`
}
