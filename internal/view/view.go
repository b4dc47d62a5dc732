// Package view turns backend data into typed rows and renders the portal's
// HTML pages.
package view

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"strconv"
	"strings"

	"clinic-portal/internal/auth"
	"clinic-portal/internal/model"
	"clinic-portal/internal/store"
)

//go:embed templates/*.html
var files embed.FS

const (
	NoData         = "No data found."
	NoAppointments = "No appointments found."
)

// Renderer holds one template set per page, each parsed with the layout.
type Renderer struct {
	pages map[string]*template.Template
}

var pageNames = []string{"login", "signup", "admin", "doctor", "booking", "confirm"}

func New() (*Renderer, error) {
	r := &Renderer{pages: make(map[string]*template.Template, len(pageNames))}
	for _, name := range pageNames {
		t, err := template.New("layout.html").ParseFS(files, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		r.pages[name] = t
	}
	return r, nil
}

// Render executes into a buffer first so a template error never leaves a
// half-written page behind.
func (r *Renderer) Render(w io.Writer, page string, data any) error {
	t, ok := r.pages[page]
	if !ok {
		return fmt.Errorf("unknown page %q", page)
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout.html", data); err != nil {
		return err
	}
	_, err := buf.WriteTo(w)
	return err
}

// Base is shared by every page.
type Base struct {
	Title    string
	Greeting string
	Notice   auth.Notice
	// value of the csrf_access_token cookie, echoed in every form
	CSRF     string
	LoggedIn bool
}

// Action is one button bound to a single row.
type Action struct {
	Label    string
	Path     string
	Disabled bool
}

type DirectoryRow struct {
	Entry  model.DirectoryEntry
	Delete Action
}

type DirectoryTable struct {
	Kind    model.Kind
	Title   string
	Headers []string
	Rows    []DirectoryRow
	Empty   string
	Failed  bool
}

func kindTitle(k model.Kind) string {
	s := k.Collection()
	return strings.ToUpper(s[:1]) + s[1:]
}

// Directory builds the table for one collection. Each row's action is
// computed from that row's own entry.
func Directory(kind model.Kind, entries []model.DirectoryEntry) DirectoryTable {
	t := DirectoryTable{
		Kind:    kind,
		Title:   kindTitle(kind) + " List",
		Headers: []string{"Name", "Email", "Actions"},
	}
	if len(entries) == 0 {
		t.Empty = NoData
		return t
	}
	for _, e := range entries {
		t.Rows = append(t.Rows, DirectoryRow{
			Entry: e,
			Delete: Action{
				Label: "Delete",
				Path:  "/admin/" + kind.Collection() + "/" + strconv.FormatInt(e.ID, 10) + "/delete",
			},
		})
	}
	return t
}

// FailedDirectory is shown when the collection could not be loaded.
func FailedDirectory(kind model.Kind) DirectoryTable {
	return DirectoryTable{Kind: kind, Title: kindTitle(kind) + " List", Failed: true}
}

type AppointmentRow struct {
	Appointment model.Appointment
	Status      string
	Done        Action
	Delete      Action
}

type AppointmentTable struct {
	Rows   []AppointmentRow
	Empty  string
	Failed bool
}

func Appointments(appts []model.Appointment) AppointmentTable {
	if len(appts) == 0 {
		return AppointmentTable{Empty: NoAppointments}
	}
	var t AppointmentTable
	for _, a := range appts {
		base := "/doctor/appointments/" + strconv.FormatInt(a.ID, 10)
		t.Rows = append(t.Rows, AppointmentRow{
			Appointment: a,
			Status:      a.EffectiveStatus(),
			Done:        Action{Label: "Mark as Done", Path: base + "/done", Disabled: a.Done()},
			Delete:      Action{Label: "Delete", Path: base + "/delete"},
		})
	}
	return t
}

type Option struct {
	Value    string
	Label    string
	Selected bool
	Disabled bool
}

type DoctorSelect struct {
	Options []Option
	Enabled bool
}

// Doctors builds the doctor dropdown. A load error replaces the list with a
// single disabled option.
func Doctors(docs []model.Doctor, err error, selected string) DoctorSelect {
	if err != nil {
		return DoctorSelect{Options: []Option{{Label: "Error loading doctors", Disabled: true, Selected: true}}}
	}
	if len(docs) == 0 {
		return DoctorSelect{Options: []Option{{Label: "No doctors available", Disabled: true, Selected: true}}}
	}
	opts := []Option{{Label: "Select a Doctor", Selected: selected == ""}}
	for _, d := range docs {
		opts = append(opts, Option{
			Value:    d.Name,
			Label:    d.Name + " (" + d.Specialty + ")",
			Selected: d.Name == selected,
		})
	}
	return DoctorSelect{Options: opts, Enabled: true}
}

// SlotPicker is the time control; Enabled also gates the submit button.
type SlotPicker struct {
	Options []Option
	Enabled bool
}

// WantSlots reports whether a slot fetch should happen at all.
func WantSlots(doctor, date string) bool {
	return doctor != "" && date != ""
}

func NoSlotsYet() SlotPicker {
	return SlotPicker{Options: []Option{{Label: "Select a Date First", Disabled: true, Selected: true}}}
}

func Slots(slots []string, err error, selected string) SlotPicker {
	if err != nil {
		return SlotPicker{Options: []Option{{Label: "Error loading slots", Disabled: true, Selected: true}}}
	}
	if len(slots) == 0 {
		return SlotPicker{Options: []Option{{Label: "No slots available", Disabled: true, Selected: true}}}
	}
	p := SlotPicker{Enabled: true}
	for _, s := range slots {
		p.Options = append(p.Options, Option{Value: s, Label: s, Selected: s == selected})
	}
	return p
}

type LoginPage struct {
	Base
	Email string
}

type SignupPage struct {
	Base
	Name      string
	Email     string
	Role      string
	Specialty string
	Roles     []model.Role
}

type Tab struct {
	Label  string
	Path   string
	Active bool
}

type AdminPage struct {
	Base
	Tabs     []Tab
	Table    DirectoryTable
	Activity []store.Activity
}

// Tabs lists one tab per collection with the current one marked.
func Tabs(current model.Kind) []Tab {
	tabs := make([]Tab, 0, len(model.Kinds))
	for _, k := range model.Kinds {
		tabs = append(tabs, Tab{
			Label:  kindTitle(k),
			Path:   "/admin?view=" + k.Collection(),
			Active: k == current,
		})
	}
	return tabs
}

type DoctorPage struct {
	Base
	Table AppointmentTable
}

type BookingPage struct {
	Base
	PatientID string
	Doctor    string
	Date      string
	Doctors   DoctorSelect
	Slots     SlotPicker
}

// ConfirmPage stands in for a browser confirm dialog: submitting it repeats
// the action with confirm=yes.
type ConfirmPage struct {
	Base
	Question string
	Path     string
	Back     string
}
