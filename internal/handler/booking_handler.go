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

// bookPage renders the form. Picking a doctor or a date re-submits it as a
// GET, and slots are only fetched once both are known.
func (h *Handler) bookPage(w http.ResponseWriter, r *http.Request) {
	s, _ := middleware.SessionFrom(r.Context())
	q := r.URL.Query()
	form := model.Booking{PatientID: s.Identifier(), Doctor: q.Get("doctor"), Date: q.Get("date")}
	h.renderBooking(w, r, form, auth.Notice{})
}

func (h *Handler) renderBooking(w http.ResponseWriter, r *http.Request, form model.Booking, n auth.Notice) {
	creds := backend.CredentialsFromRequest(r)
	page := view.BookingPage{
		Base:      h.base(w, r, "Book Appointment"),
		PatientID: form.PatientID,
		Doctor:    form.Doctor,
		Date:      form.Date,
	}
	if n.Text != "" {
		page.Notice = n
	}

	docs, err := h.api.ListDoctors(r.Context(), creds)
	if err != nil {
		log.Printf("[%s] list doctors: %v", middleware.RequestIDFrom(r.Context()), err)
	}
	page.Doctors = view.Doctors(docs, err, form.Doctor)

	page.Slots = view.NoSlotsYet()
	if view.WantSlots(form.Doctor, form.Date) {
		slots, err := h.api.AvailableTimes(r.Context(), creds, form.Doctor, form.Date)
		if err != nil {
			log.Printf("[%s] available times: %v", middleware.RequestIDFrom(r.Context()), err)
		}
		page.Slots = view.Slots(slots, err, form.Time)
	}
	h.render(w, r, "booking", page)
}

func (h *Handler) book(w http.ResponseWriter, r *http.Request) {
	form := model.Booking{
		PatientID: r.PostFormValue("patient_id"),
		Doctor:    r.PostFormValue("doctor"),
		Date:      r.PostFormValue("date"),
		Time:      r.PostFormValue("time"),
	}
	if !form.Complete() {
		h.renderBooking(w, r, form, auth.Notice{Kind: auth.NoticeError, Text: "Please fill all fields."})
		return
	}

	res, err := h.api.Book(r.Context(), backend.CredentialsFromRequest(r), form)
	target := form.Doctor + " " + form.Date + " " + form.Time
	switch {
	case err != nil:
		h.record(r.Context(), "book", target, err)
		h.renderBooking(w, r, form, auth.Notice{Kind: auth.NoticeError, Text: "Failed to book appointment."})
	case !res.OK:
		h.record(r.Context(), "book", target, &backend.APIError{Message: res.Message})
		h.renderBooking(w, r, form, auth.Notice{Kind: auth.NoticeError, Text: "Error: " + res.Message})
	default:
		// post/redirect/get, the GET renders the cleared form
		h.record(r.Context(), "book", target, nil)
		h.flash(w, auth.NoticeInfo, "Appointment booked successfully!")
		h.redirect(w, r, "/book")
	}
}
