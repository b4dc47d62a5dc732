package handler

import (
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"clinic-portal/internal/auth"
	"clinic-portal/internal/backend"
	"clinic-portal/internal/middleware"
	"clinic-portal/internal/view"
)

func (h *Handler) doctorPage(w http.ResponseWriter, r *http.Request) {
	page := view.DoctorPage{Base: h.base(w, r, "Doctor Dashboard")}

	appts, err := h.api.ListAppointments(r.Context(), backend.CredentialsFromRequest(r))
	if err != nil {
		log.Printf("[%s] list appointments: %v", middleware.RequestIDFrom(r.Context()), err)
		page.Notice = auth.Notice{Kind: auth.NoticeError, Text: "Error loading appointments."}
		page.Table = view.AppointmentTable{Failed: true}
	} else {
		page.Table = view.Appointments(appts)
	}
	h.render(w, r, "doctor", page)
}

func appointmentID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil
}

func (h *Handler) markDone(w http.ResponseWriter, r *http.Request) {
	id, ok := appointmentID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if !h.confirmed(w, r, "Are you sure this appointment is done?", "/doctor") {
		return
	}

	msg, err := h.api.MarkAppointmentDone(r.Context(), backend.CredentialsFromRequest(r), id)
	h.record(r.Context(), "mark_done", "appointments/"+strconv.FormatInt(id, 10), err)
	if err != nil {
		h.flash(w, auth.NoticeError, "Error: "+userMessage(err, "Failed to mark appointment as done"))
	} else {
		h.flash(w, auth.NoticeInfo, msg)
	}
	h.redirect(w, r, "/doctor")
}

func (h *Handler) deleteAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := appointmentID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if !h.confirmed(w, r, "Are you sure you want to delete this appointment?", "/doctor") {
		return
	}

	msg, err := h.api.DeleteAppointment(r.Context(), backend.CredentialsFromRequest(r), id)
	h.record(r.Context(), "delete_appointment", "appointments/"+strconv.FormatInt(id, 10), err)
	if err != nil {
		h.flash(w, auth.NoticeError, "Error: "+userMessage(err, "Failed to delete appointment"))
	} else {
		h.flash(w, auth.NoticeInfo, msg)
	}
	h.redirect(w, r, "/doctor")
}
