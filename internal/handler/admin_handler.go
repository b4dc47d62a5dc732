package handler

import (
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"clinic-portal/internal/auth"
	"clinic-portal/internal/backend"
	"clinic-portal/internal/middleware"
	"clinic-portal/internal/model"
	"clinic-portal/internal/view"
)

// adminPage shows one directory collection, chosen by ?view=.
func (h *Handler) adminPage(w http.ResponseWriter, r *http.Request) {
	kind := model.KindDoctor
	if k, ok := model.KindFromCollection(r.URL.Query().Get("view")); ok {
		kind = k
	}
	page := view.AdminPage{
		Base: h.base(w, r, "Admin Dashboard"),
		Tabs: view.Tabs(kind),
	}

	entries, err := h.api.ListDirectory(r.Context(), backend.CredentialsFromRequest(r), kind)
	if err != nil {
		log.Printf("[%s] list %s: %v", middleware.RequestIDFrom(r.Context()), kind.Collection(), err)
		page.Notice = auth.Notice{Kind: auth.NoticeError, Text: "Error loading " + kind.Collection() + "."}
		page.Table = view.FailedDirectory(kind)
	} else {
		page.Table = view.Directory(kind, entries)
	}

	recent, err := h.activity.Recent(r.Context(), recentActivity)
	if err != nil {
		log.Printf("[%s] recent activity: %v", middleware.RequestIDFrom(r.Context()), err)
	}
	page.Activity = recent

	h.render(w, r, "admin", page)
}

func (h *Handler) adminDelete(w http.ResponseWriter, r *http.Request) {
	kind, ok := model.KindFromCollection(chi.URLParam(r, "coll"))
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if !ok || err != nil {
		http.NotFound(w, r)
		return
	}
	back := "/admin?view=" + kind.Collection()
	if !h.confirmed(w, r, "Are you sure you want to delete this "+string(kind)+"?", back) {
		return
	}

	msg, err := h.api.DeleteDirectoryEntry(r.Context(), backend.CredentialsFromRequest(r), kind, id)
	h.record(r.Context(), "delete_"+string(kind), kind.Collection()+"/"+strconv.FormatInt(id, 10), err)
	if err != nil {
		h.flash(w, auth.NoticeError, userMessage(err, "Failed to delete item"))
	} else {
		h.flash(w, auth.NoticeInfo, msg)
	}
	// the list is always re-fetched, never patched
	h.redirect(w, r, back)
}
