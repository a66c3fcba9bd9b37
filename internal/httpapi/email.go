package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mailfang/mailfang/internal/eventbus"
	"github.com/mailfang/mailfang/internal/pkg"
	"github.com/mailfang/mailfang/internal/render"
	"github.com/mailfang/mailfang/internal/store"
)

type EmailHandler struct {
	store *store.Store
	bus   *eventbus.Bus
}

func NewEmailHandler(st *store.Store, bus *eventbus.Bus) *EmailHandler {
	return &EmailHandler{store: st, bus: bus}
}

type listResponse struct {
	Emails     []store.EmailListRecord `json:"emails"`
	Counts     store.EmailStats        `json:"counts"`
	Pagination pagination               `json:"pagination"`
}

type pagination struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
	Total   int `json:"total"`
}

// List handles GET /api/emails.
func (h *EmailHandler) List(w http.ResponseWriter, r *http.Request) {
	params := parsePagination(r)
	if err := pkg.Validate(&params); err != nil {
		pkg.Error(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	q := params.Normalize()
	emails, total, err := h.store.List(r.Context(), q)
	if err != nil {
		pkg.HandleError(w, err)
		return
	}
	h.respondList(w, r, emails, total, q)
}

// ListByRecipient handles GET /api/emails/recipients/{address}/emails.
func (h *EmailHandler) ListByRecipient(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")

	params := parsePagination(r)
	if err := pkg.Validate(&params); err != nil {
		pkg.Error(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	q := params.Normalize()
	emails, total, err := h.store.ListByRecipient(r.Context(), address, q)
	if err != nil {
		pkg.HandleError(w, err)
		return
	}
	h.respondList(w, r, emails, total, q)
}

func (h *EmailHandler) respondList(w http.ResponseWriter, r *http.Request, emails []store.EmailListRecord, total int, q store.ListQuery) {
	counts, err := h.store.Counts(r.Context())
	if err != nil {
		pkg.HandleError(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, listResponse{
		Emails: emails,
		Counts: counts,
		Pagination: pagination{
			Page:    q.Page,
			PerPage: q.PerPage,
			Total:   total,
		},
	})
}

// Get handles GET /api/emails/{id}. The first fetch marks the email read and
// broadcasts the transition over the event bus.
func (h *EmailHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := h.store.GetFull(r.Context(), id)
	if err != nil {
		pkg.HandleError(w, err)
		return
	}

	if !rec.Read {
		listRec, transitioned, err := h.store.MarkRead(r.Context(), id, true)
		if err != nil {
			pkg.HandleError(w, err)
			return
		}
		rec.Read = true
		if transitioned && h.bus != nil {
			h.bus.PublishEmailRead(listRec)
		}
	}

	pkg.JSON(w, http.StatusOK, rec)
}

// Delete handles DELETE /api/emails/{id}.
func (h *EmailHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	deleted, err := h.store.Delete(r.Context(), id)
	if err != nil {
		pkg.HandleError(w, err)
		return
	}
	if !deleted {
		pkg.Error(w, http.StatusNotFound, "email not found")
		return
	}
	if h.bus != nil {
		h.bus.PublishEmailDeleted(id)
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteAll handles DELETE /api/emails.
func (h *EmailHandler) DeleteAll(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteAll(r.Context()); err != nil {
		pkg.HandleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Raw handles GET /api/emails/{id}/raw.
func (h *EmailHandler) Raw(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	raw, err := h.store.GetRaw(r.Context(), id)
	if err != nil {
		pkg.HandleError(w, err)
		return
	}
	w.Header().Set("Content-Type", "message/rfc822")
	w.Header().Set("Content-Disposition", `attachment; filename="email-`+id+`.eml"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(raw))
}

// Rendered handles GET /api/emails/{id}/rendered?allow_remote_content=bool.
func (h *EmailHandler) Rendered(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	html, err := h.store.GetRendered(r.Context(), id)
	if err != nil {
		pkg.HandleError(w, err)
		return
	}

	allowRemote, _ := strconv.ParseBool(r.URL.Query().Get("allow_remote_content"))
	if !allowRemote {
		html = render.InjectCSP(html)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(html))
}

// Counts handles GET /api/counts.
func (h *EmailHandler) Counts(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Counts(r.Context())
	if err != nil {
		pkg.HandleError(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, stats)
}

// parsePagination extracts page, per_page, and search from query params.
func parsePagination(r *http.Request) store.ListParams {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	return store.ListParams{
		Page:    page,
		PerPage: perPage,
		Search:  r.URL.Query().Get("search"),
	}
}
