package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mailfang/mailfang/internal/pkg"
	"github.com/mailfang/mailfang/internal/store"
)

type AttachmentHandler struct {
	store *store.Store
}

func NewAttachmentHandler(st *store.Store) *AttachmentHandler {
	return &AttachmentHandler{store: st}
}

// Get handles GET /api/attachments/{id}.
func (h *AttachmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	att, err := h.store.GetAttachment(r.Context(), id)
	if err != nil {
		pkg.HandleError(w, err)
		return
	}

	contentType := "application/octet-stream"
	if att.ContentType != nil && *att.ContentType != "" {
		contentType = *att.ContentType
	}
	w.Header().Set("Content-Type", contentType)
	if att.Filename != nil && *att.Filename != "" {
		w.Header().Set("Content-Disposition", `inline; filename="`+*att.Filename+`"`)
	} else {
		w.Header().Set("Content-Disposition", "inline")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(att.Data)
}
