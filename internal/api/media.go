package api

import (
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/capes/internal/media"
)

// MediaHandler serves objects written by the filesystem media store.
type MediaHandler struct {
	fs *media.FS
}

// NewMediaHandler creates a handler over fs.
func NewMediaHandler(fs *media.FS) *MediaHandler {
	return &MediaHandler{fs: fs}
}

// ServeFile handles GET /media/*.
func (h *MediaHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	abs, err := h.fs.Path(key)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	info, err := os.Stat(abs)
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	http.ServeFile(w, r, abs)
}
