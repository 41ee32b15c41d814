package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/capes/internal/heroservice"
	"github.com/starford/capes/internal/parser"
)

// Handler holds API route handlers.
type Handler struct {
	svc          *heroservice.Service
	limits       parser.Limits
	maxBodyBytes int64
}

// NewHandler creates a new Handler.
func NewHandler(svc *heroservice.Service, limits parser.Limits, maxBodyBytes int64) *Handler {
	return &Handler{svc: svc, limits: limits, maxBodyBytes: maxBodyBytes}
}

func (h *Handler) parseForm(w http.ResponseWriter, r *http.Request) (*parser.Form, error) {
	if h.maxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}
	return parser.ParseHeroForm(r, h.limits)
}

// ListHeroes handles GET /resources.
//
//	@Summary		List superheroes, newest first
//	@Tags			resources
//	@Produce		json
//	@Param			page	query		int	false	"Page number (1-based)"
//	@Param			limit	query		int	false	"Page size"
//	@Success		200		{object}	ListResponse
//	@Router			/resources [get]
func (h *Handler) ListHeroes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	res, err := h.svc.List(r.Context(), page, limit)
	if err != nil {
		writeError(w, "list superheroes", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetHero handles GET /resources/{id}.
//
//	@Summary		Get a single superhero
//	@Tags			resources
//	@Produce		json
//	@Param			id	path		string	true	"Record id"
//	@Success		200	{object}	Superhero
//	@Failure		404	{object}	errResponse
//	@Router			/resources/{id} [get]
func (h *Handler) GetHero(w http.ResponseWriter, r *http.Request) {
	hero, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get superhero", err)
		return
	}
	writeJSON(w, http.StatusOK, hero)
}

// CreateHero handles POST /resources.
//
//	@Summary		Create a superhero with up to 5 images
//	@Tags			resources
//	@Accept			multipart/form-data
//	@Produce		json
//	@Success		200	{object}	Superhero
//	@Failure		400	{object}	errResponse
//	@Failure		500	{object}	errResponse
//	@Failure		504	{object}	errResponse
//	@Router			/resources [post]
func (h *Handler) CreateHero(w http.ResponseWriter, r *http.Request) {
	form, err := h.parseForm(w, r)
	if err != nil {
		writeError(w, "create superhero", err)
		return
	}
	hero, err := h.svc.Create(r.Context(), heroservice.CreateInput{
		Fields: form.Fields,
		Images: form.Images,
	})
	if err != nil {
		writeError(w, "create superhero", err)
		return
	}
	writeJSON(w, http.StatusOK, hero)
}

// UpdateHero handles PUT /resources/{id}.
//
//	@Summary		Replace a superhero's fields and append new images
//	@Tags			resources
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			id	path		string	true	"Record id"
//	@Success		200	{object}	Superhero
//	@Failure		400	{object}	errResponse
//	@Failure		404	{object}	errResponse
//	@Router			/resources/{id} [put]
func (h *Handler) UpdateHero(w http.ResponseWriter, r *http.Request) {
	form, err := h.parseForm(w, r)
	if err != nil {
		writeError(w, "update superhero", err)
		return
	}
	hero, err := h.svc.Update(r.Context(), heroservice.UpdateInput{
		ID:     chi.URLParam(r, "id"),
		Fields: form.Fields,
		Images: form.Images,
	})
	if err != nil {
		writeError(w, "update superhero", err)
		return
	}
	writeJSON(w, http.StatusOK, hero)
}

// DeleteHero handles DELETE /resources/{id}.
//
//	@Summary		Delete a superhero
//	@Tags			resources
//	@Produce		json
//	@Param			id	path		string	true	"Record id"
//	@Success		200	{object}	DeleteResponse
//	@Failure		404	{object}	errResponse
//	@Router			/resources/{id} [delete]
func (h *Handler) DeleteHero(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.svc.Delete(r.Context(), id); err != nil {
		writeError(w, "delete superhero", err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteResponse{Message: "resource deleted", ID: id})
}

// RemoveImage handles DELETE /resources/{id}/image?url=.
//
//	@Summary		Remove one image from a superhero
//	@Tags			resources
//	@Produce		json
//	@Param			id	path		string	true	"Record id"
//	@Param			url	query		string	true	"Image URL"
//	@Success		200	{object}	ImagesResponse
//	@Failure		400	{object}	errResponse
//	@Failure		404	{object}	errResponse
//	@Failure		502	{object}	errResponse
//	@Router			/resources/{id}/image [delete]
func (h *Handler) RemoveImage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	url := r.URL.Query().Get("url")
	if url == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'url' is required"))
		return
	}
	images, err := h.svc.RemoveImage(r.Context(), id, url)
	if err != nil {
		writeError(w, "remove image", err)
		return
	}
	writeJSON(w, http.StatusOK, ImagesResponse{ID: id, Images: images})
}
