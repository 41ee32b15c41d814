package api

import "github.com/starford/capes/internal/models"

// Superhero is the record response type (aliased from the domain layer).
type Superhero = models.Superhero

// ListResponse is one page of the catalog.
type ListResponse = models.Page

// DeleteResponse confirms a deleted record.
type DeleteResponse struct {
	Message string `json:"message" example:"resource deleted" validate:"required"`
	ID      string `json:"id" example:"7f1c..." validate:"required"`
}

// ImagesResponse is returned after removing an image.
type ImagesResponse struct {
	ID     string   `json:"id" validate:"required"`
	Images []string `json:"images" validate:"required"`
}
