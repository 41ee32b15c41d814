// Package models defines the domain types for the superhero catalog.
package models

import "time"

// Superhero is one catalog record.
type Superhero struct {
	ID                string    `json:"id"`
	Nickname          string    `json:"nickname"`
	RealName          string    `json:"real_name"`
	OriginDescription string    `json:"origin_description"`
	Superpowers       []string  `json:"superpowers"`
	CatchPhrase       string    `json:"catch_phrase"`
	Images            []string  `json:"images"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Fields is the caller-supplied part of a record. Updates replace all of it.
type Fields struct {
	Nickname          string   `json:"nickname"`
	RealName          string   `json:"real_name"`
	OriginDescription string   `json:"origin_description"`
	Superpowers       []string `json:"superpowers"`
	CatchPhrase       string   `json:"catch_phrase"`
}

// Normalize guarantees non-nil slices so records always encode arrays.
func (h *Superhero) Normalize() {
	if h.Superpowers == nil {
		h.Superpowers = []string{}
	}
	if h.Images == nil {
		h.Images = []string{}
	}
}

// Apply overwrites every descriptive field of h with f.
func (h *Superhero) Apply(f Fields) {
	h.Nickname = f.Nickname
	h.RealName = f.RealName
	h.OriginDescription = f.OriginDescription
	h.Superpowers = append([]string{}, f.Superpowers...)
	h.CatchPhrase = f.CatchPhrase
}

// Page is one slice of the catalog listing.
type Page struct {
	Records []Superhero `json:"records"`
	Total   int         `json:"total"`
	Page    int         `json:"page"`
	Pages   int         `json:"pages"`
}

// WithoutImage returns images with every entry equal to url removed.
func WithoutImage(images []string, url string) []string {
	out := make([]string, 0, len(images))
	for _, img := range images {
		if img != url {
			out = append(out, img)
		}
	}
	return out
}
