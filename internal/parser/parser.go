// Package parser decodes superhero submissions from multipart forms.
package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/starford/capes/internal/apperr"
	"github.com/starford/capes/internal/media"
	"github.com/starford/capes/internal/models"
)

// Form field names.
const (
	FieldNickname          = "nickname"
	FieldRealName          = "real_name"
	FieldOriginDescription = "origin_description"
	FieldSuperpowers       = "superpowers"
	FieldCatchPhrase       = "catch_phrase"
	FieldImages            = "images"
)

// maxMemory is the in-memory budget for ParseMultipartForm; larger parts
// spill to temp files.
const maxMemory = 32 << 20

// sniffLen is how many bytes http.DetectContentType looks at.
const sniffLen = 512

// Limits bounds what a single submission may carry.
type Limits struct {
	MaxImages     int
	MaxImageBytes int64
}

// Form is a decoded submission.
type Form struct {
	Fields models.Fields
	Images []media.Object
}

// ParseHeroForm decodes a multipart/form-data request. A JSON body is also
// accepted for submissions without images. Malformed input wraps
// apperr.ErrValidation.
func ParseHeroForm(r *http.Request, lim Limits) (*Form, error) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		return parseJSON(r.Body)
	}

	if err := r.ParseMultipartForm(maxMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, fmt.Errorf("%w: request body exceeds %d bytes", apperr.ErrValidation, tooLarge.Limit)
		}
		return nil, fmt.Errorf("%w: invalid multipart form: %v", apperr.ErrValidation, err)
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck

	values := r.MultipartForm.Value
	form := &Form{
		Fields: models.Fields{
			Nickname:          first(values[FieldNickname]),
			RealName:          first(values[FieldRealName]),
			OriginDescription: first(values[FieldOriginDescription]),
			CatchPhrase:       first(values[FieldCatchPhrase]),
			Superpowers:       SplitSuperpowers(values[FieldSuperpowers]),
		},
		Images: []media.Object{},
	}

	files := r.MultipartForm.File[FieldImages]
	if lim.MaxImages > 0 && len(files) > lim.MaxImages {
		return nil, fmt.Errorf("%w: at most %d images per request", apperr.ErrValidation, lim.MaxImages)
	}
	for _, fh := range files {
		obj, err := readImage(fh, lim.MaxImageBytes)
		if err != nil {
			return nil, err
		}
		form.Images = append(form.Images, obj)
	}
	return form, nil
}

func parseJSON(body io.Reader) (*Form, error) {
	var f models.Fields
	if err := json.NewDecoder(body).Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON body: %v", apperr.ErrValidation, err)
	}
	f.Superpowers = SplitSuperpowers(f.Superpowers)
	return &Form{Fields: f, Images: []media.Object{}}, nil
}

// SplitSuperpowers flattens repeated values and comma-separated lists into one
// trimmed list, dropping empty entries.
func SplitSuperpowers(values []string) []string {
	out := []string{}
	for _, v := range values {
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func readImage(fh *multipart.FileHeader, maxBytes int64) (media.Object, error) {
	name := filepath.Base(fh.Filename)
	if maxBytes > 0 && fh.Size > maxBytes {
		return media.Object{}, fmt.Errorf("%w: image %q exceeds %d bytes", apperr.ErrValidation, name, maxBytes)
	}
	f, err := fh.Open()
	if err != nil {
		return media.Object{}, fmt.Errorf("%w: read image %q: %v", apperr.ErrValidation, name, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return media.Object{}, fmt.Errorf("%w: read image %q: %v", apperr.ErrValidation, name, err)
	}
	if len(data) == 0 {
		return media.Object{}, fmt.Errorf("%w: image %q is empty", apperr.ErrValidation, name)
	}

	ct := http.DetectContentType(data[:min(len(data), sniffLen)])
	if !strings.HasPrefix(ct, "image/") {
		return media.Object{}, fmt.Errorf("%w: %q is not an image (%s)", apperr.ErrValidation, name, ct)
	}
	return media.Object{Name: name, ContentType: ct, Data: data}, nil
}

func first(vs []string) string {
	if len(vs) == 0 {
		return ""
	}
	return vs[0]
}
