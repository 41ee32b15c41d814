// Package media defines the binary-object store that holds superhero images.
//
// A Store hands out a URL for every uploaded object and later deletes the
// object again given that same URL. Records never see storage keys.
package media

import (
	"context"
	"fmt"
	"mime"
	"path"
	"strings"

	"github.com/google/uuid"
)

// Object is one binary payload to upload.
type Object struct {
	// Name is the original client filename; only its extension is kept.
	Name        string
	ContentType string
	Data        []byte
}

// Store is the interface for media object operations.
type Store interface {
	// Upload stores obj and returns the URL it can be fetched from.
	Upload(ctx context.Context, obj Object) (string, error)
	// Delete removes the object behind url. Deleting an object that no longer
	// exists succeeds.
	Delete(ctx context.Context, url string) error
}

var imageExt = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// newKey builds a fresh object key under folder, keeping the extension of the
// original filename or deriving one from the content type.
func newKey(folder string, obj Object) string {
	ext := strings.ToLower(path.Ext(obj.Name))
	if ext == "" {
		ext = imageExt[obj.ContentType]
	}
	if ext == "" && obj.ContentType != "" {
		if exts, err := mime.ExtensionsByType(obj.ContentType); err == nil && len(exts) > 0 {
			ext = exts[0]
		}
	}
	name := uuid.NewString() + ext
	if folder == "" {
		return name
	}
	return path.Join(folder, name)
}

// keyFromURL strips base from url and returns the object key. URLs outside
// base are rejected so a store never deletes objects it did not hand out.
func keyFromURL(base, url string) (string, error) {
	prefix := strings.TrimSuffix(base, "/") + "/"
	if !strings.HasPrefix(url, prefix) {
		return "", fmt.Errorf("media: url %q is not served by this store", url)
	}
	key := strings.TrimPrefix(url, prefix)
	if key == "" {
		return "", fmt.Errorf("media: url %q has no object key", url)
	}
	return key, nil
}

func joinURL(base, key string) string {
	return strings.TrimSuffix(base, "/") + "/" + key
}
