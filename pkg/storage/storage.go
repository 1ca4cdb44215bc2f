package storage

import (
	"context"
	"errors"
	"path"
	"strings"
)

// FolderUploads is the root prefix of every media object.
const FolderUploads = "uploads"

// ErrOutsideStore is returned when a URL does not belong to the store.
var ErrOutsideStore = errors.New("url does not belong to this store")

// Blob describes a written object.
type Blob struct {
	Path string // e.g. /uploads/{eventId}/{variant}/{file}
	URL  string // public URL persisted on the media record
	Size int64
}

// BlobStore is the opaque media store.
type BlobStore interface {
	Write(ctx context.Context, blobPath, contentType string, body []byte) (Blob, error)
	// Delete removes the object behind url. It returns false when nothing was there.
	Delete(ctx context.Context, url string) (bool, error)
}

// MediaPath returns /uploads/{eventId}/{variant}/{filename}.
func MediaPath(eventID, variant, filename string) string {
	return "/" + path.Join(FolderUploads, eventID, variant, path.Base(filename))
}

// publicURL joins base and blobPath; an empty base yields the path itself.
func publicURL(base, blobPath string) string {
	if base == "" {
		return blobPath
	}
	return strings.TrimRight(base, "/") + blobPath
}

// pathFromURL strips base from url and checks the result stays under /uploads.
func pathFromURL(base, url string) (string, error) {
	p := url
	if base != "" {
		trimmed := strings.TrimRight(base, "/")
		if !strings.HasPrefix(url, trimmed+"/") {
			return "", ErrOutsideStore
		}
		p = strings.TrimPrefix(url, trimmed)
	}
	clean := path.Clean("/" + strings.TrimPrefix(p, "/"))
	if !strings.HasPrefix(clean, "/"+FolderUploads+"/") {
		return "", ErrOutsideStore
	}
	return clean, nil
}
