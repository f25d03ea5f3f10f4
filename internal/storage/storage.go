package storage

import (
	"context"
	"io"
	"strings"
)

// Object is one upload. Name carries no extension; Ext is derived from the sniffed content type.
type Object struct {
	Folder string
	Name   string
	Ext    string
	Body   io.Reader
}

// ImageStore persists an uploaded image and returns the URL clients should load it from.
type ImageStore interface {
	Save(ctx context.Context, obj Object) (string, error)
}

var imageExt = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// ImageExt reports the file extension for a sniffed image content type.
func ImageExt(contentType string) (string, bool) {
	contentType, _, _ = strings.Cut(contentType, ";")
	ext, ok := imageExt[strings.TrimSpace(contentType)]
	return ext, ok
}
