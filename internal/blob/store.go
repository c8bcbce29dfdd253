package blob

import (
	"context"
	"errors"
	"io"
)

var ErrNotFound = errors.New("file not found")

// Info describes a stored blob.
type Info struct {
	ID           string
	OriginalName string
	MimeType     string
	Size         int64
}

// Store is the content store backing media messages. Blobs are addressed by
// an opaque id; the chat core never interprets their contents.
type Store interface {
	Put(ctx context.Context, r io.Reader, info Info) (string, error)
	Get(ctx context.Context, id string) (io.ReadCloser, Info, error)
	Remove(ctx context.Context, id string) error
}
