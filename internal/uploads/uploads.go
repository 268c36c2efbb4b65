// Package uploads provides presigned image-upload URLs and object cleanup
// for listing images.
package uploads

import (
	"context"
	"errors"
)

// ErrBadFilename is returned when a filename has no usable extension.
var ErrBadFilename = errors.New("filename must have an extension")

// Signer mints presigned upload URLs and deletes stored objects.
// Implementations must be safe for concurrent use.
type Signer interface {
	// UploadURL returns a presigned PUT URL for the given filename and the
	// object key it will be stored under.
	UploadURL(ctx context.Context, filename string) (url string, key string, err error)

	// Delete removes a stored object. Callers treat failures as best-effort:
	// they log and move on, they never fail the primary operation.
	Delete(ctx context.Context, key string) error
}
