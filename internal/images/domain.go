// Package images stores image metadata in PostgreSQL and image bytes in a blob Storage.
package images

import (
	"errors"
	"fmt"
	"time"

	"github.com/pinboard/pinboard/internal/shared"
)

// Image is a stored image file with its pixel dimensions.
type Image struct {
	ID        int64     `json:"id"`
	File      string    `json:"file"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	CreatedAt time.Time `json:"created_at"`
}

var (
	// ErrFetch is the category of every remote download failure.
	ErrFetch = fmt.Errorf("images: fetch failed: %w", shared.ErrUpstream)
	// ErrImageNotFound indicates the image id does not exist.
	ErrImageNotFound = fmt.Errorf("images: %w", shared.ErrNotFound)
	// ErrInvalidKey indicates a storage key escaping the storage root.
	ErrInvalidKey = errors.New("images: invalid storage key")
)

// FetchError describes a failed download of URL.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("images: fetch %s: %v", e.URL, e.Err)
	default:
		return fmt.Sprintf("images: fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
}

// Unwrap exposes ErrFetch and the transport error, if any.
func (e *FetchError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrFetch, e.Err}
	}
	return []error{ErrFetch}
}
