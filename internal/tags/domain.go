// Package tags stores free-form labels and their association with pins.
package tags

import (
	"errors"
	"fmt"

	"github.com/pinboard/pinboard/internal/shared"
)

// Tag is a label with a stable, unique slug.
type Tag struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// TaggedItem associates a tag with an object of some content type.
type TaggedItem struct {
	ContentType string
	ObjectID    int64
	TagID       int64
}

const maxNameLength = 100

var (
	// ErrTagNotFound indicates the tag name or slug does not exist.
	ErrTagNotFound = fmt.Errorf("tags: %w", shared.ErrNotFound)
	// ErrInvalidTag indicates an empty or over-long tag name.
	ErrInvalidTag = fmt.Errorf("tags: %w", shared.ErrValidation)
	// ErrSlugExhausted is returned when no free slug variant could be found.
	ErrSlugExhausted = errors.New("tags: could not allocate unique slug")
)
