// Package pins manages submitted images, their board placement and tags.
package pins

import (
	"fmt"
	"time"

	"github.com/pinboard/pinboard/internal/images"
	"github.com/pinboard/pinboard/internal/shared"
)

// Pin is a submitted image, optionally filed on a board.
type Pin struct {
	ID          int64         `json:"id"`
	SubmitterID int64         `json:"submitter_id"`
	BoardID     *int64        `json:"board_id"`
	URL         *string       `json:"url"`
	Origin      *string       `json:"origin"`
	Description *string       `json:"description"`
	ImageID     int64         `json:"image_id"`
	Image       *images.Image `json:"image,omitempty"`
	Published   time.Time     `json:"published"`
	Tags        []string      `json:"tags"`
}

// CreateInput carries a pin submission from a client.
type CreateInput struct {
	URL         string   `json:"url" validate:"required,url,max=200"`
	Origin      *string  `json:"origin" validate:"omitempty,max=200"`
	Description *string  `json:"description"`
	BoardID     *int64   `json:"board_id" validate:"omitempty,gt=0"`
	Tags        []string `json:"tags" validate:"max=20"`
}

// Submission is a validated pin submission attributed to a user. It is also the
// payload of the asynchronous image fetch task.
type Submission struct {
	SubmitterID int64    `json:"submitter_id"`
	BoardID     *int64   `json:"board_id,omitempty"`
	URL         string   `json:"url"`
	Origin      *string  `json:"origin,omitempty"`
	Description *string  `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// UpdateInput carries editable pin fields. Nil fields are left unchanged;
// ClearBoard unfiles the pin.
type UpdateInput struct {
	Description *string `json:"description"`
	BoardID     *int64  `json:"board_id" validate:"omitempty,gt=0"`
	ClearBoard  bool    `json:"clear_board"`
}

// TagsInput replaces a pin's tags.
type TagsInput struct {
	Tags []string `json:"tags" validate:"max=20"`
}

// ListFilter narrows pin listings.
type ListFilter struct {
	Tag         string
	BoardID     *int64
	SubmitterID *int64
	Page        shared.Page
}

// SubmitResult reports the outcome of a submission.
type SubmitResult struct {
	Pin    *Pin `json:"pin,omitempty"`
	Queued bool `json:"queued"`
}

var (
	// ErrPinNotFound indicates the pin does not exist.
	ErrPinNotFound = fmt.Errorf("pins: %w", shared.ErrNotFound)
	// ErrDuplicateSubmission indicates a reused Idempotency-Key.
	ErrDuplicateSubmission = fmt.Errorf("pins: submission %w", shared.ErrDuplicate)
)

const idempotencyModule = "pins.submit"
