package pins

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/pinboard/pinboard/internal/images"
	"github.com/pinboard/pinboard/internal/rbac"
	"github.com/pinboard/pinboard/internal/shared"
	"github.com/pinboard/pinboard/internal/tags"
)

// Permissions is the subset of rbac.Service used for pin grants.
type Permissions interface {
	Grant(ctx context.Context, perm string, userID int64, obj rbac.Object) error
	RevokeAll(ctx context.Context, obj rbac.Object) (int64, error)
}

// Tagger attaches tags to pins.
type Tagger interface {
	Set(ctx context.Context, contentType string, objectID int64, names []string) error
}

// RepositoryPort defines data access methods for pins.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Pin, error)
	List(ctx context.Context, filter ListFilter) ([]Pin, error)
}

// ImageFetcher materialises images from remote URLs.
type ImageFetcher interface {
	CreateForURL(ctx context.Context, rawURL string) (images.Image, error)
	Discard(ctx context.Context, img images.Image) error
}

// Authorizer checks object permissions for a principal.
type Authorizer interface {
	Has(ctx context.Context, p rbac.Principal, perm string, obj rbac.Object) (bool, error)
}

// Enqueuer schedules asynchronous pin creation.
type Enqueuer interface {
	EnqueueImageFetch(ctx context.Context, sub Submission) error
}

// IdempotencyPort claims and releases submission keys.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Release(ctx context.Context, key, module string) error
}

// ServiceConfig wires optional collaborators.
type ServiceConfig struct {
	// Async enqueues submissions instead of fetching inline. Requires Enqueuer.
	Async       bool
	Enqueuer    Enqueuer
	Idempotency IdempotencyPort
}

// Service implements pin business logic.
type Service struct {
	repo     RepositoryPort
	fetcher  ImageFetcher
	authz    Authorizer
	cfg      ServiceConfig
	validate *validator.Validate
	logger   *slog.Logger
}

// NewService constructs a Service.
func NewService(repo RepositoryPort, fetcher ImageFetcher, authz Authorizer, cfg ServiceConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, fetcher: fetcher, authz: authz, cfg: cfg, validate: validator.New(), logger: logger}
}

// Submit validates a client submission and either creates the pin or queues it.
// A non-empty idempotencyKey can be used once per submission.
func (s *Service) Submit(ctx context.Context, p shared.Principal, in CreateInput, idempotencyKey string) (SubmitResult, error) {
	in.URL = strings.TrimSpace(in.URL)
	if err := s.validate.Struct(in); err != nil {
		return SubmitResult{}, err
	}
	cleaned, err := tags.CleanNames(in.Tags)
	if err != nil {
		return SubmitResult{}, err
	}
	if in.BoardID != nil {
		if err := s.requireBoard(ctx, p, *in.BoardID); err != nil {
			return SubmitResult{}, err
		}
	}

	if idempotencyKey != "" && s.cfg.Idempotency != nil {
		if err := s.cfg.Idempotency.CheckAndInsert(ctx, idempotencyKey, idempotencyModule); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return SubmitResult{}, ErrDuplicateSubmission
			}
			return SubmitResult{}, err
		}
	}

	sub := Submission{
		SubmitterID: p.UserID,
		BoardID:     in.BoardID,
		URL:         in.URL,
		Origin:      in.Origin,
		Description: in.Description,
		Tags:        cleaned,
	}

	var result SubmitResult
	if s.cfg.Async && s.cfg.Enqueuer != nil {
		err = s.cfg.Enqueuer.EnqueueImageFetch(ctx, sub)
		result.Queued = err == nil
	} else {
		var pin Pin
		pin, err = s.CreateFromSubmission(ctx, sub)
		result.Pin = &pin
	}
	if err != nil {
		if idempotencyKey != "" && s.cfg.Idempotency != nil {
			if relErr := s.cfg.Idempotency.Release(ctx, idempotencyKey, idempotencyModule); relErr != nil {
				s.logger.Warn("release idempotency key", slog.Any("error", relErr))
			}
		}
		return SubmitResult{}, err
	}
	return result, nil
}

// CreateFromSubmission downloads the image and stores the pin with its grants and tags.
// The image is discarded when the pin cannot be stored.
func (s *Service) CreateFromSubmission(ctx context.Context, sub Submission) (Pin, error) {
	img, err := s.fetcher.CreateForURL(ctx, sub.URL)
	if err != nil {
		return Pin{}, err
	}

	var created Pin
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		url := sub.URL
		pin, err := tx.Insert(ctx, Pin{
			SubmitterID: sub.SubmitterID,
			BoardID:     sub.BoardID,
			URL:         &url,
			Origin:      sub.Origin,
			Description: sub.Description,
			ImageID:     img.ID,
		})
		if err != nil {
			return fmt.Errorf("pins: insert: %w", err)
		}
		obj := rbac.PinObject(pin.ID)
		for _, perm := range shared.PinSubmitterPermissions() {
			if err := tx.Permissions().Grant(ctx, perm, sub.SubmitterID, obj); err != nil {
				return err
			}
		}
		if len(sub.Tags) > 0 {
			if err := tx.Tags().Set(ctx, shared.ObjectPin, pin.ID, sub.Tags); err != nil {
				return err
			}
		}
		created, err = tx.Get(ctx, pin.ID)
		return err
	})
	if err != nil {
		if discardErr := s.fetcher.Discard(ctx, img); discardErr != nil {
			s.logger.Error("discard image", slog.Int64("image_id", img.ID), slog.Any("error", discardErr))
		}
		return Pin{}, err
	}
	s.logger.Info("pin created", slog.Int64("pin_id", created.ID), slog.Int64("user_id", sub.SubmitterID))
	return created, nil
}

// Get returns a pin.
func (s *Service) Get(ctx context.Context, id int64) (Pin, error) {
	return s.repo.Get(ctx, id)
}

// List returns recent pins. Filtering by board requires view access to it.
func (s *Service) List(ctx context.Context, p shared.Principal, filter ListFilter) ([]Pin, error) {
	if filter.BoardID != nil {
		if err := s.requireBoard(ctx, p, *filter.BoardID); err != nil {
			return nil, err
		}
	}
	filter.Tag = strings.TrimSpace(filter.Tag)
	return s.repo.List(ctx, filter)
}

// Update edits a pin's description or board.
func (s *Service) Update(ctx context.Context, p shared.Principal, id int64, in UpdateInput) (Pin, error) {
	if err := s.validate.Struct(in); err != nil {
		return Pin{}, err
	}
	if in.BoardID != nil {
		if err := s.requireBoard(ctx, p, *in.BoardID); err != nil {
			return Pin{}, err
		}
	}
	var updated Pin
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		pin, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		if in.Description != nil {
			pin.Description = in.Description
		}
		switch {
		case in.ClearBoard:
			pin.BoardID = nil
		case in.BoardID != nil:
			pin.BoardID = in.BoardID
		}
		if err := tx.Update(ctx, pin); err != nil {
			return err
		}
		updated, err = tx.Get(ctx, id)
		return err
	})
	return updated, err
}

// SetTags replaces a pin's tags.
func (s *Service) SetTags(ctx context.Context, id int64, names []string) (Pin, error) {
	cleaned, err := tags.CleanNames(names)
	if err != nil {
		return Pin{}, err
	}
	var updated Pin
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.Get(ctx, id); err != nil {
			return err
		}
		if err := tx.Tags().Set(ctx, shared.ObjectPin, id, cleaned); err != nil {
			return err
		}
		updated, err = tx.Get(ctx, id)
		return err
	})
	return updated, err
}

// Delete removes a pin, its grants, its tags and its image.
func (s *Service) Delete(ctx context.Context, id int64) error {
	var img images.Image
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		pin, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		if pin.Image != nil {
			img = *pin.Image
		}
		if _, err := tx.Permissions().RevokeAll(ctx, rbac.PinObject(id)); err != nil {
			return err
		}
		if err := tx.Tags().Set(ctx, shared.ObjectPin, id, nil); err != nil {
			return err
		}
		return tx.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	if img.ID != 0 {
		if err := s.fetcher.Discard(ctx, img); err != nil {
			s.logger.Warn("discard image of deleted pin", slog.Int64("pin_id", id), slog.Any("error", err))
		}
	}
	return nil
}

func (s *Service) requireBoard(ctx context.Context, p shared.Principal, boardID int64) error {
	ok, err := s.authz.Has(ctx, p, shared.PermViewBoard, rbac.BoardObject(boardID))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("pins: board %d: %w", boardID, shared.ErrNotFound)
	}
	return nil
}
