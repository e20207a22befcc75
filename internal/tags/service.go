package tags

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pinboard/pinboard/internal/platform/db"
)

// Store is the persistence port used by Service.
type Store interface {
	FindByName(ctx context.Context, name string) (Tag, error)
	FindBySlug(ctx context.Context, slug string) (Tag, error)
	Insert(ctx context.Context, name, slug string) (Tag, error)
	Attach(ctx context.Context, item TaggedItem) error
	Detach(ctx context.Context, item TaggedItem) error
	DetachAll(ctx context.Context, contentType string, objectID int64) error
	ForObject(ctx context.Context, contentType string, objectID int64) ([]Tag, error)
	ObjectIDs(ctx context.Context, contentType string, tagID int64) ([]int64, error)
}

// slugAttempts bounds the "-1", "-2", ... suffix search on slug collisions.
const slugAttempts = 100

// Service manages tags on arbitrary objects.
type Service struct {
	store Store
}

// NewService constructs a Service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Add attaches the named tags to the object, creating missing tags.
func (s *Service) Add(ctx context.Context, contentType string, objectID int64, names ...string) error {
	cleaned, err := CleanNames(names)
	if err != nil {
		return err
	}
	for _, name := range cleaned {
		tag, err := s.getOrCreate(ctx, name)
		if err != nil {
			return err
		}
		if err := s.store.Attach(ctx, TaggedItem{ContentType: contentType, ObjectID: objectID, TagID: tag.ID}); err != nil {
			return fmt.Errorf("tags: attach %q: %w", name, err)
		}
	}
	return nil
}

// Set replaces the object's tags with names. An empty list clears them.
func (s *Service) Set(ctx context.Context, contentType string, objectID int64, names []string) error {
	cleaned, err := CleanNames(names)
	if err != nil {
		return err
	}
	if err := s.store.DetachAll(ctx, contentType, objectID); err != nil {
		return fmt.Errorf("tags: clear: %w", err)
	}
	return s.Add(ctx, contentType, objectID, cleaned...)
}

// Remove detaches the named tags. Unknown names are ignored.
func (s *Service) Remove(ctx context.Context, contentType string, objectID int64, names ...string) error {
	for _, name := range names {
		tag, err := s.store.FindByName(ctx, strings.TrimSpace(name))
		if errors.Is(err, ErrTagNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if err := s.store.Detach(ctx, TaggedItem{ContentType: contentType, ObjectID: objectID, TagID: tag.ID}); err != nil {
			return fmt.Errorf("tags: detach %q: %w", name, err)
		}
	}
	return nil
}

// ForObject lists the tags attached to an object.
func (s *Service) ForObject(ctx context.Context, contentType string, objectID int64) ([]Tag, error) {
	return s.store.ForObject(ctx, contentType, objectID)
}

// ObjectsWithTag lists ids of objects carrying the tag identified by name or slug.
// An unknown tag yields an empty list.
func (s *Service) ObjectsWithTag(ctx context.Context, contentType, tag string) ([]int64, error) {
	tag = strings.TrimSpace(tag)
	t, err := s.store.FindByName(ctx, tag)
	if errors.Is(err, ErrTagNotFound) {
		t, err = s.store.FindBySlug(ctx, tag)
	}
	if errors.Is(err, ErrTagNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.store.ObjectIDs(ctx, contentType, t.ID)
}

func (s *Service) getOrCreate(ctx context.Context, name string) (Tag, error) {
	tag, err := s.store.FindByName(ctx, name)
	if err == nil || !errors.Is(err, ErrTagNotFound) {
		return tag, err
	}
	base := Slugify(name)
	for i := 0; i < slugAttempts; i++ {
		slug := base
		if i > 0 {
			slug = fmt.Sprintf("%s-%d", base, i)
		}
		if _, err := s.store.FindBySlug(ctx, slug); err == nil {
			continue
		} else if !errors.Is(err, ErrTagNotFound) {
			return Tag{}, err
		}
		tag, err := s.store.Insert(ctx, name, slug)
		if err == nil {
			return tag, nil
		}
		if !db.IsUniqueViolation(err) {
			return Tag{}, fmt.Errorf("tags: create %q: %w", name, err)
		}
		// Lost a race: another writer may have created the same name.
		if existing, findErr := s.store.FindByName(ctx, name); findErr == nil {
			return existing, nil
		}
	}
	return Tag{}, fmt.Errorf("%w: %q", ErrSlugExhausted, name)
}

// CleanNames trims, deduplicates and validates tag names, preserving order.
func CleanNames(names []string) ([]string, error) {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		if len(name) > maxNameLength {
			return nil, fmt.Errorf("%w: %q longer than %d characters", ErrInvalidTag, name, maxNameLength)
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out, nil
}
