package images

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

const (
	defaultFilename = "image"
	// file column is varchar(255); leave room for the uuid prefix.
	maxFilenameLength = 200
)

// Store persists Image rows.
type Store interface {
	Create(ctx context.Context, img Image) (Image, error)
	Get(ctx context.Context, id int64) (Image, error)
	Delete(ctx context.Context, id int64) error
}

// HTTPDoer performs outbound requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher downloads remote images and materialises Image records.
type Fetcher struct {
	client  HTTPDoer
	storage Storage
	store   Store
	logger  *slog.Logger
	group   singleflight.Group
	newKey  func(filename string) string
}

// NewFetcher constructs a Fetcher. A nil client uses http.DefaultClient.
func NewFetcher(client HTTPDoer, storage Storage, store Store, logger *slog.Logger) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		client:  client,
		storage: storage,
		store:   store,
		logger:  logger,
		newKey: func(filename string) string {
			return uuid.NewString() + "/" + filename
		},
	}
}

// CreateForURL downloads rawURL and creates exactly one Image holding its bytes.
// Download failures are reported as *FetchError. Nothing is left behind on failure.
func (f *Fetcher) CreateForURL(ctx context.Context, rawURL string) (Image, error) {
	body, err := f.download(ctx, rawURL)
	if err != nil {
		return Image{}, err
	}

	key := f.newKey(FilenameFromURL(rawURL))
	if err := f.storage.Put(ctx, key, body, http.DetectContentType(body)); err != nil {
		return Image{}, fmt.Errorf("images: store %s: %w", key, err)
	}

	width, height := Dimensions(body)
	img, err := f.store.Create(ctx, Image{File: key, Width: width, Height: height})
	if err != nil {
		if delErr := f.storage.Delete(ctx, key); delErr != nil {
			f.logger.Error("remove orphaned image blob", slog.String("key", key), slog.Any("error", delErr))
		}
		return Image{}, fmt.Errorf("images: create record: %w", err)
	}
	f.logger.Debug("image stored", slog.Int64("image_id", img.ID), slog.String("key", key), slog.Int("bytes", len(body)))
	return img, nil
}

// Discard removes an image row and its blob, used when the owning pin could not be created.
func (f *Fetcher) Discard(ctx context.Context, img Image) error {
	if err := f.store.Delete(ctx, img.ID); err != nil {
		return fmt.Errorf("images: delete record %d: %w", img.ID, err)
	}
	if err := f.storage.Delete(ctx, img.File); err != nil {
		return fmt.Errorf("images: delete blob %s: %w", img.File, err)
	}
	return nil
}

// download buffers the full response body. Concurrent calls for the same URL share
// one request; the returned slice must not be modified. The shared request is not
// cancelled with any single caller, each caller only stops waiting for it. The
// client's own timeout bounds it.
func (f *Fetcher) download(ctx context.Context, rawURL string) ([]byte, error) {
	detached := context.WithoutCancel(ctx)
	ch := f.group.DoChan(rawURL, func() (any, error) {
		req, err := http.NewRequestWithContext(detached, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, &FetchError{URL: rawURL, Err: err}
		}
		resp, err := f.client.Do(req)
		if err != nil {
			return nil, &FetchError{URL: rawURL, Err: err}
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil, &FetchError{URL: rawURL, StatusCode: resp.StatusCode}
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, &FetchError{URL: rawURL, StatusCode: resp.StatusCode, Err: err}
		}
		return body, nil
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, &FetchError{URL: rawURL, Err: ctx.Err()}
	case res = <-ch:
	}
	if res.Err != nil {
		err := res.Err
		var fe *FetchError
		if !errors.As(err, &fe) {
			err = &FetchError{URL: rawURL, Err: err}
		}
		return nil, err
	}
	return res.Val.([]byte), nil
}

// FilenameFromURL returns the last path segment of rawURL, or "image".
func FilenameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return defaultFilename
	}
	name := path.Base(u.Path)
	switch name {
	case "", ".", "/", "..":
		return defaultFilename
	}
	name = strings.Map(func(r rune) rune {
		if r == '\\' || r < 0x20 {
			return '_'
		}
		return r
	}, name)
	if len(name) > maxFilenameLength {
		// Keep the tail, starting on a rune boundary.
		cut := len(name) - maxFilenameLength
		for cut < len(name) && !utf8.RuneStart(name[cut]) {
			cut++
		}
		name = name[cut:]
	}
	return name
}

// Dimensions decodes the pixel size of png, jpeg or gif data. Unknown formats yield 0x0.
func Dimensions(data []byte) (int, int) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}
