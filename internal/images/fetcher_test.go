package images

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/pinboard/pinboard/internal/shared"
)

type memoryStorage struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{blobs: make(map[string][]byte)}
}

func (m *memoryStorage) Put(ctx context.Context, key string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = append([]byte(nil), data...)
	return nil
}

func (m *memoryStorage) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, key)
	return nil
}

type memoryStore struct {
	mu        sync.Mutex
	nextID    int64
	images    map[int64]Image
	createErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{images: make(map[int64]Image)}
}

func (m *memoryStore) Create(ctx context.Context, img Image) (Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return Image{}, m.createErr
	}
	m.nextID++
	img.ID = m.nextID
	m.images[img.ID] = img
	return img, nil
}

func (m *memoryStore) Get(ctx context.Context, id int64) (Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	img, ok := m.images[id]
	if !ok {
		return Image{}, ErrImageNotFound
	}
	return img, nil
}

func (m *memoryStore) Delete(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.images, id)
	return nil
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newTestFetcher(client HTTPDoer) (*Fetcher, *memoryStorage, *memoryStore) {
	storage := newMemoryStorage()
	store := newMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewFetcher(client, storage, store, logger), storage, store
}

func TestCreateForURL(t *testing.T) {
	body := pngBytes(t, 4, 3)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	f, storage, store := newTestFetcher(srv.Client())
	img, err := f.CreateForURL(context.Background(), srv.URL+"/media/cat.png?size=large")
	require.NoError(t, err)
	require.Equal(t, 4, img.Width)
	require.Equal(t, 3, img.Height)
	require.Regexp(t, `^[0-9a-f-]{36}/cat\.png$`, img.File)
	require.Equal(t, body, storage.blobs[img.File])
	require.Len(t, store.images, 1)
}

func TestCreateForURLUndecodableBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not an image"))
	}))
	defer srv.Close()

	f, _, _ := newTestFetcher(srv.Client())
	img, err := f.CreateForURL(context.Background(), srv.URL+"/")
	require.NoError(t, err)
	require.Zero(t, img.Width)
	require.Zero(t, img.Height)
	require.Regexp(t, `/image$`, img.File)
}

func TestCreateForURLHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f, storage, store := newTestFetcher(srv.Client())
	_, err := f.CreateForURL(context.Background(), srv.URL+"/missing.png")
	require.ErrorIs(t, err, ErrFetch)
	require.ErrorIs(t, err, shared.ErrUpstream)
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	require.Equal(t, http.StatusNotFound, fe.StatusCode)
	require.Empty(t, storage.blobs)
	require.Empty(t, store.images)
}

func TestCreateForURLTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL + "/gone.png"
	srv.Close()

	f, storage, store := newTestFetcher(http.DefaultClient)
	_, err := f.CreateForURL(context.Background(), url)
	require.ErrorIs(t, err, ErrFetch)
	require.Empty(t, storage.blobs)
	require.Empty(t, store.images)
}

func TestCreateForURLRemovesBlobWhenRecordFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(pngBytes(t, 1, 1))
	}))
	defer srv.Close()

	f, storage, store := newTestFetcher(srv.Client())
	store.createErr = errors.New("db down")
	_, err := f.CreateForURL(context.Background(), srv.URL+"/a.png")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrFetch)
	require.Empty(t, storage.blobs)
}

func TestDiscard(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(pngBytes(t, 1, 1))
	}))
	defer srv.Close()

	f, storage, store := newTestFetcher(srv.Client())
	img, err := f.CreateForURL(context.Background(), srv.URL+"/a.png")
	require.NoError(t, err)
	require.NoError(t, f.Discard(context.Background(), img))
	require.Empty(t, storage.blobs)
	require.Empty(t, store.images)
}

func TestConcurrentFetchesGetOwnRecords(t *testing.T) {
	var hits atomic.Int32
	body := pngBytes(t, 2, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	f, storage, store := newTestFetcher(srv.Client())
	const callers = 8
	var wg sync.WaitGroup
	ids := make(chan int64, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			img, err := f.CreateForURL(context.Background(), srv.URL+"/shared.png")
			if err == nil {
				ids <- img.ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool)
	for id := range ids {
		seen[id] = true
	}
	require.Len(t, seen, callers)
	require.Len(t, store.images, callers)
	require.Len(t, storage.blobs, callers)
	require.LessOrEqual(t, int(hits.Load()), callers)
}

func TestCancelledCallerLeavesSharedDownloadRunning(t *testing.T) {
	body := pngBytes(t, 2, 2)
	started := make(chan struct{})
	release := make(chan struct{})
	var aborted atomic.Bool
	var once sync.Once
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() { close(started) })
		select {
		case <-release:
		case <-r.Context().Done():
			aborted.Store(true)
			return
		}
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	f, _, _ := newTestFetcher(srv.Client())
	target := srv.URL + "/a.png"

	ctx, cancel := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := f.CreateForURL(ctx, target)
		errA <- err
	}()
	<-started

	type outcome struct {
		img Image
		err error
	}
	resB := make(chan outcome, 1)
	go func() {
		img, err := f.CreateForURL(context.Background(), target)
		resB <- outcome{img, err}
	}()

	cancel()
	err := <-errA
	require.ErrorIs(t, err, context.Canceled)
	var fe *FetchError
	require.ErrorAs(t, err, &fe)

	close(release)
	b := <-resB
	require.NoError(t, b.err)
	require.Equal(t, 2, b.img.Width)
	require.False(t, aborted.Load())
}

func TestFilenameFromURL(t *testing.T) {
	cases := map[string]string{
		"http://example.com/a/b/photo.jpg":   "photo.jpg",
		"http://example.com/a/b/photo.jpg?x": "photo.jpg",
		"http://example.com/":                "image",
		"http://example.com":                 "image",
		"http://example.com/dir/":            "dir",
		"::not a url":                        "image",
	}
	for in, want := range cases {
		require.Equal(t, want, FilenameFromURL(in), in)
	}

	long := FilenameFromURL("http://example.com/" + strings.Repeat("é", 150) + "x.png")
	require.True(t, utf8.ValidString(long))
	require.LessOrEqual(t, len(long), maxFilenameLength)
	require.True(t, strings.HasSuffix(long, "éx.png"))
}
