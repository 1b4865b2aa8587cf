package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ocrbot/internal/onebot"
)

type fakePlatform struct {
	info        *onebot.ImageInfo
	getErr      error
	download    []byte
	downloadErr error

	getCalls      []string
	downloadCalls []string
}

func (f *fakePlatform) GetImage(ctx context.Context, file string) (*onebot.ImageInfo, error) {
	f.getCalls = append(f.getCalls, file)
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.info, nil
}

func (f *fakePlatform) Download(ctx context.Context, url string) ([]byte, error) {
	f.downloadCalls = append(f.downloadCalls, url)
	return f.download, f.downloadErr
}

func newTestFetcher(t *testing.T, platform Platform) *Fetcher {
	t.Helper()
	dir, err := NewTempDir(filepath.Join(t.TempDir(), "ocrbot"))
	if err != nil {
		t.Fatalf("NewTempDir() error = %v", err)
	}
	f := NewFetcher(platform, dir)
	f.now = func() time.Time { return time.Unix(1700000000, 123) }
	return f
}

func imageEvent(images ...onebot.Image) *onebot.Event {
	msg := onebot.Message{onebot.Text{Text: "/提取文字"}}
	for _, img := range images {
		msg = append(msg, img)
	}
	return &onebot.Event{PostType: "message", MessageType: "private", UserID: 1, Message: msg}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestFetchUsesSegmentLocalPath(t *testing.T) {
	origin := writeFile(t, "cached.jpg", "local-bytes")
	platform := &fakePlatform{}
	f := newTestFetcher(t, platform)

	ev := imageEvent(onebot.Image{File: "file://" + origin})
	dl, err := f.Fetch(context.Background(), ev, "file://"+origin)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if dl.Origin != "" {
		t.Fatalf("origin = %q, event-supplied paths must not become the origin", dl.Origin)
	}
	if len(platform.getCalls) != 0 {
		t.Fatalf("platform API should not be called when a local path exists")
	}
	wantName := "ocr_1700000000000000123.jpg"
	if filepath.Base(dl.Local.Path) != wantName || filepath.Dir(dl.Local.Path) != f.dir.Path() {
		t.Fatalf("unexpected local path %q", dl.Local.Path)
	}
	data, err := os.ReadFile(dl.Local.Path)
	if err != nil || string(data) != "local-bytes" {
		t.Fatalf("local copy = %q, %v", data, err)
	}
	if got := dl.Paths(); len(got) != 1 || got[0] != dl.Local.Path {
		t.Fatalf("Paths() = %v, want only the local copy", got)
	}
}

func TestFetchNeverOwnsEventPaths(t *testing.T) {
	precious := writeFile(t, "precious.txt", "keep me")

	for _, img := range []onebot.Image{
		{File: precious},
		{File: "abc.image", Path: precious},
		{File: "file://" + precious},
	} {
		f := newTestFetcher(t, &fakePlatform{})
		dl, err := f.Fetch(context.Background(), imageEvent(img), img.File)
		if err != nil {
			t.Fatalf("Fetch(%+v) error = %v", img, err)
		}
		for _, p := range dl.Paths() {
			if p == precious {
				t.Fatalf("Fetch(%+v) hands event path %q to cleanup", img, p)
			}
		}
	}
}

func TestFetchFallsBackToGetImage(t *testing.T) {
	origin := writeFile(t, "platform.jpg", "platform-bytes")
	platform := &fakePlatform{info: &onebot.ImageInfo{File: origin}}
	f := newTestFetcher(t, platform)

	dl, err := f.Fetch(context.Background(), imageEvent(onebot.Image{File: "abc.image"}), "abc.image")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(platform.getCalls) != 1 || platform.getCalls[0] != "abc.image" {
		t.Fatalf("unexpected get_image calls: %v", platform.getCalls)
	}
	if dl.Origin != origin {
		t.Fatalf("origin = %q, want %q", dl.Origin, origin)
	}
}

func TestFetchDownloadsWhenPathUnreadable(t *testing.T) {
	platform := &fakePlatform{
		info:     &onebot.ImageInfo{File: "/remote/host/only.jpg", URL: "https://cdn/abc.jpg"},
		download: []byte("remote-bytes"),
	}
	f := newTestFetcher(t, platform)

	dl, err := f.Fetch(context.Background(), imageEvent(onebot.Image{File: "abc.image"}), "abc.image")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if dl.Origin != "" {
		t.Fatalf("downloaded image must not have an origin, got %q", dl.Origin)
	}
	if len(platform.downloadCalls) != 1 || platform.downloadCalls[0] != "https://cdn/abc.jpg" {
		t.Fatalf("unexpected downloads: %v", platform.downloadCalls)
	}
	if got := dl.Paths(); len(got) != 1 || got[0] != dl.Local.Path {
		t.Fatalf("Paths() = %v", got)
	}
}

func TestFetchNotFound(t *testing.T) {
	f := newTestFetcher(t, &fakePlatform{})

	_, err := f.Fetch(context.Background(), imageEvent(onebot.Image{File: "a.image"}), "b.image")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFetchPlatformFailure(t *testing.T) {
	platform := &fakePlatform{getErr: &onebot.APIError{Action: "get_image", Status: "failed", RetCode: 100}}
	f := newTestFetcher(t, platform)

	_, err := f.Fetch(context.Background(), imageEvent(onebot.Image{File: "abc.image"}), "abc.image")
	if !errors.Is(err, ErrIO) {
		t.Fatalf("expected ErrIO, got %v", err)
	}
	var apiErr *onebot.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected platform cause to be preserved, got %v", err)
	}

	entries, _ := os.ReadDir(f.dir.Path())
	if len(entries) != 0 {
		t.Fatalf("no file should be written on failure, found %d", len(entries))
	}
}

func TestFetchNoPathOrURL(t *testing.T) {
	platform := &fakePlatform{info: &onebot.ImageInfo{}}
	f := newTestFetcher(t, platform)

	_, err := f.Fetch(context.Background(), imageEvent(onebot.Image{File: "abc.image"}), "abc.image")
	if !errors.Is(err, ErrIO) || !strings.Contains(err.Error(), "no readable path") {
		t.Fatalf("expected ErrIO, got %v", err)
	}
}

func TestTempDirWriteIsExclusive(t *testing.T) {
	dir, err := NewTempDir(filepath.Join(t.TempDir(), "scoped"))
	if err != nil {
		t.Fatalf("NewTempDir() error = %v", err)
	}
	now := time.Unix(1, 0)
	if _, err := dir.Write([]byte("a"), now); err != nil {
		t.Fatalf("first Write() error = %v", err)
	}
	if _, err := dir.Write([]byte("b"), now); !errors.Is(err, os.ErrExist) {
		t.Fatalf("expected os.ErrExist on name clash, got %v", err)
	}
}
