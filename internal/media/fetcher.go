// Package media turns an image attachment into a local file the recognizer
// can read.
package media

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"ocrbot/internal/logger"
	"ocrbot/internal/onebot"
)

// Platform is the subset of the host API the fetcher needs.
// *onebot.Client implements it.
type Platform interface {
	GetImage(ctx context.Context, file string) (*onebot.ImageInfo, error)
	Download(ctx context.Context, url string) ([]byte, error)
}

// Artifact is a temporary file owned by one command invocation.
type Artifact struct {
	Path      string
	CreatedAt time.Time
}

// Download is the result of a fetch. Origin is the host cache file returned
// by get_image that the bytes were read from; it is empty when the bytes came
// from a path in the event or over HTTP.
type Download struct {
	Local  Artifact
	Origin string
}

// Paths returns every existing file the invocation should clean up.
func (d *Download) Paths() []string {
	var paths []string
	for _, p := range []string{d.Local.Path, d.Origin} {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			paths = append(paths, p)
		}
	}
	return paths
}

// TempDir is the process-wide directory holding per-request image copies.
// It is created once and never removed.
type TempDir struct {
	path string
}

// NewTempDir creates path if needed.
func NewTempDir(path string) (*TempDir, error) {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return nil, fmt.Errorf("media: create temp dir %s: %w", path, err)
	}
	return &TempDir{path: path}, nil
}

// Path returns the directory path.
func (d *TempDir) Path() string {
	return d.path
}

// Write stores data in a new file named after now.
func (d *TempDir) Write(data []byte, now time.Time) (string, error) {
	path := filepath.Join(d.path, fmt.Sprintf("ocr_%d.jpg", now.UnixNano()))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

// Fetcher resolves image attachments to local files.
type Fetcher struct {
	platform Platform
	dir      *TempDir
	now      func() time.Time
	log      zerolog.Logger
}

// NewFetcher creates a fetcher writing into dir.
func NewFetcher(platform Platform, dir *TempDir) *Fetcher {
	return &Fetcher{
		platform: platform,
		dir:      dir,
		now:      time.Now,
		log:      logger.WithComponent("media"),
	}
}

// Fetch copies the image with the given file id into the temp dir.
//
// The bytes come from, in order: the local path carried by the segment, the
// path returned by the platform's get_image action, and finally an HTTP
// download of the image URL.
func (f *Fetcher) Fetch(ctx context.Context, ev *onebot.Event, fileID string) (*Download, error) {
	const op = "Fetch"

	img, ok := ev.FindImage(fileID)
	if !ok {
		return nil, &FetchError{Op: op, Err: ErrNotFound, Details: fmt.Sprintf("file id %q", fileID)}
	}

	data, origin, err := f.resolve(ctx, img)
	if err != nil {
		f.log.Error().Err(err).Str("file_id", fileID).Msg("Failed to resolve image")
		return nil, err
	}

	now := f.now()
	path, err := f.dir.Write(data, now)
	if err != nil {
		f.log.Error().Err(err).Str("dir", f.dir.Path()).Msg("Failed to store image copy")
		return nil, ioError(op, err, "failed to store image copy")
	}

	f.log.Debug().
		Str("file_id", fileID).
		Str("local", path).
		Str("origin", origin).
		Int("bytes", len(data)).
		Msg("Image fetched")

	return &Download{
		Local:  Artifact{Path: path, CreatedAt: now},
		Origin: origin,
	}, nil
}

func (f *Fetcher) resolve(ctx context.Context, img onebot.Image) ([]byte, string, error) {
	const op = "resolve"

	// Paths named by the event are read, never owned.
	if path := localPath(img); path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data, "", nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, "", ioError(op, err, "failed to read attachment file")
		}
	}

	info, err := f.platform.GetImage(ctx, img.File)
	if err != nil {
		if img.URL == "" {
			return nil, "", ioError(op, err, "get_image failed")
		}
		f.log.Warn().Err(err).Str("file_id", img.File).Msg("get_image failed, falling back to URL")
		info = &onebot.ImageInfo{URL: img.URL}
	}

	if info.File != "" {
		data, err := os.ReadFile(info.File)
		if err == nil {
			return data, info.File, nil
		}
		f.log.Debug().Err(err).Str("path", info.File).Msg("Platform path not readable locally")
	}

	downloadURL := info.URL
	if downloadURL == "" {
		downloadURL = img.URL
	}
	if downloadURL == "" {
		return nil, "", ioError(op, errors.New("no readable path or URL"), "")
	}

	data, err := f.platform.Download(ctx, downloadURL)
	if err != nil {
		return nil, "", ioError(op, err, "download failed")
	}
	return data, "", nil
}

// localPath extracts a filesystem path carried directly by the segment.
func localPath(img onebot.Image) string {
	if img.Path != "" {
		return img.Path
	}
	if strings.HasPrefix(img.File, "file://") {
		u, err := url.Parse(img.File)
		if err != nil {
			return ""
		}
		return u.Path
	}
	if filepath.IsAbs(img.File) {
		return img.File
	}
	return ""
}
