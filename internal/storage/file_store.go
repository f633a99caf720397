// Package storage keeps uploaded product images on a filesystem.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"catalog/internal/config"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// URLPrefix is the public path under which stored files are served.
const URLPrefix = "/uploads/"

// ErrInvalidFile is wrapped by every upload rejected by Validate.
var ErrInvalidFile = errors.New("invalid image file")

// allowedTypes maps each accepted extension to the content types it may be
// declared with.
var allowedTypes = map[string][]string{
	".jpg":  {"image/jpeg", "image/jpg"},
	".jpeg": {"image/jpeg", "image/jpg"},
	".png":  {"image/png"},
	".gif":  {"image/gif"},
	".webp": {"image/webp"},
}

// Upload is an image received from a client.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Reader      io.Reader
}

// FileStore saves images below <root>/uploads/<folder>.
type FileStore struct {
	fs       afero.Fs
	folder   string
	maxBytes int64
	newName  func() string
}

// NewFileStore creates a FileStore on fs rooted at cfg.Root.
func NewFileStore(fs afero.Fs, cfg config.UploadConfig) *FileStore {
	return &FileStore{
		fs:       afero.NewBasePathFs(fs, cfg.Root),
		folder:   cfg.Folder,
		maxBytes: cfg.MaxBytes,
		newName:  func() string { return uuid.New().String() },
	}
}

// Validate checks extension, declared content type and size.
func (s *FileStore) Validate(u Upload) error {
	if u.Size <= 0 {
		return fmt.Errorf("%w: file is empty", ErrInvalidFile)
	}
	if u.Size > s.maxBytes {
		return fmt.Errorf("%w: file exceeds %d MB limit", ErrInvalidFile, s.maxBytes>>20)
	}

	ext := strings.ToLower(filepath.Ext(u.Filename))
	types, ok := allowedTypes[ext]
	if !ok {
		return fmt.Errorf("%w: please upload a JPG, JPEG, PNG, GIF or WEBP image", ErrInvalidFile)
	}

	contentType := strings.ToLower(strings.TrimSpace(u.ContentType))
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	for _, t := range types {
		if contentType == t {
			return nil
		}
	}
	return fmt.Errorf("%w: content type %q does not match %s", ErrInvalidFile, u.ContentType, ext)
}

// Save validates and writes the upload under a fresh name, returning its
// public reference, e.g. /uploads/products/<uuid>.png.
func (s *FileStore) Save(ctx context.Context, u Upload) (string, error) {
	if err := s.Validate(u); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dir := path.Join("uploads", s.folder)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}

	name := s.newName() + strings.ToLower(filepath.Ext(u.Filename))
	rel := path.Join(dir, name)

	f, err := s.fs.OpenFile(rel, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	// One extra byte detects a body larger than the declared size.
	n, err := io.Copy(f, io.LimitReader(u.Reader, s.maxBytes+1))
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err == nil && n > s.maxBytes {
		err = fmt.Errorf("%w: file exceeds %d MB limit", ErrInvalidFile, s.maxBytes>>20)
	}
	if err != nil {
		_ = s.fs.Remove(rel)
		if errors.Is(err, ErrInvalidFile) {
			return "", err
		}
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	return "/" + rel, nil
}

// Delete removes the file behind a reference returned by Save. It reports
// false when the reference is empty, outside the upload tree or already gone.
func (s *FileStore) Delete(ref string) (bool, error) {
	rel, ok := s.resolve(ref)
	if !ok {
		return false, nil
	}
	if err := s.fs.Remove(rel); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to delete file: %w", err)
	}
	return true, nil
}

// Exists reports whether ref points at a stored file.
func (s *FileStore) Exists(ref string) bool {
	rel, ok := s.resolve(ref)
	if !ok {
		return false
	}
	found, err := afero.Exists(s.fs, rel)
	return err == nil && found
}

// HTTPFileSystem exposes the upload tree for static serving under URLPrefix.
func (s *FileStore) HTTPFileSystem() http.FileSystem {
	return afero.NewHttpFs(afero.NewBasePathFs(s.fs, "uploads"))
}

func (s *FileStore) resolve(ref string) (string, bool) {
	if !strings.HasPrefix(ref, URLPrefix) {
		return "", false
	}
	rel := path.Clean(strings.TrimPrefix(ref, "/"))
	if !strings.HasPrefix(rel, "uploads/") {
		return "", false
	}
	return rel, true
}
