// Package storage names and locates spreadsheet files: uploads coming in, results
// going out.
package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/klytics/xlengine/internal/apperr"
)

// Store is the storage the orchestrator depends on.
type Store interface {
	// SaveUpload stores an uploaded file under its base name and returns its path.
	SaveUpload(name string, r io.Reader) (string, error)
	// NewOutput returns a fresh path for a result workbook.
	NewOutput(prefix string) (string, error)
	// Resolve checks that a caller-supplied path may be read and exists.
	Resolve(path string) (string, error)
}

// DirStore keeps uploads and outputs in two local directories.
type DirStore struct {
	UploadDir     string
	OutputDir     string
	RestrictPaths bool

	// Now names output files; defaults to time.Now.
	Now func() time.Time
}

// NewDirStore returns a store over the two directories with containment enabled.
func NewDirStore(uploadDir, outputDir string) *DirStore {
	return &DirStore{UploadDir: uploadDir, OutputDir: outputDir, RestrictPaths: true}
}

// SaveUpload writes r to UploadDir/<base name>, replacing an existing file of the
// same name.
func (s *DirStore) SaveUpload(name string, r io.Reader) (string, error) {
	base := filepath.Base(filepath.Clean("/" + strings.ReplaceAll(name, "\\", "/")))
	if base == "/" || base == "." || base == "" {
		return "", apperr.Errorf(apperr.InvalidRequest, "upload", "invalid file name %q", name)
	}
	if err := os.MkdirAll(s.UploadDir, 0o755); err != nil {
		return "", apperr.New(apperr.ResourceUnwritable, "upload", err)
	}

	path := filepath.Join(s.UploadDir, base)
	f, err := os.Create(path)
	if err != nil {
		return "", apperr.New(apperr.ResourceUnwritable, "upload", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", apperr.New(apperr.ResourceUnwritable, "upload", err)
	}
	if err := f.Close(); err != nil {
		return "", apperr.New(apperr.ResourceUnwritable, "upload", err)
	}
	return path, nil
}

// NewOutput returns OutputDir/<prefix>_<YYYYMMDD_HHMMSS>.xlsx. Two outputs in the
// same second get a short random suffix so neither overwrites the other.
func (s *DirStore) NewOutput(prefix string) (string, error) {
	if err := os.MkdirAll(s.OutputDir, 0o755); err != nil {
		return "", apperr.New(apperr.ResourceUnwritable, "output", err)
	}
	stamp := s.now().Format("20060102_150405")
	path := filepath.Join(s.OutputDir, fmt.Sprintf("%s_%s.xlsx", prefix, stamp))
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return path, nil
	}
	suffix := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return filepath.Join(s.OutputDir, fmt.Sprintf("%s_%s_%s.xlsx", prefix, stamp, suffix)), nil
}

// Resolve cleans path, enforces containment when RestrictPaths is set, and checks
// that the file exists.
func (s *DirStore) Resolve(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", apperr.Errorf(apperr.InvalidRequest, "resolve", "file path is required")
	}
	clean := filepath.Clean(path)
	if s.RestrictPaths && !s.contained(clean) {
		return "", apperr.Errorf(apperr.InvalidRequest, "resolve", "path %q is outside the upload and output directories", path)
	}
	info, err := os.Stat(clean)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", apperr.Errorf(apperr.NotFound, "resolve", "file not found: %s", path)
		}
		return "", apperr.New(apperr.ResourceUnreadable, "resolve", err)
	}
	if info.IsDir() {
		return "", apperr.Errorf(apperr.InvalidRequest, "resolve", "%s is a directory", path)
	}
	return clean, nil
}

func (s *DirStore) contained(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	for _, dir := range []string{s.UploadDir, s.OutputDir} {
		root, err := filepath.Abs(dir)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(root, abs)
		if err != nil {
			continue
		}
		if rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && rel != "." {
			return true
		}
	}
	return false
}

func (s *DirStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
