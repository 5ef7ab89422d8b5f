/*
File Catalog (C10): enumerates the recordings and snapshots directories as
a durable store it does not own the lifecycle of beyond delete requests.
Listings are paginated and ordered descending by creation time (tie-broken
by filename); deletes reject path traversal and any filename outside the
canonical `{camera_id}_{timestamp}.{ext}` pattern.
*/
package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/meridian-video/camera-gateway/internal/logging"
)

// Category distinguishes the two enumerated directories.
type Category string

const (
	CategoryRecording Category = "recording"
	CategorySnapshot  Category = "snapshot"
)

// canonicalFilenamePattern matches {camera_id}_{YYYY-MM-DDThh-mm-ssZ}.{ext}
// for the extensions this service produces (spec §8 testable property).
var canonicalFilenamePattern = regexp.MustCompile(`^camera[0-9]+_\d{4}-\d{2}-\d{2}T\d{2}-\d{2}-\d{2}Z\.(mp4|mkv|fmp4|jpg|png)$`)

// FileEntry is one cataloged file.
type FileEntry struct {
	Filename    string    `json:"filename"`
	Category    Category  `json:"category"`
	SizeBytes   int64     `json:"size_bytes"`
	CreatedAt   time.Time `json:"created_at"`
	DownloadURL string    `json:"download_url"`
}

// ListResult is the paginated response shape for list_recordings/list_snapshots.
type ListResult struct {
	Files   []FileEntry `json:"files"`
	Total   int         `json:"total"`
	Offset  int         `json:"offset"`
	Limit   int         `json:"limit"`
	HasMore bool        `json:"has_more"`
}

// ErrInvalidParam is returned by Delete for traversal sequences or
// filenames outside the canonical pattern.
type ErrInvalidParam struct{ Reason string }

func (e *ErrInvalidParam) Error() string { return "invalid param: " + e.Reason }

// ErrNotFound is returned by GetInfo/Delete for an absent file.
type ErrNotFound struct{ Filename string }

func (e *ErrNotFound) Error() string { return "file not found: " + e.Filename }

// Catalog enumerates recordings and snapshots directories.
type Catalog struct {
	recordingsDir string
	snapshotsDir  string
	urlPrefix     string
	logger        *logging.Logger
}

// Config carries the File Catalog's recognized directory options.
type Config struct {
	RecordingsDir string
	SnapshotsDir  string
	// URLPrefix is prepended to a filename to build its opaque download
	// token, routed through the separate file-serving collaborator
	// (`GET /files/{recordings,snapshots}/{filename}`, spec §6).
	URLPrefix string
}

// New constructs a Catalog.
func New(cfg Config, logger *logging.Logger) *Catalog {
	if logger == nil {
		logger = logging.GetLogger("catalog")
	}
	return &Catalog{
		recordingsDir: cfg.RecordingsDir,
		snapshotsDir:  cfg.SnapshotsDir,
		urlPrefix:     cfg.URLPrefix,
		logger:        logger,
	}
}

func (c *Catalog) dirFor(category Category) string {
	if category == CategoryRecording {
		return c.recordingsDir
	}
	return c.snapshotsDir
}

func (c *Catalog) downloadURL(category Category, filename string) string {
	return fmt.Sprintf("%s/files/%ss/%s", strings.TrimRight(c.urlPrefix, "/"), category, filename)
}

func (c *Catalog) enumerate(category Category) ([]FileEntry, error) {
	dir := c.dirFor(category)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	files := make([]FileEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, FileEntry{
			Filename:    entry.Name(),
			Category:    category,
			SizeBytes:   info.Size(),
			CreatedAt:   info.ModTime(),
			DownloadURL: c.downloadURL(category, entry.Name()),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		if !files[i].CreatedAt.Equal(files[j].CreatedAt) {
			return files[i].CreatedAt.After(files[j].CreatedAt)
		}
		return files[i].Filename < files[j].Filename
	})
	return files, nil
}

func paginate(files []FileEntry, limit, offset int) ListResult {
	total := len(files)
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = total
	}
	end := offset + limit
	if offset > total {
		offset = total
	}
	if end > total {
		end = total
	}
	page := files[offset:end]
	return ListResult{
		Files:   page,
		Total:   total,
		Offset:  offset,
		Limit:   limit,
		HasMore: end < total,
	}
}

// ListRecordings returns a paginated view of the recordings directory.
func (c *Catalog) ListRecordings(limit, offset int) (ListResult, error) {
	files, err := c.enumerate(CategoryRecording)
	if err != nil {
		return ListResult{}, err
	}
	return paginate(files, limit, offset), nil
}

// ListSnapshots returns a paginated view of the snapshots directory.
func (c *Catalog) ListSnapshots(limit, offset int) (ListResult, error) {
	files, err := c.enumerate(CategorySnapshot)
	if err != nil {
		return ListResult{}, err
	}
	return paginate(files, limit, offset), nil
}

// GetInfo returns a single file's metadata, searching both directories.
func (c *Catalog) GetInfo(filename string) (*FileEntry, error) {
	if err := validateFilename(filename); err != nil {
		return nil, err
	}
	for _, category := range []Category{CategoryRecording, CategorySnapshot} {
		path := filepath.Join(c.dirFor(category), filename)
		info, err := os.Stat(path)
		if err == nil {
			return &FileEntry{
				Filename:    filename,
				Category:    category,
				SizeBytes:   info.Size(),
				CreatedAt:   info.ModTime(),
				DownloadURL: c.downloadURL(category, filename),
			}, nil
		}
	}
	return nil, &ErrNotFound{Filename: filename}
}

// Delete removes filename from whichever directory contains it.
func (c *Catalog) Delete(filename string) error {
	if err := validateFilename(filename); err != nil {
		return err
	}
	for _, category := range []Category{CategoryRecording, CategorySnapshot} {
		path := filepath.Join(c.dirFor(category), filename)
		if _, err := os.Stat(path); err == nil {
			return os.Remove(path)
		}
	}
	return &ErrNotFound{Filename: filename}
}

// ResolveFilePath validates filename and returns the absolute path to serve
// it from the given category's directory, for the file-serving collaborator
// (`GET /files/{recordings,snapshots}/{filename}`, spec §6). Returns
// ErrNotFound if the file does not exist in that category's directory.
func (c *Catalog) ResolveFilePath(category Category, filename string) (string, error) {
	if err := validateFilename(filename); err != nil {
		return "", err
	}
	path := filepath.Join(c.dirFor(category), filename)
	if _, err := os.Stat(path); err != nil {
		return "", &ErrNotFound{Filename: filename}
	}
	return path, nil
}

// validateFilename rejects traversal sequences and anything outside the
// canonical filename pattern (spec §4.5).
func validateFilename(filename string) error {
	if strings.Contains(filename, "..") || strings.ContainsAny(filename, "/\\") {
		return &ErrInvalidParam{Reason: "path traversal sequence in filename"}
	}
	if !canonicalFilenamePattern.MatchString(filename) {
		return &ErrInvalidParam{Reason: "filename does not match canonical pattern"}
	}
	return nil
}
