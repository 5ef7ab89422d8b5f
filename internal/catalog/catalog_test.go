package catalog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/meridian-video/camera-gateway/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name string, modTime time.Time) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))
	require.NoError(t, os.Chtimes(path, modTime, modTime))
}

func testCatalog(t *testing.T) (*Catalog, string, string) {
	t.Helper()
	recordings := t.TempDir()
	snapshots := t.TempDir()
	c := New(Config{RecordingsDir: recordings, SnapshotsDir: snapshots, URLPrefix: "http://localhost:8002"}, logging.NewLogger("test"))
	return c, recordings, snapshots
}

func TestListRecordingsOrdersDescendingByCreatedAt(t *testing.T) {
	c, recordings, _ := testCatalog(t)
	base := time.Now().Add(-time.Hour)
	writeFile(t, recordings, "camera0_2026-01-01T00-00-00Z.mp4", base)
	writeFile(t, recordings, "camera0_2026-01-01T00-00-01Z.mp4", base.Add(time.Minute))

	result, err := c.ListRecordings(10, 0)
	require.NoError(t, err)
	require.Len(t, result.Files, 2)
	assert.Equal(t, "camera0_2026-01-01T00-00-01Z.mp4", result.Files[0].Filename)
	assert.Equal(t, 2, result.Total)
	assert.False(t, result.HasMore)
}

func TestListPaginatesWithHasMore(t *testing.T) {
	c, recordings, _ := testCatalog(t)
	now := time.Now()
	for i := 0; i < 5; i++ {
		writeFile(t, recordings, filepathName(i), now.Add(time.Duration(i)*time.Second))
	}

	result, err := c.ListRecordings(2, 0)
	require.NoError(t, err)
	assert.Len(t, result.Files, 2)
	assert.Equal(t, 5, result.Total)
	assert.True(t, result.HasMore)

	last, err := c.ListRecordings(2, 4)
	require.NoError(t, err)
	assert.Len(t, last.Files, 1)
	assert.False(t, last.HasMore)
}

func filepathName(i int) string {
	return []string{
		"camera1_2026-01-01T00-00-00Z.mp4",
		"camera1_2026-01-01T00-00-01Z.mp4",
		"camera1_2026-01-01T00-00-02Z.mp4",
		"camera1_2026-01-01T00-00-03Z.mp4",
		"camera1_2026-01-01T00-00-04Z.mp4",
	}[i]
}

func TestGetInfoReturnsNotFoundForMissingFile(t *testing.T) {
	c, _, _ := testCatalog(t)
	_, err := c.GetInfo("camera0_2026-01-01T00-00-00Z.mp4")
	var notFound *ErrNotFound
	assert.ErrorAs(t, err, &notFound)
}

func TestDeleteRejectsPathTraversal(t *testing.T) {
	c, _, _ := testCatalog(t)
	err := c.Delete("../../etc/passwd")
	var invalid *ErrInvalidParam
	assert.ErrorAs(t, err, &invalid)
}

func TestDeleteRejectsNonCanonicalFilename(t *testing.T) {
	c, _, _ := testCatalog(t)
	err := c.Delete("not-a-canonical-name.txt")
	var invalid *ErrInvalidParam
	assert.ErrorAs(t, err, &invalid)
}

func TestDeleteRemovesExistingFile(t *testing.T) {
	c, recordings, _ := testCatalog(t)
	writeFile(t, recordings, "camera0_2026-01-01T00-00-00Z.mp4", time.Now())

	require.NoError(t, c.Delete("camera0_2026-01-01T00-00-00Z.mp4"))

	_, err := c.GetInfo("camera0_2026-01-01T00-00-00Z.mp4")
	var notFound *ErrNotFound
	assert.ErrorAs(t, err, &notFound)
}

func TestDeleteThenGetInfoIsNotFound(t *testing.T) {
	c, _, snapshots := testCatalog(t)
	writeFile(t, snapshots, "camera2_2026-01-01T00-00-00Z.jpg", time.Now())

	require.NoError(t, c.Delete("camera2_2026-01-01T00-00-00Z.jpg"))
	_, err := c.GetInfo("camera2_2026-01-01T00-00-00Z.jpg")
	assert.Error(t, err)
}
