// internal/browser/download_test.go
package browser

import (
	"os"
	"path/filepath"
	"testing"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestWatcher(t *testing.T) *DownloadWatcher {
	t.Helper()
	return &DownloadWatcher{
		dir:       t.TempDir(),
		logger:    zap.NewNop(),
		guidNames: make(map[string]string),
	}
}

// writeGUIDFile simulates Chrome writing the in-flight download under its GUID.
func writeGUIDFile(t *testing.T, dir, guid, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, guid), []byte(content), 0o644))
}

func TestDownloadCompletionRenamesToSuggestedName(t *testing.T) {
	w := newTestWatcher(t)
	writeGUIDFile(t, w.dir, "guid-1", "pdf bytes")

	w.handleEvent(&cdpbrowser.EventDownloadWillBegin{
		GUID:              "guid-1",
		SuggestedFilename: "report-q3.pdf",
		URL:               "https://app.findox.com/d?download=true",
	})
	_, done := w.Result()
	assert.False(t, done, "not done until progress reports completion")

	w.handleEvent(&cdpbrowser.EventDownloadProgress{
		GUID:  "guid-1",
		State: cdpbrowser.DownloadProgressStateCompleted,
	})

	res, done := w.Result()
	require.True(t, done)
	assert.True(t, res.Success)
	assert.Equal(t, "report-q3.pdf", res.SuggestedName)
	assert.Equal(t, filepath.Join(w.dir, "report-q3.pdf"), res.SavedPath)

	content, err := os.ReadFile(res.SavedPath)
	require.NoError(t, err)
	assert.Equal(t, "pdf bytes", string(content))
}

func TestDownloadCompletionWithoutBeginKeepsGUID(t *testing.T) {
	w := newTestWatcher(t)
	writeGUIDFile(t, w.dir, "orphan-guid", "data")

	w.handleEvent(&cdpbrowser.EventDownloadProgress{
		GUID:  "orphan-guid",
		State: cdpbrowser.DownloadProgressStateCompleted,
	})

	res, done := w.Result()
	require.True(t, done)
	assert.Equal(t, "orphan-guid", res.SuggestedName)
}

func TestDownloadSuccessFlagIsOnceOnly(t *testing.T) {
	w := newTestWatcher(t)
	writeGUIDFile(t, w.dir, "g1", "first")
	writeGUIDFile(t, w.dir, "g2", "second")

	w.handleEvent(&cdpbrowser.EventDownloadWillBegin{GUID: "g1", SuggestedFilename: "a.pdf"})
	w.handleEvent(&cdpbrowser.EventDownloadWillBegin{GUID: "g2", SuggestedFilename: "b.pdf"})
	w.handleEvent(&cdpbrowser.EventDownloadProgress{GUID: "g1", State: cdpbrowser.DownloadProgressStateCompleted})
	w.handleEvent(&cdpbrowser.EventDownloadProgress{GUID: "g2", State: cdpbrowser.DownloadProgressStateCompleted})

	res, done := w.Result()
	require.True(t, done)
	assert.Equal(t, "a.pdf", res.SuggestedName, "first completion wins the result")

	// The second artifact is still renamed on disk.
	_, err := os.Stat(filepath.Join(w.dir, "b.pdf"))
	assert.NoError(t, err)
}

func TestDownloadRenameFailureFallsBackToGUIDPath(t *testing.T) {
	w := newTestWatcher(t)
	// No GUID file on disk, so the rename fails.
	w.handleEvent(&cdpbrowser.EventDownloadWillBegin{GUID: "missing", SuggestedFilename: "x.pdf"})
	w.handleEvent(&cdpbrowser.EventDownloadProgress{GUID: "missing", State: cdpbrowser.DownloadProgressStateCompleted})

	res, done := w.Result()
	require.True(t, done)
	assert.True(t, res.Success)
	assert.Equal(t, filepath.Join(w.dir, "missing"), res.SavedPath)
}

func TestCanceledDownloadDoesNotComplete(t *testing.T) {
	w := newTestWatcher(t)
	w.handleEvent(&cdpbrowser.EventDownloadWillBegin{GUID: "g", SuggestedFilename: "x.pdf"})
	w.handleEvent(&cdpbrowser.EventDownloadProgress{GUID: "g", State: cdpbrowser.DownloadProgressStateCanceled})

	_, done := w.Result()
	assert.False(t, done)
}
