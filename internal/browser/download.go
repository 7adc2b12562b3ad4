// internal/browser/download.go
package browser

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/rmcnulty/evergreen-cli/internal/acquire"
)

// DownloadWatcher captures file downloads on one tab. Chrome writes the
// artifact under its download GUID; on completion the watcher renames it to
// the server-suggested filename. Repeated downloads of the same name
// overwrite each other, last write wins.
type DownloadWatcher struct {
	dir    string
	logger *zap.Logger

	mu        sync.Mutex
	guidNames map[string]string
	result    acquire.DownloadResult
	done      bool
}

// NewDownloadWatcher points the tab's downloads at dir and starts listening
// for download lifecycle events. Must be called before the navigation that
// triggers the download.
func NewDownloadWatcher(tab *Tab, dir string, logger *zap.Logger) (*DownloadWatcher, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("browser: creating download dir: %w", err)
	}

	w := &DownloadWatcher{
		dir:       dir,
		logger:    logger.Named("download_watcher"),
		guidNames: make(map[string]string),
	}

	err := chromedp.Run(tab.Context(),
		cdpbrowser.SetDownloadBehavior(cdpbrowser.SetDownloadBehaviorBehaviorAllowAndName).
			WithDownloadPath(dir).
			WithEventsEnabled(true))
	if err != nil {
		return nil, fmt.Errorf("browser: setting download behavior: %w", err)
	}

	chromedp.ListenTarget(tab.Context(), w.handleEvent)
	return w, nil
}

func (w *DownloadWatcher) handleEvent(ev interface{}) {
	switch e := ev.(type) {
	case *cdpbrowser.EventDownloadWillBegin:
		w.mu.Lock()
		w.guidNames[e.GUID] = e.SuggestedFilename
		w.mu.Unlock()
		w.logger.Info("Download starting",
			zap.String("guid", e.GUID),
			zap.String("suggested_name", e.SuggestedFilename),
			zap.String("url", e.URL))

	case *cdpbrowser.EventDownloadProgress:
		switch e.State {
		case cdpbrowser.DownloadProgressStateCompleted:
			w.complete(e.GUID)
		case cdpbrowser.DownloadProgressStateCanceled:
			w.logger.Warn("Download canceled", zap.String("guid", e.GUID))
		}
	}
}

// complete renames the GUID file to its suggested name and records the
// result. Only the first completion flips the success flag.
func (w *DownloadWatcher) complete(guid string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	name, ok := w.guidNames[guid]
	if !ok || name == "" {
		name = guid
	}
	src := filepath.Join(w.dir, guid)
	dst := filepath.Join(w.dir, filepath.Base(name))

	if err := os.Rename(src, dst); err != nil {
		w.logger.Warn("Could not rename finished download; keeping GUID name",
			zap.String("guid", guid), zap.Error(err))
		dst = src
	}

	w.logger.Info("Download completed", zap.String("path", dst))
	if w.done {
		return
	}
	w.done = true
	w.result = acquire.DownloadResult{
		Success:       true,
		SavedPath:     dst,
		SuggestedName: filepath.Base(name),
	}
}

// Result implements acquire.DownloadWatcher. Non-blocking.
func (w *DownloadWatcher) Result() (acquire.DownloadResult, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.result, w.done
}

// compile-time interface checks
var (
	_ acquire.Page            = (*Tab)(nil)
	_ acquire.DownloadWatcher = (*DownloadWatcher)(nil)
)
