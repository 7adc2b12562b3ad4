// -- cmd/fetch.go --
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rmcnulty/evergreen-cli/internal/acquire"
	"github.com/rmcnulty/evergreen-cli/internal/browser"
	"github.com/rmcnulty/evergreen-cli/internal/observability"
	"github.com/rmcnulty/evergreen-cli/internal/statusbus"
	"github.com/rmcnulty/evergreen-cli/internal/worker"
)

const shutdownTimeout = 20 * time.Second

// newFetchCmd creates the `fetch` command: drive the browser at a download
// link and capture the file it triggers.
func newFetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch <url>",
		Short: "Open a download link in the shared browser and capture the file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			targetURL := args[0]

			mgr := browser.NewManager(appConfig.Browser, appConfig.Network, logger)
			defer shutdownManager(mgr, logger)

			bus := statusbus.New(logger, 64)
			uiDone := renderEvents(bus)
			runner := worker.NewRunner(logger, bus)

			runner.Go(ctx, "fetch", func(ctx context.Context) error {
				return runAcquisition(ctx, mgr, bus, "fetch", targetURL)
			})

			waitCtx, cancel := context.WithCancel(context.Background())
			defer cancel()
			err := runner.Wait(waitCtx)
			bus.Close()
			<-uiDone
			return err
		},
	}
}

// runAcquisition opens a tab, arms the download watcher, and runs the
// acquisition loop. The tab is closed on every exit path; the shared browser
// stays up for the next operation.
func runAcquisition(ctx context.Context, mgr *browser.Manager, bus *statusbus.Bus, operation, targetURL string) error {
	logger := observability.GetLogger()

	tab, err := mgr.NewTab(ctx)
	if err != nil {
		return fmt.Errorf("opening tab: %w", err)
	}
	defer tab.Close(context.Background())

	watcher, err := browser.NewDownloadWatcher(tab, appConfig.Browser.DownloadDir, logger)
	if err != nil {
		return fmt.Errorf("arming download watcher: %w", err)
	}

	bus.Post(statusbus.KindLog, operation, fmt.Sprintf("acquiring %s", targetURL), nil)

	loop := acquire.NewLoop(appConfig.Acquire, appConfig.Mailbox.ClientEmail, logger)
	res, err := loop.Run(ctx, tab, watcher, targetURL)
	if err != nil {
		return err
	}

	bus.Post(statusbus.KindResult, operation, "download complete", res)
	return nil
}

// shutdownManager tears the browser down with its own deadline, independent
// of the (possibly already cancelled) command context.
func shutdownManager(mgr *browser.Manager, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := mgr.Shutdown(ctx); err != nil {
		logger.Warn("Browser shutdown reported an error", zap.Error(err))
	}
}
