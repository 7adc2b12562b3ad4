// -- cmd/watch.go --
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/rmcnulty/evergreen-cli/internal/browser"
	"github.com/rmcnulty/evergreen-cli/internal/mailbox"
	"github.com/rmcnulty/evergreen-cli/internal/observability"
	"github.com/rmcnulty/evergreen-cli/internal/statusbus"
	"github.com/rmcnulty/evergreen-cli/internal/worker"
)

// newWatchCmd creates the `watch` command: poll the mailbox on the configured
// interval and acquire every new message that carries a download link.
func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Poll the mailbox and acquire new download links as they arrive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			bus := statusbus.New(logger, 64)
			uiDone := renderEvents(bus)

			client, err := newMailboxClient(ctx, bus, "watch")
			if err != nil {
				bus.Close()
				<-uiDone
				return err
			}

			mgr := browser.NewManager(appConfig.Browser, appConfig.Network, logger)
			defer shutdownManager(mgr, logger)

			runner := worker.NewRunner(logger, bus)
			err = watchLoop(ctx, client, mgr, bus, runner)

			// Let in-flight acquisitions finish before tearing the UI down.
			waitErr := runner.WaitTimeout(shutdownTimeout)
			bus.Close()
			<-uiDone

			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return waitErr
		},
	}
}

// watchLoop polls until ctx ends. The limiter paces Graph requests at one
// per configured interval; message IDs already seen are skipped, so only a
// genuinely new notification starts an acquisition.
func watchLoop(ctx context.Context, client *mailbox.Client, mgr *browser.Manager, bus *statusbus.Bus, runner *worker.Runner) error {
	limiter := rate.NewLimiter(rate.Every(appConfig.Watch.Interval), 1)
	seen := make(map[string]bool)

	bus.Post(statusbus.KindLog, "watch",
		fmt.Sprintf("polling %s every %s", appConfig.Mailbox.Mailbox, appConfig.Watch.Interval), nil)

	for {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}

		candidate, msg, err := scanOnce(ctx, client, bus, "watch")
		if err != nil {
			if errors.Is(err, mailbox.ErrUnauthorized) {
				// Credentials will not fix themselves; stop the watch.
				return err
			}
			bus.Post(statusbus.KindLog, "watch", fmt.Sprintf("poll failed: %v", err), nil)
			continue
		}
		if msg == nil || seen[msg.ID] {
			continue
		}
		seen[msg.ID] = true

		if candidate == nil {
			bus.Post(statusbus.KindLog, "watch",
				fmt.Sprintf("message %q has no download link", msg.Subject), nil)
			continue
		}

		url := candidate.URL
		runner.Go(ctx, "fetch", func(ctx context.Context) error {
			return runAcquisition(ctx, mgr, bus, "fetch", url)
		})
	}
}
