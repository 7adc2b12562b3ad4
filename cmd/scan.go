// -- cmd/scan.go --
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rmcnulty/evergreen-cli/internal/browser"
	"github.com/rmcnulty/evergreen-cli/internal/extract"
	"github.com/rmcnulty/evergreen-cli/internal/mailbox"
	"github.com/rmcnulty/evergreen-cli/internal/observability"
	"github.com/rmcnulty/evergreen-cli/internal/statusbus"
	"github.com/rmcnulty/evergreen-cli/internal/worker"
)

// newScanCmd creates the `scan` command: read the newest message in the
// shared mailbox and pull the download link out of it.
func newScanCmd() *cobra.Command {
	var chainFetch bool

	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "Read the newest mailbox message and extract its download link",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			bus := statusbus.New(logger, 64)
			uiDone := renderEvents(bus)
			defer func() {
				bus.Close()
				<-uiDone
			}()

			client, err := newMailboxClient(ctx, bus, "scan")
			if err != nil {
				return err
			}

			candidate, msg, err := scanOnce(ctx, client, bus, "scan")
			if err != nil {
				return err
			}
			// An empty mailbox or a message without a matching link is an
			// outcome, not a failure; the diagnostics are already posted.
			if msg == nil {
				bus.Post(statusbus.KindStatus, "scan",
					fmt.Sprintf("mailbox %s has no messages", appConfig.Mailbox.Mailbox), nil)
				return nil
			}
			if candidate == nil {
				bus.Post(statusbus.KindStatus, "scan",
					fmt.Sprintf("no download link found in message %q", msg.Subject), nil)
				return nil
			}

			fmt.Println(candidate.URL)

			if !chainFetch {
				return nil
			}

			mgr := browser.NewManager(appConfig.Browser, appConfig.Network, logger)
			defer shutdownManager(mgr, logger)

			runner := worker.NewRunner(logger, bus)
			runner.Go(ctx, "fetch", func(ctx context.Context) error {
				return runAcquisition(ctx, mgr, bus, "fetch", candidate.URL)
			})
			return runner.Wait(context.Background())
		},
	}

	scanCmd.Flags().BoolVar(&chainFetch, "fetch", false, "immediately acquire the extracted link")
	return scanCmd
}

// newMailboxClient authenticates against Graph with the configured flow and
// wraps the result in a mailbox client. Device codes go to the status bus.
func newMailboxClient(ctx context.Context, bus *statusbus.Bus, operation string) (*mailbox.Client, error) {
	logger := observability.GetLogger()

	httpClient, err := mailbox.NewHTTPClient(ctx, appConfig.Mailbox, func(code, uri string) {
		bus.Post(statusbus.KindDeviceCode, operation, code, uri)
	})
	if err != nil {
		return nil, err
	}

	return mailbox.NewClient(
		httpClient,
		appConfig.Mailbox.Mailbox,
		logger,
		mailbox.WithTimeout(appConfig.Network.RequestTimeout),
	), nil
}

// scanOnce fetches the newest message and runs the extractor over its body.
// A message without a matching link returns (nil, msg, nil) after logging the
// href dump; an empty mailbox returns (nil, nil, nil).
func scanOnce(ctx context.Context, client *mailbox.Client, bus *statusbus.Bus, operation string) (*extract.Candidate, *mailbox.Message, error) {
	logger := observability.GetLogger()

	msg, err := client.Latest(ctx)
	if err != nil {
		return nil, nil, err
	}
	if msg == nil {
		bus.Post(statusbus.KindLog, operation, "mailbox is empty", nil)
		return nil, nil, nil
	}

	bus.Post(statusbus.KindLog, operation,
		fmt.Sprintf("newest message: %q from %s", msg.Subject, msg.From), nil)

	extractor, err := extract.New(appConfig.Extract)
	if err != nil {
		return nil, nil, err
	}

	candidate, ok := extractor.Extract(msg.Body)
	if !ok {
		logger.Warn("No download link matched; dumping hrefs",
			zap.String("subject", msg.Subject),
			zap.Strings("hrefs", extract.AllHrefs(msg.Body)))
		return nil, msg, nil
	}

	logger.Info("Extracted download link",
		zap.String("url", candidate.URL),
		zap.String("strategy", string(candidate.Strategy)))
	return &candidate, msg, nil
}
