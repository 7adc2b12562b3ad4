// -- cmd/ui.go --
package cmd

import (
	"fmt"
	"os"

	"github.com/rmcnulty/evergreen-cli/internal/acquire"
	"github.com/rmcnulty/evergreen-cli/internal/statusbus"
)

// renderEvents is the single UI-owning goroutine's loop: it drains the status
// bus onto the terminal until the bus closes. Workers never print; everything
// user-visible funnels through here.
func renderEvents(bus *statusbus.Bus) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range bus.Events() {
			switch ev.Kind {
			case statusbus.KindDeviceCode:
				fmt.Printf("\nTo sign in, open %s and enter the code: %s\n\n",
					ev.Payload, ev.Message)
			case statusbus.KindResult:
				if res, ok := ev.Payload.(acquire.DownloadResult); ok && res.Success {
					fmt.Printf("[%s] downloaded %s -> %s\n",
						ev.Operation, res.SuggestedName, res.SavedPath)
					continue
				}
				fmt.Printf("[%s] %s\n", ev.Operation, ev.Message)
			case statusbus.KindStatus, statusbus.KindLog:
				fmt.Fprintf(os.Stderr, "[%s] %s\n", ev.Operation, ev.Message)
			}
		}
	}()
	return done
}
