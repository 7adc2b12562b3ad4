// File: internal/acquire/acquire.go

// Package acquire drives a browser tab from a portal download link, through
// whatever SSO pages appear, until either a file download fires or the tick
// budget runs out. The loop never talks to chromedp directly; it works
// against small page interfaces so the whole state machine is testable with
// scripted fakes.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rmcnulty/evergreen-cli/internal/config"
)

// Terminal and per-tick error values. Per-tick errors are logged and the
// loop keeps going; only the terminal ones escape Run.
var (
	// ErrBudgetExhausted is returned when the tick budget runs out without a
	// download event.
	ErrBudgetExhausted = errors.New("acquire: tick budget exhausted without download")
	// ErrNoLoginField means no selector in the priority list found an input.
	ErrNoLoginField = errors.New("acquire: no login field found")
	// ErrNoSubmitControl means no submit button was found and the Enter
	// fallback also failed.
	ErrNoSubmitControl = errors.New("acquire: no submit control found")
)

// DownloadResult describes a finished (or failed) artifact capture.
type DownloadResult struct {
	Success       bool
	SavedPath     string
	SuggestedName string
}

// Page is the browser tab surface the loop drives.
type Page interface {
	// Navigate loads url. Aborted navigations on direct download links are
	// not errors; implementations suppress them.
	Navigate(ctx context.Context, url string) error
	// Reload refreshes the current page.
	Reload(ctx context.Context) error
	// CurrentURL reports the tab's current location.
	CurrentURL(ctx context.Context) (string, error)
	// FindField searches the selector list (document plus same-origin
	// iframes) and focuses the first hit. ok is false when nothing matched.
	FindField(ctx context.Context, selectors []string) (Field, bool, error)
	// FindButton is FindField for clickable controls.
	FindButton(ctx context.Context, selectors []string) (Button, bool, error)
	// PressEnter sends Enter to the focused element.
	PressEnter(ctx context.Context) error
}

// Field is a focused text input.
type Field interface {
	// Value reads the input's current value.
	Value(ctx context.Context) (string, error)
	// Fill types text into the input with synthetic keystrokes, runs the
	// micro-edit that forces client-side validation, and blurs.
	Fill(ctx context.Context, text string) error
}

// Button is a located clickable control.
type Button interface {
	Enabled(ctx context.Context) (bool, error)
	Click(ctx context.Context) error
	// ForceClick strips the disabled attribute and clicks via JS.
	ForceClick(ctx context.Context) error
}

// DownloadWatcher exposes the async download capture to the loop. Result is
// non-blocking; the loop polls it at tick boundaries.
type DownloadWatcher interface {
	Result() (DownloadResult, bool)
}

// Loop is the acquisition state machine.
type Loop struct {
	cfg        config.AcquireConfig
	email      string
	classifier Classifier
	log        *zap.Logger
}

// NewLoop builds a loop. email is the address typed into the portal's login
// form; it may be empty, in which case login pages are observed but never
// filled.
func NewLoop(cfg config.AcquireConfig, email string, logger *zap.Logger) *Loop {
	return &Loop{
		cfg:        cfg,
		email:      email,
		classifier: NewClassifier(cfg),
		log:        logger.Named("acquire"),
	}
}

// Run navigates page to targetURL and ticks until the watcher reports a
// download or the budget is spent. Every per-tick failure is logged and
// swallowed; the only error returns are context cancellation and
// ErrBudgetExhausted.
func (l *Loop) Run(ctx context.Context, page Page, watcher DownloadWatcher, targetURL string) (DownloadResult, error) {
	sess := NewSession()
	log := l.log.With(zap.String("session_id", sess.ID.String()))
	log.Info("Starting acquisition", zap.String("url", targetURL))

	if err := page.Navigate(ctx, targetURL); err != nil {
		// A dead tab fails every subsequent tick anyway; a flaky first load
		// is recoverable, so keep ticking either way.
		log.Warn("Initial navigation failed", zap.Error(err))
	}

	for sess.Tick = 1; sess.Tick <= l.cfg.BudgetTicks; sess.Tick++ {
		if err := ctx.Err(); err != nil {
			return DownloadResult{}, err
		}

		if res, ok := watcher.Result(); ok {
			sess.State = StateDownloaded
			log.Info("Download captured",
				zap.Int("tick", sess.Tick),
				zap.String("saved_path", res.SavedPath),
				zap.String("suggested_name", res.SuggestedName))
			return res, nil
		}

		l.tick(ctx, log, page, sess, targetURL)

		if err := sleepCtx(ctx, l.cfg.TickInterval); err != nil {
			return DownloadResult{}, err
		}
	}

	// The event is async; one last check catches a download that completed
	// during the final sleep.
	if res, ok := watcher.Result(); ok {
		sess.State = StateDownloaded
		log.Info("Download captured on final check", zap.String("saved_path", res.SavedPath))
		return res, nil
	}

	sess.State = StateTimedOut
	log.Warn("Acquisition timed out",
		zap.Int("ticks", l.cfg.BudgetTicks),
		zap.String("final_state", sess.State.String()))
	return DownloadResult{}, ErrBudgetExhausted
}

// tick performs one classify-then-act step. Nothing in here is fatal.
func (l *Loop) tick(ctx context.Context, log *zap.Logger, page Page, sess *Session, targetURL string) {
	rawURL, err := page.CurrentURL(ctx)
	if err != nil {
		log.Warn("Could not read current URL", zap.Int("tick", sess.Tick), zap.Error(err))
		return
	}

	class := l.classifier.Classify(rawURL)
	prev := sess.State
	sess.observe(class)
	if sess.State != prev {
		log.Info("State transition",
			zap.Int("tick", sess.Tick),
			zap.String("from", prev.String()),
			zap.String("to", sess.State.String()),
			zap.String("url", rawURL))
	}

	switch sess.State {
	case StateOnLogin:
		l.handleLogin(ctx, log, page, sess)
	case StateAuthenticated:
		l.handleAuthenticated(ctx, log, page, sess, targetURL)
	}
}

// handleLogin fills and submits the credential form, once per reset cycle.
func (l *Loop) handleLogin(ctx context.Context, log *zap.Logger, page Page, sess *Session) {
	if l.email == "" {
		return
	}

	if !sess.EmailFilled {
		field, ok, err := page.FindField(ctx, LoginFieldSelectors)
		if err != nil {
			log.Warn("Login field search failed", zap.Int("tick", sess.Tick), zap.Error(err))
			return
		}
		if !ok {
			log.Debug("Login page without a recognizable field", zap.Int("tick", sess.Tick), zap.Error(ErrNoLoginField))
			return
		}

		current, err := field.Value(ctx)
		if err != nil {
			log.Warn("Could not read field value", zap.Error(err))
			return
		}
		if current != l.email {
			if err := field.Fill(ctx, l.email); err != nil {
				log.Warn("Typing email failed", zap.Int("tick", sess.Tick), zap.Error(err))
				return
			}
			log.Info("Filled login field", zap.Int("tick", sess.Tick))
		}
		sess.EmailFilled = true
	}

	if sess.EmailFilled && !sess.Submitted {
		if err := l.submit(ctx, log, page); err != nil {
			log.Warn("Submitting login form failed", zap.Int("tick", sess.Tick), zap.Error(err))
			return
		}
		sess.Submitted = true
		log.Info("Submitted login form", zap.Int("tick", sess.Tick))
	}
}

// submit clicks the submit control, waiting out a transiently disabled
// button, force-activating a stuck one, and falling back to Enter when no
// button is found at all.
func (l *Loop) submit(ctx context.Context, log *zap.Logger, page Page) error {
	button, ok, err := page.FindButton(ctx, SubmitButtonSelectors)
	if err != nil {
		return err
	}
	if !ok {
		log.Debug("No submit button; falling back to Enter", zap.Error(ErrNoSubmitControl))
		return page.PressEnter(ctx)
	}

	for i := 0; i < l.cfg.DisabledRetries; i++ {
		enabled, err := button.Enabled(ctx)
		if err != nil {
			return err
		}
		if enabled {
			return button.Click(ctx)
		}
		if err := sleepCtx(ctx, l.cfg.DisabledWait); err != nil {
			return err
		}
	}

	log.Info("Submit button stayed disabled; force-activating")
	return button.ForceClick(ctx)
}

// handleAuthenticated renavigates to the download link once the page has had
// time to settle, then periodically reloads while waiting for the event.
func (l *Loop) handleAuthenticated(ctx context.Context, log *zap.Logger, page Page, sess *Session, targetURL string) {
	if !sess.Retriggered {
		if sess.Tick < l.cfg.SettleTicks {
			return
		}
		if err := page.Navigate(ctx, targetURL); err != nil {
			log.Warn("Retrigger navigation failed", zap.Int("tick", sess.Tick), zap.Error(err))
			return
		}
		sess.Retriggered = true
		sess.RetriggerTick = sess.Tick
		log.Info("Retriggered download link", zap.Int("tick", sess.Tick))
		return
	}

	since := sess.Tick - sess.RetriggerTick
	if since > 0 && since%l.cfg.RetriggerEvery == 0 {
		if err := page.Reload(ctx); err != nil {
			log.Warn("Reload failed", zap.Int("tick", sess.Tick), zap.Error(err))
			return
		}
		log.Debug("Reloaded while waiting for download", zap.Int("tick", sess.Tick))
	}
}

// sleepCtx sleeps for d unless the context ends first. A non-positive d
// returns immediately, which keeps tests fast.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("acquire: interrupted: %w", ctx.Err())
	case <-t.C:
		return nil
	}
}
