// internal/browser/manager.go

// Package browser owns the one shared Chrome process and the tabs opened in
// it. The browser runs with a persistent profile so SSO cookies and device
// trust survive between runs; losing that profile means a human has to click
// through MFA again.
package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rmcnulty/evergreen-cli/internal/config"
)

const shutdownGracePeriod = 15 * time.Second

// launchFunc starts a browser and returns its root chromedp context. Split
// out so tests can count launches without a real Chrome.
type launchFunc func() (context.Context, context.CancelFunc, error)

// newTabFunc opens a tab inside a running browser context.
type newTabFunc func(parent context.Context) (context.Context, context.CancelFunc)

// Manager serializes access to the single persistent-profile browser.
// Creation, liveness checking, and recreation all happen under one mutex, so
// concurrent operations can never race two Chrome processes onto the same
// profile directory.
type Manager struct {
	cfg    config.BrowserConfig
	netCfg config.NetworkConfig
	logger *zap.Logger

	launch launchFunc
	newTab newTabFunc

	mu            sync.Mutex
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	tabs   map[uuid.UUID]*Tab
	tabsMu sync.Mutex
	wg     sync.WaitGroup
}

// NewManager creates a manager. The browser itself is launched lazily on the
// first NewTab call.
func NewManager(cfg config.BrowserConfig, netCfg config.NetworkConfig, logger *zap.Logger) *Manager {
	m := &Manager{
		cfg:    cfg,
		netCfg: netCfg,
		logger: logger.Named("browser_manager"),
		tabs:   make(map[uuid.UUID]*Tab),
	}
	m.launch = m.launchChrome
	m.newTab = func(parent context.Context) (context.Context, context.CancelFunc) {
		return chromedp.NewContext(parent)
	}
	m.logger.Info("Browser manager created (launch deferred).")
	return m
}

// launchChrome starts Chrome through the exec allocator with the persistent
// profile and automation-hostile defaults softened.
func (m *Manager) launchChrome() (context.Context, context.CancelFunc, error) {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.UserDataDir(m.cfg.ProfileDir),
		chromedp.Flag("headless", m.cfg.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("password-store", "basic"),
		chromedp.Flag("disable-dev-shm-usage", true),
	}
	for _, arg := range m.cfg.Args {
		arg = strings.TrimPrefix(arg, "--")
		if name, value, ok := strings.Cut(arg, "="); ok {
			opts = append(opts, chromedp.Flag(name, value))
		} else {
			opts = append(opts, chromedp.Flag(arg, true))
		}
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...interface{}) {
			m.logger.Sugar().Debugf(format, args...)
		}))

	// Force the process to start now so launch failures surface here, not on
	// the first navigation.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, nil, fmt.Errorf("browser: launching chrome: %w", err)
	}

	m.allocCancel = allocCancel
	m.logger.Info("Browser launched",
		zap.String("profile_dir", m.cfg.ProfileDir),
		zap.Bool("headless", m.cfg.Headless))
	return browserCtx, browserCancel, nil
}

// ensureBrowser launches or relaunches the browser as needed. Caller holds m.mu.
func (m *Manager) ensureBrowser() error {
	if m.browserCtx != nil && m.browserCtx.Err() == nil {
		return nil
	}
	if m.browserCtx != nil {
		m.logger.Warn("Browser is gone; relaunching.")
		m.teardownLocked()
	}

	ctx, cancel, err := m.launch()
	if err != nil {
		return err
	}
	m.browserCtx = ctx
	m.browserCancel = cancel
	return nil
}

// NewTab opens an independent tab in the shared browser, launching it first
// if necessary.
func (m *Manager) NewTab(ctx context.Context) (*Tab, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if err := m.ensureBrowser(); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	tabCtx, tabCancel := m.newTab(m.browserCtx)
	m.mu.Unlock()

	tab := &Tab{
		id:         uuid.New(),
		ctx:        tabCtx,
		cancel:     tabCancel,
		navTimeout: m.netCfg.NavigationTimeout,
		logger:     m.logger.Named("tab"),
	}

	m.wg.Add(1)
	tab.onClose = func() {
		m.tabsMu.Lock()
		delete(m.tabs, tab.id)
		m.tabsMu.Unlock()
		m.wg.Done()
	}

	m.tabsMu.Lock()
	m.tabs[tab.id] = tab
	m.tabsMu.Unlock()

	m.logger.Debug("Tab opened", zap.String("tab_id", tab.id.String()))
	return tab, nil
}

// teardownLocked cancels the browser and allocator contexts. Caller holds m.mu.
func (m *Manager) teardownLocked() {
	if m.browserCancel != nil {
		m.browserCancel()
		m.browserCancel = nil
	}
	if m.allocCancel != nil {
		m.allocCancel()
		m.allocCancel = nil
	}
	m.browserCtx = nil
}

// Shutdown closes all tabs concurrently, then the browser process. Bounded
// by ctx; stragglers are cut off when the browser context is cancelled.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Shutting down browser manager.")

	m.tabsMu.Lock()
	open := make([]*Tab, 0, len(m.tabs))
	for _, t := range m.tabs {
		open = append(open, t)
	}
	m.tabsMu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, t := range open {
		t := t
		g.Go(func() error {
			t.Close(gctx)
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("All tabs closed.")
	case <-ctx.Done():
		m.logger.Warn("Timed out waiting for tabs; closing browser anyway.", zap.Error(ctx.Err()))
	case <-time.After(shutdownGracePeriod):
		m.logger.Warn("Shutdown grace period elapsed; closing browser anyway.")
	}

	m.mu.Lock()
	m.teardownLocked()
	m.mu.Unlock()

	m.logger.Info("Browser manager shutdown complete.")
	return nil
}
