// File: internal/acquire/acquire_test.go
package acquire

import (
	"context"
	"testing"

	"github.com/rmcnulty/evergreen-cli/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// -- Scripted fakes --

type fakeField struct {
	value string
	fills []string
}

func (f *fakeField) Value(context.Context) (string, error) { return f.value, nil }
func (f *fakeField) Fill(_ context.Context, text string) error {
	f.fills = append(f.fills, text)
	f.value = text
	return nil
}

type fakeButton struct {
	enabled     bool
	clicks      int
	forceClicks int
}

func (b *fakeButton) Enabled(context.Context) (bool, error) { return b.enabled, nil }
func (b *fakeButton) Click(context.Context) error           { b.clicks++; return nil }
func (b *fakeButton) ForceClick(context.Context) error      { b.forceClicks++; return nil }

// fakePage serves a scripted sequence of URLs, one per CurrentURL call; the
// last entry repeats once the script runs out.
type fakePage struct {
	urls    []string
	urlCall int

	navs    []string
	reloads int
	enters  int

	field  *fakeField
	button *fakeButton
}

func (p *fakePage) Navigate(_ context.Context, url string) error {
	p.navs = append(p.navs, url)
	return nil
}
func (p *fakePage) Reload(context.Context) error { p.reloads++; return nil }
func (p *fakePage) CurrentURL(context.Context) (string, error) {
	i := p.urlCall
	if i >= len(p.urls) {
		i = len(p.urls) - 1
	}
	p.urlCall++
	return p.urls[i], nil
}
func (p *fakePage) FindField(context.Context, []string) (Field, bool, error) {
	if p.field == nil {
		return nil, false, nil
	}
	return p.field, true, nil
}
func (p *fakePage) FindButton(context.Context, []string) (Button, bool, error) {
	if p.button == nil {
		return nil, false, nil
	}
	return p.button, true, nil
}
func (p *fakePage) PressEnter(context.Context) error { p.enters++; return nil }

// fireOnSecondNav reports a download once the page has navigated twice, i.e.
// right after the retrigger.
type fireOnSecondNav struct {
	page *fakePage
	res  DownloadResult
}

func (w *fireOnSecondNav) Result() (DownloadResult, bool) {
	if len(w.page.navs) >= 2 {
		return w.res, true
	}
	return DownloadResult{}, false
}

type neverFires struct{}

func (neverFires) Result() (DownloadResult, bool) { return DownloadResult{}, false }

// -- Helpers --

func testLoopConfig() config.AcquireConfig {
	return config.AcquireConfig{
		BudgetTicks:     20,
		TickInterval:    0, // no sleeping in tests
		SettleTicks:     3,
		RetriggerEvery:  3,
		DisabledRetries: 3,
		DisabledWait:    0,
		LoginKeywords:   []string{"login", "signin", "auth", "logon"},
		TransitKeywords: []string{"sso", "saml", "oauth", "verify", "identify"},
		LoginDomains:    []string{"okta.com"},
	}
}

const (
	loginURL  = "https://id.example.com/login"
	portalURL = "https://app.findox.com/deals"
	targetURL = "https://app.findox.com/d?download=true"
	email     = "reports@client.example"
)

// -- Tests --

func TestRunDownloadsAfterLogin(t *testing.T) {
	cfg := testLoopConfig()
	page := &fakePage{
		// Two ticks of login, then the portal.
		urls:   []string{loginURL, loginURL, portalURL},
		field:  &fakeField{},
		button: &fakeButton{enabled: true},
	}
	watcher := &fireOnSecondNav{page: page, res: DownloadResult{
		Success: true, SavedPath: "/tmp/dl/report.pdf", SuggestedName: "report.pdf",
	}}

	loop := NewLoop(cfg, email, zap.NewNop())
	res, err := loop.Run(context.Background(), page, watcher, targetURL)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "report.pdf", res.SuggestedName)

	// Exactly one fill, one submit, and one retrigger beyond the initial
	// navigation.
	assert.Equal(t, []string{email}, page.field.fills)
	assert.Equal(t, 1, page.button.clicks)
	require.Len(t, page.navs, 2)
	assert.Equal(t, targetURL, page.navs[0])
	assert.Equal(t, targetURL, page.navs[1])
}

func TestRunRetriggerWaitsForSettle(t *testing.T) {
	cfg := testLoopConfig()
	cfg.SettleTicks = 5
	cfg.BudgetTicks = 12
	cfg.RetriggerEvery = 3
	page := &fakePage{urls: []string{portalURL}}

	loop := NewLoop(cfg, email, zap.NewNop())
	_, err := loop.Run(context.Background(), page, neverFires{}, targetURL)
	require.ErrorIs(t, err, ErrBudgetExhausted)

	// Initial navigation plus exactly one retrigger, which happened no
	// earlier than the settle tick.
	assert.Len(t, page.navs, 2)
	// Reloads every 3 ticks after the tick-5 retrigger: ticks 8 and 11.
	assert.Equal(t, 2, page.reloads)
}

func TestRunTimesOutAfterBudget(t *testing.T) {
	cfg := testLoopConfig()
	cfg.BudgetTicks = 7
	cfg.SettleTicks = 100 // never retrigger
	page := &fakePage{urls: []string{portalURL}}

	loop := NewLoop(cfg, email, zap.NewNop())
	_, err := loop.Run(context.Background(), page, neverFires{}, targetURL)
	require.ErrorIs(t, err, ErrBudgetExhausted)
	assert.Equal(t, 7, page.urlCall, "should classify exactly once per budget tick")
}

func TestRunAlwaysLoginFillsOncePerCycle(t *testing.T) {
	cfg := testLoopConfig()
	cfg.BudgetTicks = 8
	page := &fakePage{
		urls:   []string{loginURL},
		field:  &fakeField{},
		button: &fakeButton{enabled: true},
	}

	loop := NewLoop(cfg, email, zap.NewNop())
	_, err := loop.Run(context.Background(), page, neverFires{}, targetURL)
	require.ErrorIs(t, err, ErrBudgetExhausted)

	// A page that never leaves login gets exactly one fill and one submit.
	assert.Equal(t, []string{email}, page.field.fills)
	assert.Equal(t, 1, page.button.clicks)
	assert.Len(t, page.navs, 1, "no retrigger without authentication")
}

func TestRunLoginResetCycleRefills(t *testing.T) {
	cfg := testLoopConfig()
	cfg.BudgetTicks = 6
	cfg.SettleTicks = 100 // keep the authenticated tick passive
	field := &fakeField{}
	page := &fakePage{
		// Login, portal, then bounced back to login.
		urls:   []string{loginURL, portalURL, loginURL},
		field:  field,
		button: &fakeButton{enabled: true},
	}

	loop := NewLoop(cfg, email, zap.NewNop())
	_, err := loop.Run(context.Background(), page, neverFires{}, targetURL)
	require.ErrorIs(t, err, ErrBudgetExhausted)

	// Each reset cycle submits once. The second cycle sees the field still
	// holding the email, so it skips retyping but still submits.
	assert.Equal(t, []string{email}, field.fills)
	assert.Equal(t, 2, page.button.clicks)
}

func TestRunDisabledButtonForceClicked(t *testing.T) {
	cfg := testLoopConfig()
	cfg.BudgetTicks = 3
	button := &fakeButton{enabled: false}
	page := &fakePage{
		urls:   []string{loginURL},
		field:  &fakeField{},
		button: button,
	}

	loop := NewLoop(cfg, email, zap.NewNop())
	_, err := loop.Run(context.Background(), page, neverFires{}, targetURL)
	require.ErrorIs(t, err, ErrBudgetExhausted)

	assert.Equal(t, 0, button.clicks)
	assert.Equal(t, 1, button.forceClicks)
}

func TestRunEnterFallbackWithoutButton(t *testing.T) {
	cfg := testLoopConfig()
	cfg.BudgetTicks = 3
	page := &fakePage{
		urls:  []string{loginURL},
		field: &fakeField{},
		// no button
	}

	loop := NewLoop(cfg, email, zap.NewNop())
	_, err := loop.Run(context.Background(), page, neverFires{}, targetURL)
	require.ErrorIs(t, err, ErrBudgetExhausted)
	assert.Equal(t, 1, page.enters)
}

func TestRunPrefilledFieldNotRetyped(t *testing.T) {
	cfg := testLoopConfig()
	cfg.BudgetTicks = 3
	field := &fakeField{value: email}
	page := &fakePage{
		urls:   []string{loginURL},
		field:  field,
		button: &fakeButton{enabled: true},
	}

	loop := NewLoop(cfg, email, zap.NewNop())
	_, err := loop.Run(context.Background(), page, neverFires{}, targetURL)
	require.ErrorIs(t, err, ErrBudgetExhausted)

	assert.Empty(t, field.fills, "matching value should not be retyped")
	assert.Equal(t, 1, page.button.clicks, "submit still happens")
}

func TestRunWithoutEmailObservesOnly(t *testing.T) {
	cfg := testLoopConfig()
	cfg.BudgetTicks = 3
	field := &fakeField{}
	page := &fakePage{urls: []string{loginURL}, field: field, button: &fakeButton{enabled: true}}

	loop := NewLoop(cfg, "", zap.NewNop())
	_, err := loop.Run(context.Background(), page, neverFires{}, targetURL)
	require.ErrorIs(t, err, ErrBudgetExhausted)
	assert.Empty(t, field.fills)
	assert.Equal(t, 0, page.button.clicks)
}

func TestRunHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	page := &fakePage{urls: []string{portalURL}}
	loop := NewLoop(testLoopConfig(), email, zap.NewNop())
	_, err := loop.Run(ctx, page, neverFires{}, targetURL)
	require.ErrorIs(t, err, context.Canceled)
}
