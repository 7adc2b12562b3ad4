// internal/browser/page.go
package browser

import (
	"context"
	stdjson "encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/rmcnulty/evergreen-cli/internal/acquire"
	"github.com/rmcnulty/evergreen-cli/internal/humanoid"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Tab is one chromedp tab in the shared browser. It implements acquire.Page.
type Tab struct {
	id         uuid.UUID
	ctx        context.Context
	cancel     context.CancelFunc
	navTimeout time.Duration
	logger     *zap.Logger
	onClose    func()
}

// ID returns the tab's identifier.
func (t *Tab) ID() uuid.UUID { return t.id }

// Context exposes the tab's chromedp context for the download watcher.
func (t *Tab) Context() context.Context { return t.ctx }

// Close tears the tab down. Safe to call more than once.
func (t *Tab) Close(_ context.Context) {
	t.cancel()
	if t.onClose != nil {
		t.onClose()
		t.onClose = nil
	}
}

// run executes chromedp actions on the tab, bounded by both the caller's
// context and the navigation timeout.
func (t *Tab) run(ctx context.Context, actions ...chromedp.Action) error {
	bounded, cancel := context.WithTimeout(t.ctx, t.navTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- chromedp.Run(bounded, actions...) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	}
}

// Navigate loads url. Chrome aborts the navigation when the URL resolves
// straight to a file download; that is the outcome we want, so ERR_ABORTED
// is swallowed.
func (t *Tab) Navigate(ctx context.Context, url string) error {
	err := t.run(ctx, chromedp.Navigate(url))
	if err != nil && strings.Contains(err.Error(), "net::ERR_ABORTED") {
		t.logger.Debug("Navigation aborted (likely a direct download)", zap.String("url", url))
		return nil
	}
	return err
}

// Reload refreshes the page, with the same ERR_ABORTED tolerance.
func (t *Tab) Reload(ctx context.Context) error {
	err := t.run(ctx, chromedp.Reload())
	if err != nil && strings.Contains(err.Error(), "net::ERR_ABORTED") {
		return nil
	}
	return err
}

// CurrentURL reports the tab's location.
func (t *Tab) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := t.run(ctx, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

// locator pins down an element as (document index, selector). Index 0 is the
// top document; higher indexes are same-origin iframes in DOM order. Every
// operation re-resolves, so a re-render between ticks is harmless.
type locator struct {
	Found    bool   `json:"found"`
	Frame    int    `json:"frame"`
	Selector string `json:"selector"`
}

// jsDocsSnippet builds the document list walked by every lookup.
const jsDocsSnippet = `
	const docs = [document];
	for (const f of document.querySelectorAll('iframe')) {
		try { if (f.contentDocument) docs.push(f.contentDocument); } catch (e) {}
	}`

// findAndFocus walks the selector priority list across the documents and
// focuses the first hit.
func (t *Tab) findAndFocus(ctx context.Context, selectors []string) (locator, error) {
	selJSON, err := json.MarshalToString(selectors)
	if err != nil {
		return locator{}, fmt.Errorf("browser: encoding selectors: %w", err)
	}

	script := fmt.Sprintf(`(() => {%s
		const sels = %s;
		for (const sel of sels) {
			for (let i = 0; i < docs.length; i++) {
				const el = docs[i].querySelector(sel);
				if (el) {
					el.focus();
					return {found: true, frame: i, selector: sel};
				}
			}
		}
		return {found: false, frame: 0, selector: ""};
	})()`, jsDocsSnippet, selJSON)

	var loc locator
	if err := t.run(ctx, chromedp.Evaluate(script, &loc)); err != nil {
		return locator{}, err
	}
	return loc, nil
}

// eval runs an expression against a located element. The element expression
// is injected as `el`; a missing element yields an error result.
func (t *Tab) eval(ctx context.Context, loc locator, body string, out interface{}) error {
	selJSON, err := json.MarshalToString(loc.Selector)
	if err != nil {
		return fmt.Errorf("browser: encoding selector: %w", err)
	}

	script := fmt.Sprintf(`(() => {%s
		const d = docs[%d];
		const el = d ? d.querySelector(%s) : null;
		if (!el) return {ok: false};
		return {ok: true, value: (() => { %s })()};
	})()`, jsDocsSnippet, loc.Frame, selJSON, body)

	var res struct {
		OK    bool               `json:"ok"`
		Value stdjson.RawMessage `json:"value"`
	}
	if err := t.run(ctx, chromedp.Evaluate(script, &res)); err != nil {
		return err
	}
	if !res.OK {
		return fmt.Errorf("browser: element %q vanished", loc.Selector)
	}
	if out != nil && len(res.Value) > 0 {
		if err := json.Unmarshal(res.Value, out); err != nil {
			return fmt.Errorf("browser: decoding element result: %w", err)
		}
	}
	return nil
}

// FindField implements acquire.Page.
func (t *Tab) FindField(ctx context.Context, selectors []string) (acquire.Field, bool, error) {
	loc, err := t.findAndFocus(ctx, selectors)
	if err != nil || !loc.Found {
		return nil, false, err
	}
	t.logger.Debug("Found input field",
		zap.String("selector", loc.Selector), zap.Int("frame", loc.Frame))
	return &field{tab: t, loc: loc, typist: humanoid.NewTypist(CDPKeyboard{tab: t})}, true, nil
}

// FindButton implements acquire.Page.
func (t *Tab) FindButton(ctx context.Context, selectors []string) (acquire.Button, bool, error) {
	loc, err := t.findAndFocus(ctx, selectors)
	if err != nil || !loc.Found {
		return nil, false, err
	}
	t.logger.Debug("Found button",
		zap.String("selector", loc.Selector), zap.Int("frame", loc.Frame))
	return &button{tab: t, loc: loc}, true, nil
}

// PressEnter sends Enter to whatever holds focus.
func (t *Tab) PressEnter(ctx context.Context) error {
	typist := humanoid.NewTypist(CDPKeyboard{tab: t})
	return typist.PressEnter(ctx)
}

// CDPKeyboard routes humanoid key chords through the tab's run helper so the
// navigation timeout applies to typing too.
type CDPKeyboard struct {
	tab *Tab
}

func (k CDPKeyboard) SendKeys(ctx context.Context, keys string) error {
	return k.tab.run(ctx, chromedp.SendKeys("document.activeElement", keys, chromedp.ByJSPath))
}

func (k CDPKeyboard) Blur(ctx context.Context) error {
	return k.tab.run(ctx, chromedp.Evaluate(
		`document.activeElement && document.activeElement !== document.body && document.activeElement.blur()`,
		nil))
}

// field implements acquire.Field over a located input.
type field struct {
	tab    *Tab
	loc    locator
	typist *humanoid.Typist
}

func (f *field) Value(ctx context.Context) (string, error) {
	var v string
	if err := f.tab.eval(ctx, f.loc, `return el.value || ""`, &v); err != nil {
		return "", err
	}
	return v, nil
}

// Fill refocuses the input and types the value with the full humanoid
// sequence (keystrokes, micro-edit, blur).
func (f *field) Fill(ctx context.Context, text string) error {
	if err := f.tab.eval(ctx, f.loc, `el.focus(); el.value = ""; return true`, nil); err != nil {
		return err
	}
	return f.typist.FillField(ctx, text)
}

// button implements acquire.Button over a located control.
type button struct {
	tab *Tab
	loc locator
}

func (b *button) Enabled(ctx context.Context) (bool, error) {
	var enabled bool
	err := b.tab.eval(ctx, b.loc,
		`return !el.disabled && el.getAttribute('disabled') === null && el.getAttribute('aria-disabled') !== 'true'`,
		&enabled)
	if err != nil {
		return false, err
	}
	return enabled, nil
}

func (b *button) Click(ctx context.Context) error {
	return b.tab.eval(ctx, b.loc, `el.click(); return true`, nil)
}

// ForceClick strips the disabled state and clicks anyway. Some login forms
// hold the button disabled on a validator that synthetic input never
// satisfies; the form itself still accepts the submit.
func (b *button) ForceClick(ctx context.Context) error {
	return b.tab.eval(ctx, b.loc,
		`el.disabled = false;
		 el.removeAttribute('disabled');
		 el.removeAttribute('aria-disabled');
		 el.click();
		 return true`,
		nil)
}
