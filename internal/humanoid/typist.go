// -- internal/humanoid/typist.go --

// Package humanoid produces keyboard input that looks like a person typing:
// per-character key events against the focused element with jittered
// inter-key delays. Text is sent exactly as given; there is no typo
// simulation, since the value ends up in a credential form.
package humanoid

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

// Inter-key delay model, in milliseconds.
const (
	keyDelayMean   = 70.0
	keyDelayStdDev = 28.0
	keyDelayMin    = 35.0
	// microEditPause is the beat between the throwaway key and its undo.
	microEditPause = 120 * time.Millisecond
)

// Keyboard dispatches key chords to the focused element of a page.
type Keyboard interface {
	// SendKeys delivers keys (a literal string or a kb control constant) to
	// the focused element.
	SendKeys(ctx context.Context, keys string) error
	// Blur removes focus from the active element.
	Blur(ctx context.Context) error
}

// CDPKeyboard drives the real browser over chromedp. The actions target
// document.activeElement so focus set by the caller is respected.
type CDPKeyboard struct{}

func (CDPKeyboard) SendKeys(ctx context.Context, keys string) error {
	return chromedp.SendKeys("document.activeElement", keys, chromedp.ByJSPath).Do(ctx)
}

func (CDPKeyboard) Blur(ctx context.Context) error {
	return chromedp.Evaluate(
		`document.activeElement && document.activeElement !== document.body && document.activeElement.blur()`,
		nil,
	).Do(ctx)
}

// Typist types text one key at a time with human-looking rhythm.
type Typist struct {
	kb Keyboard

	mu  sync.Mutex
	rng *rand.Rand
	// delayScale multiplies every pause; tests set it to zero.
	delayScale float64
}

// Option tunes a Typist.
type Option func(*Typist)

// WithDelayScale multiplies all typing pauses. Zero disables them.
func WithDelayScale(scale float64) Option {
	return func(t *Typist) { t.delayScale = scale }
}

// WithSeed makes the jitter deterministic.
func WithSeed(seed int64) Option {
	return func(t *Typist) { t.rng = rand.New(rand.NewSource(seed)) }
}

// NewTypist builds a typist over the given keyboard.
func NewTypist(keyboard Keyboard, opts ...Option) *Typist {
	t := &Typist{
		kb:         keyboard,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		delayScale: 1.0,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Type sends text to the focused element, one rune per key event, pausing
// between keys.
func (t *Typist) Type(ctx context.Context, text string) error {
	for _, r := range text {
		if err := t.pause(ctx); err != nil {
			return err
		}
		if err := t.kb.SendKeys(ctx, string(r)); err != nil {
			return fmt.Errorf("humanoid: sending key %q: %w", r, err)
		}
	}
	return nil
}

// MicroEdit types a throwaway space and immediately deletes it. Frameworks
// that validate on input events need one more edit after programmatic-looking
// typing before they will enable the submit button.
func (t *Typist) MicroEdit(ctx context.Context) error {
	if err := t.kb.SendKeys(ctx, " "); err != nil {
		return fmt.Errorf("humanoid: micro-edit key: %w", err)
	}
	if err := t.sleep(ctx, microEditPause); err != nil {
		return err
	}
	if err := t.kb.SendKeys(ctx, kb.Backspace); err != nil {
		return fmt.Errorf("humanoid: micro-edit undo: %w", err)
	}
	return nil
}

// FillField is the full credential-entry sequence: type the value, run the
// micro-edit, then blur so change handlers fire.
func (t *Typist) FillField(ctx context.Context, text string) error {
	if err := t.Type(ctx, text); err != nil {
		return err
	}
	if err := t.MicroEdit(ctx); err != nil {
		return err
	}
	if err := t.kb.Blur(ctx); err != nil {
		return fmt.Errorf("humanoid: blur: %w", err)
	}
	return nil
}

// PressEnter submits via the keyboard.
func (t *Typist) PressEnter(ctx context.Context) error {
	return t.kb.SendKeys(ctx, kb.Enter)
}

// pause waits a jittered inter-key delay drawn from a clamped normal.
func (t *Typist) pause(ctx context.Context) error {
	t.mu.Lock()
	delay := t.rng.NormFloat64()*keyDelayStdDev + keyDelayMean
	t.mu.Unlock()

	delay = math.Max(keyDelayMin, delay)
	return t.sleep(ctx, time.Duration(delay)*time.Millisecond)
}

func (t *Typist) sleep(ctx context.Context, d time.Duration) error {
	d = time.Duration(float64(d) * t.delayScale)
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
