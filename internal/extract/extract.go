// File: internal/extract/extract.go

// Package extract pulls the portal download link out of a notification
// email's HTML body. It works on the raw markup with regular expressions;
// malformed HTML simply degrades to "no match", never an error.
package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rmcnulty/evergreen-cli/internal/config"
)

// Strategy identifies which matching rule produced a candidate.
type Strategy string

const (
	// StrategyExactParam matches a portal-domain href carrying download=true.
	StrategyExactParam Strategy = "exact_param"
	// StrategyRedirectDomain matches a link-rewriting gateway href that wraps
	// the portal URL.
	StrategyRedirectDomain Strategy = "redirect_domain"
	// StrategyLabelProximity matches any href whose anchor sits within the
	// proximity window before the configured label literal.
	StrategyLabelProximity Strategy = "label_proximity"
)

// Candidate is a download link pulled from an email body.
type Candidate struct {
	// URL is the extracted link with HTML entities unescaped.
	URL string
	// Strategy names the rule that matched.
	Strategy Strategy
	// RawMatch is the href value exactly as it appeared in the markup.
	RawMatch string
}

// hrefPattern captures every href value in a body, for diagnostics.
var hrefPattern = regexp.MustCompile(`(?i)href=["']([^"']+)["']`)

// Extractor applies the ordered matching strategies to an HTML body.
// The strategies run strictly in priority order and the first match wins;
// there is no scoring or ranking.
type Extractor struct {
	exactParam     *regexp.Regexp
	redirectDomain *regexp.Regexp
	labelProximity *regexp.Regexp
}

// New compiles the strategy patterns from configuration.
func New(cfg config.ExtractConfig) (*Extractor, error) {
	if cfg.PortalDomain == "" {
		return nil, fmt.Errorf("extract: portal domain is required")
	}
	if cfg.ProximityWindow <= 0 {
		return nil, fmt.Errorf("extract: proximity window must be positive, got %d", cfg.ProximityWindow)
	}

	e := &Extractor{}
	var err error

	// Highest priority: a portal link that explicitly asks for the download.
	e.exactParam, err = regexp.Compile(fmt.Sprintf(
		`(?i)href=["'](https?://[^"']*%s[^"']*download=true[^"']*)["']`,
		regexp.QuoteMeta(cfg.PortalDomain)))
	if err != nil {
		return nil, fmt.Errorf("extract: compiling exact-param pattern: %w", err)
	}

	// Second: the security gateway's rewritten form of the same link.
	if cfg.GatewayDomain != "" {
		e.redirectDomain, err = regexp.Compile(fmt.Sprintf(
			`(?i)href=["'](https?://[^"']*%s[^"']*)["']`,
			regexp.QuoteMeta(cfg.GatewayDomain)))
		if err != nil {
			return nil, fmt.Errorf("extract: compiling redirect-domain pattern: %w", err)
		}
	}

	// Last resort: any link sitting just before the label text, e.g. the
	// "(Web)" suffix the portal puts after its download anchors. The window
	// is counted in characters and spans newlines.
	if cfg.Label != "" {
		e.labelProximity, err = regexp.Compile(fmt.Sprintf(
			`(?is)href=["']([^"']+)["'].{1,%d}?%s`,
			cfg.ProximityWindow, regexp.QuoteMeta(cfg.Label)))
		if err != nil {
			return nil, fmt.Errorf("extract: compiling label-proximity pattern: %w", err)
		}
	}

	return e, nil
}

// Extract returns the first candidate found in body, trying the strategies in
// priority order. The boolean is false when no strategy matches.
func (e *Extractor) Extract(body string) (Candidate, bool) {
	type attempt struct {
		re       *regexp.Regexp
		strategy Strategy
	}
	attempts := []attempt{
		{e.exactParam, StrategyExactParam},
		{e.redirectDomain, StrategyRedirectDomain},
		{e.labelProximity, StrategyLabelProximity},
	}

	for _, a := range attempts {
		if a.re == nil {
			continue
		}
		m := a.re.FindStringSubmatch(body)
		if m == nil {
			continue
		}
		raw := m[1]
		return Candidate{
			URL:      Unescape(raw),
			Strategy: a.strategy,
			RawMatch: raw,
		}, true
	}
	return Candidate{}, false
}

// maxHrefDump bounds each href in the diagnostic dump.
const maxHrefDump = 100

// AllHrefs returns every href value found in body, each truncated to 100
// characters. Used to log what was seen when no strategy matched.
func AllHrefs(body string) []string {
	matches := hrefPattern.FindAllStringSubmatch(body, -1)
	if len(matches) == 0 {
		return nil
	}
	hrefs := make([]string, 0, len(matches))
	for _, m := range matches {
		h := m[1]
		if len(h) > maxHrefDump {
			h = h[:maxHrefDump]
		}
		hrefs = append(hrefs, h)
	}
	return hrefs
}

// Unescape reverses exactly the three HTML entities that show up in the
// portal's mail bodies. Anything else is left alone on purpose: the URLs
// carry percent-encoding that a general entity decoder would mangle.
func Unescape(s string) string {
	s = strings.ReplaceAll(s, "&amp;", "&")
	s = strings.ReplaceAll(s, "&lt;", "<")
	s = strings.ReplaceAll(s, "&gt;", ">")
	return s
}
