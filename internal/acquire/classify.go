// File: internal/acquire/classify.go
package acquire

import (
	"net/url"
	"strings"

	"github.com/rmcnulty/evergreen-cli/internal/config"
)

// PageClass is the loop's reading of where the browser currently is.
type PageClass int

const (
	// PageUnknown means the URL is empty or not yet meaningful.
	PageUnknown PageClass = iota
	// PageLogin is an identity-provider credential page.
	PageLogin
	// PageTransit is an SSO hand-off page between the IdP and the portal.
	PageTransit
	// PageAuthenticated is anything else: the portal itself.
	PageAuthenticated
)

func (p PageClass) String() string {
	switch p {
	case PageLogin:
		return "login"
	case PageTransit:
		return "transit"
	case PageAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Classifier buckets a URL by substring heuristics. It is a pure function of
// the URL; no page content is inspected.
type Classifier struct {
	loginKeywords   []string
	transitKeywords []string
	loginDomains    []string
}

// NewClassifier builds a classifier from the configured keyword sets.
func NewClassifier(cfg config.AcquireConfig) Classifier {
	return Classifier{
		loginKeywords:   lowerAll(cfg.LoginKeywords),
		transitKeywords: lowerAll(cfg.TransitKeywords),
		loginDomains:    lowerAll(cfg.LoginDomains),
	}
}

// Classify buckets rawURL. Login indicators are checked first, so a URL
// matching both sets (e.g. "oauth" contains "auth") classifies as login.
func (c Classifier) Classify(rawURL string) PageClass {
	lower := strings.ToLower(strings.TrimSpace(rawURL))
	if lower == "" || lower == "about:blank" {
		return PageUnknown
	}

	for _, kw := range c.loginKeywords {
		if strings.Contains(lower, kw) {
			return PageLogin
		}
	}
	if host := hostOf(lower); host != "" {
		for _, d := range c.loginDomains {
			if host == d || strings.HasSuffix(host, "."+d) {
				return PageLogin
			}
		}
	}
	for _, kw := range c.transitKeywords {
		if strings.Contains(lower, kw) {
			return PageTransit
		}
	}
	return PageAuthenticated
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.ToLower(s))
	}
	return out
}
