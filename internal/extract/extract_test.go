// File: internal/extract/extract_test.go
package extract

import (
	"fmt"
	"strings"
	"testing"

	"github.com/rmcnulty/evergreen-cli/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() config.ExtractConfig {
	return config.ExtractConfig{
		PortalDomain:    "findox.com",
		GatewayDomain:   "mimecastprotect.com",
		Label:           "(Web)",
		ProximityWindow: 300,
	}
}

func newTestExtractor(t *testing.T) *Extractor {
	t.Helper()
	e, err := New(testConfig())
	require.NoError(t, err)
	return e
}

func TestNew(t *testing.T) {
	t.Run("rejects empty portal domain", func(t *testing.T) {
		cfg := testConfig()
		cfg.PortalDomain = ""
		_, err := New(cfg)
		assert.Error(t, err)
	})

	t.Run("rejects non-positive window", func(t *testing.T) {
		cfg := testConfig()
		cfg.ProximityWindow = 0
		_, err := New(cfg)
		assert.Error(t, err)
	})

	t.Run("gateway and label strategies are optional", func(t *testing.T) {
		cfg := testConfig()
		cfg.GatewayDomain = ""
		cfg.Label = ""
		e, err := New(cfg)
		require.NoError(t, err)

		_, ok := e.Extract(`<a href="https://x.mimecastprotect.com/s/abc">link</a>`)
		assert.False(t, ok, "gateway strategy should be disabled")
	})
}

func TestExtractStrategies(t *testing.T) {
	e := newTestExtractor(t)

	t.Run("exact param match", func(t *testing.T) {
		body := `<p>Ready.</p><a href="https://app.findox.com/deal/42?download=true&v=1">Get it</a>`
		c, ok := e.Extract(body)
		require.True(t, ok)
		assert.Equal(t, StrategyExactParam, c.Strategy)
		assert.Equal(t, "https://app.findox.com/deal/42?download=true&v=1", c.URL)
	})

	t.Run("case insensitive", func(t *testing.T) {
		body := `<a HREF="HTTPS://App.FinDox.Com/x?DOWNLOAD=TRUE">x</a>`
		c, ok := e.Extract(body)
		require.True(t, ok)
		assert.Equal(t, StrategyExactParam, c.Strategy)
	})

	t.Run("gateway-only body uses redirect strategy", func(t *testing.T) {
		body := `<a href="https://url.us.m.mimecastprotect.com/s/AbC123?domain=findox.example">Document</a>`
		c, ok := e.Extract(body)
		require.True(t, ok)
		assert.Equal(t, StrategyRedirectDomain, c.Strategy)
		assert.Contains(t, c.URL, "mimecastprotect.com")
	})

	t.Run("exact param beats gateway when both present", func(t *testing.T) {
		body := `<a href="https://url.mimecastprotect.com/s/first">wrapped</a>` +
			`<a href="https://app.findox.com/d?download=true">direct</a>`
		c, ok := e.Extract(body)
		require.True(t, ok)
		assert.Equal(t, StrategyExactParam, c.Strategy)
		assert.Equal(t, "https://app.findox.com/d?download=true", c.URL)
	})

	t.Run("gateway beats label proximity", func(t *testing.T) {
		body := `<a href="https://other.example/doc">Report (Web)</a>` +
			`<a href="https://url.mimecastprotect.com/s/x">wrapped</a>`
		c, ok := e.Extract(body)
		require.True(t, ok)
		assert.Equal(t, StrategyRedirectDomain, c.Strategy)
	})

	t.Run("label proximity as last resort", func(t *testing.T) {
		body := `<a href="https://cdn.example.net/files/report.pdf">Q3 Report</a> (Web)`
		c, ok := e.Extract(body)
		require.True(t, ok)
		assert.Equal(t, StrategyLabelProximity, c.Strategy)
		assert.Equal(t, "https://cdn.example.net/files/report.pdf", c.URL)
	})

	t.Run("label window spans newlines", func(t *testing.T) {
		body := "<a href=\"https://cdn.example.net/r.pdf\">Report</a>\n<span>\n(Web)</span>"
		_, ok := e.Extract(body)
		assert.True(t, ok)
	})

	t.Run("no match", func(t *testing.T) {
		body := `<p>Nothing to see.</p><a href="https://unrelated.example/">home</a>`
		_, ok := e.Extract(body)
		assert.False(t, ok)
	})

	t.Run("malformed html degrades to no match", func(t *testing.T) {
		body := `<a href="https://app.findox.com/d?download=true`
		_, ok := e.Extract(body)
		assert.False(t, ok)
	})
}

func TestLabelProximityWindowBoundary(t *testing.T) {
	e := newTestExtractor(t)

	// The window counts the characters between the closing quote of the href
	// and the label literal; 300 is the last distance that still matches.
	bodyAt := func(gap int) string {
		return fmt.Sprintf(`href="https://cdn.example.net/r.pdf"%s(Web)`, strings.Repeat("x", gap))
	}

	t.Run("gap of 300 matches", func(t *testing.T) {
		c, ok := e.Extract(bodyAt(300))
		require.True(t, ok)
		assert.Equal(t, StrategyLabelProximity, c.Strategy)
	})

	t.Run("gap of 301 does not match", func(t *testing.T) {
		_, ok := e.Extract(bodyAt(301))
		assert.False(t, ok)
	})
}

func TestUnescape(t *testing.T) {
	t.Run("decodes exactly the three entities", func(t *testing.T) {
		in := "https://a.example/p?x=1&amp;y=&lt;2&gt;"
		assert.Equal(t, "https://a.example/p?x=1&y=<2>", Unescape(in))
	})

	t.Run("leaves percent encoding and other entities alone", func(t *testing.T) {
		in := "https://a.example/p?q=%2Fpath&quot;&#39;"
		assert.Equal(t, in, Unescape(in))
	})

	t.Run("applied to extracted url but not raw match", func(t *testing.T) {
		e := newTestExtractor(t)
		body := `<a href="https://app.findox.com/d?download=true&amp;id=7">x</a>`
		c, ok := e.Extract(body)
		require.True(t, ok)
		assert.Equal(t, "https://app.findox.com/d?download=true&id=7", c.URL)
		assert.Equal(t, "https://app.findox.com/d?download=true&amp;id=7", c.RawMatch)
	})
}

func TestAllHrefs(t *testing.T) {
	t.Run("collects every href", func(t *testing.T) {
		body := `<a href="https://one.example/">1</a><a HREF='https://two.example/'>2</a>`
		hrefs := AllHrefs(body)
		assert.Equal(t, []string{"https://one.example/", "https://two.example/"}, hrefs)
	})

	t.Run("truncates long hrefs to 100 chars", func(t *testing.T) {
		long := "https://long.example/" + strings.Repeat("a", 200)
		body := fmt.Sprintf(`<a href="%s">x</a>`, long)
		hrefs := AllHrefs(body)
		require.Len(t, hrefs, 1)
		assert.Len(t, hrefs[0], 100)
		assert.Equal(t, long[:100], hrefs[0])
	})

	t.Run("empty body yields nil", func(t *testing.T) {
		assert.Nil(t, AllHrefs("<p>no links</p>"))
	})
}
