// File: internal/acquire/selectors.go
package acquire

// Selector priority lists for the portal's login form. Ordered most specific
// first; the first selector that finds an element wins. The page
// implementation searches the document and same-origin iframes.
var (
	// LoginFieldSelectors locate the email/username input. The data-cy hook
	// is the portal's own test handle and is the most stable when present.
	LoginFieldSelectors = []string{
		`[data-cy='step1-email-input']`,
		`input[name='username']`,
		`input[type='email']`,
	}

	// SubmitButtonSelectors locate the control that advances the login form.
	SubmitButtonSelectors = []string{
		`[data-cy='step1-next-button']`,
		`button[type='submit']`,
		`input[type='submit']`,
	}
)
