// File: internal/acquire/state.go
package acquire

import "github.com/google/uuid"

// State is the acquisition session's lifecycle position.
type State int

const (
	// StateInit is the state before the first classification tick.
	StateInit State = iota
	// StateOnLogin means the browser is sitting on a credential page.
	StateOnLogin
	// StateTransit means the browser is mid SSO hand-off.
	StateTransit
	// StateAuthenticated means the browser reached the portal.
	StateAuthenticated
	// StateDownloaded is terminal: the artifact landed on disk.
	StateDownloaded
	// StateTimedOut is terminal: the tick budget ran out.
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateOnLogin:
		return "ON_LOGIN"
	case StateTransit:
		return "POST_LOGIN_TRANSIT"
	case StateAuthenticated:
		return "AUTHENTICATED"
	case StateDownloaded:
		return "DOWNLOADED"
	case StateTimedOut:
		return "TIMED_OUT"
	default:
		return "UNKNOWN"
	}
}

// Session carries the per-acquisition bookkeeping the loop mutates tick by
// tick. Progress only moves forward, with one exception: landing back on a
// login page starts a fresh reset cycle, clearing the form flags so the
// credential dance runs again.
type Session struct {
	ID    uuid.UUID
	State State
	Tick  int

	// EmailFilled and Submitted gate the login actions to once per reset cycle.
	EmailFilled bool
	Submitted   bool
	// Retriggered records the single post-authentication renavigation.
	Retriggered   bool
	RetriggerTick int
}

// NewSession returns a fresh session in INIT.
func NewSession() *Session {
	return &Session{ID: uuid.New(), State: StateInit}
}

// resetLoginCycle clears the per-cycle form flags. Called when the browser
// lands on a login page from any other state.
func (s *Session) resetLoginCycle() {
	s.EmailFilled = false
	s.Submitted = false
}

// observe folds a page classification into the session state. Unknown
// classifications leave the state untouched.
func (s *Session) observe(class PageClass) {
	switch class {
	case PageLogin:
		if s.State != StateOnLogin {
			s.resetLoginCycle()
		}
		s.State = StateOnLogin
	case PageTransit:
		// Transit never demotes an authenticated session; redirect chains
		// routinely bounce through SSO hosts after the portal is reached.
		if s.State != StateAuthenticated {
			s.State = StateTransit
		}
	case PageAuthenticated:
		s.State = StateAuthenticated
	}
}
