package session

import "sync"

// State of a Guard. Authenticated and Unauthenticated are terminal.
type State int

const (
	Checking State = iota
	Authenticated
	Unauthenticated
)

func (s State) String() string {
	switch s {
	case Authenticated:
		return "authenticated"
	case Unauthenticated:
		return "unauthenticated"
	}
	return "checking"
}

// Requirement is what a protected route asks of the session.
type Requirement int

const (
	RequireUser Requirement = iota
	RequireAdmin
)

// Redirector sends the client elsewhere, typically to the login page.
type Redirector interface {
	Redirect(path string)
}

// RedirectFunc adapts a function to the Redirector interface.
type RedirectFunc func(path string)

func (f RedirectFunc) Redirect(path string) { f(path) }

// Lookup resolves a session id to a live identity.
type Lookup interface {
	Current(id string) (Identity, bool)
}

// Guard gates one mount of protected content. It starts in Checking, settles once, and
// redirects exactly once when the session is missing or does not meet the requirement.
type Guard struct {
	sessions   Lookup
	redirector Redirector
	loginPath  string
	req        Requirement

	mu       sync.Mutex
	state    State
	identity Identity
}

func NewGuard(sessions Lookup, redirector Redirector, loginPath string, req Requirement) *Guard {
	return &Guard{
		sessions:   sessions,
		redirector: redirector,
		loginPath:  loginPath,
		req:        req,
	}
}

// Check settles the guard for sessionID. Later calls return the settled state unchanged.
func (g *Guard) Check(sessionID string) State {
	g.mu.Lock()
	if g.state != Checking {
		defer g.mu.Unlock()
		return g.state
	}

	ident, ok := g.sessions.Current(sessionID)
	if ok && ident.IsLoggedIn && (g.req == RequireUser || ident.IsAdmin) {
		g.state, g.identity = Authenticated, ident
		g.mu.Unlock()
		return Authenticated
	}
	g.state = Unauthenticated
	g.mu.Unlock()

	g.redirector.Redirect(g.loginPath)
	return Unauthenticated
}

func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Identity returns the session identity once Authenticated.
func (g *Guard) Identity() (Identity, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.identity, g.state == Authenticated
}

// Render calls content only when the guard is Authenticated and reports whether it did.
func (g *Guard) Render(content func(Identity)) bool {
	ident, ok := g.Identity()
	if !ok {
		return false
	}
	content(ident)
	return true
}
