// ABOUTME: Navigation guard deciding whether a route may be entered
// ABOUTME: Redirects anonymous users to login and signed-in users away from it

package guard

import (
	"net/url"
	"strings"
)

// Route names the guard treats specially
const (
	LoginRoute    = "Login"
	HomeRoute     = "Home"
	NotFoundRoute = "NotFound"
)

// RedirectParam carries the originally requested path to the login route
const RedirectParam = "redirect"

// AppTitle is appended to every route title
const AppTitle = "MCP Console"

// Authenticator is the session state the guard needs. It must answer
// without blocking.
type Authenticator interface {
	IsAuthenticated() bool
}

// Action is the outcome of a guard check
type Action int

const (
	Proceed Action = iota
	Redirect
)

// Decision describes where navigation should go
type Decision struct {
	Action Action
	// Target is the route that was requested
	Target Route
	// To is the route to redirect to (only for Redirect)
	To Route
	// Query is attached to the redirect
	Query url.Values
}

// Location renders the redirect destination as a path with query string.
func (d Decision) Location() string {
	if d.Action != Redirect {
		return ""
	}
	if len(d.Query) == 0 {
		return d.To.Path
	}
	return d.To.Path + "?" + d.Query.Encode()
}

// Guard checks navigations against a route table and the session
type Guard struct {
	table   *Table
	session Authenticator
}

// New creates a guard. The table must contain Login and Home routes.
func New(table *Table, session Authenticator) *Guard {
	return &Guard{table: table, session: session}
}

// Check decides what happens when navigating to fullPath:
//
//   - a route requiring auth while signed out redirects to Login with the
//     original path in the redirect query parameter
//   - the Login route while signed in redirects to Home
//   - anything else proceeds
func (g *Guard) Check(fullPath string) Decision {
	target, _ := g.table.Resolve(fullPath)
	d := Decision{Action: Proceed, Target: target}

	authed := g.session.IsAuthenticated()

	switch {
	case target.RequiresAuth && !authed:
		login, _ := g.table.Lookup(LoginRoute)
		d.Action = Redirect
		d.To = login
		d.Query = url.Values{RedirectParam: {fullPath}}
	case target.Name == LoginRoute && authed:
		home, _ := g.table.Lookup(HomeRoute)
		d.Action = Redirect
		d.To = home
	}
	return d
}

// Title is the display title for a route.
func (g *Guard) Title(r Route) string {
	if r.Title == "" {
		return AppTitle
	}
	return r.Title + " - " + AppTitle
}

// ContinueTo returns the path to resume after login, defaulting to Home.
// Only local paths are honored.
func (g *Guard) ContinueTo(query url.Values) string {
	next := query.Get(RedirectParam)
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") {
		home, _ := g.table.Lookup(HomeRoute)
		return home.Path
	}
	return next
}
