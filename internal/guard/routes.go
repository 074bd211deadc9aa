// ABOUTME: Route table with path parameter matching and a catch-all route
// ABOUTME: Routes carry the metadata the guard consults

package guard

import (
	"net/url"
	"strings"
)

// Route is one navigable destination
type Route struct {
	Name         string
	Path         string // segments starting with ':' match any single segment
	Title        string
	RequiresAuth bool
}

// Table resolves paths to routes in declaration order
type Table struct {
	routes   []Route
	byName   map[string]Route
	notFound Route
}

// NewTable builds a table. A route named NotFound is used for unmatched
// paths; without one, unmatched paths resolve to a bare NotFound route.
func NewTable(routes ...Route) *Table {
	t := &Table{
		byName:   make(map[string]Route, len(routes)),
		notFound: Route{Name: NotFoundRoute, Title: "Not Found"},
	}
	for _, r := range routes {
		t.byName[r.Name] = r
		if r.Name == NotFoundRoute {
			t.notFound = r
			continue
		}
		t.routes = append(t.routes, r)
	}
	return t
}

// Lookup finds a route by name.
func (t *Table) Lookup(name string) (Route, bool) {
	r, ok := t.byName[name]
	return r, ok
}

// Resolve matches fullPath (query string allowed) to a route and returns
// its path parameters.
func (t *Table) Resolve(fullPath string) (Route, map[string]string) {
	p := fullPath
	if u, err := url.Parse(fullPath); err == nil {
		p = u.Path
	}
	for _, r := range t.routes {
		if params, ok := match(r.Path, p); ok {
			return r, params
		}
	}
	return t.notFound, nil
}

func match(pattern, path string) (map[string]string, bool) {
	ps := splitPath(pattern)
	xs := splitPath(path)
	if len(ps) != len(xs) {
		return nil, false
	}
	var params map[string]string
	for i, seg := range ps {
		if strings.HasPrefix(seg, ":") {
			if xs[i] == "" {
				return nil, false
			}
			if params == nil {
				params = make(map[string]string)
			}
			params[seg[1:]] = xs[i]
			continue
		}
		if seg != xs[i] {
			return nil, false
		}
	}
	return params, true
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}
