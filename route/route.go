// Package route matches an incoming request's path against registered route patterns
// (exact, ":param", and trailing "*" prefix/wildcard), extracting named parameters,
// using gorilla/mux's matcher against a synthetic *http.Request built from the path.
package route

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gorilla/mux"
)

var namedParam = regexp.MustCompile(`:([A-Za-z_][A-Za-z0-9_]*)`)

func toMuxPattern(pattern string) string {
	return namedParam.ReplaceAllString(pattern, "{$1}")
}

func isExact(pattern string) bool {
	return !strings.ContainsAny(pattern, ":*")
}

// Entry is one registered route pattern.
type Entry struct {
	Pattern string
}

// Match is the result of a successful Table.Match.
type Match struct {
	Entry  Entry
	Params map[string]string
}

// Table resolves a path to the first registered route that matches it, preferring an
// exact literal match over a parameterized or wildcard one regardless of registration
// order, and otherwise honoring registration order among parameterized routes.
type Table struct {
	exactRouter *mux.Router
	exactEntries []Entry
	exactRoutes  []*mux.Route

	paramRouter  *mux.Router
	paramEntries []Entry
	paramRoutes  []*mux.Route
}

func NewTable() *Table {
	return &Table{exactRouter: mux.NewRouter(), paramRouter: mux.NewRouter()}
}

// Register adds pattern to the table.
func (t *Table) Register(pattern string) Entry {
	e := Entry{Pattern: pattern}
	if isExact(pattern) {
		r := t.exactRouter.NewRoute().Path(pattern)
		t.exactEntries = append(t.exactEntries, e)
		t.exactRoutes = append(t.exactRoutes, r)
		return e
	}

	muxPattern := toMuxPattern(pattern)
	var r *mux.Route
	if strings.HasSuffix(muxPattern, "*") {
		r = t.paramRouter.NewRoute().PathPrefix(strings.TrimSuffix(muxPattern, "*"))
	} else {
		r = t.paramRouter.NewRoute().Path(muxPattern)
	}
	t.paramEntries = append(t.paramEntries, e)
	t.paramRoutes = append(t.paramRoutes, r)
	return e
}

// Match resolves path against the registered table: exact routes first, then
// parameterized/wildcard routes in registration order.
func (t *Table) Match(path string) (Match, bool) {
	req, err := http.NewRequest("GET", path, nil)
	if err != nil {
		return Match{}, false
	}

	var rm mux.RouteMatch
	if t.exactRouter.Match(req, &rm) {
		for i, r := range t.exactRoutes {
			if r == rm.Route {
				return Match{Entry: t.exactEntries[i], Params: map[string]string{}}, true
			}
		}
	}

	rm = mux.RouteMatch{}
	if t.paramRouter.Match(req, &rm) {
		for i, r := range t.paramRoutes {
			if r == rm.Route {
				return Match{Entry: t.paramEntries[i], Params: rm.Vars}, true
			}
		}
	}
	return Match{}, false
}
