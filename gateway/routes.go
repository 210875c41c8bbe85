package gateway

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/trackwise/edgeauth"
)

// VersionPrefix is the alias prefix accepted in front of every proxied path.
const VersionPrefix = "/v1"

// Upstreams holds the base address of each resource service.
type Upstreams struct {
	Auth     string
	Projects string
	Defects  string
	Reports  string
}

// Route is the resolved target of one inbound path.
type Route struct {
	// Prefix is the service prefix without the version alias, e.g. "/defects".
	Prefix   string
	Upstream *url.URL
	// Path is the escaped path sent upstream. It keeps the service prefix
	// and drops the version alias.
	Path   string
	Public bool
}

var publicPaths = map[string]struct{}{
	"/":                 {},
	"/health":           {},
	"/auth/register":    {},
	"/auth/token":       {},
	"/v1/auth/register": {},
	"/v1/auth/token":    {},
	"/docs":             {},
	"/openapi.json":     {},
	"/redoc":            {},
}

// IsPublic reports whether path is exempt from authentication. Matching is
// exact: "/auth/token/" is protected.
func IsPublic(path string) bool {
	_, ok := publicPaths[path]
	return ok
}

// RouteTable maps service prefixes to upstream addresses.
type RouteTable struct {
	prefixes map[string]*url.URL
}

// NewRouteTable validates every upstream address.
func NewRouteTable(up Upstreams) (*RouteTable, error) {
	raw := map[string]string{
		"/auth":     up.Auth,
		"/projects": up.Projects,
		"/defects":  up.Defects,
		"/reports":  up.Reports,
	}
	rt := &RouteTable{prefixes: make(map[string]*url.URL, len(raw))}
	for prefix, addr := range raw {
		u, err := url.Parse(strings.TrimRight(addr, "/"))
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("gateway: invalid upstream for %s: %q", prefix, addr)
		}
		rt.prefixes[prefix] = u
	}
	return rt, nil
}

// Resolve maps an inbound escaped path (see [url.URL.EscapedPath]) to its
// upstream. "/v1/defects/1" and "/defects/1" resolve to the same target.
// Unknown prefixes wrap [edgeauth.ErrNotFound].
func (rt *RouteTable) Resolve(path string) (Route, error) {
	p := path
	if p == VersionPrefix || strings.HasPrefix(p, VersionPrefix+"/") {
		p = strings.TrimPrefix(p, VersionPrefix)
	}

	seg := p
	if i := strings.IndexByte(strings.TrimPrefix(p, "/"), '/'); i >= 0 {
		seg = p[:i+1]
	}

	up, ok := rt.prefixes[seg]
	if !ok {
		return Route{}, fmt.Errorf("%w: no upstream for %s", edgeauth.ErrNotFound, path)
	}
	return Route{
		Prefix:   seg,
		Upstream: up,
		Path:     p,
		Public:   IsPublic(path),
	}, nil
}

// URL returns the absolute upstream URL for the route with rawQuery attached
// verbatim. Percent-encoded separators such as %2F survive the hop.
func (r Route) URL(rawQuery string) string {
	u := *r.Upstream
	escaped := singleJoiningSlash(r.Upstream.EscapedPath(), r.Path)
	if p, err := url.PathUnescape(escaped); err == nil {
		u.Path, u.RawPath = p, escaped
	} else {
		u.Path, u.RawPath = escaped, ""
	}
	u.RawQuery = rawQuery
	return u.String()
}

func singleJoiningSlash(a, b string) string {
	aslash := strings.HasSuffix(a, "/")
	bslash := strings.HasPrefix(b, "/")
	switch {
	case aslash && bslash:
		return a + b[1:]
	case !aslash && !bslash:
		return a + "/" + b
	}
	return a + b
}
