package middleware

import (
	"net/http"
	"strings"
)

// Policy says whether a route needs an authenticated principal.
type Policy int

const (
	// PolicyAuthenticated rejects requests without a valid access token.
	PolicyAuthenticated Policy = iota
	// PolicyPublic skips authentication.
	PolicyPublic
	// PolicyOptional authenticates when a token is present and otherwise
	// passes the request through anonymously.
	PolicyOptional
)

func (p Policy) String() string {
	switch p {
	case PolicyPublic:
		return "public"
	case PolicyOptional:
		return "optional"
	default:
		return "authenticated"
	}
}

// Policies maps routes to policies. Keys are either "METHOD /path" or
// "/path"; a trailing "/*" matches every path below the prefix. Routes not
// listed are [PolicyAuthenticated].
type Policies map[string]Policy

// Lookup resolves the policy for r. An exact method+path entry wins over a
// path-only entry, which wins over the longest matching prefix.
func (p Policies) Lookup(r *http.Request) Policy {
	if len(p) == 0 {
		return PolicyAuthenticated
	}
	path := r.URL.Path
	if pol, ok := p[r.Method+" "+path]; ok {
		return pol
	}
	if pol, ok := p[path]; ok {
		return pol
	}

	best := -1
	result := PolicyAuthenticated
	for key, pol := range p {
		pattern := key
		if i := strings.IndexByte(key, ' '); i >= 0 {
			if key[:i] != r.Method {
				continue
			}
			pattern = key[i+1:]
		}
		if !strings.HasSuffix(pattern, "/*") {
			continue
		}
		prefix := strings.TrimSuffix(pattern, "*")
		if strings.HasPrefix(path, prefix) && len(prefix) > best {
			best = len(prefix)
			result = pol
		}
	}
	return result
}
