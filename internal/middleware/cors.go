// Package middleware provides HTTP middleware shared by the AskHR servers.
package middleware

import (
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/ashureev/askhr/internal/identity"
)

const preflightMaxAge = 10 * 60

var (
	allowMethods = strings.Join([]string{http.MethodGet, http.MethodPost, http.MethodOptions}, ", ")
	allowHeaders = strings.Join([]string{"Content-Type", identity.SessionHeaderName}, ", ")
)

// originPolicy decides which browser origins may call the API. Entries are
// "*", an exact origin, or a host glob such as "*.example.com" (the same form
// the chat WebSocket accepts).
type originPolicy struct {
	any      bool
	exact    map[string]bool
	patterns []string
}

func newOriginPolicy(allowed []string) originPolicy {
	p := originPolicy{exact: make(map[string]bool)}
	for _, o := range allowed {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		switch {
		case o == "*":
			p.any = true
		case strings.Contains(o, "*"):
			p.patterns = append(p.patterns, strings.ToLower(o))
		case o != "":
			p.exact[strings.ToLower(o)] = true
		}
	}
	return p
}

// match reports whether origin is allowed and whether it was named
// explicitly. Only explicit origins get credentials.
func (p originPolicy) match(origin string) (allowed, explicit bool) {
	if origin == "" {
		return false, false
	}
	lower := strings.ToLower(origin)
	if p.exact[lower] {
		return true, true
	}
	if u, err := url.Parse(lower); err == nil && u.Host != "" {
		for _, pat := range p.patterns {
			if ok, _ := path.Match(pat, u.Host); ok {
				return true, false
			}
			if ok, _ := path.Match(pat, lower); ok {
				return true, false
			}
		}
	}
	return p.any, false
}

// CORS returns middleware that answers preflights and sets CORS headers for
// allowed origins.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	policy := newOriginPolicy(allowedOrigins)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Add("Vary", "Origin")

			origin := r.Header.Get("Origin")
			allowed, explicit := policy.match(origin)
			if allowed {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Methods", allowMethods)
				h.Set("Access-Control-Allow-Headers", allowHeaders)
				h.Set("Access-Control-Expose-Headers", identity.SessionHeaderName)
				if explicit {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
			}

			if r.Method == http.MethodOptions {
				if allowed {
					h.Set("Access-Control-Max-Age", strconv.Itoa(preflightMaxAge))
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
