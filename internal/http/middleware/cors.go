package middleware

import (
	"net/http"
	"strings"
)

// Headers the portal sends on booking and staff requests.
const (
	corsAllowHeaders = "Authorization, Content-Type"
	corsAllowMethods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	corsMaxAge       = "600"
)

// originSet is the parsed CORS allowlist. An entry of "*" allows every
// origin; an entry like "https://*.brightsmile.example" allows any
// direct subdomain of brightsmile.example over https.
type originSet struct {
	any      bool
	exact    map[string]struct{}
	suffixes []string
}

func parseOrigins(allowedOrigins []string) originSet {
	set := originSet{exact: map[string]struct{}{}}
	for _, origin := range allowedOrigins {
		origin = strings.TrimSpace(origin)
		switch {
		case origin == "":
		case origin == "*":
			set.any = true
		case strings.Contains(origin, "://*."):
			scheme, host, _ := strings.Cut(origin, "://*.")
			set.suffixes = append(set.suffixes, scheme+"://", "."+host)
		default:
			set.exact[origin] = struct{}{}
		}
	}
	return set
}

func (s originSet) match(origin string) bool {
	if s.any {
		return true
	}
	if _, ok := s.exact[origin]; ok {
		return true
	}
	for i := 0; i+1 < len(s.suffixes); i += 2 {
		scheme, suffix := s.suffixes[i], s.suffixes[i+1]
		if strings.HasPrefix(origin, scheme) && strings.HasSuffix(origin, suffix) {
			// Reject nested subdomains: one label before the suffix.
			label := strings.TrimSuffix(strings.TrimPrefix(origin, scheme), suffix)
			if label != "" && !strings.Contains(label, ".") {
				return true
			}
		}
	}
	return false
}

// CORS restricts browser access to the configured portal origins. The
// allowed origin is echoed back rather than wildcarded so credentialed
// requests keep working.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	allowed := parseOrigins(allowedOrigins)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			if origin != "" && allowed.match(origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
				w.Header().Set("Access-Control-Allow-Headers", corsAllowHeaders)
				w.Header().Set("Access-Control-Allow-Methods", corsAllowMethods)
				w.Header().Set("Access-Control-Max-Age", corsMaxAge)
			}

			if r.Method == http.MethodOptions && origin != "" && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
