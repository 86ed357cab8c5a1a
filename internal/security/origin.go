package security

import (
	"net/http"
	"net/url"
	"strings"
)

// OriginVerifier accepts requests whose Origin, or Referer when Origin is
// absent, belongs to an allowed origin.
type OriginVerifier struct {
	allowed map[string]struct{}
}

// NewOriginVerifier creates a verifier over origins such as https://gallery.example.com
func NewOriginVerifier(origins []string) *OriginVerifier {
	v := &OriginVerifier{allowed: make(map[string]struct{}, len(origins))}
	for _, o := range origins {
		if n := normalizeOrigin(o); n != "" {
			v.allowed[n] = struct{}{}
		}
	}
	return v
}

// Verify reports whether r comes from an allowed origin. Requests without
// either header are rejected.
func (v *OriginVerifier) Verify(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		origin = r.Header.Get("Referer")
	}
	n := normalizeOrigin(origin)
	if n == "" {
		return false
	}
	_, ok := v.allowed[n]
	return ok
}

func normalizeOrigin(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Scheme + "://" + u.Host)
}

// GetClientIP extracts the client IP from the request
func GetClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if i := strings.IndexByte(forwarded, ','); i >= 0 {
			forwarded = forwarded[:i]
		}
		return strings.TrimSpace(forwarded)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return r.RemoteAddr
}
