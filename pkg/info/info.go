// Package info implements the /info introspection surface (spec §4.1,
// §6): a document describing registered capabilities, with sections named
// in disallowed_sections suppressed from anonymous responses unless the
// request carries a valid admin capability token.
//
// Grounded on swift/proxy/server.py's InfoController / register_swift_info
// (named at the original's import site, body not present in the retrieved
// source — behavior is taken from spec.md §6, §8 scenario 5).
package info

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/duskgate/portcullis/internal/adminsig"
)

// Section is one named, independently-registered capability block.
type Section struct {
	Name string
	Data any
}

// Registry holds every registered /info section and serves GET /info.
type Registry struct {
	sections   []Section
	disallowed map[string]struct{}
	admin      *adminsig.Manager
	expose     bool
}

// NewRegistry builds a Registry. admin may be nil (or Enabled()==false) to
// disable the privileged-reveal path entirely; a request can never unlock
// a disallowed section in that case.
func NewRegistry(expose bool, disallowedSections []string, admin *adminsig.Manager) *Registry {
	disallowed := make(map[string]struct{}, len(disallowedSections))
	for _, s := range disallowedSections {
		disallowed[strings.ToLower(strings.TrimSpace(s))] = struct{}{}
	}
	return &Registry{disallowed: disallowed, admin: admin, expose: expose}
}

// Register adds a named capability section. Call at init time, once per
// section, the way register_swift_info is called once per middleware.
func (reg *Registry) Register(name string, data any) {
	reg.sections = append(reg.sections, Section{Name: name, Data: data})
}

// ServeHTTP handles GET /info. Disallowed sections are omitted unless the
// request's Authorization bearer token is a valid admin capability that
// unlocks that section (spec §6, §8 scenario 5).
func (reg *Registry) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !reg.expose {
		http.NotFound(w, r)
		return
	}

	var claims *adminsig.Claims
	if reg.admin != nil && reg.admin.Enabled() {
		if token, ok := bearerToken(r); ok {
			if c, err := reg.admin.Verify(token); err == nil {
				claims = c
			}
		}
	}

	out := make(map[string]any, len(reg.sections))
	for _, s := range reg.sections {
		name := strings.ToLower(s.Name)
		if _, blocked := reg.disallowed[name]; blocked {
			if claims == nil || !claims.Unlocks(s.Name) {
				continue
			}
		}
		out[s.Name] = s.Data
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(out)
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return "", false
	}
	return strings.TrimSpace(auth[len(prefix):]), true
}
