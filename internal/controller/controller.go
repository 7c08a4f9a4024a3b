// Package controller defines the per-resource controller contract the
// dispatcher dispatches to (spec §4.5 steps 8, 10, 12, 14) and stub
// Account/Container/Object/Info controllers. Backend I/O is explicitly out
// of scope (spec §1); these controllers exist to prove the node-selection
// pipeline is wired correctly, not to implement replica fan-out.
package controller

import (
	"net/http"

	"github.com/duskgate/portcullis/internal/classify"
)

// Handler is one HTTP-method entry point on a controller.
type Handler struct {
	Fn http.HandlerFunc
	// Public mirrors the original's publicly_accessible flag: a handler
	// that exists but is not Public is treated as absent by the
	// dispatcher's 405 check (spec §4.5 step 10).
	Public bool
	// DelayDenial mirrors delay_denial: when the authorization hook
	// denies, a handler with DelayDenial true gets the hook preserved for
	// a later re-invocation instead of the denial being returned
	// immediately (spec §4.5 step 12).
	DelayDenial bool
}

// Controller is a per-resource-kind handler table.
type Controller interface {
	// Handler returns the entry for method, and whether one exists at
	// all (present may be true even when the handler is not Public).
	Handler(method string) (h Handler, present bool)
	// AllowedMethods lists every method this controller exposes,
	// mirrored into the Allow header on a 405 (spec §4.5 step 10).
	AllowedMethods() []string
}

// Factory builds the Controller for a classified request.
type Factory func(key classify.Key) Controller
