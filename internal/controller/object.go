package controller

import (
	"net/http"

	"github.com/duskgate/portcullis/internal/classify"
)

// ObjectController handles the Object resource class (spec §4.1): GET,
// HEAD, PUT, POST, DELETE and COPY (the original implements POST as
// COPY+PUT when object_post_as_copy is set; that rewrite lives in the
// handler body, out of this repo's scope, but the method is still routed
// here).
type ObjectController struct {
	key      classify.Key
	selector *Selector
}

// NewObjectFactory builds a Factory for Object requests.
func NewObjectFactory(sel *Selector) Factory {
	return func(key classify.Key) Controller {
		return &ObjectController{key: key, selector: sel}
	}
}

func (c *ObjectController) Handler(method string) (Handler, bool) {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPut, http.MethodPost, http.MethodDelete, "COPY":
		return Handler{Fn: c.serve, Public: true}, true
	default:
		return Handler{}, false
	}
}

func (c *ObjectController) AllowedMethods() []string {
	return []string{http.MethodGet, http.MethodHead, http.MethodPut, http.MethodPost, http.MethodDelete, "COPY"}
}

func (c *ObjectController) serve(w http.ResponseWriter, r *http.Request) {
	selected, attempted, ok := firstNodeTimed(c.selector, c.key.Account, c.key.Container, c.key.Object)
	resp := selectionResponse{
		Account:   c.key.Account,
		Container: c.key.Container,
		Object:    c.key.Object,
		Attempted: attempted,
	}
	if !ok {
		writeSelection(w, http.StatusServiceUnavailable, resp)
		return
	}
	view := toNodeView(selected)
	resp.Selected = &view
	writeSelection(w, http.StatusOK, resp)
}
