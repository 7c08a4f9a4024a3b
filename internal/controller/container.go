package controller

import (
	"net/http"
	"time"

	"github.com/duskgate/portcullis/internal/cache"
	"github.com/duskgate/portcullis/internal/classify"
)

// ContainerController handles the Container resource class (spec §4.1).
type ContainerController struct {
	key       classify.Key
	selector  *Selector
	existence existenceCache
}

// NewContainerFactory builds a Factory for Container requests. c may be
// nil to disable the existence cache.
func NewContainerFactory(sel *Selector, c *cache.Cache, recheckExistence time.Duration) Factory {
	return func(key classify.Key) Controller {
		return &ContainerController{
			key:       key,
			selector:  sel,
			existence: existenceCache{cache: c, ttl: recheckExistence},
		}
	}
}

func (c *ContainerController) Handler(method string) (Handler, bool) {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPut, http.MethodPost, http.MethodDelete:
		return Handler{Fn: c.serve, Public: true}, true
	default:
		return Handler{}, false
	}
}

func (c *ContainerController) AllowedMethods() []string {
	return []string{http.MethodGet, http.MethodHead, http.MethodPut, http.MethodPost, http.MethodDelete}
}

func (c *ContainerController) serve(w http.ResponseWriter, r *http.Request) {
	cacheKey := "container:" + c.key.Account + "/" + c.key.Container
	if c.existence.recentlyUnavailable(r.Context(), cacheKey) {
		writeSelection(w, http.StatusServiceUnavailable, selectionResponse{Account: c.key.Account, Container: c.key.Container})
		return
	}

	selected, attempted, ok := firstNode(c.selector, c.key.Account, c.key.Container, "")
	resp := selectionResponse{Account: c.key.Account, Container: c.key.Container, Attempted: attempted}
	if !ok {
		c.existence.recordUnavailable(r.Context(), cacheKey)
		writeSelection(w, http.StatusServiceUnavailable, resp)
		return
	}
	c.existence.clear(r.Context(), cacheKey)
	view := toNodeView(selected)
	resp.Selected = &view
	writeSelection(w, http.StatusOK, resp)
}
