package controller

import (
	"net/http"
	"time"

	"github.com/duskgate/portcullis/internal/cache"
	"github.com/duskgate/portcullis/internal/classify"
)

// AccountController handles the Account resource class (spec §4.1):
// GET/HEAD/POST always public; PUT/DELETE (account-level management) are
// gated by allow_account_management (spec §6), mirroring the original's
// server_type-scoped allowed_methods.
type AccountController struct {
	key                    classify.Key
	selector               *Selector
	allowAccountManagement bool
	existence              existenceCache
}

// NewAccountFactory builds a Factory for Account requests. c may be nil to
// disable the existence cache (the recheck_account_existence window is
// then always a miss).
func NewAccountFactory(sel *Selector, allowAccountManagement bool, c *cache.Cache, recheckExistence time.Duration) Factory {
	return func(key classify.Key) Controller {
		return &AccountController{
			key:                    key,
			selector:               sel,
			allowAccountManagement: allowAccountManagement,
			existence:              existenceCache{cache: c, ttl: recheckExistence},
		}
	}
}

func (c *AccountController) Handler(method string) (Handler, bool) {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPost:
		return Handler{Fn: c.serve, Public: true}, true
	case http.MethodPut, http.MethodDelete:
		return Handler{Fn: c.serve, Public: c.allowAccountManagement}, true
	default:
		return Handler{}, false
	}
}

func (c *AccountController) AllowedMethods() []string {
	methods := []string{http.MethodGet, http.MethodHead, http.MethodPost}
	if c.allowAccountManagement {
		methods = append(methods, http.MethodPut, http.MethodDelete)
	}
	return methods
}

func (c *AccountController) serve(w http.ResponseWriter, r *http.Request) {
	cacheKey := "account:" + c.key.Account
	if c.existence.recentlyUnavailable(r.Context(), cacheKey) {
		writeSelection(w, http.StatusServiceUnavailable, selectionResponse{Account: c.key.Account})
		return
	}

	selected, attempted, ok := firstNode(c.selector, c.key.Account, "", "")
	resp := selectionResponse{Account: c.key.Account, Attempted: attempted}
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
