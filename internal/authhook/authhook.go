// Package authhook implements the authorization hook contract (spec §4.5
// step 12, §9): upstream middleware may install a caller-supplied
// authorization function on the request context; the dispatcher invokes it
// at most once successfully per request.
package authhook

import (
	"context"
	"net/http"
)

// State is the tri-state lifecycle of an installed hook.
type State int

const (
	// NotInstalled means no upstream middleware installed a hook; the
	// dispatcher proceeds without invoking one.
	NotInstalled State = iota
	// Pending means a hook is installed and has not yet been invoked, or
	// was invoked and denied with delay_denial set (so it remains for a
	// later re-invocation by the handler).
	Pending
	// Passed means the hook was invoked and either returned no denial or
	// returned a denial without delay_denial (a final denial); either way
	// it has been removed so later handlers cannot re-invoke it.
	Passed
)

// Func is an authorization check. A non-nil response is a denial to be
// surfaced to the client (unless the handler requests delay_denial).
type Func func(r *http.Request) *http.Response

type contextKey struct{}

type holder struct {
	fn    Func
	state State
}

// Install attaches fn to ctx as the request's authorization hook, in the
// Pending state. Returns the context to use downstream.
func Install(ctx context.Context, fn Func) context.Context {
	return context.WithValue(ctx, contextKey{}, &holder{fn: fn, state: Pending})
}

// StateOf reports the current hook state for ctx.
func StateOf(ctx context.Context) State {
	h, ok := ctx.Value(contextKey{}).(*holder)
	if !ok {
		return NotInstalled
	}
	return h.state
}

// Invoke runs the installed hook against r, if one is present and Pending.
// If the hook returns no denial, the hook is marked Passed so it cannot be
// re-invoked. If it returns a denial and delayDenial is false, the denial
// is returned as final. If delayDenial is true, the hook remains Pending
// for a later re-invocation by the handler.
//
// Invoke is a no-op (returns nil, false) if no hook is installed or the
// hook has already Passed.
func Invoke(ctx context.Context, r *http.Request, delayDenial bool) (denial *http.Response, invoked bool) {
	h, ok := ctx.Value(contextKey{}).(*holder)
	if !ok || h.state != Pending {
		return nil, false
	}

	resp := h.fn(r)
	if resp == nil {
		h.state = Passed
		return nil, true
	}
	if !delayDenial {
		h.state = Passed
		return resp, true
	}
	return resp, true
}
