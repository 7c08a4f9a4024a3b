// Package dispatcher implements the request pipeline of spec §4.5: parse,
// classify, instantiate the per-resource controller, run the authorization
// hook, and dispatch to the matched method handler. It is the front door's
// single HTTP entry point for the `/v1/...` surface.
package dispatcher

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/duskgate/portcullis/internal/authhook"
	"github.com/duskgate/portcullis/internal/classify"
	"github.com/duskgate/portcullis/internal/controller"
	"github.com/duskgate/portcullis/internal/requestlog"
	"github.com/duskgate/portcullis/internal/txid"
)

// Dispatcher is the per-process, shared request pipeline. It holds no
// per-request state; everything request-scoped lives on the *http.Request
// context or is passed explicitly.
type Dispatcher struct {
	// Factories maps a resource classification to the controller factory
	// responsible for it.
	Factories map[classify.Kind]controller.Factory

	// DenyHostHeaders is the deny_host_headers set (spec §6), hostnames
	// without port.
	DenyHostHeaders map[string]struct{}

	TransIDSuffix string
	Logger        *slog.Logger

	// RequestLog is optional; when non-nil, one entry is recorded per
	// completed request (SPEC_FULL §11).
	RequestLog *requestlog.Writer
}

// backendHeaderPrefix is the reserved inbound header prefix stripped
// before any controller sees the request (spec invariant 4).
const backendHeaderPrefix = "X-Backend-"

type origMethodKey struct{}

// OrigMethod returns the HTTP method the client actually sent, saved
// before any controller-internal rewrite (spec §4.5 step 13).
func OrigMethod(ctx context.Context) (string, bool) {
	m, ok := ctx.Value(origMethodKey{}).(string)
	return m, ok
}

// ServeHTTP runs the full request pipeline (spec §4.5) and writes a
// response to w.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

	defer func() {
		if rec := recover(); rec != nil {
			d.Logger.Error("panic in request pipeline", "recover", rec, "path", r.URL.Path)
			writeError(sw, newPipelineError(http.StatusInternalServerError, "internal_error", "Internal server error"))
		}
	}()

	start := time.Now()
	kind, key, transID := d.handle(sw, r)

	if d.RequestLog != nil {
		d.RequestLog.Enqueue(requestlog.Entry{
			TransID:    transID,
			Method:     r.Method,
			Path:       r.URL.Path,
			Kind:       kind.String(),
			Account:    key.Account,
			Container:  key.Container,
			Object:     key.Object,
			Status:     sw.status,
			DurationMS: time.Since(start).Milliseconds(),
		})
	}
}

// handle runs the pipeline and returns the classification and transaction
// id actually used, for the caller's request-log entry.
func (d *Dispatcher) handle(w *statusWriter, r *http.Request) (classify.Kind, classify.Key, string) {
	stripBackendHeaders(r.Header)
	updateRequest(r.Header)

	if r.ContentLength < 0 {
		writeError(w, errBadContentLength)
		return classify.Unclassifiable, classify.Key{}, ""
	}

	kind, key, err := classify.Classify(r.URL.Path)
	switch err {
	case nil:
	case classify.ErrBadEncoding:
		writeError(w, errBadEncoding)
		return kind, key, ""
	case classify.ErrMalformedPath:
		writeError(w, errMalformedPath)
		return kind, key, ""
	default:
		writeError(w, newPipelineError(http.StatusInternalServerError, "internal_error", "Internal server error"))
		return kind, key, ""
	}
	if kind == classify.Unclassifiable {
		writeError(w, errBadURL)
		return kind, key, ""
	}

	if len(d.DenyHostHeaders) > 0 {
		host := r.Host
		if h, _, splitErr := net.SplitHostPort(host); splitErr == nil {
			host = h
		}
		if _, denied := d.DenyHostHeaders[host]; denied {
			writeError(w, errForbiddenHost)
			return kind, key, ""
		}
	}

	factory, ok := d.Factories[kind]
	if !ok {
		writeError(w, newPipelineError(http.StatusInternalServerError, "internal_error", "no controller registered for resource kind"))
		return kind, key, ""
	}
	ctrl := factory(key)

	transID, ok := txid.FromContext(r.Context())
	if !ok {
		transID, err = txid.Generate(d.TransIDSuffix)
		if err != nil {
			writeError(w, newPipelineError(http.StatusInternalServerError, "internal_error", "Internal server error"))
			return kind, key, ""
		}
		r = r.WithContext(txid.WithContext(r.Context(), transID))
	}
	w.Header().Set("x-trans-id", transID)
	logger := d.Logger.With("trans_id", transID, "client_ip", remoteClient(r))

	handler, present := ctrl.Handler(r.Method)
	if !present || !handler.Public {
		w.Header().Set("Allow", strings.Join(ctrl.AllowedMethods(), ", "))
		writeError(w, newPipelineError(http.StatusMethodNotAllowed, "method_not_allowed", "Method Not Allowed"))
		return kind, key, transID
	}

	if key.Version != "" {
		r.URL.Path = classify.Path(classify.Key{Account: key.Account, Container: key.Container, Object: key.Object})
	}

	if denial, invoked := authhook.Invoke(r.Context(), r, handler.DelayDenial); invoked && denial != nil && !handler.DelayDenial {
		writeResponseCopy(w, denial)
		return kind, key, transID
	}

	r = r.WithContext(context.WithValue(r.Context(), origMethodKey{}, r.Method))

	func() {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("panic dispatching to handler", "recover", rec)
				writeError(w, newPipelineError(http.StatusInternalServerError, "internal_error", "Internal server error"))
			}
		}()
		handler.Fn(w, r)
	}()
	return kind, key, transID
}

func stripBackendHeaders(h http.Header) {
	for name := range h {
		if len(name) >= len(backendHeaderPrefix) && strings.EqualFold(name[:len(backendHeaderPrefix)], backendHeaderPrefix) {
			h.Del(name)
		}
	}
}

func updateRequest(h http.Header) {
	if storage := h.Get("x-storage-token"); storage != "" && h.Get("x-auth-token") == "" {
		h.Set("x-auth-token", storage)
	}
}

func remoteClient(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.IndexByte(xff, ','); idx >= 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func writeError(w http.ResponseWriter, pe *pipelineError) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(pe.status)
	_, _ = w.Write([]byte(pe.message))
}

func writeResponseCopy(w http.ResponseWriter, resp *http.Response) {
	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != nil {
		defer resp.Body.Close()
		_, _ = io.Copy(w, resp.Body)
	}
}

// statusWriter wraps http.ResponseWriter to capture the status code for
// the request-log entry (requestlog is an ambient observation, not part
// of the dispatcher's spec-mandated behavior).
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}
