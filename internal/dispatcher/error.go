package dispatcher

import "net/http"

// pipelineError is a typed, HTTP-facing error the request pipeline raises
// at a known step (spec §4.5, §7). Each step that fails passes its
// pipelineError to writeError, which writes the status and message as a
// plain-text response; no error message is string-matched.
type pipelineError struct {
	status  int
	code    string
	message string
}

func (e *pipelineError) Error() string {
	return e.message
}

func newPipelineError(status int, code, message string) *pipelineError {
	return &pipelineError{status: status, code: code, message: message}
}

var (
	errBadContentLength = newPipelineError(http.StatusBadRequest, "bad_content_length", "Invalid Content-Length")
	errBadEncoding      = newPipelineError(http.StatusPreconditionFailed, "bad_encoding", "Invalid UTF8 or contains NULL")
	errMalformedPath    = newPipelineError(http.StatusNotFound, "malformed_path", "Not Found")
	errBadURL           = newPipelineError(http.StatusPreconditionFailed, "bad_url", "Bad URL")
	errForbiddenHost    = newPipelineError(http.StatusForbidden, "forbidden_host", "Invalid host header")
)
