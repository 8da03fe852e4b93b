package server

import (
	"errors"
	"net/http"

	"github.com/five82/pikiosk/internal/auth"
	"github.com/five82/pikiosk/internal/display"
	"github.com/five82/pikiosk/internal/session"
)

// Error kinds reported in response bodies.
const (
	KindValidation = "ValidationError"
	KindNotFound   = "NotFound"
	KindUpstream   = "UpstreamError"
	KindAuth       = "AuthError"
	KindExec       = "ExecError"
	KindInternal   = "InternalError"
)

type httpError struct {
	status  int
	kind    string
	message string
}

func (e *httpError) Error() string {
	return e.message
}

func validation(msg string) *httpError {
	return &httpError{status: http.StatusBadRequest, kind: KindValidation, message: msg}
}

func notFound(msg string) *httpError {
	return &httpError{status: http.StatusNotFound, kind: KindNotFound, message: msg}
}

// classify maps an error from a collaborator onto a response kind. upstream
// marks calls that reached the remote picker service, whose unclassified
// failures are reported as 502.
func classify(err error, upstream bool) *httpError {
	var he *httpError
	if errors.As(err, &he) {
		return he
	}
	var execErr *display.ExecError
	switch {
	case errors.Is(err, session.ErrNotFound):
		return notFound(err.Error())
	case auth.IsAuthError(err):
		return &httpError{status: http.StatusInternalServerError, kind: KindAuth, message: err.Error()}
	case errors.As(err, &execErr):
		return &httpError{status: http.StatusInternalServerError, kind: KindExec, message: err.Error()}
	case upstream:
		return &httpError{status: http.StatusBadGateway, kind: KindUpstream, message: err.Error()}
	default:
		return &httpError{status: http.StatusInternalServerError, kind: KindInternal, message: err.Error()}
	}
}
