package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/ernie/netplay-lobby/internal/auth"
	"go.uber.org/zap"
)

// signedHandler receives the raw body that was verified against the signature
type signedHandler func(w http.ResponseWriter, req *http.Request, body []byte)

// signed reads the body under the size cap and verifies the request
// signature before calling next. Nothing downstream runs for a request
// that fails either check.
func (r *Router) signed(next signedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		body, err := r.readBody(w, req)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) || errors.Is(err, errBodyTooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
				return
			}
			writeError(w, http.StatusBadRequest, "unreadable request body")
			return
		}

		err = r.verifier.Verify(req.Method, requestPath(req), body,
			req.Header.Get(auth.HeaderTimestamp), req.Header.Get(auth.HeaderSignature))
		if err != nil {
			r.logger.Debug("rejected request",
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
				zap.String("remote", clientIP(req)),
				zap.Error(err))
			writeError(w, http.StatusForbidden, err.Error())
			return
		}

		next(w, req, body)
	}
}

var errBodyTooLarge = errors.New("request body too large")

// readBody reads the full body, refusing anything over the cap before it
// is buffered
func (r *Router) readBody(w http.ResponseWriter, req *http.Request) ([]byte, error) {
	if req.Body == nil {
		return nil, nil
	}
	if req.ContentLength > r.maxBody {
		return nil, errBodyTooLarge
	}
	return io.ReadAll(http.MaxBytesReader(w, req.Body, r.maxBody))
}

// requestPath returns the path and query exactly as the client sent them
func requestPath(req *http.Request) string {
	if req.RequestURI != "" {
		return req.RequestURI
	}
	return req.URL.RequestURI()
}
