package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ironsheep/imgresize/internal/errs"
	"github.com/ironsheep/imgresize/internal/source"
)

// CacheControl is sent with every image; results for a URL never change.
const CacheControl = "public, max-age=31536000"

// ErrorResponse is the JSON body of a failed request.
type ErrorResponse struct {
	// Error is the errs.Kind name, e.g. "validation".
	Error string `json:"error"`

	// Message describes the failure. Internal details are not exposed.
	Message string `json:"message"`

	RequestID string `json:"request_id,omitempty"`
}

// handleImage serves a transformed source image.
//
// The path (minus the leading slash) is the source identity; the query holds
// the transform parameters. Only the first value of a repeated parameter is
// used.
func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	identity, ok := source.Clean(chi.URLParam(r, "*"))
	if !ok {
		s.handleRoot(w, r)
		return
	}

	query := make(map[string]string, len(r.URL.Query()))
	for k, vs := range r.URL.Query() {
		if len(vs) > 0 {
			query[k] = vs[0]
		}
	}

	res, err := s.engine.Handle(r.Context(), identity, query)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			s.log.Debug("client went away", zap.String("source", identity), zap.Error(err))
			return
		}
		s.writeError(w, r, err)
		return
	}

	h := w.Header()
	h.Set("Content-Type", res.ContentType)
	h.Set("Cache-Control", CacheControl)
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Access-Control-Allow-Origin", "*")
	if res.Key != "" {
		h.Set("ETag", `"`+string(res.Key)+`"`)
	}
	http.ServeContent(w, r, "", time.Time{}, bytes.NewReader(res.Body))
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, r, errs.NotFound("server.root", "/", nil))
}

// StatusFor maps an error to its HTTP status.
func StatusFor(err error) int {
	switch errs.KindOf(err) {
	case errs.Validation:
		return http.StatusBadRequest
	case errs.SourceNotFound:
		return http.StatusNotFound
	case errs.Decode, errs.InvalidDimensions:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	kind := errs.KindOf(err)

	msg := err.Error()
	if kind == errs.Internal {
		msg = http.StatusText(status)
	}
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", zap.String("path", r.URL.Path), zap.Stringer("kind", kind), zap.Error(err))
	}

	writeJSON(w, status, ErrorResponse{
		Error:     kind.String(),
		Message:   msg,
		RequestID: middleware.GetReqID(r.Context()),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
