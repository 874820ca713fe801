package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/model"
	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/store"
	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/tracker"
)

type envelope struct {
	Success    bool        `json:"success"`
	Data       any         `json:"data,omitempty"`
	Count      *int        `json:"count,omitempty"`
	Pagination *pagination `json:"pagination,omitempty"`
	Message    string      `json:"message,omitempty"`
	Error      string      `json:"error,omitempty"`
}

type pagination struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Pages int `json:"pages"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func ok(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

func okCount(w http.ResponseWriter, data any, n int) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data, Count: &n})
}

// badRequest marks an error as the client's fault.
type badRequest struct{ err error }

func (b badRequest) Error() string { return b.err.Error() }
func (b badRequest) Unwrap() error { return b.err }

var validationErrs = []error{
	model.ErrMissingStartTime,
	model.ErrMissingSourceType,
	model.ErrEndBeforeStart,
	model.ErrMissingRegion,
	model.ErrInvalidEventType,
	model.ErrMissingThrottleTransition,
	model.ErrNegativeDuration,
}

func statusFor(err error) int {
	var br badRequest
	var qe *store.QueryError
	switch {
	case errors.As(err, &br):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound), errors.Is(err, tracker.ErrUnknownRegion):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	case errors.As(err, &qe):
		return http.StatusBadGateway
	case errors.Is(err, errNoStore):
		return http.StatusServiceUnavailable
	}
	for _, v := range validationErrs {
		if errors.Is(err, v) {
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= 500 {
		s.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "err", err)
	} else {
		s.log.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "err", err)
	}
	writeJSON(w, status, envelope{Success: false, Error: err.Error()})
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return badRequest{errors.New("request body is required")}
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return badRequest{err}
	}
	return nil
}
