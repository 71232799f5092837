package api

import (
	"encoding/json"
	"net/http"

	"flagroutes/internal/apperr"
)

// Problem represents an RFC7807 problem details response body.
type Problem struct {
	Type     string            `json:"type"`
	Title    string            `json:"title"`
	Status   int               `json:"status"`
	Detail   string            `json:"detail,omitempty"`
	Instance string            `json:"instance,omitempty"`
	Fields   map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Problem{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

// writeError maps the service error taxonomy onto problem responses. Storage
// details are logged, not returned.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	switch status {
	case http.StatusBadRequest:
		writeProblem(w, status, "Validation failed", err.Error(), r.URL.Path)
	case http.StatusNotFound:
		writeProblem(w, status, "Not Found", err.Error(), r.URL.Path)
	default:
		s.Log.WithError(err).WithField("path", r.URL.Path).Error("request failed")
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "storage failure", r.URL.Path)
	}
}
