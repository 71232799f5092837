package api

import (
	"net/http"
	"time"

	"flagroutes/internal/buildinfo"
)

// DebugJSON reports build metadata and the non-secret runtime settings.
func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	checks := make([]string, 0, len(s.checks))
	for name := range s.checks {
		checks = append(checks, name)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"build":       buildinfo.Info(),
		"time":        time.Now().UTC().Format(time.RFC3339),
		"settings":    s.settings,
		"readyChecks": checks,
		"rateLimited": s.limiter != nil,
	})
}
