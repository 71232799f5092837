package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"flagroutes/internal/apperr"
	"flagroutes/internal/model"
)

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func ok(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: msg})
}

// RoutesIndexHandler handles GET and POST /v1/routes.
func (s *Server) RoutesIndexHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		list, err := s.Query.ListRoutes(r.Context())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if list == nil {
			list = []model.RouteWithCount{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"routes": list})
	case http.MethodPost:
		var req routeRequest
		if !decode(w, r, &req) {
			return
		}
		id, err := s.Routes.CreateRoute(r.Context(), req.Name, req.Description)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		w.Header().Set("Location", "/v1/routes/"+strconv.FormatInt(id, 10))
		writeJSON(w, http.StatusCreated, map[string]any{"id": id, "message": "Route created successfully"})
	default:
		writeProblem(w, http.StatusMethodNotAllowed, "Method Not Allowed", "", r.URL.Path)
	}
}

// RouteByIDHandler dispatches everything under /v1/routes/{id}.
func (s *Server) RouteByIDHandler(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/routes/"), "/"), "/")
	id, err := pathID(parts[0])
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid route id", err.Error(), r.URL.Path)
		return
	}
	if len(parts) == 1 {
		s.routeResource(w, r, id)
		return
	}
	switch {
	case parts[1] == "clients" && len(parts) == 2:
		s.routeClients(w, r, id)
	case parts[1] == "clients" && len(parts) == 3:
		if r.Method != http.MethodDelete {
			writeProblem(w, http.StatusMethodNotAllowed, "Method Not Allowed", "", r.URL.Path)
			return
		}
		clientID, err := pathID(parts[2])
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid client id", err.Error(), r.URL.Path)
			return
		}
		if err := s.Routes.RemoveClient(r.Context(), clientID, &id); err != nil {
			s.writeError(w, r, err)
			return
		}
		ok(w, "Client removed from route successfully")
	case parts[1] == "view" && len(parts) == 2 && r.Method == http.MethodGet:
		view, err := s.Query.View(r.Context(), id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	case parts[1] == "navigation" && len(parts) == 2 && r.Method == http.MethodGet:
		nav, err := s.Query.Navigation(r.Context(), id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, nav)
	case parts[1] == "events" && len(parts) == 3:
		if _, err := s.Routes.GetRoute(r.Context(), id); err != nil {
			s.writeError(w, r, err)
			return
		}
		switch parts[2] {
		case "stream":
			s.streamSSE(w, r, id)
		case "ws":
			s.streamWS(w, r, id)
		default:
			writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		}
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
	}
}

func (s *Server) routeResource(w http.ResponseWriter, r *http.Request, id int64) {
	switch r.Method {
	case http.MethodGet:
		rt, err := s.Routes.GetRoute(r.Context(), id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rt)
	case http.MethodPut:
		var req routeRequest
		if !decode(w, r, &req) {
			return
		}
		if err := s.Routes.UpdateRoute(r.Context(), id, req.Name, req.Description); err != nil {
			s.writeError(w, r, err)
			return
		}
		ok(w, "Route updated successfully")
	case http.MethodDelete:
		if err := s.Routes.DeleteRoute(r.Context(), id); err != nil {
			s.writeError(w, r, err)
			return
		}
		ok(w, "Route deleted successfully")
	default:
		writeProblem(w, http.StatusMethodNotAllowed, "Method Not Allowed", "", r.URL.Path)
	}
}

func (s *Server) routeClients(w http.ResponseWriter, r *http.Request, id int64) {
	switch r.Method {
	case http.MethodGet:
		clients, err := s.Query.Roster(r.Context(), id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"clients":     clients,
			"flagSummary": s.Query.Summary(clients),
		})
	case http.MethodPost:
		var req assignRequest
		if !decode(w, r, &req) {
			return
		}
		if err := s.Routes.AssignClient(r.Context(), req.ClientID, id); err != nil {
			s.writeError(w, r, err)
			return
		}
		ok(w, "Client assigned to route successfully")
	default:
		writeProblem(w, http.StatusMethodNotAllowed, "Method Not Allowed", "", r.URL.Path)
	}
}

// ClientsHandler serves /v1/clients/unassigned, /v1/clients/{id}/route and
// /v1/clients/{id}/routes.
func (s *Server) ClientsHandler(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/clients/"), "/"), "/")
	if len(parts) == 1 && parts[0] == "unassigned" {
		if r.Method != http.MethodGet {
			writeProblem(w, http.StatusMethodNotAllowed, "Method Not Allowed", "", r.URL.Path)
			return
		}
		clients, err := s.Query.Unassigned(r.Context())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"clients": clients})
		return
	}
	if len(parts) != 2 {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	clientID, err := pathID(parts[0])
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid client id", err.Error(), r.URL.Path)
		return
	}
	switch {
	case parts[1] == "route" && r.Method == http.MethodGet:
		routeID, found, err := s.Routes.ClientRoute(r.Context(), clientID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		resp := map[string]any{"clientId": clientID, "assigned": found, "routeId": nil}
		if found {
			resp["routeId"] = routeID
		}
		writeJSON(w, http.StatusOK, resp)
	case parts[1] == "routes" && r.Method == http.MethodGet:
		list, err := s.Routes.ClientRoutes(r.Context(), clientID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if list == nil {
			list = []model.Assignment{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"assignments": list})
	case parts[1] == "routes" && r.Method == http.MethodDelete:
		if err := s.Routes.RemoveClient(r.Context(), clientID, nil); err != nil {
			s.writeError(w, r, err)
			return
		}
		ok(w, "Client removed from all routes successfully")
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
	}
}

// HealthHandler returns 200 OK.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReadyHandler pings every configured dependency with a short timeout.
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
	defer cancel()
	for name, p := range s.checks {
		if err := p.Ping(ctx); err != nil {
			writeProblem(w, http.StatusServiceUnavailable, "Not Ready", name+": "+err.Error(), r.URL.Path)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func pathID(seg string) (int64, error) {
	id, err := strconv.ParseInt(seg, 10, 64)
	if err != nil {
		return 0, apperr.Validation("id", "must be an integer")
	}
	return id, nil
}
