package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"flagroutes/internal/metrics"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

type heartbeat struct {
	RouteID int64     `json:"routeId"`
	TS      time.Time `json:"ts"`
}

// streamSSE writes route events as server-sent events until the client goes away.
func (s *Server) streamSSE(w http.ResponseWriter, r *http.Request, routeID int64) {
	if r.Method != http.MethodGet {
		writeProblem(w, http.StatusMethodNotAllowed, "Method Not Allowed", "", r.URL.Path)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := s.Broker.Subscribe(routeID)
	defer s.Broker.Unsubscribe(routeID, ch)
	gauge := metrics.StreamSubscribers.WithLabelValues("sse")
	gauge.Inc()
	defer gauge.Dec()

	send := func(event string, v any) {
		b, _ := json.Marshal(v)
		fmt.Fprintf(w, "event: %s\n", event)
		fmt.Fprintf(w, "data: %s\n\n", b)
		flusher.Flush()
	}
	send("heartbeat", heartbeat{RouteID: routeID, TS: time.Now().UTC()})

	ticker := time.NewTicker(s.Heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case evt, open := <-ch:
			if !open {
				return
			}
			send(evt.Type, evt)
		case <-ticker.C:
			send("heartbeat", heartbeat{RouteID: routeID, TS: time.Now().UTC()})
		}
	}
}

// streamWS pushes route events as JSON text frames. Client frames are read
// only to notice disconnects and answer pings.
func (s *Server) streamWS(w http.ResponseWriter, r *http.Request, routeID int64) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	ch := s.Broker.Subscribe(routeID)
	defer s.Broker.Unsubscribe(routeID, ch)
	gauge := metrics.StreamSubscribers.WithLabelValues("ws")
	gauge.Inc()
	defer gauge.Dec()

	wait := 3 * s.Heartbeat
	conn.SetReadLimit(1 << 16)
	_ = conn.SetReadDeadline(time.Now().Add(wait))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(wait)) })

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.Heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case evt, open := <-ch:
			if !open {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(evt); err != nil {
				s.Log.WithError(err).WithField("route_id", routeID).Debug("websocket write failed")
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}
