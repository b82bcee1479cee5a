package server

import "net/http"

type endpointInfo struct {
	Path        string   `json:"path"`
	Methods     []string `json:"methods"`
	Description string   `json:"description"`
}

type discoveryResponse struct {
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	Description string         `json:"description"`
	Endpoints   []endpointInfo `json:"endpoints"`
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	endpoints := []endpointInfo{
		{"/api/v1/health", []string{"GET"}, "Server health and version"},
		{"/api/v1/status", []string{"GET"}, "Scheduler state, rate, elapsed time and loop counters"},
		{"/api/v1/stop", []string{"POST"}, "Stop the tick loop after the current tick"},
		{"/api/v1/entities", []string{"GET", "POST"}, "List registered entities or spawn a new one"},
		{"/api/v1/entities/{id}", []string{"GET", "DELETE"}, "Single entity detail or despawn"},
	}
	if s.store != nil {
		endpoints = append(endpoints,
			endpointInfo{"/api/v1/runs", []string{"GET"}, "Journal of scheduler runs, newest first"},
			endpointInfo{"/api/v1/runs/{id}", []string{"GET"}, "Single run record"},
			endpointInfo{"/api/v1/runs/{id}/samples", []string{"GET"}, "Periodic samples recorded during a run"},
		)
	}
	if s.monitor != nil {
		endpoints = append(endpoints,
			endpointInfo{"/api/v1/ws", []string{"GET"}, "WebSocket stream of live samples"},
		)
	}
	respondOK(w, reqID, discoveryResponse{
		Name:        "tickd API",
		Version:     "v1",
		Description: "Fixed-rate tick scheduler: entity registration, loop control and run history",
		Endpoints:   endpoints,
	})
}
