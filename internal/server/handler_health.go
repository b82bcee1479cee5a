package server

import (
	"net/http"
	"runtime"
	"time"
)

type healthResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	GoVersion   string `json:"go_version"`
	Uptime      string `json:"uptime"`
	Scheduler   string `json:"scheduler"`
	Store       string `json:"store"`
	Subscribers int    `json:"subscribers"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	resp := healthResponse{
		Status:    "healthy",
		Version:   Version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Scheduler: s.host.Scheduler().State().String(),
		Store:     "disabled",
	}
	if s.store != nil {
		resp.Store = "sqlite"
	}
	if s.monitor != nil {
		resp.Subscribers = s.monitor.Subscribers()
	}
	respondOK(w, reqID, resp)
}
