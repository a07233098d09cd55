package server

import (
	"net/http"
)

// Version is reported by the health route.
var Version = "dev"

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":   "healthy",
		"version":  Version,
		"service":  "hedgebook",
		"deviceId": s.container.DeviceID,
	}

	writeJSON(w, http.StatusOK, response, s.log)
}
