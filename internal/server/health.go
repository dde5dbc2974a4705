package server

import (
	"context"
	"net/http"
	"sort"
	"time"
)

const healthCheckTimeout = 2 * time.Second

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	names := make([]string, 0, len(s.Health))
	for name := range s.Health {
		names = append(names, name)
	}
	sort.Strings(names)

	status := "ok"
	components := make(map[string]interface{}, len(names))
	for _, name := range names {
		if err := s.Health[name](ctx); err != nil {
			status = "degraded"
			components[name] = map[string]string{"status": "down", "error": err.Error()}
			continue
		}
		components[name] = map[string]string{"status": "up"}
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	})
}
