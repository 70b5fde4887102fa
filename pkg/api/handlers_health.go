package api

import (
	"net/http"
	"time"

	"github.com/Azure/ai-gateway/pkg/storage/bolt"
)

const serviceName = "ai-gateway-framework"

type healthResponse struct {
	Status        string    `json:"status"`
	Service       string    `json:"service"`
	Version       string    `json:"version"`
	Timestamp     time.Time `json:"timestamp"`
	UptimeSeconds int64     `json:"uptime_seconds"`
}

// handleHealth is the liveness probe; it never touches dependencies.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.sendJSON(w, http.StatusOK, healthResponse{
		Status:        "healthy",
		Service:       serviceName,
		Version:       s.cfg.AppVersion,
		Timestamp:     s.now().UTC(),
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
	})
}

type dbHealthResponse struct {
	Status           string  `json:"status"`
	Database         string  `json:"database"`
	Check            bool    `json:"check"`
	ConnectionTimeMS float64 `json:"connection_time_ms"`
	Error            string  `json:"error,omitempty"`
}

func (s *Server) handleHealthDB(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	resp := dbHealthResponse{Status: "healthy", Database: "connected", Check: true}
	status := http.StatusOK
	if err := s.deps.Store.Ping(r.Context()); err != nil {
		resp = dbHealthResponse{Status: "unhealthy", Database: "disconnected", Error: err.Error()}
		status = http.StatusServiceUnavailable
	}
	resp.ConnectionTimeMS = millis(time.Since(start))
	s.sendJSON(w, status, resp)
}

type tableHealth struct {
	Table      string `json:"table"`
	Exists     bool   `json:"exists"`
	Accessible bool   `json:"accessible"`
	RowCount   int    `json:"row_count"`
}

type tablesHealthResponse struct {
	OverallStatus string        `json:"overall_status"`
	Tables        []tableHealth `json:"tables"`
	Error         string        `json:"error,omitempty"`
}

// handleHealthTables reports every expected bucket. A missing bucket makes
// the report partial.
func (s *Server) handleHealthTables(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Store.Stats(r.Context())
	if err != nil {
		s.sendJSON(w, http.StatusServiceUnavailable, tablesHealthResponse{
			OverallStatus: "unhealthy",
			Tables:        []tableHealth{},
			Error:         err.Error(),
		})
		return
	}

	resp := tablesHealthResponse{OverallStatus: "healthy", Tables: make([]tableHealth, 0, len(bolt.Buckets))}
	for _, name := range bolt.Buckets {
		n, ok := stats[name]
		th := tableHealth{Table: name, Exists: ok && n >= 0, Accessible: ok && n >= 0}
		if th.Exists {
			th.RowCount = n
		} else {
			resp.OverallStatus = "partial"
		}
		resp.Tables = append(resp.Tables, th)
	}
	s.sendJSON(w, http.StatusOK, resp)
}
