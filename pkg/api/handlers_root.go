package api

import (
	"net/http"
	"sort"
	"time"

	"github.com/Azure/ai-gateway/pkg/storage/bolt"
)

type databaseSummary struct {
	Engine  string `json:"engine"`
	Path    string `json:"path"`
	Buckets int    `json:"buckets"`
	Status  string `json:"status"`
}

type rootResponse struct {
	Message     string            `json:"message"`
	Version     string            `json:"version"`
	Environment string            `json:"environment"`
	Database    databaseSummary   `json:"database"`
	Endpoints   map[string]string `json:"api"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	db := databaseSummary{Engine: "bbolt", Path: s.deps.Store.Path(), Buckets: len(bolt.Buckets), Status: "connected"}
	if err := s.deps.Store.Ping(r.Context()); err != nil {
		db.Status = "disconnected"
	}

	p := s.cfg.APIPrefix
	s.sendJSON(w, http.StatusOK, rootResponse{
		Message:     "Welcome to " + s.cfg.AppName,
		Version:     s.cfg.AppVersion,
		Environment: s.cfg.Environment,
		Database:    db,
		Endpoints: map[string]string{
			"info":     "/api",
			"health":   p + "/health",
			"users":    p + "/users",
			"chat":     p + "/chat",
			"decision": p + "/decision",
			"metrics":  "/metrics",
			"database": "/database/status",
		},
	})
}

func (s *Server) handleAPIInfo(w http.ResponseWriter, _ *http.Request) {
	p := s.cfg.APIPrefix
	s.sendJSON(w, http.StatusOK, map[string]interface{}{
		"api_version": "v1",
		"prefix":      p,
		"available_endpoints": []string{
			p + "/health",
			p + "/health/db",
			p + "/health/tables",
			p + "/users",
			p + "/chat",
			p + "/chat/providers",
			p + "/chat/health",
			p + "/chat/available-models",
			p + "/chat/simple",
			p + "/decision/recommend-model",
			p + "/decision/analyze-prompt",
			p + "/decision/stats",
			p + "/decision/available-strategies",
		},
	})
}

type bucketStatus struct {
	Bucket string `json:"bucket"`
	Keys   int    `json:"keys"`
}

func (s *Server) handleDatabaseStatus(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	stats, err := s.deps.Store.Stats(r.Context())
	if err != nil {
		s.sendJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "error",
			"engine": "bbolt",
			"error":  err.Error(),
		})
		return
	}

	buckets := make([]bucketStatus, 0, len(stats))
	for name, n := range stats {
		buckets = append(buckets, bucketStatus{Bucket: name, Keys: n})
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Bucket < buckets[j].Bucket })

	s.sendJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "healthy",
		"engine":        "bbolt",
		"path":          s.deps.Store.Path(),
		"tables":        len(buckets),
		"buckets":       buckets,
		"query_time_ms": millis(time.Since(start)),
	})
}
