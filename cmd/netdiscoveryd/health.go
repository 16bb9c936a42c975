package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/netreach/netdiscovery/internal/telemetry"
	"github.com/rs/zerolog/log"
)

// HealthServer provides an HTTP health check endpoint for the agent
// process reporting uptime, goroutine count, and memory usage.
type HealthServer struct {
	telemetry *telemetry.Writer
	startTime time.Time
	port      int
}

// HealthResponse is the /health JSON response shape.
type HealthResponse struct {
	Status     string    `json:"status"`
	Uptime     string    `json:"uptime"`
	Goroutines int       `json:"goroutines"`
	MemoryMB   uint64    `json:"memory_mb"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewHealthServer builds a HealthServer. writer may be nil when telemetry
// is disabled, in which case readiness always reports healthy.
func NewHealthServer(port int, writer *telemetry.Writer) *HealthServer {
	return &HealthServer{telemetry: writer, startTime: time.Now(), port: port}
}

// Start begins serving health checks in the background.
func (hs *HealthServer) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", hs.healthHandler)
	mux.HandleFunc("/health/ready", hs.readinessHandler)
	mux.HandleFunc("/health/live", hs.livenessHandler)

	addr := fmt.Sprintf(":%d", hs.port)
	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("netdiscoveryd: health server panic recovered")
			}
		}()
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("netdiscoveryd: health server error")
		}
	}()

	log.Info().Str("address", addr).Msg("netdiscoveryd: health check endpoint started")
	return nil
}

func (hs *HealthServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	resp := HealthResponse{
		Status:     "healthy",
		Uptime:     time.Since(hs.startTime).String(),
		Goroutines: runtime.NumGoroutine(),
		MemoryMB:   m.Alloc / 1024 / 1024,
		Timestamp:  time.Now(),
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (hs *HealthServer) readinessHandler(w http.ResponseWriter, r *http.Request) {
	if err := hs.telemetry.HealthCheck(r.Context()); err != nil {
		log.Warn().Err(err).Msg("netdiscoveryd: telemetry backend unreachable")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("NOT READY"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("READY"))
}

func (hs *HealthServer) livenessHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ALIVE"))
}
