package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"vigil/internal/alerts"
	"vigil/internal/config"
	"vigil/internal/model"
	"vigil/internal/state"
)

// Server exposes read-only operational endpoints: process status, the
// per-stream state snapshots, and the in-memory alert buffer.
type Server struct {
	cfg     *config.Manager
	states  *state.Store
	alerts  *alerts.Store
	logger  *slog.Logger
	version string
}

type statusResponse struct {
	Status     string          `json:"status"`
	Time       string          `json:"time"`
	Version    string          `json:"version"`
	ConfigPath string          `json:"config_path,omitempty"`
	Streams    int             `json:"streams"`
	API        apiStatus       `json:"api"`
	Detection  detectionStatus `json:"detection"`
	Storage    storageStatus   `json:"storage"`
}

type apiStatus struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

type detectionStatus struct {
	CollectDemographics bool     `json:"collect_demographics"`
	BehaviourLabels     []string `json:"behaviour_labels"`
	ConfidenceThreshold float64  `json:"confidence_threshold"`
	WindowSize          int      `json:"window_size"`
}

type storageStatus struct {
	Enabled bool   `json:"enabled"`
	Driver  string `json:"driver"`
}

func Start(ctx context.Context, cfg *config.Manager, states *state.Store, alertsStore *alerts.Store, logger *slog.Logger, version string) *http.Server {
	if cfg == nil {
		return nil
	}
	current := cfg.Get().API
	if !current.Enabled {
		if logger != nil {
			logger.Info("api disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("api enabled", "addr", current.Addr)
	}
	server := &Server{
		cfg:     cfg,
		states:  states,
		alerts:  alertsStore,
		logger:  logger,
		version: version,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", server.handleHealth)
	mux.HandleFunc("/status", server.handleStatus)
	mux.HandleFunc("/streams", server.handleStreams)
	mux.HandleFunc("/streams/", server.handleStream)
	mux.HandleFunc("/alerts", server.handleAlerts)

	httpServer := &http.Server{Addr: current.Addr, Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				logger.Error("api server error", "err", err)
			}
		}
	}()
	return httpServer
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	cfg := s.cfg.Get()
	resp := statusResponse{
		Status:     "ok",
		Time:       time.Now().UTC().Format(time.RFC3339Nano),
		Version:    s.version,
		ConfigPath: s.cfg.Path(),
		Streams:    s.states.Count(),
		API:        apiStatus{Enabled: cfg.API.Enabled, Addr: cfg.API.Addr},
		Detection: detectionStatus{
			CollectDemographics: cfg.Detection.CollectDemographics,
			BehaviourLabels:     cfg.Detection.BehaviourLabels,
			ConfidenceThreshold: cfg.Detection.ConfidenceThreshold,
			WindowSize:          cfg.Detection.WindowSize,
		},
		Storage: storageStatus{Enabled: cfg.Storage.Enabled, Driver: cfg.Storage.Driver},
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStreams(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	snaps := s.states.Snapshots()
	writeJSON(w, http.StatusOK, map[string]any{
		"streams": snaps,
		"count":   len(snaps),
	})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/streams/")
	name = strings.TrimSuffix(name, "/")
	if name == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	for _, snap := range s.states.Snapshots() {
		if snap.Stream.Name == name {
			writeJSON(w, http.StatusOK, map[string]any{
				"stream": snap,
				"alerts": s.alerts.ForStream(name, 20),
			})
			return
		}
	}
	w.WriteHeader(http.StatusNotFound)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	sinceStr := r.URL.Query().Get("since")
	var list []model.Alert
	if sinceStr != "" {
		ts, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		list = s.alerts.Since(ts)
	} else if stream := r.URL.Query().Get("stream"); stream != "" {
		list = s.alerts.ForStream(stream, limit)
	} else {
		list = s.alerts.List(limit)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": list,
		"count":  len(list),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
