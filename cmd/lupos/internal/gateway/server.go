package gateway

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tinyland-inc/lupos/pkg/channels"
)

type healthServer struct {
	srv *http.Server
}

type healthStatus struct {
	Status   string   `json:"status"`
	Version  string   `json:"version"`
	Backends []string `json:"backends"`
	Channels []string `json:"channels"`
}

// newHealthServer serves /health, /ready (200 once every channel runs) and
// /metrics from reg.
func newHealthServer(host string, port int, version string, backends []string, chans []channels.Channel, reg *prometheus.Registry) *healthServer {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		names := make([]string, 0, len(chans))
		for _, ch := range chans {
			names = append(names, ch.Name())
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(healthStatus{
			Status:   "ok",
			Version:  version,
			Backends: backends,
			Channels: names,
		})
	})
	mux.HandleFunc("GET /ready", func(w http.ResponseWriter, _ *http.Request) {
		for _, ch := range chans {
			if !ch.IsRunning() {
				http.Error(w, ch.Name()+" not running", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	return &healthServer{srv: &http.Server{
		Addr:              net.JoinHostPort(host, strconv.Itoa(port)),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

func (s *healthServer) Start() error {
	return s.srv.ListenAndServe()
}

func (s *healthServer) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
