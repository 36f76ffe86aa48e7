package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vcu_miner/device"
	"vcu_miner/log"
	"vcu_miner/util"
	"vcu_miner/version"
)

// Miner is what the API reads from and controls.
type Miner interface {
	Snapshots() []device.DeviceSnapshot
	Restart()
	ResultCounts() (accepted, dupes uint64)
}

type Server struct {
	miner    Miner
	registry *prometheus.Registry
	router   chi.Router
	server   *http.Server
}

// NewServer builds the router. Collectors registered on registry are
// served on /metrics.
func NewServer(miner Miner, registry *prometheus.Registry) *Server {
	s := &Server{miner: miner, registry: registry}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/version", s.handleVersion)
		r.Get("/summary", s.handleSummary)
		r.Get("/devices", s.handleGetDevices)
		r.Get("/devices/{id}", s.handleGetDevice)
		r.Post("/restart", s.handleRestart)
	})

	s.router = r
	s.server = &http.Server{
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves on addr until Stop. It returns nil after a clean stop,
// including when Stop ran first.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	log.Infof("API listening on %s", ln.Addr())
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type Summary struct {
	Devices  int     `json:"devices"`
	Alive    int     `json:"alive"`
	Hashrate float64 `json:"hashrate_1m"`
	Rate5m   float64 `json:"hashrate_5m"`
	Rate15m  float64 `json:"hashrate_15m"`
	Human    string  `json:"hashrate_human"`
	Hashes   uint64  `json:"hashes_total"`
	Accepted uint64  `json:"results_accepted"`
	Dupes    uint64  `json:"results_duplicate"`
	Uptime   string  `json:"uptime"`
	Elapsed  float64 `json:"elapsed"`
}

func summarize(miner Miner) Summary {
	var sum Summary
	for _, d := range miner.Snapshots() {
		sum.Devices++
		if d.Status == device.StatusCode(device.STATUS_ALIVE) {
			sum.Alive++
		}
		sum.Hashrate += d.Hashrate.Rate1m
		sum.Rate5m += d.Hashrate.Rate5m
		sum.Rate15m += d.Hashrate.Rate15m
		sum.Hashes += d.Hashrate.Total
	}
	sum.Human = humanize.SIWithDigits(sum.Hashrate, 2, "H/s")
	sum.Accepted, sum.Dupes = miner.ResultCounts()
	sum.Uptime = util.UptimeInString()
	sum.Elapsed = util.SystemUptimeInSec()
	return sum
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, summarize(s.miner))
}

func (s *Server) handleGetDevices(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, s.miner.Snapshots())
}

// GET /api/devices/{id}
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 32)
	if err != nil {
		http.Error(w, "invalid device id", http.StatusBadRequest)
		return
	}
	for _, d := range s.miner.Snapshots() {
		if uint64(d.ID) == id {
			s.jsonResponse(w, d)
			return
		}
	}
	http.Error(w, device.ErrDevNotExist.Error(), http.StatusNotFound)
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	s.miner.Restart()
	s.jsonResponse(w, map[string]bool{"success": true})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, version.GetVersionConfig())
}

func (s *Server) jsonResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Errorf("encode JSON response: %v", err)
	}
}
