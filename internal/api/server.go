// Package api serves the local admin HTTP surface (spec.md §6,
// --http-addr/--rpc-cors-domain/--no-api): read-only /status, /metrics,
// /debug/host and /debug/memsize endpoints, nothing that can mutate vault
// state. The router/CORS/shutdown shape is grounded on the teacher's
// stack's standard http.Server-plus-httprouter-plus-rs/cors idiom rather
// than anything hand-rolled; /debug/host and /debug/memsize give the
// teacher's own shirou/gopsutil and fjl/memsize dependencies a concrete
// home they never had in the teacher's own kept code.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/fjl/memsize"
	"github.com/julienschmidt/httprouter"
	"github.com/pborman/uuid"
	"github.com/rs/cors"
	"github.com/shirou/gopsutil/mem"

	"github.com/bridgevault/clients/internal/metrics"
	"github.com/bridgevault/clients/internal/xlog"
)

// shutdownTimeout bounds how long Run waits for in-flight requests to drain
// once ctx is cancelled.
const shutdownTimeout = 5 * time.Second

// StatusFunc returns a snapshot of the running service's health, rendered
// as the /status endpoint's JSON body.
type StatusFunc func() Status

// Status is the shape of the /status response.
type Status struct {
	Component      string `json:"component"`
	Self           string `json:"self,omitempty"`
	RegisteredVault bool  `json:"registered_vault,omitempty"`
	OpenIssues     int    `json:"open_issues,omitempty"`
	KnownVaults    int    `json:"known_vaults,omitempty"`
}

// MemSizeFunc reports the heap footprint of the caller's in-memory
// registries, rendered as the /debug/memsize endpoint's JSON body. Optional;
// a nil MemSizeFunc passed to New disables the route.
type MemSizeFunc func() memsize.Sizes

// Server is the admin HTTP listener.
type Server struct {
	log     *xlog.Logger
	addr    string
	status  StatusFunc
	metrics *metrics.Counters
	memsize MemSizeFunc
	srv     *http.Server
}

// New builds a Server; corsDomain is a comma-separated list of allowed
// origins, empty meaning no cross-origin access (spec.md §6,
// --rpc-cors-domain). memSize may be nil to omit the /debug/memsize route.
func New(log *xlog.Logger, addr, corsDomain string, status StatusFunc, counters *metrics.Counters, memSize MemSizeFunc) (*Server, error) {
	s := &Server{log: log, addr: addr, status: status, metrics: counters, memsize: memSize}

	router := httprouter.New()
	router.GET("/status", s.handleStatus)
	router.GET("/metrics", s.handleMetrics)
	router.GET("/debug/host", s.handleHostStats)
	if memSize != nil {
		router.GET("/debug/memsize", s.handleMemSize)
	}

	var handler http.Handler = requestIDMiddleware(router)
	if corsDomain != "" {
		origins := strings.Split(corsDomain, ",")
		handler = cors.New(cors.Options{AllowedOrigins: origins}).Handler(handler)
	}

	s.srv = &http.Server{Addr: addr, Handler: handler}
	return s, nil
}

// requestIDMiddleware stamps every admin request with a correlation id, so
// a single request can be traced across the log lines it produces.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewRandom().String()
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r)
	})
}

// Run listens until ctx is cancelled, then shuts the server down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("admin API listening", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, s.status())
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, s.metrics.Snapshot())
}

func (s *Server) handleMemSize(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, s.memsize())
}

// hostStats is the /debug/host response shape: coarse process-host memory
// pressure, useful to correlate an operator's alerting with this process.
type hostStats struct {
	TotalMemoryBytes uint64  `json:"total_memory_bytes"`
	UsedMemoryBytes  uint64  `json:"used_memory_bytes"`
	UsedPercent      float64 `json:"used_percent"`
}

func (s *Server) handleHostStats(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, hostStats{TotalMemoryBytes: vm.Total, UsedMemoryBytes: vm.Used, UsedPercent: vm.UsedPercent})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
