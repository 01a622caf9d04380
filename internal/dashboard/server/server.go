// Package server exposes the vehicle snapshot and commands over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/vajra-io/vajra/internal/transport"
	"github.com/vajra-io/vajra/internal/vehicle"
	"github.com/vajra-io/vajra/pkg/geofence"
	"github.com/vajra-io/vajra/pkg/log"
	"github.com/vajra-io/vajra/pkg/options"
)

// maxBodyBytes bounds request bodies; zone files are the largest payload.
const maxBodyBytes = 1 << 20

// Vehicle is the part of the reconciler the API drives.
type Vehicle interface {
	Snapshot() vehicle.Snapshot
	RequestImmobilizerState(ctx context.Context, on bool) error
	RequestPollingInterval(ctx context.Context, seconds int) error
	RequestOptimizerMode(ctx context.Context, mode transport.OptimizerMode) error
	SetZones(ctx context.Context, zones []geofence.Zone) error
	AddZone(ctx context.Context, zone geofence.Zone) error
	RemoveZone(ctx context.Context, id string) error
	Zones() []geofence.Zone
}

// ReadyFunc returns nil once the daemon can serve traffic.
type ReadyFunc func() error

type Server struct {
	server  *http.Server
	options *options.HttpOptions
	vehicle Vehicle
	ready   ReadyFunc
}

func NewServer(opts *options.HttpOptions, v Vehicle, ready ReadyFunc) *Server {
	if ready == nil {
		ready = func() error { return nil }
	}
	s := &Server{
		options: opts,
		vehicle: v,
		ready:   ready,
	}
	s.server = &http.Server{
		Addr:         opts.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  opts.Timeout,
		WriteTimeout: opts.Timeout,
	}
	return s
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	// Basic Liveness Probe
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	r.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := s.ready(); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.Handle("/debug/loglevel", log.LevelHandler()).Methods(http.MethodGet, http.MethodPut)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/snapshot", s.getSnapshot).Methods(http.MethodGet)
	api.HandleFunc("/immobilizer", s.putImmobilizer).Methods(http.MethodPut)
	api.HandleFunc("/polling", s.putPolling).Methods(http.MethodPut)
	api.HandleFunc("/optimizer", s.putOptimizer).Methods(http.MethodPut)
	api.HandleFunc("/zones", s.getZones).Methods(http.MethodGet)
	api.HandleFunc("/zones", s.putZones).Methods(http.MethodPut)
	api.HandleFunc("/zones", s.postZone).Methods(http.MethodPost)
	api.HandleFunc("/zones/{id}", s.deleteZone).Methods(http.MethodDelete)

	return r
}

func (s *Server) Start(ctx context.Context) error {
	log.Info("Starting HTTP Server", "addr", s.server.Addr)

	ln, err := net.Listen(s.options.Network, s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.server.Addr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeout := s.options.ShutdownTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}

func (s *Server) getSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.vehicle.Snapshot())
}

type immobilizerRequest struct {
	Active *bool `json:"active"`
}

func (s *Server) putImmobilizer(w http.ResponseWriter, r *http.Request) {
	var req immobilizerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Active == nil {
		writeError(w, http.StatusBadRequest, errors.New("field 'active' is required"))
		return
	}
	if err := s.vehicle.RequestImmobilizerState(r.Context(), *req.Active); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.vehicle.Snapshot())
}

type pollingRequest struct {
	IntervalSeconds int `json:"interval_seconds"`
}

func (s *Server) putPolling(w http.ResponseWriter, r *http.Request) {
	var req pollingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.IntervalSeconds <= 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("interval_seconds must be positive, got %d", req.IntervalSeconds))
		return
	}
	if err := s.vehicle.RequestPollingInterval(r.Context(), req.IntervalSeconds); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.vehicle.Snapshot())
}

type optimizerRequest struct {
	Mode string `json:"mode"`
}

func (s *Server) putOptimizer(w http.ResponseWriter, r *http.Request) {
	var req optimizerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	mode, err := transport.ParseOptimizerMode(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.vehicle.RequestOptimizerMode(r.Context(), mode); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.vehicle.Snapshot())
}

func (s *Server) getZones(w http.ResponseWriter, r *http.Request) {
	data, err := geofence.MarshalGeoJSON(s.vehicle.Zones())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) putZones(w http.ResponseWriter, r *http.Request) {
	zones, ok := readZones(w, r)
	if !ok {
		return
	}
	if err := s.vehicle.SetZones(r.Context(), zones); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	s.getZones(w, r)
}

func (s *Server) postZone(w http.ResponseWriter, r *http.Request) {
	zones, ok := readZones(w, r)
	if !ok {
		return
	}
	if len(zones) != 1 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("expected exactly one zone, got %d", len(zones)))
		return
	}
	if err := s.vehicle.AddZone(r.Context(), zones[0]); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	data, err := geofence.MarshalGeoJSON(zones)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusCreated)
	w.Write(data)
}

func (s *Server) deleteZone(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.vehicle.RemoveZone(r.Context(), id); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func readZones(w http.ResponseWriter, r *http.Request) ([]geofence.Zone, bool) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err)
		return nil, false
	}
	zones, err := geofence.ParseGeoJSON(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return nil, false
	}
	return zones, true
}

// statusFor maps reconciler errors onto HTTP status codes.
func statusFor(err error) int {
	var (
		verr *geofence.ValidationError
		agg  utilerrors.Aggregate
	)
	switch {
	case errors.Is(err, vehicle.ErrZoneNotFound):
		return http.StatusNotFound
	case errors.Is(err, vehicle.ErrZoneExists):
		return http.StatusConflict
	case errors.Is(err, vehicle.ErrStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	case errors.As(err, &verr), errors.As(err, &agg):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return false
	}
	return true
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, code int, err error) {
	if code >= http.StatusInternalServerError {
		log.Error(err, "Request failed", "status", code)
	}
	writeJSON(w, code, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error(err, "Failed to encode response")
	}
}
