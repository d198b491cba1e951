package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gftdcojp/buslog/internal/catalog"
	"github.com/gftdcojp/buslog/internal/config"
	"github.com/gftdcojp/buslog/pkg/s3util"
	"github.com/nats-io/nats.go"
)

// HealthStatus represents the overall health state.
type HealthStatus struct {
	OK     bool    `json:"ok"`
	Checks []Check `json:"checks,omitempty"`
}

// Check represents an individual health check.
type Check struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// HealthChecker runs readiness checks against the recorder's dependencies.
// Nil dependencies are not checked.
type HealthChecker struct {
	natsConn  *nats.Conn
	catalog   catalog.Store
	s3Client  *s3util.Client
	outputDir string
}

func NewHealthChecker(nc *nats.Conn, cat catalog.Store, s3Client *s3util.Client, outputDir string) *HealthChecker {
	return &HealthChecker{
		natsConn:  nc,
		catalog:   cat,
		s3Client:  s3Client,
		outputDir: outputDir,
	}
}

// Liveness checks if the process is alive.
func (h *HealthChecker) Liveness() HealthStatus {
	return HealthStatus{OK: true}
}

// Readiness checks if the recorder can accept and persist objects.
func (h *HealthChecker) Readiness() HealthStatus {
	status := HealthStatus{OK: true}
	add := func(name string, err error, okStatus string) {
		if err != nil {
			status.OK = false
			status.Checks = append(status.Checks, Check{Name: name, Status: "error", Error: err.Error()})
			return
		}
		status.Checks = append(status.Checks, Check{Name: name, Status: okStatus})
	}

	if h.natsConn != nil {
		if h.natsConn.IsConnected() {
			status.Checks = append(status.Checks, Check{Name: "nats", Status: "connected"})
		} else {
			status.OK = false
			status.Checks = append(status.Checks, Check{Name: "nats", Status: "disconnected"})
		}
	}

	if h.catalog != nil {
		add("catalog", h.catalog.Ping(), "ok")
	}

	if h.outputDir != "" {
		add("output_dir", checkDir(h.outputDir), "ok")
	}

	if h.s3Client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		add("s3", h.s3Client.Ping(ctx), "ok")
	}

	return status
}

func checkDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	return nil
}

// HealthHandler serves liveness and readiness checks on the configured paths.
func HealthHandler(cfg config.HealthConfig, checker *HealthChecker) http.Handler {
	livenessPath := cfg.LivenessPath
	if livenessPath == "" {
		livenessPath = "/healthz"
	}
	readinessPath := cfg.ReadinessPath
	if readinessPath == "" {
		readinessPath = "/readyz"
	}

	mux := http.NewServeMux()
	mux.HandleFunc(livenessPath, func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, checker.Liveness())
	})
	mux.HandleFunc(readinessPath, func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, checker.Readiness())
	})
	return mux
}

func writeStatus(w http.ResponseWriter, status HealthStatus) {
	code := http.StatusOK
	if !status.OK {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(status)
}

// RunHealthServer starts the health check HTTP server.
func RunHealthServer(ctx context.Context, cfg config.HealthConfig, checker *HealthChecker) error {
	srv := &http.Server{
		Addr:    cfg.Listen,
		Handler: HealthHandler(cfg, checker),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
