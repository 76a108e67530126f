package services

import (
	"log/slog"
	"runtime"
	"time"
)

// HealthService answers liveness probes and the service banner. It has no
// dependency on the document store: the probe must stay green even when the
// store is unreachable, so infrastructure restarts are driven by process
// health alone.
type HealthService struct {
	serviceName string
	version     string
	startTime   time.Time
	logger      *slog.Logger
}

// HealthStatus is the liveness probe response.
type HealthStatus struct {
	Status string `json:"status"`
}

// ServiceInfo is the root banner response.
type ServiceInfo struct {
	Status   string `json:"status"`
	Service  string `json:"service"`
	Version  string `json:"version"`
	Platform string `json:"platform"`
	Uptime   string `json:"uptime,omitempty"`
}

// NewHealthService creates a new health service.
func NewHealthService(serviceName, version string, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthService{
		serviceName: serviceName,
		version:     version,
		startTime:   time.Now(),
		logger:      logger,
	}
}

// HealthCheck returns the static liveness status.
func (s *HealthService) HealthCheck() HealthStatus {
	return HealthStatus{Status: "healthy"}
}

// Info returns the service banner.
func (s *HealthService) Info() ServiceInfo {
	return ServiceInfo{
		Status:   "online",
		Service:  s.serviceName,
		Version:  s.version,
		Platform: runtime.GOOS + "/" + runtime.GOARCH,
		Uptime:   time.Since(s.startTime).Round(time.Second).String(),
	}
}
