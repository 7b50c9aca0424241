package core

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// healthCheckTimeout bounds all probes together; a probe still running at the
// deadline is reported unhealthy.
const healthCheckTimeout = 2 * time.Second

type componentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status     string                     `json:"status"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

// HandleHealth runs every HealthProbe concurrently and answers 200 when all
// pass, 503 otherwise. Mounted at GET /health without authentication.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := healthResponse{Status: "healthy"}
	if s.Config != nil {
		resp.Version = s.Config.Build.Version
	}
	if len(s.HealthProbes) == 0 {
		JSON(w, r, http.StatusOK, resp)
		return
	}

	var mu sync.Mutex
	components := make(map[string]componentStatus, len(s.HealthProbes))
	for _, probe := range s.HealthProbes {
		components[probe.Name()] = componentStatus{Status: "unhealthy", Message: "health check timed out"}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, probe := range s.HealthProbes {
		probe := probe
		g.Go(func() error {
			status := componentStatus{Status: "healthy"}
			if err := runProbe(gctx, probe); err != nil {
				status = componentStatus{Status: "unhealthy", Message: err.Error()}
			}
			mu.Lock()
			components[probe.Name()] = status
			mu.Unlock()
			// Failures are isolated per component; the group never cancels.
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}

	mu.Lock()
	resp.Components = maps.Clone(components)
	mu.Unlock()

	status := http.StatusOK
	for _, c := range resp.Components {
		if c.Status != "healthy" {
			resp.Status = "unhealthy"
			status = http.StatusServiceUnavailable
			break
		}
	}
	JSON(w, r, status, resp)
}

func runProbe(ctx context.Context, p HealthProbe) (err error) {
	defer func() {
		if rvr := recover(); rvr != nil {
			err = fmt.Errorf("probe panicked: %v", rvr)
		}
	}()
	return p.Check(ctx)
}

// PingProbe adapts anything with a Ping method (the pgx pool) to HealthProbe.
type PingProbe struct {
	Label  string
	Pinger interface{ Ping(ctx context.Context) error }
}

func (p PingProbe) Name() string                    { return p.Label }
func (p PingProbe) Check(ctx context.Context) error { return p.Pinger.Ping(ctx) }
