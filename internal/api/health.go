package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// healthCheckTimeout bounds the whole probe fan-out. A dependency slower
// than this is as good as down.
const healthCheckTimeout = 2 * time.Second

// HealthProbe is one critical dependency the health endpoint checks.
type HealthProbe interface {
	Name() string
	Check(ctx context.Context) error
}

type componentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status     string                     `json:"status"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

// HealthHandler runs all probes concurrently and reports 200 when every one
// passes, 503 otherwise. The endpoint is public.
func HealthHandler(probes ...HealthProbe) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		if len(probes) == 0 {
			JSON(w, r, http.StatusOK, healthResponse{Status: "healthy"})
			return
		}

		var (
			mu         sync.Mutex
			components = make(map[string]componentStatus, len(probes))
			wg         sync.WaitGroup
			degraded   bool
		)

		for _, probe := range probes {
			wg.Add(1)
			go func(p HealthProbe) {
				defer wg.Done()

				var err error
				func() {
					defer func() {
						if rvr := recover(); rvr != nil {
							err = fmt.Errorf("probe panicked: %v", rvr)
						}
					}()
					err = p.Check(ctx)
				}()

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					degraded = true
					components[p.Name()] = componentStatus{Status: "unhealthy", Message: err.Error()}
				} else {
					components[p.Name()] = componentStatus{Status: "healthy"}
				}
			}(probe)
		}
		wg.Wait()

		resp := healthResponse{Status: "healthy", Components: components}
		status := http.StatusOK
		if degraded {
			resp.Status = "unhealthy"
			status = http.StatusServiceUnavailable
		}
		JSON(w, r, status, resp)
	}
}
