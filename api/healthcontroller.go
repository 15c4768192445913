package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

const healthCheckTimeout = 2 * time.Second

// Pinger is any dependency the health endpoint probes.
type Pinger func(ctx context.Context) error

// CheckResult is one dependency's probe outcome.
type CheckResult struct {
	Status         string `json:"status"`
	ResponseTimeMs int64  `json:"responseTimeMs"`
	Error          string `json:"error,omitempty"`
}

type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}

// RegisterHealthRoutes registers /healthz. Every check runs concurrently and
// the reply is 503 if any of them fails.
func RegisterHealthRoutes(r gin.IRouter, checks map[string]Pinger) {
	r.GET("/healthz", func(c *gin.Context) {
		resp := runChecks(c.Request.Context(), checks)
		code := http.StatusOK
		if resp.Status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, resp)
	})
}

func runChecks(ctx context.Context, checks map[string]Pinger) HealthResponse {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		out = make(map[string]CheckResult, len(checks))
	)
	for name, ping := range checks {
		wg.Add(1)
		go func(name string, ping Pinger) {
			defer wg.Done()
			start := time.Now()
			res := CheckResult{Status: "up"}
			if err := ping(ctx); err != nil {
				res.Status = "down"
				res.Error = err.Error()
			}
			res.ResponseTimeMs = time.Since(start).Milliseconds()
			mu.Lock()
			out[name] = res
			mu.Unlock()
		}(name, ping)
	}
	wg.Wait()

	status := "healthy"
	for _, r := range out {
		if r.Status != "up" {
			status = "unhealthy"
			break
		}
	}
	return HealthResponse{Status: status, Timestamp: time.Now().UTC(), Checks: out}
}
