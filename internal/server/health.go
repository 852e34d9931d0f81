package server

import (
	"context"
	"net/http"
	"time"

	"github.com/hendrikreh/chessmate/internal/sanitize"
)

// checkStatus is the tagged outcome of one named health check.
type checkStatus string

const (
	checkOK      checkStatus = "ok"
	checkError   checkStatus = "error"
	checkSkipped checkStatus = "skipped"
)

// Check is one named dependency probe. Required checks drive the aggregate
// status to "error" on failure; optional checks only drive it to "degraded".
type Check struct {
	Name     string
	Required bool
	Probe    func(ctx context.Context) error
}

// checkResult is one evaluated Check, in the health endpoint's JSON shape.
type checkResult struct {
	Name      string      `json:"name"`
	Status    checkStatus `json:"status"`
	Required  bool        `json:"required"`
	LatencyMs int64       `json:"latency_ms,omitempty"`
	Detail    string      `json:"detail,omitempty"`
}

// healthResponse is the GET /health JSON body.
type healthResponse struct {
	Status string        `json:"status"`
	Checks []checkResult `json:"checks"`
}

// HealthChecker runs a fixed set of named dependency probes with a bounded
// per-check timeout and aggregates them into ok|degraded|error.
type HealthChecker struct {
	checks  []Check
	timeout time.Duration
}

// NewHealthChecker builds a HealthChecker running checks with the given
// per-check timeout (0 means a 5s default).
func NewHealthChecker(timeout time.Duration, checks ...Check) *HealthChecker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HealthChecker{checks: checks, timeout: timeout}
}

// Run evaluates every check concurrently with its own bounded timeout and
// returns the aggregate status plus the per-check breakdown. A nil Probe
// means the check was never configured (e.g. redis not set up) and is
// reported as "skipped" without affecting the aggregate status.
func (h *HealthChecker) Run(ctx context.Context) (string, []checkResult) {
	results := make([]checkResult, len(h.checks))
	done := make(chan int, len(h.checks))

	for i, c := range h.checks {
		go func(i int, c Check) {
			results[i] = h.runOne(ctx, c)
			done <- i
		}(i, c)
	}
	for range h.checks {
		<-done
	}

	overall := "ok"
	for _, r := range results {
		if r.Status == checkSkipped {
			continue
		}
		if r.Status == checkError {
			if r.Required {
				overall = "error"
			} else if overall != "error" {
				overall = "degraded"
			}
		}
	}
	return overall, results
}

func (h *HealthChecker) runOne(ctx context.Context, c Check) checkResult {
	res := checkResult{Name: c.Name, Required: c.Required}
	if c.Probe == nil {
		res.Status = checkSkipped
		return res
	}

	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	err := c.Probe(callCtx)
	res.LatencyMs = time.Since(start).Milliseconds()
	if err != nil {
		res.Status = checkError
		res.Detail = sanitize.Error(err)
		return res
	}
	res.Status = checkOK
	return res
}

// httpStatusFor maps an aggregate health status onto an HTTP code: 200 only
// for "ok", 503 for "degraded"/"error".
func httpStatusFor(overall string) int {
	if overall == "ok" {
		return http.StatusOK
	}
	return http.StatusServiceUnavailable
}
