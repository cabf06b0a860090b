// Package health serves the voxwire liveness and readiness probes.
//
// Liveness (/healthz) answers 200 whenever the process can still serve HTTP.
// Readiness (/readyz) runs every registered [Checker] — the things a new
// conversation needs, such as the provider registry or the session store —
// and fails closed with 503 when any of them does. Bodies are JSON so probes
// and humans read the same thing.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// checkTimeout caps a single readiness check. A checker that cannot answer
// within this window counts as failed.
const checkTimeout = 3 * time.Second

// Checker probes one dependency of the pipeline. Check returns nil when the
// dependency can serve a new session and must respect ctx cancellation.
type Checker struct {
	// Name keys the check's entry in the /readyz response, e.g. "providers".
	Name string

	Check func(ctx context.Context) error
}

// checkReport is one check's entry in the readiness body.
type checkReport struct {
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	Elapsed string `json:"elapsed"`
}

// report is the JSON body for both endpoints.
type report struct {
	Status string                 `json:"status"`
	Checks map[string]checkReport `json:"checks,omitempty"`
}

// Handler evaluates readiness checks and serves the probe endpoints. The
// checker set is fixed at construction; Handler is safe for concurrent use.
type Handler struct {
	checkers []Checker
}

// New builds a [Handler] over the given checkers.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// Register adds the probe routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// Healthz is the liveness probe. Reaching it is the check.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, report{Status: "ok"})
}

// Readyz runs every checker concurrently, each under its own [checkTimeout],
// and reports 200 only when all of them pass.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		checks = make(map[string]checkReport, len(h.checkers))
		ready  = true
	)

	for _, c := range h.checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
			defer cancel()

			start := time.Now()
			err := c.Check(ctx)
			entry := checkReport{Status: "ok", Elapsed: time.Since(start).Round(time.Microsecond).String()}
			if err != nil {
				entry.Status = "fail"
				entry.Error = err.Error()
			}

			mu.Lock()
			checks[c.Name] = entry
			if err != nil {
				ready = false
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	res := report{Status: "ok", Checks: checks}
	status := http.StatusOK
	if !ready {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
