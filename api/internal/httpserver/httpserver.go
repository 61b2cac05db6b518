// Package httpserver builds the health-check mux served by cmd/worker and by
// cmd/bot's polling mode. cmd/bot's webhook mode does not use it: the
// Telegram library registers its webhook handler on http.DefaultServeMux, so
// that mode registers /healthz there instead.
package httpserver

import (
	"context"
	"log"
	"net/http"
	"time"
)

// HealthCheck reports whether a dependency (DB, Redis) is reachable.
type HealthCheck func(ctx context.Context) error

// NewHealthMux returns a mux with /healthz wired to run every check with a
// 2s timeout, failing the response if any of them errors.
func NewHealthMux(checks ...HealthCheck) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		for _, check := range checks {
			if err := check(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("not ok: " + err.Error()))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Serve blocks serving mux on addr.
func Serve(addr string, mux *http.ServeMux) error {
	log.Printf("health server listening on %s", addr)
	return http.ListenAndServe(addr, mux)
}
