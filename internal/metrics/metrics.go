// Package metrics exposes a read-only HTTP view of a running Router:
// a liveness probe and a plain-text counters/size dump, with no write
// path into the store. Built on stdlib net/http only, the same
// dependency-free approach torua's cmd/node and cmd/coordinator use
// for their own /health and /info endpoints.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/mariusromeiser/sqkv"
)

// Handler returns an http.Handler serving GET /healthz and GET /stats
// against router.
func Handler(router *sqkv.Router) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthzHandler)
	mux.HandleFunc("/stats", statsHandler(router))
	return mux
}

func healthzHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func statsHandler(router *sqkv.Router) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		stats := router.Stats()
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, "gets %d\n", stats.Gets)
		fmt.Fprintf(w, "hits %d\n", stats.Hits)
		fmt.Fprintf(w, "misses %d\n", stats.Misses)
		fmt.Fprintf(w, "sets %d\n", stats.Sets)
		fmt.Fprintf(w, "deletes %d\n", stats.Deletes)
		fmt.Fprintf(w, "expires %d\n", stats.Expires)
		fmt.Fprintf(w, "evictions %d\n", stats.Evictions)
		fmt.Fprintf(w, "expirations %d\n", stats.Expirations)
		fmt.Fprintf(w, "size %d\n", router.Size())
		fmt.Fprintf(w, "shard_count %d\n", router.ShardCount())
		fmt.Fprintf(w, "capacity_per_shard %d\n", router.CapacityPerShard())
	}
}
