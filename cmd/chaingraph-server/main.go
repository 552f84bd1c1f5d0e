// Package main provides a minimal HTTP server exposing engine debug and
// metrics endpoints.
package main

import (
	"encoding/hex"
	"expvar"
	"fmt"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"

	"github.com/chaingraphlabs/chaingraph/internal/adapters/vault"
	"github.com/chaingraphlabs/chaingraph/internal/core/port"
	"github.com/chaingraphlabs/chaingraph/pkg/chaingraph"
)

func main() {
	// Optional .env for local development; absence is not an error.
	_ = godotenv.Load()

	decryptor, err := loadVault()
	if err != nil {
		log.Fatalf("vault setup: %v", err)
	}

	rt, err := chaingraph.NewRuntime(chaingraph.Options{Decryptor: decryptor})
	if err != nil {
		log.Fatalf("runtime setup: %v", err)
	}
	wm := &workloadManager{runtime: rt}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintln(w, "ChainGraph server is running. See /healthz, /executions, /metrics, /debug/vars, /debug/pprof/")
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, "ok")
	})
	mux.HandleFunc("/executions", wm.listExecutions)

	// Prometheus-compatible metrics endpoint (no external deps)
	mux.HandleFunc("/metrics", promMetricsHandler)
	mux.Handle("/debug/vars", expvar.Handler())
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	// Workload endpoints to generate metrics load
	mux.HandleFunc("/workload/start", wm.start)
	mux.HandleFunc("/workload/stop", wm.stop)

	addr := ":8080"
	if v := os.Getenv("CHAINGRAPH_ADDR"); v != "" {
		addr = v
	}
	log.Printf("Starting ChainGraph server on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// loadVault builds a decryptor from CHAINGRAPH_VAULT_KEY (hex, 32 bytes).
// An empty key disables secret ports.
func loadVault() (port.Decryptor, error) {
	raw := os.Getenv("CHAINGRAPH_VAULT_KEY")
	if raw == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("CHAINGRAPH_VAULT_KEY: %w", err)
	}
	v, err := vault.New(key)
	if err != nil {
		return nil, err
	}
	for _, principal := range strings.Split(os.Getenv("CHAINGRAPH_PRINCIPALS"), ",") {
		if principal = strings.TrimSpace(principal); principal != "" {
			v.Grant(principal)
		}
	}
	return v, nil
}

// promMetricsHandler renders known expvar metrics in Prometheus text format.
func promMetricsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	type meta struct {
		typ, help string
		isMap     bool
		label     string
	}
	metas := map[string]meta{
		"chaingraph_events_appended_total":     {typ: "counter", help: "Events appended to the log", isMap: true, label: "store"},
		"chaingraph_events_replayed_total":     {typ: "counter", help: "Events replayed to subscribers", isMap: true, label: "store"},
		"chaingraph_event_store_errors_total":  {typ: "counter", help: "Event store append failures", isMap: true, label: "store"},
		"chaingraph_runs_started_total":        {typ: "counter", help: "Executions started"},
		"chaingraph_runs_active":               {typ: "gauge", help: "Executions currently running"},
		"chaingraph_nodes_executed_total":      {typ: "counter", help: "Nodes completed successfully"},
		"chaingraph_node_failures_total":       {typ: "counter", help: "Nodes that failed"},
		"chaingraph_breakpoints_hit_total":     {typ: "counter", help: "Debug pauses taken"},
		"chaingraph_subscriber_overflow_total": {typ: "counter", help: "Subscribers disconnected for queue overflow"},
		"chaingraph_subscribers_active":        {typ: "gauge", help: "Live event subscribers"},
	}

	varNames := make([]string, 0, 64)
	expvar.Do(func(kv expvar.KeyValue) {
		varNames = append(varNames, kv.Key)
	})
	sort.Strings(varNames)

	for _, name := range varNames {
		v := expvar.Get(name)
		m, known := metas[name]
		if !known {
			if iv, ok := v.(*expvar.Int); ok {
				_, _ = fmt.Fprintf(w, "# TYPE %s gauge\n", name)
				_, _ = fmt.Fprintf(w, "%s %s\n", name, iv.String())
			}
			continue
		}
		_, _ = fmt.Fprintf(w, "# HELP %s %s\n", name, sanitizeHelp(m.help))
		_, _ = fmt.Fprintf(w, "# TYPE %s %s\n", name, m.typ)
		if m.isMap {
			mp, ok := v.(*expvar.Map)
			if !ok {
				continue
			}
			sub := make([]expvar.KeyValue, 0, 8)
			mp.Do(func(kv expvar.KeyValue) { sub = append(sub, kv) })
			sort.Slice(sub, func(i, j int) bool { return sub[i].Key < sub[j].Key })
			for _, kv := range sub {
				_, _ = fmt.Fprintf(w, "%s{%s=\"%s\"} %s\n", name, m.label, escapeLabel(kv.Key), kv.Value.String())
			}
			continue
		}
		_, _ = fmt.Fprintf(w, "%s %s\n", name, v.String())
	}
}

func sanitizeHelp(s string) string {
	return strings.ReplaceAll(s, "\n", " ")
}

func escapeLabel(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}
