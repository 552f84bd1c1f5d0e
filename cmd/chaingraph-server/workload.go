package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/chaingraphlabs/chaingraph/internal/core/port"
	"github.com/chaingraphlabs/chaingraph/pkg/chaingraph"
)

// workloadManager drives a background stream of executions through the
// embedded runtime to exercise the metrics endpoints.
type workloadManager struct {
	runtime *chaingraph.Runtime

	mu     sync.Mutex
	cancel context.CancelFunc
}

func (m *workloadManager) start(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		http.Error(w, "workload already running", http.StatusConflict)
		return
	}
	rate := 200 * time.Millisecond
	if v := r.URL.Query().Get("rate_ms"); v != "" {
		if ms, err := time.ParseDuration(v + "ms"); err == nil {
			rate = ms
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	go m.loop(ctx, rate)
	w.WriteHeader(http.StatusAccepted)
	fmt.Fprintf(w, "workload started at %v\n", rate)
}

func (m *workloadManager) stop(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, "workload stopped\n")
}

func (m *workloadManager) listExecutions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(m.runtime.List()); err != nil {
		log.Printf("list executions: %v", err)
	}
}

func (m *workloadManager) loop(ctx context.Context, rate time.Duration) {
	ticker := time.NewTicker(rate)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.runOnce(ctx); err != nil && ctx.Err() == nil {
				log.Printf("workload execution: %v", err)
			}
		}
	}
}

// runOnce submits one small flow, waits for it, and prunes it so workload
// executions do not accumulate in the engine.
func (m *workloadManager) runOnce(ctx context.Context) error {
	a, b := float64(rand.Intn(100)), float64(rand.Intn(100))
	status, err := m.runtime.Run(ctx, &chaingraph.SubmitRequest{
		GraphID: "workload",
		Nodes: []chaingraph.NodeSpec{
			{ID: "a", Type: "core.constant.number", Inputs: map[string]chaingraph.Value{"value": port.Number(a)}},
			{ID: "b", Type: "core.constant.number", Inputs: map[string]chaingraph.Value{"value": port.Number(b)}},
			{ID: "sum", Type: "math.sum"},
		},
		Edges: []chaingraph.EdgeSpec{
			{SourceNode: "a", SourcePort: "out", TargetNode: "sum", TargetPort: "a"},
			{SourceNode: "b", SourcePort: "out", TargetNode: "sum", TargetPort: "b"},
		},
	})
	if err != nil {
		return err
	}
	return m.runtime.Prune(ctx, status.ExecutionID)
}
