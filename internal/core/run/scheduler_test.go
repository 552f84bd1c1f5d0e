package run

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaingraphlabs/chaingraph/internal/adapters/eventlog/memory"
	"github.com/chaingraphlabs/chaingraph/internal/core/event"
	"github.com/chaingraphlabs/chaingraph/internal/core/flow"
	"github.com/chaingraphlabs/chaingraph/internal/core/port"
	"github.com/chaingraphlabs/chaingraph/internal/core/registry"
)

func numberIn(id string, required bool) port.Schema {
	return port.Schema{ID: id, Direction: port.DirectionInput, Type: port.TypeSpec{Kind: port.KindNumber}, Required: required}
}

func numberOut(id string) port.Schema {
	return port.Schema{ID: id, Direction: port.DirectionOutput, Type: port.TypeSpec{Kind: port.KindNumber}}
}

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New()

	require.NoError(t, reg.Register(&registry.Descriptor{
		Type:     "test.echo",
		Category: "test",
		Ports:    []port.Schema{numberIn("value", true), numberOut("out")},
		Exec: func(ctx context.Context, ec registry.ExecContext, in map[string]port.Value) (map[string]port.Value, error) {
			return map[string]port.Value{"out": in["value"]}, nil
		},
	}))
	require.NoError(t, reg.Register(&registry.Descriptor{
		Type:     "test.double",
		Category: "test",
		Ports:    []port.Schema{numberIn("value", true), numberOut("out")},
		Exec: func(ctx context.Context, ec registry.ExecContext, in map[string]port.Value) (map[string]port.Value, error) {
			return map[string]port.Value{"out": port.Number(in["value"].Number * 2)}, nil
		},
	}))
	require.NoError(t, reg.Register(&registry.Descriptor{
		Type:     "test.fail",
		Category: "test",
		Ports:    []port.Schema{numberIn("value", false), numberOut("out")},
		Exec: func(ctx context.Context, ec registry.ExecContext, in map[string]port.Value) (map[string]port.Value, error) {
			return nil, errors.New("deliberate failure")
		},
	}))
	require.NoError(t, reg.Register(&registry.Descriptor{
		Type:     "test.silent",
		Category: "test",
		Ports:    []port.Schema{numberIn("value", false), numberOut("out")},
		Exec: func(ctx context.Context, ec registry.ExecContext, in map[string]port.Value) (map[string]port.Value, error) {
			return map[string]port.Value{}, nil
		},
	}))
	require.NoError(t, reg.Register(&registry.Descriptor{
		Type:     "test.const.array",
		Category: "test",
		Ports: []port.Schema{
			{ID: "value", Direction: port.DirectionInput, Required: true,
				Type: port.TypeSpec{Kind: port.KindArray, Elem: &port.TypeSpec{Kind: port.KindNumber}}},
			{ID: "out", Direction: port.DirectionOutput,
				Type: port.TypeSpec{Kind: port.KindArray, Elem: &port.TypeSpec{Kind: port.KindNumber}}},
		},
		Exec: func(ctx context.Context, ec registry.ExecContext, in map[string]port.Value) (map[string]port.Value, error) {
			return map[string]port.Value{"out": in["value"]}, nil
		},
	}))
	require.NoError(t, reg.Register(&registry.Descriptor{
		Type:     "test.array.length",
		Category: "test",
		Ports: []port.Schema{
			{ID: "items", Direction: port.DirectionInput, Required: true,
				Type: port.TypeSpec{Kind: port.KindArray, Elem: &port.TypeSpec{Kind: port.KindNumber}}},
			numberOut("length"),
		},
		Exec: func(ctx context.Context, ec registry.ExecContext, in map[string]port.Value) (map[string]port.Value, error) {
			return map[string]port.Value{"length": port.Number(float64(len(in["items"].Array)))}, nil
		},
	}))
	return reg
}

func newTestRun(t *testing.T, g *flow.Graph, cfg Config) (*Run, *event.Subscription) {
	t.Helper()
	execID := "exec-" + t.Name()
	store := memory.Default()
	pub := event.NewPublisher(execID, store, 0, slog.Default())
	log := event.NewLog(execID, store, pub)
	sub, err := pub.Subscribe(context.Background(), 0)
	require.NoError(t, err)
	return New(execID, g, log, cfg), sub
}

// drainEvents reads until the subscription closes, which happens when the
// terminal event is published.
func drainEvents(t *testing.T, sub *event.Subscription) []event.Event {
	t.Helper()
	var events []event.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("timed out draining events, got %d so far", len(events))
		}
	}
}

func kinds(events []event.Event) []event.Kind {
	out := make([]event.Kind, len(events))
	for i, ev := range events {
		out[i] = ev.Kind
	}
	return out
}

func terminalOf(t *testing.T, events []event.Event) event.Event {
	t.Helper()
	var terminals []event.Event
	for _, ev := range events {
		if ev.Terminal() {
			terminals = append(terminals, ev)
		}
	}
	require.Len(t, terminals, 1, "expected exactly one terminal event")
	require.Equal(t, terminals[0].Seq, events[len(events)-1].Seq, "terminal event must be last")
	return terminals[0]
}

func waitDone(t *testing.T, r *Run) {
	t.Helper()
	select {
	case <-r.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish")
	}
}

func waitPaused(t *testing.T, r *Run, nodeID string) {
	t.Helper()
	require.Eventually(t, func() bool {
		s := r.Snapshot()
		return s.State == StatePaused && s.PausedNode == nodeID
	}, 5*time.Second, 2*time.Millisecond, "run did not pause at %q", nodeID)
}

func TestLinearGraphCompletes(t *testing.T) {
	reg := testRegistry(t)
	g := flow.New("g", "linear")

	a, err := flow.NewNode(reg, "test.echo", "a")
	require.NoError(t, err)
	require.NoError(t, a.Bind("value", port.Number(2)))
	b, err := flow.NewNode(reg, "test.double", "b")
	require.NoError(t, err)
	require.NoError(t, g.AddNode(a))
	require.NoError(t, g.AddNode(b))
	require.NoError(t, g.AddEdge(flow.Edge{SourceNode: "a", SourcePort: "out", TargetNode: "b", TargetPort: "value"}))

	r, sub := newTestRun(t, g, Config{})
	require.NoError(t, r.Start(context.Background()))
	waitDone(t, r)

	assert.Equal(t, StateCompleted, r.State())
	assert.Equal(t, port.Number(4), b.Values["out"])

	events := drainEvents(t, sub)
	assert.Equal(t, []event.Kind{
		event.KindNodeStarted, event.KindNodeCompleted,
		event.KindNodeStarted, event.KindNodeCompleted,
		event.KindExecutionCompleted,
	}, kinds(events))
	for i, ev := range events {
		assert.Equal(t, uint64(i+1), ev.Seq)
	}

	term := terminalOf(t, events)
	assert.Equal(t, 2, term.Payload["total"])
	assert.Equal(t, 2, term.Payload["completed"])
	assert.Equal(t, 0, term.Payload["failed"])
	assert.Equal(t, 0, term.Payload["skipped"])
}

func TestFailureIsolation(t *testing.T) {
	reg := testRegistry(t)
	g := flow.New("g", "two branches")

	a, err := flow.NewNode(reg, "test.fail", "a")
	require.NoError(t, err)
	b, err := flow.NewNode(reg, "test.double", "b")
	require.NoError(t, err)
	c, err := flow.NewNode(reg, "test.echo", "c")
	require.NoError(t, err)
	require.NoError(t, c.Bind("value", port.Number(7)))
	d, err := flow.NewNode(reg, "test.double", "d")
	require.NoError(t, err)
	for _, n := range []*flow.NodeInstance{a, b, c, d} {
		require.NoError(t, g.AddNode(n))
	}
	require.NoError(t, g.AddEdge(flow.Edge{SourceNode: "a", SourcePort: "out", TargetNode: "b", TargetPort: "value"}))
	require.NoError(t, g.AddEdge(flow.Edge{SourceNode: "c", SourcePort: "out", TargetNode: "d", TargetPort: "value"}))

	r, sub := newTestRun(t, g, Config{})
	require.NoError(t, r.Start(context.Background()))
	waitDone(t, r)

	assert.Equal(t, StateFailed, r.State())
	assert.Equal(t, flow.StatusFailed, a.Status)
	assert.Equal(t, flow.StatusSkipped, b.Status)
	assert.Equal(t, flow.StatusCompleted, c.Status)
	assert.Equal(t, flow.StatusCompleted, d.Status)
	assert.Equal(t, port.Number(14), d.Values["out"])

	events := drainEvents(t, sub)
	term := terminalOf(t, events)
	assert.Equal(t, event.KindExecutionFailed, term.Kind)
	assert.Equal(t, "nodeFailure", term.Payload["reason"])
	assert.Equal(t, 4, term.Payload["total"])
	assert.Equal(t, 2, term.Payload["completed"])
	assert.Equal(t, 1, term.Payload["failed"])
	assert.Equal(t, 1, term.Payload["skipped"])

	// skipped nodes emit no per-node events
	for _, ev := range events {
		assert.NotEqual(t, "b", ev.NodeID)
	}
}

func TestArrayLengthFlow(t *testing.T) {
	reg := testRegistry(t)
	g := flow.New("g", "array length")

	src, err := flow.NewNode(reg, "test.const.array", "src")
	require.NoError(t, err)
	require.NoError(t, src.Bind("value", port.Array(port.Number(1), port.Number(2), port.Number(3))))
	length, err := flow.NewNode(reg, "test.array.length", "len")
	require.NoError(t, err)
	require.NoError(t, g.AddNode(src))
	require.NoError(t, g.AddNode(length))
	require.NoError(t, g.AddEdge(flow.Edge{SourceNode: "src", SourcePort: "out", TargetNode: "len", TargetPort: "items"}))

	r, sub := newTestRun(t, g, Config{})
	require.NoError(t, r.Start(context.Background()))
	waitDone(t, r)

	assert.Equal(t, StateCompleted, r.State())
	assert.Equal(t, port.Number(3), length.Values["length"])

	events := drainEvents(t, sub)
	term := terminalOf(t, events)
	assert.Equal(t, event.KindExecutionCompleted, term.Kind)
}

func TestMissingOutputFailsNode(t *testing.T) {
	reg := testRegistry(t)
	g := flow.New("g", "missing output")

	a, err := flow.NewNode(reg, "test.silent", "a")
	require.NoError(t, err)
	b, err := flow.NewNode(reg, "test.double", "b")
	require.NoError(t, err)
	require.NoError(t, g.AddNode(a))
	require.NoError(t, g.AddNode(b))
	require.NoError(t, g.AddEdge(flow.Edge{SourceNode: "a", SourcePort: "out", TargetNode: "b", TargetPort: "value"}))

	r, sub := newTestRun(t, g, Config{})
	require.NoError(t, r.Start(context.Background()))
	waitDone(t, r)

	assert.Equal(t, StateFailed, r.State())
	assert.Equal(t, flow.StatusFailed, a.Status)
	assert.Equal(t, flow.StatusSkipped, b.Status)

	events := drainEvents(t, sub)
	var failed *event.Event
	for i := range events {
		if events[i].Kind == event.KindNodeFailed {
			failed = &events[i]
		}
	}
	require.NotNil(t, failed)
	assert.Equal(t, "a", failed.NodeID)
	assert.Equal(t, "output", failed.Payload["error_type"])
}

func TestNodeTimeout(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register(&registry.Descriptor{
		Type:  "test.hang",
		Ports: []port.Schema{numberOut("out")},
		Exec: func(ctx context.Context, ec registry.ExecContext, in map[string]port.Value) (map[string]port.Value, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}))

	g := flow.New("g", "timeout")
	n, err := flow.NewNode(reg, "test.hang", "n")
	require.NoError(t, err)
	require.NoError(t, g.AddNode(n))

	r, sub := newTestRun(t, g, Config{NodeTimeout: 20 * time.Millisecond})
	require.NoError(t, r.Start(context.Background()))
	waitDone(t, r)

	assert.Equal(t, StateFailed, r.State())
	assert.Equal(t, flow.StatusFailed, n.Status)

	events := drainEvents(t, sub)
	var failed *event.Event
	for i := range events {
		if events[i].Kind == event.KindNodeFailed {
			failed = &events[i]
		}
	}
	require.NotNil(t, failed)
	assert.Equal(t, "timeout", failed.Payload["error_type"])
}

func TestMaxConcurrentBound(t *testing.T) {
	var active, peak atomic.Int64
	reg := registry.New()
	require.NoError(t, reg.Register(&registry.Descriptor{
		Type:  "test.track",
		Ports: []port.Schema{numberOut("out")},
		Exec: func(ctx context.Context, ec registry.ExecContext, in map[string]port.Value) (map[string]port.Value, error) {
			cur := active.Add(1)
			defer active.Add(-1)
			for {
				old := peak.Load()
				if cur <= old || peak.CompareAndSwap(old, cur) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			return map[string]port.Value{"out": port.Number(1)}, nil
		},
	}))

	g := flow.New("g", "bounded")
	for i := 0; i < 6; i++ {
		n, err := flow.NewNode(reg, "test.track", fmt.Sprintf("n%d", i))
		require.NoError(t, err)
		require.NoError(t, g.AddNode(n))
	}

	r, _ := newTestRun(t, g, Config{MaxConcurrent: 2})
	require.NoError(t, r.Start(context.Background()))
	waitDone(t, r)

	assert.Equal(t, StateCompleted, r.State())
	assert.LessOrEqual(t, peak.Load(), int64(2))
}

func TestStructuralErrorsRejectStart(t *testing.T) {
	reg := testRegistry(t)
	g := flow.New("g", "invalid")
	n, err := flow.NewNode(reg, "test.double", "n")
	require.NoError(t, err)
	require.NoError(t, g.AddNode(n))

	r, _ := newTestRun(t, g, Config{})
	err = r.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStructural)

	var serrs *StructuralErrors
	require.ErrorAs(t, err, &serrs)
	require.Len(t, serrs.Errs, 1)
	assert.ErrorIs(t, serrs.Errs[0], flow.ErrUnmetRequiredInput)
	assert.Equal(t, StateInitializing, r.State())
}

func TestCancelBetweenNodes(t *testing.T) {
	reg := testRegistry(t)
	g := flow.New("g", "cancel")

	n1, err := flow.NewNode(reg, "test.echo", "n1")
	require.NoError(t, err)
	require.NoError(t, n1.Bind("value", port.Number(1)))
	n2, err := flow.NewNode(reg, "test.double", "n2")
	require.NoError(t, err)
	require.NoError(t, g.AddNode(n1))
	require.NoError(t, g.AddNode(n2))
	require.NoError(t, g.AddEdge(flow.Edge{SourceNode: "n1", SourcePort: "out", TargetNode: "n2", TargetPort: "value"}))

	r, sub := newTestRun(t, g, Config{Debug: true, Breakpoints: []string{"n2"}})
	require.NoError(t, r.Start(context.Background()))
	waitPaused(t, r, "n2")
	require.NoError(t, r.Cancel())
	waitDone(t, r)

	assert.Equal(t, StateCancelled, r.State())
	assert.Equal(t, flow.StatusCompleted, n1.Status)
	assert.Equal(t, flow.StatusSkipped, n2.Status)

	events := drainEvents(t, sub)
	term := terminalOf(t, events)
	assert.Equal(t, event.KindExecutionCancelled, term.Kind)
	assert.Equal(t, 1, term.Payload["completed"])
	assert.Equal(t, 1, term.Payload["skipped"])
}

func TestCancelRecordsInFlightFailure(t *testing.T) {
	reg := testRegistry(t)
	started := make(chan struct{})
	require.NoError(t, reg.Register(&registry.Descriptor{
		Type:     "test.fail.on.stop",
		Category: "test",
		Ports:    []port.Schema{numberIn("value", false), numberOut("out")},
		Exec: func(ctx context.Context, ec registry.ExecContext, in map[string]port.Value) (map[string]port.Value, error) {
			close(started)
			<-ctx.Done()
			return nil, errors.New("flush failed")
		},
	}))

	g := flow.New("g", "cancel with failure")
	n, err := flow.NewNode(reg, "test.fail.on.stop", "n1")
	require.NoError(t, err)
	require.NoError(t, g.AddNode(n))

	r, sub := newTestRun(t, g, Config{})
	require.NoError(t, r.Start(context.Background()))

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("node never started")
	}
	require.NoError(t, r.Cancel())
	waitDone(t, r)

	// The node errored on its own, not from the interruption: it settles
	// Failed, not Skipped, and the cancelled terminal counts say so.
	assert.Equal(t, StateCancelled, r.State())
	assert.Equal(t, flow.StatusFailed, n.Status)

	events := drainEvents(t, sub)
	assert.Contains(t, kinds(events), event.KindNodeFailed)
	term := terminalOf(t, events)
	assert.Equal(t, event.KindExecutionCancelled, term.Kind)
	assert.Equal(t, 1, term.Payload["failed"])
	assert.Equal(t, 0, term.Payload["completed"])
}

func TestSubgraphExecution(t *testing.T) {
	reg := testRegistry(t)

	inner := flow.New("inner", "inner")
	innerN, err := flow.NewNode(reg, "test.double", "inner-double")
	require.NoError(t, err)
	require.NoError(t, inner.AddNode(innerN))

	sg, err := flow.NewSubgraphNode("sg",
		[]port.Schema{numberIn("value", true), numberOut("result")},
		&flow.SubgraphSpec{
			Graph:   inner,
			Inputs:  map[string]flow.PortRef{"value": {Node: "inner-double", Port: "value"}},
			Outputs: map[string]flow.PortRef{"result": {Node: "inner-double", Port: "out"}},
		})
	require.NoError(t, err)

	g := flow.New("g", "outer")
	src, err := flow.NewNode(reg, "test.echo", "src")
	require.NoError(t, err)
	require.NoError(t, src.Bind("value", port.Number(5)))
	sink, err := flow.NewNode(reg, "test.double", "sink")
	require.NoError(t, err)
	require.NoError(t, g.AddNode(src))
	require.NoError(t, g.AddNode(sg))
	require.NoError(t, g.AddNode(sink))
	require.NoError(t, g.AddEdge(flow.Edge{SourceNode: "src", SourcePort: "out", TargetNode: "sg", TargetPort: "value"}))
	require.NoError(t, g.AddEdge(flow.Edge{SourceNode: "sg", SourcePort: "result", TargetNode: "sink", TargetPort: "value"}))

	r, sub := newTestRun(t, g, Config{})
	require.NoError(t, r.Start(context.Background()))
	waitDone(t, r)

	assert.Equal(t, StateCompleted, r.State())
	assert.Equal(t, port.Number(10), sg.Values["result"])
	assert.Equal(t, port.Number(20), sink.Values["out"])

	events := drainEvents(t, sub)
	term := terminalOf(t, events)
	assert.Equal(t, event.KindExecutionCompleted, term.Kind)
	// top-level counts only: src, sg, sink
	assert.Equal(t, 3, term.Payload["total"])
	assert.Equal(t, 3, term.Payload["completed"])
}

func TestCountsSettleEveryNode(t *testing.T) {
	reg := testRegistry(t)
	g := flow.New("g", "diamond with failure")

	a, err := flow.NewNode(reg, "test.echo", "a")
	require.NoError(t, err)
	require.NoError(t, a.Bind("value", port.Number(1)))
	fail, err := flow.NewNode(reg, "test.fail", "fail")
	require.NoError(t, err)
	down, err := flow.NewNode(reg, "test.double", "down")
	require.NoError(t, err)
	ok, err := flow.NewNode(reg, "test.double", "ok")
	require.NoError(t, err)
	for _, n := range []*flow.NodeInstance{a, fail, down, ok} {
		require.NoError(t, g.AddNode(n))
	}
	require.NoError(t, g.AddEdge(flow.Edge{SourceNode: "a", SourcePort: "out", TargetNode: "fail", TargetPort: "value"}))
	require.NoError(t, g.AddEdge(flow.Edge{SourceNode: "fail", SourcePort: "out", TargetNode: "down", TargetPort: "value"}))
	require.NoError(t, g.AddEdge(flow.Edge{SourceNode: "a", SourcePort: "out", TargetNode: "ok", TargetPort: "value"}))

	r, sub := newTestRun(t, g, Config{})
	require.NoError(t, r.Start(context.Background()))
	waitDone(t, r)

	events := drainEvents(t, sub)
	term := terminalOf(t, events)
	total := term.Payload["total"].(int)
	sum := term.Payload["completed"].(int) + term.Payload["failed"].(int) + term.Payload["skipped"].(int)
	assert.Equal(t, total, sum)
	snap := r.Snapshot()
	assert.Equal(t, snap.Completed+snap.Failed+snap.Skipped, snap.Total)
}
