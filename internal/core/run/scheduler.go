package run

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chaingraphlabs/chaingraph/internal/core/event"
	"github.com/chaingraphlabs/chaingraph/internal/core/flow"
	"github.com/chaingraphlabs/chaingraph/internal/core/port"
	"github.com/chaingraphlabs/chaingraph/internal/core/registry"
	imetrics "github.com/chaingraphlabs/chaingraph/internal/infrastructure/metrics"
)

// nodeResult carries one node's execution outcome back to its dispatcher.
type nodeResult struct {
	node *flow.NodeInstance
	outs map[string]port.Value
	err  error
}

// drive runs the top-level graph to a terminal state and emits exactly one
// terminal event. It is the run's background goroutine.
func (r *Run) drive() {
	execErr := r.execGraph(r.ctx, r.graph, 0)
	if err := r.graph.Unlock(); err != nil {
		r.logger.Error("failed to unlock graph", slog.Any("error", err))
	}
	r.finish(execErr)
}

// finish resolves the terminal state from the execution outcome and top-level
// node counts, appends the single terminal event, and releases waiters.
func (r *Run) finish(execErr error) {
	r.mu.Lock()
	cancelled := r.cancelRequested
	counts := r.counts
	r.mu.Unlock()

	payload := map[string]any{
		"total":     r.graph.Len(),
		"completed": counts.completed,
		"failed":    counts.failed,
		"skipped":   counts.skipped,
	}

	var state State
	var kind event.Kind
	switch {
	case cancelled || errors.Is(execErr, context.Canceled):
		state, kind = StateCancelled, event.KindExecutionCancelled
	case execErr != nil:
		state, kind = StateFailed, event.KindExecutionFailed
		payload["reason"] = "internal"
		payload["error"] = execErr.Error()
	case counts.failed > 0:
		state, kind = StateFailed, event.KindExecutionFailed
		payload["reason"] = "nodeFailure"
	default:
		state, kind = StateCompleted, event.KindExecutionCompleted
	}

	r.appendEvent(kind, "", payload)

	r.mu.Lock()
	r.state = state
	r.finishedAt = time.Now().UTC()
	r.cond.Broadcast()
	r.mu.Unlock()

	r.cancel()
	imetrics.DecRunsActive()
	close(r.done)

	r.logger.Info("run finished",
		slog.String("state", string(state)),
		slog.Int("completed", counts.completed),
		slog.Int("failed", counts.failed),
		slog.Int("skipped", counts.skipped))
}

// execGraph is the dispatcher loop for one graph at one nesting depth. The
// top-level graph runs at depth 0; each nested sub-graph runs its own
// dispatcher at depth+1. Workers acquire admission slots from the shared
// run-wide semaphore, so total in-flight function nodes stay bounded across
// all depths.
func (r *Run) execGraph(ctx context.Context, g *flow.Graph, depth int) error {
	order := g.Order()
	pendingEdges := make(map[string]int, len(order))
	for _, id := range order {
		pendingEdges[id] = len(g.InEdges(id))
	}
	for _, id := range order {
		if pendingEdges[id] != 0 {
			continue
		}
		n, err := g.Node(id)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInternal, err)
		}
		if err := r.markReady(n); err != nil {
			return err
		}
	}

	// Buffered to graph size so workers never block on result delivery.
	results := make(chan nodeResult, len(order))
	inflight := 0

	for {
		if ctx.Err() != nil {
			return r.drainCancelled(g, results, inflight, depth)
		}

		launched, err := r.launchReady(ctx, g, depth, results)
		inflight += launched
		if err != nil {
			if ctx.Err() != nil {
				return r.drainCancelled(g, results, inflight, depth)
			}
			return err
		}

		if inflight == 0 {
			if !allSettled(g) {
				return fmt.Errorf("%w: unsettled nodes remain with no runnable work in graph %q", ErrInternal, g.ID)
			}
			return nil
		}

		select {
		case res := <-results:
			inflight--
			if err := r.handleResult(g, res, depth, pendingEdges); err != nil {
				return err
			}
		case <-ctx.Done():
			return r.drainCancelled(g, results, inflight, depth)
		}
	}
}

// launchReady walks nodes in insertion order and launches every Ready one,
// passing each through the debug gate and, for function nodes, the admission
// semaphore. Insertion order makes launch order deterministic for a given
// graph and readiness set.
func (r *Run) launchReady(ctx context.Context, g *flow.Graph, depth int, results chan<- nodeResult) (int, error) {
	launched := 0
	for _, id := range g.Order() {
		n, err := g.Node(id)
		if err != nil {
			return launched, fmt.Errorf("%w: %v", ErrInternal, err)
		}
		if n.Status != flow.StatusReady {
			continue
		}
		if err := r.debugGate(ctx, id, depth); err != nil {
			return launched, err
		}
		if n.Descriptor.Kind == registry.NodeKindFunction {
			select {
			case r.admission <- struct{}{}:
			case <-ctx.Done():
				return launched, ctx.Err()
			}
		}
		r.setNodeStatus(n, flow.StatusRunning, depth)
		r.appendEvent(event.KindNodeStarted, id, map[string]any{"depth": depth})
		go r.execNode(ctx, n, depth, results)
		launched++
	}
	return launched, nil
}

// markReady transitions a node whose incoming edges have all delivered.
// Required inputs must be bound at this point; structural validation
// guarantees it, so a violation here is an internal invariant failure.
func (r *Run) markReady(n *flow.NodeInstance) error {
	if n.Status != flow.StatusPending {
		if n.Status == flow.StatusSkipped {
			return nil
		}
		return fmt.Errorf("%w: node %q ready-transition from %s", ErrInternal, n.ID, n.Status)
	}
	for _, p := range n.Descriptor.Inputs() {
		if !p.Required {
			continue
		}
		if _, ok := n.Values[p.ID]; !ok {
			return fmt.Errorf("%w: node %q is ready with unbound required input %q", ErrInternal, n.ID, p.ID)
		}
	}
	n.Status = flow.StatusReady
	return nil
}

// debugGate blocks a node launch while the run should be paused. Several
// dispatchers may be gated at once (outer graph plus nested sub-graphs);
// each pause sets the run's paused position and a resume command releases
// exactly the commanded node, re-gating the rest.
func (r *Run) debugGate(ctx context.Context, nodeID string, depth int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		reason := r.pauseReasonLocked(nodeID, depth)
		if reason == "" {
			if r.resumedNode == nodeID {
				r.resumedNode = ""
			}
			return nil
		}

		r.state = StatePaused
		r.pausedNode = nodeID
		r.pausedDepth = depth
		r.stepMode = StepNone
		r.mu.Unlock()

		imetrics.IncBreakpointsHit()
		r.appendEvent(event.KindBreakpointHit, nodeID, map[string]any{
			"reason": reason,
			"depth":  depth,
		})

		r.mu.Lock()
		for r.state == StatePaused && ctx.Err() == nil {
			r.cond.Wait()
		}
	}
}

// pauseReasonLocked decides whether the launch of nodeID at depth must
// pause, and why. Caller holds r.mu.
func (r *Run) pauseReasonLocked(nodeID string, depth int) string {
	if r.pauseRequested {
		r.pauseRequested = false
		return "pause"
	}
	if !r.cfg.Debug || r.resumedNode == nodeID {
		return ""
	}
	if _, ok := r.breakpoints[nodeID]; ok {
		return "breakpoint"
	}
	switch r.stepMode {
	case StepOver:
		if depth <= r.stepDepth {
			return "step"
		}
	case StepInto:
		return "step"
	case StepOut:
		if depth < r.stepDepth {
			return "step"
		}
	}
	return ""
}

// execNode runs one node in a worker goroutine and reports its outcome.
// Function nodes hold an admission slot acquired by the dispatcher; the slot
// is released after the result is enqueued. Sub-graph nodes hold no slot, so
// their inner function nodes can always make progress.
func (r *Run) execNode(ctx context.Context, n *flow.NodeInstance, depth int, results chan<- nodeResult) {
	if n.Descriptor.Kind == registry.NodeKindSubgraph {
		outs, err := r.execSubgraph(ctx, n, depth)
		results <- nodeResult{node: n, outs: outs, err: err}
		return
	}
	defer func() { <-r.admission }()

	execCtx := ctx
	if r.cfg.NodeTimeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, r.cfg.NodeTimeout)
		defer cancel()
	}

	in := make(map[string]port.Value, len(n.Values))
	for _, p := range n.Descriptor.Inputs() {
		if v, ok := n.Values[p.ID]; ok {
			in[p.ID] = v
		}
	}
	ec := registry.ExecContext{
		ExecutionID: r.id,
		NodeID:      n.ID,
		Principal:   r.cfg.Principal,
		Decryptor:   r.cfg.Decryptor,
		Logger:      r.logger.With(slog.String("node_id", n.ID)),
	}
	outs, err := n.Descriptor.Exec(execCtx, ec, in)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		err = fmt.Errorf("%w after %s", ErrNodeTimeout, r.cfg.NodeTimeout)
	}
	results <- nodeResult{node: n, outs: outs, err: err}
}

// execSubgraph binds the node's input values onto the mapped inner ports,
// runs the inner graph with its own dispatcher one level deeper, and
// collects the mapped inner outputs. Any inner node failure fails the
// sub-graph node itself.
func (r *Run) execSubgraph(ctx context.Context, n *flow.NodeInstance, depth int) (map[string]port.Value, error) {
	spec := n.Subgraph
	for portID, ref := range spec.Inputs {
		v, ok := n.Values[portID]
		if !ok {
			continue
		}
		inner, err := spec.Graph.Node(ref.Node)
		if err != nil {
			return nil, fmt.Errorf("%w: sub-graph input %q maps to missing node: %v", ErrInternal, portID, err)
		}
		if err := inner.Bind(ref.Port, v); err != nil {
			return nil, fmt.Errorf("sub-graph input %q: %w", portID, err)
		}
	}

	// Inner structural validation is deferred to execution time because
	// inner required inputs may only be satisfiable through the node's
	// input mapping, bound just above.
	if errs := spec.Graph.Validate(); len(errs) > 0 {
		return nil, &StructuralErrors{Errs: errs}
	}
	if err := spec.Graph.Lock(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	execErr := r.execGraph(ctx, spec.Graph, depth+1)
	if err := spec.Graph.Unlock(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if execErr != nil {
		return nil, execErr
	}

	for _, id := range spec.Graph.Order() {
		inner, err := spec.Graph.Node(id)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInternal, err)
		}
		if inner.Status == flow.StatusFailed {
			return nil, fmt.Errorf("inner node %q failed", id)
		}
	}

	outs := make(map[string]port.Value, len(spec.Outputs))
	for portID, ref := range spec.Outputs {
		inner, err := spec.Graph.Node(ref.Node)
		if err != nil {
			return nil, fmt.Errorf("%w: sub-graph output %q maps to missing node: %v", ErrInternal, portID, err)
		}
		v, ok := inner.Values[ref.Port]
		if !ok {
			return nil, fmt.Errorf("%w: sub-graph output %q", ErrMissingOutput, portID)
		}
		outs[portID] = v
	}
	return outs, nil
}

// handleResult settles one finished node: validates its outputs against the
// declared schemas, propagates values along out-edges, marks downstream
// readiness, and on failure cascades Skipped over transitive dependents.
func (r *Run) handleResult(g *flow.Graph, res nodeResult, depth int, pendingEdges map[string]int) error {
	n := res.node
	if n.Status != flow.StatusRunning {
		return fmt.Errorf("%w: result for node %q in state %s", ErrInternal, n.ID, n.Status)
	}
	if res.err != nil {
		if errors.Is(res.err, ErrInternal) || errors.Is(res.err, context.Canceled) {
			return res.err
		}
		r.failNode(g, n, res.err, depth)
		return nil
	}

	validated := make(map[string]port.Value, len(res.outs))
	for id, v := range res.outs {
		s, ok := n.PortSchema(id)
		if !ok || s.Direction != port.DirectionOutput {
			r.failNode(g, n, fmt.Errorf("%w: produced undeclared output %q", port.ErrUndeclaredField, id), depth)
			return nil
		}
		vv, err := port.Validate(s, v)
		if err != nil {
			r.failNode(g, n, fmt.Errorf("output %q: %w", id, err), depth)
			return nil
		}
		validated[id] = vv
	}
	// Every connected output port must have produced a value.
	for _, e := range g.OutEdges(n.ID) {
		if _, ok := validated[e.SourcePort]; !ok {
			r.failNode(g, n, fmt.Errorf("%w: %q feeds %s.%s", ErrMissingOutput, e.SourcePort, e.TargetNode, e.TargetPort), depth)
			return nil
		}
	}

	for id, v := range validated {
		n.Values[id] = v
	}
	r.setNodeStatus(n, flow.StatusCompleted, depth)
	imetrics.IncNodesExecuted()
	r.appendEvent(event.KindNodeCompleted, n.ID, map[string]any{"outputs": outputPayload(validated)})

	for _, e := range g.OutEdges(n.ID) {
		tgt, err := g.Node(e.TargetNode)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInternal, err)
		}
		pendingEdges[e.TargetNode]--
		if tgt.Status.Terminal() {
			continue
		}
		if err := tgt.Bind(e.TargetPort, n.Values[e.SourcePort]); err != nil {
			// Edge typing was checked structurally; a bind failure here
			// means the invariant broke.
			return fmt.Errorf("%w: propagation %s.%s -> %s.%s: %v",
				ErrInternal, n.ID, e.SourcePort, e.TargetNode, e.TargetPort, err)
		}
		if pendingEdges[e.TargetNode] == 0 && tgt.Status == flow.StatusPending {
			if err := r.markReady(tgt); err != nil {
				return err
			}
		}
	}
	return nil
}

// failNode marks a node Failed, emits nodeFailed, and skips its transitive
// dependents. The run continues with unaffected branches.
func (r *Run) failNode(g *flow.Graph, n *flow.NodeInstance, cause error, depth int) {
	r.setNodeStatus(n, flow.StatusFailed, depth)
	imetrics.IncNodeFailures()

	errType := "execution"
	switch {
	case errors.Is(cause, ErrNodeTimeout):
		errType = "timeout"
	case errors.Is(cause, port.ErrUnauthorized):
		errType = "authorization"
	case errors.Is(cause, ErrStructural):
		errType = "structural"
	case errors.Is(cause, port.ErrTypeMismatch) || errors.Is(cause, port.ErrNotCoercible) ||
		errors.Is(cause, port.ErrInvalidValue) || errors.Is(cause, port.ErrMissingField) ||
		errors.Is(cause, port.ErrUndeclaredField) || errors.Is(cause, ErrMissingOutput):
		errType = "output"
	}
	r.appendEvent(event.KindNodeFailed, n.ID, map[string]any{
		"error":      cause.Error(),
		"error_type": errType,
	})
	r.skipDependents(g, n.ID, depth)
}

// skipDependents walks out-edges transitively from rootID and marks every
// not-yet-settled node Skipped. Skipped nodes emit no per-node events; they
// surface in the terminal event counts.
func (r *Run) skipDependents(g *flow.Graph, rootID string, depth int) {
	stack := []string{rootID}
	seen := map[string]bool{rootID: true}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, e := range g.OutEdges(cur) {
			if seen[e.TargetNode] {
				continue
			}
			seen[e.TargetNode] = true
			n, err := g.Node(e.TargetNode)
			if err == nil && (n.Status == flow.StatusPending || n.Status == flow.StatusReady) {
				r.setNodeStatus(n, flow.StatusSkipped, depth)
			}
			stack = append(stack, e.TargetNode)
		}
	}
}

// drainCancelled settles a cancelled graph: waits for in-flight workers,
// records nodes that still finished as Completed, interrupted ones as
// Skipped, and genuine failures as Failed, then skips everything not yet
// settled.
func (r *Run) drainCancelled(g *flow.Graph, results <-chan nodeResult, inflight, depth int) error {
	for inflight > 0 {
		res := <-results
		inflight--
		if res.err != nil {
			// Cancellation interrupted the node; anything else is a real
			// failure and must stay visible in the terminal counts.
			if errors.Is(res.err, context.Canceled) || errors.Is(res.err, context.DeadlineExceeded) {
				r.setNodeStatus(res.node, flow.StatusSkipped, depth)
			} else {
				r.failNode(g, res.node, res.err, depth)
			}
			continue
		}
		for id, v := range res.outs {
			if s, ok := res.node.PortSchema(id); ok && s.Direction == port.DirectionOutput {
				res.node.Values[id] = v
			}
		}
		r.setNodeStatus(res.node, flow.StatusCompleted, depth)
	}
	for _, id := range g.Order() {
		n, err := g.Node(id)
		if err != nil {
			continue
		}
		if !n.Status.Terminal() {
			r.setNodeStatus(n, flow.StatusSkipped, depth)
		}
	}
	return context.Canceled
}

// appendEvent appends to the run's event log, logging append failures
// instead of aborting: the run outcome must not depend on log durability.
func (r *Run) appendEvent(kind event.Kind, nodeID string, payload map[string]any) {
	if _, err := r.log.Append(context.Background(), kind, nodeID, payload); err != nil {
		r.logger.Error("failed to append event",
			slog.String("kind", string(kind)),
			slog.String("node_id", nodeID),
			slog.Any("error", err))
	}
}

func allSettled(g *flow.Graph) bool {
	for _, id := range g.Order() {
		n, err := g.Node(id)
		if err != nil || !n.Status.Terminal() {
			return false
		}
	}
	return true
}

// outputPayload renders port values for event payloads, masking secrets.
func outputPayload(outs map[string]port.Value) map[string]any {
	out := make(map[string]any, len(outs))
	for id, v := range outs {
		out[id] = v.Redacted()
	}
	return out
}
