package metrics

import (
	"expvar"
)

// Event stream metrics (counters) using expvar maps keyed by store kind.
var (
	eventsAppended  = expvar.NewMap("chaingraph_events_appended_total")
	eventsReplayed  = expvar.NewMap("chaingraph_events_replayed_total")
	storeAppendErrs = expvar.NewMap("chaingraph_event_store_errors_total")
)

// Engine / scheduler metrics.
var (
	runsStarted        = new(expvar.Int)
	runsActive         = new(expvar.Int)
	nodesExecuted      = new(expvar.Int)
	nodeFailures       = new(expvar.Int)
	breakpointsHit     = new(expvar.Int)
	subscriberOverflow = new(expvar.Int)
	subscribersActive  = new(expvar.Int)
)

func init() {
	expvar.Publish("chaingraph_runs_started_total", runsStarted)
	expvar.Publish("chaingraph_runs_active", runsActive)
	expvar.Publish("chaingraph_nodes_executed_total", nodesExecuted)
	expvar.Publish("chaingraph_node_failures_total", nodeFailures)
	expvar.Publish("chaingraph_breakpoints_hit_total", breakpointsHit)
	expvar.Publish("chaingraph_subscriber_overflow_total", subscriberOverflow)
	expvar.Publish("chaingraph_subscribers_active", subscribersActive)
}

// Event stream helpers
func EventAppended(kind string)           { eventsAppended.Add(kind, 1) }
func EventsReplayed(kind string, n int64) { eventsReplayed.Add(kind, n) }
func StoreAppendError(kind string)        { storeAppendErrs.Add(kind, 1) }

// Engine/scheduler helpers
func IncRunsStarted()        { runsStarted.Add(1); runsActive.Add(1) }
func DecRunsActive()         { runsActive.Add(-1) }
func IncNodesExecuted()      { nodesExecuted.Add(1) }
func IncNodeFailures()       { nodeFailures.Add(1) }
func IncBreakpointsHit()     { breakpointsHit.Add(1) }
func IncSubscriberOverflow() { subscriberOverflow.Add(1) }
func AddSubscribersActive(n int) { subscribersActive.Add(int64(n)) }
