package pipeline

import (
	"context"

	"github.com/dshills/devteam/team"
)

// Routing markers. A router returning End finishes the run; Suspend stops
// it until Resume supplies human input.
const (
	End     = "__end__"
	Suspend = "__suspend__"
)

// Node is one step of the pipeline.
type Node interface {
	Run(ctx context.Context, s team.State) NodeResult
}

// NodeResult is what a node hands back to the engine.
type NodeResult struct {
	Delta team.Delta
	// Route overrides the node's routers when set.
	Route Next
	Err   error
}

// Next is an explicit routing decision.
type Next struct {
	To       string
	Terminal bool
	Suspend  bool
}

func (n Next) target() string {
	switch {
	case n.Terminal:
		return End
	case n.Suspend:
		return Suspend
	}
	return n.To
}

// Goto routes to node id.
func Goto(id string) Next { return Next{To: id} }

// Stop ends the run.
func Stop() Next { return Next{Terminal: true} }

// NodeFunc adapts a function to Node.
type NodeFunc func(ctx context.Context, s team.State) NodeResult

// Run calls f.
func (f NodeFunc) Run(ctx context.Context, s team.State) NodeResult { return f(ctx, s) }

// DeltaFunc adapts a role or evaluator, which only ever returns a delta,
// to Node. Routing is left to the engine.
type DeltaFunc func(ctx context.Context, s team.State) team.Delta

// Run calls f.
func (f DeltaFunc) Run(ctx context.Context, s team.State) NodeResult {
	return NodeResult{Delta: f(ctx, s)}
}
