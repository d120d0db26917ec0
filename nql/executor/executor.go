package executor

import (
	"fmt"

	"github.com/wbrown/janus-nql/nql"
	"github.com/wbrown/janus-nql/nql/ast"
)

// Execute dispatches node against event, scoped to the per-query state
// identified by queryText, per spec §4.3. It is a pure function of its
// arguments except for the side effects spec §4.3 explicitly allows:
// updating bucket state, buffering into correlation buffers, and
// emitting derived events through the world's handler.
func (w *World) Execute(node ast.Node, queryText string, event *nql.Event) (bool, error) {
	switch n := node.(type) {
	case *ast.FilterNode:
		return n.Predicate.Eval(event.Payload), nil
	case *ast.ShowNode:
		if n.Filter == nil {
			return true, nil
		}
		return n.Filter.Eval(event.Payload), nil
	case *ast.AggregateNode:
		return w.executeAggregate(n, queryText, event)
	case *ast.CorrelateNode:
		return w.executeCorrelate(n, queryText, event)
	case *ast.PipelineNode:
		return w.executePipeline(n, queryText, event)
	default:
		return false, fmt.Errorf("executor: unknown AST node type %T", node)
	}
}

// executePipeline evaluates child stages in order against the same
// event, per spec §4.3.5: conjunction over shared state, not
// transformation. A stage that returns false stops the pipeline short
// — later stages never see an event an earlier stage rejected, so an
// aggregate or correlate stage downstream of a filter only accumulates
// events the filter actually passed. Each stage's queryText key is
// derived from the pipeline's own text so sibling stages of identical
// shape within different pipelines don't collide.
func (w *World) executePipeline(n *ast.PipelineNode, queryText string, event *nql.Event) (bool, error) {
	for i, stage := range n.Stages {
		stageKey := fmt.Sprintf("%s#%d", queryText, i)
		ok, err := w.Execute(stage, stageKey, event)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}
