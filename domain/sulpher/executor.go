package sulpher

import (
	"fmt"

	"go.uber.org/zap"

	"rserv/domain/document"
	"rserv/domain/graph"
)

// Cycle policies.
const (
	CycleError   = "error"
	CycleWarn    = "warn"
	CycleIgnore  = "ignore"
	CycleDisable = "disable"
)

// Options bound a traversal.
type Options struct {
	MaxDepth    int
	CyclePolicy string
}

// Stats is reported per executed query.
type Stats struct {
	NodesTraversed int
}

// Row is one result record, keyed by the RETURN item text.
type Row map[string]interface{}

// TraversalCycleError aborts a traversal under the error policy.
type TraversalCycleError struct {
	NodeID string
}

func (e *TraversalCycleError) Error() string {
	return fmt.Sprintf("cycle detected at node %s", e.NodeID)
}

// binding maps pattern variables to node ids along one enumerated path.
type binding map[string]string

// Execute runs a plan against a read snapshot of the overlay. The snapshot
// stays locked for the whole run; the caller releases it.
func Execute(snap *graph.Snapshot, plan *Plan, opts Options, logger *zap.Logger) ([]Row, Stats, error) {
	e := &executor{snap: snap, plan: plan, opts: opts, logger: logger}
	if e.opts.MaxDepth <= 0 {
		e.opts.MaxDepth = len(plan.Path)
	}

	bindings, err := e.enumerate()
	if err != nil {
		return nil, e.stats, err
	}

	var surviving []binding
	for _, b := range bindings {
		if e.passesWhere(b) {
			surviving = append(surviving, b)
		}
	}

	rows := e.project(surviving)
	return rows, e.stats, nil
}

type executor struct {
	snap   *graph.Snapshot
	plan   *Plan
	opts   Options
	logger *zap.Logger
	stats  Stats
}

// path is one partial traversal state.
type path struct {
	bound   binding
	current string
	step    int // index of the next pattern step to satisfy
	visited map[string]struct{}
}

func (e *executor) enumerate() ([]binding, error) {
	starts := e.startNodes()

	var complete []binding
	for _, start := range starts {
		e.stats.NodesTraversed++
		p := &path{
			bound:   binding{},
			current: start,
			step:    1,
			visited: map[string]struct{}{start: {}},
		}
		e.bind(p.bound, e.plan.Path[0].Node.Var, start)

		var (
			results []binding
			err     error
		)
		if e.plan.Algorithm == AlgorithmDFS {
			results, err = e.dfs(p)
		} else {
			results, err = e.bfs(p)
		}
		if err != nil {
			return nil, err
		}
		complete = append(complete, results...)
	}
	return complete, nil
}

func (e *executor) bind(b binding, variable, nodeID string) {
	if variable != "" {
		b[variable] = nodeID
	}
}

// startNodes selects candidate start nodes. With the inverted index available
// and a typed first pattern, candidates come from the index; otherwise every
// node is tested. Property constraints are always re-checked against the node.
func (e *executor) startNodes() []string {
	first := e.plan.Path[0].Node

	var candidates []string
	if e.snap.Indexed() && first.Type != "" {
		set := e.snap.IndexSet(first.Type)
		// Preserve insertion order for determinism.
		for _, nodeID := range e.snap.NodeIDs() {
			if _, ok := set[nodeID]; ok {
				candidates = append(candidates, nodeID)
			}
		}
	} else {
		candidates = e.snap.NodeIDs()
	}

	var starts []string
	for _, nodeID := range candidates {
		if e.matchNode(nodeID, first) {
			starts = append(starts, nodeID)
		}
	}
	return starts
}

func (e *executor) matchNode(nodeID string, pattern NodePattern) bool {
	node, ok := e.snap.Node(nodeID)
	if !ok {
		return false
	}
	if pattern.Type != "" && node.Type != pattern.Type {
		return false
	}
	for key, want := range pattern.Props {
		got, ok := node.Properties[key]
		if !ok || !document.Equals(got, want) {
			return false
		}
	}
	return true
}

// matchEdge tests an edge against the inbound relationship pattern. An
// untyped pattern matches any forward edge; the stored companion edges only
// match when named explicitly. Edges carry no properties, so any property
// constraint rules the edge out.
func (e *executor) matchEdge(edge graph.Edge, pattern RelPattern) bool {
	if len(pattern.Props) > 0 {
		return false
	}
	if pattern.Type != "" {
		return edge.Label == pattern.Type
	}
	return !graph.IsReverse(edge.Label)
}

// expand lists the targets reachable from p that satisfy the next step.
// Cycle handling is a depth-first concern: DFS checks the per-path visited
// set and applies the policy, while BFS enumerates revisiting paths freely
// up to the depth bound and never raises.
func (e *executor) expand(p *path) ([]string, error) {
	step := e.plan.Path[p.step]

	var targets []string
	for _, edge := range e.snap.Outgoing(p.current) {
		if !e.matchEdge(edge, step.Rel) {
			continue
		}
		if e.plan.Algorithm == AlgorithmDFS {
			if _, seen := p.visited[edge.Target]; seen {
				switch e.opts.CyclePolicy {
				case CycleError:
					return nil, &TraversalCycleError{NodeID: edge.Target}
				case CycleWarn:
					e.logger.Warn("Cycle detected during traversal",
						zap.String("node_id", edge.Target),
					)
				}
				continue
			}
		}
		if !e.matchNode(edge.Target, step.Node) {
			continue
		}
		targets = append(targets, edge.Target)
	}
	return targets, nil
}

func (e *executor) advance(p *path, target string) *path {
	next := &path{
		bound:   make(binding, len(p.bound)+1),
		current: target,
		step:    p.step + 1,
		visited: make(map[string]struct{}, len(p.visited)+1),
	}
	for k, v := range p.bound {
		next.bound[k] = v
	}
	for k := range p.visited {
		next.visited[k] = struct{}{}
	}
	next.visited[target] = struct{}{}
	e.bind(next.bound, e.plan.Path[p.step].Node.Var, target)
	return next
}

func (e *executor) bfs(start *path) ([]binding, error) {
	var complete []binding
	queue := []*path{start}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]

		if p.step >= len(e.plan.Path) {
			complete = append(complete, p.bound)
			continue
		}
		if p.step > e.opts.MaxDepth {
			continue
		}

		targets, err := e.expand(p)
		if err != nil {
			return nil, err
		}
		for _, target := range targets {
			e.stats.NodesTraversed++
			queue = append(queue, e.advance(p, target))
		}
	}
	return complete, nil
}

func (e *executor) dfs(p *path) ([]binding, error) {
	if p.step >= len(e.plan.Path) {
		return []binding{p.bound}, nil
	}
	if p.step > e.opts.MaxDepth {
		return nil, nil
	}

	targets, err := e.expand(p)
	if err != nil {
		return nil, err
	}
	var complete []binding
	for _, target := range targets {
		e.stats.NodesTraversed++
		results, err := e.dfs(e.advance(p, target))
		if err != nil {
			return nil, err
		}
		complete = append(complete, results...)
	}
	return complete, nil
}

// passesWhere evaluates every condition against the binding. An unbound
// variable, a missing property, or a type mismatch makes the condition false.
func (e *executor) passesWhere(b binding) bool {
	for _, cond := range e.plan.Where {
		nodeID, ok := b[cond.Variable]
		if !ok {
			return false
		}
		node, ok := e.snap.Node(nodeID)
		if !ok {
			return false
		}
		got, ok := node.Properties[cond.Property]
		if !ok {
			return false
		}
		if !evalCondition(got, cond.Operator, cond.Value) {
			return false
		}
	}
	return true
}

func evalCondition(got document.Value, op string, want document.Value) bool {
	switch op {
	case "=":
		return document.Equals(got, want)
	case "!=":
		return !document.Equals(got, want)
	}
	cmp, ok := document.Compare(got, want)
	if !ok {
		return false
	}
	switch op {
	case "<":
		return cmp < 0
	case ">":
		return cmp > 0
	case "<=":
		return cmp <= 0
	case ">=":
		return cmp >= 0
	}
	return false
}

// project renders the RETURN clause. Aggregates are computed once across all
// surviving bindings and repeated per row.
func (e *executor) project(bindings []binding) []Row {
	aggregated := make(map[string]interface{})
	for _, item := range e.plan.Return {
		if item.Aggregate != "" {
			aggregated[item.Text] = e.aggregate(item, bindings)
		}
	}

	rows := make([]Row, 0, len(bindings))
	for _, b := range bindings {
		row := Row{}
		for _, item := range e.plan.Return {
			switch {
			case item.Aggregate != "":
				row[item.Text] = aggregated[item.Text]
			case item.Prop != "":
				row[item.Text] = e.property(b, item.Var, item.Prop)
			default:
				if nodeID, ok := b[item.Var]; ok {
					row[item.Text] = nodeID
				} else {
					row[item.Text] = nil
				}
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func (e *executor) property(b binding, variable, prop string) interface{} {
	nodeID, ok := b[variable]
	if !ok {
		return nil
	}
	node, ok := e.snap.Node(nodeID)
	if !ok {
		return nil
	}
	val, ok := node.Properties[prop]
	if !ok {
		return nil
	}
	return val
}

// aggregate computes one aggregate item over all surviving bindings. With a
// property argument it aggregates that property's values; with a bare
// variable it aggregates over the bound node ids.
func (e *executor) aggregate(item ReturnItem, bindings []binding) interface{} {
	var values []interface{}
	for _, b := range bindings {
		if item.Prop != "" {
			values = append(values, e.property(b, item.Var, item.Prop))
		} else if nodeID, ok := b[item.Var]; ok {
			values = append(values, nodeID)
		} else {
			values = append(values, nil)
		}
	}

	switch item.Aggregate {
	case "COUNT":
		count := 0
		for _, v := range values {
			if !isNullValue(v) {
				count++
			}
		}
		return count
	case "SUM", "AVG":
		sum := 0.0
		numeric := 0
		for _, v := range values {
			if f, ok := numericValue(v); ok {
				sum += f
				numeric++
			}
		}
		if item.Aggregate == "SUM" {
			return sum
		}
		if numeric == 0 {
			return nil
		}
		return sum / float64(numeric)
	case "MIN", "MAX":
		return extremum(values, item.Aggregate == "MAX")
	}
	return nil
}

func isNullValue(v interface{}) bool {
	if v == nil {
		return true
	}
	if val, ok := v.(document.Value); ok {
		return val.IsNull()
	}
	return false
}

func numericValue(v interface{}) (float64, bool) {
	if val, ok := v.(document.Value); ok {
		return val.Numeric()
	}
	return 0, false
}

func extremum(values []interface{}, max bool) interface{} {
	var best interface{}
	var bestVal document.Value
	haveBest := false

	for _, v := range values {
		if isNullValue(v) {
			continue
		}
		var val document.Value
		switch t := v.(type) {
		case document.Value:
			val = t
		case string:
			val = document.String(t)
		default:
			continue
		}
		if !haveBest {
			best, bestVal, haveBest = v, val, true
			continue
		}
		cmp := document.SortCompare(val, bestVal)
		if (max && cmp > 0) || (!max && cmp < 0) {
			best, bestVal = v, val
		}
	}
	return best
}
