package sop

import (
	"sort"
	"strconv"

	"github.com/procdocs/sopgen/internal/bpmn"
)

// targetKind classifies the resolved destination of an outgoing flow.
type targetKind string

const (
	kindTask         targetKind = "task"
	kindGateway      targetKind = "gateway"
	kindSubprocess   targetKind = "subprocess"
	kindEnd          targetKind = "end"
	kindIntermediate targetKind = "intermediate"
)

// target is one resolved outgoing edge: for tasks Value is the step number,
// for end events the end name, otherwise the element ID.
type target struct {
	Kind  targetKind
	Value string
	Label string // flow name (branch condition label)
}

// generator walks one immutable model. It holds no state beyond the model
// and the memoized start-event numbering, so a fresh generator per call
// keeps concurrent invocations independent.
type generator struct {
	m         *bpmn.Model
	startNums map[string]int
}

func newGenerator(m *bpmn.Model) *generator {
	return &generator{m: m, startNums: startEventNumbers(m)}
}

func num(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// outgoingOf returns the outgoing flow IDs of any known element.
func (g *generator) outgoingOf(id string) []string {
	if t, ok := g.m.Tasks[id]; ok {
		return t.Outgoing
	}
	if gw, ok := g.m.Gateways[id]; ok {
		return gw.Outgoing
	}
	if sp, ok := g.m.Subprocesses[id]; ok {
		return sp.Outgoing
	}
	if ev, ok := g.m.Events[id]; ok {
		return ev.Outgoing
	}
	return nil
}

// targetsOf resolves every outgoing flow of an element. Flows pointing at
// unknown elements are skipped rather than failing the document; tasks
// without a step number are skipped too (they never appear in routing text).
func (g *generator) targetsOf(id string) []target {
	var targets []target
	for _, flowID := range g.outgoingOf(id) {
		flow, ok := g.m.Flows[flowID]
		if !ok {
			continue
		}
		switch {
		case g.m.Tasks[flow.Target] != nil:
			if n := g.m.Tasks[flow.Target].Number; n != "" {
				targets = append(targets, target{Kind: kindTask, Value: n, Label: flow.Name})
			}
		case g.m.Gateways[flow.Target] != nil:
			targets = append(targets, target{Kind: kindGateway, Value: flow.Target, Label: flow.Name})
		case g.m.Subprocesses[flow.Target] != nil:
			targets = append(targets, target{Kind: kindSubprocess, Value: flow.Target, Label: flow.Name})
		case g.m.Events[flow.Target] != nil:
			ev := g.m.Events[flow.Target]
			switch ev.Type {
			case bpmn.EventEnd:
				name := ev.Name
				if name == "" {
					name = "Process Complete"
				}
				targets = append(targets, target{Kind: kindEnd, Value: name, Label: flow.Name})
			case bpmn.EventIntermediate:
				targets = append(targets, target{Kind: kindIntermediate, Value: flow.Target, Label: flow.Name})
			}
		}
	}
	return targets
}

// nearestTaskForward finds the first numbered task reachable from an
// element, tracing forward through gateways and intermediate events only.
// Returns "" when no numbered task is reachable. The visited set guards
// against cycles; relative flow order decides ties.
func (g *generator) nearestTaskForward(id string, visited map[string]bool) string {
	if visited[id] {
		return ""
	}
	visited[id] = true

	var outgoing []string
	if ev, ok := g.m.Events[id]; ok {
		outgoing = ev.Outgoing
	} else if gw, ok := g.m.Gateways[id]; ok {
		outgoing = gw.Outgoing
	}

	for _, flowID := range outgoing {
		flow, ok := g.m.Flows[flowID]
		if !ok {
			continue
		}
		if t, ok := g.m.Tasks[flow.Target]; ok && t.Number != "" {
			return t.Number
		}
		if g.m.Gateways[flow.Target] != nil || g.m.Events[flow.Target] != nil {
			if n := g.nearestTaskForward(flow.Target, visited); n != "" {
				return n
			}
		}
	}
	return ""
}

// traceBackToSplit walks backward from an element while the path has a
// single incoming edge and the node is a task or gateway. It stops at the
// first split gateway (1 in, >1 out) and returns its ID and type; it gives
// up at joins, dead ends, and cycles.
func (g *generator) traceBackToSplit(id string, visited map[string]bool) (string, bpmn.GatewayType, bool) {
	if visited[id] {
		return "", "", false
	}
	visited[id] = true

	var incoming []string
	if gw, ok := g.m.Gateways[id]; ok {
		if gw.IsSplit() {
			return id, gw.Type, true
		}
		incoming = gw.Incoming
	} else if t, ok := g.m.Tasks[id]; ok {
		incoming = t.Incoming
	} else {
		return "", "", false
	}

	// Joins are a boundary: converging paths are not traced through.
	if len(incoming) != 1 {
		return "", "", false
	}
	flow, ok := g.m.Flows[incoming[0]]
	if !ok {
		return "", "", false
	}
	return g.traceBackToSplit(flow.Source, visited)
}

// traceGatewayToTask walks backward through a chain of gateways to the
// first numbered task feeding it. Used when a join's feeder is itself a
// gateway rather than a task.
func (g *generator) traceGatewayToTask(gatewayID string, visited map[string]bool) string {
	if visited[gatewayID] {
		return ""
	}
	visited[gatewayID] = true

	gw, ok := g.m.Gateways[gatewayID]
	if !ok {
		return ""
	}
	for _, flowID := range gw.Incoming {
		flow, ok := g.m.Flows[flowID]
		if !ok {
			continue
		}
		if t, ok := g.m.Tasks[flow.Source]; ok && t.Number != "" {
			return t.Number
		}
		if g.m.Gateways[flow.Source] != nil {
			if n := g.traceGatewayToTask(flow.Source, visited); n != "" {
				return n
			}
		}
	}
	return ""
}

// startEventNumbers assigns "Input N" numbers to start events, ordered by
// the step number of the first task each one reaches (events that reach no
// task sort last), stable by document order within the same step.
func startEventNumbers(m *bpmn.Model) map[string]int {
	g := &generator{m: m}

	type entry struct {
		id   string
		step int
	}
	var entries []entry
	for _, id := range m.EventOrder {
		ev := m.Events[id]
		if ev == nil || ev.Type != bpmn.EventStart {
			continue
		}
		step := 9999
		if n := g.nearestTaskForward(id, map[string]bool{}); n != "" {
			step = num(n)
		}
		entries = append(entries, entry{id: id, step: step})
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].step < entries[j].step })

	numbers := make(map[string]int, len(entries))
	for i, e := range entries {
		numbers[e.id] = i + 1
	}
	return numbers
}
