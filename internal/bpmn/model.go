package bpmn

import (
	"regexp"
	"strings"

	"github.com/procdocs/sopgen/pkg/schema"
)

// GatewayType classifies a gateway's branching semantics.
type GatewayType string

const (
	GatewayXOR GatewayType = "XOR" // exclusive: one path fires
	GatewayAND GatewayType = "AND" // parallel: all paths fire
	GatewayOR  GatewayType = "OR"  // inclusive: one or more paths fire
)

// EventType classifies a (non-boundary) event.
type EventType string

const (
	EventStart        EventType = "start"
	EventEnd          EventType = "end"
	EventIntermediate EventType = "intermediate"
)

// BoundaryKind classifies the event definition attached to a boundary event.
type BoundaryKind string

const (
	BoundaryTimer   BoundaryKind = "timer"
	BoundaryMessage BoundaryKind = "message"
	BoundarySignal  BoundaryKind = "signal"
	BoundaryError   BoundaryKind = "error"
	BoundaryOther   BoundaryKind = ""
)

// Task is any activity node (task, userTask, serviceTask, callActivity, ...).
// Number is the raw numeric prefix of the name ("12. Do X" → "12"); empty for
// unnumbered tasks, which are excluded from SOP output but still traversable.
type Task struct {
	ID            string
	Name          string
	Label         string // name with the step prefix and embedded newlines removed
	Number        string
	LaneID        string
	LaneName      string // combining marks stripped
	Incoming      []string
	Outgoing      []string
	Documentation string
	SLA           string
}

// Gateway is a branching/merging node.
// A split has exactly one incoming and more than one outgoing flow; a join
// has more than one incoming. A gateway can be both and is handled as a split.
type Gateway struct {
	ID       string
	Type     GatewayType
	Incoming []string
	Outgoing []string
}

// IsSplit reports whether g is a split (1 in, >1 out).
func (g *Gateway) IsSplit() bool {
	return len(g.Incoming) == 1 && len(g.Outgoing) > 1
}

// IsJoin reports whether g is a join (>1 in).
func (g *Gateway) IsJoin() bool {
	return len(g.Incoming) > 1
}

// Flow is a sequence flow edge. Name carries the branch condition label;
// Documentation carries the branch explanation.
type Flow struct {
	ID            string
	Source        string
	Target        string
	Name          string
	Documentation string
}

// Lane is a pool subdivision owning RACI assignments and member elements.
type Lane struct {
	ID      string
	Name    string
	RACI    schema.RACI
	Members []string
}

// Subprocess is a collapsed subprocess node. It never gets a step number;
// it renders as routing text on the preceding task.
type Subprocess struct {
	ID       string
	Name     string
	Incoming []string
	Outgoing []string
}

// Event is a start, end, or intermediate event.
type Event struct {
	ID       string
	Name     string
	Type     EventType
	Incoming []string
	Outgoing []string
}

// BoundaryEvent is attached to a task's edge and may interrupt it.
type BoundaryEvent struct {
	ID           string
	Name         string
	AttachedTo   string
	Interrupting bool
	Kind         BoundaryKind
	Outgoing     []string
}

// Group is a spatial grouping carrying an SLA. Membership is by
// point-in-rectangle containment of a task shape's center, not by edges.
type Group struct {
	ID  string
	SLA string
}

// Rect is a BPMNDI shape bounding box.
type Rect struct {
	X, Y, W, H float64
}

// Center returns the rectangle's center point.
func (r Rect) Center() (float64, float64) {
	return r.X + r.W/2, r.Y + r.H/2
}

// Contains reports whether the point (x, y) lies inside the rectangle,
// boundary inclusive.
func (r Rect) Contains(x, y float64) bool {
	return r.X <= x && x <= r.X+r.W && r.Y <= y && y <= r.Y+r.H
}

// Property is one zeebe extension property (term/definition pair).
type Property struct {
	Name  string
	Value string
}

// Model is the immutable in-memory snapshot of one BPMN document.
// Built once per parse; never mutated afterwards.
type Model struct {
	Tasks        map[string]*Task
	Gateways     map[string]*Gateway
	Flows        map[string]*Flow
	Lanes        map[string]*Lane
	LaneOrder    []string // lane IDs in document order
	Subprocesses map[string]*Subprocess
	Events       map[string]*Event
	EventOrder   []string                    // event IDs in document order
	Boundary     map[string][]*BoundaryEvent // attached-to task ID → events
	Groups       map[string]*Group
	GroupOrder   []string // group IDs in document order
	Bounds       map[string]Rect

	// Document-level metadata.
	ParticipantName string
	ParticipantDoc  string
	Scope           string
	Policies        []string
	VersionTag      string
	Properties      []Property
}

// TaskSLA resolves the SLA for a task: the task-level SLA wins; otherwise
// the first group whose bounds contain the task shape's center provides
// (sla, groupID). Returns ("", "") when neither applies.
func (m *Model) TaskSLA(taskID string) (sla, groupID string) {
	t, ok := m.Tasks[taskID]
	if !ok {
		return "", ""
	}
	if t.SLA != "" {
		return t.SLA, ""
	}
	bounds, ok := m.Bounds[taskID]
	if !ok {
		return "", ""
	}
	cx, cy := bounds.Center()
	for _, id := range m.GroupOrder {
		g, ok := m.Groups[id]
		if !ok {
			continue
		}
		gb, ok := m.Bounds[id]
		if !ok {
			continue
		}
		if gb.Contains(cx, cy) {
			return g.SLA, id
		}
	}
	return "", ""
}

// LaneRACI returns the RACI tuple for a lane, defaulting every role to "N/A"
// when the lane is unknown.
func (m *Model) LaneRACI(laneID string) schema.RACI {
	if l, ok := m.Lanes[laneID]; ok {
		return l.RACI
	}
	return schema.DefaultRACI()
}

// laneUnreadable is the placeholder lane name for elements outside any lane.
const laneUnreadable = "[LANE UNREADABLE]"

var (
	stepPrefixRe = regexp.MustCompile(`^\s*(\d+)\s*[.:\-]?\s*`)
	lineBreakRe  = regexp.MustCompile(`[\n\r\t]+`)
	multiSpaceRe = regexp.MustCompile(`\s+`)
)

// StepNumber extracts the leading numeric prefix of a task name, or "".
func StepNumber(name string) string {
	m := stepPrefixRe.FindStringSubmatch(name)
	if m == nil {
		return ""
	}
	return m[1]
}

// CleanLabel removes the step prefix and collapses embedded whitespace.
func CleanLabel(name string) string {
	s := lineBreakRe.ReplaceAllString(name, " ")
	s = stepPrefixRe.ReplaceAllString(s, "")
	s = multiSpaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// CollapseWhitespace replaces newlines/tabs with spaces and squeezes runs of
// whitespace. Used for subprocess names.
func CollapseWhitespace(name string) string {
	s := lineBreakRe.ReplaceAllString(name, " ")
	s = multiSpaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
