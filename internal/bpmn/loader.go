package bpmn

import (
	"bytes"
	"encoding/xml"
	"io"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"

	"github.com/procdocs/sopgen/pkg/schema"
)

// BPMN 2.0 namespace URIs.
const (
	nsBPMN   = "http://www.omg.org/spec/BPMN/20100524/MODEL"
	nsBPMNDI = "http://www.omg.org/spec/BPMN/20100524/DI"
	nsZeebe  = "http://camunda.org/schema/zeebe/1.0"
)

// Documentation text formats carrying structured annotations.
const (
	fmtSLA    = "application/x-sla"
	fmtScope  = "application/x-scope"
	fmtPolicy = "application/x-policy"
)

// taskElements is the set of activity element names treated as tasks.
var taskElements = map[string]bool{
	"task":             true,
	"userTask":         true,
	"serviceTask":      true,
	"manualTask":       true,
	"scriptTask":       true,
	"callActivity":     true,
	"sendTask":         true,
	"receiveTask":      true,
	"businessRuleTask": true,
}

var gatewayElements = map[string]GatewayType{
	"exclusiveGateway": GatewayXOR,
	"parallelGateway":  GatewayAND,
	"inclusiveGateway": GatewayOR,
}

var eventElements = map[string]EventType{
	"startEvent":             EventStart,
	"endEvent":               EventEnd,
	"intermediateCatchEvent": EventIntermediate,
	"intermediateThrowEvent": EventIntermediate,
}

// raciRoles in annotation order: documentation tagged
// "application/x-<role>" on a lane supplies that role.
var raciRoles = []string{"responsible", "accountable", "consulted", "informed"}

// markStripper removes Unicode combining marks (Arabic diacritics and
// similar) so lane names compare consistently across locales.
var markStripper = runes.Remove(runes.In(unicode.Mn))

func stripMarks(s string) string {
	out, _, err := transform.String(markStripper, s)
	if err != nil {
		return s
	}
	return out
}

// --- decode targets ---

type xmlDocumentation struct {
	TextFormat string `xml:"textFormat,attr"`
	Text       string `xml:",chardata"`
}

type xmlFlowNode struct {
	ID            string             `xml:"id,attr"`
	Name          string             `xml:"name,attr"`
	Incoming      []string           `xml:"incoming"`
	Outgoing      []string           `xml:"outgoing"`
	Documentation []xmlDocumentation `xml:"documentation"`
}

type xmlSequenceFlow struct {
	ID            string             `xml:"id,attr"`
	Name          string             `xml:"name,attr"`
	SourceRef     string             `xml:"sourceRef,attr"`
	TargetRef     string             `xml:"targetRef,attr"`
	Documentation []xmlDocumentation `xml:"documentation"`
}

type xmlLane struct {
	ID            string             `xml:"id,attr"`
	Name          string             `xml:"name,attr"`
	FlowNodeRefs  []string           `xml:"flowNodeRef"`
	Documentation []xmlDocumentation `xml:"documentation"`
}

type xmlBoundaryEvent struct {
	ID             string    `xml:"id,attr"`
	Name           string    `xml:"name,attr"`
	AttachedToRef  string    `xml:"attachedToRef,attr"`
	CancelActivity string    `xml:"cancelActivity,attr"`
	Outgoing       []string  `xml:"outgoing"`
	Timer          *struct{} `xml:"timerEventDefinition"`
	Message        *struct{} `xml:"messageEventDefinition"`
	Signal         *struct{} `xml:"signalEventDefinition"`
	Error          *struct{} `xml:"errorEventDefinition"`
}

type xmlGroup struct {
	ID            string             `xml:"id,attr"`
	Documentation []xmlDocumentation `xml:"documentation"`
}

type xmlParticipant struct {
	Name          string             `xml:"name,attr"`
	Documentation []xmlDocumentation `xml:"documentation"`
}

type xmlShape struct {
	Element string `xml:"bpmnElement,attr"`
	Bounds  *struct {
		X float64 `xml:"x,attr"`
		Y float64 `xml:"y,attr"`
		W float64 `xml:"width,attr"`
		H float64 `xml:"height,attr"`
	} `xml:"Bounds"`
}

type xmlVersionTag struct {
	Value string `xml:"value,attr"`
}

type xmlProperties struct {
	Properties []struct {
		Name  string `xml:"name,attr"`
		Value string `xml:"value,attr"`
	} `xml:"property"`
}

// Parse decodes a BPMN 2.0 XML document into an immutable Model.
// The walk matches elements anywhere in the tree (nested subprocess
// children included). Malformed XML aborts with MALFORMED_INPUT.
func Parse(data []byte) (*Model, error) {
	m := &Model{
		Tasks:        map[string]*Task{},
		Gateways:     map[string]*Gateway{},
		Flows:        map[string]*Flow{},
		Lanes:        map[string]*Lane{},
		Subprocesses: map[string]*Subprocess{},
		Events:       map[string]*Event{},
		Boundary:     map[string][]*BoundaryEvent{},
		Groups:       map[string]*Group{},
		Bounds:       map[string]Rect{},
	}

	dec := xml.NewDecoder(bytes.NewReader(data))

	// Stack of open container elements. Subprocesses are containers too:
	// their own incoming/outgoing children are captured here while their
	// nested activities fall through to the regular handlers.
	type frame struct {
		local string
		sub   *Subprocess
	}
	var stack []frame
	parent := func() *frame {
		if len(stack) == 0 {
			return nil
		}
		return &stack[len(stack)-1]
	}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeMalformedInput,
				"BPMN XML is not well-formed: %s", err.Error()).WithCause(err)
		}

		switch se := tok.(type) {
		case xml.StartElement:
			if se.Name.Space == nsBPMNDI && se.Name.Local == "BPMNShape" {
				var sh xmlShape
				if err := dec.DecodeElement(&sh, &se); err != nil {
					return nil, malformed(err)
				}
				if sh.Element != "" && sh.Bounds != nil {
					m.Bounds[sh.Element] = Rect{X: sh.Bounds.X, Y: sh.Bounds.Y, W: sh.Bounds.W, H: sh.Bounds.H}
				}
				continue
			}

			if se.Name.Space != nsBPMN {
				stack = append(stack, frame{local: se.Name.Local})
				continue
			}

			local := se.Name.Local
			switch {
			case taskElements[local]:
				if err := m.decodeTask(dec, &se); err != nil {
					return nil, err
				}
			case gatewayElements[local] != "":
				if err := m.decodeGateway(dec, &se, gatewayElements[local]); err != nil {
					return nil, err
				}
			case eventElements[local] != "":
				if err := m.decodeEvent(dec, &se, eventElements[local]); err != nil {
					return nil, err
				}
			case local == "sequenceFlow":
				if err := m.decodeFlow(dec, &se); err != nil {
					return nil, err
				}
			case local == "boundaryEvent":
				if err := m.decodeBoundary(dec, &se); err != nil {
					return nil, err
				}
			case local == "lane":
				if err := m.decodeLane(dec, &se); err != nil {
					return nil, err
				}
			case local == "group":
				if err := m.decodeGroup(dec, &se); err != nil {
					return nil, err
				}
			case local == "participant":
				if err := m.decodeParticipant(dec, &se); err != nil {
					return nil, err
				}
			case local == "subProcess":
				sub := &Subprocess{
					ID:   attr(se, "id"),
					Name: CollapseWhitespace(attrDefault(se, "name", "Unnamed Process")),
				}
				m.Subprocesses[sub.ID] = sub
				stack = append(stack, frame{local: local, sub: sub})
			case (local == "incoming" || local == "outgoing") && parent() != nil && parent().sub != nil:
				var ref string
				if err := dec.DecodeElement(&ref, &se); err != nil {
					return nil, malformed(err)
				}
				ref = strings.TrimSpace(ref)
				if ref == "" {
					continue
				}
				if local == "incoming" {
					parent().sub.Incoming = append(parent().sub.Incoming, ref)
				} else {
					parent().sub.Outgoing = append(parent().sub.Outgoing, ref)
				}
			case local == "documentation" && parent() != nil && parent().local == "process":
				var doc xmlDocumentation
				if err := dec.DecodeElement(&doc, &se); err != nil {
					return nil, malformed(err)
				}
				text := strings.TrimSpace(doc.Text)
				if text == "" {
					continue
				}
				switch doc.TextFormat {
				case fmtScope:
					if m.Scope == "" {
						m.Scope = text
					}
				case fmtPolicy:
					m.Policies = append(m.Policies, text)
				}
			case local == "extensionElements" && parent() != nil && parent().local == "process":
				if err := m.decodeProcessExtensions(dec, &se); err != nil {
					return nil, err
				}
			default:
				stack = append(stack, frame{local: local})
			}

		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	m.assignLanes()
	return m, nil
}

func malformed(err error) error {
	return schema.NewErrorf(schema.ErrCodeMalformedInput,
		"BPMN XML is not well-formed: %s", err.Error()).WithCause(err)
}

func attr(se xml.StartElement, name string) string {
	for _, a := range se.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

func attrDefault(se xml.StartElement, name, def string) string {
	for _, a := range se.Attr {
		if a.Name.Local == name {
			if a.Value == "" {
				return def
			}
			return a.Value
		}
	}
	return def
}

// plainDoc returns the first documentation without a textFormat tag.
func plainDoc(docs []xmlDocumentation) string {
	for _, d := range docs {
		if d.TextFormat == "" {
			return strings.TrimSpace(d.Text)
		}
	}
	return ""
}

// taggedDoc returns the first documentation with the given textFormat.
func taggedDoc(docs []xmlDocumentation, format string) string {
	for _, d := range docs {
		if d.TextFormat == format {
			return strings.TrimSpace(d.Text)
		}
	}
	return ""
}

func cleanRefs(refs []string) []string {
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

func (m *Model) decodeTask(dec *xml.Decoder, se *xml.StartElement) error {
	var n xmlFlowNode
	if err := dec.DecodeElement(&n, se); err != nil {
		return malformed(err)
	}
	m.Tasks[n.ID] = &Task{
		ID:            n.ID,
		Name:          n.Name,
		Label:         CleanLabel(n.Name),
		Number:        StepNumber(n.Name),
		LaneName:      laneUnreadable,
		Incoming:      cleanRefs(n.Incoming),
		Outgoing:      cleanRefs(n.Outgoing),
		Documentation: plainDoc(n.Documentation),
		SLA:           taggedDoc(n.Documentation, fmtSLA),
	}
	return nil
}

func (m *Model) decodeGateway(dec *xml.Decoder, se *xml.StartElement, typ GatewayType) error {
	var n xmlFlowNode
	if err := dec.DecodeElement(&n, se); err != nil {
		return malformed(err)
	}
	m.Gateways[n.ID] = &Gateway{
		ID:       n.ID,
		Type:     typ,
		Incoming: cleanRefs(n.Incoming),
		Outgoing: cleanRefs(n.Outgoing),
	}
	return nil
}

func (m *Model) decodeEvent(dec *xml.Decoder, se *xml.StartElement, typ EventType) error {
	var n xmlFlowNode
	if err := dec.DecodeElement(&n, se); err != nil {
		return malformed(err)
	}
	m.Events[n.ID] = &Event{
		ID:       n.ID,
		Name:     n.Name,
		Type:     typ,
		Incoming: cleanRefs(n.Incoming),
		Outgoing: cleanRefs(n.Outgoing),
	}
	m.EventOrder = append(m.EventOrder, n.ID)
	return nil
}

func (m *Model) decodeFlow(dec *xml.Decoder, se *xml.StartElement) error {
	var f xmlSequenceFlow
	if err := dec.DecodeElement(&f, se); err != nil {
		return malformed(err)
	}
	m.Flows[f.ID] = &Flow{
		ID:            f.ID,
		Source:        f.SourceRef,
		Target:        f.TargetRef,
		Name:          f.Name,
		Documentation: plainDoc(f.Documentation),
	}
	return nil
}

func (m *Model) decodeBoundary(dec *xml.Decoder, se *xml.StartElement) error {
	var b xmlBoundaryEvent
	if err := dec.DecodeElement(&b, se); err != nil {
		return malformed(err)
	}
	if b.AttachedToRef == "" {
		return nil
	}
	kind := BoundaryOther
	switch {
	case b.Timer != nil:
		kind = BoundaryTimer
	case b.Message != nil:
		kind = BoundaryMessage
	case b.Signal != nil:
		kind = BoundarySignal
	case b.Error != nil:
		kind = BoundaryError
	}
	// cancelActivity defaults to true (interrupting) per the BPMN schema.
	interrupting := !strings.EqualFold(b.CancelActivity, "false")
	m.Boundary[b.AttachedToRef] = append(m.Boundary[b.AttachedToRef], &BoundaryEvent{
		ID:           b.ID,
		Name:         b.Name,
		AttachedTo:   b.AttachedToRef,
		Interrupting: interrupting,
		Kind:         kind,
		Outgoing:     cleanRefs(b.Outgoing),
	})
	return nil
}

func (m *Model) decodeLane(dec *xml.Decoder, se *xml.StartElement) error {
	var l xmlLane
	if err := dec.DecodeElement(&l, se); err != nil {
		return malformed(err)
	}
	raci := schema.DefaultRACI()
	for _, role := range raciRoles {
		if v := taggedDoc(l.Documentation, "application/x-"+role); v != "" {
			switch role {
			case "responsible":
				raci.Responsible = v
			case "accountable":
				raci.Accountable = v
			case "consulted":
				raci.Consulted = v
			case "informed":
				raci.Informed = v
			}
		}
	}
	name := l.Name
	if name == "" {
		name = laneUnreadable
	}
	m.Lanes[l.ID] = &Lane{
		ID:      l.ID,
		Name:    name,
		RACI:    raci,
		Members: cleanRefs(l.FlowNodeRefs),
	}
	m.LaneOrder = append(m.LaneOrder, l.ID)
	return nil
}

func (m *Model) decodeGroup(dec *xml.Decoder, se *xml.StartElement) error {
	var g xmlGroup
	if err := dec.DecodeElement(&g, se); err != nil {
		return malformed(err)
	}
	// Only SLA-annotated groups matter; plain visual groups are ignored.
	if sla := taggedDoc(g.Documentation, fmtSLA); sla != "" {
		m.Groups[g.ID] = &Group{ID: g.ID, SLA: sla}
		m.GroupOrder = append(m.GroupOrder, g.ID)
	}
	return nil
}

func (m *Model) decodeParticipant(dec *xml.Decoder, se *xml.StartElement) error {
	var p xmlParticipant
	if err := dec.DecodeElement(&p, se); err != nil {
		return malformed(err)
	}
	if m.ParticipantName == "" {
		m.ParticipantName = strings.TrimSpace(p.Name)
	}
	if m.ParticipantDoc == "" {
		m.ParticipantDoc = plainDoc(p.Documentation)
	}
	return nil
}

func (m *Model) decodeProcessExtensions(dec *xml.Decoder, se *xml.StartElement) error {
	var ext struct {
		VersionTag *xmlVersionTag `xml:"versionTag"`
		Properties *xmlProperties `xml:"properties"`
	}
	if err := dec.DecodeElement(&ext, se); err != nil {
		return malformed(err)
	}
	if ext.VersionTag != nil && m.VersionTag == "" {
		m.VersionTag = strings.TrimSpace(ext.VersionTag.Value)
	}
	if ext.Properties != nil {
		for _, p := range ext.Properties.Properties {
			term := strings.TrimSpace(p.Name)
			def := strings.TrimSpace(p.Value)
			if term != "" || def != "" {
				m.Properties = append(m.Properties, Property{Name: term, Value: def})
			}
		}
	}
	return nil
}

// assignLanes maps tasks to their owning lane (first lane in document
// order that lists the element) and resolves the display name.
func (m *Model) assignLanes() {
	owner := map[string]string{}
	for _, laneID := range m.LaneOrder {
		for _, member := range m.Lanes[laneID].Members {
			if _, taken := owner[member]; !taken {
				owner[member] = laneID
			}
		}
	}
	for id, t := range m.Tasks {
		laneID, ok := owner[id]
		if !ok {
			continue
		}
		t.LaneID = laneID
		t.LaneName = stripMarks(m.Lanes[laneID].Name)
	}
}
