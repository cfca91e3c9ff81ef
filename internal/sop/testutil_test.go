package sop

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/procdocs/sopgen/internal/bpmn"
	"github.com/procdocs/sopgen/pkg/schema"
)

// XML fixture helpers shared by the package tests. Diagrams are built from
// raw element snippets wrapped in a definitions envelope with a single
// process; tests needing collaboration or diagram sections pass them in.

const docEnvelope = `<?xml version="1.0" encoding="UTF-8"?>
<bpmn:definitions xmlns:bpmn="http://www.omg.org/spec/BPMN/20100524/MODEL"
    xmlns:bpmndi="http://www.omg.org/spec/BPMN/20100524/DI"
    xmlns:dc="http://www.omg.org/spec/DD/20100524/DC"
    xmlns:zeebe="http://camunda.org/schema/zeebe/1.0">
%s<bpmn:process id="Process_1">
%s
</bpmn:process>
%s</bpmn:definitions>`

func buildDoc(processBody string) []byte {
	return buildDocFull("", processBody, "")
}

func buildDocFull(collaboration, processBody, diagram string) []byte {
	return []byte(fmt.Sprintf(docEnvelope, collaboration, processBody, diagram))
}

func xRefs(in, out []string) string {
	var b strings.Builder
	for _, r := range in {
		b.WriteString("<bpmn:incoming>" + r + "</bpmn:incoming>")
	}
	for _, r := range out {
		b.WriteString("<bpmn:outgoing>" + r + "</bpmn:outgoing>")
	}
	return b.String()
}

func xTask(id, name string, in, out []string, docs ...string) string {
	return fmt.Sprintf(`<bpmn:task id=%q name=%q>%s%s</bpmn:task>`,
		id, name, strings.Join(docs, ""), xRefs(in, out))
}

func xDoc(text string) string {
	return "<bpmn:documentation>" + text + "</bpmn:documentation>"
}

func xTaggedDoc(format, text string) string {
	return fmt.Sprintf(`<bpmn:documentation textFormat=%q>%s</bpmn:documentation>`, format, text)
}

func xGateway(element, id string, in, out []string) string {
	return fmt.Sprintf(`<bpmn:%s id=%q>%s</bpmn:%s>`, element, id, xRefs(in, out), element)
}

func xEvent(element, id, name string, in, out []string) string {
	return fmt.Sprintf(`<bpmn:%s id=%q name=%q>%s</bpmn:%s>`, element, id, name, xRefs(in, out), element)
}

func xFlow(id, source, target string) string {
	return fmt.Sprintf(`<bpmn:sequenceFlow id=%q sourceRef=%q targetRef=%q/>`, id, source, target)
}

func xFlowNamed(id, source, target, name string, docs ...string) string {
	return fmt.Sprintf(`<bpmn:sequenceFlow id=%q sourceRef=%q targetRef=%q name=%q>%s</bpmn:sequenceFlow>`,
		id, source, target, name, strings.Join(docs, ""))
}

func xLane(id, name string, members ...string) string {
	var refs strings.Builder
	for _, m := range members {
		refs.WriteString("<bpmn:flowNodeRef>" + m + "</bpmn:flowNodeRef>")
	}
	return fmt.Sprintf(`<bpmn:laneSet id="LaneSet_%s"><bpmn:lane id=%q name=%q>%s</bpmn:lane></bpmn:laneSet>`,
		id, id, name, refs.String())
}

func xShape(element string, x, y, w, h float64) string {
	return fmt.Sprintf(`<bpmndi:BPMNShape bpmnElement=%q><dc:Bounds x="%g" y="%g" width="%g" height="%g"/></bpmndi:BPMNShape>`,
		element, x, y, w, h)
}

func xDiagram(shapes ...string) string {
	return `<bpmndi:BPMNDiagram><bpmndi:BPMNPlane>` + strings.Join(shapes, "") + `</bpmndi:BPMNPlane></bpmndi:BPMNDiagram>` + "\n"
}

func mustParse(t *testing.T, data []byte) *bpmn.Model {
	t.Helper()
	m, err := bpmn.Parse(data)
	require.NoError(t, err)
	return m
}

// paragraphTexts flattens a row's paragraphs to their text lines.
func paragraphTexts(row schema.StepRecord) []string {
	texts := make([]string, 0, len(row.Paragraphs))
	for _, p := range row.Paragraphs {
		texts = append(texts, p.Text)
	}
	return texts
}
