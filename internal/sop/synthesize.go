package sop

import (
	"fmt"
	"sort"
	"strings"

	"github.com/procdocs/sopgen/internal/bpmn"
	"github.com/procdocs/sopgen/pkg/schema"
)

// Paragraph constructors. Titles and routing sentences are 12pt bold;
// body text and boundary-event conditions are 11pt.
func titlePara(text string) schema.Paragraph {
	return schema.Paragraph{Text: text, FontSize: 12, Bold: true, Alignment: schema.AlignJustify}
}

func bodyPara(text string) schema.Paragraph {
	return schema.Paragraph{Text: text, FontSize: 11, Bold: false, Alignment: schema.AlignJustify}
}

func boldBodyPara(text string) schema.Paragraph {
	return schema.Paragraph{Text: text, FontSize: 11, Bold: true, Alignment: schema.AlignJustify}
}

func blankPara() schema.Paragraph {
	return bodyPara("")
}

// ensurePeriod guarantees terminal punctuation.
func ensurePeriod(text string) string {
	text = strings.TrimRight(text, " \t\r\n")
	if text == "" {
		return text
	}
	switch text[len(text)-1] {
	case '.', '!', '?':
		return text
	}
	return text + "."
}

// synthesizeSteps walks every numbered task in ascending step order and
// builds the ordered StepRecord list, including gateway-case rows.
func (g *generator) synthesizeSteps() []schema.StepRecord {
	type numberedTask struct {
		id   string
		task *bpmn.Task
	}
	var tasks []numberedTask
	for id, t := range g.m.Tasks {
		if t.Number != "" {
			tasks = append(tasks, numberedTask{id: id, task: t})
		}
	}
	sort.Slice(tasks, func(i, j int) bool { return num(tasks[i].task.Number) < num(tasks[j].task.Number) })

	var rows []schema.StepRecord

	for _, nt := range tasks {
		taskID, task := nt.id, nt.task
		stepNum := task.Number

		chain := g.intermediateChain(taskID, stepNum)

		// A predecessor intermediate event only shapes the description when
		// the task is not already part of a composite chain sentence.
		intermediateEvent := ""
		if chain == "" {
			intermediateEvent = g.predecessorIntermediateEvent(taskID)
		}

		multiInput := g.detectMultiInput(taskID)

		titleText := task.Label
		if multiInput != "" {
			titleText = titleText + " " + multiInput
		}

		// Documentation: the first line feeds the description sentence;
		// the rest become standalone paragraphs.
		firstLine := ""
		var extraLines []string
		if task.Documentation != "" {
			lines := strings.Split(task.Documentation, "\n")
			for i := range lines {
				lines[i] = strings.TrimRight(lines[i], " \t\r")
			}
			firstLine = strings.TrimSpace(lines[0])
			extraLines = lines[1:]
		}

		descText := g.describeTask(task, firstLine, intermediateEvent)

		boundaries := g.boundaryTexts(taskID)
		targets := g.targetsOf(taskID)

		// A successor with a strictly smaller step number is a revert.
		revertStep := ""
		for _, t := range targets {
			if t.Kind == kindTask && num(t.Value) < num(stepNum) {
				revertStep = t.Value
				break
			}
		}

		paragraphs := []schema.Paragraph{
			titlePara(titleText),
			blankPara(),
			bodyPara(descText),
		}

		if len(extraLines) > 0 {
			paragraphs = append(paragraphs, blankPara())
			for _, line := range extraLines {
				if line != "" {
					paragraphs = append(paragraphs, bodyPara(line))
				}
			}
			if last := len(paragraphs) - 1; paragraphs[last].Text != "" {
				paragraphs[last].Text = ensurePeriod(paragraphs[last].Text)
			}
		}

		if chain != "" {
			paragraphs = append(paragraphs, blankPara(), titlePara(chain))
		}

		for _, b := range boundaries {
			paragraphs = append(paragraphs, blankPara(), boldBodyPara(b))
		}

		if revertStep != "" {
			paragraphs = append(paragraphs, blankPara(), titlePara("Revert to Step "+revertStep))
		}

		sla, slaGroup := g.m.TaskSLA(taskID)
		raci := g.m.LaneRACI(task.LaneID)

		rows = append(rows, schema.StepRecord{
			Ref:        stepNum,
			SLA:        sla,
			SLAGroup:   slaGroup,
			RACI:       raci,
			Paragraphs: paragraphs,
		})

		if len(targets) == 0 {
			continue
		}

		// A task feeding an AND/OR join that leads straight to an end event
		// (no task after the join) waits for its sibling branches instead of
		// routing normally.
		if g.appendJoinToEndWait(&rows, taskID, targets) {
			continue
		}

		g.appendRouting(&rows, taskID, stepNum, targets, raci)
	}

	return rows
}

// describeTask builds the main description sentence:
// "The <Lane> shall <doc first line | lower-cased label>." with "shall"
// deduplicated and an optional "wait until <event> Then" prefix.
func (g *generator) describeTask(task *bpmn.Task, firstLine, intermediateEvent string) string {
	lane := task.LaneName

	var desc string
	if intermediateEvent != "" {
		action := strings.ToLower(task.Label)
		if firstLine != "" {
			action = firstLine
			if strings.HasPrefix(strings.ToLower(firstLine), "shall ") {
				action = strings.TrimSpace(firstLine[6:])
			}
		}
		desc = fmt.Sprintf("The %s shall wait until %s Then %s", lane, intermediateEvent, action)
	} else if firstLine != "" {
		if strings.HasPrefix(strings.ToLower(firstLine), "shall ") {
			desc = fmt.Sprintf("The %s %s", lane, firstLine)
		} else {
			desc = fmt.Sprintf("The %s shall %s", lane, firstLine)
		}
	} else {
		desc = fmt.Sprintf("The %s shall %s", lane, strings.ToLower(task.Label))
	}
	return ensurePeriod(desc)
}

// appendJoinToEndWait handles the parallel-join-to-end special case: when
// this task feeds an AND/OR join whose only continuation is an end event,
// the step renders "Wait until step <others> completed then Process Ends
// (<name>)" listing the sibling branch steps. Reports whether it applied.
func (g *generator) appendJoinToEndWait(rows *[]schema.StepRecord, taskID string, targets []target) bool {
	seen := map[string]bool{}
	for _, t := range targets {
		if t.Kind != kindGateway || seen[t.Value] {
			continue
		}
		seen[t.Value] = true
		gw := g.m.Gateways[t.Value]
		if gw == nil || (gw.Type != bpmn.GatewayAND && gw.Type != bpmn.GatewayOR) || !gw.IsJoin() {
			continue
		}

		joinTargets := g.targetsOf(gw.ID)
		endName := ""
		hasTaskAfter := false
		for _, jt := range joinTargets {
			if jt.Kind == kindEnd && endName == "" {
				endName = jt.Value
			}
			if jt.Kind == kindTask {
				hasTaskAfter = true
			}
		}
		// A join that continues to a task is not this case; keep scanning
		// the remaining gateway targets.
		if endName == "" || hasTaskAfter {
			continue
		}

		var otherSteps []string
		for _, flowID := range gw.Incoming {
			flow, ok := g.m.Flows[flowID]
			if !ok || flow.Source == taskID {
				continue
			}
			if t, ok := g.m.Tasks[flow.Source]; ok && t.Number != "" {
				otherSteps = append(otherSteps, t.Number)
			} else if g.m.Gateways[flow.Source] != nil {
				if n := g.traceGatewayToTask(flow.Source, map[string]bool{}); n != "" {
					otherSteps = append(otherSteps, n)
				}
			}
		}
		if len(otherSteps) == 0 {
			return false
		}

		otherSteps = sortedUniqueSteps(otherSteps)
		wait := fmt.Sprintf("Wait until step %s completed then Process Ends (%s)",
			strings.Join(otherSteps, " and step "), endName)
		last := &(*rows)[len(*rows)-1]
		last.Paragraphs = append(last.Paragraphs, blankPara(), titlePara(wait))
		return true
	}
	return false
}

// appendRouting emits the trailing routing text (or gateway-case rows) for
// a task based on its resolved targets.
func (g *generator) appendRouting(rows *[]schema.StepRecord, taskID, stepNum string, targets []target, raci schema.RACI) {
	appendToLast := func(p schema.Paragraph) {
		last := &(*rows)[len(*rows)-1]
		last.Paragraphs = append(last.Paragraphs, blankPara(), p)
	}

	switch {
	case len(targets) == 1 && targets[0].Kind == kindGateway:
		gw := g.m.Gateways[targets[0].Value]
		if gw == nil {
			return
		}
		if (gw.Type == bpmn.GatewayAND || gw.Type == bpmn.GatewayOR) && gw.IsSplit() {
			var steps []string
			for _, t := range g.targetsOf(gw.ID) {
				if t.Kind == kindTask {
					steps = append(steps, t.Value)
				}
			}
			if len(steps) > 1 {
				steps = sortedUniqueSteps(steps)
				appendToLast(titlePara("Proceed to Step " + strings.Join(steps, connectorFor(gw.Type))))
			}
			// A single (or zero) task target means this is really a join
			// passthrough; no routing text.
		} else if gw.Type == bpmn.GatewayXOR {
			*rows = append(*rows, g.gatewayCases(stepNum, gw.ID, raci)...)
		}

	case len(targets) == 1 && targets[0].Kind == kindSubprocess:
		sp := g.m.Subprocesses[targets[0].Value]
		if sp == nil {
			return
		}
		appendToLast(titlePara(g.subprocessRouting(sp, stepNum)))

	case len(targets) == 1 && targets[0].Kind == kindEnd:
		appendToLast(titlePara(fmt.Sprintf("Process Ends (%s)", targets[0].Value)))

	case len(targets) > 1 && allTasks(targets):
		// Parallel fan-out without an explicit gateway.
		var steps []string
		for _, t := range targets {
			steps = append(steps, t.Value)
		}
		steps = sortedUniqueSteps(steps)
		appendToLast(titlePara("Proceed to Step " + strings.Join(steps, " and Step ")))
	}
}

func allTasks(targets []target) bool {
	for _, t := range targets {
		if t.Kind != kindTask {
			return false
		}
	}
	return true
}

// subprocessRouting phrases a task's single-subprocess successor, including
// an optional preceding intermediate event and the subprocess continuation.
func (g *generator) subprocessRouting(sp *bpmn.Subprocess, stepNum string) string {
	name := sp.Name + processSuffix(sp.Name)
	waitEvent := g.intermediateBeforeSubprocess(sp.ID)
	spTargets := g.targetsOf(sp.ID)

	if waitEvent != "" {
		if len(spTargets) > 0 && spTargets[0].Kind == kindTask {
			next := spTargets[0].Value
			return fmt.Sprintf("Wait for %s and Then Start %s Then %s to Step %s",
				waitEvent, name, routingVerb(next, stepNum), next)
		}
		if len(spTargets) > 0 && spTargets[0].Kind == kindEnd {
			return fmt.Sprintf("Wait for %s and Then Start %s, then Process Ends (%s)",
				waitEvent, name, spTargets[0].Value)
		}
		return fmt.Sprintf("Wait for %s and Then Start %s", waitEvent, name)
	}

	if len(spTargets) > 0 && spTargets[0].Kind == kindEnd {
		return fmt.Sprintf("Start %s, then Process Ends (%s)", name, spTargets[0].Value)
	}
	if len(spTargets) > 0 && spTargets[0].Kind == kindTask {
		next := spTargets[0].Value
		return fmt.Sprintf("Start %s Then %s to Step %s", name, routingVerb(next, stepNum), next)
	}
	return "Start " + name
}
