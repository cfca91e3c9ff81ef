package sop

import (
	"fmt"
	"sort"
	"strings"

	"github.com/procdocs/sopgen/internal/bpmn"
	"github.com/procdocs/sopgen/pkg/schema"
)

// caseKind identifies the resolved destination of one XOR gateway branch.
type caseKind int

const (
	caseTask caseKind = iota
	caseEnd
	caseSubprocess
	caseParallel
	caseEventTask
	caseEventEnd
	caseEventSubprocess
	caseEventParallel
)

// unlabeled is the placeholder for flows missing a condition label.
const unlabeled = "[CONDITION UNLABELED]"

// gwCase is one sortable gateway branch before lettering.
type gwCase struct {
	kind            caseKind
	label           string
	doc             string
	targetStep      string
	endName         string
	subprocessID    string
	subprocessName  string
	parallelTargets []string
	gatewayType     bpmn.GatewayType
	eventName       string
	isRevert        bool
	sortKey         [2]int
}

// Case sort keys: end destinations first, then reverts ascending by target
// (farthest back first), then proceeds descending by target (farthest
// forward first). Subprocess continuations sort as late proceeds.
func endKey() [2]int          { return [2]int{-1, 0} }
func revertKey(n int) [2]int  { return [2]int{0, n} }
func proceedKey(n int) [2]int { return [2]int{1, -n} }
func subprocessKey() [2]int   { return [2]int{1, 5000} }

func orLabel(label, fallback string) string {
	if label == "" {
		return fallback
	}
	return label
}

// gatewayCases enumerates the outgoing branches of an XOR split as lettered
// case rows: five paragraphs each (bold title, blank, explanation, blank,
// bold routing), ref "<parentStep><Letter>".
func (g *generator) gatewayCases(parentStep, gatewayID string, parentRACI schema.RACI) []schema.StepRecord {
	gw, ok := g.m.Gateways[gatewayID]
	if !ok {
		return nil
	}
	targets := g.targetsOf(gatewayID)
	if len(targets) == 0 {
		return nil
	}

	// Branch explanations live on the flow's documentation, keyed by label.
	docByLabel := map[string]string{}
	for _, flowID := range gw.Outgoing {
		if f, ok := g.m.Flows[flowID]; ok && f.Name != "" && f.Documentation != "" {
			docByLabel[f.Name] = f.Documentation
		}
	}

	parentNum := num(parentStep)
	var cases []gwCase

	for _, t := range targets {
		switch t.Kind {
		case kindTask:
			n := num(t.Value)
			// Self-loops are reverts: redoing the step counts as going back.
			isRevert := n <= parentNum
			key := proceedKey(n)
			if isRevert {
				key = revertKey(n)
			}
			cases = append(cases, gwCase{
				kind:       caseTask,
				label:      orLabel(t.Label, unlabeled),
				doc:        docByLabel[t.Label],
				targetStep: t.Value,
				isRevert:   isRevert,
				sortKey:    key,
			})

		case kindEnd:
			cases = append(cases, gwCase{
				kind:    caseEnd,
				label:   orLabel(t.Label, "Complete"),
				doc:     docByLabel[t.Label],
				endName: t.Value,
				sortKey: endKey(),
			})

		case kindSubprocess:
			sp, ok := g.m.Subprocesses[t.Value]
			if !ok {
				continue
			}
			cases = append(cases, gwCase{
				kind:           caseSubprocess,
				label:          orLabel(t.Label, "Proceed"),
				doc:            docByLabel[t.Label],
				subprocessID:   sp.ID,
				subprocessName: sp.Name,
				sortKey:        subprocessKey(),
			})

		case kindGateway:
			cases = append(cases, g.nestedGatewayCases(t, parentNum, docByLabel)...)

		case kindIntermediate:
			cases = append(cases, g.eventChainCases(t, parentNum, docByLabel)...)
		}
	}

	sort.SliceStable(cases, func(i, j int) bool {
		if cases[i].sortKey[0] != cases[j].sortKey[0] {
			return cases[i].sortKey[0] < cases[j].sortKey[0]
		}
		return cases[i].sortKey[1] < cases[j].sortKey[1]
	})

	rows := make([]schema.StepRecord, 0, len(cases))
	for i, c := range cases {
		letter := string(rune('A' + i))
		explanation := c.doc
		if explanation == "" {
			explanation = fmt.Sprintf("[Condition explanation for %s]", c.label)
		}
		rows = append(rows, schema.StepRecord{
			Ref:           parentStep + letter,
			IsGatewayCase: true,
			RACI:          parentRACI,
			Paragraphs: []schema.Paragraph{
				titlePara(fmt.Sprintf("Case %s: %s", letter, c.label)),
				blankPara(),
				bodyPara(explanation),
				blankPara(),
				titlePara(g.caseRouting(c, parentStep)),
			},
		})
	}
	return rows
}

// nestedGatewayCases resolves an XOR branch that lands on another gateway.
// AND/OR splits (including join-then-split shapes) collapse into a single
// parallel-routing case; other gateways contribute one case per task or
// end target. Note the strict < revert threshold here, unlike direct task
// targets: a nested hop back to the same step reads as a proceed.
func (g *generator) nestedGatewayCases(t target, parentNum int, docByLabel map[string]string) []gwCase {
	inner, ok := g.m.Gateways[t.Value]
	if !ok {
		return nil
	}
	innerTargets := g.targetsOf(inner.ID)

	isParallelSplit := (inner.Type == bpmn.GatewayAND || inner.Type == bpmn.GatewayOR) &&
		len(inner.Outgoing) > 1

	if isParallelSplit {
		var steps []string
		for _, it := range innerTargets {
			if it.Kind == kindTask {
				steps = append(steps, it.Value)
			}
		}
		if len(steps) == 0 {
			return nil
		}
		steps = sortedUniqueSteps(steps)
		first := num(steps[0])
		isRevert := first < parentNum
		key := proceedKey(first)
		if isRevert {
			key = revertKey(first)
		}
		return []gwCase{{
			kind:            caseParallel,
			label:           orLabel(t.Label, unlabeled),
			doc:             docByLabel[t.Label],
			parallelTargets: steps,
			gatewayType:     inner.Type,
			isRevert:        isRevert,
			sortKey:         key,
		}}
	}

	var cases []gwCase
	for _, it := range innerTargets {
		switch it.Kind {
		case kindTask:
			n := num(it.Value)
			isRevert := n < parentNum
			key := proceedKey(n)
			if isRevert {
				key = revertKey(n)
			}
			cases = append(cases, gwCase{
				kind:       caseTask,
				label:      orLabel(t.Label, unlabeled),
				doc:        docByLabel[t.Label],
				targetStep: it.Value,
				isRevert:   isRevert,
				sortKey:    key,
			})
		case kindEnd:
			cases = append(cases, gwCase{
				kind:    caseEnd,
				label:   orLabel(t.Label, "Complete"),
				doc:     docByLabel[t.Label],
				endName: it.Value,
				sortKey: endKey(),
			})
		}
	}
	return cases
}

// eventChainCases resolves an XOR branch that passes through an
// intermediate event before reaching its destination.
func (g *generator) eventChainCases(t target, parentNum int, docByLabel map[string]string) []gwCase {
	event, ok := g.m.Events[t.Value]
	if !ok {
		return nil
	}
	eventName := event.Name
	if eventName == "" {
		eventName = "Event"
	}
	eventTargets := g.targetsOf(event.ID)
	if len(eventTargets) == 0 {
		return nil
	}
	first := eventTargets[0]

	switch first.Kind {
	case kindTask:
		n := num(first.Value)
		isRevert := n <= parentNum
		key := proceedKey(n)
		if isRevert {
			key = revertKey(n)
		}
		return []gwCase{{
			kind:       caseEventTask,
			label:      orLabel(t.Label, unlabeled),
			doc:        docByLabel[t.Label],
			targetStep: first.Value,
			eventName:  eventName,
			isRevert:   isRevert,
			sortKey:    key,
		}}

	case kindEnd:
		return []gwCase{{
			kind:      caseEventEnd,
			label:     orLabel(t.Label, "Complete"),
			doc:       docByLabel[t.Label],
			endName:   first.Value,
			eventName: eventName,
			sortKey:   endKey(),
		}}

	case kindSubprocess:
		sp, ok := g.m.Subprocesses[first.Value]
		if !ok {
			return nil
		}
		return []gwCase{{
			kind:           caseEventSubprocess,
			label:          orLabel(t.Label, "Proceed"),
			doc:            docByLabel[t.Label],
			subprocessID:   sp.ID,
			subprocessName: sp.Name,
			eventName:      eventName,
			sortKey:        subprocessKey(),
		}}

	case kindGateway:
		inner, ok := g.m.Gateways[first.Value]
		if !ok {
			return nil
		}
		innerTargets := g.targetsOf(inner.ID)

		if (inner.Type == bpmn.GatewayAND || inner.Type == bpmn.GatewayOR) && len(inner.Outgoing) > 1 {
			var steps []string
			for _, it := range innerTargets {
				if it.Kind == kindTask {
					steps = append(steps, it.Value)
				}
			}
			if len(steps) == 0 {
				return nil
			}
			steps = sortedUniqueSteps(steps)
			firstNum := num(steps[0])
			isRevert := firstNum < parentNum
			key := proceedKey(firstNum)
			if isRevert {
				key = revertKey(firstNum)
			}
			return []gwCase{{
				kind:            caseEventParallel,
				label:           orLabel(t.Label, unlabeled),
				doc:             docByLabel[t.Label],
				parallelTargets: steps,
				gatewayType:     inner.Type,
				eventName:       eventName,
				isRevert:        isRevert,
				sortKey:         key,
			}}
		}

		for _, it := range innerTargets {
			if it.Kind == kindTask {
				n := num(it.Value)
				isRevert := n < parentNum
				key := proceedKey(n)
				if isRevert {
					key = revertKey(n)
				}
				return []gwCase{{
					kind:       caseEventTask,
					label:      orLabel(t.Label, unlabeled),
					doc:        docByLabel[t.Label],
					targetStep: it.Value,
					eventName:  eventName,
					isRevert:   isRevert,
					sortKey:    key,
				}}
			}
			if it.Kind == kindEnd {
				return []gwCase{{
					kind:      caseEventEnd,
					label:     orLabel(t.Label, "Complete"),
					doc:       docByLabel[t.Label],
					endName:   it.Value,
					eventName: eventName,
					sortKey:   endKey(),
				}}
			}
		}
	}
	return nil
}

// caseRouting phrases the bold routing sentence for one resolved case.
func (g *generator) caseRouting(c gwCase, parentStep string) string {
	verb := func() string {
		if c.isRevert {
			return "Revert to"
		}
		return "Proceed to"
	}

	switch c.kind {
	case caseTask:
		return fmt.Sprintf("%s Step %s", verb(), c.targetStep)

	case caseEnd:
		return fmt.Sprintf("Process Ends (%s)", c.endName)

	case caseSubprocess:
		return g.caseSubprocessRouting(c, parentStep)

	case caseParallel:
		steps := strings.Join(c.parallelTargets, connectorFor(c.gatewayType))
		return fmt.Sprintf("%s Step %s", verb(), steps)

	case caseEventTask:
		return fmt.Sprintf("Wait until %s Then %s Step %s", c.eventName, verb(), c.targetStep)

	case caseEventEnd:
		return fmt.Sprintf("Wait until %s, then Process Ends (%s)", c.eventName, c.endName)

	case caseEventSubprocess:
		suffix := processSuffix(c.subprocessName)
		spTargets := g.targetsOf(c.subprocessID)
		if len(spTargets) > 0 && spTargets[0].Kind == kindTask {
			next := spTargets[0].Value
			return fmt.Sprintf("Wait until %s Then Start %s%s, then %s to Step %s",
				c.eventName, c.subprocessName, suffix, routingVerb(next, parentStep), next)
		}
		if len(spTargets) > 0 && spTargets[0].Kind == kindEnd {
			return fmt.Sprintf("Wait until %s Then Start %s%s, then Process Ends (%s)",
				c.eventName, c.subprocessName, suffix, spTargets[0].Value)
		}
		return fmt.Sprintf("Wait until %s Then Start %s%s", c.eventName, c.subprocessName, suffix)

	case caseEventParallel:
		steps := strings.Join(c.parallelTargets, connectorFor(c.gatewayType))
		return fmt.Sprintf("Wait until %s Then %s Step %s", c.eventName, verb(), steps)
	}
	return ""
}

// caseSubprocessRouting phrases a subprocess destination: the continuation
// after the subprocess decides the trailing clause.
func (g *generator) caseSubprocessRouting(c gwCase, parentStep string) string {
	spTargets := g.targetsOf(c.subprocessID)

	if len(spTargets) > 0 && spTargets[0].Kind == kindTask {
		next := spTargets[0].Value
		return fmt.Sprintf("Start %s Process, then %s to Step %s",
			c.subprocessName, routingVerb(next, parentStep), next)
	}

	if len(spTargets) > 0 && spTargets[0].Kind == kindGateway {
		inner := g.m.Gateways[spTargets[0].Value]
		if inner != nil && (inner.Type == bpmn.GatewayAND || inner.Type == bpmn.GatewayOR) && len(inner.Outgoing) > 1 {
			var steps []string
			for _, it := range g.targetsOf(inner.ID) {
				if it.Kind == kindTask {
					steps = append(steps, it.Value)
				}
			}
			if len(steps) > 0 {
				steps = sortedUniqueSteps(steps)
				return fmt.Sprintf("Start %s Process, then %s to Step %s",
					c.subprocessName, routingVerb(steps[0], parentStep), strings.Join(steps, connectorFor(inner.Type)))
			}
		}
		return fmt.Sprintf("Start %s Process", c.subprocessName)
	}

	if len(spTargets) > 0 && spTargets[0].Kind == kindEnd {
		return fmt.Sprintf("Start %s Process, then Process Ends (%s)", c.subprocessName, spTargets[0].Value)
	}

	return fmt.Sprintf("Start %s Process", c.subprocessName)
}
