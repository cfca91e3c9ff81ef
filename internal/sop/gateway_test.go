package sop

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procdocs/sopgen/pkg/schema"
)

// xorProcess: step 2 splits three ways, to an end event (unlabeled flow),
// back to step 1 ("Rejected", documented) and forward to step 3 ("Approved").
func xorProcess() []byte {
	body := strings.Join([]string{
		xLane("Lane_1", "Reviewer", "t1", "t2", "t3"),
		xEvent("startEvent", "s1", "Go", nil, []string{"f0"}),
		xTask("t1", "1. Prepare Case", []string{"f0", "fr"}, []string{"f1"}),
		xTask("t2", "2. Assess Case", []string{"f1"}, []string{"f2"}),
		xGateway("exclusiveGateway", "gw1", []string{"f2"}, []string{"fa", "fr", "fe"}),
		xTask("t3", "3. Approve Case", []string{"fa"}, []string{"f3"}),
		xEvent("endEvent", "e1", "Done", []string{"f3"}, nil),
		xEvent("endEvent", "e2", "Cancelled", []string{"fe"}, nil),
		xFlow("f0", "s1", "t1"),
		xFlow("f1", "t1", "t2"),
		xFlow("f2", "t2", "gw1"),
		xFlowNamed("fa", "gw1", "t3", "Approved"),
		xFlowNamed("fr", "gw1", "t1", "Rejected", xDoc("The case is missing required documents.")),
		xFlow("fe", "gw1", "e2"),
		xFlow("f3", "t3", "e1"),
	}, "\n")
	return buildDoc(body)
}

func TestGatewayCases_OrderingAndLetters(t *testing.T) {
	ctx, err := Generate(xorProcess(), schema.Metadata{})
	require.NoError(t, err)

	// 1, 2, 2A, 2B, 2C, 3
	require.Len(t, ctx.Steps, 6)
	assert.Equal(t, "2A", ctx.Steps[2].Ref)
	assert.Equal(t, "2B", ctx.Steps[3].Ref)
	assert.Equal(t, "2C", ctx.Steps[4].Ref)
	assert.Equal(t, "3", ctx.Steps[5].Ref)

	for _, row := range ctx.Steps[2:5] {
		assert.True(t, row.IsGatewayCase)
		require.Len(t, row.Paragraphs, 5)
	}

	// End destinations sort first, then reverts ascending, then proceeds.
	caseA := ctx.Steps[2]
	assert.Equal(t, "Case A: Complete", caseA.Paragraphs[0].Text)
	assert.Equal(t, "Process Ends (Cancelled)", caseA.Paragraphs[4].Text)

	caseB := ctx.Steps[3]
	assert.Equal(t, "Case B: Rejected", caseB.Paragraphs[0].Text)
	assert.Equal(t, "The case is missing required documents.", caseB.Paragraphs[2].Text)
	assert.Equal(t, "Revert to Step 1", caseB.Paragraphs[4].Text)

	caseC := ctx.Steps[4]
	assert.Equal(t, "Case C: Approved", caseC.Paragraphs[0].Text)
	assert.Equal(t, "[Condition explanation for Approved]", caseC.Paragraphs[2].Text)
	assert.Equal(t, "Proceed to Step 3", caseC.Paragraphs[4].Text)
}

func TestGatewayCases_FormattingAndRACI(t *testing.T) {
	ctx, err := Generate(xorProcess(), schema.Metadata{})
	require.NoError(t, err)
	require.Len(t, ctx.Steps, 6)

	parent := ctx.Steps[1]
	for _, row := range ctx.Steps[2:5] {
		assert.Equal(t, parent.RACI, row.RACI)
		assert.True(t, row.Paragraphs[0].Bold)
		assert.Equal(t, 12, row.Paragraphs[0].FontSize)
		assert.False(t, row.Paragraphs[2].Bold)
		assert.Equal(t, 11, row.Paragraphs[2].FontSize)
		assert.True(t, row.Paragraphs[4].Bold)
	}
}

func TestGatewayCases_SelfLoopIsRevert(t *testing.T) {
	// A branch looping back onto its own step (redo) counts as a revert.
	body := strings.Join([]string{
		xLane("Lane_1", "Reviewer", "t1", "t2"),
		xEvent("startEvent", "s1", "Go", nil, []string{"f0"}),
		xTask("t1", "1. Check", []string{"f0", "fr"}, []string{"f1"}),
		xGateway("exclusiveGateway", "gw1", []string{"f1"}, []string{"fr", "fp"}),
		xTask("t2", "2. Ship", []string{"fp"}, nil),
		xFlow("f0", "s1", "t1"),
		xFlow("f1", "t1", "gw1"),
		xFlowNamed("fr", "gw1", "t1", "Redo"),
		xFlowNamed("fp", "gw1", "t2", "Pass"),
	}, "\n")

	ctx, err := Generate(buildDoc(body), schema.Metadata{})
	require.NoError(t, err)
	require.Len(t, ctx.Steps, 4)

	redo := ctx.Steps[1]
	assert.Equal(t, "1A", redo.Ref)
	assert.Equal(t, "Case A: Redo", redo.Paragraphs[0].Text)
	assert.Equal(t, "Revert to Step 1", redo.Paragraphs[4].Text)

	pass := ctx.Steps[2]
	assert.Equal(t, "Case B: Pass", pass.Paragraphs[0].Text)
	assert.Equal(t, "Proceed to Step 2", pass.Paragraphs[4].Text)
}

func TestGatewayCases_UnlabeledTaskBranch(t *testing.T) {
	body := strings.Join([]string{
		xLane("Lane_1", "Reviewer", "t1", "t2"),
		xEvent("startEvent", "s1", "Go", nil, []string{"f0"}),
		xTask("t1", "1. Check", []string{"f0"}, []string{"f1"}),
		xGateway("exclusiveGateway", "gw1", []string{"f1"}, []string{"fp", "fe"}),
		xTask("t2", "2. Ship", []string{"fp"}, nil),
		xEvent("endEvent", "e1", "Stopped", []string{"fe"}, nil),
		xFlow("f0", "s1", "t1"),
		xFlow("f1", "t1", "gw1"),
		xFlow("fp", "gw1", "t2"),
		xFlow("fe", "gw1", "e1"),
	}, "\n")

	ctx, err := Generate(buildDoc(body), schema.Metadata{})
	require.NoError(t, err)
	require.Len(t, ctx.Steps, 4)

	assert.Equal(t, "Case A: Complete", ctx.Steps[1].Paragraphs[0].Text)
	assert.Equal(t, "Case B: [CONDITION UNLABELED]", ctx.Steps[2].Paragraphs[0].Text)
	assert.Equal(t, "[Condition explanation for [CONDITION UNLABELED]]", ctx.Steps[2].Paragraphs[2].Text)
}

func TestGatewayCases_NestedParallelSplit(t *testing.T) {
	// XOR branch lands on an AND split: one parallel-routing case listing
	// every downstream step.
	body := strings.Join([]string{
		xLane("Lane_1", "Reviewer", "t1", "t2", "t3"),
		xEvent("startEvent", "s1", "Go", nil, []string{"f0"}),
		xTask("t1", "1. Check", []string{"f0"}, []string{"f1"}),
		xGateway("exclusiveGateway", "gw1", []string{"f1"}, []string{"fx", "fe"}),
		xGateway("parallelGateway", "gw2", []string{"fx"}, []string{"fa", "fb"}),
		xTask("t2", "2. Pack", []string{"fa"}, nil),
		xTask("t3", "3. Invoice", []string{"fb"}, nil),
		xEvent("endEvent", "e1", "Stopped", []string{"fe"}, nil),
		xFlow("f0", "s1", "t1"),
		xFlow("f1", "t1", "gw1"),
		xFlowNamed("fx", "gw1", "gw2", "Accepted"),
		xFlow("fe", "gw1", "e1"),
		xFlow("fa", "gw2", "t2"),
		xFlow("fb", "gw2", "t3"),
	}, "\n")

	ctx, err := Generate(buildDoc(body), schema.Metadata{})
	require.NoError(t, err)
	require.Len(t, ctx.Steps, 5)

	parallel := ctx.Steps[2]
	assert.Equal(t, "1B", parallel.Ref)
	assert.Equal(t, "Case B: Accepted", parallel.Paragraphs[0].Text)
	assert.Equal(t, "Proceed to Step 2 and Step 3", parallel.Paragraphs[4].Text)
}

func TestGatewayCases_IntermediateEventBranch(t *testing.T) {
	// XOR branch passes through a named intermediate event before its task.
	body := strings.Join([]string{
		xLane("Lane_1", "Reviewer", "t1", "t2"),
		xEvent("startEvent", "s1", "Go", nil, []string{"f0"}),
		xTask("t1", "1. Submit", []string{"f0"}, []string{"f1"}),
		xGateway("exclusiveGateway", "gw1", []string{"f1"}, []string{"fw", "fe"}),
		xEvent("intermediateCatchEvent", "ev1", "Payment Confirmed", []string{"fw"}, []string{"f2"}),
		xTask("t2", "2. Deliver", []string{"f2"}, nil),
		xEvent("endEvent", "e1", "Withdrawn", []string{"fe"}, nil),
		xFlow("f0", "s1", "t1"),
		xFlow("f1", "t1", "gw1"),
		xFlowNamed("fw", "gw1", "ev1", "Paid"),
		xFlow("fe", "gw1", "e1"),
		xFlow("f2", "ev1", "t2"),
	}, "\n")

	ctx, err := Generate(buildDoc(body), schema.Metadata{})
	require.NoError(t, err)
	require.Len(t, ctx.Steps, 4)

	waiting := ctx.Steps[2]
	assert.Equal(t, "Case B: Paid", waiting.Paragraphs[0].Text)
	assert.Equal(t, "Wait until Payment Confirmed Then Proceed to Step 2", waiting.Paragraphs[4].Text)
}

func TestGatewayCases_SubprocessBranch(t *testing.T) {
	body := strings.Join([]string{
		xLane("Lane_1", "Reviewer", "t1", "t2"),
		xEvent("startEvent", "s1", "Go", nil, []string{"f0"}),
		xTask("t1", "1. Triage", []string{"f0"}, []string{"f1"}),
		xGateway("exclusiveGateway", "gw1", []string{"f1"}, []string{"fs", "fp"}),
		`<bpmn:subProcess id="sp1" name="Escalation"><bpmn:incoming>fs</bpmn:incoming><bpmn:outgoing>f2</bpmn:outgoing></bpmn:subProcess>`,
		xTask("t2", "2. Resolve", []string{"fp", "f2"}, nil),
		xFlow("f0", "s1", "t1"),
		xFlow("f1", "t1", "gw1"),
		xFlowNamed("fs", "gw1", "sp1", "Escalate"),
		xFlowNamed("fp", "gw1", "t2", "Handle Directly"),
		xFlow("f2", "sp1", "t2"),
	}, "\n")

	ctx, err := Generate(buildDoc(body), schema.Metadata{})
	require.NoError(t, err)
	require.Len(t, ctx.Steps, 4)

	// Proceed (step 2) sorts before the subprocess continuation.
	direct := ctx.Steps[1]
	assert.Equal(t, "Case A: Handle Directly", direct.Paragraphs[0].Text)
	assert.Equal(t, "Proceed to Step 2", direct.Paragraphs[4].Text)

	escalate := ctx.Steps[2]
	assert.Equal(t, "Case B: Escalate", escalate.Paragraphs[0].Text)
	assert.Equal(t, "Start Escalation Process, then Proceed to Step 2", escalate.Paragraphs[4].Text)
}
