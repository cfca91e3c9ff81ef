package sop

import "github.com/procdocs/sopgen/pkg/schema"

// planSLAMerges computes the vertical merge ranges for the SLA column as
// half-open-free inclusive [Start, End] indexes into the step list.
//
// A step with its own SLA merges with the gateway-case rows that follow it.
// A step inside an SLA group extends the merge across every consecutive
// step carrying the same group ID, gateway cases included. Steps without an
// SLA produce no range, and their gateway rows are skipped with them.
func planSLAMerges(steps []schema.StepRecord) []schema.MergeRange {
	var merges []schema.MergeRange
	idx := 0
	for idx < len(steps) {
		step := steps[idx]

		switch {
		case step.SLA != "" && step.SLAGroup == "":
			start, end := idx, idx
			j := idx + 1
			for j < len(steps) && steps[j].IsGatewayCase {
				end = j
				j++
			}
			merges = append(merges, schema.MergeRange{Start: start, End: end, SLA: step.SLA})
			idx = j

		case step.SLAGroup != "":
			start, end := idx, idx
			groupSLA := step.SLA
			j := idx + 1
			for j < len(steps) && steps[j].IsGatewayCase {
				end = j
				j++
			}
			for j < len(steps) && steps[j].SLAGroup == step.SLAGroup {
				end = j
				j++
				for j < len(steps) && steps[j].IsGatewayCase {
					end = j
					j++
				}
			}
			merges = append(merges, schema.MergeRange{Start: start, End: end, SLA: groupSLA})
			idx = j

		default:
			idx++
			for idx < len(steps) && steps[idx].IsGatewayCase {
				idx++
			}
		}
	}
	return merges
}
