package schema

// Alignment enumerates paragraph alignments understood by document renderers.
type Alignment string

const (
	AlignLeft    Alignment = "LEFT"
	AlignCenter  Alignment = "CENTER"
	AlignJustify Alignment = "JUSTIFY"
)

// Paragraph is one formatted line inside a step record cell.
type Paragraph struct {
	Text      string    `json:"text"`
	FontSize  int       `json:"font_size"`
	Bold      bool      `json:"bold"`
	Alignment Alignment `json:"alignment"`
}

// RACI holds the role assignment for a lane. Missing roles default to "N/A".
type RACI struct {
	Responsible string `json:"responsible"`
	Accountable string `json:"accountable"`
	Consulted   string `json:"consulted"`
	Informed    string `json:"informed"`
}

// DefaultRACI returns a RACI with every role set to "N/A".
func DefaultRACI() RACI {
	return RACI{Responsible: "N/A", Accountable: "N/A", Consulted: "N/A", Informed: "N/A"}
}

// StepRecord is one SOP table row: a numbered task step ("12") or a
// gateway case ("12A"). Rows are emitted in generation order; gateway
// cases immediately follow their parent step.
type StepRecord struct {
	Ref           string      `json:"ref"`
	IsGatewayCase bool        `json:"is_gateway"`
	SLA           string      `json:"sla,omitempty"`
	SLAGroup      string      `json:"sla_group,omitempty"`
	RACI          RACI        `json:"raci"`
	Paragraphs    []Paragraph `json:"paragraphs"`
}

// MergeRange marks a run of step rows [Start, End] that share one SLA
// value and should render as a single merged cell.
type MergeRange struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	SLA   string `json:"sla"`
}

// Abbreviation is one term/definition pair for the abbreviations table.
type Abbreviation struct {
	Term       string `json:"term"`
	Definition string `json:"definition"`
}

// Reference is one row of the references and approvals table.
type Reference struct {
	Ref      string `json:"ref"`
	Document string `json:"document"`
}

// Policy is one numbered row of the general policies table.
type Policy struct {
	Ref    string `json:"ref"`
	Policy string `json:"policy"`
}

// Metadata is the caller-supplied (or BPMN-extracted) document header data.
// Any empty field falls back to a value auto-extracted from the diagram.
type Metadata struct {
	ProcessName     string         `json:"process_name,omitempty"`
	ProcessCode     string         `json:"process_code,omitempty"`
	IssuedBy        string         `json:"issued_by,omitempty"`
	ReleaseDate     string         `json:"release_date,omitempty"`
	ProcessOwner    string         `json:"process_owner,omitempty"`
	Purpose         string         `json:"purpose,omitempty"`
	Scope           string         `json:"scope,omitempty"`
	Inputs          string         `json:"inputs,omitempty"`
	Outputs         string         `json:"outputs,omitempty"`
	LaneNames       []string       `json:"lane_names,omitempty"`
	Abbreviations   []Abbreviation `json:"abbreviations_list,omitempty"`
	References      []Reference    `json:"references_list,omitempty"`
	GeneralPolicies []Policy       `json:"general_policies_list,omitempty"`
}

// SOPContext is the full generation output consumed by document renderers:
// header metadata, the ordered step rows, and the SLA merge plan.
type SOPContext struct {
	ProcessName     string         `json:"process_name"`
	ProcessCode     string         `json:"process_code"`
	IssuedBy        string         `json:"issued_by"`
	ReleaseDate     string         `json:"release_date"`
	ProcessOwner    string         `json:"process_owner"`
	Purpose         string         `json:"purpose"`
	Scope           string         `json:"scope"`
	Inputs          string         `json:"inputs"`
	Outputs         string         `json:"outputs"`
	Abbreviations   []Abbreviation `json:"abbreviations_list"`
	References      []Reference    `json:"references_list"`
	GeneralPolicies []Policy       `json:"general_policies_list"`
	Steps           []StepRecord   `json:"steps"`
	Merges          []MergeRange   `json:"sla_merges"`
}
