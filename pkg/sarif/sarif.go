package sarif

import (
	"encoding/base64"
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/praetorian-inc/sigscan/pkg/signature"
	"github.com/praetorian-inc/sigscan/pkg/types"
)

// SARIF 2.1.0 constants
const (
	SchemaURI = "https://raw.githubusercontent.com/oasis-tcs/sarif-spec/master/Schemata/sarif-schema-2.1.0.json"
	Version   = "2.1.0"
	ToolName  = "sigscan"
)

// Report is the top-level SARIF report structure
type Report struct {
	Schema  string `json:"$schema"`
	Version string `json:"version"`
	Runs    []Run  `json:"runs"`
}

// Run represents a single invocation of the tool
type Run struct {
	Tool    Tool     `json:"tool"`
	Results []Result `json:"results"`
}

// Tool describes the analysis tool
type Tool struct {
	Driver Driver `json:"driver"`
}

// Driver contains tool metadata
type Driver struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Rules   []Rule `json:"rules,omitempty"`
}

// Rule represents a detection rule
type Rule struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	ShortDescription ShortDescription `json:"shortDescription"`
	HelpURI          string           `json:"helpUri,omitempty"`
	Properties       RuleProperties   `json:"properties"`
}

// RuleProperties carries the signature a rule scans for.
type RuleProperties struct {
	Signature string   `json:"signature"`
	Tags      []string `json:"tags,omitempty"`
}

// ShortDescription contains rule description text
type ShortDescription struct {
	Text string `json:"text"`
}

// Result represents a single finding
type Result struct {
	RuleID              string            `json:"ruleId"`
	Level               string            `json:"level"`
	Message             Message           `json:"message"`
	Locations           []Location        `json:"locations"`
	PartialFingerprints map[string]string `json:"partialFingerprints,omitempty"`
}

// Message contains the result message
type Message struct {
	Text string `json:"text"`
}

// Location describes where a result was found
type Location struct {
	PhysicalLocation PhysicalLocation `json:"physicalLocation"`
}

// PhysicalLocation specifies file location
type PhysicalLocation struct {
	ArtifactLocation ArtifactLocation `json:"artifactLocation"`
	Region           Region           `json:"region"`
}

// ArtifactLocation identifies the file
type ArtifactLocation struct {
	URI string `json:"uri"`
}

// Region specifies the byte range of a match
type Region struct {
	ByteOffset int64    `json:"byteOffset"`
	ByteLength int64    `json:"byteLength"`
	Snippet    *Snippet `json:"snippet,omitempty"`
}

// Snippet contains the matched bytes as spaced hex text and base64
type Snippet struct {
	Text   string `json:"text"`
	Binary string `json:"binary"`
}

// NewReport creates a new SARIF report with initialized structure
func NewReport(toolVersion string) *Report {
	return &Report{
		Schema:  SchemaURI,
		Version: Version,
		Runs: []Run{
			{
				Tool: Tool{
					Driver: Driver{
						Name:    ToolName,
						Version: toolVersion,
						Rules:   []Rule{},
					},
				},
				Results: []Result{},
			},
		},
	}
}

// AddRule adds a detection rule to the report
func (r *Report) AddRule(rule *types.Rule) {
	sarifRule := Rule{
		ID:   rule.ID,
		Name: rule.Name,
		ShortDescription: ShortDescription{
			Text: rule.Description,
		},
		Properties: RuleProperties{
			Signature: rule.Signature,
			Tags:      rule.Categories,
		},
	}
	if sarifRule.ShortDescription.Text == "" {
		sarifRule.ShortDescription.Text = rule.Name
	}

	// Add first reference as helpUri if available
	if len(rule.References) > 0 {
		sarifRule.HelpURI = rule.References[0]
	}

	r.Runs[0].Tool.Driver.Rules = append(r.Runs[0].Tool.Driver.Rules, sarifRule)
}

// AddResult adds a match found in the blob described by prov
func (r *Report) AddResult(match *types.Match, prov types.Provenance) {
	region := Region{
		ByteOffset: match.Location.Offset.Start,
		ByteLength: match.Location.Offset.Len(),
	}

	if len(match.Snippet.Matching) > 0 {
		region.Snippet = &Snippet{
			Text:   signature.Encode(match.Snippet.Matching, nil),
			Binary: base64.StdEncoding.EncodeToString(match.Snippet.Matching),
		}
	}

	result := Result{
		RuleID: match.RuleID,
		Level:  "note",
		Message: Message{
			Text: match.RuleName,
		},
		Locations: []Location{
			{
				PhysicalLocation: PhysicalLocation{
					ArtifactLocation: ArtifactLocation{
						URI: ArtifactURI(prov, match.BlobID),
					},
					Region: region,
				},
			},
		},
		PartialFingerprints: map[string]string{
			"matchStructuralId/v1": match.StructuralID,
		},
	}

	r.Runs[0].Results = append(r.Runs[0].Results, result)
}

// ToJSON serializes the report to JSON bytes
func (r *Report) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// ArtifactURI renders the location of a blob. Archive members use the
// "archive!/member" convention; blobs without provenance are named by ID.
func ArtifactURI(prov types.Provenance, blobID types.BlobID) string {
	switch p := prov.(type) {
	case types.FileProvenance:
		return formatFileURI(p.FilePath)
	case types.ArchiveProvenance:
		return formatFileURI(p.ArchivePath) + "!/" + filepath.ToSlash(p.MemberPath)
	case types.GitProvenance:
		return filepath.ToSlash(p.BlobPath)
	default:
		return "blob:" + blobID.Hex()
	}
}

// formatFileURI converts a file path to SARIF URI format
// Absolute paths get file:// prefix, relative paths stay as-is
func formatFileURI(path string) string {
	if filepath.IsAbs(path) {
		path = filepath.ToSlash(path)
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		return "file://" + path
	}
	return filepath.ToSlash(path)
}
