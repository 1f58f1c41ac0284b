package sarif

import (
	"encoding/json"
	"testing"

	"github.com/praetorian-inc/sigscan/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReport(t *testing.T) {
	report := NewReport("1.2.3")

	assert.Equal(t, SchemaURI, report.Schema)
	assert.Equal(t, Version, report.Version)
	require.Len(t, report.Runs, 1)
	assert.Equal(t, ToolName, report.Runs[0].Tool.Driver.Name)
	assert.Equal(t, "1.2.3", report.Runs[0].Tool.Driver.Version)
	assert.NotNil(t, report.Runs[0].Results)
}

func TestAddRule(t *testing.T) {
	report := NewReport("dev")

	report.AddRule(&types.Rule{
		ID:          "exe.elf.1",
		Name:        "ELF header",
		Signature:   "7F 45 4C 46 ?? ?? 01",
		Description: "ELF identification bytes",
		References:  []string{"https://example.com/elf"},
		Categories:  []string{"executable"},
	})
	report.AddRule(&types.Rule{ID: "x", Name: "No description", Signature: "11"})

	rules := report.Runs[0].Tool.Driver.Rules
	require.Len(t, rules, 2)
	assert.Equal(t, "exe.elf.1", rules[0].ID)
	assert.Equal(t, "ELF identification bytes", rules[0].ShortDescription.Text)
	assert.Equal(t, "https://example.com/elf", rules[0].HelpURI)
	assert.Equal(t, "7F 45 4C 46 ?? ?? 01", rules[0].Properties.Signature)
	assert.Equal(t, []string{"executable"}, rules[0].Properties.Tags)
	assert.Equal(t, "No description", rules[1].ShortDescription.Text)
}

func TestAddResult(t *testing.T) {
	report := NewReport("dev")

	match := &types.Match{
		RuleID:       "exe.elf.1",
		RuleName:     "ELF header",
		StructuralID: "abc",
		Location: types.Location{
			Offset: types.OffsetSpan{Start: 64, End: 71},
		},
		Snippet: types.Snippet{
			Matching: []byte{0x7F, 0x45, 0x4C, 0x46, 0x02, 0x01, 0x01},
		},
	}

	report.AddResult(match, types.FileProvenance{FilePath: "/usr/bin/tool"})

	require.Len(t, report.Runs[0].Results, 1)
	result := report.Runs[0].Results[0]
	assert.Equal(t, "exe.elf.1", result.RuleID)
	assert.Equal(t, "note", result.Level)
	assert.Equal(t, "ELF header", result.Message.Text)
	assert.Equal(t, "abc", result.PartialFingerprints["matchStructuralId/v1"])

	loc := result.Locations[0].PhysicalLocation
	assert.Equal(t, "file:///usr/bin/tool", loc.ArtifactLocation.URI)
	assert.Equal(t, int64(64), loc.Region.ByteOffset)
	assert.Equal(t, int64(7), loc.Region.ByteLength)
	require.NotNil(t, loc.Region.Snippet)
	assert.Equal(t, "7F 45 4C 46 02 01 01", loc.Region.Snippet.Text)
	assert.Equal(t, "f0VMRgIBAQ==", loc.Region.Snippet.Binary)
}

func TestArtifactURI(t *testing.T) {
	id := types.BlobID{0xAB}

	tests := []struct {
		name string
		prov types.Provenance
		want string
	}{
		{"absolute file", types.FileProvenance{FilePath: "/a/b.bin"}, "file:///a/b.bin"},
		{"relative file", types.FileProvenance{FilePath: "b.bin"}, "b.bin"},
		{"archive member", types.ArchiveProvenance{ArchivePath: "/x.zip", MemberPath: "lib/a.so"}, "file:///x.zip!/lib/a.so"},
		{"git blob", types.GitProvenance{RepoPath: "/repo", BlobPath: "bin/tool"}, "bin/tool"},
		{"no provenance", nil, "blob:" + id.Hex()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ArtifactURI(tt.prov, id))
		})
	}
}

func TestToJSON(t *testing.T) {
	report := NewReport("dev")
	report.AddRule(&types.Rule{ID: "r", Name: "R", Signature: "CA FE"})
	report.AddResult(&types.Match{
		RuleID:   "r",
		Location: types.Location{Offset: types.OffsetSpan{Start: 0, End: 2}},
		Snippet:  types.Snippet{Matching: []byte{0xCA, 0xFE}},
	}, nil)

	data, err := report.ToJSON()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "2.1.0", decoded["version"])

	runs := decoded["runs"].([]any)
	results := runs[0].(map[string]any)["results"].([]any)
	region := results[0].(map[string]any)["locations"].([]any)[0].(map[string]any)["physicalLocation"].(map[string]any)["region"].(map[string]any)
	assert.Equal(t, float64(2), region["byteLength"])
	assert.Equal(t, "CA FE", region["snippet"].(map[string]any)["text"])
}
