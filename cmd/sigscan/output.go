package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/praetorian-inc/sigscan/pkg/sarif"
	"github.com/praetorian-inc/sigscan/pkg/store"
	"github.com/praetorian-inc/sigscan/pkg/types"
)

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// writeSARIF renders matches as SARIF 2.1.0. Each result points at the
// first recorded location of its blob.
func writeSARIF(w io.Writer, s store.Store, rules []*types.Rule, matches []*types.Match) error {
	report := sarif.NewReport(version)
	for _, r := range rules {
		report.AddRule(r)
	}

	// Cache provenance by blob ID to avoid repeated queries
	provenanceCache := make(map[types.BlobID]types.Provenance)
	for _, match := range matches {
		prov, ok := provenanceCache[match.BlobID]
		if !ok {
			provs, err := s.GetProvenance(match.BlobID)
			if err != nil {
				return fmt.Errorf("retrieving provenance: %w", err)
			}
			if len(provs) > 0 {
				prov = provs[0]
			}
			provenanceCache[match.BlobID] = prov
		}
		report.AddResult(match, prov)
	}

	data, err := report.ToJSON()
	if err != nil {
		return fmt.Errorf("serializing SARIF: %w", err)
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing SARIF output: %w", err)
	}
	return nil
}
