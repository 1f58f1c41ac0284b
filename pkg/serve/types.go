package serve

import (
	"encoding/json"

	"github.com/praetorian-inc/sigscan/pkg/scanner"
)

// Request represents an incoming NDJSON request
type Request struct {
	Type    string          `json:"type"`    // "scan" | "scan_batch" | "find" | "close"
	Payload json.RawMessage `json:"payload"`
}

// ScanPayload is the payload for "scan" requests. Content is base64 in JSON.
type ScanPayload struct {
	Content []byte `json:"content"`
	Source  string `json:"source"`
}

// ScanBatchPayload is the payload for "scan_batch" requests
type ScanBatchPayload struct {
	Items []ScanPayload `json:"items"`
}

// ScanBatchResult is the data field for "scan_batch" responses, one result
// per item in request order.
type ScanBatchResult struct {
	Results []*scanner.ScanResult `json:"results"`
}

// FindPayload is the payload for "find" requests: one signature searched
// in one buffer without the loaded rules.
type FindPayload struct {
	Signature string `json:"signature"`
	Content   []byte `json:"content"`
	Limit     int    `json:"limit,omitempty"`
}

// FindHit is one occurrence in a "find" response.
type FindHit struct {
	Offset int    `json:"offset"`
	Bytes  string `json:"bytes"`
}

// FindResult is the data field for "find" responses
type FindResult struct {
	Signature string    `json:"signature"`
	Hits      []FindHit `json:"hits"`
}

// Response represents an outgoing NDJSON response
type Response struct {
	Success bool            `json:"success"`
	Type    string          `json:"type"`            // "ready" | "scan" | "scan_batch" | "find" | "decode" | "unknown"
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// ReadyData is the data field for "ready" responses
type ReadyData struct {
	Version string `json:"version"`
	Rules   int    `json:"rules"`
}
