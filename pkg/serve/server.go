// Package serve runs a scanner as a long-lived process speaking NDJSON over
// a pair of streams, so callers pay the rule compilation cost once.
package serve

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/praetorian-inc/sigscan/pkg/scanner"
	"github.com/praetorian-inc/sigscan/pkg/signature"
	"github.com/praetorian-inc/sigscan/pkg/types"
	"go.uber.org/zap"
)

// Version is the server protocol version
const Version = "1.0.0"

// Server manages the streaming scanner
type Server struct {
	core    *scanner.Core
	rules   int
	encoder *json.Encoder
	decoder *json.Decoder
	logger  *zap.Logger

	// readerDone is closed when the request reader of the last Run exits.
	readerDone chan struct{}
}

// NewServer creates a new streaming server. rules is reported in the ready
// message so clients can tell an empty rule set from a broken one.
func NewServer(core *scanner.Core, rules int, in io.Reader, out io.Writer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		core:    core,
		rules:   rules,
		encoder: json.NewEncoder(out),
		decoder: json.NewDecoder(bufio.NewReader(in)),
		logger:  logger,
	}
}

// Run sends a ready message and then answers requests until the input
// ends, a close request arrives or ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	// Stops the reader once Run returns, including after a close request
	// with more input still queued.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.send("ready", ReadyData{Version: Version, Rules: s.rules})

	reqChan := make(chan Request, 1)
	errChan := make(chan error, 1)
	readerDone := make(chan struct{})
	s.readerDone = readerDone

	go func() {
		defer close(readerDone)
		for {
			var req Request
			if err := s.decoder.Decode(&req); err != nil {
				errChan <- err
				return
			}
			select {
			case reqChan <- req:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errChan:
			// A request decoded just before EOF may still be queued
			for {
				select {
				case req := <-reqChan:
					if s.processRequest(req) {
						return nil
					}
				default:
					if err == io.EOF {
						return nil
					}
					s.sendError("decode", err.Error())
					return nil
				}
			}
		case req := <-reqChan:
			if s.processRequest(req) {
				return nil
			}
		}
	}
}

// processRequest handles a single request and returns true if the server should exit
func (s *Server) processRequest(req Request) bool {
	s.logger.Debug("request", zap.String("type", req.Type))

	switch req.Type {
	case "scan":
		s.handleScan(req.Payload)
	case "scan_batch":
		s.handleScanBatch(req.Payload)
	case "find":
		s.handleFind(req.Payload)
	case "close":
		return true
	default:
		s.sendError("unknown", "unknown request type: "+req.Type)
	}
	return false
}

func (s *Server) handleScan(payload json.RawMessage) {
	var p ScanPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		s.sendError("scan", err.Error())
		return
	}

	result, err := s.scan(p)
	if err != nil {
		s.sendError("scan", err.Error())
		return
	}
	s.send("scan", result)
}

func (s *Server) handleScanBatch(payload json.RawMessage) {
	var p ScanBatchPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		s.sendError("scan_batch", err.Error())
		return
	}

	batch := ScanBatchResult{Results: make([]*scanner.ScanResult, 0, len(p.Items))}
	for i, item := range p.Items {
		result, err := s.scan(item)
		if err != nil {
			s.sendError("scan_batch", fmt.Sprintf("item %d: %v", i, err))
			return
		}
		batch.Results = append(batch.Results, result)
	}
	s.send("scan_batch", batch)
}

func (s *Server) handleFind(payload json.RawMessage) {
	var p FindPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		s.sendError("find", err.Error())
		return
	}

	pattern, err := signature.Parse(p.Signature)
	if err != nil {
		s.sendError("find", err.Error())
		return
	}

	result := FindResult{Signature: pattern.String(), Hits: []FindHit{}}
	for offset, window := range pattern.Scan(p.Content).All() {
		if p.Limit > 0 && len(result.Hits) >= p.Limit {
			break
		}
		result.Hits = append(result.Hits, FindHit{Offset: offset, Bytes: signature.Encode(window, nil)})
	}
	s.send("find", result)
}

func (s *Server) scan(p ScanPayload) (*scanner.ScanResult, error) {
	var prov types.Provenance
	if p.Source != "" {
		prov = types.FileProvenance{FilePath: p.Source}
	}
	result, err := s.core.ScanBlob(p.Content, types.ComputeBlobID(p.Content), prov)
	if err != nil {
		return nil, err
	}
	if result.Matches == nil {
		result.Matches = []*types.Match{}
	}
	return result, nil
}

func (s *Server) send(respType string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.sendError(respType, err.Error())
		return
	}
	if err := s.encoder.Encode(Response{Success: true, Type: respType, Data: data}); err != nil {
		s.logger.Warn("writing response", zap.Error(err))
	}
}

func (s *Server) sendError(reqType, msg string) {
	if err := s.encoder.Encode(Response{Success: false, Type: reqType, Error: msg}); err != nil {
		s.logger.Warn("writing response", zap.Error(err))
	}
}
