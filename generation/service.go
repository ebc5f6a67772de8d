// Package generation defines the contract with the external sequence
// generation service: encoded source ids in, decoded output ids out. The
// decoding strategy (greedy, beam) is the service's concern.
package generation

import "context"

// Request is one batch of encoded sources.
type Request struct {
	// SourceIDs are fixed-length padded token-id sequences, one per example.
	SourceIDs [][]int `json:"source_ids"`
	// AttentionMask has the same shape as SourceIDs: 1 for real tokens, 0 for
	// padding.
	AttentionMask [][]int `json:"attention_mask"`
	// MaxLength bounds the generated output length.
	MaxLength int `json:"max_length"`
}

// Response carries the generated id sequences, in request order.
type Response struct {
	OutputIDs [][]int `json:"output_ids"`
}

// Service produces output token sequences from input token sequences. It is
// treated as a black box; a failure on one batch aborts the whole run.
type Service interface {
	Generate(ctx context.Context, req Request) (Response, error)
}
