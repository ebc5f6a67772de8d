// Package tokenizers defines the tokenization adapter used by the inference
// pipeline: converting raw text to fixed-length padded integer-id sequences
// and back. Concrete subword implementations live in sub-packages.
package tokenizers

import (
	"github.com/pkg/errors"
)

// SpecialToken is an enum of commonly used special tokens: tokens with a
// common semantic (like padding) that may map to different ids for different
// tokenizers.
type SpecialToken int

const (
	TokBeginningOfSentence SpecialToken = iota
	TokEndOfSentence
	TokUnknown
	TokPad
)

func (s SpecialToken) String() string {
	switch s {
	case TokBeginningOfSentence:
		return "beginning_of_sentence"
	case TokEndOfSentence:
		return "end_of_sentence"
	case TokUnknown:
		return "unknown"
	case TokPad:
		return "pad"
	}
	return "invalid"
}

// Tokenizer converts text to integer token ids and back.
type Tokenizer interface {
	Encode(text string) []int
	Decode(ids []int) string

	// SpecialTokenID returns the id for the given special token if registered,
	// or an error if not.
	SpecialTokenID(token SpecialToken) (int, error)
}

// Encoded is a fixed-length model-ready id sequence with its attention mask:
// mask is 1 for real tokens (including the end-of-sentence token) and 0 for
// padding.
type Encoded struct {
	IDs  []int
	Mask []int
}

// EncodePadded encodes text into exactly maxLen ids: the token sequence plus
// an end-of-sentence token, truncated to maxLen if longer, padded with the
// pad token otherwise.
func EncodePadded(t Tokenizer, text string, maxLen int) (Encoded, error) {
	if maxLen <= 0 {
		return Encoded{}, errors.Errorf("invalid max sequence length %d", maxLen)
	}
	padID, err := t.SpecialTokenID(TokPad)
	if err != nil {
		return Encoded{}, errors.Wrap(err, "tokenizer has no pad token")
	}
	eosID, err := t.SpecialTokenID(TokEndOfSentence)
	if err != nil {
		return Encoded{}, errors.Wrap(err, "tokenizer has no end-of-sentence token")
	}

	ids := append(t.Encode(text), eosID)
	if len(ids) > maxLen {
		ids = ids[:maxLen]
		ids[maxLen-1] = eosID
	}

	enc := Encoded{
		IDs:  make([]int, maxLen),
		Mask: make([]int, maxLen),
	}
	for i := 0; i < maxLen; i++ {
		if i < len(ids) {
			enc.IDs[i] = ids[i]
			enc.Mask[i] = 1
		} else {
			enc.IDs[i] = padID
		}
	}
	return enc, nil
}

// DecodeSkipSpecial decodes ids back to text, dropping padding, end-of-sentence
// and beginning-of-sentence tokens first, the way generation output is read.
func DecodeSkipSpecial(t Tokenizer, ids []int) string {
	special := make(map[int]struct{}, 3)
	for _, tok := range []SpecialToken{TokPad, TokEndOfSentence, TokBeginningOfSentence} {
		if id, err := t.SpecialTokenID(tok); err == nil && id >= 0 {
			special[id] = struct{}{}
		}
	}
	kept := make([]int, 0, len(ids))
	for _, id := range ids {
		if _, ok := special[id]; ok {
			continue
		}
		kept = append(kept, id)
	}
	return t.Decode(kept)
}
