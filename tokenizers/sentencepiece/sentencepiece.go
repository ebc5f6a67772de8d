// Package sentencepiece implements a tokenizers.Tokenizer based on the
// SentencePiece tokenizer, the subword model T5-family checkpoints ship with.
package sentencepiece

import (
	esentencepiece "github.com/eliben/go-sentencepiece"
	"github.com/pkg/errors"

	"github.com/Toma62299781/Generative-ABSA/tokenizers"
)

// New creates a SentencePiece tokenizer from a "tokenizer.model" file, which
// must be a SentencePiece Model proto.
func New(modelPath string) (*Tokenizer, error) {
	proc, err := esentencepiece.NewProcessorFromPath(modelPath)
	if err != nil {
		return nil, errors.Wrapf(err, "can't create sentencepiece tokenizer from %q", modelPath)
	}
	return &Tokenizer{
		Processor: proc,
		Info:      proc.ModelInfo(),
	}, nil
}

// Tokenizer implements tokenizers.Tokenizer based on SentencePiece by Google.
type Tokenizer struct {
	*esentencepiece.Processor
	Info *esentencepiece.ModelInfo
}

// Compile time assert that sentencepiece.Tokenizer implements tokenizers.Tokenizer.
var _ tokenizers.Tokenizer = &Tokenizer{}

// Encode returns the text encoded into a sequence of ids.
func (p *Tokenizer) Encode(text string) []int {
	tokens := p.Processor.Encode(text)
	ids := make([]int, len(tokens))
	for i, tok := range tokens {
		ids[i] = tok.ID
	}
	return ids
}

// Decode returns the text from a sequence of ids.
func (p *Tokenizer) Decode(ids []int) string {
	return p.Processor.Decode(ids)
}

// SpecialTokenID returns the id for the given special token, or an error if
// the model doesn't register it.
func (p *Tokenizer) SpecialTokenID(token tokenizers.SpecialToken) (int, error) {
	switch token {
	case tokenizers.TokUnknown:
		return p.Info.UnknownID, nil
	case tokenizers.TokPad:
		return p.Info.PadID, nil
	case tokenizers.TokBeginningOfSentence:
		return p.Info.BeginningOfSentenceID, nil
	case tokenizers.TokEndOfSentence:
		return p.Info.EndOfSentenceID, nil
	default:
		return 0, errors.Errorf("unknown special token: %s (%d)", token, int(token))
	}
}
