package datasets

import (
	"github.com/pkg/errors"

	"github.com/Toma62299781/Generative-ABSA/absa"
	"github.com/Toma62299781/Generative-ABSA/tokenizers"
)

// Item is one model-ready example: the raw texts plus the fixed-length padded
// id sequences for both sides. Target ids are empty for unlabeled examples.
type Item struct {
	Example Example

	SourceText string
	TargetText string

	Source tokenizers.Encoded
	Target tokenizers.Encoded
}

// Builder converts loaded examples into Items for a fixed (task, paradigm)
// pair, tokenizing both sides to MaxLen.
type Builder struct {
	Tokenizer tokenizers.Tokenizer
	Task      absa.Task
	Paradigm  absa.Paradigm
	MaxLen    int
}

// NewBuilder validates the configuration and returns a Builder.
func NewBuilder(tok tokenizers.Tokenizer, task absa.Task, paradigm absa.Paradigm, maxLen int) (*Builder, error) {
	if err := absa.Validate(task, paradigm); err != nil {
		return nil, err
	}
	if maxLen <= 0 {
		return nil, errors.Errorf("invalid max sequence length %d", maxLen)
	}
	if tok == nil {
		return nil, errors.New("builder requires a tokenizer")
	}
	return &Builder{Tokenizer: tok, Task: task, Paradigm: paradigm, MaxLen: maxLen}, nil
}

// Build converts one example.
func (b *Builder) Build(ex Example) (*Item, error) {
	item := &Item{Example: ex, SourceText: ex.Sentence}

	source, err := tokenizers.EncodePadded(b.Tokenizer, item.SourceText, b.MaxLen)
	if err != nil {
		return nil, errors.Wrap(err, "encoding source")
	}
	item.Source = source

	if ex.Labels != nil {
		target, err := absa.Serialize(ex.Tokens, ex.Labels, b.Task, b.Paradigm)
		if err != nil {
			return nil, errors.Wrap(err, "serializing gold target")
		}
		item.TargetText = target
		encoded, err := tokenizers.EncodePadded(b.Tokenizer, target, b.MaxLen)
		if err != nil {
			return nil, errors.Wrap(err, "encoding target")
		}
		item.Target = encoded
	}
	return item, nil
}

// BuildAll converts all examples, preserving order.
func (b *Builder) BuildAll(examples []Example) ([]*Item, error) {
	items := make([]*Item, 0, len(examples))
	for i, ex := range examples {
		item, err := b.Build(ex)
		if err != nil {
			return nil, errors.Wrapf(err, "example #%d", i)
		}
		items = append(items, item)
	}
	return items, nil
}
