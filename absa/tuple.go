package absa

import (
	"strings"

	"github.com/pkg/errors"
)

// NullAspect marks an implicit aspect term (tasd only).
const NullAspect = "NULL"

// Canonical polarity labels, the words the generation model emits.
const (
	PolarityPositive = "positive"
	PolarityNegative = "negative"
	PolarityNeutral  = "neutral"
)

// senttagToWord maps the short polarity tags used in gold data files to the
// canonical polarity words used in target text.
var senttagToWord = map[string]string{
	"POS": PolarityPositive,
	"NEG": PolarityNegative,
	"NEU": PolarityNeutral,
}

// CanonicalPolarity normalizes a polarity string: short gold tags (POS/NEG/NEU)
// and any casing of the canonical words map to the lowercase canonical word.
// Unknown values are lowercased and trimmed, so exact-match scoring still
// treats them as a non-match against well-formed gold.
func CanonicalPolarity(s string) string {
	s = strings.TrimSpace(s)
	if w, ok := senttagToWord[strings.ToUpper(s)]; ok {
		return w
	}
	return strings.ToLower(s)
}

// Tuple is one extracted sentiment element, the unit of scoring.
// Field usage depends on the task:
//
//	uabsa: Aspect, Polarity
//	aste:  Aspect, Opinion, Polarity
//	tasd:  Aspect (possibly NULL), Category, Polarity
//	aope:  Aspect, Opinion
//
// Unused fields are empty strings, so plain struct equality compares tuples
// of the same task.
type Tuple struct {
	Aspect   string
	Opinion  string
	Category string
	Polarity string
}

// fields returns the tuple's serialized fields in the task's fixed order.
func (tp Tuple) fields(task Task) []string {
	switch task {
	case TaskUABSA:
		return []string{tp.Aspect, tp.Polarity}
	case TaskASTE:
		return []string{tp.Aspect, tp.Opinion, tp.Polarity}
	case TaskTASD:
		return []string{tp.Aspect, tp.Category, tp.Polarity}
	default: // TaskAOPE
		return []string{tp.Aspect, tp.Opinion}
	}
}

// tupleFromFields builds a Tuple from serialized fields in the task's fixed
// order. Fields are trimmed; the polarity field is canonicalized.
func tupleFromFields(task Task, fields []string) Tuple {
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	switch task {
	case TaskUABSA:
		return Tuple{Aspect: fields[0], Polarity: CanonicalPolarity(fields[1])}
	case TaskASTE:
		return Tuple{Aspect: fields[0], Opinion: fields[1], Polarity: CanonicalPolarity(fields[2])}
	case TaskTASD:
		return Tuple{Aspect: fields[0], Category: fields[1], Polarity: CanonicalPolarity(fields[2])}
	default: // TaskAOPE
		return Tuple{Aspect: fields[0], Opinion: fields[1]}
	}
}

// Label is one gold annotation attached to a tokenized sentence. Spans are
// token indices into the sentence. A nil AspectSpan together with an empty
// AspectText means an implicit (NULL) aspect, which only tasd allows.
type Label struct {
	AspectSpan  []int
	OpinionSpan []int
	// AspectText overrides span resolution when the gold file carries the
	// aspect as literal text (tasd files do).
	AspectText string
	Category   string
	Polarity   string
}

// spanText joins the tokens covered by a span.
func spanText(tokens []string, span []int) (string, error) {
	parts := make([]string, 0, len(span))
	for _, idx := range span {
		if idx < 0 || idx >= len(tokens) {
			return "", errors.Errorf("span index %d out of range for sentence of %d tokens", idx, len(tokens))
		}
		parts = append(parts, tokens[idx])
	}
	return strings.Join(parts, " "), nil
}

// Tuple resolves a gold label against its sentence tokens into the normalized
// Tuple form used for scoring and serialization.
func (l Label) Tuple(tokens []string, task Task) (Tuple, error) {
	var tp Tuple
	switch {
	case l.AspectText != "":
		tp.Aspect = l.AspectText
	case len(l.AspectSpan) > 0:
		aspect, err := spanText(tokens, l.AspectSpan)
		if err != nil {
			return Tuple{}, errors.Wrap(err, "aspect span")
		}
		tp.Aspect = aspect
	case task == TaskTASD:
		tp.Aspect = NullAspect
	default:
		return Tuple{}, errors.Errorf("task %s requires an explicit aspect term", task)
	}

	if task.HasOpinion() {
		opinion, err := spanText(tokens, l.OpinionSpan)
		if err != nil {
			return Tuple{}, errors.Wrap(err, "opinion span")
		}
		if opinion == "" {
			return Tuple{}, errors.Errorf("task %s requires an opinion term", task)
		}
		tp.Opinion = opinion
	}
	if task == TaskTASD {
		if l.Category == "" {
			return Tuple{}, errors.New("tasd label missing aspect category")
		}
		tp.Category = l.Category
	}
	if task.HasPolarity() {
		if l.Polarity == "" {
			return Tuple{}, errors.Errorf("task %s label missing polarity", task)
		}
		tp.Polarity = CanonicalPolarity(l.Polarity)
	}
	return tp, nil
}

// Tuples resolves all gold labels of one example, preserving order.
func Tuples(tokens []string, labels []Label, task Task) ([]Tuple, error) {
	out := make([]Tuple, 0, len(labels))
	for i, l := range labels {
		tp, err := l.Tuple(tokens, task)
		if err != nil {
			return nil, errors.Wrapf(err, "label #%d", i)
		}
		out = append(out, tp)
	}
	return out, nil
}

// Dedupe removes duplicate tuples preserving first-seen order.
func Dedupe(tuples []Tuple) []Tuple {
	seen := make(map[Tuple]struct{}, len(tuples))
	out := tuples[:0:0]
	for _, tp := range tuples {
		if _, ok := seen[tp]; ok {
			continue
		}
		seen[tp] = struct{}{}
		out = append(out, tp)
	}
	return out
}
