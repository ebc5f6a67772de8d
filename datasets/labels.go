package datasets

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/pkg/errors"

	"github.com/Toma62299781/Generative-ABSA/absa"
)

// Gold annotations use a bracketed tuple-list grammar, one list per line:
//
//	uabsa: [([0, 1], 'POS'), ([4], 'NEG')]
//	aste:  [([0, 1], [3], 'POS')]
//	tasd:  [('battery life', 'laptop general', 'POS'), ('service general', 'NEG')]
//	aope:  [([0, 1], [3])]
//
// Span fields are token-index lists into the sentence; text fields are
// single-quoted.

// goldField is one parsed tuple field: either a token-index span or a quoted
// string.
type goldField struct {
	span   []int
	str    string
	isSpan bool
}

// parseGoldLabels parses a serialized gold-label list for the given task.
func parseGoldLabels(raw string, task absa.Task) ([]absa.Label, error) {
	p := &goldParser{input: strings.TrimSpace(raw)}
	tuples, err := p.parseList()
	if err != nil {
		return nil, err
	}
	p.skipSpaces()
	if p.pos != len(p.input) {
		return nil, p.errorf("trailing characters after label list")
	}
	labels := make([]absa.Label, 0, len(tuples))
	for i, fields := range tuples {
		label, err := labelFromFields(fields, task)
		if err != nil {
			return nil, errors.Wrapf(err, "gold tuple #%d", i)
		}
		labels = append(labels, label)
	}
	return labels, nil
}

func labelFromFields(fields []goldField, task absa.Task) (absa.Label, error) {
	switch task {
	case absa.TaskUABSA:
		if len(fields) != 2 || !fields[0].isSpan || fields[1].isSpan {
			return absa.Label{}, errors.New("uabsa gold tuples are (aspect span, polarity)")
		}
		return absa.Label{AspectSpan: fields[0].span, Polarity: fields[1].str}, nil

	case absa.TaskASTE:
		if len(fields) != 3 || !fields[0].isSpan || !fields[1].isSpan || fields[2].isSpan {
			return absa.Label{}, errors.New("aste gold tuples are (aspect span, opinion span, polarity)")
		}
		return absa.Label{AspectSpan: fields[0].span, OpinionSpan: fields[1].span, Polarity: fields[2].str}, nil

	case absa.TaskAOPE:
		if len(fields) != 2 || !fields[0].isSpan || !fields[1].isSpan {
			return absa.Label{}, errors.New("aope gold tuples are (aspect span, opinion span)")
		}
		return absa.Label{AspectSpan: fields[0].span, OpinionSpan: fields[1].span}, nil

	case absa.TaskTASD:
		for _, f := range fields {
			if f.isSpan {
				return absa.Label{}, errors.New("tasd gold tuples carry text fields only")
			}
		}
		switch len(fields) {
		case 2: // implicit aspect: (category, polarity)
			return absa.Label{Category: fields[0].str, Polarity: fields[1].str}, nil
		case 3:
			label := absa.Label{Category: fields[1].str, Polarity: fields[2].str}
			if fields[0].str != absa.NullAspect {
				label.AspectText = fields[0].str
			}
			return label, nil
		default:
			return absa.Label{}, errors.New("tasd gold tuples are (aspect, category, polarity) or (category, polarity)")
		}
	}
	return absa.Label{}, errors.Errorf("unknown task %q", task)
}

// goldParser is a small recursive-descent parser for the tuple-list grammar.
type goldParser struct {
	input string
	pos   int
}

func (p *goldParser) parseList() ([][]goldField, error) {
	if err := p.expect('['); err != nil {
		return nil, err
	}
	var tuples [][]goldField
	p.skipSpaces()
	if p.peek() == ']' {
		p.pos++
		return tuples, nil
	}
	for {
		fields, err := p.parseTuple()
		if err != nil {
			return nil, err
		}
		tuples = append(tuples, fields)
		p.skipSpaces()
		switch p.peek() {
		case ',':
			p.pos++
		case ']':
			p.pos++
			return tuples, nil
		default:
			return nil, p.errorf("expected ',' or ']' after tuple")
		}
	}
}

func (p *goldParser) parseTuple() ([]goldField, error) {
	if err := p.expect('('); err != nil {
		return nil, err
	}
	var fields []goldField
	for {
		p.skipSpaces()
		switch p.peek() {
		case '[':
			span, err := p.parseSpan()
			if err != nil {
				return nil, err
			}
			fields = append(fields, goldField{span: span, isSpan: true})
		case '\'':
			str, err := p.parseString()
			if err != nil {
				return nil, err
			}
			fields = append(fields, goldField{str: str})
		default:
			return nil, p.errorf("expected span or quoted string")
		}
		p.skipSpaces()
		switch p.peek() {
		case ',':
			p.pos++
		case ')':
			p.pos++
			return fields, nil
		default:
			return nil, p.errorf("expected ',' or ')' in tuple")
		}
	}
}

func (p *goldParser) parseSpan() ([]int, error) {
	if err := p.expect('['); err != nil {
		return nil, err
	}
	var span []int
	for {
		p.skipSpaces()
		start := p.pos
		for p.pos < len(p.input) && (unicode.IsDigit(rune(p.input[p.pos])) || p.input[p.pos] == '-') {
			p.pos++
		}
		if p.pos == start {
			return nil, p.errorf("expected token index")
		}
		idx, err := strconv.Atoi(p.input[start:p.pos])
		if err != nil {
			return nil, p.errorf("bad token index %q", p.input[start:p.pos])
		}
		span = append(span, idx)
		p.skipSpaces()
		switch p.peek() {
		case ',':
			p.pos++
		case ']':
			p.pos++
			return span, nil
		default:
			return nil, p.errorf("expected ',' or ']' in span")
		}
	}
}

func (p *goldParser) parseString() (string, error) {
	if err := p.expect('\''); err != nil {
		return "", err
	}
	var b strings.Builder
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		switch c {
		case '\\':
			if p.pos+1 < len(p.input) {
				p.pos++
				b.WriteByte(p.input[p.pos])
				p.pos++
				continue
			}
			return "", p.errorf("dangling escape in quoted string")
		case '\'':
			p.pos++
			return b.String(), nil
		default:
			b.WriteByte(c)
			p.pos++
		}
	}
	return "", p.errorf("unterminated quoted string")
}

func (p *goldParser) skipSpaces() {
	for p.pos < len(p.input) && (p.input[p.pos] == ' ' || p.input[p.pos] == '\t') {
		p.pos++
	}
}

func (p *goldParser) peek() byte {
	if p.pos >= len(p.input) {
		return 0
	}
	return p.input[p.pos]
}

func (p *goldParser) expect(c byte) error {
	p.skipSpaces()
	if p.peek() != c {
		return p.errorf("expected %q", string(c))
	}
	p.pos++
	return nil
}

func (p *goldParser) errorf(format string, args ...any) error {
	return errors.Errorf("invalid gold annotation at offset %d: "+format,
		append([]any{p.pos}, args...)...)
}
