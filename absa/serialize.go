package absa

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Serialize renders gold labels into the exact target text the generation
// model is trained to produce. The output round-trips through Parse for any
// well-formed label set.
func Serialize(tokens []string, labels []Label, task Task, paradigm Paradigm) (string, error) {
	if err := Validate(task, paradigm); err != nil {
		return "", err
	}
	if paradigm == ParadigmExtraction {
		return serializeExtraction(tokens, labels, task)
	}
	return serializeAnnotation(tokens, labels, task)
}

func serializeExtraction(tokens []string, labels []Label, task Task) (string, error) {
	tuples, err := Tuples(tokens, labels, task)
	if err != nil {
		return "", err
	}
	parts := make([]string, 0, len(tuples))
	for _, tp := range tuples {
		fields := tp.fields(task)
		for i, f := range fields {
			escaped, collided := escape(f, extractionReserved)
			if collided {
				klog.Warningf("delimiter collision in field %q, escaping", f)
			}
			fields[i] = escaped
		}
		parts = append(parts, strings.Join(fields, ", "))
	}
	return strings.Join(parts, "; "), nil
}

// marker is one bracket annotation to place into the sentence. Appended
// markers (implicit aspects, unlocatable tasd aspect text) carry start = -1
// and go after the last token.
type marker struct {
	start, end int // token index range [start, end], inclusive
	fields     []string
}

func serializeAnnotation(tokens []string, labels []Label, task Task) (string, error) {
	markers := make([]marker, 0, len(labels))
	for i, l := range labels {
		tp, err := l.Tuple(tokens, task)
		if err != nil {
			return "", errors.Wrapf(err, "label #%d", i)
		}
		m := marker{start: -1, end: -1, fields: tp.fields(task)}
		switch {
		case len(l.AspectSpan) > 0:
			m.start, m.end = l.AspectSpan[0], l.AspectSpan[len(l.AspectSpan)-1]
		case l.AspectText != "" && l.AspectText != NullAspect:
			// tasd gold carries the aspect as text; locate it in the sentence.
			m.start, m.end = findTokenSpan(tokens, l.AspectText)
		}
		markers = append(markers, m)
	}

	// Left-to-right placement; ties at identical start keep gold order.
	sort.SliceStable(markers, func(i, j int) bool {
		si, sj := markers[i].start, markers[j].start
		if si < 0 {
			return false
		}
		if sj < 0 {
			return true
		}
		return si < sj
	})

	var out []string
	next := 0
	for i := 0; i < len(tokens); {
		advanced := false
		for next < len(markers) && markers[next].start == i {
			m := markers[next]
			if m.end >= len(tokens) || m.end < m.start {
				return "", errors.Errorf("label span [%d,%d] out of range", m.start, m.end)
			}
			if advanced && m.end != markers[next-1].end {
				return "", errors.Errorf("overlapping label spans at token %d", i)
			}
			out = append(out, renderMarker(m.fields))
			next++
			advanced = true
		}
		if advanced {
			i = markers[next-1].end + 1
			continue
		}
		if next < len(markers) && markers[next].start >= 0 && markers[next].start < i {
			return "", errors.Errorf("overlapping label spans at token %d", i)
		}
		out = append(out, escapeToken(tokens[i]))
		i++
	}
	// Implicit or unlocatable aspects go at the end of the sentence.
	for ; next < len(markers); next++ {
		out = append(out, renderMarker(markers[next].fields))
	}
	return strings.Join(out, " "), nil
}

// escapeToken escapes reserved characters in an out-of-span sentence token so
// the parser cannot mistake it for a marker.
func escapeToken(tok string) string {
	e, collided := escape(tok, annotationReserved)
	if collided {
		klog.Warningf("delimiter collision in sentence token %q, escaping", tok)
	}
	return e
}

func renderMarker(fields []string) string {
	escaped := make([]string, len(fields))
	for i, f := range fields {
		e, collided := escape(f, annotationReserved)
		if collided {
			klog.Warningf("delimiter collision in field %q, escaping", f)
		}
		escaped[i] = e
	}
	return "[" + strings.Join(escaped, "|") + "]"
}

// findTokenSpan locates text as a contiguous token subsequence, returning its
// inclusive token range or (-1, -1).
func findTokenSpan(tokens []string, text string) (int, int) {
	want := strings.Fields(text)
	if len(want) == 0 {
		return -1, -1
	}
outer:
	for i := 0; i+len(want) <= len(tokens); i++ {
		for j, w := range want {
			if tokens[i+j] != w {
				continue outer
			}
		}
		return i, i + len(want) - 1
	}
	return -1, -1
}
