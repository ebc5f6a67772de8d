package absa

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Parse inverts Serialize, converting raw decoded model output back into a
// deduplicated tuple set. It is total: malformed segments are discarded, an
// arbitrary garbled string yields a (possibly empty) set, and no error is
// ever returned. sentence is the original input sentence, used to align
// annotation-paradigm span text back to the source; it is unused for the
// extraction paradigm.
func Parse(decoded, sentence string, task Task, paradigm Paradigm) []Tuple {
	if paradigm == ParadigmExtraction {
		return parseExtraction(decoded, task)
	}
	return parseAnnotation(decoded, sentence, task)
}

func parseExtraction(decoded string, task Task) []Tuple {
	arity := task.Arity()
	var tuples []Tuple
	for _, candidate := range splitUnescaped(decoded, ';') {
		fields := splitUnescaped(candidate, ',')
		if len(fields) != arity {
			// Wrong arity for the task schema, generation noise.
			continue
		}
		for i := range fields {
			fields[i] = unescape(strings.TrimSpace(fields[i]))
		}
		tp := tupleFromFields(task, fields)
		if tp.Aspect == "" || (task.HasOpinion() && tp.Opinion == "") {
			continue
		}
		tuples = append(tuples, tp)
	}
	return Dedupe(tuples)
}

func parseAnnotation(decoded, sentence string, task Task) []Tuple {
	arity := task.Arity()
	aligned := normalizeForAlignment(sentence)
	var tuples []Tuple
	pos := 0
	for {
		open := indexUnescaped(decoded, '[', pos)
		if open < 0 {
			break
		}
		closing := indexUnescaped(decoded, ']', open+1)
		if closing < 0 {
			break
		}
		// A nested unescaped "[" restarts the marker; the earlier bracket was
		// unbalanced noise.
		if inner := indexUnescaped(decoded[open+1:closing], '[', 0); inner >= 0 {
			pos = open + 1 + inner
			continue
		}
		pos = closing + 1

		fields := splitUnescaped(decoded[open+1:closing], '|')
		if len(fields) != arity {
			continue
		}
		for i := range fields {
			fields[i] = unescape(strings.TrimSpace(fields[i]))
		}
		tp := tupleFromFields(task, fields)
		if tp.Aspect == "" || (task.HasOpinion() && tp.Opinion == "") {
			continue
		}
		if !alignsToSentence(tp, task, aligned) {
			continue
		}
		tuples = append(tuples, tp)
	}
	return Dedupe(tuples)
}

// alignsToSentence checks that span fields of a parsed tuple actually occur in
// the original sentence. Tuples whose spans cannot be mapped back are
// generation hallucinations and are discarded rather than scored.
func alignsToSentence(tp Tuple, task Task, aligned string) bool {
	if tp.Aspect != NullAspect && !strings.Contains(aligned, normalizeForAlignment(tp.Aspect)) {
		return false
	}
	if task.HasOpinion() && !strings.Contains(aligned, normalizeForAlignment(tp.Opinion)) {
		return false
	}
	return true
}

// normalizeForAlignment applies NFC normalization and lowercasing so that
// alignment tolerates the casing and Unicode-form drift generation output
// tends to have.
func normalizeForAlignment(s string) string {
	return strings.ToLower(norm.NFC.String(s))
}
