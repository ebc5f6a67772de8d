// Package datasets reads line-oriented labeled ABSA examples and builds
// model-ready (source, target) id sequences from them.
package datasets

import (
	"bufio"
	"os"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/Toma62299781/Generative-ABSA/absa"
)

// labelSeparator splits a data line into the raw sentence and its serialized
// gold annotation.
const labelSeparator = "####"

// Example is one input sentence with its gold labels. Labels is nil for
// unannotated lines (inference-only input).
type Example struct {
	Sentence string
	Tokens   []string
	Labels   []absa.Label
}

// ReadLineExamples reads examples from a task-specific data file, one example
// per line in the form "sentence####[(...), (...)]". Lines without the
// separator are loaded as unlabeled sentences. Blank lines are skipped.
// Any malformed gold annotation is a fatal load error.
func ReadLineExamples(path string, task absa.Task) ([]Example, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open data file %q", path)
	}
	defer f.Close()

	var examples []Example
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		ex := Example{Sentence: line}
		if sentence, rawLabels, found := strings.Cut(line, labelSeparator); found {
			ex.Sentence = strings.TrimSpace(sentence)
			labels, err := parseGoldLabels(rawLabels, task)
			if err != nil {
				return nil, errors.Wrapf(err, "%s:%d", path, lineNo)
			}
			ex.Labels = labels
		}
		ex.Tokens = strings.Fields(ex.Sentence)
		if len(ex.Tokens) == 0 {
			return nil, errors.Errorf("%s:%d: empty sentence", path, lineNo)
		}
		examples = append(examples, ex)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to read data file %q", path)
	}
	klog.V(1).Infof("loaded %d examples from %s", len(examples), path)
	return examples, nil
}
