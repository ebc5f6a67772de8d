// Package absa defines the aspect-based sentiment analysis task schemas and
// implements the target-text grammar: serializing gold sentiment labels into
// the exact text a generative model is trained to produce, and the tolerant
// inverse parse from free-form model output back into structured tuples.
package absa

import (
	"github.com/pkg/errors"
)

// Task is one of the four sentiment-tuple extraction formulations.
// Each has a fixed tuple arity and field order.
type Task string

const (
	// TaskUABSA extracts (aspect term, polarity) pairs.
	TaskUABSA Task = "uabsa"
	// TaskASTE extracts (aspect term, opinion term, polarity) triplets.
	TaskASTE Task = "aste"
	// TaskTASD extracts (aspect term, category, polarity) triplets, where the
	// aspect term may be implicit (NULL).
	TaskTASD Task = "tasd"
	// TaskAOPE extracts (aspect term, opinion term) pairs.
	TaskAOPE Task = "aope"
)

// Paradigm is the textual encoding scheme used to represent structured labels
// as generation targets.
type Paradigm string

const (
	// ParadigmAnnotation renders the original sentence with labeled spans
	// wrapped in bracket markers carrying their fields inline.
	ParadigmAnnotation Paradigm = "annotation"
	// ParadigmExtraction renders an explicit flat list of tuples, tuples
	// separated by ";" and fields by ",".
	ParadigmExtraction Paradigm = "extraction"
)

// ParseTask validates and converts a task name.
func ParseTask(name string) (Task, error) {
	switch Task(name) {
	case TaskUABSA, TaskASTE, TaskTASD, TaskAOPE:
		return Task(name), nil
	}
	return "", errors.Errorf("unknown task %q, expected one of [uabsa, aste, tasd, aope]", name)
}

// ParseParadigm validates and converts a paradigm name.
func ParseParadigm(name string) (Paradigm, error) {
	switch Paradigm(name) {
	case ParadigmAnnotation, ParadigmExtraction:
		return Paradigm(name), nil
	}
	return "", errors.Errorf("unknown paradigm %q, expected one of [annotation, extraction]", name)
}

// Arity returns the number of serialized fields per tuple for the task.
func (t Task) Arity() int {
	switch t {
	case TaskUABSA, TaskAOPE:
		return 2
	default:
		return 3
	}
}

// HasOpinion reports whether the task schema carries an opinion term field.
func (t Task) HasOpinion() bool {
	return t == TaskASTE || t == TaskAOPE
}

// HasPolarity reports whether the task schema carries a polarity field.
func (t Task) HasPolarity() bool {
	return t != TaskAOPE
}

// Validate checks a (task, paradigm) combination at configuration time, so an
// invalid pair fails at startup instead of mid-run.
func Validate(task Task, paradigm Paradigm) error {
	if _, err := ParseTask(string(task)); err != nil {
		return err
	}
	if _, err := ParseParadigm(string(paradigm)); err != nil {
		return err
	}
	return nil
}
