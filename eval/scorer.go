// Package eval computes corpus-level precision, recall and F1 for sentiment
// tuple extraction, comparing predicted tuple sets against gold sets with
// exact tuple equality.
package eval

import (
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"

	"github.com/Toma62299781/Generative-ABSA/absa"
)

// Counts accumulates true-positive, gold and predicted tuple totals.
type Counts struct {
	TP   int
	Gold int
	Pred int
}

// Add accumulates another example's counts.
func (c *Counts) Add(o Counts) {
	c.TP += o.TP
	c.Gold += o.Gold
	c.Pred += o.Pred
}

// Scores are the derived metrics, always finite in [0, 1]: every
// division-by-zero case is defined as 0 rather than NaN.
type Scores struct {
	Precision float64
	Recall    float64
	F1        float64
}

// Scores derives precision/recall/F1 from the counts.
func (c Counts) Scores() Scores {
	var s Scores
	if c.Pred > 0 {
		s.Precision = float64(c.TP) / float64(c.Pred)
	}
	if c.Gold > 0 {
		s.Recall = float64(c.TP) / float64(c.Gold)
	}
	if s.Precision+s.Recall > 0 {
		s.F1 = 2 * s.Precision * s.Recall / (s.Precision + s.Recall)
	}
	return s
}

// Pair is one example's gold and predicted tuple sets. Duplicates on either
// side are ignored: matching is over sets.
type Pair struct {
	Gold []absa.Tuple
	Pred []absa.Tuple
}

// Score counts one example: TP is the exact-equality intersection size of the
// deduplicated gold and predicted sets.
func Score(p Pair) Counts {
	gold := absa.Dedupe(p.Gold)
	pred := absa.Dedupe(p.Pred)
	goldSet := make(map[absa.Tuple]struct{}, len(gold))
	for _, tp := range gold {
		goldSet[tp] = struct{}{}
	}
	c := Counts{Gold: len(gold), Pred: len(pred)}
	for _, tp := range pred {
		if _, ok := goldSet[tp]; ok {
			c.TP++
		}
	}
	return c
}

// Report is the scoring result for a corpus of examples.
type Report struct {
	Counts Counts
	Corpus Scores

	// PerExample holds each example's own counts, in input order.
	PerExample []Counts

	// MeanF1 and StdDevF1 describe the distribution of per-example F1,
	// a complement to the corpus-level (micro) metrics.
	MeanF1   float64
	StdDevF1 float64
}

// Corpus scores all examples sequentially and aggregates.
func Corpus(pairs []Pair) *Report {
	perExample := make([]Counts, len(pairs))
	for i, p := range pairs {
		perExample[i] = Score(p)
	}
	return buildReport(perExample)
}

// CorpusParallel scores examples on a bounded worker pool. Each example owns
// disjoint data so no locking beyond the completion barrier is needed, and
// the totals are identical to Corpus.
func CorpusParallel(pairs []Pair, workers int) (*Report, error) {
	if workers <= 1 || len(pairs) < 2 {
		return Corpus(pairs), nil
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, errors.Wrap(err, "creating scoring worker pool")
	}
	defer pool.Release()

	perExample := make([]Counts, len(pairs))
	var wg sync.WaitGroup
	for i := range pairs {
		i := i
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			perExample[i] = Score(pairs[i])
		}); err != nil {
			wg.Done()
			wg.Wait()
			return nil, errors.Wrap(err, "submitting scoring task")
		}
	}
	wg.Wait()
	return buildReport(perExample), nil
}

func buildReport(perExample []Counts) *Report {
	r := &Report{PerExample: perExample}
	f1s := make([]float64, len(perExample))
	for i, c := range perExample {
		r.Counts.Add(c)
		f1s[i] = c.Scores().F1
	}
	r.Corpus = r.Counts.Scores()
	if len(f1s) > 0 {
		r.MeanF1 = stat.Mean(f1s, nil)
	}
	if len(f1s) > 1 {
		r.StdDevF1 = stat.StdDev(f1s, nil)
	}
	return r
}
