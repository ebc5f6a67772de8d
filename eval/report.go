package eval

import (
	"os"

	"github.com/parquet-go/parquet-go"
	"github.com/pkg/errors"
)

// exampleRow is the Parquet schema for one scored example.
type exampleRow struct {
	Index     int32   `parquet:"index"`
	TruePos   int32   `parquet:"true_positives"`
	GoldCount int32   `parquet:"gold_count"`
	PredCount int32   `parquet:"pred_count"`
	Precision float64 `parquet:"precision"`
	Recall    float64 `parquet:"recall"`
	F1        float64 `parquet:"f1"`
}

// WriteParquet writes the per-example scores of a report to a Parquet file,
// one row per example in input order. The file is created or truncated.
func (r *Report) WriteParquet(path string) error {
	rows := make([]exampleRow, len(r.PerExample))
	for i, c := range r.PerExample {
		s := c.Scores()
		rows[i] = exampleRow{
			Index:     int32(i),
			TruePos:   int32(c.TP),
			GoldCount: int32(c.Gold),
			PredCount: int32(c.Pred),
			Precision: s.Precision,
			Recall:    s.Recall,
			F1:        s.F1,
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create report file %q", path)
	}
	w := parquet.NewGenericWriter[exampleRow](f)
	if _, err := w.Write(rows); err != nil {
		f.Close()
		return errors.Wrapf(err, "failed to write report rows to %q", path)
	}
	if err := w.Close(); err != nil {
		f.Close()
		return errors.Wrapf(err, "failed to finalize report %q", path)
	}
	return errors.Wrapf(f.Close(), "failed to close report %q", path)
}
