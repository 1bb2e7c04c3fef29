package batch

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/giygas/drug-predictor-api/inference"
	"github.com/giygas/drug-predictor-api/interfaces"
	"github.com/giygas/drug-predictor-api/logging"
)

// Summary counts the rows of one scoring run
type Summary struct {
	Rows     int           `json:"rows"`
	Scored   int           `json:"scored"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"-"`
}

// Predictor scores one record
type Predictor interface {
	Predict(record inference.DrugRecord) (inference.PredictionResult, error)
}

// ScoreRow validates and scores a single row. Invalid input is returned as the row's
// error; any other failure is returned as the second error and should stop the run.
func ScoreRow(p Predictor, v interfaces.RecordValidator, row Row) (inference.PredictionResult, error, error) {
	if row.Err != nil {
		return inference.PredictionResult{}, row.Err, nil
	}
	if v != nil {
		if err := v.ValidateRecord(row.Record); err != nil {
			return inference.PredictionResult{}, err, nil
		}
	}

	result, err := p.Predict(row.Record)
	switch {
	case err == nil:
		return result, nil, nil
	case errors.Is(err, inference.ErrInvalidInput):
		return inference.PredictionResult{}, err, nil
	default:
		return inference.PredictionResult{}, nil, err
	}
}

// Score reads every row from r, scores it and writes it to w. Rows with invalid input are
// written with their error and do not stop the run; a dimension mismatch or a model
// failure does. maxRows of 0 means no limit.
func Score(ctx context.Context, p Predictor, v interfaces.RecordValidator, r *Reader, w *Writer, maxRows int) (Summary, error) {
	start := time.Now()
	var sum Summary

	for {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return sum, err
		}

		sum.Rows++
		if maxRows > 0 && sum.Rows > maxRows {
			return sum, &inference.InvalidInputError{Field: "records", Reason: "too many rows"}
		}

		result, rowErr, fatal := ScoreRow(p, v, row)
		if fatal != nil {
			logging.Error("Batch scoring stopped", "line", row.Line, "error", fatal)
			return sum, fatal
		}
		if rowErr != nil {
			sum.Failed++
		} else {
			sum.Scored++
		}

		if err := w.Write(row, result, rowErr); err != nil {
			return sum, err
		}
	}

	sum.Duration = time.Since(start)
	return sum, w.Flush()
}
