package batch

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/giygas/drug-predictor-api/inference"
)

// OutputColumns are appended to the input columns
var OutputColumns = []string{"effectiveness_rating", "tier", "side_effect_risk", "error"}

// Writer writes scored rows as CSV
type Writer struct {
	csv   *csv.Writer
	width int
}

// NewWriter writes the header line: the input columns followed by OutputColumns
func NewWriter(w io.Writer, inputHeader []string) (*Writer, error) {
	cw := csv.NewWriter(w)

	header := make([]string, 0, len(inputHeader)+len(OutputColumns))
	header = append(header, inputHeader...)
	header = append(header, OutputColumns...)
	if err := cw.Write(header); err != nil {
		return nil, err
	}

	return &Writer{csv: cw, width: len(inputHeader)}, nil
}

// Write writes one output line. On failure the prediction columns stay empty and the
// error column holds the message.
func (w *Writer) Write(row Row, result inference.PredictionResult, err error) error {
	out := make([]string, w.width, w.width+len(OutputColumns))
	copy(out, row.Values)

	if err != nil {
		out = append(out, "", "", "", err.Error())
	} else {
		out = append(out,
			strconv.FormatFloat(result.EffectivenessRating, 'f', -1, 64),
			string(inference.TierFor(result.EffectivenessRating)),
			strconv.FormatBool(result.SideEffectRisk),
			"",
		)
	}

	return w.csv.Write(out)
}

// Flush writes buffered lines and reports any write error
func (w *Writer) Flush() error {
	w.csv.Flush()
	return w.csv.Error()
}
