// Package batch scores CSV files of drug records. The reader accepts UTF-8 or
// ISO-8859-1 input; the writer echoes the input columns and appends the predictions.
package batch

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/giygas/drug-predictor-api/inference"
)

// sniffSize is how much input is inspected to choose the encoding
const sniffSize = 64 * 1024

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Row is one parsed data line. Err is set when the line could not be turned into a
// record; the row is still reported so the output keeps one line per input line.
type Row struct {
	Line   int
	Values []string
	Record inference.DrugRecord
	Err    error
}

// Reader reads drug records from CSV with a header line
type Reader struct {
	csv      *csv.Reader
	header   []string
	columns  map[string]int
	encoding string
}

// NewReader reads the header. Columns are matched to record fields by name, ignoring
// case and surrounding spaces; unknown columns are carried through untouched.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReaderSize(r, sniffSize)
	peek, err := br.Peek(sniffSize)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}

	var src io.Reader = br
	encoding := "utf-8"
	if bytes.HasPrefix(peek, utf8BOM) {
		br.Discard(len(utf8BOM))
		peek = peek[len(utf8BOM):]
	}
	if !validUTF8Prefix(peek) {
		src = transform.NewReader(br, charmap.ISO8859_1.NewDecoder())
		encoding = "iso-8859-1"
	}

	cr := csv.NewReader(src)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = false

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, &inference.InvalidInputError{Field: "csv", Reason: "input is empty"}
	}
	if err != nil {
		return nil, parseError(err, "invalid header: ")
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(name))
		if _, dup := columns[key]; dup {
			return nil, &inference.InvalidInputError{Field: "csv", Reason: fmt.Sprintf("duplicate column %q", name)}
		}
		columns[key] = i
	}

	known := 0
	for _, name := range inference.TextFieldOrder {
		if _, ok := columns[name]; ok {
			known++
		}
	}
	if _, ok := columns["activity"]; ok {
		known++
	}
	if known == 0 {
		return nil, &inference.InvalidInputError{Field: "csv", Reason: "header has none of the record columns"}
	}

	return &Reader{csv: cr, header: header, columns: columns, encoding: encoding}, nil
}

// validUTF8Prefix ignores a rune cut off by the end of the sniffed window
func validUTF8Prefix(b []byte) bool {
	if utf8.Valid(b) {
		return true
	}
	for i := 1; i < utf8.UTFMax && i <= len(b); i++ {
		if utf8.Valid(b[:len(b)-i]) {
			return !utf8.FullRune(b[len(b)-i:])
		}
	}
	return false
}

// parseError reports malformed CSV as invalid input. Errors from the underlying
// reader are returned unchanged.
func parseError(err error, prefix string) error {
	var perr *csv.ParseError
	if errors.As(err, &perr) {
		return &inference.InvalidInputError{Field: "csv", Reason: prefix + err.Error()}
	}
	return err
}

// Header returns the input column names in input order
func (r *Reader) Header() []string {
	return r.header
}

// Encoding is the detected input encoding, utf-8 or iso-8859-1
func (r *Reader) Encoding() string {
	return r.encoding
}

// Read returns the next row, or io.EOF. Malformed CSV is returned as an error; a bad
// value inside a well formed line is reported in Row.Err.
func (r *Reader) Read() (Row, error) {
	values, err := r.csv.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Row{}, io.EOF
		}
		return Row{}, parseError(err, "")
	}
	line, _ := r.csv.FieldPos(0)

	row := Row{Line: line, Values: values}
	row.Record, row.Err = r.record(values)
	return row, nil
}

func (r *Reader) cell(values []string, name string) (string, bool) {
	i, ok := r.columns[name]
	if !ok || i >= len(values) {
		return "", false
	}
	return values[i], true
}

func (r *Reader) record(values []string) (inference.DrugRecord, error) {
	get := func(name string) string {
		v, _ := r.cell(values, name)
		return v
	}

	record := inference.DrugRecord{
		DrugName:                    get("drug_name"),
		GenericName:                 get("generic_name"),
		BrandNames:                  get("brand_names"),
		DrugClasses:                 get("drug_classes"),
		RelatedDrugs:                get("related_drugs"),
		SideEffects:                 get("side_effects"),
		MedicalCondition:            get("medical_condition"),
		MedicalConditionDescription: get("medical_condition_description"),
		Activity:                    inference.DefaultActivity,
	}

	raw, ok := r.cell(values, "activity")
	raw = strings.TrimSpace(raw)
	if !ok || raw == "" {
		return record, nil
	}

	// accept percentages such as 87%
	activity, err := strconv.ParseFloat(strings.TrimSuffix(raw, "%"), 64)
	if err != nil {
		return record, &inference.InvalidInputError{Field: "activity", Reason: fmt.Sprintf("%q is not a number", raw)}
	}
	record.Activity = activity
	return record, nil
}
