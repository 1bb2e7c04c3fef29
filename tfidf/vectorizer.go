// Package tfidf loads a fitted TF-IDF text vectorizer exported to JSON and reproduces its
// transform: preprocessing, tokenisation, n-grams, term counting, idf weighting and
// row normalisation.
package tfidf

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"github.com/giygas/drug-predictor-api/sparse"
)

const (
	normNone = ""
	normL1   = "l1"
	normL2   = "l2"
)

// document is the on-disk layout of an exported vectorizer
type document struct {
	Analyzer     string          `json:"analyzer"`
	Lowercase    *bool           `json:"lowercase"`
	StripAccents json.RawMessage `json:"strip_accents"`
	TokenPattern string          `json:"token_pattern"`
	NgramRange   []int           `json:"ngram_range"`
	StopWords    []string        `json:"stop_words"`
	Binary       bool            `json:"binary"`
	Norm         json.RawMessage `json:"norm"`
	UseIDF       *bool           `json:"use_idf"`
	SublinearTF  bool            `json:"sublinear_tf"`
	Vocabulary   map[string]int  `json:"vocabulary"`
	IDF          []float64       `json:"idf"`
}

// Vectorizer is a fitted, immutable TF-IDF transform. It is safe for concurrent use.
type Vectorizer struct {
	analyzer
	binary      bool
	norm        string
	useIDF      bool
	sublinearTF bool
	vocabulary  map[string]int
	idf         []float64
}

// LoadFile reads a vectorizer from a JSON file
func LoadFile(path string) (*Vectorizer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open vectorizer %s: %w", path, err)
	}
	defer f.Close()

	return Load(f)
}

// Load decodes and validates an exported vectorizer
func Load(r io.Reader) (*Vectorizer, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read vectorizer: %w", err)
	}

	var doc document
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode vectorizer: %w", err)
	}

	return fromDocument(doc)
}

func fromDocument(doc document) (*Vectorizer, error) {
	if doc.Analyzer != "" && doc.Analyzer != "word" {
		return nil, fmt.Errorf("unsupported analyzer %q, only word analyzers can be loaded", doc.Analyzer)
	}

	v := &Vectorizer{
		binary:      doc.Binary,
		useIDF:      doc.UseIDF == nil || *doc.UseIDF,
		sublinearTF: doc.SublinearTF,
		vocabulary:  doc.Vocabulary,
		idf:         doc.IDF,
	}

	v.lowercase = doc.Lowercase == nil || *doc.Lowercase

	var err error
	if v.stripAccents, err = optionalString(doc.StripAccents, accentsNone); err != nil {
		return nil, fmt.Errorf("invalid strip_accents: %w", err)
	}
	switch v.stripAccents {
	case accentsNone, accentsUnicode, accentsASCII:
	default:
		return nil, fmt.Errorf("unsupported strip_accents %q", v.stripAccents)
	}

	if v.norm, err = optionalString(doc.Norm, normL2); err != nil {
		return nil, fmt.Errorf("invalid norm: %w", err)
	}
	switch v.norm {
	case normNone, normL1, normL2:
	default:
		return nil, fmt.Errorf("unsupported norm %q", v.norm)
	}

	if v.token, v.useGroup, err = compileTokenPattern(doc.TokenPattern); err != nil {
		return nil, err
	}

	v.minN, v.maxN = 1, 1
	if len(doc.NgramRange) > 0 {
		if len(doc.NgramRange) != 2 {
			return nil, fmt.Errorf("ngram_range must have two elements, got %d", len(doc.NgramRange))
		}
		v.minN, v.maxN = doc.NgramRange[0], doc.NgramRange[1]
		if v.minN < 1 || v.maxN < v.minN {
			return nil, fmt.Errorf("invalid ngram_range [%d, %d]", v.minN, v.maxN)
		}
	}

	if len(doc.StopWords) > 0 {
		v.stopWords = make(map[string]struct{}, len(doc.StopWords))
		for _, w := range doc.StopWords {
			v.stopWords[w] = struct{}{}
		}
	}

	if err := v.validateVocabulary(); err != nil {
		return nil, err
	}

	return v, nil
}

// optionalString decodes a JSON string that may be absent (def) or null ("")
func optionalString(raw json.RawMessage, def string) (string, error) {
	if len(raw) == 0 {
		return def, nil
	}
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", err
	}
	return s, nil
}

func (v *Vectorizer) validateVocabulary() error {
	if len(v.vocabulary) == 0 {
		return fmt.Errorf("vocabulary is empty")
	}

	seen := make([]bool, len(v.vocabulary))
	for term, idx := range v.vocabulary {
		if idx < 0 || idx >= len(v.vocabulary) {
			return fmt.Errorf("term %q has column %d outside [0, %d)", term, idx, len(v.vocabulary))
		}
		if seen[idx] {
			return fmt.Errorf("column %d is assigned to more than one term", idx)
		}
		seen[idx] = true
	}

	if v.useIDF {
		if len(v.idf) != len(v.vocabulary) {
			return fmt.Errorf("idf has %d weights for %d terms", len(v.idf), len(v.vocabulary))
		}
		for i, w := range v.idf {
			if math.IsNaN(w) || math.IsInf(w, 0) {
				return fmt.Errorf("idf weight %d is not finite", i)
			}
		}
	}

	return nil
}

// Features returns the number of output columns (the vocabulary size)
func (v *Vectorizer) Features() int {
	return len(v.vocabulary)
}

// Transform maps one document to its normalised TF-IDF row
func (v *Vectorizer) Transform(doc string) sparse.Vector {
	counts := make(map[int]float64)
	for _, term := range v.Analyze(doc) {
		if idx, ok := v.vocabulary[term]; ok {
			counts[idx]++
		}
	}

	row := sparse.Vector{
		Dim:     len(v.vocabulary),
		Indices: make([]int, 0, len(counts)),
	}
	for idx := range counts {
		row.Indices = append(row.Indices, idx)
	}
	sort.Ints(row.Indices)

	row.Values = make([]float64, len(row.Indices))
	for i, idx := range row.Indices {
		tf := counts[idx]
		if v.binary {
			tf = 1
		}
		if v.sublinearTF {
			tf = math.Log(tf) + 1
		}
		if v.useIDF {
			tf *= v.idf[idx]
		}
		row.Values[i] = tf
	}

	normalize(row.Values, v.norm)

	// idf weights are positive after smoothing, but an exported zero weight must not
	// leave an explicit zero in the row
	return dropZeros(row)
}

func normalize(values []float64, kind string) {
	var total float64
	switch kind {
	case normL2:
		for _, x := range values {
			total += x * x
		}
		total = math.Sqrt(total)
	case normL1:
		for _, x := range values {
			total += math.Abs(x)
		}
	default:
		return
	}

	if total == 0 {
		return
	}
	for i := range values {
		values[i] /= total
	}
}

func dropZeros(row sparse.Vector) sparse.Vector {
	for _, x := range row.Values {
		if x == 0 {
			return sparse.FromDense(row.Dense())
		}
	}
	return row
}
