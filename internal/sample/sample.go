// Package sample provides the numeric sample tables exchanged between the
// PMML models, the .dat files and the validation reports.
//
// A Sample is an ordered list of rows of equal dimension with an optional
// column description. Samples are plain values: they are not safe for
// concurrent mutation.
package sample

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrDimension is returned when a row or description does not match the sample dimension.
	ErrDimension = errors.New("dimension mismatch")
	// ErrSize is returned when two samples with different sizes are combined.
	ErrSize = errors.New("size mismatch")
)

// Sample is a table of numeric rows.
type Sample struct {
	dim         int
	rows        [][]float64
	description []string
}

// New creates a sample of size rows filled with zeros.
func New(size, dim int) *Sample {
	s := &Sample{dim: dim, rows: make([][]float64, size)}
	for i := range s.rows {
		s.rows[i] = make([]float64, dim)
	}
	return s
}

// FromRows builds a sample from rows, copying them.
func FromRows(rows [][]float64) (*Sample, error) {
	if len(rows) == 0 {
		return &Sample{}, nil
	}
	s := &Sample{dim: len(rows[0]), rows: make([][]float64, 0, len(rows))}
	for _, r := range rows {
		if err := s.Add(r); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Size returns the number of rows.
func (s *Sample) Size() int { return len(s.rows) }

// Dimension returns the number of columns.
func (s *Sample) Dimension() int { return s.dim }

// Row returns a copy of row i.
func (s *Sample) Row(i int) []float64 {
	out := make([]float64, s.dim)
	copy(out, s.rows[i])
	return out
}

// Rows returns a deep copy of all rows.
func (s *Sample) Rows() [][]float64 {
	out := make([][]float64, len(s.rows))
	for i := range s.rows {
		out[i] = s.Row(i)
	}
	return out
}

// At returns the value at row i, column j.
func (s *Sample) At(i, j int) float64 { return s.rows[i][j] }

// Set stores v at row i, column j.
func (s *Sample) Set(i, j int, v float64) { s.rows[i][j] = v }

// Add appends a copy of row. The first row added to an empty sample
// without dimension fixes it.
func (s *Sample) Add(row []float64) error {
	if s.dim == 0 && len(s.rows) == 0 {
		s.dim = len(row)
	}
	if len(row) != s.dim {
		return fmt.Errorf("add row of length %d to sample of dimension %d: %w", len(row), s.dim, ErrDimension)
	}
	r := make([]float64, len(row))
	copy(r, row)
	s.rows = append(s.rows, r)
	return nil
}

// Description returns a copy of the column names; nil when unset.
func (s *Sample) Description() []string {
	if s.description == nil {
		return nil
	}
	out := make([]string, len(s.description))
	copy(out, s.description)
	return out
}

// SetDescription sets the column names.
func (s *Sample) SetDescription(desc []string) error {
	if desc == nil {
		s.description = nil
		return nil
	}
	if len(desc) != s.dim {
		return fmt.Errorf("description of length %d for sample of dimension %d: %w", len(desc), s.dim, ErrDimension)
	}
	s.description = make([]string, len(desc))
	copy(s.description, desc)
	return nil
}

// ColumnName returns the description of column j, or fallback when unset or empty.
func (s *Sample) ColumnName(j int, fallback string) string {
	if j < len(s.description) && s.description[j] != "" {
		return s.description[j]
	}
	return fallback
}

// Stack returns a new sample made of the columns of s followed by the columns of other.
func (s *Sample) Stack(other *Sample) (*Sample, error) {
	if s.Size() != other.Size() {
		return nil, fmt.Errorf("stack samples of sizes %d and %d: %w", s.Size(), other.Size(), ErrSize)
	}
	out := New(s.Size(), s.dim+other.dim)
	for i := range s.rows {
		copy(out.rows[i], s.rows[i])
		copy(out.rows[i][s.dim:], other.rows[i])
	}
	if s.description != nil || other.description != nil {
		desc := make([]string, 0, out.dim)
		for j := 0; j < s.dim; j++ {
			desc = append(desc, s.ColumnName(j, ""))
		}
		for j := 0; j < other.dim; j++ {
			desc = append(desc, other.ColumnName(j, ""))
		}
		out.description = desc
	}
	return out, nil
}

// Columns returns the sub-sample made of columns [from, to).
func (s *Sample) Columns(from, to int) (*Sample, error) {
	if from < 0 || to > s.dim || from > to {
		return nil, fmt.Errorf("columns [%d, %d) of sample of dimension %d: %w", from, to, s.dim, ErrDimension)
	}
	out := New(s.Size(), to-from)
	for i := range s.rows {
		copy(out.rows[i], s.rows[i][from:to])
	}
	if s.description != nil {
		out.description = append([]string(nil), s.description[from:to]...)
	}
	return out, nil
}

// Marginal returns column j as a one-dimensional sample.
func (s *Sample) Marginal(j int) (*Sample, error) {
	return s.Columns(j, j+1)
}

// Sub returns the element-wise difference s - other.
func (s *Sample) Sub(other *Sample) (*Sample, error) {
	if s.Size() != other.Size() {
		return nil, fmt.Errorf("subtract samples of sizes %d and %d: %w", s.Size(), other.Size(), ErrSize)
	}
	if s.dim != other.dim {
		return nil, fmt.Errorf("subtract samples of dimensions %d and %d: %w", s.dim, other.dim, ErrDimension)
	}
	out := New(s.Size(), s.dim)
	for i := range s.rows {
		for j := range s.rows[i] {
			out.rows[i][j] = s.rows[i][j] - other.rows[i][j]
		}
	}
	out.description = s.Description()
	return out, nil
}

// String renders the sample as an aligned table with a header when described.
func (s *Sample) String() string {
	var b strings.Builder
	if s.description != nil {
		b.WriteString("    [ ")
		b.WriteString(strings.Join(s.description, " "))
		b.WriteString(" ]\n")
	}
	for i, row := range s.rows {
		fmt.Fprintf(&b, "%3d : [", i)
		for j, v := range row {
			if j > 0 {
				b.WriteString(" ")
			}
			b.WriteString(strconv.FormatFloat(v, 'g', 6, 64))
		}
		b.WriteString("]\n")
	}
	return b.String()
}
