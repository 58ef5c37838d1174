// Package dat reads and writes experiment planes stored as .dat files: a
// whitespace, comma or semicolon separated table whose last column is the
// output, described by a leading "#COLUMN_NAMES: a| b| c" comment.
package dat

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"otpmml/internal/sample"

	"github.com/rs/zerolog/log"
)

// ColumnNamesTag starts the comment line holding the column names.
const ColumnNamesTag = "#COLUMN_NAMES:"

var (
	// ErrSizeMismatch is returned when input and output samples differ in size.
	ErrSizeMismatch = errors.New("size mismatch: input size != output size")
	// ErrFormat is returned for malformed files.
	ErrFormat = errors.New("malformed dat file")
)

// Import reads the file at path and splits it into the input columns and
// the last, output, column.
func Import(path string) (*sample.Sample, *sample.Sample, error) {
	s, err := ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	return Split(s)
}

// ReadFile reads the whole table of the file at path.
func ReadFile(path string) (*sample.Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open %s for reading: %w", path, err)
	}
	defer f.Close()
	return Read(f, path)
}

// Read parses a whole .dat table; source names the input in log messages
// and errors.
func Read(r io.Reader, source string) (*sample.Sample, error) {
	var (
		description []string
		header      = true
		s           = sample.New(0, 0)
		lineNo      int
	)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if header {
			if strings.HasPrefix(line, ColumnNamesTag) {
				description = splitNames(line[len(ColumnNamesTag):])
				header = false
				continue
			}
			if !strings.HasPrefix(line, "#") {
				log.Warn().Str("file", source).Msg("unable to find column description")
				header = false
			}
		}
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.FieldsFunc(line, isSeparator)
		row := make([]float64, len(fields))
		for j, field := range fields {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: value '%s': %w", source, lineNo, field, ErrFormat)
			}
			row[j] = v
		}
		if err := s.Add(row); err != nil {
			return nil, fmt.Errorf("%s:%d: %d values, expected %d: %w", source, lineNo, len(row), s.Dimension(), ErrFormat)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", source, err)
	}

	if s.Dimension() < 2 {
		return nil, fmt.Errorf("%s: %d columns, at least one input and one output expected: %w", source, s.Dimension(), ErrFormat)
	}
	if description != nil {
		if err := s.SetDescription(description); err != nil {
			return nil, fmt.Errorf("%s: %d column names for %d columns: %w", source, len(description), s.Dimension(), ErrFormat)
		}
	}
	return s, nil
}

func isSeparator(r rune) bool {
	return r == ',' || r == ';' || r == ' ' || r == '\t' || r == '\r'
}

func splitNames(s string) []string {
	parts := strings.Split(s, "|")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

// Split separates the last column of s from the others.
func Split(s *sample.Sample) (*sample.Sample, *sample.Sample, error) {
	d := s.Dimension()
	in, err := s.Columns(0, d-1)
	if err != nil {
		return nil, nil, err
	}
	out, err := s.Marginal(d - 1)
	if err != nil {
		return nil, nil, err
	}
	return in, out, nil
}

// Export writes input and output side by side into the file at path.
func Export(path string, input, output *sample.Sample) error {
	if input.Size() != output.Size() {
		return fmt.Errorf("export %s: %d inputs, %d outputs: %w", path, input.Size(), output.Size(), ErrSizeMismatch)
	}
	s, err := Stack(input, output)
	if err != nil {
		return err
	}
	return ExportSample(path, s)
}

// Stack joins input and output columns, naming undescribed columns x<i>
// and y<j>.
func Stack(input, output *sample.Sample) (*sample.Sample, error) {
	names := make([]string, 0, input.Dimension()+output.Dimension())
	for i := 0; i < input.Dimension(); i++ {
		names = append(names, input.ColumnName(i, "x"+strconv.Itoa(i)))
	}
	for j := 0; j < output.Dimension(); j++ {
		names = append(names, output.ColumnName(j, "y"+strconv.Itoa(j)))
	}
	s, err := input.Stack(output)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSizeMismatch, err)
	}
	if err := s.SetDescription(names); err != nil {
		return nil, err
	}
	return s, nil
}

// ExportSample writes an already stacked sample into the file at path.
func ExportSample(path string, s *sample.Sample) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("could not open %s for writing: %w", path, err)
	}
	if err := Write(f, s); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// Write serializes s: the column names, a blank line, then one row per
// line with values in %.16e.
func Write(w io.Writer, s *sample.Sample) error {
	bw := bufio.NewWriter(w)
	names := make([]string, s.Dimension())
	for j := range names {
		names[j] = s.ColumnName(j, "x"+strconv.Itoa(j))
	}
	fmt.Fprintf(bw, "%s %s\n\n", ColumnNamesTag, strings.Join(names, "| "))
	for i := 0; i < s.Size(); i++ {
		for j := 0; j < s.Dimension(); j++ {
			if j > 0 {
				bw.WriteByte(' ')
			}
			fmt.Fprintf(bw, "%.16e", s.At(i, j))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}
