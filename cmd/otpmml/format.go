package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"otpmml/internal/sample"
)

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', precision, 64)
}

func formatRow(row []float64) string {
	parts := make([]string, len(row))
	for i, v := range row {
		parts[i] = formatFloat(v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// printTable writes s as tab aligned columns headed by its description.
func printTable(w io.Writer, s *sample.Sample) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	header := make([]string, s.Dimension())
	for j := range header {
		header[j] = s.ColumnName(j, fmt.Sprintf("c%d", j))
	}
	fmt.Fprintf(tw, "#\t%s\t\n", strings.Join(header, "\t"))
	for i := 0; i < s.Size(); i++ {
		cells := make([]string, s.Dimension())
		for j := range cells {
			cells[j] = formatFloat(s.At(i, j))
		}
		fmt.Fprintf(tw, "%d\t%s\t\n", i, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}
