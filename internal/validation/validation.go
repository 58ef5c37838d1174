// Package validation compares model predictions and derivatives against
// expected values or reference functions.
package validation

import (
	"fmt"
	"math"
	"strings"

	"otpmml/internal/function"
	"otpmml/internal/sample"

	"gonum.org/v1/gonum/mat"
)

// Report compares the predictions of a model with expected outputs.
type Report struct {
	Model string
	// Table holds, per row, the inputs, expected outputs, predictions,
	// differences and relative differences.
	Table       *sample.Sample
	MaxAbsError float64
	MaxRelError float64
}

// Exceeds reports whether the worst relative error is above tol.
func (r *Report) Exceeds(tol float64) bool { return r.MaxRelError > tol }

// relative returns |delta / ref|, or |delta| when ref is zero.
func relative(delta, ref float64) float64 {
	if ref == 0 {
		return math.Abs(delta)
	}
	return math.Abs(delta / ref)
}

// CompareOutputs evaluates f on every input row and compares the result
// with expected.
func CompareOutputs(f function.Function, input, expected *sample.Sample) (*Report, error) {
	if input.Size() != expected.Size() {
		return nil, fmt.Errorf("%d inputs, %d expected outputs: %w", input.Size(), expected.Size(), sample.ErrSize)
	}
	if expected.Dimension() != f.OutputDimension() {
		return nil, fmt.Errorf("%s has %d outputs, expected sample has %d: %w", f.Name(), f.OutputDimension(), expected.Dimension(), function.ErrDimension)
	}
	predicted, err := function.EvaluateSample(f, input)
	if err != nil {
		return nil, err
	}
	diff, err := predicted.Sub(expected)
	if err != nil {
		return nil, err
	}

	p := expected.Dimension()
	rel := sample.New(diff.Size(), p)
	r := &Report{Model: f.Name()}
	for i := 0; i < diff.Size(); i++ {
		for j := 0; j < p; j++ {
			d := diff.At(i, j)
			rel.Set(i, j, relative(d, expected.At(i, j)))
			r.MaxAbsError = math.Max(r.MaxAbsError, math.Abs(d))
			r.MaxRelError = math.Max(r.MaxRelError, rel.At(i, j))
		}
	}

	table := input
	for _, s := range []*sample.Sample{expected, predicted, diff, rel} {
		if table, err = table.Stack(s); err != nil {
			return nil, err
		}
	}
	names := make([]string, 0, table.Dimension())
	for j := 0; j < input.Dimension(); j++ {
		names = append(names, input.ColumnName(j, fmt.Sprintf("x%d", j)))
	}
	for _, prefix := range []string{"expected", "prediction", "difference", "rel. error"} {
		for j := 0; j < p; j++ {
			if p == 1 {
				names = append(names, prefix)
			} else {
				names = append(names, fmt.Sprintf("%s %s", prefix, expected.ColumnName(j, fmt.Sprintf("y%d", j))))
			}
		}
	}
	if err := table.SetDescription(names); err != nil {
		return nil, err
	}
	r.Table = table
	return r, nil
}

// PointDelta is the comparison of two functions at one point.
type PointDelta struct {
	Point []float64
	// worst absolute differences
	Value    float64
	Gradient float64
	Hessian  float64
	// worst differences relative to the largest reference entry
	RelGradient float64
	RelHessian  float64
}

// DerivativeReport compares a candidate function with a reference one.
type DerivativeReport struct {
	Reference string
	Candidate string
	Points    []PointDelta
}

// MaxRelGradient returns the worst relative gradient difference.
func (r *DerivativeReport) MaxRelGradient() float64 {
	m := 0.0
	for _, p := range r.Points {
		m = math.Max(m, p.RelGradient)
	}
	return m
}

// MaxRelHessian returns the worst relative hessian difference.
func (r *DerivativeReport) MaxRelHessian() float64 {
	m := 0.0
	for _, p := range r.Points {
		m = math.Max(m, p.RelHessian)
	}
	return m
}

// Exceeds reports whether a relative gradient or hessian difference is above tol.
func (r *DerivativeReport) Exceeds(tol float64) bool {
	return r.MaxRelGradient() > tol || r.MaxRelHessian() > tol
}

// String renders one line per point.
func (r *DerivativeReport) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s vs %s\n", r.Candidate, r.Reference)
	for _, p := range r.Points {
		fmt.Fprintf(&sb, "x=%v value=%.3e gradient=%.3e (rel %.3e) hessian=%.3e (rel %.3e)\n",
			p.Point, p.Value, p.Gradient, p.RelGradient, p.Hessian, p.RelHessian)
	}
	return sb.String()
}

// CompareFunctions compares values, gradients and hessians of candidate
// with those of reference at every row of points.
func CompareFunctions(reference, candidate function.Function, points *sample.Sample) (*DerivativeReport, error) {
	if reference.InputDimension() != candidate.InputDimension() || reference.OutputDimension() != candidate.OutputDimension() {
		return nil, fmt.Errorf("%s is %d -> %d, %s is %d -> %d: %w",
			reference.Name(), reference.InputDimension(), reference.OutputDimension(),
			candidate.Name(), candidate.InputDimension(), candidate.OutputDimension(), function.ErrDimension)
	}
	r := &DerivativeReport{Reference: reference.Name(), Candidate: candidate.Name()}
	for i := 0; i < points.Size(); i++ {
		x := points.Row(i)
		p := PointDelta{Point: x}

		yr, err := reference.Evaluate(x)
		if err != nil {
			return nil, err
		}
		yc, err := candidate.Evaluate(x)
		if err != nil {
			return nil, err
		}
		for k := range yr {
			p.Value = math.Max(p.Value, math.Abs(yc[k]-yr[k]))
		}

		gr, err := reference.Gradient(x)
		if err != nil {
			return nil, err
		}
		gc, err := candidate.Gradient(x)
		if err != nil {
			return nil, err
		}
		if !sameDims(gr, gc) {
			return nil, fmt.Errorf("gradient shapes differ at %v: %w", x, function.ErrDimension)
		}
		p.Gradient, p.RelGradient = matrixDelta(gr, gc)

		hr, err := reference.Hessian(x)
		if err != nil {
			return nil, err
		}
		hc, err := candidate.Hessian(x)
		if err != nil {
			return nil, err
		}
		if len(hr) != len(hc) {
			return nil, fmt.Errorf("%d reference hessians, %d candidate hessians: %w", len(hr), len(hc), function.ErrDimension)
		}
		for k := range hr {
			if !sameDims(hr[k], hc[k]) {
				return nil, fmt.Errorf("hessian %d shapes differ at %v: %w", k, x, function.ErrDimension)
			}
			abs, rel := matrixDelta(hr[k], hc[k])
			p.Hessian = math.Max(p.Hessian, abs)
			p.RelHessian = math.Max(p.RelHessian, rel)
		}
		r.Points = append(r.Points, p)
	}
	return r, nil
}

// matrixDelta returns the largest absolute entry of c - ref and that value
// divided by the largest absolute entry of ref.
func matrixDelta(ref, c mat.Matrix) (float64, float64) {
	var delta mat.Dense
	delta.Sub(c, ref)
	abs := maxAbs(&delta)
	scale := maxAbs(ref)
	if scale == 0 {
		return abs, abs
	}
	return abs, abs / scale
}

func sameDims(a, b mat.Matrix) bool {
	ra, ca := a.Dims()
	rb, cb := b.Dims()
	return ra == rb && ca == cb
}

func maxAbs(m mat.Matrix) float64 {
	r, c := m.Dims()
	v := 0.0
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v = math.Max(v, math.Abs(m.At(i, j)))
		}
	}
	return v
}
