// Package function defines the evaluable numerical functions built from PMML
// models, together with helpers shared by all implementations.
//
// Derivative conventions: Gradient returns an inputDim x outputDim matrix G
// with G[i][j] = d f_j / d x_i, and Hessian returns one symmetric
// inputDim x inputDim matrix per output.
package function

import (
	"errors"
	"fmt"

	"otpmml/internal/sample"

	"gonum.org/v1/gonum/mat"
)

// ErrDimension is returned when a point does not match the function input dimension.
var ErrDimension = errors.New("dimension mismatch")

// Function is a vector-valued function of a vector argument with first and
// second order derivatives.
type Function interface {
	Name() string
	InputDimension() int
	OutputDimension() int
	Evaluate(x []float64) ([]float64, error)
	Gradient(x []float64) (*mat.Dense, error)
	Hessian(x []float64) ([]*mat.SymDense, error)
}

// CheckInput verifies that x has the input dimension of f.
func CheckInput(f Function, x []float64) error {
	if len(x) != f.InputDimension() {
		return fmt.Errorf("%s: point of dimension %d, expected %d: %w", f.Name(), len(x), f.InputDimension(), ErrDimension)
	}
	return nil
}

// EvaluateSample applies f to every row of in.
func EvaluateSample(f Function, in *sample.Sample) (*sample.Sample, error) {
	if in.Dimension() != f.InputDimension() {
		return nil, fmt.Errorf("%s: sample of dimension %d, expected %d: %w", f.Name(), in.Dimension(), f.InputDimension(), ErrDimension)
	}
	out := sample.New(0, f.OutputDimension())
	for i := 0; i < in.Size(); i++ {
		y, err := f.Evaluate(in.Row(i))
		if err != nil {
			return nil, fmt.Errorf("evaluate row %d: %w", i, err)
		}
		if err := out.Add(y); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Affine is the function x -> c + L^T x, where L is inputDim x outputDim.
type Affine struct {
	name     string
	constant []float64
	linear   *mat.Dense
}

// NewAffine builds an affine function. linear must have len(constant) columns.
func NewAffine(name string, constant []float64, linear *mat.Dense) (*Affine, error) {
	if _, c := linear.Dims(); c != len(constant) {
		return nil, fmt.Errorf("affine %s: linear part has %d columns for %d outputs: %w", name, c, len(constant), ErrDimension)
	}
	return &Affine{name: name, constant: append([]float64(nil), constant...), linear: mat.DenseCopyOf(linear)}, nil
}

func (a *Affine) Name() string         { return a.name }
func (a *Affine) InputDimension() int  { r, _ := a.linear.Dims(); return r }
func (a *Affine) OutputDimension() int { return len(a.constant) }

func (a *Affine) Evaluate(x []float64) ([]float64, error) {
	if err := CheckInput(a, x); err != nil {
		return nil, err
	}
	y := make([]float64, len(a.constant))
	copy(y, a.constant)
	for j := range y {
		for i, xi := range x {
			y[j] += a.linear.At(i, j) * xi
		}
	}
	return y, nil
}

func (a *Affine) Gradient(x []float64) (*mat.Dense, error) {
	if err := CheckInput(a, x); err != nil {
		return nil, err
	}
	return mat.DenseCopyOf(a.linear), nil
}

func (a *Affine) Hessian(x []float64) ([]*mat.SymDense, error) {
	if err := CheckInput(a, x); err != nil {
		return nil, err
	}
	n := a.InputDimension()
	h := make([]*mat.SymDense, a.OutputDimension())
	for k := range h {
		h[k] = mat.NewSymDense(n, nil)
	}
	return h, nil
}
