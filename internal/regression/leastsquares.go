// Package regression provides linear least squares fits and the PMML
// RegressionModel built on them.
package regression

import (
	"errors"
	"fmt"

	"otpmml/internal/function"
	"otpmml/internal/sample"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrNotRun is returned by accessors of a LinearLeastSquares that was not run.
	ErrNotRun = errors.New("least squares problem not solved, call Run first")
	// ErrUnderdetermined is returned when there are fewer points than unknowns.
	ErrUnderdetermined = errors.New("underdetermined least squares problem")
)

// LinearLeastSquares fits y = c + L^T x on paired input/output samples.
type LinearLeastSquares struct {
	name     string
	dataIn   *sample.Sample
	dataOut  *sample.Sample
	constant []float64
	linear   *mat.Dense
}

// NewLinearLeastSquares pairs dataIn (n x d) with dataOut (n x p).
func NewLinearLeastSquares(dataIn, dataOut *sample.Sample) (*LinearLeastSquares, error) {
	if dataIn.Size() != dataOut.Size() {
		return nil, fmt.Errorf("input sample of size %d, output sample of size %d: %w", dataIn.Size(), dataOut.Size(), sample.ErrSize)
	}
	if dataIn.Dimension() == 0 || dataOut.Dimension() == 0 {
		return nil, fmt.Errorf("input dimension %d, output dimension %d: %w", dataIn.Dimension(), dataOut.Dimension(), sample.ErrDimension)
	}
	return &LinearLeastSquares{dataIn: dataIn, dataOut: dataOut}, nil
}

// Name returns the name of the fit.
func (l *LinearLeastSquares) Name() string { return l.name }

// SetName names the fit; the name is carried by its metamodel.
func (l *LinearLeastSquares) SetName(name string) { l.name = name }

// DataIn returns the input sample.
func (l *LinearLeastSquares) DataIn() *sample.Sample { return l.dataIn }

// DataOut returns the output sample.
func (l *LinearLeastSquares) DataOut() *sample.Sample { return l.dataOut }

// Run solves the least squares problem with an intercept column by QR
// decomposition.
func (l *LinearLeastSquares) Run() error {
	n, d, p := l.dataIn.Size(), l.dataIn.Dimension(), l.dataOut.Dimension()
	if n < d+1 {
		return fmt.Errorf("%d points for %d unknowns: %w", n, d+1, ErrUnderdetermined)
	}

	x := mat.NewDense(n, d+1, nil)
	y := mat.NewDense(n, p, nil)
	for i := 0; i < n; i++ {
		x.Set(i, 0, 1)
		for j := 0; j < d; j++ {
			x.Set(i, j+1, l.dataIn.At(i, j))
		}
		for j := 0; j < p; j++ {
			y.Set(i, j, l.dataOut.At(i, j))
		}
	}

	var qr mat.QR
	qr.Factorize(x)
	var beta mat.Dense
	if err := qr.SolveTo(&beta, false, y); err != nil {
		return fmt.Errorf("least squares %s: %w", l.name, err)
	}

	l.constant = mat.Row(nil, 0, &beta)
	l.linear = mat.DenseCopyOf(beta.Slice(1, d+1, 0, p))
	return nil
}

func (l *LinearLeastSquares) solved() error {
	if l.linear == nil {
		return ErrNotRun
	}
	return nil
}

// Constant returns the intercept of every output.
func (l *LinearLeastSquares) Constant() ([]float64, error) {
	if err := l.solved(); err != nil {
		return nil, err
	}
	return append([]float64(nil), l.constant...), nil
}

// Linear returns the d x p coefficient matrix.
func (l *LinearLeastSquares) Linear() (*mat.Dense, error) {
	if err := l.solved(); err != nil {
		return nil, err
	}
	return mat.DenseCopyOf(l.linear), nil
}

// Metamodel returns the fitted affine function.
func (l *LinearLeastSquares) Metamodel() (*function.Affine, error) {
	if err := l.solved(); err != nil {
		return nil, err
	}
	return function.NewAffine(l.name, l.constant, l.linear)
}
