package regression

import (
	"errors"
	"testing"

	"otpmml/internal/sample"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func planeSamples(t *testing.T) (*sample.Sample, *sample.Sample) {
	t.Helper()
	in, err := sample.FromRows([][]float64{{0, 0}, {1, 0}, {0, 1}, {2, 3}, {-1, 4}, {5, -2}})
	require.NoError(t, err)
	out := sample.New(0, 2)
	for _, r := range in.Rows() {
		require.NoError(t, out.Add([]float64{1 + 2*r[0] - 3*r[1], -0.5 + r[1]}))
	}
	return in, out
}

func TestLinearLeastSquares_Run(t *testing.T) {
	in, out := planeSamples(t)
	lls, err := NewLinearLeastSquares(in, out)
	require.NoError(t, err)
	lls.SetName("plane")
	require.NoError(t, lls.Run())

	constant, err := lls.Constant()
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1, -0.5}, constant, 1e-12)

	linear, err := lls.Linear()
	require.NoError(t, err)
	r, c := linear.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 2, c)
	assert.InDelta(t, 2, linear.At(0, 0), 1e-12)
	assert.InDelta(t, -3, linear.At(1, 0), 1e-12)
	assert.InDelta(t, 0, linear.At(0, 1), 1e-12)
	assert.InDelta(t, 1, linear.At(1, 1), 1e-12)

	f, err := lls.Metamodel()
	require.NoError(t, err)
	assert.Equal(t, "plane", f.Name())
	y, err := f.Evaluate([]float64{10, 1})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{18, 0.5}, y, 1e-10)

	assert.Same(t, in, lls.DataIn())
	assert.Same(t, out, lls.DataOut())
}

func TestLinearLeastSquares_NoisyFit(t *testing.T) {
	in, err := sample.FromRows([][]float64{{0}, {1}, {2}, {3}})
	require.NoError(t, err)
	out, err := sample.FromRows([][]float64{{1}, {2}, {2}, {4}})
	require.NoError(t, err)

	lls, err := NewLinearLeastSquares(in, out)
	require.NoError(t, err)
	require.NoError(t, lls.Run())
	constant, _ := lls.Constant()
	linear, _ := lls.Linear()
	// normal equations: slope 0.9, intercept 0.9
	assert.InDelta(t, 0.9, constant[0], 1e-12)
	assert.InDelta(t, 0.9, linear.At(0, 0), 1e-12)
}

func TestLinearLeastSquares_Errors(t *testing.T) {
	in, out := planeSamples(t)
	lls, err := NewLinearLeastSquares(in, out)
	require.NoError(t, err)

	_, err = lls.Constant()
	assert.True(t, errors.Is(err, ErrNotRun))
	_, err = lls.Linear()
	assert.True(t, errors.Is(err, ErrNotRun))
	_, err = lls.Metamodel()
	assert.True(t, errors.Is(err, ErrNotRun))

	short, err := sample.FromRows([][]float64{{1}})
	require.NoError(t, err)
	_, err = NewLinearLeastSquares(in, short)
	assert.True(t, errors.Is(err, sample.ErrSize))

	few, _ := sample.FromRows([][]float64{{1, 2}, {3, 4}})
	fewOut, _ := sample.FromRows([][]float64{{1}, {2}})
	lls, err = NewLinearLeastSquares(few, fewOut)
	require.NoError(t, err)
	assert.True(t, errors.Is(lls.Run(), ErrUnderdetermined))

	flat, _ := sample.FromRows([][]float64{{1, 1}, {2, 2}, {3, 3}, {4, 4}})
	flatOut, _ := sample.FromRows([][]float64{{1}, {2}, {3}, {5}})
	lls, err = NewLinearLeastSquares(flat, flatOut)
	require.NoError(t, err)
	assert.Error(t, lls.Run())
}
