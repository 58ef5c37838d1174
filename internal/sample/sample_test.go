package sample

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromRows(t *testing.T) {
	s, err := FromRows([][]float64{{1, 2}, {3, 4}, {5, 6}})
	require.NoError(t, err)
	assert.Equal(t, 3, s.Size())
	assert.Equal(t, 2, s.Dimension())
	assert.Equal(t, 4.0, s.At(1, 1))

	_, err = FromRows([][]float64{{1, 2}, {3}})
	assert.True(t, errors.Is(err, ErrDimension))
}

func TestRowIsCopy(t *testing.T) {
	s, err := FromRows([][]float64{{1, 2}})
	require.NoError(t, err)
	r := s.Row(0)
	r[0] = 42
	assert.Equal(t, 1.0, s.At(0, 0))
}

func TestEmptySampleKeepsDimension(t *testing.T) {
	s := New(0, 3)
	assert.Equal(t, 0, s.Size())
	assert.Equal(t, 3, s.Dimension())
	assert.Error(t, s.Add([]float64{1}))
	assert.NoError(t, s.Add([]float64{1, 2, 3}))
}

func TestSetDescription(t *testing.T) {
	s := New(1, 2)
	assert.True(t, errors.Is(s.SetDescription([]string{"a"}), ErrDimension))
	require.NoError(t, s.SetDescription([]string{"a", "b"}))
	assert.Equal(t, []string{"a", "b"}, s.Description())
	assert.Equal(t, "b", s.ColumnName(1, "x1"))

	require.NoError(t, s.SetDescription(nil))
	assert.Nil(t, s.Description())
	assert.Equal(t, "x1", s.ColumnName(1, "x1"))
}

func TestStackAndMarginal(t *testing.T) {
	in, err := FromRows([][]float64{{1, 2}, {3, 4}})
	require.NoError(t, err)
	require.NoError(t, in.SetDescription([]string{"E", "F"}))
	out, err := FromRows([][]float64{{10}, {20}})
	require.NoError(t, err)

	all, err := in.Stack(out)
	require.NoError(t, err)
	assert.Equal(t, 3, all.Dimension())
	assert.Equal(t, []string{"E", "F", ""}, all.Description())
	assert.Equal(t, 20.0, all.At(1, 2))

	last, err := all.Marginal(2)
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{10}, {20}}, last.Rows())

	first, err := all.Columns(0, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"E", "F"}, first.Description())

	short, err := FromRows([][]float64{{1}})
	require.NoError(t, err)
	_, err = in.Stack(short)
	assert.True(t, errors.Is(err, ErrSize))

	_, err = all.Columns(2, 5)
	assert.True(t, errors.Is(err, ErrDimension))
}

func TestSub(t *testing.T) {
	a, _ := FromRows([][]float64{{5, 1}, {2, 2}})
	b, _ := FromRows([][]float64{{1, 1}, {3, 0}})
	d, err := a.Sub(b)
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{4, 0}, {-1, 2}}, d.Rows())

	c, _ := FromRows([][]float64{{1}})
	_, err = a.Sub(c)
	assert.Error(t, err)
}

func TestString(t *testing.T) {
	s, _ := FromRows([][]float64{{1.5, 2}})
	require.NoError(t, s.SetDescription([]string{"a", "b"}))
	assert.Equal(t, "    [ a b ]\n  0 : [1.5 2]\n", s.String())
}
