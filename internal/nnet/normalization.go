package nnet

import (
	"fmt"
	"sort"

	"otpmml/internal/pmml"
)

// normalization is the piecewise linear map of a NormContinuous element,
// extrapolated linearly beyond its first and last pairs. The zero value is
// the identity.
type normalization struct {
	from []float64
	to   []float64
}

func newNormalization(norms []pmml.LinearNorm) (normalization, error) {
	switch len(norms) {
	case 0:
		return normalization{}, nil
	case 1:
		return normalization{}, fmt.Errorf("NormContinuous with a single LinearNorm: %w", pmml.ErrInvalid)
	}
	if offsetScaled(norms) {
		return newOffsetScale(norms)
	}
	pairs := append([]pmml.LinearNorm(nil), norms...)
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].Orig < pairs[j].Orig })
	n := normalization{from: make([]float64, len(pairs)), to: make([]float64, len(pairs))}
	for i, p := range pairs {
		if i > 0 && p.Orig == pairs[i-1].Orig {
			return normalization{}, fmt.Errorf("NormContinuous with duplicate orig %g: %w", p.Orig, pmml.ErrInvalid)
		}
		n.from[i] = p.Orig
		n.to[i] = p.Norm
	}
	return n, nil
}

// offsetScaled reports whether norms encode an offset and a scale as
// orig0 = 0, orig1 = dmin, norm0 = -dmax/dmin, norm1 = 0.
func offsetScaled(norms []pmml.LinearNorm) bool {
	return len(norms) == 2 && norms[0].Orig == 0 && norms[1].Norm == 0
}

// newOffsetScale returns x -> (x - dmin) / dmax for offset and scale pairs.
func newOffsetScale(norms []pmml.LinearNorm) (normalization, error) {
	dmin := norms[1].Orig
	dmax := -norms[0].Norm * dmin
	if dmin == 0 || dmax == 0 {
		return normalization{}, fmt.Errorf("NormContinuous with offset %g and scale %g: %w", dmin, dmax, pmml.ErrInvalid)
	}
	n := normalization{from: []float64{dmin, dmin + dmax}, to: []float64{0, 1}}
	if dmax < 0 {
		n.from[0], n.from[1] = n.from[1], n.from[0]
		n.to[0], n.to[1] = n.to[1], n.to[0]
	}
	return n, nil
}

// inverse maps normalized values back to the original scale. The
// normalization must be strictly monotonic.
func (n normalization) inverse() (normalization, error) {
	if n.identity() {
		return n, nil
	}
	inc, dec := true, true
	for i := 1; i < len(n.to); i++ {
		inc = inc && n.to[i] > n.to[i-1]
		dec = dec && n.to[i] < n.to[i-1]
	}
	if !inc && !dec {
		return normalization{}, fmt.Errorf("output NormContinuous is not monotonic: %w", pmml.ErrInvalid)
	}
	inv := normalization{from: make([]float64, len(n.to)), to: make([]float64, len(n.to))}
	for i := range n.to {
		k := i
		if dec {
			k = len(n.to) - 1 - i
		}
		inv.from[i] = n.to[k]
		inv.to[i] = n.from[k]
	}
	return inv, nil
}

func (n normalization) identity() bool { return len(n.from) == 0 }

// segment returns the index of the segment [from[k], from[k+1]] used for x.
func (n normalization) segment(x float64) int {
	k := sort.SearchFloat64s(n.from, x) - 1
	if k < 0 {
		k = 0
	}
	if k > len(n.from)-2 {
		k = len(n.from) - 2
	}
	return k
}

func (n normalization) slope(k int) float64 {
	return (n.to[k+1] - n.to[k]) / (n.from[k+1] - n.from[k])
}

// apply returns the image of x and the derivative at x.
func (n normalization) apply(x float64) (float64, float64) {
	if n.identity() {
		return x, 1
	}
	k := n.segment(x)
	s := n.slope(k)
	return n.to[k] + s*(x-n.from[k]), s
}
