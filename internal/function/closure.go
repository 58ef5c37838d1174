package function

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Default relative steps of the centered finite difference schemes.
const (
	DefaultGradientStep = 1e-5
	DefaultHessianStep  = 1e-4
)

// Closure wraps a plain Go func. Its derivatives are computed by centered
// finite differences.
type Closure struct {
	name    string
	in, out int
	fn      func(x []float64) []float64
}

// NewClosure wraps fn as a Function of the given dimensions.
func NewClosure(name string, in, out int, fn func(x []float64) []float64) *Closure {
	return &Closure{name: name, in: in, out: out, fn: fn}
}

func (c *Closure) Name() string         { return c.name }
func (c *Closure) InputDimension() int  { return c.in }
func (c *Closure) OutputDimension() int { return c.out }

func (c *Closure) Evaluate(x []float64) ([]float64, error) {
	if err := CheckInput(c, x); err != nil {
		return nil, err
	}
	y := c.fn(append([]float64(nil), x...))
	if len(y) != c.out {
		return nil, fmt.Errorf("%s: returned %d values, expected %d: %w", c.name, len(y), c.out, ErrDimension)
	}
	return y, nil
}

func (c *Closure) Gradient(x []float64) (*mat.Dense, error) {
	if err := CheckInput(c, x); err != nil {
		return nil, err
	}
	return CenteredGradient(c.Evaluate, x, DefaultGradientStep)
}

func (c *Closure) Hessian(x []float64) ([]*mat.SymDense, error) {
	if err := CheckInput(c, x); err != nil {
		return nil, err
	}
	return CenteredHessian(c.Evaluate, x, DefaultHessianStep)
}

// step scales eps by the magnitude of xi.
func step(eps, xi float64) float64 {
	return eps * math.Max(1, math.Abs(xi))
}

// CenteredGradient approximates the gradient of f at x.
func CenteredGradient(f func([]float64) ([]float64, error), x []float64, eps float64) (*mat.Dense, error) {
	var g *mat.Dense
	xp := append([]float64(nil), x...)
	for i := range x {
		h := step(eps, x[i])
		xp[i] = x[i] + h
		fp, err := f(xp)
		if err != nil {
			return nil, err
		}
		xp[i] = x[i] - h
		fm, err := f(xp)
		if err != nil {
			return nil, err
		}
		xp[i] = x[i]
		if g == nil {
			g = mat.NewDense(len(x), len(fp), nil)
		}
		for j := range fp {
			g.Set(i, j, (fp[j]-fm[j])/(2*h))
		}
	}
	return g, nil
}

// CenteredHessian approximates the hessian of every output of f at x.
func CenteredHessian(f func([]float64) ([]float64, error), x []float64, eps float64) ([]*mat.SymDense, error) {
	n := len(x)
	f0, err := f(x)
	if err != nil {
		return nil, err
	}
	hs := make([]*mat.SymDense, len(f0))
	for k := range hs {
		hs[k] = mat.NewSymDense(n, nil)
	}
	eval := func(i int, si float64, j int, sj float64) ([]float64, error) {
		xp := append([]float64(nil), x...)
		xp[i] += si
		xp[j] += sj
		return f(xp)
	}
	for i := 0; i < n; i++ {
		hi := step(eps, x[i])
		fp, err := eval(i, hi, i, 0)
		if err != nil {
			return nil, err
		}
		fm, err := eval(i, -hi, i, 0)
		if err != nil {
			return nil, err
		}
		for k := range hs {
			hs[k].SetSym(i, i, (fp[k]-2*f0[k]+fm[k])/(hi*hi))
		}
		for j := i + 1; j < n; j++ {
			hj := step(eps, x[j])
			fpp, err := eval(i, hi, j, hj)
			if err != nil {
				return nil, err
			}
			fpm, err := eval(i, hi, j, -hj)
			if err != nil {
				return nil, err
			}
			fmp, err := eval(i, -hi, j, hj)
			if err != nil {
				return nil, err
			}
			fmm, err := eval(i, -hi, j, -hj)
			if err != nil {
				return nil, err
			}
			for k := range hs {
				hs[k].SetSym(i, j, (fpp[k]-fpm[k]-fmp[k]+fmm[k])/(4*hi*hj))
			}
		}
	}
	return hs, nil
}
