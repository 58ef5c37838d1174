package nnet

import (
	"fmt"
	"math"

	"otpmml/internal/pmml"
)

// activation is a scalar transfer function with its first two derivatives.
type activation struct {
	name string
	f    func(z float64) float64
	d1   func(z float64) float64
	d2   func(z float64) float64
}

var activations = map[string]activation{
	"identity": {
		f:  func(z float64) float64 { return z },
		d1: func(float64) float64 { return 1 },
		d2: func(float64) float64 { return 0 },
	},
	"tanh": {
		f: math.Tanh,
		d1: func(z float64) float64 {
			t := math.Tanh(z)
			return 1 - t*t
		},
		d2: func(z float64) float64 {
			t := math.Tanh(z)
			return -2 * t * (1 - t*t)
		},
	},
	"logistic": {
		f: logistic,
		d1: func(z float64) float64 {
			s := logistic(z)
			return s * (1 - s)
		},
		d2: func(z float64) float64 {
			s := logistic(z)
			return s * (1 - s) * (1 - 2*s)
		},
	},
	"exponential": {f: math.Exp, d1: math.Exp, d2: math.Exp},
	"reciprocal": {
		f:  func(z float64) float64 { return 1 / z },
		d1: func(z float64) float64 { return -1 / (z * z) },
		d2: func(z float64) float64 { return 2 / (z * z * z) },
	},
	"square": {
		f:  func(z float64) float64 { return z * z },
		d1: func(z float64) float64 { return 2 * z },
		d2: func(float64) float64 { return 2 },
	},
	"Gauss": {
		f:  func(z float64) float64 { return math.Exp(-z * z) },
		d1: func(z float64) float64 { return -2 * z * math.Exp(-z*z) },
		d2: func(z float64) float64 { return (4*z*z - 2) * math.Exp(-z*z) },
	},
	"sine": {
		f:  math.Sin,
		d1: math.Cos,
		d2: func(z float64) float64 { return -math.Sin(z) },
	},
	"cosine": {
		f:  math.Cos,
		d1: func(z float64) float64 { return -math.Sin(z) },
		d2: func(z float64) float64 { return -math.Cos(z) },
	},
	"Elliott": {
		f: func(z float64) float64 { return z / (1 + math.Abs(z)) },
		d1: func(z float64) float64 {
			a := 1 + math.Abs(z)
			return 1 / (a * a)
		},
		d2: func(z float64) float64 {
			a := 1 + math.Abs(z)
			return -2 * sign(z) / (a * a * a)
		},
	},
	"arctan": {
		f:  func(z float64) float64 { return 2 * math.Atan(z) / math.Pi },
		d1: func(z float64) float64 { return 2 / (math.Pi * (1 + z*z)) },
		d2: func(z float64) float64 {
			a := 1 + z*z
			return -4 * z / (math.Pi * a * a)
		},
	},
	"rectifier": {
		f: func(z float64) float64 { return math.Max(0, z) },
		d1: func(z float64) float64 {
			if z > 0 {
				return 1
			}
			return 0
		},
		d2: func(float64) float64 { return 0 },
	},
}

func logistic(z float64) float64 { return 1 / (1 + math.Exp(-z)) }

func sign(z float64) float64 {
	switch {
	case z > 0:
		return 1
	case z < 0:
		return -1
	}
	return 0
}

func lookupActivation(name string) (activation, error) {
	a, ok := activations[name]
	if !ok {
		return activation{}, fmt.Errorf("unknown activation function '%s': %w", name, pmml.ErrUnsupported)
	}
	a.name = name
	return a, nil
}

// Activations returns the supported activation function names.
func Activations() []string {
	names := make([]string, 0, len(activations))
	for name := range activations {
		names = append(names, name)
	}
	return names
}
