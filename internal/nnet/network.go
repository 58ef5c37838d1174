// Package nnet turns PMML neural networks into evaluable functions with
// exact first and second order derivatives.
package nnet

import (
	"fmt"
	"strings"
	"time"

	"otpmml/internal/function"
	"otpmml/internal/pmml"
	"otpmml/internal/sample"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
)

// Evaluation kinds reported to the MetricsTracker.
const (
	KindValue    = "value"
	KindGradient = "gradient"
	KindHessian  = "hessian"
)

// MetricsTracker receives evaluation events.
type MetricsTracker interface {
	EvaluationInc(model, kind string)
	EvaluationErrorInc(model, kind string)
	EvaluationDuration(model, kind string, d time.Duration)
}

// Layer is one neural layer: y = f(W^T z + b).
type Layer struct {
	Weights    *mat.Dense // previous size x size
	Bias       []float64
	Activation string

	act activation
}

// Size returns the number of neurons.
func (l *Layer) Size() int { return len(l.Bias) }

// Network is a multilayer perceptron read from a PMML document.
type Network struct {
	name        string
	inputNames  []string
	outputNames []string
	inputNorms  []normalization
	layers      []*Layer
	outputs     []int // last layer neuron of each output
	outputNorms []normalization

	metrics MetricsTracker
}

var _ function.Function = (*Network)(nil)

// Load reads the network named modelName from the PMML file at path; an
// empty name selects the first network of the document.
func Load(path, modelName string) (*Network, error) {
	doc, err := pmml.Open(path)
	if err != nil {
		return nil, err
	}
	return FromDoc(doc, modelName)
}

// FromDoc builds the network named modelName from an already parsed document.
func FromDoc(doc *pmml.Doc, modelName string) (*Network, error) {
	nn, err := doc.NeuralNetwork(modelName)
	if err != nil {
		return nil, err
	}
	n, err := build(nn)
	if err != nil {
		return nil, fmt.Errorf("neural network '%s': %w", nn.ModelName(), err)
	}
	log.Debug().Str("model", n.name).Int("inputs", n.InputDimension()).Int("outputs", n.OutputDimension()).
		Int("layers", len(n.layers)).Msg("neural network loaded")
	return n, nil
}

func build(nn *pmml.NeuralNetwork) (*Network, error) {
	if m := nn.NormalizationMethod(); m != "none" {
		return nil, fmt.Errorf("normalizationMethod '%s' not supported: %w", m, pmml.ErrUnsupported)
	}
	nIn := len(nn.InputIDs())
	if nIn == 0 {
		return nil, fmt.Errorf("no neural input: %w", pmml.ErrInvalid)
	}
	if nn.NumberOfInputs() != nIn {
		return nil, fmt.Errorf("numberOfInputs is %d for %d NeuralInput elements: %w", nn.NumberOfInputs(), nIn, pmml.ErrInvalid)
	}
	nLayers := nn.NumberOfLayers()
	if nLayers == 0 {
		return nil, fmt.Errorf("no neural layer: %w", pmml.ErrInvalid)
	}

	n := &Network{name: nn.ModelName(), inputNames: nn.InputNames(), outputNames: nn.OutputNames()}

	for i, norms := range nn.InputNorms() {
		norm, err := newNormalization(norms)
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		n.inputNorms = append(n.inputNorms, norm)
	}
	// warns about unknown normalization schemes
	nn.InputsNormalization()

	prev := nIn
	for i := 0; i < nLayers; i++ {
		ids := nn.NeuronIDsAtLayer(i)
		if len(ids) == 0 {
			return nil, fmt.Errorf("layer %d has no neuron: %w", i, pmml.ErrInvalid)
		}
		if size := nn.LayerSize(i); size != len(ids) {
			return nil, fmt.Errorf("layer %d: numberOfNeurons is %d for %d Neuron elements: %w", i, size, len(ids), pmml.ErrInvalid)
		}
		if m := nn.NormalizationMethodAtLayer(i); m != "none" {
			return nil, fmt.Errorf("layer %d: normalizationMethod '%s' not supported: %w", i, m, pmml.ErrUnsupported)
		}
		act, err := lookupActivation(nn.ActivationFunctionAtLayer(i))
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		w, err := nn.WeightsAtLayer(i)
		if err != nil {
			return nil, err
		}
		if r, _ := w.Dims(); r != prev {
			return nil, fmt.Errorf("layer %d is fed by %d values, expected %d: %w", i, r, prev, pmml.ErrInvalid)
		}
		n.layers = append(n.layers, &Layer{Weights: w, Bias: nn.BiasAtLayer(i), Activation: act.name, act: act})
		prev = len(ids)
	}

	lastIDs := nn.NeuronIDsAtLayer(nLayers - 1)
	index := make(map[string]int, len(lastIDs))
	for k, id := range lastIDs {
		index[id] = k
	}
	outNorms := nn.OutputNorms()
	if len(outNorms) == 0 {
		return nil, fmt.Errorf("no neural output: %w", pmml.ErrInvalid)
	}
	for j, id := range nn.OutputNeurons() {
		k, ok := index[id]
		if !ok {
			if j >= len(lastIDs) {
				return nil, fmt.Errorf("output %d: no neuron '%s' in the last layer: %w", j, id, pmml.ErrInvalid)
			}
			log.Warn().Str("model", n.name).Int("output", j).Str("neuron", id).Msg("output neuron not found, using positional order")
			k = j
		}
		n.outputs = append(n.outputs, k)

		norm, err := newNormalization(outNorms[j])
		if err == nil {
			norm, err = norm.inverse()
		}
		if err != nil {
			return nil, fmt.Errorf("output %d: %w", j, err)
		}
		n.outputNorms = append(n.outputNorms, norm)
	}
	nn.OutputsNormalization()
	return n, nil
}

// SetMetrics instruments the evaluations of the network.
func (n *Network) SetMetrics(m MetricsTracker) { n.metrics = m }

func (n *Network) Name() string         { return n.name }
func (n *Network) InputDimension() int  { return len(n.inputNorms) }
func (n *Network) OutputDimension() int { return len(n.outputs) }

// InputNames returns the names of the fields feeding the network.
func (n *Network) InputNames() []string { return append([]string(nil), n.inputNames...) }

// OutputNames returns the names of the predicted fields.
func (n *Network) OutputNames() []string { return append([]string(nil), n.outputNames...) }

// Layers returns the layers of the network, the output layer last.
func (n *Network) Layers() []*Layer { return n.layers }

func (n *Network) Evaluate(x []float64) ([]float64, error) {
	s, err := n.run(x, 0, KindValue)
	if err != nil {
		return nil, err
	}
	return s.value, nil
}

// EvaluateSample evaluates every row of in and describes the result by the
// output names.
func (n *Network) EvaluateSample(in *sample.Sample) (*sample.Sample, error) {
	out, err := function.EvaluateSample(n, in)
	if err != nil {
		return nil, err
	}
	if err := out.SetDescription(n.outputNames); err != nil {
		return nil, err
	}
	return out, nil
}

func (n *Network) Gradient(x []float64) (*mat.Dense, error) {
	s, err := n.run(x, 1, KindGradient)
	if err != nil {
		return nil, err
	}
	return mat.DenseCopyOf(s.jacobian.T()), nil
}

func (n *Network) Hessian(x []float64) ([]*mat.SymDense, error) {
	s, err := n.run(x, 2, KindHessian)
	if err != nil {
		return nil, err
	}
	return s.hessians, nil
}

func (n *Network) run(x []float64, order int, kind string) (*state, error) {
	start := time.Now()
	s, err := n.propagate(x, order)
	if n.metrics != nil {
		n.metrics.EvaluationInc(n.name, kind)
		n.metrics.EvaluationDuration(n.name, kind, time.Since(start))
		if err != nil {
			n.metrics.EvaluationErrorInc(n.name, kind)
		}
	}
	return s, err
}

// state holds the values of one stage of the network and, up to the
// requested order, their jacobian (values x inputs) and hessians.
type state struct {
	value    []float64
	jacobian *mat.Dense
	hessians []*mat.SymDense
}

func (n *Network) propagate(x []float64, order int) (*state, error) {
	if err := function.CheckInput(n, x); err != nil {
		return nil, err
	}
	d := len(x)

	s := &state{value: make([]float64, d)}
	if order >= 1 {
		s.jacobian = mat.NewDense(d, d, nil)
	}
	if order >= 2 {
		s.hessians = zeroHessians(d, d)
	}
	for i, xi := range x {
		v, slope := n.inputNorms[i].apply(xi)
		s.value[i] = v
		if order >= 1 {
			s.jacobian.Set(i, i, slope)
		}
	}

	for _, l := range n.layers {
		s = l.forward(s, order)
	}

	out := &state{value: make([]float64, len(n.outputs))}
	if order >= 1 {
		out.jacobian = mat.NewDense(len(n.outputs), d, nil)
	}
	if order >= 2 {
		out.hessians = make([]*mat.SymDense, len(n.outputs))
	}
	for j, k := range n.outputs {
		v, slope := n.outputNorms[j].apply(s.value[k])
		out.value[j] = v
		if order >= 1 {
			row := mat.NewVecDense(d, nil)
			row.ScaleVec(slope, s.jacobian.RowView(k))
			out.jacobian.SetRow(j, row.RawVector().Data)
		}
		if order >= 2 {
			h := mat.NewSymDense(d, nil)
			h.ScaleSym(slope, s.hessians[k])
			out.hessians[j] = h
		}
	}
	return out, nil
}

// forward pushes a state through the layer:
//
//	a = W^T z + b, Ja = W^T Jz, Ha_k = sum_j W_jk Hz_j
//	y = f(a), Jy_k = f'(a_k) Ja_k, Hy_k = f''(a_k) Ja_k Ja_k^T + f'(a_k) Ha_k
func (l *Layer) forward(in *state, order int) *state {
	size := l.Size()
	out := &state{value: make([]float64, size)}
	a := make([]float64, size)
	for k := 0; k < size; k++ {
		a[k] = l.Bias[k]
		for j, z := range in.value {
			a[k] += l.Weights.At(j, k) * z
		}
		out.value[k] = l.act.f(a[k])
	}
	if order < 1 {
		return out
	}

	_, d := in.jacobian.Dims()
	var ja mat.Dense
	ja.Mul(l.Weights.T(), in.jacobian)
	out.jacobian = mat.NewDense(size, d, nil)
	for k := 0; k < size; k++ {
		row := mat.NewVecDense(d, nil)
		row.ScaleVec(l.act.d1(a[k]), ja.RowView(k))
		out.jacobian.SetRow(k, row.RawVector().Data)
	}
	if order < 2 {
		return out
	}

	out.hessians = make([]*mat.SymDense, size)
	for k := 0; k < size; k++ {
		ha := mat.NewSymDense(d, nil)
		for j, hz := range in.hessians {
			w := l.Weights.At(j, k)
			if w == 0 {
				continue
			}
			for p := 0; p < d; p++ {
				for q := p; q < d; q++ {
					ha.SetSym(p, q, ha.At(p, q)+w*hz.At(p, q))
				}
			}
		}
		h := mat.NewSymDense(d, nil)
		h.ScaleSym(l.act.d1(a[k]), ha)
		h.SymRankOne(h, l.act.d2(a[k]), ja.RowView(k))
		out.hessians[k] = h
	}
	return out
}

func zeroHessians(count, d int) []*mat.SymDense {
	hs := make([]*mat.SymDense, count)
	for i := range hs {
		hs[i] = mat.NewSymDense(d, nil)
	}
	return hs
}

// String summarizes the architecture of the network.
func (n *Network) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "NeuralNetwork %s: %d inputs [%s] -> %d outputs [%s]\n",
		n.name, n.InputDimension(), strings.Join(n.inputNames, ", "), n.OutputDimension(), strings.Join(n.outputNames, ", "))
	for i, l := range n.layers {
		fmt.Fprintf(&sb, "  layer %d: %d neurons, activation %s\n", i, l.Size(), l.Activation)
	}
	return sb.String()
}
