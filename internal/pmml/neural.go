package pmml

import (
	"fmt"

	"otpmml/internal/sample"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
)

// NormalizationDescription names the columns of the normalization samples.
var NormalizationDescription = []string{"orig0", "orig1", "norm0", "norm1"}

// LinearNorm is one (orig, norm) pair of a NormContinuous transformation.
type LinearNorm struct {
	Orig float64
	Norm float64
}

// NeuralNetwork is a read-only view of a <NeuralNetwork> element.
type NeuralNetwork struct {
	xml neuralNetworkXML
}

// ModelName returns the modelName attribute.
func (n *NeuralNetwork) ModelName() string { return n.xml.ModelName }

// FunctionName returns the functionName attribute (regression, classification).
func (n *NeuralNetwork) FunctionName() string { return n.xml.FunctionName }

// NormalizationMethod returns the network-level normalizationMethod, "none" when absent.
func (n *NeuralNetwork) NormalizationMethod() string {
	if n.xml.NormalizationMethod == "" {
		return "none"
	}
	return n.xml.NormalizationMethod
}

// NumberOfInputs returns NeuralInputs/@numberOfInputs, or the number of
// NeuralInput elements when the attribute is missing.
func (n *NeuralNetwork) NumberOfInputs() int {
	if n.xml.Inputs.NumberOfInputs > 0 {
		return n.xml.Inputs.NumberOfInputs
	}
	return len(n.xml.Inputs.Inputs)
}

// NumberOfOutputs returns NeuralOutputs/@numberOfOutputs, or the number of
// NeuralOutput elements when the attribute is missing.
func (n *NeuralNetwork) NumberOfOutputs() int {
	if n.xml.Outputs.NumberOfOutputs > 0 {
		return n.xml.Outputs.NumberOfOutputs
	}
	return len(n.xml.Outputs.Outputs)
}

// NumberOfLayers returns the number of neural layers (hidden layers plus the output layer).
func (n *NeuralNetwork) NumberOfLayers() int {
	if n.xml.NumberOfLayers > 0 {
		return n.xml.NumberOfLayers
	}
	return len(n.xml.Layers)
}

func (n *NeuralNetwork) layer(i int) *neuralLayerXML {
	if i < 0 || i >= len(n.xml.Layers) {
		return nil
	}
	return &n.xml.Layers[i]
}

// LayerSize returns the number of neurons of layer i, 0 when out of range.
func (n *NeuralNetwork) LayerSize(i int) int {
	l := n.layer(i)
	if l == nil {
		return 0
	}
	if l.NumberOfNeurons > 0 {
		return l.NumberOfNeurons
	}
	return len(l.Neurons)
}

// InputIDs returns the id of every NeuralInput, in declaration order.
func (n *NeuralNetwork) InputIDs() []string {
	ids := make([]string, len(n.xml.Inputs.Inputs))
	for i, in := range n.xml.Inputs.Inputs {
		ids[i] = in.ID
	}
	return ids
}

// NeuralInputName returns the name of the field feeding the NeuralInput with the given id.
func (n *NeuralNetwork) NeuralInputName(id string) string {
	for _, in := range n.xml.Inputs.Inputs {
		if in.ID == id {
			return in.Field.field()
		}
	}
	return ""
}

// InputNames returns the field name of every input, in declaration order.
func (n *NeuralNetwork) InputNames() []string {
	names := make([]string, len(n.xml.Inputs.Inputs))
	for i, in := range n.xml.Inputs.Inputs {
		names[i] = in.Field.field()
	}
	return names
}

// OutputNames returns the field name of every output, in declaration order.
func (n *NeuralNetwork) OutputNames() []string {
	names := make([]string, len(n.xml.Outputs.Outputs))
	for i, out := range n.xml.Outputs.Outputs {
		names[i] = out.Field.field()
	}
	return names
}

// OutputNeurons returns the outputNeuron attribute of every output, in declaration order.
func (n *NeuralNetwork) OutputNeurons() []string {
	ids := make([]string, len(n.xml.Outputs.Outputs))
	for i, out := range n.xml.Outputs.Outputs {
		ids[i] = out.OutputNeuron
	}
	return ids
}

func (f derivedFieldXML) field() string {
	switch {
	case f.NormContinuous != nil:
		return f.NormContinuous.Field
	case f.FieldRef != nil:
		return f.FieldRef.Field
	}
	return ""
}

func (f derivedFieldXML) norms() []LinearNorm {
	if f.NormContinuous == nil {
		return nil
	}
	out := make([]LinearNorm, len(f.NormContinuous.Norms))
	for i, ln := range f.NormContinuous.Norms {
		out[i] = LinearNorm{Orig: float64(ln.Orig), Norm: float64(ln.Norm)}
	}
	return out
}

// NeuronIDsAtLayer returns the neuron ids of layer i, in declaration order.
func (n *NeuralNetwork) NeuronIDsAtLayer(i int) []string {
	l := n.layer(i)
	if l == nil {
		return nil
	}
	ids := make([]string, len(l.Neurons))
	for k, neuron := range l.Neurons {
		ids[k] = neuron.ID
	}
	return ids
}

// BiasAtLayer returns the bias of every neuron of layer i.
func (n *NeuralNetwork) BiasAtLayer(i int) []float64 {
	l := n.layer(i)
	if l == nil {
		return nil
	}
	bias := make([]float64, len(l.Neurons))
	for k, neuron := range l.Neurons {
		bias[k] = float64(neuron.Bias)
	}
	return bias
}

// ActivationFunctionAtLayer returns the activation function of layer i,
// inherited from the network when the layer does not set one.
func (n *NeuralNetwork) ActivationFunctionAtLayer(i int) string {
	l := n.layer(i)
	if l == nil {
		return ""
	}
	if l.ActivationFunction != "" {
		return l.ActivationFunction
	}
	return n.xml.ActivationFunction
}

// NormalizationMethodAtLayer returns the normalizationMethod of layer i,
// inherited from the network when the layer does not set one.
func (n *NeuralNetwork) NormalizationMethodAtLayer(i int) string {
	l := n.layer(i)
	if l == nil || l.NormalizationMethod == "" {
		return n.NormalizationMethod()
	}
	return l.NormalizationMethod
}

// WeightsAtLayer returns the connection weights of layer i as a
// size(i-1) x size(i) matrix; layer 0 is fed by the network inputs. A nil
// matrix is returned for an out of range or empty layer.
func (n *NeuralNetwork) WeightsAtLayer(i int) (*mat.Dense, error) {
	l := n.layer(i)
	if l == nil || len(l.Neurons) == 0 {
		return nil, nil
	}
	var fromIDs []string
	if i == 0 {
		fromIDs = n.InputIDs()
	} else {
		fromIDs = n.NeuronIDsAtLayer(i - 1)
	}
	if len(fromIDs) == 0 {
		return nil, nil
	}
	from := make(map[string]int, len(fromIDs))
	for k, id := range fromIDs {
		from[id] = k
	}

	w := mat.NewDense(len(fromIDs), len(l.Neurons), nil)
	for to, neuron := range l.Neurons {
		for _, con := range neuron.Cons {
			if con.Weight == nil {
				continue
			}
			k, ok := from[con.From]
			if !ok {
				return nil, fmt.Errorf("layer %d neuron %s: connection from unknown id '%s': %w", i, neuron.ID, con.From, ErrInvalid)
			}
			w.Set(k, to, float64(*con.Weight))
		}
	}
	return w, nil
}

// InputNorms returns the LinearNorm pairs of every input, nil for inputs
// without NormContinuous.
func (n *NeuralNetwork) InputNorms() [][]LinearNorm {
	out := make([][]LinearNorm, len(n.xml.Inputs.Inputs))
	for i, in := range n.xml.Inputs.Inputs {
		out[i] = in.Field.norms()
	}
	return out
}

// OutputNorms returns the LinearNorm pairs of every output, nil for outputs
// without NormContinuous.
func (n *NeuralNetwork) OutputNorms() [][]LinearNorm {
	out := make([][]LinearNorm, len(n.xml.Outputs.Outputs))
	for i, o := range n.xml.Outputs.Outputs {
		out[i] = o.Field.norms()
	}
	return out
}

// InputsNormalization returns the first two LinearNorm pairs of every input
// as a sample described by orig0, orig1, norm0, norm1.
func (n *NeuralNetwork) InputsNormalization() *sample.Sample {
	s := normalizationSample(n.NumberOfInputs(), n.InputNorms())
	checkNormalizationScheme("inputs", n.ModelName(), s)
	return s
}

// OutputsNormalization is InputsNormalization for the outputs.
func (n *NeuralNetwork) OutputsNormalization() *sample.Sample {
	s := normalizationSample(n.NumberOfOutputs(), n.OutputNorms())
	checkNormalizationScheme("outputs", n.ModelName(), s)
	return s
}

func normalizationSample(size int, norms [][]LinearNorm) *sample.Sample {
	s := sample.New(size, 4)
	_ = s.SetDescription(NormalizationDescription)
	for i := 0; i < size && i < len(norms); i++ {
		if len(norms[i]) < 2 {
			continue
		}
		s.Set(i, 0, norms[i][0].Orig)
		s.Set(i, 1, norms[i][1].Orig)
		s.Set(i, 2, norms[i][0].Norm)
		s.Set(i, 3, norms[i][1].Norm)
	}
	return s
}

// Known normalization schemes:
//
//	1: orig0 = 0, orig1 = dmin, norm0 = -dmax/dmin, norm1 = 0
//	2: orig0 = dmin, orig1 = dmax, norm0 = -1, norm1 = 1
func normalizationScheme(orig0, norm0, norm1 float64) int {
	switch {
	case orig0 == 0 && norm1 == 0:
		return 1
	case norm0 == -1 && norm1 == 1:
		return 2
	}
	return 0
}

func checkNormalizationScheme(kind, model string, s *sample.Sample) {
	scheme := 0
	for i := 0; i < s.Size(); i++ {
		current := normalizationScheme(s.At(i, 0), s.At(i, 2), s.At(i, 3))
		if current == 0 || (scheme != 0 && scheme != current) {
			log.Warn().Str("model", model).Int("index", i).Msgf("Unknown method for %s normalization, results may be wrong", kind)
			return
		}
		scheme = current
	}
}
