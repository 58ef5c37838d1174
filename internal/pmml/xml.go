package pmml

import (
	"encoding/xml"
	"strconv"
	"strings"
)

// rawElement keeps a top-level element verbatim so that documents survive a
// read/write round trip even for elements this package does not model.
type rawElement struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Inner   []byte     `xml:",innerxml"`
}

func (r *rawElement) name() string { return r.XMLName.Local }

func (r *rawElement) attr(name string) (string, bool) {
	for _, a := range r.Attrs {
		if a.Name.Space == "" && a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

// normalize drops namespace information the encoder would otherwise
// re-declare on every element.
func (r *rawElement) normalize() {
	r.XMLName.Space = ""
	r.Attrs = cleanAttrs(r.Attrs)
}

func (r *rawElement) bytes() ([]byte, error) {
	return xml.Marshal(r)
}

// decode unmarshals the element into a typed view.
func (r *rawElement) decode(v any) error {
	b, err := r.bytes()
	if err != nil {
		return err
	}
	return xml.Unmarshal(b, v)
}

// encodeElement marshals a typed element with the indentation used inside
// the PMML root and returns it as a raw element.
func encodeElement(v any) (*rawElement, error) {
	b, err := xml.MarshalIndent(v, "  ", "  ")
	if err != nil {
		return nil, err
	}
	var raw rawElement
	if err := xml.Unmarshal(b, &raw); err != nil {
		return nil, err
	}
	raw.normalize()
	return &raw, nil
}

func cleanAttrs(attrs []xml.Attr) []xml.Attr {
	out := attrs[:0]
	for _, a := range attrs {
		if a.Name.Space == "xmlns" || (a.Name.Space == "" && a.Name.Local == "xmlns") {
			continue
		}
		out = append(out, a)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Number is a float attribute written with 20 significant digits.
type Number float64

func (n Number) MarshalXMLAttr(name xml.Name) (xml.Attr, error) {
	return xml.Attr{Name: name, Value: strconv.FormatFloat(float64(n), 'g', 20, 64)}, nil
}

func (n *Number) UnmarshalXMLAttr(attr xml.Attr) error {
	s := strings.TrimSpace(attr.Value)
	if s == "" {
		*n = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*n = Number(v)
	return nil
}

type headerXML struct {
	XMLName     xml.Name        `xml:"Header"`
	Copyright   string          `xml:"copyright,attr,omitempty"`
	Description string          `xml:"description,attr,omitempty"`
	Application *applicationXML `xml:"Application"`
}

type applicationXML struct {
	Name    string `xml:"name,attr"`
	Version string `xml:"version,attr,omitempty"`
}

type dataDictionaryXML struct {
	XMLName        xml.Name       `xml:"DataDictionary"`
	NumberOfFields string         `xml:"numberOfFields,attr,omitempty"`
	Fields         []dataFieldXML `xml:"DataField"`
	Other          []rawElement   `xml:",any"`
}

type dataFieldXML struct {
	Name     string     `xml:"name,attr"`
	Optype   string     `xml:"optype,attr,omitempty"`
	DataType string     `xml:"dataType,attr,omitempty"`
	Attrs    []xml.Attr `xml:",any,attr"`
	Inner    []byte     `xml:",innerxml"`
}

func (d *dataDictionaryXML) normalize() {
	for i := range d.Fields {
		d.Fields[i].Attrs = cleanAttrs(d.Fields[i].Attrs)
	}
	for i := range d.Other {
		d.Other[i].normalize()
	}
}

type miningSchemaXML struct {
	Fields []miningFieldXML `xml:"MiningField"`
}

type miningFieldXML struct {
	Name      string `xml:"name,attr"`
	UsageType string `xml:"usageType,attr,omitempty"`
}

type neuralNetworkXML struct {
	ModelName           string           `xml:"modelName,attr"`
	FunctionName        string           `xml:"functionName,attr"`
	ActivationFunction  string           `xml:"activationFunction,attr"`
	NormalizationMethod string           `xml:"normalizationMethod,attr"`
	NumberOfLayers      int              `xml:"numberOfLayers,attr"`
	Inputs              neuralInputsXML  `xml:"NeuralInputs"`
	Layers              []neuralLayerXML `xml:"NeuralLayer"`
	Outputs             neuralOutputsXML `xml:"NeuralOutputs"`
	MiningSchema        *miningSchemaXML `xml:"MiningSchema"`
}

type neuralInputsXML struct {
	NumberOfInputs int              `xml:"numberOfInputs,attr"`
	Inputs         []neuralInputXML `xml:"NeuralInput"`
}

type neuralInputXML struct {
	ID    string          `xml:"id,attr"`
	Field derivedFieldXML `xml:"DerivedField"`
}

type neuralOutputsXML struct {
	NumberOfOutputs int               `xml:"numberOfOutputs,attr"`
	Outputs         []neuralOutputXML `xml:"NeuralOutput"`
}

type neuralOutputXML struct {
	OutputNeuron string          `xml:"outputNeuron,attr"`
	Field        derivedFieldXML `xml:"DerivedField"`
}

type derivedFieldXML struct {
	Name           string             `xml:"name,attr"`
	NormContinuous *normContinuousXML `xml:"NormContinuous"`
	FieldRef       *fieldRefXML       `xml:"FieldRef"`
}

type fieldRefXML struct {
	Field string `xml:"field,attr"`
}

type normContinuousXML struct {
	Field string          `xml:"field,attr"`
	Norms []linearNormXML `xml:"LinearNorm"`
}

type linearNormXML struct {
	Orig Number `xml:"orig,attr"`
	Norm Number `xml:"norm,attr"`
}

type neuralLayerXML struct {
	NumberOfNeurons     int         `xml:"numberOfNeurons,attr"`
	ActivationFunction  string      `xml:"activationFunction,attr"`
	NormalizationMethod string      `xml:"normalizationMethod,attr"`
	Neurons             []neuronXML `xml:"Neuron"`
}

type neuronXML struct {
	ID   string   `xml:"id,attr"`
	Bias Number   `xml:"bias,attr"`
	Cons []conXML `xml:"Con"`
}

type conXML struct {
	From   string  `xml:"from,attr"`
	Weight *Number `xml:"weight,attr"`
}

type regressionModelXML struct {
	XMLName             xml.Name             `xml:"RegressionModel"`
	ModelName           string               `xml:"modelName,attr,omitempty"`
	FunctionName        string               `xml:"functionName,attr,omitempty"`
	AlgorithmName       string               `xml:"algorithmName,attr,omitempty"`
	ModelType           string               `xml:"modelType,attr,omitempty"`
	TargetFieldName     string               `xml:"targetFieldName,attr,omitempty"`
	NormalizationMethod string               `xml:"normalizationMethod,attr,omitempty"`
	MiningSchema        *miningSchemaXML     `xml:"MiningSchema"`
	Tables              []regressionTableXML `xml:"RegressionTable"`
}

type regressionTableXML struct {
	Intercept  Number                `xml:"intercept,attr"`
	Predictors []numericPredictorXML `xml:"NumericPredictor"`
	Other      []rawElement          `xml:",any"`
}

type numericPredictorXML struct {
	Name        string `xml:"name,attr"`
	Exponent    string `xml:"exponent,attr,omitempty"`
	Coefficient Number `xml:"coefficient,attr"`
}
