// Package pmml reads, queries and writes PMML (Predictive Model Markup
// Language) documents.
//
// A Doc keeps every top-level element of the source document verbatim and
// decodes typed views (NeuralNetwork, RegressionModel) on demand, so that a
// document written back is the document that was read plus whatever was
// added to it.
package pmml

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
)

// Namespace is the namespace of documents created by this package.
const Namespace = "http://www.dmg.org/PMML-3_0"

const (
	elemNeuralNetwork   = "NeuralNetwork"
	elemRegressionModel = "RegressionModel"
	elemHeader          = "Header"
	elemDataDictionary  = "DataDictionary"
	elemMiningBuildTask = "MiningBuildTask"
)

var (
	// ErrFileNotFound is returned when a PMML file cannot be opened.
	ErrFileNotFound = errors.New("pmml file not found")
	// ErrModelNotFound is returned when a named model is absent from the document.
	ErrModelNotFound = errors.New("model not found")
	// ErrUnsupported is returned for PMML constructs outside the supported subset.
	ErrUnsupported = errors.New("unsupported pmml construct")
	// ErrInvalid is returned for malformed documents.
	ErrInvalid = errors.New("invalid pmml document")
)

// Doc is a PMML document.
type Doc struct {
	namespace string
	attrs     []xml.Attr
	elements  []*rawElement
}

// New returns an empty PMML 3.0 document.
func New() *Doc {
	d := &Doc{}
	d.Reset()
	return d
}

// Open reads the PMML file at path.
func Open(path string) (*Doc, error) {
	d := New()
	if err := d.Read(path); err != nil {
		return nil, err
	}
	return d, nil
}

// Parse reads a PMML document from r.
func Parse(r io.Reader) (*Doc, error) {
	d := New()
	if err := d.decode(r); err != nil {
		return nil, err
	}
	return d, nil
}

// Reset drops the document contents, leaving an empty PMML 3.0 root.
func (d *Doc) Reset() {
	d.namespace = Namespace
	d.attrs = []xml.Attr{{Name: xml.Name{Local: "version"}, Value: "3.0"}}
	d.elements = nil
}

// Empty reports whether the root has no child element.
func (d *Doc) Empty() bool { return len(d.elements) == 0 }

// Read replaces the document contents with the file at path.
func (d *Doc) Read(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("could not open %s for reading: %w: %w", path, ErrFileNotFound, err)
	}
	defer f.Close()

	if !d.Empty() {
		log.Warn().Str("file", path).Msg("document is not empty, its contents are replaced")
	}
	if err := d.decode(f); err != nil {
		return fmt.Errorf("unable to parse XML file %s: %w", path, err)
	}
	return nil
}

func (d *Doc) decode(r io.Reader) error {
	dec := xml.NewDecoder(r)
	var root *xml.StartElement
	for root == nil {
		tok, err := dec.Token()
		if err == io.EOF {
			return fmt.Errorf("no root element: %w", ErrInvalid)
		}
		if err != nil {
			return err
		}
		if se, ok := tok.(xml.StartElement); ok {
			root = &se
		}
	}
	if root.Name.Local != "PMML" {
		return fmt.Errorf("root element is <%s>, expected <PMML>: %w", root.Name.Local, ErrInvalid)
	}

	var attrs []xml.Attr
	for _, a := range root.Attr {
		switch {
		case a.Name.Space == "" && a.Name.Local == "xmlns":
		case a.Name.Space == "xmlns":
			// prefixed declarations may be referenced by preserved elements
			attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "xmlns:" + a.Name.Local}, Value: a.Value})
		default:
			attrs = append(attrs, a)
		}
	}

	var elements []*rawElement
	for {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			var raw rawElement
			if err := dec.DecodeElement(&raw, &t); err != nil {
				return err
			}
			raw.normalize()
			elements = append(elements, &raw)
		case xml.EndElement:
			d.namespace = root.Name.Space
			d.attrs = attrs
			d.elements = elements
			return nil
		}
	}
}

// Write dumps the document into the file at path.
func (d *Doc) Write(path string) error {
	var buf bytes.Buffer
	if _, err := d.WriteTo(&buf); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// WriteTo serializes the document with an XML declaration.
func (d *Doc) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)

	start := xml.StartElement{Name: xml.Name{Space: d.namespace, Local: "PMML"}, Attr: d.attrs}
	enc := xml.NewEncoder(&buf)
	if err := enc.EncodeToken(start); err != nil {
		return 0, err
	}
	if err := enc.Flush(); err != nil {
		return 0, err
	}
	for _, el := range d.elements {
		b, err := el.bytes()
		if err != nil {
			return 0, fmt.Errorf("encode <%s>: %w", el.name(), err)
		}
		buf.WriteString("\n  ")
		buf.Write(b)
	}
	buf.WriteString("\n")
	if err := enc.EncodeToken(start.End()); err != nil {
		return 0, err
	}
	if err := enc.Flush(); err != nil {
		return 0, err
	}
	buf.WriteString("\n")

	n, err := w.Write(buf.Bytes())
	return int64(n), err
}

// String returns the serialized document.
func (d *Doc) String() string {
	var sb strings.Builder
	if _, err := d.WriteTo(&sb); err != nil {
		return ""
	}
	return sb.String()
}

func (d *Doc) elementsNamed(name string) []*rawElement {
	var out []*rawElement
	for _, el := range d.elements {
		if el.name() == name {
			out = append(out, el)
		}
	}
	return out
}

func (d *Doc) modelNames(category string) []string {
	elements := d.elementsNamed(category)
	names := make([]string, 0, len(elements))
	for _, el := range elements {
		name, _ := el.attr("modelName")
		names = append(names, name)
	}
	return names
}

// findModel returns the element of the given category with the given
// model name, or the first one when name is empty.
func (d *Doc) findModel(category, name string) (*rawElement, error) {
	elements := d.elementsNamed(category)
	for _, el := range elements {
		if name == "" {
			return el, nil
		}
		if n, _ := el.attr("modelName"); n == name {
			return el, nil
		}
	}
	return nil, fmt.Errorf("unable to find %s named '%s', models found are: [%s]: %w",
		category, name, strings.Join(d.modelNames(category), ", "), ErrModelNotFound)
}

// NumberOfNeuralNetworks returns the number of NeuralNetwork elements.
func (d *Doc) NumberOfNeuralNetworks() int { return len(d.elementsNamed(elemNeuralNetwork)) }

// NeuralNetworkModelNames returns the modelName of every NeuralNetwork element.
func (d *Doc) NeuralNetworkModelNames() []string { return d.modelNames(elemNeuralNetwork) }

// NumberOfRegressionModels returns the number of RegressionModel elements.
func (d *Doc) NumberOfRegressionModels() int { return len(d.elementsNamed(elemRegressionModel)) }

// RegressionModelNames returns the modelName of every RegressionModel element.
func (d *Doc) RegressionModelNames() []string { return d.modelNames(elemRegressionModel) }

// NeuralNetwork returns the network named modelName, or the first one when
// modelName is empty.
func (d *Doc) NeuralNetwork(modelName string) (*NeuralNetwork, error) {
	el, err := d.findModel(elemNeuralNetwork, modelName)
	if err != nil {
		return nil, err
	}
	var nn neuralNetworkXML
	if err := el.decode(&nn); err != nil {
		return nil, fmt.Errorf("decode NeuralNetwork '%s': %w", modelName, err)
	}
	return &NeuralNetwork{xml: nn}, nil
}

// RegressionModel returns the regression named modelName, or the first one
// when modelName is empty.
func (d *Doc) RegressionModel(modelName string) (*RegressionModel, error) {
	el, err := d.findModel(elemRegressionModel, modelName)
	if err != nil {
		return nil, err
	}
	var rm regressionModelXML
	if err := el.decode(&rm); err != nil {
		return nil, fmt.Errorf("decode RegressionModel '%s': %w", modelName, err)
	}
	for i := range rm.Tables {
		for j := range rm.Tables[i].Other {
			rm.Tables[i].Other[j].normalize()
		}
	}
	return &RegressionModel{xml: rm}, nil
}
