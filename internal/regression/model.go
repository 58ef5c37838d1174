package regression

import (
	"encoding/json"
	"fmt"
	"strings"

	"otpmml/internal/pmml"
	"otpmml/internal/sample"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
)

// DefaultModelName names exported models whose fit has no name.
const DefaultModelName = "Unnamed"

// RegressionModel is a linear regression read from, or written to, PMML.
type RegressionModel struct {
	lls *LinearLeastSquares
}

// Load reads the regression named modelName from the PMML file at path; an
// empty name selects the first regression of the document.
func Load(path, modelName string) (*RegressionModel, error) {
	doc, err := pmml.Open(path)
	if err != nil {
		return nil, err
	}
	return FromDoc(doc, modelName)
}

// FromDoc builds the regression named modelName from a parsed document.
func FromDoc(doc *pmml.Doc, modelName string) (*RegressionModel, error) {
	rm, err := doc.RegressionModel(modelName)
	if err != nil {
		return nil, err
	}
	if err := rm.Validate(); err != nil {
		return nil, fmt.Errorf("regression model '%s': %w", rm.ModelName(), err)
	}
	coefs, err := rm.Coefficients()
	if err != nil {
		return nil, err
	}
	intercept, err := rm.Intercept()
	if err != nil {
		return nil, err
	}
	target, err := rm.TargetVariableName()
	if err != nil {
		return nil, err
	}
	if coefs.Dimension() == 0 {
		return nil, fmt.Errorf("regression model '%s' has no NumericPredictor: %w", rm.ModelName(), pmml.ErrUnsupported)
	}

	linear := mat.NewDense(coefs.Dimension(), 1, coefs.Row(0))
	lls, err := fromCoefficients(rm.ModelName(), coefs.Description(), []string{target}, []float64{intercept}, linear)
	if err != nil {
		return nil, fmt.Errorf("regression model '%s': %w", rm.ModelName(), err)
	}
	log.Debug().Str("model", rm.ModelName()).Int("inputs", coefs.Dimension()).Msg("regression model loaded")
	return &RegressionModel{lls: lls}, nil
}

// fromCoefficients builds the (d+1)-point problem whose least squares
// solution is exactly (constant, linear): the unit vectors map to
// constant + linear row, the origin maps to constant.
func fromCoefficients(name string, inputNames, outputNames []string, constant []float64, linear *mat.Dense) (*LinearLeastSquares, error) {
	d, p := linear.Dims()
	in := sample.New(d+1, d)
	out := sample.New(d+1, p)
	for i := 0; i < d; i++ {
		in.Set(i, i, 1)
		for j := 0; j < p; j++ {
			out.Set(i, j, constant[j]+linear.At(i, j))
		}
	}
	for j := 0; j < p; j++ {
		out.Set(d, j, constant[j])
	}
	if err := in.SetDescription(inputNames); err != nil {
		return nil, err
	}
	if err := out.SetDescription(outputNames); err != nil {
		return nil, err
	}

	lls, err := NewLinearLeastSquares(in, out)
	if err != nil {
		return nil, err
	}
	lls.SetName(name)
	if err := lls.Run(); err != nil {
		return nil, err
	}
	return lls, nil
}

// FromLeastSquares wraps a fit as a regression model.
func FromLeastSquares(lls *LinearLeastSquares) *RegressionModel {
	return &RegressionModel{lls: lls}
}

// Name returns the model name.
func (m *RegressionModel) Name() string { return m.lls.Name() }

// LinearLeastSquares returns the underlying fit.
func (m *RegressionModel) LinearLeastSquares() *LinearLeastSquares { return m.lls }

// ExportToPMMLFile writes the model alone into a new PMML document at path.
func (m *RegressionModel) ExportToPMMLFile(path string) error {
	doc, err := m.PMML()
	if err != nil {
		return err
	}
	return doc.Write(path)
}

// PMML returns a new document holding the model.
func (m *RegressionModel) PMML() (*pmml.Doc, error) {
	constant, err := m.lls.Constant()
	if err != nil {
		return nil, err
	}
	linear, err := m.lls.Linear()
	if err != nil {
		return nil, err
	}
	if len(constant) != 1 {
		return nil, fmt.Errorf("cannot export a regression with %d outputs: %w", len(constant), pmml.ErrUnsupported)
	}

	d, _ := linear.Dims()
	names := make([]string, d)
	for i := range names {
		names[i] = m.lls.DataIn().ColumnName(i, "")
	}
	name := m.lls.Name()
	if name == "" {
		name = DefaultModelName
	}

	doc := pmml.New()
	err = doc.AddRegressionModel(name, pmml.LinearRegression{
		InputNames:   names,
		TargetName:   m.lls.DataOut().ColumnName(0, ""),
		Intercept:    constant[0],
		Coefficients: mat.Col(nil, 0, linear),
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// String describes the model and its coefficients.
func (m *RegressionModel) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "RegressionModel name=%s", m.lls.Name())
	constant, err := m.lls.Constant()
	if err != nil {
		sb.WriteString(" (not solved)")
		return sb.String()
	}
	linear, _ := m.lls.Linear()
	fmt.Fprintf(&sb, " constant=%v linear=%v", constant, mat.Formatted(linear, mat.Squeeze()))
	return sb.String()
}

type modelJSON struct {
	Name        string      `json:"name"`
	InputNames  []string    `json:"input_names"`
	OutputNames []string    `json:"output_names"`
	Constant    []float64   `json:"constant"`
	Linear      [][]float64 `json:"linear"`
}

// MarshalJSON stores the name, the variable names and the coefficients.
func (m *RegressionModel) MarshalJSON() ([]byte, error) {
	constant, err := m.lls.Constant()
	if err != nil {
		return nil, err
	}
	linear, err := m.lls.Linear()
	if err != nil {
		return nil, err
	}
	r, _ := linear.Dims()
	rows := make([][]float64, r)
	for i := range rows {
		rows[i] = mat.Row(nil, i, linear)
	}
	return json.Marshal(modelJSON{
		Name:        m.lls.Name(),
		InputNames:  m.lls.DataIn().Description(),
		OutputNames: m.lls.DataOut().Description(),
		Constant:    constant,
		Linear:      rows,
	})
}

// UnmarshalJSON restores a model written by MarshalJSON.
func (m *RegressionModel) UnmarshalJSON(data []byte) error {
	var v modelJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if len(v.Linear) == 0 || len(v.Constant) == 0 {
		return fmt.Errorf("regression model '%s' without coefficients: %w", v.Name, sample.ErrDimension)
	}
	linear := mat.NewDense(len(v.Linear), len(v.Constant), nil)
	for i, row := range v.Linear {
		if len(row) != len(v.Constant) {
			return fmt.Errorf("coefficient row %d of length %d for %d outputs: %w", i, len(row), len(v.Constant), sample.ErrDimension)
		}
		linear.SetRow(i, row)
	}
	lls, err := fromCoefficients(v.Name, v.InputNames, v.OutputNames, v.Constant, linear)
	if err != nil {
		return err
	}
	m.lls = lls
	return nil
}
