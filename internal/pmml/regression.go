package pmml

import (
	"fmt"
	"strconv"
	"sync"

	"otpmml/internal/sample"
)

// RegressionModel is a read-only view of a <RegressionModel> element
// restricted to plain linear regressions.
type RegressionModel struct {
	xml regressionModelXML

	once sync.Once
	err  error
}

// Validate checks that the element describes a single-table linear
// regression with numeric predictors of exponent 1. The check runs once.
func (m *RegressionModel) Validate() error {
	m.once.Do(func() { m.err = m.validate() })
	return m.err
}

func (m *RegressionModel) validate() error {
	x := &m.xml
	if x.ModelType != "" && x.ModelType != "linearRegression" {
		return fmt.Errorf("modelType '%s' not supported: %w", x.ModelType, ErrUnsupported)
	}
	if x.FunctionName != "" && x.FunctionName != "regression" {
		return fmt.Errorf("functionName '%s' not supported: %w", x.FunctionName, ErrUnsupported)
	}
	if x.NormalizationMethod != "" && x.NormalizationMethod != "none" {
		return fmt.Errorf("normalizationMethod '%s' not supported: %w", x.NormalizationMethod, ErrUnsupported)
	}
	if len(x.Tables) != 1 {
		return fmt.Errorf("%d RegressionTable elements, exactly one supported: %w", len(x.Tables), ErrUnsupported)
	}
	table := x.Tables[0]
	if len(table.Other) > 0 {
		return fmt.Errorf("RegressionTable child <%s> not supported: %w", table.Other[0].name(), ErrUnsupported)
	}
	for _, p := range table.Predictors {
		if p.Exponent == "" {
			continue
		}
		e, err := strconv.ParseFloat(p.Exponent, 64)
		if err != nil || e != 1 {
			return fmt.Errorf("NumericPredictor '%s' exponent '%s' not supported: %w", p.Name, p.Exponent, ErrUnsupported)
		}
	}
	return nil
}

// ModelName returns the modelName attribute.
func (m *RegressionModel) ModelName() string { return m.xml.ModelName }

// TargetVariableName returns the targetFieldName attribute, falling back on
// the predicted MiningField.
func (m *RegressionModel) TargetVariableName() (string, error) {
	if err := m.Validate(); err != nil {
		return "", err
	}
	if m.xml.TargetFieldName != "" {
		return m.xml.TargetFieldName, nil
	}
	if m.xml.MiningSchema != nil {
		for _, f := range m.xml.MiningSchema.Fields {
			if f.UsageType == "predicted" {
				return f.Name, nil
			}
		}
	}
	return "", nil
}

// Intercept returns the intercept of the regression table.
func (m *RegressionModel) Intercept() (float64, error) {
	if err := m.Validate(); err != nil {
		return 0, err
	}
	return float64(m.xml.Tables[0].Intercept), nil
}

// Coefficients returns a one-row sample of predictor coefficients described
// by the predictor names.
func (m *RegressionModel) Coefficients() (*sample.Sample, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	preds := m.xml.Tables[0].Predictors
	row := make([]float64, len(preds))
	names := make([]string, len(preds))
	for i, p := range preds {
		row[i] = float64(p.Coefficient)
		names[i] = p.Name
	}
	s := sample.New(0, len(preds))
	if err := s.Add(row); err != nil {
		return nil, err
	}
	if err := s.SetDescription(names); err != nil {
		return nil, err
	}
	return s, nil
}
