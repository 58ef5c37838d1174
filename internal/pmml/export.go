package pmml

import (
	"fmt"
	"strconv"
)

// Header values written by AddHeader.
const (
	HeaderCopyright    = "copyright text"
	HeaderDescription  = "description text"
	ApplicationName    = "otpmml"
	ApplicationVersion = "1.0"
)

// LinearRegression is a fitted single-output linear model to export.
type LinearRegression struct {
	InputNames   []string
	TargetName   string
	Intercept    float64
	Coefficients []float64
}

// AddHeader inserts a Header element at the top of the document unless one
// is already present.
func (d *Doc) AddHeader() error {
	if len(d.elementsNamed(elemHeader)) > 0 {
		return nil
	}
	el, err := encodeElement(headerXML{
		Copyright:   HeaderCopyright,
		Description: HeaderDescription,
		Application: &applicationXML{Name: ApplicationName, Version: ApplicationVersion},
	})
	if err != nil {
		return fmt.Errorf("encode Header: %w", err)
	}
	d.elements = append([]*rawElement{el}, d.elements...)
	return nil
}

// AddRegressionModel appends a RegressionModel named modelName and declares
// its fields in the DataDictionary.
func (d *Doc) AddRegressionModel(modelName string, lr LinearRegression) error {
	if len(lr.InputNames) != len(lr.Coefficients) {
		return fmt.Errorf("%d input names for %d coefficients: %w", len(lr.InputNames), len(lr.Coefficients), ErrInvalid)
	}
	inputs := make([]string, len(lr.InputNames))
	for i, name := range lr.InputNames {
		if name == "" {
			name = "x" + strconv.Itoa(i)
		}
		inputs[i] = name
	}
	target := lr.TargetName
	if target == "" {
		target = "output"
	}

	if err := d.AddHeader(); err != nil {
		return err
	}
	if err := d.declareFields(append(inputs, target)); err != nil {
		return err
	}

	schema := &miningSchemaXML{}
	table := regressionTableXML{Intercept: Number(lr.Intercept)}
	for i, name := range inputs {
		schema.Fields = append(schema.Fields, miningFieldXML{Name: name})
		table.Predictors = append(table.Predictors, numericPredictorXML{
			Name:        name,
			Exponent:    "1",
			Coefficient: Number(lr.Coefficients[i]),
		})
	}
	schema.Fields = append(schema.Fields, miningFieldXML{Name: target, UsageType: "predicted"})

	el, err := encodeElement(regressionModelXML{
		ModelName:       modelName,
		FunctionName:    "regression",
		AlgorithmName:   "linearRegression",
		TargetFieldName: target,
		MiningSchema:    schema,
		Tables:          []regressionTableXML{table},
	})
	if err != nil {
		return fmt.Errorf("encode RegressionModel: %w", err)
	}
	d.elements = append(d.elements, el)
	return nil
}

// declareFields appends continuous DataFields to the DataDictionary,
// creating it after the Header (and MiningBuildTask, if any) when missing.
func (d *Doc) declareFields(names []string) error {
	index := -1
	for i, el := range d.elements {
		if el.name() == elemDataDictionary {
			index = i
			break
		}
	}

	dict := dataDictionaryXML{}
	if index >= 0 {
		if err := d.elements[index].decode(&dict); err != nil {
			return fmt.Errorf("decode DataDictionary: %w", err)
		}
		dict.normalize()
		if dict.NumberOfFields != "" {
			n, err := strconv.Atoi(dict.NumberOfFields)
			if err != nil {
				return fmt.Errorf("DataDictionary numberOfFields '%s': %w", dict.NumberOfFields, ErrInvalid)
			}
			dict.NumberOfFields = strconv.Itoa(n + len(names))
		}
	} else {
		dict.NumberOfFields = strconv.Itoa(len(names))
	}
	for _, name := range names {
		dict.Fields = append(dict.Fields, dataFieldXML{Name: name, Optype: "continuous"})
	}

	el, err := encodeElement(dict)
	if err != nil {
		return fmt.Errorf("encode DataDictionary: %w", err)
	}
	if index >= 0 {
		d.elements[index] = el
		return nil
	}

	anchor := 0
	for i, e := range d.elements {
		if e.name() == elemHeader {
			anchor = i + 1
			if anchor < len(d.elements) && d.elements[anchor].name() == elemMiningBuildTask {
				anchor++
			}
			break
		}
	}
	d.elements = append(d.elements[:anchor], append([]*rawElement{el}, d.elements[anchor:]...)...)
	return nil
}
