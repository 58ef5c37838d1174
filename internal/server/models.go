package server

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"otpmml/internal/function"
	"otpmml/internal/nnet"
	"otpmml/internal/pmml"
	"otpmml/internal/registry"
	"otpmml/internal/regression"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
)

// ErrUnknownModel is returned for requests naming a model that is not served.
var ErrUnknownModel = errors.New("unknown model")

// ModelInfo describes a served model.
type ModelInfo struct {
	Name    string   `json:"name"`
	Kind    string   `json:"kind"`
	Source  string   `json:"source"`
	Inputs  []string `json:"inputs"`
	Outputs []string `json:"outputs"`
}

type model struct {
	info ModelInfo
	fn   function.Function
}

// catalog holds the served models by name.
type catalog struct {
	mu     sync.RWMutex
	models map[string]*model
}

func newCatalog() *catalog {
	return &catalog{models: make(map[string]*model)}
}

func (c *catalog) put(m *model) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.models[m.info.Name]; ok {
		log.Warn().Str("model", m.info.Name).Str("source", m.info.Source).Msg("Replacing served model")
	}
	c.models[m.info.Name] = m
}

func (c *catalog) get(name string) (*model, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.models[name]
	if !ok {
		return nil, fmt.Errorf("'%s': %w", name, ErrUnknownModel)
	}
	return m, nil
}

func (c *catalog) list() []ModelInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ModelInfo, 0, len(c.models))
	for _, m := range c.models {
		out = append(out, m.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (c *catalog) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.models)
}

// AddFunction serves f under name.
func (s *Server) AddFunction(name, kind, source string, f function.Function, inputs, outputs []string) {
	if n, ok := f.(*nnet.Network); ok && s.metrics != nil {
		n.SetMetrics(servedAs{MetricsTracker: s.metrics, name: name})
	} else if s.metrics != nil {
		f = &instrumented{Function: f, name: name, metrics: s.metrics}
	}
	s.models.put(&model{
		info: ModelInfo{Name: name, Kind: kind, Source: source, Inputs: inputs, Outputs: outputs},
		fn:   f,
	})
	if s.metrics != nil {
		s.metrics.ModelsLoaded().Set(float64(s.models.size()))
	}
}

// LoadFile serves every neural network and regression model of the PMML
// file at path under its model name.
func (s *Server) LoadFile(path string) ([]string, error) {
	doc, err := pmml.Open(path)
	if err != nil {
		return nil, err
	}
	return s.loadDoc(doc, path, func(model string) string { return model })
}

// LoadRegistry serves the latest version of every registry entry. Models of
// a single model entry are served under the entry name, the others under
// entry/model.
func (s *Server) LoadRegistry(reg *registry.Registry) ([]string, error) {
	entries, err := reg.List()
	if err != nil {
		return nil, err
	}
	var loaded []string
	for _, e := range entries {
		_, data, err := reg.Get(e.Name)
		if err != nil {
			return loaded, err
		}
		doc, err := pmml.Parse(bytes.NewReader(data))
		if err != nil {
			return loaded, fmt.Errorf("registry entry %s: %w", e.Name, err)
		}
		entry := e
		source := fmt.Sprintf("registry:%s@%d", e.Name, e.Version)
		names, err := s.loadDoc(doc, source, func(model string) string {
			if len(entry.Models) == 1 {
				return entry.Name
			}
			return entry.Name + "/" + model
		})
		loaded = append(loaded, names...)
		if err != nil {
			return loaded, err
		}
	}
	return loaded, nil
}

func (s *Server) loadDoc(doc *pmml.Doc, source string, nameOf func(string) string) ([]string, error) {
	var loaded []string
	for _, modelName := range doc.NeuralNetworkModelNames() {
		n, err := nnet.FromDoc(doc, modelName)
		if err != nil {
			return loaded, fmt.Errorf("%s: %w", source, err)
		}
		name := nameOf(modelName)
		s.AddFunction(name, registry.KindNeuralNetwork, source, n, n.InputNames(), n.OutputNames())
		loaded = append(loaded, name)
	}
	for _, modelName := range doc.RegressionModelNames() {
		rm, err := regression.FromDoc(doc, modelName)
		if err != nil {
			return loaded, fmt.Errorf("%s: %w", source, err)
		}
		meta, err := rm.LinearLeastSquares().Metamodel()
		if err != nil {
			return loaded, fmt.Errorf("%s: %w", source, err)
		}
		lls := rm.LinearLeastSquares()
		name := nameOf(modelName)
		s.AddFunction(name, registry.KindRegressionModel, source, meta, lls.DataIn().Description(), lls.DataOut().Description())
		loaded = append(loaded, name)
	}
	log.Info().Str("source", source).Strs("models", loaded).Msg("Loaded PMML models")
	return loaded, nil
}

// servedAs labels the evaluations of a network with its served name.
type servedAs struct {
	MetricsTracker
	name string
}

func (s servedAs) EvaluationInc(_, kind string) { s.MetricsTracker.EvaluationInc(s.name, kind) }

func (s servedAs) EvaluationErrorInc(_, kind string) {
	s.MetricsTracker.EvaluationErrorInc(s.name, kind)
}

func (s servedAs) EvaluationDuration(_, kind string, d time.Duration) {
	s.MetricsTracker.EvaluationDuration(s.name, kind, d)
}

// instrumented reports evaluations of functions that do not track themselves.
type instrumented struct {
	function.Function
	name    string
	metrics MetricsTracker
}

func (f *instrumented) track(kind string, start time.Time, err error) {
	f.metrics.EvaluationInc(f.name, kind)
	f.metrics.EvaluationDuration(f.name, kind, time.Since(start))
	if err != nil {
		f.metrics.EvaluationErrorInc(f.name, kind)
	}
}

func (f *instrumented) Evaluate(x []float64) ([]float64, error) {
	start := time.Now()
	y, err := f.Function.Evaluate(x)
	f.track(nnet.KindValue, start, err)
	return y, err
}

func (f *instrumented) Gradient(x []float64) (*mat.Dense, error) {
	start := time.Now()
	g, err := f.Function.Gradient(x)
	f.track(nnet.KindGradient, start, err)
	return g, err
}

func (f *instrumented) Hessian(x []float64) ([]*mat.SymDense, error) {
	start := time.Now()
	h, err := f.Function.Hessian(x)
	f.track(nnet.KindHessian, start, err)
	return h, err
}
