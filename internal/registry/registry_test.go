package registry

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"otpmml/internal/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return data
}

type mockCounter struct{ n int }

func (c *mockCounter) Inc() { c.n++ }

type MockMetricsTracker struct {
	ops map[string]*mockCounter
}

func (m *MockMetricsTracker) RegistryOperation(op string) metrics.MetricsCounter {
	if m.ops == nil {
		m.ops = make(map[string]*mockCounter)
	}
	if m.ops[op] == nil {
		m.ops[op] = &mockCounter{}
	}
	return m.ops[op]
}

func TestNew(t *testing.T) {
	tempDir := t.TempDir()

	r, err := New(tempDir)
	require.NoError(t, err)
	defer r.Close()

	_, err = os.Stat(filepath.Join(tempDir, "otpmml.db"))
	assert.NoError(t, err, "database file was not created")
}

func TestNew_InvalidPath(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing", "dir"))
	assert.Error(t, err)
}

func TestRegistry_CloseTwice(t *testing.T) {
	r, err := New(t.TempDir())
	require.NoError(t, err)
	assert.NoError(t, r.Close())
	assert.NoError(t, r.Close())
}

func TestRegistry_AddAndGet(t *testing.T) {
	r := newTestRegistry(t)
	doc := readFixture(t, "network.pmml")

	mv, err := r.Add("deflection", doc)
	require.NoError(t, err)
	assert.Equal(t, 1, mv.Version)
	assert.Equal(t, []string{KindNeuralNetwork}, mv.Kinds)
	assert.Equal(t, []string{"Deflection", "Logistic"}, mv.Models)
	assert.Equal(t, len(doc), mv.Size)
	assert.Len(t, mv.SHA256, 64)

	got, data, err := r.Get("deflection")
	require.NoError(t, err)
	assert.Equal(t, mv, got)
	assert.Equal(t, doc, data)
}

func TestRegistry_AddRegression(t *testing.T) {
	r := newTestRegistry(t)

	mv, err := r.Add("linreg", readFixture(t, "linear_regression.pmml"))
	require.NoError(t, err)
	assert.Equal(t, []string{KindRegressionModel}, mv.Kinds)
	assert.Equal(t, []string{"LinReg"}, mv.Models)
}

func TestRegistry_AddRejectsBadDocuments(t *testing.T) {
	r := newTestRegistry(t)

	tests := []struct {
		name    string
		entry   string
		doc     string
		wantErr error
	}{
		{"empty name", "", `<PMML version="3.0"><NeuralNetwork modelName="a"/></PMML>`, ErrInvalidName},
		{"slash in name", "a/b", `<PMML version="3.0"><NeuralNetwork modelName="a"/></PMML>`, ErrInvalidName},
		{"no model", "empty", `<PMML version="3.0"><Header/></PMML>`, ErrNoModel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Add(tt.entry, []byte(tt.doc))
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}

	_, err := r.Add("garbage", []byte("not xml at all"))
	assert.Error(t, err)
}

func TestRegistry_DeduplicatesLatest(t *testing.T) {
	r := newTestRegistry(t)
	doc := readFixture(t, "network.pmml")

	first, err := r.Add("m", doc)
	require.NoError(t, err)
	second, err := r.Add("m", doc)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	versions, err := r.Versions("m")
	require.NoError(t, err)
	assert.Len(t, versions, 1)
}

func TestRegistry_VersionsAndRollback(t *testing.T) {
	r := newTestRegistry(t)
	tick := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { tick = tick.Add(time.Minute); return tick }
	tracker := &MockMetricsTracker{}
	r.SetMetrics(tracker)

	net := readFixture(t, "network.pmml")
	reg := readFixture(t, "linear_regression.pmml")

	_, err := r.Add("m", net)
	require.NoError(t, err)
	v2, err := r.Add("m", reg)
	require.NoError(t, err)
	assert.Equal(t, 2, v2.Version)
	assert.True(t, v2.AddedAt.After(tick.Add(-2*time.Minute)))

	versions, err := r.Versions("m")
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, 1, versions[0].Version)
	assert.Equal(t, 2, versions[1].Version)

	mv, data, err := r.GetVersion("m", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, mv.Version)
	assert.Equal(t, net, data)

	current, err := r.Rollback("m")
	require.NoError(t, err)
	assert.Equal(t, 1, current.Version)

	_, data, err = r.Get("m")
	require.NoError(t, err)
	assert.Equal(t, net, data)

	_, err = r.Rollback("m")
	assert.True(t, errors.Is(err, ErrLastVersion))

	// the rolled back version number is reused
	v, err := r.Add("m", reg)
	require.NoError(t, err)
	assert.Equal(t, 2, v.Version)

	// identical content is neither stored nor counted
	same, err := r.Add("m", reg)
	require.NoError(t, err)
	assert.Equal(t, v.Version, same.Version)
	assert.True(t, v.AddedAt.Equal(same.AddedAt))
	versions, err = r.Versions("m")
	require.NoError(t, err)
	assert.Len(t, versions, 2)

	assert.Equal(t, 3, tracker.ops["add"].n)
	assert.Equal(t, 1, tracker.ops["rollback"].n)
}

func TestRegistry_ListAndDelete(t *testing.T) {
	r := newTestRegistry(t)
	net := readFixture(t, "network.pmml")
	reg := readFixture(t, "linear_regression.pmml")

	_, err := r.Add("b", net)
	require.NoError(t, err)
	_, err = r.Add("a", net)
	require.NoError(t, err)
	_, err = r.Add("a", reg)
	require.NoError(t, err)

	list, err := r.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].Name)
	assert.Equal(t, 2, list[0].Version)
	assert.Equal(t, "b", list[1].Name)

	require.NoError(t, r.Delete("a"))
	_, _, err = r.Get("a")
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = r.Versions("a")
	assert.True(t, errors.Is(err, ErrNotFound))

	err = r.Delete("a")
	assert.True(t, errors.Is(err, ErrNotFound))

	list, err = r.List()
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestRegistry_MissingEntries(t *testing.T) {
	r := newTestRegistry(t)

	_, _, err := r.Get("nope")
	assert.True(t, errors.Is(err, ErrNotFound))
	_, _, err = r.GetVersion("nope", 3)
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = r.Rollback("nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRegistry_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	doc := readFixture(t, "network.pmml")

	r, err := New(dir)
	require.NoError(t, err)
	_, err = r.Add("m", doc)
	require.NoError(t, err)
	require.NoError(t, r.Close())

	r, err = New(dir)
	require.NoError(t, err)
	defer r.Close()
	_, data, err := r.Get("m")
	require.NoError(t, err)
	assert.Equal(t, doc, data)
}
