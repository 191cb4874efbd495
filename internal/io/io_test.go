package io

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/scigolib/hdf5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/childmindresearch/ba-timeseries-gradients/internal/errs"
)

func sample() (*mat.Dense, []float64) {
	g := mat.NewDense(3, 2, []float64{
		0.1, -0.2,
		0.3, 0.4,
		-0.5, 0.6,
	})
	return g, []float64{2.5, 1.25}
}

// readCSV parses a file of comma separated numbers
func readCSV(t *testing.T, path string) *mat.Dense {
	t.Helper()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.NotEmpty(t, records)

	m := mat.NewDense(len(records), len(records[0]), nil)
	for i, record := range records {
		for j, field := range record {
			v, err := strconv.ParseFloat(field, 64)
			require.NoError(t, err)
			m.Set(i, j, v)
		}
	}
	return m
}

func TestSaveJSON(t *testing.T) {
	g, l := sample()
	path := filepath.Join(t.TempDir(), "gradients.json")

	require.NoError(t, Save(g, l, path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc gradientsJSON
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, [][]float64{{0.1, -0.2}, {0.3, 0.4}, {-0.5, 0.6}}, doc.Gradients)
	assert.Equal(t, l, doc.Lambdas)
}

func TestSaveNpy(t *testing.T) {
	g, l := sample()
	dir := t.TempDir()
	path := filepath.Join(dir, "gradients.npy")

	require.NoError(t, Save(g, l, path))

	got, err := NpyToDense(path)
	require.NoError(t, err)
	assert.True(t, mat.Equal(g, got))

	lambdas, err := NpyToSlice(filepath.Join(dir, "gradients_lambdas.npy"))
	require.NoError(t, err)
	assert.Equal(t, l, lambdas)
}

func TestSaveCSV(t *testing.T) {
	g, l := sample()
	dir := t.TempDir()
	path := filepath.Join(dir, "gradients.csv")

	require.NoError(t, Save(g, l, path))

	assert.True(t, mat.Equal(g, readCSV(t, path)))

	lambdas := readCSV(t, filepath.Join(dir, "gradients_lambdas.csv"))
	assert.Equal(t, l, mat.Row(nil, 0, lambdas))
}

func TestSaveH5(t *testing.T) {
	g, l := sample()
	path := filepath.Join(t.TempDir(), "gradients.h5")

	require.NoError(t, Save(g, l, path))

	f, err := hdf5.Open(path)
	require.NoError(t, err)
	defer f.Close()

	datasets := map[string]*hdf5.Dataset{}
	f.Walk(func(name string, obj hdf5.Object) {
		if ds, ok := obj.(*hdf5.Dataset); ok {
			datasets[name] = ds
		}
	})
	require.Contains(t, datasets, "/gradients")
	require.Contains(t, datasets, "/lambdas")

	gradients, err := datasets["/gradients"].Read()
	require.NoError(t, err)
	assert.Equal(t, g.RawMatrix().Data, gradients)

	lambdas, err := datasets["/lambdas"].Read()
	require.NoError(t, err)
	assert.Equal(t, l, lambdas)
}

func TestSaveConnectivity(t *testing.T) {
	m := mat.NewDense(2, 2, []float64{1, -0.5, -0.5, 1})
	path := filepath.Join(t.TempDir(), "connectivity.npy")

	require.NoError(t, SaveConnectivity(m, path))

	got, err := NpyToDense(path)
	require.NoError(t, err)
	assert.True(t, mat.Equal(m, got))
}

func TestSaveErrors(t *testing.T) {
	g, l := sample()
	dir := t.TempDir()

	bad := filepath.Join(dir, "gradients.mat")
	err := Save(g, l, bad)
	assert.True(t, errs.IsInternal(err))
	assert.EqualError(t, err, "Unsupported file type: "+bad)

	err = Save(g, l[:1], filepath.Join(dir, "gradients.json"))
	assert.True(t, errs.IsInternal(err))

	err = Save(nil, nil, filepath.Join(dir, "gradients.json"))
	assert.True(t, errs.IsInternal(err))
}

func TestSidecar(t *testing.T) {
	assert.Equal(t, "/out/gradients_lambdas.npy", sidecar("/out/gradients.npy", "lambdas"))
}
