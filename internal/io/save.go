// Package io writes gradient maps and connectivity matrices to disk.
package io

import (
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/childmindresearch/ba-timeseries-gradients/internal/errs"
)

// Formats lists the supported output formats
var Formats = []string{"h5", "json", "npy", "csv"}

// Save writes gradients and lambdas to filename, choosing the format from its extension
func Save(gradients *mat.Dense, lambdas []float64, filename string) error {
	if gradients == nil || len(lambdas) == 0 {
		return errs.Internal("no gradients to save")
	}
	if _, cols := gradients.Dims(); cols != len(lambdas) {
		return errs.Internal("%d gradients but %d lambdas", cols, len(lambdas))
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".h5":
		return saveH5(gradients, lambdas, filename)
	case ".json":
		return saveJSON(gradients, lambdas, filename)
	case ".npy":
		return saveNpy(gradients, lambdas, filename)
	case ".csv":
		return saveCSV(gradients, lambdas, filename)
	}
	return errs.Internal("Unsupported file type: %s", filename)
}

// sidecar returns <base>_<name><ext> for filename <base><ext>
func sidecar(filename string, name string) string {
	ext := filepath.Ext(filename)
	return strings.TrimSuffix(filename, ext) + "_" + name + ext
}
