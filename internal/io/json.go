package io

import (
	"encoding/json"
	"fmt"
	"os"

	"gonum.org/v1/gonum/mat"
)

type gradientsJSON struct {
	Gradients [][]float64 `json:"gradients"`
	Lambdas   []float64   `json:"lambdas"`
}

func saveJSON(gradients *mat.Dense, lambdas []float64, filename string) error {
	rows, _ := gradients.Dims()
	doc := gradientsJSON{
		Gradients: make([][]float64, rows),
		Lambdas:   lambdas,
	}
	for i := range doc.Gradients {
		doc.Gradients[i] = mat.Row(nil, i, gradients)
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filename, err)
	}
	return os.WriteFile(filename, raw, 0o644)
}
