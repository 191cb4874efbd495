// Command npy2csv converts npy matrices written by ba_timeseries_gradients
// (gradients, lambdas, connectivity) into csv files next to them.
package main

import (
	"fmt"
	"os"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/childmindresearch/ba-timeseries-gradients/internal/io"
)

func convert(fileName string) (string, error) {
	matrix, err := io.NpyToDense(fileName)
	if err != nil {
		values, sliceErr := io.NpyToSlice(fileName)
		if sliceErr != nil || len(values) == 0 {
			return "", err
		}
		matrix = mat.NewDense(1, len(values), values)
	}

	out := strings.TrimSuffix(fileName, ".npy") + ".csv"
	if err := io.DenseToCSV(out, matrix); err != nil {
		return "", err
	}
	return out, nil
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: npy2csv <file.npy>...")
		os.Exit(2)
	}

	for _, fileName := range os.Args[1:] {
		out, err := convert(fileName)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", fileName, err)
			os.Exit(1)
		}
		fmt.Printf("%s -> %s\n", fileName, out)
	}
}
