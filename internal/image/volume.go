// Package image loads NIfTI and GIFTI arrays into a common row-major volume.
package image

import (
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/childmindresearch/ba-timeseries-gradients/internal/errs"
)

// Volume is an n-dimensional array stored in row-major order
type Volume struct {
	Shape []int
	Data  []float64
}

// NewVolume checks that data fills shape exactly
func NewVolume(shape []int, data []float64) (*Volume, error) {
	if size(shape) != len(data) {
		return nil, errs.Internal("volume shape %v needs %d values, got %d", shape, size(shape), len(data))
	}
	return &Volume{Shape: shape, Data: data}, nil
}

func size(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// Squeeze returns the volume with singleton axes dropped. The data is shared.
func (v *Volume) Squeeze() *Volume {
	shape := make([]int, 0, len(v.Shape))
	for _, d := range v.Shape {
		if d != 1 {
			shape = append(shape, d)
		}
	}
	return &Volume{Shape: shape, Data: v.Data}
}

// TimeByFeature moves the last axis (time) to the front and flattens the
// remaining axes, in row-major order, into a feature axis. A 1D volume is
// read as a single feature sampled len(Data) times.
func (v *Volume) TimeByFeature() (*mat.Dense, error) {
	if len(v.Data) == 0 {
		return nil, errs.Input("timeseries is empty")
	}

	switch len(v.Shape) {
	case 0:
		return nil, errs.Input("timeseries is a single value")
	case 1:
		return mat.NewDense(v.Shape[0], 1, append([]float64(nil), v.Data...)), nil
	}

	timepoints := v.Shape[len(v.Shape)-1]
	features := len(v.Data) / timepoints

	// data is features x time in row-major order, so the transpose is the answer
	ft := mat.NewDense(features, timepoints, v.Data)
	return mat.DenseCopyOf(ft.T()), nil
}

// Kind is the family a neuroimaging file belongs to
type Kind int

const (
	Unknown Kind = iota
	NIfTI
	GIFTI
)

// KindOf classifies a path by its suffix
func KindOf(path string) Kind {
	name := strings.ToLower(filepath.Base(path))
	switch {
	case strings.HasSuffix(name, ".nii"), strings.HasSuffix(name, ".nii.gz"):
		return NIfTI
	case strings.HasSuffix(name, ".gii"):
		return GIFTI
	}
	return Unknown
}

// Load reads a NIfTI or GIFTI file
func Load(path string) (*Volume, error) {
	switch KindOf(path) {
	case NIfTI:
		return LoadNIfTI(path)
	case GIFTI:
		return LoadGIFTI(path)
	}
	return nil, errs.Input("Input image must be a NIfTI or GIFTI image.")
}
